package locations

import "strings"

// DefaultCity is used when a location carries neither a city nor a province.
const DefaultCity = "北京"

// CityFor returns the city directory a location's published lists live under:
// the configured city, else the province with its 市 or 省 suffix trimmed
// (陕西 maps to its capital 西安), else DefaultCity.
func CityFor(l Location) string {
	if city := strings.TrimSpace(l.City); city != "" {
		return city
	}
	province := strings.TrimSpace(l.Province)
	switch {
	case province == "":
		return DefaultCity
	case strings.HasSuffix(province, "市"):
		return strings.TrimSuffix(province, "市")
	case strings.HasSuffix(province, "省"):
		if strings.Contains(province, "陕西") {
			return "西安"
		}
		return strings.TrimSuffix(province, "省")
	default:
		return province
	}
}
