package locations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Level selects how coarse the birdreport query for a location is.
type Level string

const (
	LevelPoint    Level = "point"
	LevelDistrict Level = "district"
	LevelCity     Level = "city"
	LevelProvince Level = "province"
)

// Location is one configured birding place.
type Location struct {
	ID           string   `json:"id" validate:"required,max=64"`
	Name         string   `json:"name" validate:"required"`
	Province     string   `json:"province"`
	City         string   `json:"city"`
	District     string   `json:"district"`
	PointName    string   `json:"pointname"`
	PointAliases []string `json:"point_aliases" validate:"omitempty,dive,required"`
	Districts    []string `json:"districts" validate:"omitempty,dive,required"`
	QueryLevel   Level    `json:"query_level" validate:"omitempty,oneof=point district city province"`
	DefaultDays  int      `json:"default_days" validate:"gte=0,lte=366"`
	StartTime    string   `json:"startTime" validate:"omitempty,datetime=2006-01-02"`
	EndTime      string   `json:"endTime" validate:"omitempty,datetime=2006-01-02"`

	// Params overrides individual payload fields (username, serial_id,
	// version, mode, outside_type, limit, page, ...).
	Params map[string]Scalar `json:"params"`
}

// Level returns the effective query level, defaulting to point.
func (l Location) Level() Level {
	if l.QueryLevel == "" {
		return LevelPoint
	}
	return l.QueryLevel
}

// Aliases returns the trimmed point aliases, falling back to the point name
// and then the location name when none are configured.
func (l Location) Aliases() []string {
	var out []string
	for _, alias := range l.PointAliases {
		if alias = strings.TrimSpace(alias); alias != "" {
			out = append(out, alias)
		}
	}
	if len(out) > 0 {
		return out
	}
	if name := strings.TrimSpace(l.PointName); name != "" {
		return []string{name}
	}
	return []string{strings.TrimSpace(l.Name)}
}

// Matches reports whether identifier names this location by id or name,
// ignoring case.
func (l Location) Matches(identifier string) bool {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return false
	}
	return strings.EqualFold(l.ID, identifier) || strings.EqualFold(l.Name, identifier)
}

// Label is the human-facing name used in logs and reports.
func (l Location) Label() string {
	if l.Name != "" {
		return l.Name
	}
	return l.ID
}

// Overrides returns Params flattened to strings.
func (l Location) Overrides() map[string]string {
	if len(l.Params) == 0 {
		return nil
	}
	out := make(map[string]string, len(l.Params))
	for k, v := range l.Params {
		out[k] = string(v)
	}
	return out
}

// Scalar is a JSON string, number, bool or null stored in string form.
type Scalar string

// UnmarshalJSON accepts any JSON scalar.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	switch data[0] {
	case '{', '[':
		return fmt.Errorf("expected scalar value, got %s", data)
	}
	*s = Scalar(data)
	return nil
}
