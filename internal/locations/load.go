package locations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MY221B/bird-download/internal/services"
)

const stageName = "locations"

// Set is an ordered, validated list of locations.
type Set struct {
	Locations []Location
}

type document struct {
	Locations []Location `json:"locations"`
}

// Load reads and validates the location configuration at path. A missing or
// unparsable file is a configuration error.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "read", path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Parse decodes a location document: either {"locations": [...]} or a bare
// array.
func Parse(data []byte) (*Set, error) {
	trimmed := bytes.TrimSpace(data)
	var list []Location
	switch {
	case len(trimmed) == 0:
		return nil, services.Wrap(services.ErrConfiguration, stageName, "parse", "empty location config", nil)
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, stageName, "parse", "", err)
		}
	default:
		var doc document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, stageName, "parse", "", err)
		}
		if doc.Locations == nil {
			return nil, services.Wrap(services.ErrConfiguration, stageName, "parse", "document has no locations array", nil)
		}
		list = doc.Locations
	}
	set := &Set{Locations: list}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks every location and rejects duplicate ids.
func (s *Set) Validate() error {
	seen := make(map[string]struct{}, len(s.Locations))
	var problems []string
	for i, loc := range s.Locations {
		label := loc.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if err := validate.Struct(loc); err != nil {
			problems = append(problems, describe(label, err)...)
			continue
		}
		key := strings.ToLower(loc.ID)
		if _, ok := seen[key]; ok {
			problems = append(problems, fmt.Sprintf("%s: duplicate id", label))
		}
		seen[key] = struct{}{}
		if loc.StartTime != "" && loc.EndTime != "" && loc.StartTime > loc.EndTime {
			problems = append(problems, fmt.Sprintf("%s: startTime after endTime", label))
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrConfiguration, stageName, "validate", strings.Join(problems, "; "), nil)
	}
	return nil
}

func describe(label string, err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{fmt.Sprintf("%s: %v", label, err)}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: %s %s", label, fe.Field(), friendly(fe)))
	}
	return out
}

func friendly(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a YYYY-MM-DD date"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "max":
		return "must not exceed " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

// Filter returns the locations matching any identifier (id or name, case
// insensitive) in configuration order. No identifiers selects every location.
// Identifiers that match nothing are a configuration error.
func (s *Set) Filter(identifiers []string) ([]Location, error) {
	var wanted []string
	for _, id := range identifiers {
		for _, part := range strings.Split(id, ",") {
			if part = strings.TrimSpace(part); part != "" {
				wanted = append(wanted, part)
			}
		}
	}
	if len(wanted) == 0 {
		out := make([]Location, len(s.Locations))
		copy(out, s.Locations)
		return out, nil
	}

	var unknown []string
	for _, id := range wanted {
		found := false
		for _, loc := range s.Locations {
			if loc.Matches(id) {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "filter", "unknown location(s): "+strings.Join(unknown, ", "), nil)
	}

	var out []Location
	for _, loc := range s.Locations {
		for _, id := range wanted {
			if loc.Matches(id) {
				out = append(out, loc)
				break
			}
		}
	}
	return out, nil
}

// Find returns the location matching identifier.
func (s *Set) Find(identifier string) (Location, bool) {
	for _, loc := range s.Locations {
		if loc.Matches(identifier) {
			return loc, true
		}
	}
	return Location{}, false
}
