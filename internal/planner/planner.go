package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/MY221B/bird-download/internal/birdreport"
	"github.com/MY221B/bird-download/internal/locations"
	"github.com/MY221B/bird-download/internal/services"
)

const (
	stageName = "planner"

	// DateLayout is the wire and flag format for dates.
	DateLayout = "2006-01-02"

	fallbackDays = 7
)

// Window carries the operator's date overrides. Zero values defer to the
// location and then to the planner default.
type Window struct {
	Start string
	End   string
	Days  int
}

// Range is an inclusive span of calendar days.
type Range struct {
	Start time.Time
	End   time.Time
}

// String renders the range as "start..end".
func (r Range) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// Group is a set of payloads whose results describe the same logical query
// (one alias or one district) across month segments.
type Group struct {
	Label    string
	Level    locations.Level
	Payloads []birdreport.Payload
}

// Plan is the full set of queries for one location.
type Plan struct {
	Range  Range
	Groups []Group
	// Tolerant reports whether individual group failures may be skipped as
	// long as at least one group succeeds.
	Tolerant bool
}

// Size returns the number of payloads across all groups.
func (p Plan) Size() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Payloads)
	}
	return n
}

// Planner builds query plans.
type Planner struct {
	DefaultDays int
	Now         func() time.Time
}

// New returns a planner with the given default lookback.
func New(defaultDays int) *Planner {
	return &Planner{DefaultDays: defaultDays, Now: time.Now}
}

func (p *Planner) today() time.Time {
	now := time.Now
	if p != nil && p.Now != nil {
		now = p.Now
	}
	t := now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (p *Planner) defaultDays(loc locations.Location) int {
	if loc.DefaultDays > 0 {
		return loc.DefaultDays
	}
	if p != nil && p.DefaultDays > 0 {
		return p.DefaultDays
	}
	return fallbackDays
}

// Resolve determines the inclusive date range for loc under window.
func (p *Planner) Resolve(loc locations.Location, window Window) (Range, error) {
	start, end := strings.TrimSpace(window.Start), strings.TrimSpace(window.End)
	days := window.Days
	if days < 0 {
		return Range{}, configError(loc, fmt.Sprintf("days must be positive, got %d", days))
	}

	if start == "" && end == "" && days == 0 && loc.StartTime != "" && loc.EndTime != "" {
		start, end = loc.StartTime, loc.EndTime
	}

	var r Range
	var err error
	if end == "" {
		r.End = p.today()
	} else if r.End, err = parseDate(end); err != nil {
		return Range{}, configError(loc, fmt.Sprintf("invalid end date %q", end))
	}
	if start != "" {
		if r.Start, err = parseDate(start); err != nil {
			return Range{}, configError(loc, fmt.Sprintf("invalid start date %q", start))
		}
	} else {
		if days == 0 {
			days = p.defaultDays(loc)
		}
		r.Start = r.End.AddDate(0, 0, -(days - 1))
	}
	if r.Start.After(r.End) {
		return Range{}, configError(loc, fmt.Sprintf("start %s is after end %s", r.Start.Format(DateLayout), r.End.Format(DateLayout)))
	}
	return r, nil
}

// Plan builds every query needed to cover loc within window.
func (p *Planner) Plan(loc locations.Location, window Window) (Plan, error) {
	r, err := p.Resolve(loc, window)
	if err != nil {
		return Plan{}, err
	}
	segments := SplitMonths(r)
	base := basePayload(loc)

	plan := Plan{Range: r}
	addGroup := func(label string, values map[string]string) {
		group := Group{Label: label, Level: loc.Level()}
		scoped := base.Merge(values)
		for _, seg := range segments {
			group.Payloads = append(group.Payloads, scoped.Merge(map[string]string{
				birdreport.FieldStartTime:  seg.Start.Format(DateLayout),
				birdreport.FieldEndTime:    seg.End.Format(DateLayout),
				birdreport.FieldTaxonMonth: fmt.Sprintf("%02d", int(seg.Start.Month())),
			}))
		}
		plan.Groups = append(plan.Groups, group)
	}

	switch loc.Level() {
	case locations.LevelPoint:
		for _, alias := range loc.Aliases() {
			addGroup(alias, map[string]string{birdreport.FieldPointName: alias})
		}
		plan.Tolerant = true
	case locations.LevelDistrict:
		districts := nonBlank(loc.Districts)
		if len(districts) > 1 {
			for _, d := range districts {
				addGroup(d, map[string]string{birdreport.FieldDistrict: d, birdreport.FieldPointName: ""})
			}
			plan.Tolerant = true
			break
		}
		district := strings.TrimSpace(loc.District)
		if len(districts) == 1 {
			district = districts[0]
		}
		addGroup(firstNonEmpty(district, loc.Label()), map[string]string{birdreport.FieldDistrict: district, birdreport.FieldPointName: ""})
	case locations.LevelCity:
		addGroup(firstNonEmpty(loc.City, loc.Label()), map[string]string{
			birdreport.FieldDistrict:  "",
			birdreport.FieldPointName: "",
		})
	case locations.LevelProvince:
		addGroup(firstNonEmpty(loc.Province, loc.Label()), map[string]string{
			birdreport.FieldCity:      "",
			birdreport.FieldDistrict:  "",
			birdreport.FieldPointName: "",
		})
	default:
		return Plan{}, configError(loc, fmt.Sprintf("unsupported query level %q", loc.QueryLevel))
	}
	return plan, nil
}

// SplitMonths cuts r into calendar-month segments; no segment crosses a
// month boundary.
func SplitMonths(r Range) []Range {
	var out []Range
	for cur := r.Start; !cur.After(r.End); {
		monthEnd := time.Date(cur.Year(), cur.Month()+1, 0, 0, 0, 0, 0, cur.Location())
		segEnd := monthEnd
		if segEnd.After(r.End) {
			segEnd = r.End
		}
		out = append(out, Range{Start: cur, End: segEnd})
		cur = segEnd.AddDate(0, 0, 1)
	}
	return out
}

func basePayload(loc locations.Location) birdreport.Payload {
	payload := birdreport.DefaultPayload().Merge(map[string]string{
		birdreport.FieldProvince:  strings.TrimSpace(loc.Province),
		birdreport.FieldCity:      strings.TrimSpace(loc.City),
		birdreport.FieldDistrict:  strings.TrimSpace(loc.District),
		birdreport.FieldPointName: firstNonEmpty(loc.PointName, loc.Name),
	})
	return payload.Merge(loc.Overrides())
}

func parseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}

func configError(loc locations.Location, message string) error {
	return services.Wrap(services.ErrConfiguration, stageName, loc.ID, message, nil)
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
