package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var categoryTitles = map[Category]string{
	CategoryLocation:        "Failed locations",
	CategoryMissingLocal:    "Still missing local images",
	CategoryMissingCloud:    "Still missing cloud metadata",
	CategoryMissingMetadata: "Not published (no metadata)",
	CategorySound:           "Sound failures",
}

// maxListed caps how many slugs each failure section prints.
const maxListed = 20

// Render writes the human-readable summary.
func Render(w io.Writer, r Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished in %s\n\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Second))

	if len(r.Locations) > 0 {
		b.WriteString(LocationTable(r.Locations))
		b.WriteString("\n\n")
	}

	t := r.Totals
	fmt.Fprintf(&b, "Locations: %d updated, %d failed\n", t.Updated, t.Failed)
	fmt.Fprintf(&b, "Species: %d (%d new)\n", t.Species, t.NewSpecies)
	fmt.Fprintf(&b, "Images: %d downloaded, %d uploaded\n", t.Downloaded, t.Uploaded)
	fmt.Fprintf(&b, "Sounds: %d/%d succeeded\n", t.SoundsSucceeded, t.SoundsSucceeded+t.SoundsFailed)
	if r.Global != nil {
		fmt.Fprintf(&b, "Global pass: %d species checked, %d satisfied\n", len(r.Global.Outcomes), r.Global.Satisfied())
	}

	if len(r.SoundReasons) > 0 {
		reasons := make([]string, 0, len(r.SoundReasons))
		for reason := range r.SoundReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		b.WriteString("Sound failure reasons:\n")
		for _, reason := range reasons {
			fmt.Fprintf(&b, "  - %s: %d\n", reason, r.SoundReasons[reason])
		}
	}

	for _, cat := range Categories {
		list := r.Failures[cat]
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d):\n", categoryTitles[cat], len(list))
		for i, f := range list {
			if i == maxListed {
				fmt.Fprintf(&b, "  ... and %d more\n", len(list)-maxListed)
				break
			}
			b.WriteString("  - " + failureLine(f) + "\n")
		}
	}

	if len(r.Hints) > 0 {
		b.WriteString("\nNext steps:\n")
		for _, h := range r.Hints {
			b.WriteString("  * " + h + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func failureLine(f Failure) string {
	label := f.Name
	if f.Slug != "" && f.Slug != f.Name {
		label = fmt.Sprintf("%s (%s)", f.Name, f.Slug)
	}
	if label == "" {
		label = f.Location
	}
	if f.Reason != "" {
		return label + ": " + f.Reason
	}
	return label
}

// LocationTable renders one row per location.
func LocationTable(locations []Location) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Location", "Range", "Status", "Species", "New", "Downloaded", "Uploaded", "Published"})
	for _, loc := range locations {
		tw.AppendRow(table.Row{
			nameOr(loc.Label, loc.ID),
			loc.Range,
			loc.Status,
			strconv.Itoa(loc.Species),
			strconv.Itoa(loc.New),
			strconv.Itoa(len(loc.Convergence.Downloaded)),
			strconv.Itoa(len(loc.Convergence.Uploaded)),
			strconv.Itoa(loc.Published),
		})
	}
	configs := []table.ColumnConfig{}
	for i := 4; i <= 8; i++ {
		configs = append(configs, table.ColumnConfig{Number: i, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// Headline is a one-line summary for notifications.
func Headline(r Report) string {
	t := r.Totals
	parts := []string{
		fmt.Sprintf("%d/%d locations updated", t.Updated, t.Locations),
		fmt.Sprintf("%d species", t.Species),
	}
	if t.NewSpecies > 0 {
		parts = append(parts, fmt.Sprintf("%d new", t.NewSpecies))
	}
	missing := len(r.Failures[CategoryMissingLocal]) + len(r.Failures[CategoryMissingCloud])
	if missing > 0 {
		parts = append(parts, fmt.Sprintf("%d missing assets", missing))
	}
	if t.SoundsFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d sound failures", t.SoundsFailed))
	}
	return strings.Join(parts, ", ")
}
