package birdreport

import (
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/MY221B/bird-download/internal/services"
	"github.com/MY221B/bird-download/internal/species"
)

var (
	hanPattern        = regexp.MustCompile(`\p{Han}`)
	hanOnlyPattern    = regexp.MustCompile(`^\p{Han}+$`)
	scientificPattern = regexp.MustCompile(`^[A-Z][a-z]+ [a-z]+`)
	englishPattern    = regexp.MustCompile(`^[A-Z][A-Za-z'\- ]+$`)
	loosePattern      = regexp.MustCompile(`(\p{Han}{2,})\s+([A-Z][a-z]+\s+[a-z]+(?:\s+[a-z]+)?)`)
)

// ParseHTML extracts species rows from a saved birdreport.cn result page.
// Table rows are read first: the first cell containing Han characters is the
// chinese name, a capitalized binomial is the scientific name, and another
// latin-script cell is the english name. When no table rows match, the page
// text is scanned for the three-line layout of the printable species list and
// finally for any "chinese binomial" pair.
func ParseHTML(r io.Reader) ([]species.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, services.Wrap(services.ErrProtocol, stageName, "parse html", "", err)
	}

	var merger species.Merger
	merger.Add(parseTableRows(doc))
	if merger.Len() > 0 {
		return merger.Records(), nil
	}

	lines := textLines(doc.Text())
	merger.Add(parseListing(lines))
	if merger.Len() > 0 {
		return merger.Records(), nil
	}
	merger.Add(parseLoose(lines))
	return merger.Records(), nil
}

func parseTableRows(doc *goquery.Document) []species.Record {
	var records []species.Record
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		var rec species.Record
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			text := strings.TrimSpace(cell.Text())
			switch {
			case text == "":
			case rec.Chinese == "" && hanPattern.MatchString(text):
				rec.Chinese = text
			case rec.Scientific == "" && scientificPattern.MatchString(text) && !strings.Contains(text, "-"):
				rec.Scientific = text
			case rec.English == "" && englishPattern.MatchString(text):
				rec.English = text
			}
		})
		if rec.Chinese != "" && rec.Scientific != "" {
			records = append(records, rec)
		}
	})
	return records
}

// parseListing reads consecutive chinese / english / scientific lines.
func parseListing(lines []string) []species.Record {
	var records []species.Record
	for i := 0; i+2 < len(lines); i++ {
		if !hanOnlyPattern.MatchString(lines[i]) {
			continue
		}
		english, scientific := lines[i+1], lines[i+2]
		if englishPattern.MatchString(english) && scientificPattern.MatchString(scientific) {
			records = append(records, species.Record{Chinese: lines[i], English: english, Scientific: scientific})
			i += 2
		}
	}
	return records
}

func parseLoose(lines []string) []species.Record {
	var records []species.Record
	for _, line := range lines {
		match := loosePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		records = append(records, species.Record{Chinese: match[1], Scientific: match[2]})
	}
	return records
}

func textLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
