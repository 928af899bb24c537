package species

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/MY221B/bird-download/internal/services"
)

// Slugify derives the canonical identifier for a single name: NFD
// decomposition, combining marks removed, lowercased, characters other than
// letters, digits, underscore, whitespace and hyphen dropped, runs of
// whitespace and hyphens collapsed to one underscore, and outer underscores
// trimmed.
func Slugify(name string) string {
	if name == "" {
		return ""
	}
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))), name)
	if err != nil {
		stripped = name
	}
	stripped = strings.ToLower(stripped)

	var b strings.Builder
	b.Grow(len(stripped))
	pendingSep := false
	for _, r := range stripped {
		switch {
		case r == '-' || unicode.IsSpace(r):
			pendingSep = true
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep {
				b.WriteByte('_')
				pendingSep = false
			}
			b.WriteRune(r)
		}
	}
	if pendingSep {
		b.WriteByte('_')
	}
	return strings.Trim(b.String(), "_")
}

// Slug resolves the identifier for a record from its english name, falling
// back to the scientific and then the chinese name.
func Slug(r Record) (string, error) {
	r = r.Trimmed()
	for _, name := range []string{r.English, r.Scientific, r.Chinese} {
		if name == "" {
			continue
		}
		if slug := Slugify(name); slug != "" {
			return slug, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "slug", "resolve", fmt.Sprintf("no usable name in %+v", r), nil)
}
