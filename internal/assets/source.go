package assets

import (
	"fmt"
	"strings"
)

// Source is an image provider. The set is closed; per-provider behaviour is
// carried as data.
type Source struct {
	// Key is both the local folder name and the metadata array key.
	Key string
	// Label is the provider's display name.
	Label string
	// CreditFormat renders an attribution line; %[1]s is the species and
	// %[2]s the author.
	CreditFormat string
	// AssetURLFormat renders the provider's page for an asset id, when known.
	AssetURLFormat string
}

var (
	Macaulay = Source{
		Key:            "macaulay",
		Label:          "Macaulay Library",
		CreditFormat:   "%[1]s by %[2]s; Cornell Lab of Ornithology | Macaulay Library",
		AssetURLFormat: "https://macaulaylibrary.org/asset/%s",
	}
	INaturalist = Source{
		Key:            "inaturalist",
		Label:          "iNaturalist",
		CreditFormat:   "%[1]s © %[2]s via iNaturalist",
		AssetURLFormat: "https://www.inaturalist.org/photos/%s",
	}
	Wikimedia = Source{
		Key:          "wikimedia",
		Label:        "Wikimedia Commons",
		CreditFormat: "%[1]s by %[2]s, via Wikimedia Commons",
	}
	Avibase = Source{
		Key:          "avibase",
		Label:        "Avibase",
		CreditFormat: "%[1]s © %[2]s / Avibase",
	}
)

// Sources lists every provider in preference order.
var Sources = []Source{Macaulay, INaturalist, Wikimedia, Avibase}

// SourceByKey resolves a folder or metadata key.
func SourceByKey(key string) (Source, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, s := range Sources {
		if s.Key == key {
			return s, true
		}
	}
	return Source{}, false
}

// Credit renders the attribution line for species by author.
func (s Source) Credit(species, author string) string {
	if strings.TrimSpace(author) == "" {
		author = "Unknown"
	}
	return fmt.Sprintf(s.CreditFormat, species, author)
}

// AssetURL returns the provider page for id, or "" when the provider has no
// stable asset pages.
func (s Source) AssetURL(id string) string {
	if s.AssetURLFormat == "" || strings.TrimSpace(id) == "" {
		return ""
	}
	return fmt.Sprintf(s.AssetURLFormat, id)
}
