package species

import "strings"

// Record is one species row returned by a sighting query.
type Record struct {
	Chinese    string `json:"chinese_name"`
	English    string `json:"english_name"`
	Scientific string `json:"scientific_name"`
}

// Key identifies a record for deduplication.
type Key struct {
	Chinese    string
	Scientific string
}

// Key returns the deduplication key of r.
func (r Record) Key() Key {
	return Key{Chinese: r.Chinese, Scientific: r.Scientific}
}

// Trimmed returns r with surrounding whitespace removed from every name.
func (r Record) Trimmed() Record {
	return Record{
		Chinese:    strings.TrimSpace(r.Chinese),
		English:    strings.TrimSpace(r.English),
		Scientific: strings.TrimSpace(r.Scientific),
	}
}

// Blank reports whether r carries no usable name.
func (r Record) Blank() bool {
	t := r.Trimmed()
	return t.Chinese == "" && t.English == "" && t.Scientific == ""
}

// Line renders r the way the per-run birds.txt snapshot stores it.
func (r Record) Line() string {
	return strings.TrimSpace(strings.Join([]string{r.Chinese, r.English, r.Scientific}, " "))
}
