package registry

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MY221B/bird-download/internal/fileutil"
	"github.com/MY221B/bird-download/internal/species"
)

// Header is the comment line written at the top of every registry file.
const Header = "# slug,chinese_name,english_name,scientific_name,wikipedia_page"

// Entry is one registry row.
type Entry struct {
	Slug       string
	Chinese    string
	English    string
	Scientific string
	Wikipedia  string
}

// Record returns the names of e as a sighting record.
func (e Entry) Record() species.Record {
	return species.Record{Chinese: e.Chinese, English: e.English, Scientific: e.Scientific}
}

// DisplayName renders "English（中文）" for reports, falling back to the slug.
func (e Entry) DisplayName() string {
	label := e.English
	if label == "" {
		label = e.Slug
	}
	if e.Chinese != "" {
		return label + "（" + e.Chinese + "）"
	}
	return label
}

// WikipediaFor derives the default wikipedia page title from an english name.
func WikipediaFor(english string) string {
	return strings.ReplaceAll(strings.TrimSpace(english), " ", "_")
}

// Registry is an ordered slug-keyed set of entries.
type Registry struct {
	entries []Entry
	index   map[string]int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }

// Get looks up an entry by slug.
func (r *Registry) Get(slug string) (Entry, bool) {
	i, ok := r.index[slug]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Entries returns a copy of all entries in file order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Slugs returns every slug in file order.
func (r *Registry) Slugs() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Slug
	}
	return out
}

// Put inserts e or replaces the entry with the same slug.
func (r *Registry) Put(e Entry) {
	if i, ok := r.index[e.Slug]; ok {
		r.entries[i] = e
		return
	}
	r.index[e.Slug] = len(r.entries)
	r.entries = append(r.entries, e)
}

// Load reads the registry at path. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()
	reg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	return reg, nil
}

// Read parses registry CSV. The first comment line decides whether the
// chinese_name column is present; without one, rows with fewer than five
// fields use the legacy layout. Rows whose slug is blank or literally
// "slug" are skipped; later duplicates replace earlier rows.
func Read(r io.Reader) (*Registry, error) {
	var (
		data       bytes.Buffer
		sawHeader  bool
		hasChinese bool
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			if !sawHeader {
				sawHeader = true
				hasChinese = strings.Contains(strings.ToLower(trimmed), "chinese_name")
			}
			continue
		}
		data.WriteString(line)
		data.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	cr := csv.NewReader(&data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	reg := New()
	for _, row := range rows {
		entry := fromRow(row, hasChinese || (!sawHeader && len(row) >= 5))
		if entry.Slug == "" || strings.EqualFold(entry.Slug, "slug") {
			continue
		}
		reg.Put(entry)
	}
	return reg, nil
}

func fromRow(row []string, hasChinese bool) Entry {
	field := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(strings.Trim(row[i], `"`))
		}
		return ""
	}
	if hasChinese {
		return Entry{Slug: field(0), Chinese: field(1), English: field(2), Scientific: field(3), Wikipedia: field(4)}
	}
	return Entry{Slug: field(0), English: field(1), Scientific: field(2), Wikipedia: field(3)}
}

// Write emits the registry in the five-column layout with name fields
// quoted.
func (r *Registry) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return err
	}
	for _, e := range r.entries {
		line := fmt.Sprintf("%s,%s,%s,%s,%s\n", quoteIfNeeded(e.Slug), quote(e.Chinese), quote(e.English), quote(e.Scientific), quoteIfNeeded(e.Wikipedia))
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func quote(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteIfNeeded(value string) string {
	if strings.ContainsAny(value, ",\"\r\n") {
		return quote(value)
	}
	return value
}

// Save writes the registry to path through a temporary file and rename.
func (r *Registry) Save(path string) error {
	if err := fileutil.WriteAtomic(path, r.Write); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}

// WriteSnapshot writes records as a standalone registry-format CSV, used for
// the per-run birds.csv files handed to the download collaborator.
func WriteSnapshot(path string, entries []Entry) error {
	reg := New()
	for _, e := range entries {
		reg.Put(e)
	}
	return reg.Save(path)
}
