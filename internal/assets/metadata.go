package assets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	keyBirdInfo = "bird_info"
	keySounds   = "sounds"
)

// BirdInfo is the free-form bird_info object. Known name keys have
// accessors; every other key is preserved as-is.
type BirdInfo map[string]any

func (b BirdInfo) str(key string) string {
	if v, ok := b[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (b BirdInfo) Chinese() string    { return b.str("chinese_name") }
func (b BirdInfo) English() string    { return b.str("english_name") }
func (b BirdInfo) Scientific() string { return b.str("scientific_name") }

// Sound is one uploaded audio clip.
type Sound struct {
	OriginalFile   string           `json:"original_file"`
	URL            string           `json:"url"`
	PublicID       string           `json:"public_id"`
	Duration       float64          `json:"duration,omitempty"`
	Format         string           `json:"format,omitempty"`
	Bytes          int64            `json:"bytes,omitempty"`
	BitRate        int64            `json:"bit_rate,omitempty"`
	AudioCodec     string           `json:"audio_codec,omitempty"`
	AudioFrequency int64            `json:"audio_frequency,omitempty"`
	Attribution    SoundAttribution `json:"attribution"`
}

// SoundAttribution credits a recording.
type SoundAttribution struct {
	Recordist  string  `json:"recordist"`
	Source     string  `json:"source"`
	SourceID   string  `json:"source_id,omitempty"`
	AssetURL   string  `json:"asset_url,omitempty"`
	License    string  `json:"license,omitempty"`
	LicenseURL string  `json:"license_url,omitempty"`
	Note       *string `json:"note"`
}

// Metadata is one slug's cloud metadata document.
type Metadata struct {
	BirdInfo BirdInfo
	Photos   map[Source][]json.RawMessage
	Sounds   []Sound
	// Extra holds keys this package does not interpret.
	Extra map[string]json.RawMessage
}

// PhotoCount sums the photo arrays across sources.
func (m *Metadata) PhotoCount() int {
	if m == nil {
		return 0
	}
	total := 0
	for _, photos := range m.Photos {
		total += len(photos)
	}
	return total
}

// HasSound reports whether at least one sound entry exists.
func (m *Metadata) HasSound() bool {
	return m != nil && len(m.Sounds) > 0
}

// UpsertSound replaces the sound with the same original file or appends.
func (m *Metadata) UpsertSound(s Sound) {
	for i := range m.Sounds {
		if m.Sounds[i].OriginalFile == s.OriginalFile {
			m.Sounds[i] = s
			return
		}
	}
	m.Sounds = append(m.Sounds, s)
}

// SetNames writes the registry names into bird_info and reports whether
// anything changed.
func (m *Metadata) SetNames(slug, chinese, english, scientific string) bool {
	if m.BirdInfo == nil {
		m.BirdInfo = BirdInfo{}
	}
	changed := false
	set := func(key, value string) {
		if value == "" {
			return
		}
		if cur, _ := m.BirdInfo[key].(string); cur != value {
			m.BirdInfo[key] = value
			changed = true
		}
	}
	set("slug", slug)
	set("chinese_name", chinese)
	set("english_name", english)
	set("scientific_name", scientific)
	return changed
}

// UnmarshalJSON splits the document into known and extra keys.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.BirdInfo = nil
	m.Photos = make(map[Source][]json.RawMessage, len(Sources))
	m.Sounds = nil
	m.Extra = make(map[string]json.RawMessage)

	for key, value := range raw {
		switch key {
		case keyBirdInfo:
			if err := json.Unmarshal(value, &m.BirdInfo); err != nil {
				return fmt.Errorf("bird_info: %w", err)
			}
			continue
		case keySounds:
			if err := json.Unmarshal(value, &m.Sounds); err != nil {
				return fmt.Errorf("sounds: %w", err)
			}
			continue
		}
		if src, ok := SourceByKey(key); ok {
			var photos []json.RawMessage
			if err := json.Unmarshal(value, &photos); err == nil {
				m.Photos[src] = photos
				continue
			}
		}
		m.Extra[key] = value
	}
	return nil
}

// MarshalJSON writes every source array (empty when absent), bird_info,
// sounds and the preserved extra keys.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+len(Sources)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.BirdInfo != nil {
		out[keyBirdInfo] = m.BirdInfo
	}
	for _, src := range Sources {
		photos := m.Photos[src]
		if photos == nil {
			photos = []json.RawMessage{}
		}
		out[src.Key] = photos
	}
	if m.Sounds != nil {
		out[keySounds] = m.Sounds
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
