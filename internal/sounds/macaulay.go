package sounds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/MY221B/bird-download/internal/ratelimit"
	"github.com/MY221B/bird-download/internal/services"
)

const (
	macaulayStage         = "macaulay"
	defaultMacaulaySearch = "https://search.macaulaylibrary.org/api/v1/search"
	defaultMacaulayAsset  = "https://cdn.download.ams.birds.cornell.edu/api/v1/asset"
	searchResultCount     = "3"
	maxAudioBytes         = 64 << 20
	browserLikeUserAgent  = "Mozilla/5.0"
)

// Recording is a Macaulay Library audio asset.
type Recording struct {
	AssetID  string
	Rating   float64
	Duration float64
}

// Library finds and downloads recordings.
type Library interface {
	BestRecording(ctx context.Context, taxonCode string) (*Recording, error)
	Download(ctx context.Context, rec Recording, dir, slug string) (string, error)
}

// Macaulay talks to the Macaulay Library search API and asset CDN.
type Macaulay struct {
	searchURL  string
	assetURL   string
	httpClient *http.Client
	downloads  *http.Client
	limiter    *ratelimit.Keyed
}

var _ Library = (*Macaulay)(nil)

// MacaulayOption configures a Macaulay client.
type MacaulayOption func(*Macaulay)

// WithMacaulayHTTPClients overrides the search and download HTTP clients.
func WithMacaulayHTTPClients(search, download *http.Client) MacaulayOption {
	return func(m *Macaulay) {
		if search != nil {
			m.httpClient = search
		}
		if download != nil {
			m.downloads = download
		}
	}
}

// WithMacaulayLimiter throttles outbound requests.
func WithMacaulayLimiter(limiter *ratelimit.Keyed) MacaulayOption {
	return func(m *Macaulay) { m.limiter = limiter }
}

// NewMacaulay returns a client; blank URLs use the public endpoints.
func NewMacaulay(searchURL, assetURL string, opts ...MacaulayOption) *Macaulay {
	m := &Macaulay{
		searchURL:  orDefault(searchURL, defaultMacaulaySearch),
		assetURL:   orDefault(assetURL, defaultMacaulayAsset),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		downloads:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func orDefault(value, fallback string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}

type searchResponse struct {
	Results struct {
		Content []searchItem `json:"content"`
	} `json:"results"`
}

type searchItem struct {
	AssetID   assetID `json:"assetId"`
	CatalogID assetID `json:"catalogId"`
	Rating    float64 `json:"rating"`
	Duration  float64 `json:"duration"`
}

// assetID accepts both numeric and string identifiers.
type assetID string

func (a *assetID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = assetID(strings.TrimPrefix(strings.TrimSpace(s), "ML"))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = assetID(n.String())
	return nil
}

// BestRecording returns the highest-rated audio recording for taxonCode, or
// services.ErrNotFound when none exists.
func (m *Macaulay) BestRecording(ctx context.Context, taxonCode string) (*Recording, error) {
	taxonCode = strings.TrimSpace(taxonCode)
	if taxonCode == "" {
		return nil, services.Wrap(services.ErrValidation, macaulayStage, "search", "taxon code required", nil)
	}
	query := url.Values{}
	query.Set("taxonCode", taxonCode)
	query.Set("mediaType", "a")
	query.Set("sort", "rating_rank_desc")
	query.Set("count", searchResultCount)
	endpoint := m.searchURL + "?" + query.Encode()

	if err := m.limiter.WaitURL(ctx, endpoint); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("macaulay: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", browserLikeUserAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrNetwork, macaulayStage, "search", "execute request", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrNetwork, macaulayStage, "search", "read response", err)
	}
	if err := classifyStatus(macaulayStage, "search", resp.StatusCode, raw); err != nil {
		return nil, err
	}
	var decoded searchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, services.Wrap(services.ErrProtocol, macaulayStage, "search", services.Truncate(string(raw), 200), err)
	}
	for _, item := range decoded.Results.Content {
		id := item.AssetID
		if id == "" {
			id = item.CatalogID
		}
		if id == "" {
			continue
		}
		return &Recording{AssetID: string(id), Rating: item.Rating, Duration: item.Duration}, nil
	}
	return nil, services.Wrap(services.ErrNotFound, macaulayStage, "search", "no audio for "+taxonCode, nil)
}

// FileName is the local name a recording is saved under.
func FileName(slug, assetID string) string {
	return fmt.Sprintf("%s_%s.mp3", slug, assetID)
}

// Download fetches rec into dir and verifies the payload is audio. Non-audio
// responses are removed and reported as services.ErrValidation.
func (m *Macaulay) Download(ctx context.Context, rec Recording, dir, slug string) (string, error) {
	if rec.AssetID == "" {
		return "", services.Wrap(services.ErrValidation, macaulayStage, "download", "asset id required", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("macaulay: create download dir: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/audio", m.assetURL, url.PathEscape(rec.AssetID))
	if err := m.limiter.WaitURL(ctx, endpoint); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("macaulay: build request: %w", err)
	}
	req.Header.Set("User-Agent", browserLikeUserAgent)

	resp, err := m.downloads.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrNetwork, macaulayStage, "download", "execute request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", classifyStatus(macaulayStage, "download", resp.StatusCode, snippet)
	}

	target := filepath.Join(dir, FileName(slug, rec.AssetID))
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("macaulay: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxAudioBytes)); err != nil {
		_ = tmp.Close()
		return "", services.Wrap(services.ErrNetwork, macaulayStage, "download", "read body", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("macaulay: close temp file: %w", err)
	}
	if err := VerifyAudio(tmpPath); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("macaulay: move download: %w", err)
	}
	return target, nil
}

// VerifyAudio checks the content type of path by sniffing its header.
func VerifyAudio(path string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("detect content type: %w", err)
	}
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return nil
		}
	}
	return services.Wrap(services.ErrValidation, macaulayStage, "verify", "not audio: "+mtype.String(), nil)
}
