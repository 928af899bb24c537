package sounds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MY221B/bird-download/internal/ratelimit"
	"github.com/MY221B/bird-download/internal/services"
	"github.com/MY221B/bird-download/internal/taxcache"
)

const (
	ebirdStage       = "ebird"
	defaultEBirdBase = "https://api.ebird.org/v2"
	tokenHeader      = "X-eBirdApiToken"
)

// EBird queries the eBird reference taxonomy.
type EBird struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *ratelimit.Keyed
}

// EBirdOption configures an EBird client.
type EBirdOption func(*EBird)

// WithEBirdHTTPClient overrides the HTTP client.
func WithEBirdHTTPClient(client *http.Client) EBirdOption {
	return func(e *EBird) {
		if client != nil {
			e.httpClient = client
		}
	}
}

// WithEBirdLimiter throttles outbound requests.
func WithEBirdLimiter(limiter *ratelimit.Keyed) EBirdOption {
	return func(e *EBird) { e.limiter = limiter }
}

// NewEBird returns a taxonomy client. baseURL defaults to the public API.
func NewEBird(baseURL, token string, opts ...EBirdOption) *EBird {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultEBirdBase
	}
	e := &EBird{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SpeciesCode returns the eBird species code for a scientific name. An
// unknown species yields services.ErrNotFound.
func (e *EBird) SpeciesCode(ctx context.Context, scientific string) (string, error) {
	scientific = strings.TrimSpace(scientific)
	if scientific == "" {
		return "", services.Wrap(services.ErrValidation, ebirdStage, "species code", "scientific name required", nil)
	}
	query := url.Values{}
	query.Set("fmt", "json")
	query.Set("locale", "en")
	query.Set("species", scientific)
	var taxa []taxcache.Taxon
	if err := e.get(ctx, "species code", query, &taxa); err != nil {
		return "", err
	}
	for _, t := range taxa {
		if code := strings.TrimSpace(t.SpeciesCode); code != "" {
			return code, nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, ebirdStage, "species code", scientific, nil)
}

// Taxonomy downloads the full taxonomy. It satisfies taxcache.FetchFunc.
func (e *EBird) Taxonomy(ctx context.Context) ([]taxcache.Taxon, error) {
	query := url.Values{}
	query.Set("fmt", "json")
	query.Set("locale", "en")
	var taxa []taxcache.Taxon
	if err := e.get(ctx, "taxonomy", query, &taxa); err != nil {
		return nil, err
	}
	return taxa, nil
}

func (e *EBird) get(ctx context.Context, op string, query url.Values, out any) error {
	if e.token == "" {
		return services.Wrap(services.ErrAuth, ebirdStage, op, "EBIRD_TOKEN not set", nil)
	}
	endpoint := e.baseURL + "/ref/taxonomy/ebird?" + query.Encode()
	if err := e.limiter.WaitURL(ctx, endpoint); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("ebird: build request: %w", err)
	}
	req.Header.Set(tokenHeader, e.token)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrNetwork, ebirdStage, op, "execute request", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return services.Wrap(services.ErrNetwork, ebirdStage, op, "read response", err)
	}
	if err := classifyStatus(ebirdStage, op, resp.StatusCode, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return services.Wrap(services.ErrProtocol, ebirdStage, op, services.Truncate(string(raw), 200), err)
	}
	return nil
}

func classifyStatus(stage, op string, status int, raw []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := fmt.Sprintf("status %d: %s", status, services.Truncate(strings.TrimSpace(string(raw)), 200))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, stage, op, msg, nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, stage, op, msg, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return services.Wrap(services.ErrNetwork, stage, op, msg, nil)
	default:
		return services.Wrap(services.ErrProtocol, stage, op, msg, nil)
	}
}
