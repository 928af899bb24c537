package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sdk "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/MY221B/bird-download/internal/services"
)

const (
	stageName      = "cloudinary"
	defaultBaseURL = "https://api.cloudinary.com"
	resourceType   = "video"
)

// Credentials authenticate signed uploads.
type Credentials struct {
	CloudName string
	APIKey    string
	APISecret string
}

// Complete reports whether every credential is present.
func (c Credentials) Complete() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// UploadRequest describes one file upload.
type UploadRequest struct {
	FilePath string
	Folder   string
	PublicID string
}

// UploadResult mirrors the response fields the catalog records.
type UploadResult struct {
	SecureURL string
	PublicID  string
	Format    string
	Bytes     int64
	Duration  float64
	BitRate   int64
	Audio     *AudioDetail
}

// AudioDetail is the audio stream description Cloudinary returns.
type AudioDetail struct {
	Codec     string
	Frequency int64
}

// Uploader stores files in cloud storage.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
}

// Client performs signed uploads through the Cloudinary SDK.
type Client struct {
	cld        *sdk.Cloudinary
	httpClient *http.Client
}

var _ Uploader = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API host. A trailing API version segment is
// ignored.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		base = strings.TrimSuffix(base, "/v1_1")
		if base != "" {
			c.cld.Upload.Config.API.UploadPrefix = base
		}
	}
}

// New creates a Cloudinary upload client.
func New(creds Credentials, opts ...Option) (*Client, error) {
	if !creds.Complete() {
		return nil, services.Wrap(services.ErrAuth, stageName, "init", "cloud name, api key and api secret required", nil)
	}
	cld, err := sdk.NewFromParams(creds.CloudName, creds.APIKey, creds.APISecret)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "configure sdk", err)
	}
	cld.Upload.Config.API.UploadPrefix = defaultBaseURL
	c := &Client{cld: cld, httpClient: &http.Client{Timeout: 60 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	transport := c.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client := *c.httpClient
	client.Transport = statusTransport{next: transport}
	c.cld.Upload.Client = client
	return c, nil
}

// Upload sends req.FilePath as a signed, overwriting upload.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.FilePath == "" {
		return nil, errors.New("cloudinary: file path required")
	}
	file, err := os.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: open file: %w", err)
	}
	defer file.Close()

	publicID := req.PublicID
	if publicID == "" {
		publicID = strings.TrimSuffix(filepath.Base(req.FilePath), filepath.Ext(req.FilePath))
	}
	params := uploader.UploadParams{
		PublicID:     publicID,
		Folder:       req.Folder,
		ResourceType: resourceType,
		Overwrite:    api.Bool(true),
	}

	status := &statusRecorder{}
	start := time.Now()
	res, err := c.cld.Upload.Upload(withStatus(ctx, status), file, params)
	if err != nil {
		return nil, services.Wrap(services.ErrNetwork, stageName, "upload", fmt.Sprintf("execute request (latency=%v)", time.Since(start)), err)
	}
	if res == nil {
		return nil, services.Wrap(services.ErrProtocol, stageName, "upload", "empty response", nil)
	}
	if msg := res.Error.Message; msg != "" || status.code >= http.StatusBadRequest {
		detail := fmt.Sprintf("status %d: %s", status.code, msg)
		switch {
		case status.code == http.StatusUnauthorized || status.code == http.StatusForbidden:
			return nil, services.Wrap(services.ErrAuth, stageName, "upload", detail, nil)
		case status.code == http.StatusTooManyRequests || status.code >= 500:
			return nil, services.Wrap(services.ErrNetwork, stageName, "upload", detail, nil)
		default:
			return nil, services.Wrap(services.ErrProtocol, stageName, "upload", detail, nil)
		}
	}
	if res.SecureURL == "" {
		return nil, services.Wrap(services.ErrProtocol, stageName, "decode", "response missing secure_url", nil)
	}

	out := &UploadResult{
		SecureURL: res.SecureURL,
		PublicID:  res.PublicID,
		Format:    res.Format,
		Bytes:     int64(res.Bytes),
	}
	if raw, ok := res.Response.(map[string]interface{}); ok {
		out.Duration = toFloat(raw["duration"])
		out.BitRate = int64(toFloat(raw["bit_rate"]))
		if audio, ok := raw["audio"].(map[string]interface{}); ok {
			codec, _ := audio["codec"].(string)
			out.Audio = &AudioDetail{Codec: codec, Frequency: int64(toFloat(audio["frequency"]))}
		}
	}
	return out, nil
}

// toFloat reads numbers that may arrive as JSON numbers or strings.
func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	default:
		return 0
	}
}

type statusKey struct{}

type statusRecorder struct{ code int }

func withStatus(ctx context.Context, rec *statusRecorder) context.Context {
	return context.WithValue(ctx, statusKey{}, rec)
}

// statusTransport records the HTTP status of the last upload response so
// API errors can be classified; the SDK reports them only in the body.
type statusTransport struct {
	next http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err == nil {
		if rec, ok := req.Context().Value(statusKey{}).(*statusRecorder); ok {
			rec.code = resp.StatusCode
		}
	}
	return resp, err
}
