package birdreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MY221B/bird-download/internal/logging"
	"github.com/MY221B/bird-download/internal/ratelimit"
	"github.com/MY221B/bird-download/internal/services"
	"github.com/MY221B/bird-download/internal/species"
)

const (
	stageName = "birdreport"

	defaultOrigin    = "https://www.birdreport.cn"
	defaultReferer   = "https://www.birdreport.cn/"
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxResponseBytes = 16 << 20
	rawSnippetLimit  = 200
)

// Fetcher retrieves sighting records for one payload.
type Fetcher interface {
	Fetch(ctx context.Context, payload Payload) ([]species.Record, error)
}

// Client posts encrypted taxon queries to the birdreport.cn API.
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	cipher     *Cipher
	limiter    *ratelimit.Keyed
	logger     *slog.Logger
	now        func() time.Time
	newID      func() (string, error)
}

var _ Fetcher = (*Client)(nil)

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

// WithCipher overrides the published key material.
func WithCipher(ci *Cipher) Option {
	return func(c *Client) {
		if ci != nil {
			c.cipher = ci
		}
	}
}

// WithLimiter throttles requests per host.
func WithLimiter(limiter *ratelimit.Keyed) Option {
	return func(c *Client) { c.limiter = limiter }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent overrides the browser user agent sent with each request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRequestIDFunc overrides request id generation.
func WithRequestIDFunc(fn func() (string, error)) Option {
	return func(c *Client) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// New creates a birdreport client for endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("birdreport endpoint required")
	}
	client := &Client{
		endpoint:   endpoint,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewNop(),
		now:        time.Now,
		newID:      NewRequestID,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cipher == nil {
		ci, err := DefaultCipher()
		if err != nil {
			return nil, err
		}
		client.cipher = ci
	}
	client.logger = logging.NewComponentLogger(client.logger, stageName)
	return client, nil
}

// Request is the fully prepared wire form of one query.
type Request struct {
	Params    string
	RequestID string
	Timestamp string
	Sign      string
	Body      string
}

// Prepare canonicalizes, signs and encrypts payload without sending it.
func (c *Client) Prepare(payload Payload) (Request, error) {
	params, err := payload.Encoded().Canonical()
	if err != nil {
		return Request{}, services.Wrap(services.ErrValidation, stageName, "canonicalize", "", err)
	}
	requestID, err := c.newID()
	if err != nil {
		return Request{}, services.Wrap(services.ErrNetwork, stageName, "request id", "", err)
	}
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	body, err := c.cipher.EncryptRequest(params)
	if err != nil {
		return Request{}, services.Wrap(services.ErrValidation, stageName, "encrypt", "", err)
	}
	return Request{
		Params:    params,
		RequestID: requestID,
		Timestamp: timestamp,
		Sign:      Sign(params, requestID, timestamp),
		Body:      body,
	}, nil
}

type envelope struct {
	Code json.RawMessage `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type rawRecord struct {
	TaxonName   string `json:"taxonname"`
	EnglishName string `json:"englishname"`
	LatinName   string `json:"latinname"`
}

// Fetch sends one payload and returns the decoded sighting records.
func (c *Client) Fetch(ctx context.Context, payload Payload) ([]species.Record, error) {
	req, err := c.Prepare(payload)
	if err != nil {
		return nil, err
	}
	ctx = services.WithRequestID(ctx, req.RequestID)
	logger := logging.WithContext(ctx, c.logger)

	if err := c.limiter.WaitURL(ctx, c.endpoint); err != nil {
		return nil, services.Wrap(services.ErrNetwork, stageName, "rate limit", "", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(req.Body))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "build request", "", err)
	}
	httpReq.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	httpReq.Header.Set("Origin", defaultOrigin)
	httpReq.Header.Set("Referer", defaultReferer)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("requestId", req.RequestID)
	httpReq.Header.Set("sign", req.Sign)
	httpReq.Header.Set("timestamp", req.Timestamp)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, services.Wrap(services.ErrNetwork, stageName, "post", fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrNetwork, stageName, "read response", "", err)
	}
	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	records, err := c.decode(raw)
	if err != nil {
		return nil, err
	}
	logger.Debug("birdreport query completed",
		logging.String(FieldPointName, payload[FieldPointName]),
		logging.String(FieldStartTime, payload[FieldStartTime]),
		logging.String(FieldEndTime, payload[FieldEndTime]),
		logging.Int("records", len(records)),
		logging.Duration("latency", latency),
	)
	return records, nil
}

func classifyStatus(status int, raw []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, stageName, "post", fmt.Sprintf("status %d: %s", status, services.Truncate(string(raw), rawSnippetLimit)), nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return services.Wrap(services.ErrNetwork, stageName, "post", fmt.Sprintf("status %d", status), nil)
	default:
		return services.Wrap(services.ErrProtocol, stageName, "post", fmt.Sprintf("status %d: %s", status, services.Truncate(string(raw), rawSnippetLimit)), nil)
	}
}

func (c *Client) decode(raw []byte) ([]species.Record, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, services.Wrap(services.ErrProtocol, stageName, "decode envelope", services.Truncate(string(raw), rawSnippetLimit), err)
	}
	var encoded string
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &encoded); err != nil {
			return nil, services.Wrap(services.ErrProtocol, stageName, "decode data", "data is not a string", err)
		}
	}
	if strings.TrimSpace(encoded) == "" {
		msg := strings.TrimSpace(env.Msg)
		if msg == "" {
			msg = "response missing data field"
		}
		return nil, services.Wrap(services.ErrProtocol, stageName, "decode data", msg+": "+services.Truncate(string(raw), rawSnippetLimit), nil)
	}

	plain, err := c.cipher.DecryptResponse(encoded)
	if err != nil {
		return nil, services.Wrap(services.ErrProtocol, stageName, "decrypt", services.Truncate(encoded, rawSnippetLimit), err)
	}
	var rows []rawRecord
	if err := json.Unmarshal(plain, &rows); err != nil {
		return nil, services.Wrap(services.ErrProtocol, stageName, "decode records", services.Truncate(string(plain), rawSnippetLimit), err)
	}
	records := make([]species.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, species.Record{
			Chinese:    row.TaxonName,
			English:    row.EnglishName,
			Scientific: row.LatinName,
		}.Trimmed())
	}
	return records, nil
}
