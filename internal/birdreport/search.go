package birdreport

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/MY221B/bird-download/internal/services"
)

// DecodeSearchURL extracts the payload embedded in a birdreport.cn result
// page URL. The "search" query parameter holds base64 JSON whose values may be
// strings, numbers or null.
func DecodeSearchURL(rawURL string) (Payload, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "search url", "parse url", err)
	}
	encoded := parsed.Query().Get("search")
	if encoded == "" {
		return nil, services.Wrap(services.ErrValidation, stageName, "search url", "url has no search parameter", nil)
	}
	decoded, err := decodeLenientBase64(encoded)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "search url", "decode search parameter", err)
	}

	dec := json.NewDecoder(bytes.NewReader(decoded))
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "search url", "search parameter is not a JSON object", err)
	}
	payload := make(Payload, len(params))
	for key, value := range params {
		payload[key] = stringify(value)
	}
	return payload, nil
}

// decodeLenientBase64 accepts standard or URL alphabets with or without padding.
func decodeLenientBase64(value string) ([]byte, error) {
	// Query decoding turns an unescaped '+' into a space.
	value = strings.ReplaceAll(strings.TrimSpace(value), " ", "+")
	trimmed := strings.TrimRight(value, "=")
	for _, enc := range []*base64.Encoding{base64.RawStdEncoding, base64.RawURLEncoding} {
		if out, err := enc.DecodeString(trimmed); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("invalid base64 %q", services.Truncate(value, 40))
}
