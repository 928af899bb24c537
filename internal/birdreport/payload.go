package birdreport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Payload field names understood by the taxon endpoint.
const (
	FieldTaxonID     = "taxonid"
	FieldStartTime   = "startTime"
	FieldEndTime     = "endTime"
	FieldProvince    = "province"
	FieldCity        = "city"
	FieldDistrict    = "district"
	FieldPointName   = "pointname"
	FieldUsername    = "username"
	FieldSerialID    = "serial_id"
	FieldCTime       = "ctime"
	FieldVersion     = "version"
	FieldState       = "state"
	FieldMode        = "mode"
	FieldTaxonMonth  = "taxon_month"
	FieldOutsideType = "outside_type"
	FieldLimit       = "limit"
	FieldPage        = "page"
)

// placeFields are percent-encoded before the payload is canonicalized.
var placeFields = []string{FieldProvince, FieldCity, FieldDistrict, FieldPointName}

// Payload is the flat parameter set sent to the taxon endpoint. Values are
// always strings; two payloads with the same entries are interchangeable.
type Payload map[string]string

// DefaultPayload returns a payload holding every field the endpoint expects,
// with the service's defaults for version, mode, outside type and paging.
func DefaultPayload() Payload {
	return Payload{
		FieldTaxonID:     "",
		FieldStartTime:   "",
		FieldEndTime:     "",
		FieldProvince:    "",
		FieldCity:        "",
		FieldDistrict:    "",
		FieldPointName:   "",
		FieldUsername:    "",
		FieldSerialID:    "",
		FieldCTime:       "",
		FieldVersion:     "CH4",
		FieldState:       "",
		FieldMode:        "0",
		FieldTaxonMonth:  "",
		FieldOutsideType: "0",
		FieldLimit:       "1500",
		FieldPage:        "1",
	}
}

// Clone returns an independent copy of p.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge overlays values onto the payload, returning a new payload.
func (p Payload) Merge(values map[string]string) Payload {
	out := p.Clone()
	for k, v := range values {
		out[k] = v
	}
	return out
}

// Encoded returns the wire form of p: defaults filled in for absent fields and
// place names percent-encoded the way the website encodes them.
func (p Payload) Encoded() Payload {
	out := DefaultPayload().Merge(p)
	for _, key := range placeFields {
		if value := out[key]; value != "" {
			out[key] = percentEncode(value)
		}
	}
	return out
}

// percentEncode escapes every byte outside the unreserved set, using %20 for
// spaces.
func percentEncode(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// Canonical renders p as canonical JSON; see Canonicalize.
func (p Payload) Canonical() (string, error) {
	params := make(map[string]any, len(p))
	for k, v := range p {
		params[k] = v
	}
	return Canonicalize(params)
}

// Canonicalize renders params as a JSON object with lexicographically sorted
// keys, all values stringified (null becomes ""), no HTML escaping, and every
// space removed.
func Canonicalize(params map[string]any) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, key); err != nil {
			return "", err
		}
		buf.WriteByte(':')
		if err := writeJSONString(&buf, stringify(params[key])); err != nil {
			return "", err
		}
	}
	buf.WriteByte('}')
	return strings.ReplaceAll(buf.String(), " ", ""), nil
}

func writeJSONString(buf *bytes.Buffer, value string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("encode %q: %w", value, err)
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}
