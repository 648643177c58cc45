// Package request defines the normalized request model and the
// transforms between UI-shaped form state and the executor's input.
package request

import "encoding/json"

// Methods is the closed set of supported HTTP methods, uppercase only.
var Methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

// ValidMethod reports whether m is in the supported set. Matching is
// case-sensitive: the caller normalizes, the executor enforces.
func ValidMethod(m string) bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// AllowsBody reports whether m conventionally carries a payload. The
// executor ignores Body for every other method.
func AllowsBody(m string) bool {
	return m == "POST" || m == "PUT" || m == "PATCH"
}

// KVPair is a single key-value row (query param, header, form body field).
type KVPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BodyKind discriminates BodyValue variants.
type BodyKind int

const (
	// BodyJSON holds a structured JSON value.
	BodyJSON BodyKind = iota
	// BodyText holds a plain string that did not parse as JSON.
	BodyText
)

// BodyValue is a tagged variant resolved once at body-assembly time:
// either a structured JSON value or raw text.
type BodyValue struct {
	Kind BodyKind
	JSON json.RawMessage
	Text string
}

// JSONBody wraps a raw JSON value.
func JSONBody(raw json.RawMessage) *BodyValue {
	return &BodyValue{Kind: BodyJSON, JSON: raw}
}

// TextBody wraps a plain string.
func TextBody(s string) *BodyValue {
	return &BodyValue{Kind: BodyText, Text: s}
}

// Wire returns the JSON serialization sent over the network: the value
// itself for JSON bodies, a JSON string for text bodies.
func (b *BodyValue) Wire() ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	if b.Kind == BodyJSON {
		return b.JSON, nil
	}
	return json.Marshal(b.Text)
}

// Description is the normalized representation of an outbound HTTP
// call: the executor's sole input. QueryParams keep insertion order;
// the executor preserves that order in the final query string.
type Description struct {
	Method      string
	URL         string
	QueryParams []KVPair
	Headers     map[string]string
	Body        *BodyValue
}
