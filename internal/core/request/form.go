package request

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/requill/requill/internal/errdef"
)

// BodyMode selects how the form assembles a request body.
type BodyMode string

const (
	// BodyModeForm builds the body from key-value rows, each value
	// opportunistically parsed as JSON with a string fallback.
	BodyModeForm BodyMode = "form"
	// BodyModeRaw parses a hand-typed JSON document wholesale.
	BodyModeRaw BodyMode = "raw"
)

// Tab identifies a section of the request form.
type Tab string

const (
	TabParams  Tab = "params"
	TabHeaders Tab = "headers"
	TabBody    Tab = "body"
)

// FormState is the UI-shaped draft of a request: loosely typed rows as
// the user left them, before any filtering or parsing.
type FormState struct {
	Method   string   `json:"method"`
	URL      string   `json:"url"`
	Params   []KVPair `json:"queryParams"`
	Headers  []KVPair `json:"headers"`
	BodyMode BodyMode `json:"bodyMode"`
	BodyRows []KVPair `json:"bodyRows"`
	RawBody  string   `json:"rawBody"`
}

// Compose normalizes form state into an executor Description. Rows
// with empty or whitespace-only keys are dropped, duplicate header
// names resolve last-wins, and the body is assembled according to the
// form's body mode. A raw-mode body that fails to parse aborts
// composition with CodeMalformedBody carrying the exact parse error,
// so nothing reaches the network.
func Compose(form FormState) (*Description, error) {
	desc := &Description{
		Method:      form.Method,
		URL:         strings.TrimSpace(form.URL),
		QueryParams: filterRows(form.Params),
		Headers:     collapseHeaders(form.Headers),
	}

	body, err := assembleBody(form)
	if err != nil {
		return nil, err
	}
	desc.Body = body
	return desc, nil
}

// EffectiveTab resolves which form tab is actually shown: the body tab
// is inapplicable for methods that never carry a payload.
func EffectiveTab(method string, requested Tab) Tab {
	if requested == TabBody && !AllowsBody(method) {
		return TabParams
	}
	switch requested {
	case TabParams, TabHeaders, TabBody:
		return requested
	}
	return TabParams
}

func filterRows(rows []KVPair) []KVPair {
	out := make([]KVPair, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Key) == "" {
			continue
		}
		out = append(out, row)
	}
	return out
}

func collapseHeaders(rows []KVPair) map[string]string {
	headers := make(map[string]string, len(rows))
	for _, row := range filterRows(rows) {
		headers[row.Key] = row.Value
	}
	return headers
}

func assembleBody(form FormState) (*BodyValue, error) {
	switch form.BodyMode {
	case BodyModeRaw:
		raw := strings.TrimSpace(form.RawBody)
		if raw == "" {
			return nil, nil
		}
		var parsed json.RawMessage
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, errdef.Wrap(errdef.CodeMalformedBody, err, "request body is not valid JSON")
		}
		return JSONBody(parsed), nil
	default:
		rows := filterRows(form.BodyRows)
		if len(rows) == 0 {
			return nil, nil
		}
		return JSONBody(encodeFormObject(rows)), nil
	}
}

// encodeFormObject builds a JSON object from form rows, preserving
// first-seen key order with last-wins values. Row values that parse as
// JSON are embedded structurally; everything else becomes a string.
func encodeFormObject(rows []KVPair) json.RawMessage {
	order := make([]string, 0, len(rows))
	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		if _, seen := values[row.Key]; !seen {
			order = append(order, row.Key)
		}
		values[row.Key] = coerceValue(row.Value)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(key)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// coerceValue opportunistically parses a form field as JSON, falling
// back to a JSON string of the raw text.
func coerceValue(v string) json.RawMessage {
	trimmed := strings.TrimSpace(v)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(v)
	return encoded
}
