// Package executor turns a normalized request description into an
// outbound HTTP call and a uniform response envelope. It is the trust
// boundary between user-supplied form input and the network: all
// validation happens here, before any I/O.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/requill/requill/internal/core/request"
	"github.com/requill/requill/internal/errdef"
)

// DefaultTimeout bounds a full request round trip.
const DefaultTimeout = 30 * time.Second

// Client executes HTTP requests. Safe for concurrent use: the only
// shared state is the underlying http.Client.
type Client struct {
	httpClient *http.Client
}

// New creates a client with the default timeout.
func New() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// SetTimeout sets the round-trip ceiling.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// Envelope is the uniform result of a successful execution. A non-2xx
// status is still an Envelope; only transport-level failures are errors.
type Envelope struct {
	StatusCode int               `json:"status_code"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers"`
	// Body is always valid JSON: the parsed response value, or the raw
	// response text wrapped as a JSON string when parsing failed.
	Body     json.RawMessage `json:"body"`
	JSONBody bool            `json:"json_body"`
	RawText  string          `json:"-"`
	Size     int64           `json:"size"`
	Duration time.Duration   `json:"-"`
	Timing   *TimingDetail   `json:"-"`
}

// DurationMs is the wall-clock round trip in whole milliseconds.
func (e *Envelope) DurationMs() int64 {
	return e.Duration.Milliseconds()
}

// Validate checks a description without touching the network. It
// rejects unknown methods, non-absolute URLs, and malformed header
// names. Header names are rejected here rather than passed through to
// the transport so the user sees a validation error, not a network one.
func Validate(desc *request.Description) error {
	if !request.ValidMethod(desc.Method) {
		return errdef.New(errdef.CodeInvalidMethod, "unsupported HTTP method: %q", desc.Method)
	}
	if strings.TrimSpace(desc.URL) == "" {
		return errdef.New(errdef.CodeInvalidURL, "URL cannot be empty")
	}
	u, err := url.Parse(desc.URL)
	if err != nil {
		return errdef.Wrap(errdef.CodeInvalidURL, err, "invalid URL")
	}
	if u.Scheme == "" || u.Host == "" {
		return errdef.New(errdef.CodeInvalidURL, "URL must be absolute: %q", desc.URL)
	}
	for name := range desc.Headers {
		if !validHeaderName(name) {
			return errdef.New(errdef.CodeInvalidHeader, "invalid header name: %q", name)
		}
	}
	return nil
}

// BuildURL appends the percent-encoded query string to the base URL,
// preserving parameter order. A base URL that already carries a query
// string is extended with '&' instead of '?'.
func BuildURL(desc *request.Description) string {
	if len(desc.QueryParams) == 0 {
		return desc.URL
	}
	pairs := make([]string, 0, len(desc.QueryParams))
	for _, p := range desc.QueryParams {
		pairs = append(pairs, url.QueryEscape(p.Key)+"="+url.QueryEscape(p.Value))
	}
	sep := "?"
	if strings.Contains(desc.URL, "?") {
		sep = "&"
	}
	return desc.URL + sep + strings.Join(pairs, "&")
}

// Execute validates desc, performs the HTTP call, and normalizes the
// response. Duration is measured strictly around the network round
// trip: from dispatch to full body receipt, excluding validation and
// encoding time.
func (c *Client) Execute(ctx context.Context, desc *request.Description) (*Envelope, error) {
	if err := Validate(desc); err != nil {
		return nil, err
	}

	fullURL := BuildURL(desc)

	// Body is carried only for methods that conventionally have one,
	// regardless of what the description contains.
	var wire []byte
	if request.AllowsBody(desc.Method) && desc.Body != nil {
		encoded, err := desc.Body.Wire()
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeMalformedBody, err, "encoding request body")
		}
		wire = encoded
	}

	var bodyReader io.Reader
	if wire != nil {
		bodyReader = bytes.NewReader(wire)
	}

	httpReq, err := http.NewRequestWithContext(ctx, desc.Method, fullURL, bodyReader)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeInvalidURL, err, "creating request")
	}

	if wire != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	// User headers win over any implicit default.
	for k, v := range desc.Headers {
		httpReq.Header.Set(k, v)
	}

	rec := newTraceRecorder()
	httpReq = httpReq.WithContext(rec.wrap(httpReq.Context()))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	transferStart := time.Now()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	duration := time.Since(start)

	return &Envelope{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    flattenHeaders(resp.Header),
		Body:       normalizeBody(respBody),
		JSONBody:   isJSON(respBody),
		RawText:    string(respBody),
		Size:       int64(len(respBody)),
		Duration:   duration,
		Timing:     rec.detail(duration, time.Since(transferStart)),
	}, nil
}

// classifyTransport maps a transport failure onto the error taxonomy.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return errdef.Wrap(errdef.CodeCancelled, err, "request cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return errdef.Wrap(errdef.CodeTimeout, err, "request timed out")
	}
	return errdef.Wrap(errdef.CodeNetwork, err, "network error")
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// flattenHeaders collapses multi-value response headers to a single
// value per name, keeping the last value. Documented limitation: the
// envelope never exposes repeated headers.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[name] = values[len(values)-1]
		}
	}
	return out
}

// normalizeBody returns the response body as a JSON value: the body
// itself when it parses, otherwise the raw text as a JSON string. A
// non-JSON response is never an execution error.
func normalizeBody(body []byte) json.RawMessage {
	if isJSON(body) {
		return json.RawMessage(body)
	}
	encoded, _ := json.Marshal(string(body))
	return encoded
}

func isJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && json.Valid(trimmed)
}

// validHeaderName reports whether name is a legal HTTP field name
// (RFC 7230 token).
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isTokenChar(name[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
