// Package export renders a response envelope into the serializable
// shapes an external file-writer or terminal consumes. The core only
// produces bytes; dialogs and filesystem writes live elsewhere.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/pretty"

	"github.com/requill/requill/internal/core/executor"
)

// FullResponse is the "body + status/headers/duration" export shape.
type FullResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       json.RawMessage   `json:"body"`
	DurationMs int64             `json:"duration_ms"`
}

// Body returns the "body only" shape.
func Body(env *executor.Envelope) json.RawMessage {
	return env.Body
}

// Full returns the complete response shape.
func Full(env *executor.Envelope) FullResponse {
	return FullResponse{
		StatusCode: env.StatusCode,
		Headers:    env.Headers,
		Body:       env.Body,
		DurationMs: env.DurationMs(),
	}
}

// JSON marshals v and pretty-prints it with a trailing newline.
func JSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return pretty.Pretty(data), nil
}

// Text renders the envelope as a plain-text document: status line,
// headers in name order, then the raw response body.
func Text(env *executor.Envelope) string {
	var b strings.Builder

	status := env.Status
	if status == "" {
		status = fmt.Sprintf("%d", env.StatusCode)
	}
	fmt.Fprintf(&b, "%s\n", status)
	fmt.Fprintf(&b, "Duration: %dms\n", env.DurationMs())

	names := make([]string, 0, len(env.Headers))
	for name := range env.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, env.Headers[name])
	}

	b.WriteString("\n")
	b.WriteString(env.RawText)
	if !strings.HasSuffix(env.RawText, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}
