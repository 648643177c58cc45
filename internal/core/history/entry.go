// Package history maintains the bounded, persisted log of past
// request executions.
package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/requill/requill/internal/core/request"
)

// Summary is the compact outcome kept per entry. Full response bodies
// and headers are intentionally not retained.
type Summary struct {
	StatusCode int   `json:"statusCode"`
	DurationMs int64 `json:"durationMs"`
	Success    bool  `json:"success"`
}

// Entry is an immutable snapshot pairing the request as composed in
// the form with its outcome summary.
type Entry struct {
	ID        string            `json:"id"`
	Timestamp int64             `json:"timestamp"`
	Request   request.FormState `json:"request"`
	Summary   Summary           `json:"response"`
}

// NewEntry creates an entry for a completed execution. Success means
// any status below 400: an HTTP-level error is still history-worthy.
func NewEntry(form request.FormState, statusCode int, durationMs int64) Entry {
	now := time.Now()
	return Entry{
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		Timestamp: now.UnixMilli(),
		Request:   form,
		Summary: Summary{
			StatusCode: statusCode,
			DurationMs: durationMs,
			Success:    statusCode < 400,
		},
	}
}
