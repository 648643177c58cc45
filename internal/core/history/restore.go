package history

import "github.com/requill/requill/internal/core/request"

// Restore reconstructs a form draft from a history entry. Every row
// set that was empty at capture time comes back as a single empty row
// so the form never renders with zero rows. Pure transform: the entry
// is not modified.
func Restore(entry Entry) request.FormState {
	form := entry.Request

	form.Params = orEmptyRow(form.Params)
	form.Headers = orEmptyRow(form.Headers)
	form.BodyRows = orEmptyRow(form.BodyRows)

	if form.Method == "" {
		form.Method = "GET"
	}
	if form.BodyMode == "" {
		form.BodyMode = request.BodyModeForm
	}
	return form
}

func orEmptyRow(rows []request.KVPair) []request.KVPair {
	if len(rows) == 0 {
		return []request.KVPair{{}}
	}
	out := make([]request.KVPair, len(rows))
	copy(out, rows)
	return out
}
