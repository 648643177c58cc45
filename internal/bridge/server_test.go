package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/requill/requill/internal/core/executor"
	"github.com/requill/requill/internal/core/history"
	"github.com/requill/requill/internal/core/kv"
	"github.com/requill/requill/internal/session"
)

// newTestBridge wires a full stack: upstream API stub, session with an
// in-memory history store, and the bridge handler under test.
func newTestBridge(t *testing.T) (*httptest.Server, *httptest.Server) {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		case "/error":
			w.WriteHeader(500)
		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"path":%q}`, r.URL.Path)
		}
	}))
	t.Cleanup(upstream.Close)

	kvStore, err := kv.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kvStore.Close() })

	histStore, err := history.NewStore(kvStore, history.DefaultMaxEntries)
	if err != nil {
		t.Fatal(err)
	}
	sess := session.New(executor.New(), histStore, nil, 5*time.Second)
	srv := httptest.NewServer(New(sess, nil).Handler())
	t.Cleanup(srv.Close)

	return srv, upstream
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestExecuteEndpoint(t *testing.T) {
	bridge, upstream := newTestBridge(t)

	resp := postJSON(t, bridge.URL+"/api/execute", map[string]any{
		"method": "GET",
		"url":    upstream.URL + "/users",
	})
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var envelope struct {
		StatusCode int               `json:"status_code"`
		Headers    map[string]string `json:"headers"`
		Body       json.RawMessage   `json:"body"`
		DurationMs int64             `json:"duration_ms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.StatusCode != 200 {
		t.Errorf("upstream status: %d", envelope.StatusCode)
	}
	if string(envelope.Body) != `{"path":"/users"}` {
		t.Errorf("unexpected body: %s", envelope.Body)
	}
	if envelope.Headers["Content-Type"] != "application/json" {
		t.Errorf("headers not flattened: %v", envelope.Headers)
	}
}

func TestExecuteEndpoint_ValidationError(t *testing.T) {
	bridge, _ := newTestBridge(t)

	resp := postJSON(t, bridge.URL+"/api/execute", map[string]any{
		"method": "GET",
		"url":    "",
	})
	defer resp.Body.Close()

	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "invalid_url" {
		t.Errorf("expected invalid_url, got %s", body.Error.Code)
	}
}

func TestExecuteEndpoint_MalformedBody(t *testing.T) {
	bridge, upstream := newTestBridge(t)

	resp := postJSON(t, bridge.URL+"/api/execute", map[string]any{
		"method":   "POST",
		"url":      upstream.URL,
		"bodyMode": "raw",
		"rawBody":  `{"a":1`,
	})
	defer resp.Body.Close()

	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "malformed_body") {
		t.Errorf("expected malformed_body code: %s", data)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	bridge, upstream := newTestBridge(t)

	for _, path := range []string{"/users", "/teams", "/error"} {
		resp := postJSON(t, bridge.URL+"/api/execute", map[string]any{
			"method": "GET",
			"url":    upstream.URL + path,
		})
		resp.Body.Close()
	}

	// Full log, most recent first.
	resp, err := http.Get(bridge.URL + "/api/history")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var entries []history.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !strings.HasSuffix(entries[0].Request.URL, "/error") {
		t.Errorf("most recent first violated: %s", entries[0].Request.URL)
	}
	if entries[0].Summary.Success {
		t.Error("the 500 execution must be marked unsuccessful")
	}

	// Substring search.
	resp, err = http.Get(bridge.URL + "/api/history?q=teams")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var filtered []history.Entry
	if err := json.NewDecoder(resp.Body).Decode(&filtered); err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 match, got %d", len(filtered))
	}

	// Restore.
	resp, err = http.Get(bridge.URL + "/api/history/" + entries[1].ID + "/restore")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("restore: expected 200, got %d", resp.StatusCode)
	}
	var draft struct {
		Method string `json:"method"`
		URL    string `json:"url"`
		Params []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"queryParams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&draft); err != nil {
		t.Fatal(err)
	}
	if draft.Method != "GET" || !strings.HasSuffix(draft.URL, "/teams") {
		t.Errorf("unexpected draft: %+v", draft)
	}
	if len(draft.Params) != 1 {
		t.Errorf("expected one fallback param row, got %d", len(draft.Params))
	}

	// Restore of a missing id.
	resp, err = http.Get(bridge.URL + "/api/history/nope/restore")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	// Clear.
	req, _ := http.NewRequest(http.MethodDelete, bridge.URL+"/api/history", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 204 {
		t.Fatalf("clear: expected 204, got %d", resp.StatusCode)
	}
	resp, err = http.Get(bridge.URL + "/api/history")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var after []history.Entry
	if err := json.NewDecoder(resp.Body).Decode(&after); err != nil {
		t.Fatal(err)
	}
	if len(after) != 0 {
		t.Errorf("expected empty log after clear, got %d", len(after))
	}
}

func TestExportEndpoint(t *testing.T) {
	bridge, upstream := newTestBridge(t)

	// No response yet.
	resp, err := http.Get(bridge.URL + "/api/export/response")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 before any execution, got %d", resp.StatusCode)
	}

	postJSON(t, bridge.URL+"/api/execute", map[string]any{
		"method": "GET",
		"url":    upstream.URL + "/users",
	}).Body.Close()

	// Body-only JSON.
	resp, err = http.Get(bridge.URL + "/api/export/response?mode=body")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	var body map[string]string
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("body export not JSON: %v", err)
	}
	if body["path"] != "/users" {
		t.Errorf("unexpected export: %s", data)
	}

	// Full text rendering.
	resp, err = http.Get(bridge.URL + "/api/export/response?format=text")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain, got %s", ct)
	}
	text, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(text), "200") {
		t.Errorf("expected status in text export: %s", text)
	}
}

func TestCORS(t *testing.T) {
	bridge, _ := newTestBridge(t)

	req, _ := http.NewRequest(http.MethodOptions, bridge.URL+"/api/execute", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 204 {
		t.Errorf("preflight: expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestEventSocket(t *testing.T) {
	bridge, upstream := newTestBridge(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(bridge.URL, "http") + "/api/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dialing event socket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	resp := postJSON(t, bridge.URL+"/api/send", map[string]any{
		"method": "GET",
		"url":    upstream.URL + "/users",
	})
	defer resp.Body.Close()
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var accepted struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatal(err)
	}

	// Read until the completed event for our dispatch arrives. A started
	// event may interleave in either order relative to completion.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("reading event: %v", err)
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatal(err)
		}
		if event.ID != accepted.ID || event.Type != EventCompleted {
			continue
		}
		if event.StatusCode != 200 {
			t.Errorf("completed event status: %d", event.StatusCode)
		}
		if event.Response == nil {
			t.Error("completed event missing response")
		}
		break
	}
}
