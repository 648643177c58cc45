package history

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/requill/requill/internal/core/kv"
	"github.com/requill/requill/internal/core/request"
)

func newTestStore(t *testing.T) (*Store, *kv.Store) {
	t.Helper()
	kvStore, err := kv.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kvStore.Close() })

	store, err := NewStore(kvStore, DefaultMaxEntries)
	if err != nil {
		t.Fatal(err)
	}
	return store, kvStore
}

func testEntry(method, url string, status int) Entry {
	return NewEntry(request.FormState{
		Method:   method,
		URL:      url,
		BodyMode: request.BodyModeForm,
	}, status, 100)
}

func TestAppendOrder(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Append(testEntry("GET", "https://a.example.com", 200)); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(testEntry("POST", "https://b.example.com", 201)); err != nil {
		t.Fatal(err)
	}

	entries := store.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Request.URL != "https://b.example.com" {
		t.Errorf("expected most recent first, got %s", entries[0].Request.URL)
	}
}

func TestEviction(t *testing.T) {
	store, _ := newTestStore(t)

	for i := 1; i <= 101; i++ {
		url := fmt.Sprintf("https://api.example.com/req/%d", i)
		if err := store.Append(testEntry("GET", url, 200)); err != nil {
			t.Fatal(err)
		}
	}

	entries := store.Entries()
	if len(entries) != 100 {
		t.Fatalf("expected log capped at 100, got %d", len(entries))
	}
	// Entry #1 is evicted; #101 is newest, #2 is oldest retained.
	if entries[0].Request.URL != "https://api.example.com/req/101" {
		t.Errorf("newest entry wrong: %s", entries[0].Request.URL)
	}
	if entries[99].Request.URL != "https://api.example.com/req/2" {
		t.Errorf("oldest retained entry wrong: %s", entries[99].Request.URL)
	}
}

func TestSearch(t *testing.T) {
	store, _ := newTestStore(t)

	store.Append(testEntry("GET", "https://api.example.com/users?page=1", 200))
	store.Append(testEntry("POST", "https://api.example.com/users", 201))
	store.Append(testEntry("GET", "https://other.example.org/health", 200))

	// Empty query returns everything, order preserved.
	all := store.Search("")
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Request.URL != "https://other.example.org/health" {
		t.Errorf("order not preserved: %s", all[0].Request.URL)
	}

	// Case-insensitive substring on the base URL.
	if got := store.Search("API.EXAMPLE"); len(got) != 2 {
		t.Errorf("expected 2 matches, got %d", len(got))
	}

	// Match on method name.
	if got := store.Search("post"); len(got) != 1 {
		t.Errorf("expected 1 POST match, got %d", len(got))
	}

	// The query string is not searched.
	if got := store.Search("page=1"); len(got) != 0 {
		t.Errorf("expected query string to be stripped, got %d matches", len(got))
	}

	// Search must not mutate.
	if store.Len() != 3 {
		t.Errorf("search mutated the log: %d", store.Len())
	}
}

func TestFuzzy(t *testing.T) {
	store, _ := newTestStore(t)

	store.Append(testEntry("GET", "https://api.example.com/users", 200))
	store.Append(testEntry("DELETE", "https://api.example.com/users/1", 204))

	got := store.Fuzzy("delusers")
	if len(got) == 0 {
		t.Fatal("expected a fuzzy match")
	}
	if got[0].Request.Method != "DELETE" {
		t.Errorf("expected DELETE ranked first, got %s", got[0].Request.Method)
	}

	if got := store.Fuzzy(""); len(got) != 2 {
		t.Errorf("empty fuzzy query should return everything, got %d", len(got))
	}
}

func TestClear(t *testing.T) {
	store, kvStore := newTestStore(t)

	store.Append(testEntry("GET", "https://api.example.com", 200))
	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}

	if got := store.Search(""); len(got) != 0 {
		t.Errorf("expected empty log after clear, got %d entries", len(got))
	}

	// Persisted storage reflects an empty array, not a missing key.
	data, ok, err := kvStore.Get(StorageKey)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected history key to exist")
	}
	if string(data) != "[]" {
		t.Errorf("expected empty array, got %s", data)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	kvStore, err := kv.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer kvStore.Close()

	store, err := NewStore(kvStore, DefaultMaxEntries)
	if err != nil {
		t.Fatal(err)
	}
	entry := testEntry("PUT", "https://api.example.com/items/7", 200)
	if err := store.Append(entry); err != nil {
		t.Fatal(err)
	}

	// A fresh store over the same kv sees the persisted log.
	reopened, err := NewStore(kvStore, DefaultMaxEntries)
	if err != nil {
		t.Fatal(err)
	}
	entries := reopened.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", len(entries))
	}
	if entries[0].ID != entry.ID {
		t.Errorf("entry id mismatch: %s != %s", entries[0].ID, entry.ID)
	}
	if entries[0].Summary.StatusCode != 200 || !entries[0].Summary.Success {
		t.Errorf("summary not preserved: %+v", entries[0].Summary)
	}
}

func TestStoredFormIsJSONArray(t *testing.T) {
	store, kvStore := newTestStore(t)

	store.Append(testEntry("GET", "https://api.example.com", 200))

	data, _, err := kvStore.Get(StorageKey)
	if err != nil {
		t.Fatal(err)
	}
	var arr []Entry
	if err := json.Unmarshal(data, &arr); err != nil {
		t.Fatalf("stored value is not a JSON array of entries: %v", err)
	}
	if len(arr) != 1 {
		t.Errorf("expected 1 stored entry, got %d", len(arr))
	}
}

func TestEntrySummary(t *testing.T) {
	ok := NewEntry(request.FormState{Method: "GET", URL: "https://x"}, 201, 50)
	if !ok.Summary.Success {
		t.Error("2xx must be a success")
	}
	redirect := NewEntry(request.FormState{Method: "GET", URL: "https://x"}, 302, 50)
	if !redirect.Summary.Success {
		t.Error("3xx must be a success")
	}
	clientErr := NewEntry(request.FormState{Method: "GET", URL: "https://x"}, 404, 50)
	if clientErr.Summary.Success {
		t.Error("4xx must not be a success")
	}
	if ok.ID == "" || ok.Timestamp == 0 {
		t.Error("entry must carry an id and timestamp")
	}
}
