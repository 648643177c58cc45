package history

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/requill/requill/internal/core/kv"
	"github.com/requill/requill/internal/errdef"
)

// StorageKey is the fixed key the log lives under in the kv store.
const StorageKey = "history"

// DefaultMaxEntries caps the log.
const DefaultMaxEntries = 100

// Store is the bounded history log: most-recent-first, capped, with
// strict prepend-and-truncate eviction. The full log is written back
// to persistent storage on every mutation.
type Store struct {
	kv         *kv.Store
	maxEntries int

	mu      sync.Mutex
	entries []Entry
}

// NewStore loads the log from the kv store. A missing or empty stored
// value yields an empty log; a corrupt one is an error so the caller
// can decide whether to start over.
func NewStore(kvs *kv.Store, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	s := &Store{kv: kvs, maxEntries: maxEntries}

	data, ok, err := kvs.Get(StorageKey)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodePersistence, err, "loading history")
	}
	if ok && len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, errdef.Wrap(errdef.CodePersistence, err, "parsing stored history")
		}
		if len(s.entries) > s.maxEntries {
			s.entries = s.entries[:s.maxEntries]
		}
	}
	return s, nil
}

// Append prepends an entry, evicts past the cap, and persists the full
// log synchronously. A persistence failure leaves the in-memory log
// updated and returns a CodePersistence error: the caller reports it
// but the request flow must not fail on it.
func (s *Store) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]Entry{entry}, s.entries...)
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[:s.maxEntries]
	}
	return s.persistLocked()
}

// Clear empties the log and persists the empty state. Irreversible;
// confirmation is the caller's job.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return s.persistLocked()
}

// Entries returns a copy of the log, most recent first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the current log size.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Search filters the log by case-insensitive substring match against
// the entry's base URL (query string stripped) or its method. An empty
// query returns the full log. Order is preserved; the read is pure.
func (s *Store) Search(query string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(query) == "" {
		out := make([]Entry, len(s.entries))
		copy(out, s.entries)
		return out
	}

	q := strings.ToLower(query)
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		url := strings.ToLower(baseURL(e.Request.URL))
		method := strings.ToLower(e.Request.Method)
		if strings.Contains(url, q) || strings.Contains(method, q) {
			out = append(out, e)
		}
	}
	return out
}

// Fuzzy returns entries ranked by fuzzy match quality against
// "METHOD url", for typeahead-style lookups. An empty query returns
// the full log in insertion order.
func (s *Store) Fuzzy(query string) []Entry {
	if strings.TrimSpace(query) == "" {
		return s.Entries()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	targets := make([]string, len(s.entries))
	for i, e := range s.entries {
		targets[i] = e.Request.Method + " " + baseURL(e.Request.URL)
	}
	matches := fuzzy.Find(query, targets)
	out := make([]Entry, 0, len(matches))
	for _, m := range matches {
		out = append(out, s.entries[m.Index])
	}
	return out
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.entriesOrEmptyLocked())
	if err != nil {
		return errdef.Wrap(errdef.CodePersistence, err, "encoding history")
	}
	if err := s.kv.Put(StorageKey, data); err != nil {
		return errdef.Wrap(errdef.CodePersistence, err, "writing history")
	}
	return nil
}

// entriesOrEmptyLocked keeps the stored form a JSON array even when
// the log is empty.
func (s *Store) entriesOrEmptyLocked() []Entry {
	if s.entries == nil {
		return []Entry{}
	}
	return s.entries
}

// baseURL strips the query string from a URL.
func baseURL(u string) string {
	if i := strings.Index(u, "?"); i >= 0 {
		return u[:i]
	}
	return u
}
