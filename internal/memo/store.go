package memo

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Source tells where an appended record came from.
type Source string

const (
	SourceHistory Source = "history"
	SourceLive    Source = "live"
)

// Handler is notified for every record accepted by the store, in order. It
// must not call back into the store.
type Handler func(Record, Source)

// Store is the ordered, de-duplicated list of memos. External callers can only
// append; records are never removed or reordered.
type Store struct {
	mu sync.RWMutex
	// notifyMu is taken before mu is released so handlers observe records in
	// store order. Handlers must not call back into the store.
	notifyMu sync.Mutex

	records  []Record
	seen     map[common.Hash]struct{}
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	handler Handler
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		seen: make(map[common.Hash]struct{}),
	}
}

// AppendBatch merges a historical batch, keeping the batch order. Records
// already present are skipped. It returns the number of records added.
func (s *Store) AppendBatch(records []Record) int {
	s.mu.Lock()
	added := make([]Record, 0, len(records))
	for _, r := range records {
		if s.insertLocked(r) {
			added = append(added, r)
		}
	}
	handlers := s.handlersLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, r := range added {
		notify(handlers, r, SourceHistory)
	}
	return len(added)
}

// AppendOne appends a live record. It reports false when the record was a
// duplicate and was dropped.
func (s *Store) AppendOne(r Record) bool {
	s.mu.Lock()
	ok := s.insertLocked(r)
	handlers := s.handlersLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	if ok {
		notify(handlers, r, SourceLive)
	}
	return ok
}

// Snapshot returns a copy of all records in arrival order.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Subscribe registers a handler for accepted records and returns the function
// that removes it.
func (s *Store) Subscribe(handler Handler) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers = append(s.handlers, handlerEntry{id: id, handler: handler})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, h := range s.handlers {
			if h.id == id {
				s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

// SnapshotAndSubscribe returns the current records and registers handler in a
// single step, so the handler sees exactly the records appended after the
// snapshot.
func (s *Store) SnapshotAndSubscribe(handler Handler) ([]Record, func()) {
	s.mu.Lock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	id := s.nextID
	s.nextID++
	s.handlers = append(s.handlers, handlerEntry{id: id, handler: handler})
	s.mu.Unlock()

	return out, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, h := range s.handlers {
			if h.id == id {
				s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) insertLocked(r Record) bool {
	key := r.Key()
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.records = append(s.records, r)
	return true
}

func (s *Store) handlersLocked() []handlerEntry {
	if len(s.handlers) == 0 {
		return nil
	}
	handlers := make([]handlerEntry, len(s.handlers))
	copy(handlers, s.handlers)
	return handlers
}

func notify(handlers []handlerEntry, r Record, src Source) {
	for _, h := range handlers {
		h.handler(r, src)
	}
}
