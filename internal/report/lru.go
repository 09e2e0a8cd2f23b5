package report

import (
	"container/list"
	"context"
	"sync"
)

// LRUStore is an in-memory LRU cache that delegates to a backing Store
// on miss. Saves are written through.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List // most recent at front; values are *Entry
	items map[string]*list.Element
}

// NewLRUStore creates an LRU cache with the given capacity that
// delegates to back. Capacity must be >= 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save writes the entry to the backing store and caches it.
func (s *LRUStore) Save(ctx context.Context, entry *Entry) error {
	if err := s.back.Save(ctx, entry); err != nil {
		return err
	}
	s.put(entry)
	return nil
}

// Load checks the cache first. On miss, loads from the backing store
// and promotes the entry into the cache.
func (s *LRUStore) Load(ctx context.Context, runID string) (*Entry, error) {
	s.mu.Lock()
	if el, ok := s.items[runID]; ok {
		s.order.MoveToFront(el)
		e := el.Value.(*Entry)
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	entry, err := s.back.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	s.put(entry)
	return entry, nil
}

// List always reads through to the backing store.
func (s *LRUStore) List(ctx context.Context, limit int) ([]*Entry, error) {
	return s.back.List(ctx, limit)
}

// Len reports the number of cached entries.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *LRUStore) put(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[entry.RunID]; ok {
		el.Value = entry
		s.order.MoveToFront(el)
		return
	}
	s.items[entry.RunID] = s.order.PushFront(entry)
	for s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*Entry).RunID)
	}
}
