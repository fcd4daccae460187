package cache

import (
	"context"
	"sync"
	"time"
)

// Entry is a stored value with the time it was fetched.
type Entry struct {
	Value    []byte
	StoredAt time.Time
}

// Store holds encoded entries. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the entry for key. ok is false on miss or expiry.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)
	// Set stores entry for ttl; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// DefaultMaxEntries bounds a MemoryStore.
const DefaultMaxEntries = 1000

// MemoryStore is an in-process Store with LRU eviction.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	accessList []string // LRU tracking: most recent at end
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries
// (0 = DefaultMaxEntries).
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		accessList: make([]string, 0, maxEntries),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.deleteLocked(key)
		return Entry{}, false, nil
	}
	s.recordAccessLocked(key)
	return e.entry, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = &memoryEntry{entry: entry, expiresAt: expiresAt}
	s.recordAccessLocked(key)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(key)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet read.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) deleteLocked(key string) {
	delete(s.entries, key)
	s.removeAccessLocked(key)
}

func (s *MemoryStore) recordAccessLocked(key string) {
	s.removeAccessLocked(key)
	s.accessList = append(s.accessList, key)
}

func (s *MemoryStore) removeAccessLocked(key string) {
	for i, k := range s.accessList {
		if k == key {
			s.accessList = append(s.accessList[:i], s.accessList[i+1:]...)
			return
		}
	}
}

func (s *MemoryStore) evictOldest() {
	if len(s.accessList) == 0 {
		return
	}
	oldest := s.accessList[0]
	s.accessList = s.accessList[1:]
	delete(s.entries, oldest)
}

var _ Store = (*MemoryStore)(nil)
