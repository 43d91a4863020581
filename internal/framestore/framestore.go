package framestore

import "sync"

// Store is the shared frame mailbox: one value per stream holding only the
// most recent encoded frame. Values are overwritten, never appended, and
// deleted on stream teardown. Readers must treat values as possibly stale
// or absent.
type Store interface {
	// Put overwrites the current frame for a stream.
	Put(streamID string, data []byte) error
	// Get returns the current frame, or (nil, nil) when absent.
	Get(streamID string) ([]byte, error)
	// Delete removes the stream's entry. Deleting an absent entry is a no-op.
	Delete(streamID string) error
	// DeleteAll removes every entry. Used by reset.
	DeleteAll() error
}

// MemoryStore is an in-process Store used in tests and single-process
// deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	frames map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{frames: make(map[string][]byte)}
}

func (s *MemoryStore) Put(streamID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.frames[streamID] = buf
	return nil
}

func (s *MemoryStore) Get(streamID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.frames[streamID]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (s *MemoryStore) Delete(streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frames, streamID)
	return nil
}

func (s *MemoryStore) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = make(map[string][]byte)
	return nil
}
