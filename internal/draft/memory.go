package draft

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	cp        Checkpoint
	expiresAt time.Time
}

// MemoryStore keeps checkpoints in process. Save and Load both restart the
// idle TTL. Expired items are dropped on access and by Sweep.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{items: make(map[string]memoryItem), ttl: ttl, now: time.Now}
}

// WithClock overrides the time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cp.UpdatedAt = now
	s.items[sessionID] = memoryItem{cp: cp, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[sessionID]
	if !ok {
		return Checkpoint{}, false, nil
	}
	now := s.now()
	if !now.Before(item.expiresAt) {
		delete(s.items, sessionID)
		return Checkpoint{}, false, nil
	}
	item.expiresAt = now.Add(s.ttl)
	s.items[sessionID] = item
	return item.cp, true, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sessionID)
	return nil
}

// Sweep drops expired items and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, item := range s.items {
		if !now.Before(item.expiresAt) {
			delete(s.items, k)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

var _ Store = (*MemoryStore)(nil)
