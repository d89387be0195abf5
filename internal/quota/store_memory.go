package quota

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu   sync.Mutex
	used map[string]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{used: make(map[string]int)}
}

func (s *memoryStore) Reserve(ctx context.Context, day string, cost, limit int) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	used := s.used[day]
	if used+cost > limit {
		return used, false, nil
	}
	used += cost
	s.used[day] = used
	return used, true, nil
}

func (s *memoryStore) Release(ctx context.Context, day string, cost int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	used := s.used[day] - cost
	if used < 0 {
		used = 0
	}
	s.used[day] = used
	return nil
}

func (s *memoryStore) Used(ctx context.Context, day string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used[day], nil
}
