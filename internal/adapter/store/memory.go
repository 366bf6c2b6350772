package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

// MemoryStore keeps posts in a map. It is not durable and exists for tests
// and throwaway runs.
type MemoryStore struct {
	mu    sync.RWMutex
	clock func() time.Time
	posts map[string]*domain.ScheduledPost
	seq   uint64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clock: time.Now,
		posts: make(map[string]*domain.ScheduledPost),
	}
}

var _ port.ScheduleStore = (*MemoryStore)(nil)

// Insert stores a copy of p.
func (s *MemoryStore) Insert(ctx context.Context, p *domain.ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[p.ID]; ok {
		return &port.DuplicateIDError{ID: p.ID}
	}
	s.seq++
	p.Seq = s.seq
	s.posts[p.ID] = p.Clone()
	return nil
}

// Get returns a copy of the post.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, notFound(id)
	}
	return p.Clone(), nil
}

// List returns posts in creation order.
func (s *MemoryStore) List(ctx context.Context, statuses ...domain.PostStatus) ([]*domain.ScheduledPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match := statusFilter(statuses)
	out := make([]*domain.ScheduledPost, 0, len(s.posts))
	for _, p := range s.posts {
		if match(p.Status) {
			out = append(out, p.Clone())
		}
	}
	sortBySeq(out)
	return out, nil
}

// Update applies mutate under the write lock.
func (s *MemoryStore) Update(ctx context.Context, id string, mutate port.MutateFunc) (*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.posts[id]
	if !ok {
		return nil, notFound(id)
	}
	next, err := applyMutation(cur, mutate, s.clock())
	if err != nil {
		return nil, err
	}
	s.posts[id] = next
	return next.Clone(), nil
}

// ClaimDue leases every claimable post under the write lock.
func (s *MemoryStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration) ([]*domain.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	var out []*domain.ScheduledPost
	for _, p := range s.posts {
		if !p.Claimable(now, lease) {
			continue
		}
		claim(p, now, token)
		out = append(out, p.Clone())
	}
	sortByDue(out)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
