// Package store holds the ScheduleStore backends: bbolt (default), Postgres,
// Redis and an in-memory map for tests.
package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

// Backend identifies the persistence implementation.
type Backend string

const (
	BackendBolt     Backend = "bolt"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendMemory   Backend = "memory"
)

// ParseBackend normalizes a backend name from configuration.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendBolt, nil
	case BackendBolt, BackendPostgres, BackendRedis, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("unknown store backend %q", s)
	}
}

// Options configures Open.
type Options struct {
	Backend     Backend
	BoltPath    string
	DatabaseURL string
	Redis       RedisConfig
}

// Open builds the ScheduleStore selected by opts.Backend.
func Open(opts Options) (port.ScheduleStore, error) {
	switch opts.Backend {
	case BackendBolt, "":
		return NewBoltStore(opts.BoltPath)
	case BackendPostgres:
		return NewPostgresStore(opts.DatabaseURL)
	case BackendRedis:
		return NewRedisStore(opts.Redis)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// applyMutation runs mutate on a copy of cur and checks the result against
// the post lifecycle. The returned post is what the backend should persist.
func applyMutation(cur *domain.ScheduledPost, mutate port.MutateFunc, now time.Time) (*domain.ScheduledPost, error) {
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	if cur.Status.Terminal() {
		return nil, &port.InvalidTransitionError{
			ID: cur.ID, From: string(cur.Status), To: string(next.Status),
			Reason: "post is already " + string(cur.Status),
		}
	}
	if !next.Status.Valid() || !domain.CanTransition(cur.Status, next.Status) {
		return nil, &port.InvalidTransitionError{ID: cur.ID, From: string(cur.Status), To: string(next.Status)}
	}
	if next.ID != cur.ID || next.Seq != cur.Seq || next.Content != cur.Content ||
		next.Platform != cur.Platform || !next.ScheduledFor.Equal(cur.ScheduledFor) ||
		!next.CreatedAt.Equal(cur.CreatedAt) {
		return nil, &port.InvalidTransitionError{
			ID: cur.ID, From: string(cur.Status), To: string(next.Status),
			Reason: "immutable field changed",
		}
	}
	if next.Result != nil && next.Status != domain.PostStatusPosted {
		return nil, &port.InvalidTransitionError{
			ID: cur.ID, From: string(cur.Status), To: string(next.Status),
			Reason: "result is only recorded on posted",
		}
	}

	next.UpdatedAt = now
	return next, nil
}

// claim stamps a dispatch lease on p.
func claim(p *domain.ScheduledPost, now time.Time, token string) {
	t := now
	p.ClaimedAt = &t
	p.ClaimToken = token
	p.UpdatedAt = now
}

// sortByDue orders posts by scheduled time, then creation order.
func sortByDue(posts []*domain.ScheduledPost) {
	slices.SortStableFunc(posts, func(a, b *domain.ScheduledPost) int {
		if c := a.ScheduledFor.Compare(b.ScheduledFor); c != 0 {
			return c
		}
		return compareSeq(a.Seq, b.Seq)
	})
}

// sortBySeq orders posts by creation order.
func sortBySeq(posts []*domain.ScheduledPost) {
	slices.SortStableFunc(posts, func(a, b *domain.ScheduledPost) int {
		return compareSeq(a.Seq, b.Seq)
	})
}

func compareSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func statusFilter(statuses []domain.PostStatus) func(domain.PostStatus) bool {
	if len(statuses) == 0 {
		return func(domain.PostStatus) bool { return true }
	}
	return func(s domain.PostStatus) bool { return slices.Contains(statuses, s) }
}

func notFound(id string) error {
	return &port.NotFoundError{Resource: "post", Key: id}
}
