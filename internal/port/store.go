package port

import (
	"context"
	"time"

	"github.com/arturoeanton/milestoner/internal/domain"
)

// MutateFunc edits a post in place inside a store transaction.
// Returning an error aborts the update without writing.
type MutateFunc func(p *domain.ScheduledPost) error

// ScheduleStore persists ScheduledPost records durably.
// All methods are safe for concurrent use.
type ScheduleStore interface {
	// Insert stores a new post and assigns its creation sequence.
	// Fails with *DuplicateIDError when the id already exists.
	Insert(ctx context.Context, p *domain.ScheduledPost) error

	// Get returns a copy of the post or *NotFoundError.
	Get(ctx context.Context, id string) (*domain.ScheduledPost, error)

	// List returns posts in creation order, filtered by status when any are given.
	List(ctx context.Context, statuses ...domain.PostStatus) ([]*domain.ScheduledPost, error)

	// Update applies mutate atomically. Fails with *NotFoundError or
	// *InvalidTransitionError when the result breaks the post lifecycle.
	Update(ctx context.Context, id string, mutate MutateFunc) (*domain.ScheduledPost, error)

	// ClaimDue atomically leases every pending post due at now that no live
	// claim holds, ordered by scheduled time then creation order.
	// Concurrent callers receive disjoint sets.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration) ([]*domain.ScheduledPost, error)

	// Close releases the underlying resources.
	Close() error
}
