package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

const boltPostsBucket = "posts"

// BoltStore persists posts as JSON records in a single bbolt file.
// Every write is one fsync'd transaction, so a crash leaves either the old
// or the new record, never a torn one.
type BoltStore struct {
	db    *bolt.DB
	clock func() time.Time
	once  sync.Once
}

// NewBoltStore opens (or creates) the schedule database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("bolt store path is required")
	}

	cleaned := filepath.Clean(path)
	if dir := filepath.Dir(cleaned); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := bolt.Open(cleaned, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltPostsBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt store: %w", err)
	}

	return &BoltStore{db: db, clock: time.Now}, nil
}

var _ port.ScheduleStore = (*BoltStore)(nil)

// Insert writes a new record and assigns its sequence from the bucket counter.
func (s *BoltStore) Insert(ctx context.Context, p *domain.ScheduledPost) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := postsBucket(tx)
		if err != nil {
			return err
		}
		if b.Get([]byte(p.ID)) != nil {
			return &port.DuplicateIDError{ID: p.ID}
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		p.Seq = seq
		return putPost(b, p)
	})
}

// Get reads one record.
func (s *BoltStore) Get(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	var out *domain.ScheduledPost
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := postsBucket(tx)
		if err != nil {
			return err
		}
		out, err = getPost(b, id)
		return err
	})
	return out, err
}

// List scans the bucket and returns matching posts in creation order.
func (s *BoltStore) List(ctx context.Context, statuses ...domain.PostStatus) ([]*domain.ScheduledPost, error) {
	match := statusFilter(statuses)
	var out []*domain.ScheduledPost
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := postsBucket(tx)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var p domain.ScheduledPost
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode post %s: %w", k, err)
			}
			if match(p.Status) {
				out = append(out, &p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortBySeq(out)
	return out, nil
}

// Update runs the read-modify-write inside one bolt transaction.
func (s *BoltStore) Update(ctx context.Context, id string, mutate port.MutateFunc) (*domain.ScheduledPost, error) {
	var out *domain.ScheduledPost
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := postsBucket(tx)
		if err != nil {
			return err
		}
		cur, err := getPost(b, id)
		if err != nil {
			return err
		}
		next, err := applyMutation(cur, mutate, s.clock())
		if err != nil {
			return err
		}
		if err := putPost(b, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

// ClaimDue leases due posts. bbolt admits one writer at a time, which is
// what keeps concurrent claims disjoint.
func (s *BoltStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration) ([]*domain.ScheduledPost, error) {
	token := uuid.NewString()
	var out []*domain.ScheduledPost
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := postsBucket(tx)
		if err != nil {
			return err
		}

		var due []*domain.ScheduledPost
		if err := b.ForEach(func(k, v []byte) error {
			var p domain.ScheduledPost
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode post %s: %w", k, err)
			}
			if p.Claimable(now, lease) {
				due = append(due, &p)
			}
			return nil
		}); err != nil {
			return err
		}

		// Writing inside ForEach is not allowed, so stamp afterwards.
		for _, p := range due {
			claim(p, now, token)
			if err := putPost(b, p); err != nil {
				return err
			}
		}
		out = due
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByDue(out)
	return out, nil
}

// Close shuts down the bolt DB.
func (s *BoltStore) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

func postsBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(boltPostsBucket))
	if b == nil {
		return nil, errors.New("posts bucket missing")
	}
	return b, nil
}

func getPost(b *bolt.Bucket, id string) (*domain.ScheduledPost, error) {
	data := b.Get([]byte(id))
	if data == nil {
		return nil, notFound(id)
	}
	var p domain.ScheduledPost
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", id, err)
	}
	return &p, nil
}

func putPost(b *bolt.Bucket, p *domain.ScheduledPost) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode post %s: %w", p.ID, err)
	}
	return b.Put([]byte(p.ID), payload)
}
