package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

// RedisConfig defines Redis connection settings.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	Database int
	Prefix   string
}

// RedisStore keeps one JSON value per post plus two sorted sets: creation
// order and the pending posts keyed by scheduled time. Writes use
// WATCH/MULTI/EXEC and retry on conflict.
type RedisStore struct {
	client *redis.Client
	clock  func() time.Time
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "milestoner"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, clock: time.Now, prefix: prefix}, nil
}

var _ port.ScheduleStore = (*RedisStore)(nil)

func (s *RedisStore) postKey(id string) string { return s.prefix + ":post:" + id }
func (s *RedisStore) orderKey() string         { return s.prefix + ":posts" }
func (s *RedisStore) dueKey() string           { return s.prefix + ":due" }
func (s *RedisStore) seqKey() string           { return s.prefix + ":seq" }

// Insert writes the post if its key does not exist yet.
func (s *RedisStore) Insert(ctx context.Context, p *domain.ScheduledPost) error {
	key := s.postKey(p.ID)
	return s.retry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return &port.DuplicateIDError{ID: p.ID}
			}

			seq, err := tx.Incr(ctx, s.seqKey()).Result()
			if err != nil {
				return err
			}
			p.Seq = uint64(seq)
			payload, err := json.Marshal(p)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				pipe.ZAdd(ctx, s.orderKey(), redis.Z{Score: float64(p.Seq), Member: p.ID})
				if p.Status == domain.PostStatusPending {
					pipe.ZAdd(ctx, s.dueKey(), redis.Z{Score: dueScore(p.ScheduledFor), Member: p.ID})
				}
				return nil
			})
			return err
		}, key)
	})
}

// Get reads one post.
func (s *RedisStore) Get(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	return s.read(ctx, s.client, id)
}

// List returns posts in creation order.
func (s *RedisStore) List(ctx context.Context, statuses ...domain.PostStatus) ([]*domain.ScheduledPost, error) {
	ids, err := s.client.ZRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.postKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	match := statusFilter(statuses)
	out := make([]*domain.ScheduledPost, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var p domain.ScheduledPost
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode post %s: %w", ids[i], err)
		}
		if match(p.Status) {
			out = append(out, &p)
		}
	}
	return out, nil
}

// Update applies mutate under WATCH on the post key.
func (s *RedisStore) Update(ctx context.Context, id string, mutate port.MutateFunc) (*domain.ScheduledPost, error) {
	key := s.postKey(id)
	var out *domain.ScheduledPost
	err := s.retry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := s.read(ctx, tx, id)
			if err != nil {
				return err
			}
			next, err := applyMutation(cur, mutate, s.clock())
			if err != nil {
				return err
			}
			payload, err := json.Marshal(next)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				if next.Status != domain.PostStatusPending {
					pipe.ZRem(ctx, s.dueKey(), id)
				}
				return nil
			})
			if err != nil {
				return err
			}
			out = next
			return nil
		}, key)
	})
	return out, err
}

// ClaimDue reads the due index, then watches every candidate post key before
// re-reading it, so a concurrent claim or cancel aborts this transaction.
func (s *RedisStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration) ([]*domain.ScheduledPost, error) {
	var out []*domain.ScheduledPost
	err := s.retry(ctx, func() error {
		out = nil
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			ids, err := tx.ZRangeByScore(ctx, s.dueKey(), &redis.ZRangeBy{
				Min: "-inf",
				Max: strconv.FormatFloat(dueScore(now), 'f', -1, 64),
			}).Result()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}

			keys := make([]string, len(ids))
			for i, id := range ids {
				keys[i] = s.postKey(id)
			}
			if err := tx.Watch(ctx, keys...).Err(); err != nil {
				return err
			}

			token := uuid.NewString()
			var claimed []*domain.ScheduledPost
			for _, id := range ids {
				p, err := s.read(ctx, tx, id)
				var nf *port.NotFoundError
				if errors.As(err, &nf) {
					continue
				}
				if err != nil {
					return err
				}
				if !p.Claimable(now, lease) {
					continue
				}
				claim(p, now, token)
				claimed = append(claimed, p)
			}
			if len(claimed) == 0 {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, p := range claimed {
					payload, err := json.Marshal(p)
					if err != nil {
						return err
					}
					pipe.Set(ctx, s.postKey(p.ID), payload, 0)
				}
				return nil
			})
			if err != nil {
				return err
			}
			out = claimed
			return nil
		}, s.dueKey())
	})
	if err != nil {
		return nil, err
	}
	sortByDue(out)
	return out, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// retry repeats fn while the optimistic transaction keeps losing.
func (s *RedisStore) retry(ctx context.Context, fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

func (s *RedisStore) read(ctx context.Context, c getter, id string) (*domain.ScheduledPost, error) {
	data, err := c.Get(ctx, s.postKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	var p domain.ScheduledPost
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", id, err)
	}
	return &p, nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// dueScore keeps millisecond precision, well inside float64's exact range.
func dueScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}
