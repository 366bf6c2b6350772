package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

// PostgresStore keeps posts in the scheduled_posts table.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

// NewPostgresStore opens a connection, applies the schema and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := newPostgresStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

var _ port.ScheduleStore = (*PostgresStore)(nil)

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// --- Schema ---

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scheduled_posts (
	id            TEXT PRIMARY KEY,
	seq           BIGSERIAL UNIQUE,
	content       TEXT NOT NULL,
	platform      TEXT NOT NULL,
	scheduled_for TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	result_url    TEXT,
	result_id     TEXT,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	posted_at     TIMESTAMPTZ,
	claimed_at    TIMESTAMPTZ,
	claim_token   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS scheduled_posts_due_idx
	ON scheduled_posts (scheduled_for, seq) WHERE status = 'pending';`

// Migrate creates the table and index when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate scheduled_posts: %w", err)
	}
	return nil
}

// --- Posts ---

const postColumns = `id, seq, content, platform, scheduled_for, status, result_url, result_id,
	error, created_at, updated_at, posted_at, claimed_at, claim_token`

// Insert adds a post; an existing id yields no row and a DuplicateIDError.
func (s *PostgresStore) Insert(ctx context.Context, p *domain.ScheduledPost) error {
	query := `
		INSERT INTO scheduled_posts
			(id, content, platform, scheduled_for, status, error, created_at, updated_at, claimed_at, claim_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING seq`

	var seq int64
	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.Content, p.Platform, p.ScheduledFor, string(p.Status), p.Error, p.CreatedAt, p.UpdatedAt,
		nullTime(p.ClaimedAt), p.ClaimToken,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return &port.DuplicateIDError{ID: p.ID}
	}
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	p.Seq = uint64(seq)
	return nil
}

// Get retrieves a post by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`
	p, err := scanPost(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// List returns posts in creation order, optionally filtered by status.
func (s *PostgresStore) List(ctx context.Context, statuses ...domain.PostStatus) ([]*domain.ScheduledPost, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM scheduled_posts ORDER BY seq`)
	} else {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+postColumns+` FROM scheduled_posts WHERE status = ANY($1) ORDER BY seq`,
			pq.Array(names))
	}
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// Update locks the row, applies mutate and writes the mutable columns back.
func (s *PostgresStore) Update(ctx context.Context, id string, mutate port.MutateFunc) (*domain.ScheduledPost, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cur, err := scanPost(tx.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM scheduled_posts WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock post: %w", err)
	}

	next, err := applyMutation(cur, mutate, s.clock())
	if err != nil {
		return nil, err
	}

	var resultURL, resultID sql.NullString
	if next.Result != nil {
		resultURL = sql.NullString{String: next.Result.URL, Valid: true}
		resultID = sql.NullString{String: next.Result.ID, Valid: true}
	}
	query := `
		UPDATE scheduled_posts SET
			status = $2, result_url = $3, result_id = $4, error = $5,
			updated_at = $6, posted_at = $7, claimed_at = $8, claim_token = $9
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query,
		id, string(next.Status), resultURL, resultID, next.Error,
		next.UpdatedAt, nullTime(next.PostedAt), nullTime(next.ClaimedAt), next.ClaimToken,
	); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return next, nil
}

// ClaimDue leases due rows in one statement. SKIP LOCKED hands rows held by a
// concurrent claimer or canceller to nobody else.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration) ([]*domain.ScheduledPost, error) {
	query := `
		UPDATE scheduled_posts SET claimed_at = $1, claim_token = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM scheduled_posts
			WHERE status = 'pending' AND scheduled_for <= $1
			  AND (claimed_at IS NULL OR claimed_at <= $3)
			ORDER BY scheduled_for, seq
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + postColumns

	rows, err := s.db.QueryContext(ctx, query, now, uuid.NewString(), now.Add(-lease))
	if err != nil {
		return nil, fmt.Errorf("claim due posts: %w", err)
	}
	defer rows.Close()

	posts, err := scanPosts(rows)
	if err != nil {
		return nil, err
	}
	sortByDue(posts)
	return posts, nil
}

// --- Scanning ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*domain.ScheduledPost, error) {
	var (
		p                   domain.ScheduledPost
		seq                 int64
		status              string
		resultURL, resultID sql.NullString
		postedAt, claimedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID, &seq, &p.Content, &p.Platform, &p.ScheduledFor, &status, &resultURL, &resultID,
		&p.Error, &p.CreatedAt, &p.UpdatedAt, &postedAt, &claimedAt, &p.ClaimToken,
	)
	if err != nil {
		return nil, err
	}
	p.Seq = uint64(seq)
	p.Status = domain.PostStatus(status)
	if resultURL.Valid || resultID.Valid {
		p.Result = &domain.PublishResult{URL: resultURL.String, ID: resultID.String}
	}
	if postedAt.Valid {
		t := postedAt.Time
		p.PostedAt = &t
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		p.ClaimedAt = &t
	}
	return &p, nil
}

func scanPosts(rows *sql.Rows) ([]*domain.ScheduledPost, error) {
	var posts []*domain.ScheduledPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
