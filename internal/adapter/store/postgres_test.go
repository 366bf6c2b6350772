package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

var postRowColumns = []string{
	"id", "seq", "content", "platform", "scheduled_for", "status", "result_url", "result_id",
	"error", "created_at", "updated_at", "posted_at", "claimed_at", "claim_token",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := newPostgresStore(db)
	s.clock = func() time.Time { return base }
	return s, mock
}

func pendingRow(rows *sqlmock.Rows, id string, seq int64, at time.Time) *sqlmock.Rows {
	return rows.AddRow(id, seq, "hello", "bluesky", at, "pending", nil, nil, "", base, base, nil, nil, "")
}

func TestPostgresInsertAssignsSeq(t *testing.T) {
	s, mock := newMockStore(t)
	p := newPost("hello", base.Add(time.Hour))

	mock.ExpectQuery("INSERT INTO scheduled_posts .* ON CONFLICT \\(id\\) DO NOTHING RETURNING seq").
		WithArgs(p.ID, "hello", "bluesky", p.ScheduledFor, "pending", "", base, base, nil, "").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)))

	if err := s.Insert(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Seq != 7 {
		t.Fatalf("seq = %d, want 7", p.Seq)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresInsertDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	p := newPost("hello", base)

	mock.ExpectQuery("INSERT INTO scheduled_posts").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}))

	err := s.Insert(context.Background(), p)
	if _, ok := err.(*port.DuplicateIDError); !ok {
		t.Fatalf("expected DuplicateIDError, got %v", err)
	}
}

func TestPostgresGetNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM scheduled_posts WHERE id = \\$1").
		WithArgs("nonexistent").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "nonexistent")
	if _, ok := err.(*port.NotFoundError); !ok {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestPostgresGetMapsNullableColumns(t *testing.T) {
	s, mock := newMockStore(t)
	posted := base.Add(time.Minute)
	mock.ExpectQuery("FROM scheduled_posts WHERE id = \\$1").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(postRowColumns).AddRow(
			"p1", int64(3), "v1.0 shipped!", "bluesky", base, "posted",
			"https://bsky.app/profile/me/post/abc", "abc", "", base, posted, posted, base, "tok",
		))

	p, err := s.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != domain.PostStatusPosted || p.Seq != 3 {
		t.Fatalf("unexpected post %+v", p)
	}
	if p.Result == nil || p.Result.ID != "abc" {
		t.Fatalf("unexpected result %+v", p.Result)
	}
	if p.PostedAt == nil || !p.PostedAt.Equal(posted) || p.ClaimedAt == nil {
		t.Fatalf("unexpected timestamps posted=%v claimed=%v", p.PostedAt, p.ClaimedAt)
	}
}

func TestPostgresListFiltersByStatus(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows(postRowColumns)
	pendingRow(rows, "a", 1, base)
	pendingRow(rows, "b", 2, base.Add(-time.Hour))

	mock.ExpectQuery("WHERE status = ANY\\(\\$1\\) ORDER BY seq").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	posts, err := s.List(context.Background(), domain.PostStatusPending)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "a" || posts[1].ID != "b" {
		t.Fatalf("unexpected posts %+v", posts)
	}
}

func TestPostgresUpdateCancels(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM scheduled_posts WHERE id = \\$1 FOR UPDATE").
		WithArgs("p1").
		WillReturnRows(pendingRow(sqlmock.NewRows(postRowColumns), "p1", 1, base))
	mock.ExpectExec("UPDATE scheduled_posts SET").
		WithArgs("p1", "cancelled", nil, nil, "", base, nil, nil, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := s.Update(context.Background(), "p1", func(p *domain.ScheduledPost) error {
		p.Status = domain.PostStatusCancelled
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != domain.PostStatusCancelled {
		t.Fatalf("status = %s", p.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateRejectsTerminal(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(postRowColumns).AddRow(
			"p1", int64(1), "hello", "bluesky", base, "posted", "u", "i", "", base, base, base, nil, "",
		))
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), "p1", func(p *domain.ScheduledPost) error {
		p.Status = domain.PostStatusCancelled
		return nil
	})
	if _, ok := err.(*port.InvalidTransitionError); !ok {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresClaimDueOrdersResults(t *testing.T) {
	s, mock := newMockStore(t)
	lease := 10 * time.Minute

	rows := sqlmock.NewRows(postRowColumns)
	pendingRow(rows, "late", 2, base.Add(-time.Minute))
	pendingRow(rows, "early", 5, base.Add(-time.Hour))
	pendingRow(rows, "tie", 1, base.Add(-time.Minute))

	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(base, sqlmock.AnyArg(), base.Add(-lease)).
		WillReturnRows(rows)

	posts, err := s.ClaimDue(context.Background(), base, lease)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := []string{posts[0].ID, posts[1].ID, posts[2].ID}
	want := []string{"early", "tie", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("claim order = %v, want %v", got, want)
		}
	}
}
