package port

import (
	"context"
	"time"

	"github.com/arturoeanton/milestoner/internal/domain"
)

// CommitQuery selects which commits a RepositoryReader returns.
// Revision wins over Since when both are set.
type CommitQuery struct {
	// Since bounds the authored date from below; zero means no bound.
	Since time.Time

	// Revision is "a..b", a single ref, or empty for the whole HEAD history.
	Revision string

	// Limit caps the number of commits, newest first; zero means no cap.
	Limit int
}

// RepositoryReader abstracts read-only access to version control history.
type RepositoryReader interface {
	// ListCommits returns commits newest first with per-commit change stats.
	// An invalid path or unresolvable revision yields a *RepositoryError.
	// A repository without commits yields an empty slice.
	ListCommits(ctx context.Context, repoPath string, q CommitQuery) ([]domain.Commit, error)
}
