package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

// DefaultSince is the look-back window used when a query names none.
const DefaultSince = "7 days"

// ActivityQuery selects the commits to summarize. Range wins over Since.
type ActivityQuery struct {
	RepoPath string `json:"repo_path,omitempty"`
	Since    string `json:"since,omitempty"`
	Range    string `json:"range,omitempty"`
}

// ActivityService turns repository history into grouped activity summaries.
type ActivityService struct {
	repos       port.RepositoryReader
	defaultRepo string
	clock       func() time.Time
}

// NewActivityService creates a new activity service. defaultRepo is used
// when a query carries no path.
func NewActivityService(repos port.RepositoryReader, defaultRepo string) *ActivityService {
	return &ActivityService{repos: repos, defaultRepo: defaultRepo, clock: time.Now}
}

// Summarize reads the selected commits and groups them by authored day.
func (s *ActivityService) Summarize(ctx context.Context, q ActivityQuery) (*domain.ActivitySummary, error) {
	repoPath := q.RepoPath
	if repoPath == "" {
		repoPath = s.defaultRepo
	}
	now := s.clock()

	var (
		cq  port.CommitQuery
		rng domain.ActivityRange
	)
	if strings.TrimSpace(q.Range) != "" {
		parsed, err := ParseRange(q.Range)
		if err != nil {
			return nil, err
		}
		cq = parsed
		rng.Revision = strings.TrimSpace(q.Range)
	} else {
		since, err := ParseSince(q.Since, now)
		if err != nil {
			return nil, err
		}
		cq.Since = since
		rng.Since = &since
		rng.Until = &now
	}

	commits, err := s.repos.ListCommits(ctx, repoPath, cq)
	if err != nil {
		return nil, err
	}

	summary := Summarize(commits)
	summary.RepoPath = repoPath
	summary.Range = rng

	slog.Debug("activity summarized",
		"repo", repoPath,
		"commits", summary.TotalCount,
		"days", len(summary.Days),
	)
	return summary, nil
}

// Summarize classifies commits and groups them into newest-first day buckets.
func Summarize(commits []domain.Commit) *domain.ActivitySummary {
	sorted := make([]domain.Commit, len(commits))
	copy(sorted, commits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	summary := &domain.ActivitySummary{
		Days:         []domain.DayBucket{},
		FilesChanged: []string{},
		Categories:   map[domain.Category]int{},
	}
	index := map[string]int{}
	files := map[string]struct{}{}

	for _, c := range sorted {
		c.Category = Classify(c.Message)
		if c.Day == "" {
			c.Day = c.Timestamp.Format(time.DateOnly)
		}

		i, ok := index[c.Day]
		if !ok {
			i = len(summary.Days)
			index[c.Day] = i
			summary.Days = append(summary.Days, domain.DayBucket{Date: c.Day})
		}
		summary.Days[i].Commits = append(summary.Days[i].Commits, c)

		summary.TotalCount++
		summary.TotalInsertions += c.Insertions
		summary.TotalDeletions += c.Deletions
		summary.Categories[c.Category]++
		for _, f := range c.Files {
			files[f] = struct{}{}
		}

		ts := c.Timestamp
		if summary.Newest == nil || ts.After(*summary.Newest) {
			summary.Newest = &ts
		}
		if summary.Oldest == nil || ts.Before(*summary.Oldest) {
			summary.Oldest = &ts
		}
	}

	// Author offsets can put a later instant on an earlier calendar day,
	// so order buckets by date rather than by first appearance.
	sort.SliceStable(summary.Days, func(i, j int) bool {
		return summary.Days[i].Date > summary.Days[j].Date
	})

	for f := range files {
		summary.FilesChanged = append(summary.FilesChanged, f)
	}
	sort.Strings(summary.FilesChanged)
	return summary
}

// ParseSince reads "<N> hour(s)|day(s)|week(s)|month(s)" relative to now.
// An empty value means DefaultSince. A month counts as 30 days.
func ParseSince(since string, now time.Time) (time.Time, error) {
	since = strings.ToLower(strings.TrimSpace(since))
	if since == "" {
		since = DefaultSince
	}

	parts := strings.Fields(since)
	if len(parts) != 2 {
		return time.Time{}, &port.ValidationError{Message: fmt.Sprintf("invalid since %q: want e.g. \"7 days\" or \"2 weeks\"", since)}
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n < 0 {
		return time.Time{}, &port.ValidationError{Message: fmt.Sprintf("invalid since %q: amount must be a non-negative integer", since)}
	}

	switch strings.TrimSuffix(parts[1], "s") {
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour), nil
	case "day":
		return now.AddDate(0, 0, -n), nil
	case "week":
		return now.AddDate(0, 0, -7*n), nil
	case "month":
		return now.AddDate(0, 0, -30*n), nil
	default:
		return time.Time{}, &port.ValidationError{Message: fmt.Sprintf("invalid since %q: unit must be hours, days, weeks or months", since)}
	}
}

// ParseRange reads "last N", "a..b" or a single ref.
func ParseRange(r string) (port.CommitQuery, error) {
	r = strings.TrimSpace(r)
	if r == "" {
		return port.CommitQuery{}, &port.ValidationError{Message: "range is empty"}
	}

	if fields := strings.Fields(r); len(fields) > 0 && strings.EqualFold(fields[0], "last") {
		if len(fields) != 2 {
			return port.CommitQuery{}, &port.ValidationError{Message: fmt.Sprintf("invalid range %q: want \"last N\"", r)}
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return port.CommitQuery{}, &port.ValidationError{Message: fmt.Sprintf("invalid range %q: N must be a positive integer", r)}
		}
		return port.CommitQuery{Limit: n}, nil
	}

	if strings.ContainsAny(r, " \t\n") {
		return port.CommitQuery{}, &port.ValidationError{Message: fmt.Sprintf("invalid range %q", r)}
	}
	if strings.Contains(r, "..") {
		return port.CommitQuery{Revision: r}, nil
	}
	return port.CommitQuery{Revision: r, Limit: 1}, nil
}
