package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"

	// hash, author, authored date (strict ISO 8601 with offset), subject
	logFormat = "--format=" + recordSep + "%H" + fieldSep + "%an" + fieldSep + "%aI" + fieldSep + "%s"
)

// GitProvider implements port.RepositoryReader using the git CLI.
type GitProvider struct {
	binary string
}

// NewGitProvider creates a new Git repository reader.
func NewGitProvider() *GitProvider {
	return &GitProvider{binary: "git"}
}

var _ port.RepositoryReader = (*GitProvider)(nil)

// ListCommits returns commits newest first with per-file numstat totals.
func (g *GitProvider) ListCommits(ctx context.Context, repoPath string, q port.CommitQuery) ([]domain.Commit, error) {
	if repoPath == "" {
		repoPath = "."
	}
	if info, err := os.Stat(repoPath); err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return nil, &port.RepositoryError{Path: repoPath, Err: err}
	}
	if _, err := g.run(ctx, repoPath, "rev-parse", "--git-dir"); err != nil {
		return nil, &port.RepositoryError{Path: repoPath, Err: errors.New("not a git repository")}
	}

	if q.Revision == "" {
		// A fresh repository has no HEAD yet; that is an empty history, not an error.
		if _, err := g.run(ctx, repoPath, "rev-parse", "--verify", "--quiet", "HEAD"); err != nil {
			return []domain.Commit{}, nil
		}
	} else if strings.HasPrefix(q.Revision, "-") {
		return nil, &port.RepositoryError{Path: repoPath, Ref: q.Revision, Err: errors.New("invalid revision")}
	}

	args := []string{"-c", "log.showSignature=false", "log", "--no-color", logFormat, "--numstat"}
	if q.Limit > 0 {
		args = append(args, fmt.Sprintf("-n%d", q.Limit))
	}
	if q.Revision == "" && !q.Since.IsZero() {
		// --since filters on committer date; the authored-date cut happens below.
		args = append(args, "--since="+q.Since.Format(time.RFC3339))
	}
	if q.Revision != "" {
		args = append(args, q.Revision)
	}
	args = append(args, "--")

	output, err := g.run(ctx, repoPath, args...)
	if err != nil {
		return nil, &port.RepositoryError{Path: repoPath, Ref: q.Revision, Err: err}
	}

	commits := parseLog(output)
	if q.Revision == "" && !q.Since.IsZero() {
		kept := commits[:0]
		for _, c := range commits {
			if !c.Timestamp.Before(q.Since) {
				kept = append(kept, c)
			}
		}
		commits = kept
	}
	return commits, nil
}

func (g *GitProvider) run(ctx context.Context, repoPath string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary, append([]string{"-C", repoPath}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %s", args[0], msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(output), nil
}

// parseLog splits `git log` output produced with logFormat and --numstat.
func parseLog(output string) []domain.Commit {
	commits := []domain.Commit{}
	for _, record := range strings.Split(output, recordSep) {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}

		lines := strings.Split(record, "\n")
		parts := strings.SplitN(lines[0], fieldSep, 4)
		if len(parts) < 4 {
			continue
		}

		ts, err := time.Parse(time.RFC3339, parts[2])
		if err != nil {
			continue
		}
		c := domain.Commit{
			Hash:      parts[0],
			ShortHash: shortHash(parts[0]),
			Author:    parts[1],
			Message:   parts[3],
			Timestamp: ts,
			Day:       ts.Format(time.DateOnly),
			Files:     []string{},
		}
		if c.Author == "" {
			c.Author = "Unknown"
		}

		for _, line := range lines[1:] {
			added, deleted, path, ok := parseNumstat(line)
			if !ok {
				continue
			}
			c.Insertions += added
			c.Deletions += deleted
			c.Files = append(c.Files, path)
		}
		commits = append(commits, c)
	}
	return commits
}

// parseNumstat reads "added<TAB>deleted<TAB>path"; binary files report "-".
func parseNumstat(line string) (int, int, string, bool) {
	fields := strings.SplitN(strings.TrimSpace(line), "\t", 3)
	if len(fields) != 3 {
		return 0, 0, "", false
	}
	added, _ := strconv.Atoi(fields[0])
	deleted, _ := strconv.Atoi(fields[1])
	return added, deleted, fields[2], true
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
