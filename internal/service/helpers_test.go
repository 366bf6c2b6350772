package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

// Wednesday.
var wed0900 = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakePlatform struct {
	name  string
	limit int
	fail  error
	// onPost runs before each publish, outside the lock.
	onPost func(content string)

	mu    sync.Mutex
	posts []string
}

func (p *fakePlatform) Name() string        { return p.name }
func (p *fakePlatform) CharacterLimit() int { return p.limit }

func (p *fakePlatform) Post(_ context.Context, content string) (domain.PublishResult, error) {
	if p.onPost != nil {
		p.onPost(content)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return domain.PublishResult{}, &port.PublishError{Platform: p.name, Message: "rejected", Err: p.fail}
	}
	p.posts = append(p.posts, content)
	id := fmt.Sprintf("rkey%d", len(p.posts))
	return domain.PublishResult{URL: "https://bsky.app/profile/me.bsky.social/post/" + id, ID: id}, nil
}

func (p *fakePlatform) VerifyCredentials(_ context.Context, creds map[string]string) error {
	if creds[CredentialAppPassword] == "wrong" {
		return &port.PublishError{Platform: p.name, Message: "authentication failed"}
	}
	return nil
}

func (p *fakePlatform) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.posts...)
}

type memoryConfig struct {
	mu    sync.Mutex
	def   string
	creds map[string]map[string]string
}

func newMemoryConfig(def string) *memoryConfig {
	return &memoryConfig{def: def, creds: map[string]map[string]string{}}
}

func (c *memoryConfig) DefaultPlatform() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.def, c.def != ""
}

func (c *memoryConfig) Credentials(platform string) (map[string]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.creds[platform]
	return v, ok
}

func (c *memoryConfig) SaveCredentials(platform string, creds map[string]string, setDefault bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds[platform] = creds
	if setDefault || c.def == "" {
		c.def = platform
	}
	return nil
}

func (c *memoryConfig) ConfiguredPlatforms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for n := range c.creds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type fakeRepos struct {
	commits []domain.Commit
	err     error
	last    port.CommitQuery
}

func (r *fakeRepos) ListCommits(_ context.Context, repoPath string, q port.CommitQuery) ([]domain.Commit, error) {
	r.last = q
	if r.err != nil {
		return nil, r.err
	}
	if repoPath == "/missing" {
		return nil, &port.RepositoryError{Path: repoPath, Err: errors.New("no such directory")}
	}
	out := r.commits
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func commitAt(hash, msg string, ts time.Time, files ...string) domain.Commit {
	return domain.Commit{
		Hash:       hash,
		ShortHash:  hash[:7],
		Author:     "Ada",
		Message:    msg,
		Timestamp:  ts,
		Day:        ts.Format(time.DateOnly),
		Files:      files,
		Insertions: 10,
		Deletions:  2,
	}
}
