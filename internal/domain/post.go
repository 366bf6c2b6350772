package domain

import "time"

// PostStatus is the lifecycle state of a ScheduledPost.
type PostStatus string

// PostStatus constants. Only pending is non-terminal.
const (
	PostStatusPending   PostStatus = "pending"
	PostStatusPosted    PostStatus = "posted"
	PostStatusCancelled PostStatus = "cancelled"
	PostStatusFailed    PostStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s PostStatus) Terminal() bool {
	return s != PostStatusPending
}

// Valid reports whether s is one of the known statuses.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusPending, PostStatusPosted, PostStatusCancelled, PostStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an allowed status change.
// A post stays where it is (from == to) or leaves pending exactly once.
func CanTransition(from, to PostStatus) bool {
	if from == to {
		return true
	}
	if from != PostStatusPending {
		return false
	}
	switch to {
	case PostStatusPosted, PostStatusCancelled, PostStatusFailed:
		return true
	}
	return false
}

// PublishResult is what a platform returns for a successful post.
type PublishResult struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// ScheduledPost is the unit of persisted scheduling state.
type ScheduledPost struct {
	ID           string         `json:"id"            db:"id"`
	Seq          uint64         `json:"seq"           db:"seq"`
	Content      string         `json:"content"       db:"content"`
	Platform     string         `json:"platform"      db:"platform"`
	ScheduledFor time.Time      `json:"scheduled_for" db:"scheduled_for"`
	Status       PostStatus     `json:"status"        db:"status"`
	Result       *PublishResult `json:"result,omitempty"`
	Error        string         `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time      `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"    db:"updated_at"`
	PostedAt     *time.Time     `json:"posted_at,omitempty"  db:"posted_at"`
	ClaimedAt    *time.Time     `json:"claimed_at,omitempty" db:"claimed_at"`
	ClaimToken   string         `json:"claim_token,omitempty" db:"claim_token"`
}

// Due reports whether the post is pending and its time has arrived.
func (p *ScheduledPost) Due(now time.Time) bool {
	return p.Status == PostStatusPending && !p.ScheduledFor.After(now)
}

// Claimable reports whether a dispatcher may take the post at now.
// An expired lease (older than lease) counts as unclaimed.
func (p *ScheduledPost) Claimable(now time.Time, lease time.Duration) bool {
	if !p.Due(now) {
		return false
	}
	return p.ClaimedAt == nil || !p.ClaimedAt.Add(lease).After(now)
}

// Claimed reports whether a dispatcher currently holds the post.
func (p *ScheduledPost) Claimed(now time.Time, lease time.Duration) bool {
	return p.ClaimedAt != nil && p.ClaimedAt.Add(lease).After(now)
}

// Clone returns a deep copy so callers cannot alias stored state.
func (p *ScheduledPost) Clone() *ScheduledPost {
	cp := *p
	if p.Result != nil {
		r := *p.Result
		cp.Result = &r
	}
	if p.PostedAt != nil {
		t := *p.PostedAt
		cp.PostedAt = &t
	}
	if p.ClaimedAt != nil {
		t := *p.ClaimedAt
		cp.ClaimedAt = &t
	}
	return &cp
}

// DispatchReport summarizes one poll of the scheduling engine.
type DispatchReport struct {
	Claimed int              `json:"claimed"`
	Posted  []*ScheduledPost `json:"posted"`
	Failed  []*ScheduledPost `json:"failed"`
	// Skipped counts claimed posts another dispatcher took over first.
	Skipped int `json:"skipped,omitempty"`
}
