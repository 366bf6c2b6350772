package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rivo/uniseg"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/metrics"
	"github.com/arturoeanton/milestoner/internal/optimal"
	"github.com/arturoeanton/milestoner/internal/port"
)

// WhenKind selects how a scheduling instant is chosen.
type WhenKind int

const (
	WhenKindOptimal WhenKind = iota
	WhenKindExplicit
	WhenKindNow
)

func (k WhenKind) String() string {
	switch k {
	case WhenKindExplicit:
		return "explicit"
	case WhenKindNow:
		return "immediate"
	default:
		return "optimal"
	}
}

// When is either an explicit instant, the next optimal slot, or now.
type When struct {
	Kind WhenKind
	At   time.Time
}

// WhenAt schedules at t.
func WhenAt(t time.Time) When { return When{Kind: WhenKindExplicit, At: t} }

// WhenOptimal schedules at the next recommended slot strictly after now.
func WhenOptimal() When { return When{Kind: WhenKindOptimal} }

// WhenNow makes the post due immediately.
func WhenNow() When { return When{Kind: WhenKindNow} }

// ScheduleRequest is the input of Schedule. An empty Platform means the
// configured default.
type ScheduleRequest struct {
	Content  string
	Platform string
	When     When
}

// PendingView is the result of ListPending.
type PendingView struct {
	Pending         []*domain.ScheduledPost `json:"pending"`
	Count           int                     `json:"count"`
	UpcomingOptimal []domain.Recommendation `json:"upcoming_optimal_times"`
}

// SchedulingOptions tunes the scheduling engine.
type SchedulingOptions struct {
	// PublishTimeout bounds a single platform call.
	PublishTimeout time.Duration
	// ClaimLease is how long a claim keeps other dispatchers away.
	ClaimLease time.Duration
	// Location is the single local timezone for optimal slots.
	Location *time.Location
	// Clock defaults to time.Now.
	Clock   func() time.Time
	Metrics *metrics.Metrics
}

// SchedulingService accepts posts, answers queries about them and publishes
// them once they are due.
type SchedulingService struct {
	store     port.ScheduleStore
	platforms port.PlatformRegistry
	config    port.ConfigProvider
	opts      SchedulingOptions
}

// NewSchedulingService creates a new scheduling engine. PublishTimeout must
// be shorter than ClaimLease so a claim renewed before a publish outlives it.
func NewSchedulingService(store port.ScheduleStore, platforms port.PlatformRegistry, config port.ConfigProvider, opts SchedulingOptions) (*SchedulingService, error) {
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 30 * time.Second
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = 10 * time.Minute
	}
	if opts.PublishTimeout >= opts.ClaimLease {
		return nil, fmt.Errorf("publish timeout %s must be shorter than claim lease %s", opts.PublishTimeout, opts.ClaimLease)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &SchedulingService{store: store, platforms: platforms, config: config, opts: opts}, nil
}

// Now returns the current time in the engine's timezone.
func (s *SchedulingService) Now() time.Time {
	return s.opts.Clock().In(s.opts.Location)
}

// Schedule validates the request and stores a pending post.
func (s *SchedulingService) Schedule(ctx context.Context, req ScheduleRequest) (*domain.ScheduledPost, error) {
	now := s.Now()

	name, platform, err := s.resolvePlatform(req.Platform)
	if err != nil {
		return nil, err
	}
	if err := validateContent(req.Content, platform); err != nil {
		return nil, err
	}

	var at time.Time
	switch req.When.Kind {
	case WhenKindExplicit:
		if req.When.At.Before(now) {
			return nil, &port.InvalidScheduleError{At: req.When.At, Now: now}
		}
		at = req.When.At
	case WhenKindNow:
		at = now
	default:
		rec, ok := optimal.Next(now)
		if !ok {
			return nil, fmt.Errorf("no optimal slot after %s", now.Format(time.RFC3339))
		}
		at = rec.At
	}

	post := &domain.ScheduledPost{
		ID:           uuid.NewString(),
		Content:      req.Content,
		Platform:     name,
		ScheduledFor: at,
		Status:       domain.PostStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Insert(ctx, post); err != nil {
		return nil, fmt.Errorf("schedule post: %w", err)
	}

	s.opts.Metrics.PostScheduled(name, req.When.Kind.String())
	slog.Info("post scheduled",
		"post_id", post.ID,
		"platform", name,
		"scheduled_for", post.ScheduledFor.Format(time.RFC3339),
		"mode", req.When.Kind.String(),
	)
	return post, nil
}

// Cancel moves a pending, unclaimed post to cancelled.
func (s *SchedulingService) Cancel(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	now := s.Now()
	post, err := s.store.Update(ctx, id, func(p *domain.ScheduledPost) error {
		if p.Status == domain.PostStatusPending && p.Claimed(now, s.opts.ClaimLease) {
			return &port.InvalidTransitionError{
				ID: p.ID, From: string(p.Status), To: string(domain.PostStatusCancelled),
				Reason: "post is being published",
			}
		}
		p.Status = domain.PostStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.opts.Metrics.PostCancelled()
	slog.Info("post cancelled", "post_id", id)
	return post, nil
}

// Get returns a single post.
func (s *SchedulingService) Get(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	return s.store.Get(ctx, id)
}

// ListPending returns pending posts soonest first plus the next three optimal slots.
func (s *SchedulingService) ListPending(ctx context.Context) (*PendingView, error) {
	posts, err := s.store.List(ctx, domain.PostStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].ScheduledFor.Equal(posts[j].ScheduledFor) {
			return posts[i].ScheduledFor.Before(posts[j].ScheduledFor)
		}
		return posts[i].Seq < posts[j].Seq
	})
	if posts == nil {
		posts = []*domain.ScheduledPost{}
	}
	return &PendingView{
		Pending:         posts,
		Count:           len(posts),
		UpcomingOptimal: optimal.Upcoming(s.Now(), 3),
	}, nil
}

// History returns posted entries, most recently published first.
func (s *SchedulingService) History(ctx context.Context, limit int) ([]*domain.ScheduledPost, error) {
	posts, err := s.store.List(ctx, domain.PostStatusPosted)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return postedAt(posts[i]).After(postedAt(posts[j]))
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	if posts == nil {
		posts = []*domain.ScheduledPost{}
	}
	return posts, nil
}

// DispatchDue runs Dispatch at the current time.
func (s *SchedulingService) DispatchDue(ctx context.Context) (*domain.DispatchReport, error) {
	return s.Dispatch(ctx, s.Now())
}

// Dispatch claims every due post and publishes each exactly once. A failure
// on one post never stops the others. Errors writing the outcome back are
// joined into the returned error; a post that was published but could not be
// marked may be published again once its claim lease expires.
func (s *SchedulingService) Dispatch(ctx context.Context, now time.Time) (*domain.DispatchReport, error) {
	claimed, err := s.store.ClaimDue(ctx, now, s.opts.ClaimLease)
	if err != nil {
		s.opts.Metrics.DispatchRun("error")
		return nil, fmt.Errorf("claim due posts: %w", err)
	}
	s.opts.Metrics.PostsClaimed(len(claimed))

	report := &domain.DispatchReport{
		Claimed: len(claimed),
		Posted:  []*domain.ScheduledPost{},
		Failed:  []*domain.ScheduledPost{},
	}
	var writeErrs []error
	for _, p := range claimed {
		updated, err := s.publish(ctx, p)
		if errors.Is(err, errClaimLost) {
			report.Skipped++
			slog.Warn("claim lost before publish", "post_id", p.ID)
			continue
		}
		if err != nil {
			writeErrs = append(writeErrs, err)
			continue
		}
		if updated.Status == domain.PostStatusPosted {
			report.Posted = append(report.Posted, updated)
		} else {
			report.Failed = append(report.Failed, updated)
		}
	}

	if len(claimed) > 0 {
		slog.Info("dispatch complete",
			"claimed", report.Claimed,
			"posted", len(report.Posted),
			"failed", len(report.Failed),
			"skipped", report.Skipped,
		)
	}
	if len(writeErrs) > 0 {
		s.opts.Metrics.DispatchRun("error")
		return report, errors.Join(writeErrs...)
	}
	s.opts.Metrics.DispatchRun("ok")
	return report, nil
}

// PublishNow stores a post due now and publishes it without waiting for a
// dispatch poll. The post is inserted already claimed so no poller can
// pick it up concurrently.
func (s *SchedulingService) PublishNow(ctx context.Context, content, platformName string) (*domain.ScheduledPost, error) {
	now := s.Now()
	name, platform, err := s.resolvePlatform(platformName)
	if err != nil {
		return nil, err
	}
	if err := validateContent(content, platform); err != nil {
		return nil, err
	}
	if _, ok := s.config.Credentials(name); !ok {
		return nil, &port.ValidationError{
			Message: fmt.Sprintf("Platform '%s' is not configured. Use the configure tool first.", name),
		}
	}

	claimedAt := now
	post := &domain.ScheduledPost{
		ID:           uuid.NewString(),
		Content:      content,
		Platform:     name,
		ScheduledFor: now,
		Status:       domain.PostStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		ClaimedAt:    &claimedAt,
		ClaimToken:   uuid.NewString(),
	}
	if err := s.store.Insert(ctx, post); err != nil {
		return nil, fmt.Errorf("store post: %w", err)
	}
	s.opts.Metrics.PostScheduled(name, WhenKindNow.String())

	updated, err := s.publish(ctx, post)
	if err != nil {
		return nil, err
	}
	if updated.Status == domain.PostStatusFailed {
		return updated, &port.PublishError{Platform: name, Message: updated.Error}
	}
	return updated, nil
}

// errClaimLost means another dispatcher took over the post's claim.
var errClaimLost = errors.New("claim lost")

// holdsClaim fails the mutation unless q is still pending under p's claim.
func holdsClaim(q, p *domain.ScheduledPost) error {
	if q.Status != domain.PostStatusPending || q.ClaimToken != p.ClaimToken {
		return errClaimLost
	}
	return nil
}

// renewClaim re-stamps p's lease so it covers the publish call that follows.
func (s *SchedulingService) renewClaim(ctx context.Context, p *domain.ScheduledPost) error {
	renewed := s.Now()
	_, err := s.store.Update(ctx, p.ID, func(q *domain.ScheduledPost) error {
		if err := holdsClaim(q, p); err != nil {
			return err
		}
		q.ClaimedAt = &renewed
		return nil
	})
	if err != nil && !errors.Is(err, errClaimLost) {
		return fmt.Errorf("renew claim for post %s: %w", p.ID, err)
	}
	return err
}

// publish makes the single publish attempt for a claimed post and records
// the outcome. The claim is renewed first; errClaimLost means the post was
// left alone. Any other error reports a failed status write, including a
// claim lost while the platform call was in flight.
func (s *SchedulingService) publish(ctx context.Context, p *domain.ScheduledPost) (*domain.ScheduledPost, error) {
	if err := s.renewClaim(ctx, p); err != nil {
		return nil, err
	}

	var (
		result domain.PublishResult
		pubErr error
	)
	start := time.Now()
	platform, ok := s.platforms[p.Platform]
	if !ok {
		pubErr = &port.PublishError{Platform: p.Platform, Message: "platform not registered"}
	} else {
		pctx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
		result, pubErr = platform.Post(pctx, p.Content)
		cancel()
	}
	s.opts.Metrics.Published(p.Platform, pubErr == nil, time.Since(start))
	finished := s.Now()

	updated, err := s.store.Update(ctx, p.ID, func(q *domain.ScheduledPost) error {
		if holdsClaim(q, p) != nil {
			return &port.InvalidTransitionError{
				ID: q.ID, From: string(q.Status), To: string(q.Status),
				Reason: "claim taken over by another dispatcher",
			}
		}
		if pubErr != nil {
			q.Status = domain.PostStatusFailed
			q.Error = pubErr.Error()
			return nil
		}
		r := result
		q.Status = domain.PostStatusPosted
		q.Result = &r
		q.PostedAt = &finished
		return nil
	})
	if err != nil {
		slog.Error("failed to record publish outcome",
			"post_id", p.ID,
			"published", pubErr == nil,
			"error", err,
		)
		return nil, fmt.Errorf("record outcome for post %s: %w", p.ID, err)
	}

	if pubErr != nil {
		slog.Warn("post failed", "post_id", p.ID, "platform", p.Platform, "error", pubErr)
	} else {
		slog.Info("post published", "post_id", p.ID, "platform", p.Platform, "url", result.URL)
	}
	return updated, nil
}

// resolvePlatform maps an optional name to a registered platform.
func (s *SchedulingService) resolvePlatform(name string) (string, port.Platform, error) {
	return resolvePlatform(s.platforms, s.config, name)
}

func resolvePlatform(platforms port.PlatformRegistry, config port.ConfigProvider, name string) (string, port.Platform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		def, ok := config.DefaultPlatform()
		if !ok {
			return "", nil, &port.ValidationError{Message: "no platform given and no default platform configured"}
		}
		name = def
	}
	p, ok := platforms[name]
	if !ok {
		names := platforms.Names()
		sort.Strings(names)
		return "", nil, &port.ValidationError{
			Message: fmt.Sprintf("unknown platform: %s. Available: %s", name, strings.Join(names, ", ")),
		}
	}
	return name, p, nil
}

// validateContent rejects empty posts and posts over the platform limit,
// counting user-perceived characters.
func validateContent(content string, platform port.Platform) error {
	if strings.TrimSpace(content) == "" {
		return &port.ValidationError{Message: "content is required"}
	}
	limit := platform.CharacterLimit()
	if n := uniseg.GraphemeClusterCount(content); limit > 0 && n > limit {
		return &port.ValidationError{
			Message: fmt.Sprintf("content is %d characters; %s allows %d", n, platform.Name(), limit),
		}
	}
	return nil
}

func postedAt(p *domain.ScheduledPost) time.Time {
	if p.PostedAt != nil {
		return *p.PostedAt
	}
	return p.UpdatedAt
}
