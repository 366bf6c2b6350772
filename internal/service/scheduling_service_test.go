package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/milestoner/internal/adapter/store"
	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/metrics"
	"github.com/arturoeanton/milestoner/internal/port"
)

type schedulingFixture struct {
	svc      *SchedulingService
	store    *store.MemoryStore
	clock    *fixedClock
	bluesky  *fakePlatform
	config   *memoryConfig
	platform port.PlatformRegistry
}

func newSchedulingFixture(t *testing.T) *schedulingFixture {
	t.Helper()
	f := &schedulingFixture{
		store:   store.NewMemoryStore(),
		clock:   &fixedClock{now: wed0900},
		bluesky: &fakePlatform{name: "bluesky", limit: 300},
		config:  newMemoryConfig("bluesky"),
	}
	f.config.creds["bluesky"] = map[string]string{CredentialHandle: "me.bsky.social", CredentialAppPassword: "pw"}
	f.platform = port.PlatformRegistry{"bluesky": f.bluesky}
	svc, err := NewSchedulingService(f.store, f.platform, f.config, SchedulingOptions{
		Location: time.UTC,
		Clock:    f.clock.Now,
		Metrics:  metrics.New(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestScheduleExplicitTime(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	at := wed0900.Add(2 * time.Hour)

	p, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "hello", When: WhenAt(at)})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Equal(t, "bluesky", p.Platform)
	require.Equal(t, domain.PostStatusPending, p.Status)
	require.True(t, p.ScheduledFor.Equal(at))

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Content)
}

func TestScheduleRejectsPastInstant(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	_, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "late", When: WhenAt(wed0900.Add(-time.Minute))})
	var invalid *port.InvalidScheduleError
	require.ErrorAs(t, err, &invalid)

	all, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all, "rejected post must not be stored")
}

func TestScheduleOptimalPicksNextSlot(t *testing.T) {
	f := newSchedulingFixture(t)

	p, err := f.svc.Schedule(context.Background(), ScheduleRequest{Content: "ship it", When: WhenOptimal()})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC), p.ScheduledFor)
}

func TestScheduleOptimalAllowsSharedSlot(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	a, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "one", When: WhenOptimal()})
	require.NoError(t, err)
	b, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "two", When: WhenOptimal()})
	require.NoError(t, err)
	require.True(t, a.ScheduledFor.Equal(b.ScheduledFor))
	require.NotEqual(t, a.ID, b.ID)
}

func TestScheduleValidation(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ScheduleRequest
		want string
	}{
		{"empty content", ScheduleRequest{Content: "   ", When: WhenNow()}, "content is required"},
		{"unknown platform", ScheduleRequest{Content: "x", Platform: "myspace", When: WhenNow()}, "unknown platform: myspace. Available: bluesky"},
		{"over limit", ScheduleRequest{Content: strings.Repeat("a", 301), When: WhenNow()}, "301 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Schedule(ctx, tt.req)
			var verr *port.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, verr.Error(), tt.want)
		})
	}
}

func TestScheduleCountsGraphemes(t *testing.T) {
	f := newSchedulingFixture(t)
	// 300 family emoji are 300 graphemes but far more bytes and runes.
	content := strings.Repeat("👨‍👩‍👧", 300)

	_, err := f.svc.Schedule(context.Background(), ScheduleRequest{Content: content, When: WhenNow()})
	require.NoError(t, err)
}

func TestScheduleWithoutDefaultPlatform(t *testing.T) {
	f := newSchedulingFixture(t)
	f.config.def = ""

	_, err := f.svc.Schedule(context.Background(), ScheduleRequest{Content: "x", When: WhenNow()})
	var verr *port.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDispatchPublishesDuePost(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	at := wed0900.Add(30 * time.Minute)

	p, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "v1.0 shipped!", When: WhenAt(at)})
	require.NoError(t, err)

	report, err := f.svc.Dispatch(ctx, wed0900)
	require.NoError(t, err)
	require.Equal(t, 0, report.Claimed, "not due yet")

	f.clock.Set(at)
	report, err = f.svc.Dispatch(ctx, at)
	require.NoError(t, err)
	require.Equal(t, 1, report.Claimed)
	require.Len(t, report.Posted, 1)
	require.Empty(t, report.Failed)

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusPosted, got.Status)
	require.NotNil(t, got.Result)
	require.Equal(t, "https://bsky.app/profile/me.bsky.social/post/rkey1", got.Result.URL)
	require.NotNil(t, got.PostedAt)
	require.Equal(t, []string{"v1.0 shipped!"}, f.bluesky.published())

	report, err = f.svc.Dispatch(ctx, at.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, report.Claimed, "posted entries are never claimed again")
	require.Len(t, f.bluesky.published(), 1)
}

func TestShippedScenario(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	p, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "v1.0 shipped!", When: WhenAt(at)})
	require.NoError(t, err)

	dispatchAt := at.Add(time.Second)
	f.clock.Set(dispatchAt)
	_, err = f.svc.Dispatch(ctx, dispatchAt)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusPosted, got.Status)
	require.NotEmpty(t, got.Result.URL)
}

func TestDispatchIsolatesFailures(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	broken := &fakePlatform{name: "mastodon", limit: 500, fail: errors.New("503")}
	f.platform["mastodon"] = broken

	ok, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "good", When: WhenNow()})
	require.NoError(t, err)
	bad, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "bad", Platform: "mastodon", When: WhenNow()})
	require.NoError(t, err)

	report, err := f.svc.DispatchDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Claimed)
	require.Len(t, report.Posted, 1)
	require.Len(t, report.Failed, 1)

	gotOK, _ := f.svc.Get(ctx, ok.ID)
	require.Equal(t, domain.PostStatusPosted, gotOK.Status)
	gotBad, _ := f.svc.Get(ctx, bad.ID)
	require.Equal(t, domain.PostStatusFailed, gotBad.Status)
	require.Contains(t, gotBad.Error, "503")
	require.Nil(t, gotBad.Result)
}

func TestDispatchUnregisteredPlatformFails(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	f.platform["gone"] = &fakePlatform{name: "gone", limit: 10}

	p, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "bye", Platform: "gone", When: WhenNow()})
	require.NoError(t, err)
	delete(f.platform, "gone")

	report, err := f.svc.DispatchDue(ctx)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	got, _ := f.svc.Get(ctx, p.ID)
	require.Equal(t, domain.PostStatusFailed, got.Status)
	require.Contains(t, got.Error, "not registered")
}

func TestConcurrentDispatchPublishesOnce(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "post", When: WhenNow()})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.DispatchDue(ctx)
		}()
	}
	wg.Wait()

	require.Len(t, f.bluesky.published(), 20)
	posted, err := f.store.List(ctx, domain.PostStatusPosted)
	require.NoError(t, err)
	require.Len(t, posted, 20)
}

func TestDispatchRenewsClaimBeforeEachPublish(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	_, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "first", When: WhenNow()})
	require.NoError(t, err)
	_, err = f.svc.Schedule(ctx, ScheduleRequest{Content: "second", When: WhenNow()})
	require.NoError(t, err)

	// Each publish takes 6m, so the batch outlives the 10m lease stamped at
	// claim time. A second poller runs while "second" is being published.
	var inner *domain.DispatchReport
	f.bluesky.onPost = func(content string) {
		f.clock.Set(f.clock.Now().Add(6 * time.Minute))
		if content == "second" && inner == nil {
			report, err := f.svc.DispatchDue(ctx)
			require.NoError(t, err)
			inner = report
		}
	}

	outer, err := f.svc.DispatchDue(ctx)
	require.NoError(t, err)
	require.Len(t, outer.Posted, 2)
	require.NotNil(t, inner)
	require.Equal(t, 0, inner.Claimed, "renewed claims must keep the second poller away")
	require.Equal(t, []string{"first", "second"}, f.bluesky.published())
}

func TestDispatchSkipsPostClaimedByAnotherDispatcher(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	_, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "first", When: WhenNow()})
	require.NoError(t, err)
	second, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "second", When: WhenNow()})
	require.NoError(t, err)

	f.bluesky.onPost = func(content string) {
		if content != "first" {
			return
		}
		_, err := f.store.Update(ctx, second.ID, func(q *domain.ScheduledPost) error {
			q.ClaimToken = "other-dispatcher"
			return nil
		})
		require.NoError(t, err)
	}

	report, err := f.svc.DispatchDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Claimed)
	require.Len(t, report.Posted, 1)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, []string{"first"}, f.bluesky.published())

	got, err := f.svc.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusPending, got.Status)
	require.Equal(t, "other-dispatcher", got.ClaimToken)
}

func TestDispatchOutcomeRequiresClaim(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	p, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "only", When: WhenNow()})
	require.NoError(t, err)
	f.bluesky.onPost = func(string) {
		_, err := f.store.Update(ctx, p.ID, func(q *domain.ScheduledPost) error {
			q.ClaimToken = "other-dispatcher"
			return nil
		})
		require.NoError(t, err)
	}

	_, err = f.svc.DispatchDue(ctx)
	var transition *port.InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusPending, got.Status, "outcome must not overwrite another dispatcher's claim")
}

func TestNewSchedulingServiceRejectsTimeoutOutlivingLease(t *testing.T) {
	_, err := NewSchedulingService(store.NewMemoryStore(), port.PlatformRegistry{}, newMemoryConfig(""), SchedulingOptions{
		PublishTimeout: 10 * time.Minute,
		ClaimLease:     10 * time.Minute,
	})
	require.Error(t, err)
}

func TestCancel(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	p, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "later", When: WhenAt(wed0900.Add(time.Hour))})
	require.NoError(t, err)

	got, err := f.svc.Cancel(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusCancelled, got.Status)

	f.clock.Set(wed0900.Add(2 * time.Hour))
	report, err := f.svc.DispatchDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Claimed)
	require.Empty(t, f.bluesky.published())
}

func TestCancelNonexistent(t *testing.T) {
	f := newSchedulingFixture(t)

	_, err := f.svc.Cancel(context.Background(), "nonexistent")
	var nf *port.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestCancelPostedIsRejected(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	p, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "now", When: WhenNow()})
	require.NoError(t, err)
	_, err = f.svc.DispatchDue(ctx)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, p.ID)
	var tr *port.InvalidTransitionError
	require.ErrorAs(t, err, &tr)

	got, _ := f.svc.Get(ctx, p.ID)
	require.Equal(t, domain.PostStatusPosted, got.Status)
}

func TestCancelClaimedIsRejected(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	p, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "now", When: WhenNow()})
	require.NoError(t, err)
	claimed, err := f.store.ClaimDue(ctx, wed0900, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	_, err = f.svc.Cancel(ctx, p.ID)
	var tr *port.InvalidTransitionError
	require.ErrorAs(t, err, &tr)
	require.Equal(t, "post is being published", tr.Reason)
}

func TestListPendingOrder(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	late, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "late", When: WhenAt(wed0900.Add(3 * time.Hour))})
	require.NoError(t, err)
	early, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "early", When: WhenAt(wed0900.Add(time.Hour))})
	require.NoError(t, err)
	tie, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "tie", When: WhenAt(wed0900.Add(time.Hour))})
	require.NoError(t, err)
	cancelled, err := f.svc.Schedule(ctx, ScheduleRequest{Content: "x", When: WhenAt(wed0900.Add(time.Hour))})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)

	view, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, view.Count)
	require.Equal(t, []string{early.ID, tie.ID, late.ID},
		[]string{view.Pending[0].ID, view.Pending[1].ID, view.Pending[2].ID})
	require.Len(t, view.UpcomingOptimal, 3)
	require.Equal(t, 10, view.UpcomingOptimal[0].At.Hour())
}

func TestPublishNow(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	p, err := f.svc.PublishNow(ctx, "live!", "")
	require.NoError(t, err)
	require.Equal(t, domain.PostStatusPosted, p.Status)

	history, err := f.svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, p.ID, history[0].ID)

	report, err := f.svc.DispatchDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Claimed)
	require.Len(t, f.bluesky.published(), 1)
}

func TestPublishNowRequiresCredentials(t *testing.T) {
	f := newSchedulingFixture(t)
	delete(f.config.creds, "bluesky")

	_, err := f.svc.PublishNow(context.Background(), "live!", "bluesky")
	var verr *port.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Platform 'bluesky' is not configured. Use the configure tool first.", verr.Message)
}

func TestPublishNowReportsFailure(t *testing.T) {
	f := newSchedulingFixture(t)
	f.bluesky.fail = errors.New("rate limited")

	p, err := f.svc.PublishNow(context.Background(), "live!", "bluesky")
	var perr *port.PublishError
	require.ErrorAs(t, err, &perr)
	require.NotNil(t, p)
	require.Equal(t, domain.PostStatusFailed, p.Status)
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	first, err := f.svc.PublishNow(ctx, "first", "")
	require.NoError(t, err)
	f.clock.Set(wed0900.Add(time.Hour))
	second, err := f.svc.PublishNow(ctx, "second", "")
	require.NoError(t, err)

	history, err := f.svc.History(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID, first.ID}, []string{history[0].ID, history[1].ID})

	limited, err := f.svc.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}
