package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Sxientrie/reddit-hawk/internal/dedup"
	"github.com/Sxientrie/reddit-hawk/internal/model"
	"github.com/Sxientrie/reddit-hawk/internal/notify"
	"github.com/Sxientrie/reddit-hawk/internal/reddit"
	"github.com/Sxientrie/reddit-hawk/internal/store"
)

type mockFetcher struct {
	mu    sync.Mutex
	posts []model.Post
	err   error
	calls int
}

func (m *mockFetcher) FetchBatch(_ context.Context, _ []string) ([]model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.posts, nil
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockScheduler struct {
	mu        sync.Mutex
	delays    []time.Duration
	cancelled int
	resumable bool
}

func (m *mockScheduler) Schedule(_ context.Context, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, delay)
	return nil
}

func (m *mockScheduler) Resume(_ context.Context) bool { return m.resumable }

func (m *mockScheduler) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled++
}

func (m *mockScheduler) lastDelay(t *testing.T) time.Duration {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.delays) == 0 {
		t.Fatal("nothing was scheduled")
	}
	return m.delays[len(m.delays)-1]
}

type mockNotifier struct {
	mu     sync.Mutex
	events []notify.Kind
}

func (m *mockNotifier) Notify(_ context.Context, kind notify.Kind, _ model.QuietHours) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, kind)
}

func (m *mockNotifier) kinds() []notify.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]notify.Kind, len(m.events))
	copy(cp, m.events)
	return cp
}

type fixture struct {
	poller   *Poller
	durable  *store.Memory
	session  *store.Memory
	fetcher  *mockFetcher
	sched    *mockScheduler
	notifier *mockNotifier
}

func newFixture(t *testing.T, fetcher *mockFetcher) *fixture {
	t.Helper()
	durable := store.NewMemory()
	session := store.NewMemory()
	sched := &mockScheduler{}
	notifier := &mockNotifier{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(durable, session, fetcher, notifier, sched, log)
	return &fixture{
		poller:   p,
		durable:  durable,
		session:  session,
		fetcher:  fetcher,
		sched:    sched,
		notifier: notifier,
	}
}

func (f *fixture) setRules(t *testing.T, rules model.Ruleset) {
	t.Helper()
	if err := store.SetJSON(context.Background(), f.durable, store.KeyConfig, rules); err != nil {
		t.Fatalf("seed ruleset: %v", err)
	}
}

func watchRules(subreddits, keywords, poison []string) model.Ruleset {
	r := model.DefaultRuleset()
	r.Subreddits = subreddits
	r.Keywords = keywords
	r.PoisonKeywords = poison
	return r
}

func (f *fixture) hits(t *testing.T) []model.Post {
	t.Helper()
	hits, err := f.poller.Hits(context.Background())
	if err != nil {
		t.Fatalf("read hits: %v", err)
	}
	return hits
}

func (f *fixture) seenIDs(t *testing.T) []string {
	t.Helper()
	seen := dedup.NewSeenSet()
	err := store.GetJSON(context.Background(), f.session, store.KeySeenSet, seen)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("read seen set: %v", err)
	}
	return seen.IDs()
}

func TestCycleScenario(t *testing.T) {
	fetcher := &mockFetcher{posts: []model.Post{
		{ID: "a", Title: "hire a dev", Subreddit: "test", CreatedUTC: 1000},
		{ID: "b", Title: "unpaid hire", Subreddit: "test", CreatedUTC: 1001},
	}}
	f := newFixture(t, fetcher)
	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, []string{"unpaid"}))

	f.poller.Start(context.Background())

	hits := f.hits(t)
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Fatalf("hits = %+v, want only post a", hits)
	}

	if diff := cmp.Diff([]string{"a", "b"}, f.seenIDs(t)); diff != "" {
		t.Errorf("seen set mismatch (-want +got):\n%s", diff)
	}

	var latest float64
	if err := store.GetJSON(context.Background(), f.durable, store.KeyLatestHitTS, &latest); err != nil {
		t.Fatalf("read watermark: %v", err)
	}
	if latest != 1000 {
		t.Errorf("latest hit = %v, want 1000 (max created among matches)", latest)
	}

	// Audio is on by default, so both kinds fire.
	want := []notify.Kind{notify.KindUIRefresh, notify.KindSound}
	if diff := cmp.Diff(want, f.notifier.kinds()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	if got := f.sched.lastDelay(t); got != 30*time.Second {
		t.Errorf("next delay = %v, want configured interval", got)
	}

	status := f.poller.Status()
	if status.State != model.StateIdle {
		t.Errorf("state = %v, want idle after cycle", status.State)
	}
}

func TestCycleFreshnessDropsZombies(t *testing.T) {
	fetcher := &mockFetcher{posts: []model.Post{
		{ID: "c", Title: "hire someone", CreatedUTC: 1500},
	}}
	f := newFixture(t, fetcher)
	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, nil))
	if err := store.SetJSON(context.Background(), f.durable, store.KeyLatestHitTS, float64(2000)); err != nil {
		t.Fatalf("seed watermark: %v", err)
	}

	f.poller.Start(context.Background())

	if hits := f.hits(t); len(hits) != 0 {
		t.Errorf("zombie post must not be cached, got %+v", hits)
	}
	// Dropped before dedup: the seen set stays empty.
	if ids := f.seenIDs(t); len(ids) != 0 {
		t.Errorf("seen set must be unchanged, got %v", ids)
	}
	if kinds := f.notifier.kinds(); len(kinds) != 0 {
		t.Errorf("no notification expected, got %v", kinds)
	}
}

func TestCycleIdempotent(t *testing.T) {
	fetcher := &mockFetcher{posts: []model.Post{
		{ID: "a", Title: "hire a dev", CreatedUTC: 1000},
		{ID: "x", Title: "irrelevant", CreatedUTC: 1001},
	}}
	f := newFixture(t, fetcher)
	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, nil))

	f.poller.Start(context.Background())
	eventsAfterFirst := len(f.notifier.kinds())
	hitsAfterFirst := len(f.hits(t))

	// Same upstream batch again: freshness drops "a" (at the watermark)
	// and dedup drops "x".
	f.poller.Poll(context.Background())

	if got := len(f.hits(t)); got != hitsAfterFirst {
		t.Errorf("hits grew from %d to %d on identical batch", hitsAfterFirst, got)
	}
	if got := len(f.notifier.kinds()); got != eventsAfterFirst {
		t.Errorf("events grew from %d to %d on identical batch", eventsAfterFirst, got)
	}
}

func TestCycleRateLimit(t *testing.T) {
	fetcher := &mockFetcher{err: &reddit.RateLimitError{Reset: 45}}
	f := newFixture(t, fetcher)
	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, nil))
	if err := store.SetJSON(context.Background(), f.session, store.KeySeenSet, []string{"pre"}); err != nil {
		t.Fatalf("seed seen set: %v", err)
	}

	f.poller.Start(context.Background())

	if got := f.sched.lastDelay(t); got != 45*time.Second {
		t.Errorf("delay = %v, want exactly the reported reset", got)
	}
	if n := f.poller.Status().ConsecutiveErrors; n != 0 {
		t.Errorf("error counter = %d, rate limits must not count as errors", n)
	}
	if diff := cmp.Diff([]string{"pre"}, f.seenIDs(t)); diff != "" {
		t.Errorf("seen set mutated during rate limit (-want +got):\n%s", diff)
	}
	if hits := f.hits(t); len(hits) != 0 {
		t.Errorf("hits mutated during rate limit: %+v", hits)
	}
}

func TestCycleRateLimitDelayFloor(t *testing.T) {
	fetcher := &mockFetcher{err: &reddit.RateLimitError{Reset: 0}}
	f := newFixture(t, fetcher)
	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, nil))

	f.poller.Start(context.Background())

	// A zero reset must not schedule an immediate retry.
	if got := f.sched.lastDelay(t); got != minRateLimitDelay {
		t.Errorf("delay = %v, want floor %v", got, minRateLimitDelay)
	}
}

func TestCycleErrorBackoff(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("connection reset")}
	f := newFixture(t, fetcher)
	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, nil))

	f.poller.Start(context.Background())
	if got := f.sched.lastDelay(t); got != 60*time.Second {
		t.Errorf("first failure delay = %v, want 30*2^1 = 60s", got)
	}

	f.poller.Poll(context.Background())
	if got := f.sched.lastDelay(t); got != 120*time.Second {
		t.Errorf("second failure delay = %v, want 30*2^2 = 120s", got)
	}

	// One success resets to the plain interval.
	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.mu.Unlock()
	f.poller.Poll(context.Background())

	if got := f.sched.lastDelay(t); got != 30*time.Second {
		t.Errorf("delay after success = %v, want base interval", got)
	}
	if n := f.poller.Status().ConsecutiveErrors; n != 0 {
		t.Errorf("error counter = %d, want 0 after success", n)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		errCount int
		want     time.Duration
	}{
		{errCount: 0, want: 30 * time.Second},
		{errCount: 1, want: 60 * time.Second},
		{errCount: 2, want: 120 * time.Second},
		{errCount: 3, want: 240 * time.Second},
		{errCount: 4, want: 300 * time.Second},
		{errCount: 20, want: 300 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(30, tt.errCount); got != tt.want {
			t.Errorf("backoffDelay(30, %d) = %v, want %v", tt.errCount, got, tt.want)
		}
	}
}

func TestCycleNoSubreddits(t *testing.T) {
	fetcher := &mockFetcher{}
	f := newFixture(t, fetcher)

	f.poller.Start(context.Background())

	if fetcher.callCount() != 0 {
		t.Error("fetcher must not be called without subreddits")
	}
	if got := f.sched.lastDelay(t); got != time.Minute {
		t.Errorf("recheck delay = %v, want fixed 1 minute", got)
	}
}

func TestHitsCapAndOrder(t *testing.T) {
	var posts []model.Post
	for i := 0; i < 150; i++ {
		posts = append(posts, model.Post{
			ID:         fmt.Sprintf("p-%d", i),
			Title:      "hire me",
			CreatedUTC: float64(1000 + i),
		})
	}
	fetcher := &mockFetcher{posts: posts}
	f := newFixture(t, fetcher)
	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, nil))

	f.poller.Start(context.Background())

	hits := f.hits(t)
	if len(hits) != MaxHits {
		t.Fatalf("hits len = %d, want cap %d", len(hits), MaxHits)
	}
	if hits[0].ID != "p-0" {
		t.Errorf("hits[0] = %s, want newest batch first", hits[0].ID)
	}
}

func TestStopPreventsFurtherCycles(t *testing.T) {
	fetcher := &mockFetcher{posts: nil}
	f := newFixture(t, fetcher)
	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, nil))

	f.poller.Start(context.Background())
	calls := fetcher.callCount()

	f.poller.Stop()

	if f.sched.cancelled != 1 {
		t.Errorf("cancel count = %d, want 1", f.sched.cancelled)
	}
	if got := f.poller.Status().State; got != model.StateStopped {
		t.Errorf("state = %v, want stopped", got)
	}

	// A stale trigger firing after stop is a no-op.
	f.poller.Poll(context.Background())
	if fetcher.callCount() != calls {
		t.Error("poll after stop must not fetch")
	}
}

func TestStartResumesPersistedTrigger(t *testing.T) {
	fetcher := &mockFetcher{}
	f := newFixture(t, fetcher)
	f.sched.resumable = true
	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, nil))

	f.poller.Start(context.Background())

	if fetcher.callCount() != 0 {
		t.Error("resumed trigger must defer the first cycle")
	}
	if got := f.poller.Status().State; got != model.StateIdle {
		t.Errorf("state = %v, want idle while waiting on resumed trigger", got)
	}
}

func TestCycleMutualExclusion(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := &blockingFetcher{entered: entered, release: release}
	f := newFixture(t, &mockFetcher{})
	// Swap in the blocking fetcher after construction.
	f.poller.fetcher = fetcher

	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, nil))

	done := make(chan struct{})
	go func() {
		f.poller.Start(context.Background())
		close(done)
	}()

	<-entered

	// Second trigger while the first cycle is mid-fetch must be skipped.
	f.poller.Poll(context.Background())
	if n := fetcher.callCount(); n != 1 {
		t.Errorf("fetch calls = %d, want 1 while a cycle is in flight", n)
	}

	close(release)
	<-done
}

type blockingFetcher struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) FetchBatch(_ context.Context, _ []string) ([]model.Post, error) {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	if first {
		close(b.entered)
		<-b.release
	}
	return nil, nil
}

func (b *blockingFetcher) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestDismiss(t *testing.T) {
	f := newFixture(t, &mockFetcher{})
	ctx := context.Background()

	seed := []model.Post{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if err := store.SetJSON(ctx, f.durable, store.KeyHitsCache, seed); err != nil {
		t.Fatalf("seed hits: %v", err)
	}

	removed, err := f.poller.Dismiss(ctx, "b")
	if err != nil || !removed {
		t.Fatalf("dismiss = (%v, %v), want (true, nil)", removed, err)
	}

	var ids []string
	for _, h := range f.hits(t) {
		ids = append(ids, h.ID)
	}
	if diff := cmp.Diff([]string{"a", "c"}, ids); diff != "" {
		t.Errorf("hits after dismiss (-want +got):\n%s", diff)
	}

	removed, err = f.poller.Dismiss(ctx, "zzz")
	if err != nil || removed {
		t.Errorf("dismiss missing = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestWatermarkNeverDecreases(t *testing.T) {
	fetcher := &mockFetcher{posts: []model.Post{
		{ID: "n", Title: "hire now", CreatedUTC: 3000},
	}}
	f := newFixture(t, fetcher)
	f.setRules(t, watchRules([]string{"test"}, []string{"hire"}, nil))
	if err := store.SetJSON(context.Background(), f.durable, store.KeyLatestHitTS, float64(2000)); err != nil {
		t.Fatalf("seed watermark: %v", err)
	}

	f.poller.Start(context.Background())

	var latest float64
	if err := store.GetJSON(context.Background(), f.durable, store.KeyLatestHitTS, &latest); err != nil {
		t.Fatalf("read watermark: %v", err)
	}
	if latest != 3000 {
		t.Errorf("watermark = %v, want advanced to 3000", latest)
	}
}
