// Package poller implements the orchestration core: a recurring cycle
// that fetches new posts, runs them through the freshness, dedup and
// keyword stages, persists the results, and reschedules itself through a
// durable trigger.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Sxientrie/reddit-hawk/internal/dedup"
	"github.com/Sxientrie/reddit-hawk/internal/matcher"
	"github.com/Sxientrie/reddit-hawk/internal/metrics"
	"github.com/Sxientrie/reddit-hawk/internal/model"
	"github.com/Sxientrie/reddit-hawk/internal/notify"
	"github.com/Sxientrie/reddit-hawk/internal/reddit"
	"github.com/Sxientrie/reddit-hawk/internal/store"
)

const (
	// MaxHits caps the persisted cache of matched posts.
	MaxHits = 100

	// noSubredditsDelay is the fixed recheck delay used when the ruleset
	// has nothing to watch. Distinct from error backoff.
	noSubredditsDelay = time.Minute

	// minRateLimitDelay floors the retry delay after a rate limit, so a
	// zero or missing reset value cannot produce a hot reschedule loop.
	minRateLimitDelay = 30 * time.Second

	maxBackoffSeconds = 300
)

// Fetcher is the upstream client interface.
type Fetcher interface {
	FetchBatch(ctx context.Context, subreddits []string) ([]model.Post, error)
}

// Notifier is the event fan-out interface.
type Notifier interface {
	Notify(ctx context.Context, kind notify.Kind, quiet model.QuietHours)
}

// Poller owns the recurring poll cycle. Construct one per process; the
// zero value is not usable.
type Poller struct {
	durable  store.Store
	session  store.Store
	fetcher  Fetcher
	notifier Notifier
	sched    Scheduler
	log      *slog.Logger

	mu                sync.Mutex
	started           bool
	cycleActive       bool
	consecutiveErrors int
	seenCount         int
	lastCycle         time.Time

	// hitsMu serializes every write to the hits cache, so a user dismiss
	// never interleaves with the cycle's prepend.
	hitsMu sync.Mutex
}

// New creates a Poller in the Stopped state.
func New(durable, session store.Store, fetcher Fetcher, notifier Notifier, sched Scheduler, log *slog.Logger) *Poller {
	return &Poller{
		durable:  durable,
		session:  session,
		fetcher:  fetcher,
		notifier: notifier,
		sched:    sched,
		log:      log,
	}
}

// Start transitions Stopped -> Running. If a previous process left a
// pending trigger behind, it is resumed; otherwise the first cycle runs
// immediately.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.consecutiveErrors = 0
	p.mu.Unlock()

	p.log.Info("poller started")

	if p.sched.Resume(ctx) {
		return
	}
	p.Poll(ctx)
}

// Stop cancels the pending trigger and forces the Stopped state. A cycle
// already in flight completes, but will not reschedule.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.started = false
	p.consecutiveErrors = 0
	p.mu.Unlock()

	p.sched.Cancel()
	p.log.Info("poller stopped")
}

// Status returns a snapshot for the control API.
func (p *Poller) Status() model.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := model.StateStopped
	switch {
	case p.started && p.cycleActive:
		state = model.StateRunning
	case p.started:
		state = model.StateIdle
	}

	var last int64
	if !p.lastCycle.IsZero() {
		last = p.lastCycle.Unix()
	}
	return model.Status{
		State:             state,
		ConsecutiveErrors: p.consecutiveErrors,
		SeenCount:         p.seenCount,
		LastCycleUnix:     last,
	}
}

// Poll executes one cycle. Called by the trigger; safe to call while a
// cycle is already in flight (the re-entrant call is skipped).
func (p *Poller) Poll(ctx context.Context) {
	if !p.isStarted() {
		p.log.Debug("poll called while stopped, skipping")
		return
	}
	if !p.tryAcquire() {
		p.log.Debug("cycle already in flight, skipping")
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		return
	}
	// The guard is process-local only: a fresh process naturally starts
	// unlocked, so a teardown mid-cycle cannot wedge the next one.
	defer p.release()

	rules := p.loadRuleset(ctx)
	interval := time.Duration(rules.Interval()) * time.Second

	if len(rules.Subreddits) == 0 {
		p.log.Info("no subreddits configured, sleeping")
		p.scheduleNext(ctx, noSubredditsDelay)
		metrics.CyclesTotal.WithLabelValues("no_subreddits").Inc()
		return
	}

	seen := p.loadSeen(ctx)
	latestHit := p.loadLatestHit(ctx)

	p.log.Debug("cycle begin", "subreddits", len(rules.Subreddits), "seen", seen.Len(), "latest_hit", latestHit)

	posts, err := p.fetcher.FetchBatch(ctx, rules.Subreddits)
	if err != nil {
		var rle *reddit.RateLimitError
		if errors.As(err, &rle) {
			// Rate-limit waits are kept out of the error backoff counter
			// so quota recovery is not also penalized exponentially.
			delay := time.Duration(rle.Reset * float64(time.Second))
			if delay < minRateLimitDelay {
				delay = minRateLimitDelay
			}
			p.log.Warn("rate limited", "reset_s", rle.Reset, "retry_s", int(delay.Seconds()))
			p.scheduleNext(ctx, delay)
			metrics.CyclesTotal.WithLabelValues("rate_limited").Inc()
			return
		}

		n := p.bumpErrors()
		delay := backoffDelay(rules.Interval(), n)
		p.log.Error("fetch failed", "error", err, "consecutive", n, "retry_s", int(delay.Seconds()))
		p.scheduleNext(ctx, delay)
		metrics.CyclesTotal.WithLabelValues("fetch_error").Inc()
		return
	}
	p.resetErrors()

	fresh := dedup.Fresh(posts, latestHit)
	unseen := seen.Filter(fresh)

	// Everything surviving freshness+dedup is marked seen, matched or
	// not, so unmatched posts are not re-evaluated every cycle.
	for _, post := range unseen {
		seen.Add(post.ID)
	}

	matched := matcher.FilterPosts(unseen, rules)
	metrics.PostsMatched.Add(float64(len(matched)))

	p.saveSeen(ctx, seen)

	if len(matched) > 0 {
		p.log.Info("new matches", "count", len(matched))
		p.storeHits(ctx, matched, latestHit)

		p.notifier.Notify(ctx, notify.KindUIRefresh, rules.QuietHours)
		if rules.AudioEnabled {
			p.notifier.Notify(ctx, notify.KindSound, rules.QuietHours)
		}
	}

	p.scheduleNext(ctx, interval)
	metrics.CyclesTotal.WithLabelValues("success").Inc()
}

// Dismiss removes a single cached hit by ID, serialized against the
// cycle's own hits-cache writes. Reports whether the hit existed.
func (p *Poller) Dismiss(ctx context.Context, id string) (bool, error) {
	p.hitsMu.Lock()
	defer p.hitsMu.Unlock()

	var hits []model.Post
	if err := store.GetJSON(ctx, p.durable, store.KeyHitsCache, &hits); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	kept := hits[:0]
	removed := false
	for _, hit := range hits {
		if hit.ID == id {
			removed = true
			continue
		}
		kept = append(kept, hit)
	}
	if !removed {
		return false, nil
	}
	return true, store.SetJSON(ctx, p.durable, store.KeyHitsCache, kept)
}

// Hits returns the cached matches, most recent first.
func (p *Poller) Hits(ctx context.Context) ([]model.Post, error) {
	var hits []model.Post
	err := store.GetJSON(ctx, p.durable, store.KeyHitsCache, &hits)
	if errors.Is(err, store.ErrNotFound) {
		return []model.Post{}, nil
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// storeHits prepends matched posts to the cache and advances the
// latest-hit watermark. Holding hitsMu keeps dismiss requests out.
func (p *Poller) storeHits(ctx context.Context, matched []model.Post, latestHit float64) {
	p.hitsMu.Lock()
	defer p.hitsMu.Unlock()

	var hits []model.Post
	if err := store.GetJSON(ctx, p.durable, store.KeyHitsCache, &hits); err != nil && !errors.Is(err, store.ErrNotFound) {
		p.log.Warn("load hits cache", "error", err)
	}

	hits = append(append([]model.Post{}, matched...), hits...)
	if len(hits) > MaxHits {
		hits = hits[:MaxHits]
	}
	if err := store.SetJSON(ctx, p.durable, store.KeyHitsCache, hits); err != nil {
		p.log.Warn("save hits cache", "error", err)
	}

	maxCreated := latestHit
	for _, hit := range matched {
		if hit.CreatedUTC > maxCreated {
			maxCreated = hit.CreatedUTC
		}
	}
	// The watermark never decreases.
	if maxCreated > latestHit {
		if err := store.SetJSON(ctx, p.durable, store.KeyLatestHitTS, maxCreated); err != nil {
			p.log.Warn("save latest hit timestamp", "error", err)
		}
	}
}

func (p *Poller) loadRuleset(ctx context.Context) model.Ruleset {
	rules := model.DefaultRuleset()
	if err := store.GetJSON(ctx, p.durable, store.KeyConfig, &rules); err != nil && !errors.Is(err, store.ErrNotFound) {
		p.log.Warn("load ruleset, using defaults", "error", err)
		return model.DefaultRuleset()
	}
	return rules
}

func (p *Poller) loadSeen(ctx context.Context) *dedup.SeenSet {
	seen := dedup.NewSeenSet()
	if err := store.GetJSON(ctx, p.session, store.KeySeenSet, seen); err != nil && !errors.Is(err, store.ErrNotFound) {
		p.log.Warn("load seen set, starting empty", "error", err)
		return dedup.NewSeenSet()
	}
	return seen
}

func (p *Poller) saveSeen(ctx context.Context, seen *dedup.SeenSet) {
	if err := store.SetJSON(ctx, p.session, store.KeySeenSet, seen); err != nil {
		p.log.Warn("save seen set", "error", err)
	}
	p.mu.Lock()
	p.seenCount = seen.Len()
	p.mu.Unlock()
}

func (p *Poller) loadLatestHit(ctx context.Context) float64 {
	var ts float64
	if err := store.GetJSON(ctx, p.durable, store.KeyLatestHitTS, &ts); err != nil {
		return 0
	}
	return ts
}

func (p *Poller) scheduleNext(ctx context.Context, delay time.Duration) {
	if !p.isStarted() {
		p.log.Debug("stopped during cycle, not rescheduling")
		return
	}
	if err := p.sched.Schedule(ctx, delay); err != nil {
		p.log.Error("schedule next poll", "error", err)
	}
}

func (p *Poller) isStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *Poller) tryAcquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cycleActive {
		return false
	}
	p.cycleActive = true
	return true
}

func (p *Poller) release() {
	p.mu.Lock()
	p.cycleActive = false
	p.lastCycle = time.Now()
	p.mu.Unlock()
}

func (p *Poller) bumpErrors() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveErrors++
	return p.consecutiveErrors
}

func (p *Poller) resetErrors() {
	p.mu.Lock()
	p.consecutiveErrors = 0
	p.mu.Unlock()
}

// backoffDelay computes min(base * 2^errCount, 300s).
func backoffDelay(baseSeconds, errCount int) time.Duration {
	if errCount > 10 {
		errCount = 10
	}
	seconds := baseSeconds << errCount
	if seconds > maxBackoffSeconds || seconds <= 0 {
		seconds = maxBackoffSeconds
	}
	return time.Duration(seconds) * time.Second
}
