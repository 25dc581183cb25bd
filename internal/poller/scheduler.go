package poller

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Sxientrie/reddit-hawk/internal/store"
)

// Scheduler is the durable trigger capability the orchestrator
// reschedules itself through. Firing is at-least-once; the orchestrator's
// own dedup absorbs duplicate fires.
type Scheduler interface {
	// Schedule arms the trigger to fire once after delay, replacing any
	// pending trigger.
	Schedule(ctx context.Context, delay time.Duration) error
	// Resume re-arms a trigger persisted by a previous process, if any.
	// Reports whether a trigger was resumed.
	Resume(ctx context.Context) bool
	// Cancel disarms the pending trigger.
	Cancel()
}

// DurableTimer implements Scheduler with an in-process timer plus the
// absolute next-fire time persisted in the durable store, so a restart
// picks up where the dead process left off. An overdue persisted trigger
// fires immediately on Resume.
type DurableTimer struct {
	durable store.Store
	log     *slog.Logger

	mu    sync.Mutex
	fire  func()
	timer *time.Timer
}

// NewDurableTimer creates an unarmed timer backed by the durable store.
func NewDurableTimer(durable store.Store, log *slog.Logger) *DurableTimer {
	return &DurableTimer{durable: durable, log: log}
}

// Bind sets the function invoked when the trigger fires. Must be called
// before Schedule or Resume.
func (t *DurableTimer) Bind(fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fire = fire
}

// Schedule persists the next-fire time and arms the timer.
func (t *DurableTimer) Schedule(ctx context.Context, delay time.Duration) error {
	fireAt := time.Now().Add(delay).Unix()
	if err := t.durable.Set(ctx, store.KeyNextFireUnix, []byte(strconv.FormatInt(fireAt, 10))); err != nil {
		// The in-process timer still works; only restart resumption is lost.
		t.log.Warn("persist next fire time", "error", err)
	}

	t.arm(delay)
	t.log.Debug("next poll scheduled", "delay_s", int(delay.Seconds()))
	return nil
}

// Resume re-arms from the persisted next-fire time.
func (t *DurableTimer) Resume(ctx context.Context) bool {
	raw, err := t.durable.Get(ctx, store.KeyNextFireUnix)
	if err != nil {
		return false
	}
	fireAt, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return false
	}

	delay := time.Until(time.Unix(fireAt, 0))
	if delay < 0 {
		delay = 0
	}
	t.arm(delay)
	t.log.Info("resumed persisted trigger", "delay_s", int(delay.Seconds()))
	return true
}

// Cancel disarms the timer and clears the persisted next-fire time.
func (t *DurableTimer) Cancel() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	if err := t.durable.Remove(context.Background(), store.KeyNextFireUnix); err != nil {
		t.log.Warn("clear next fire time", "error", err)
	}
}

func (t *DurableTimer) arm(delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	fire := t.fire
	t.timer = time.AfterFunc(delay, fire)
}
