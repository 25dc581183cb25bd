// Package notify delivers payload-free notification events to pluggable
// sinks. Consumers that need the actual matches re-read the persisted
// hits cache instead of receiving them in the event.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sxientrie/reddit-hawk/internal/metrics"
	"github.com/Sxientrie/reddit-hawk/internal/model"
)

// Kind names a notification event type.
type Kind string

// Notification kinds.
const (
	KindSound     Kind = "sound"
	KindUIRefresh Kind = "ui-refresh"
)

// Sink receives notification events. Implementations must tolerate
// being called for kinds they do not care about.
type Sink interface {
	Name() string
	Notify(ctx context.Context, kind Kind) error
}

// Notifier fans out events to all registered sinks. Delivery is
// fire-and-forget: failures are logged and counted, never retried, and
// never block the caller.
type Notifier struct {
	sinks []Sink
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Notifier over the given sinks.
func New(log *slog.Logger, sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks, log: log, now: time.Now}
}

// Notify delivers kind to every sink unless the quiet-hours window is
// active.
func (n *Notifier) Notify(ctx context.Context, kind Kind, quiet model.QuietHours) {
	if InQuietHours(quiet, n.now()) {
		n.log.Debug("notification suppressed by quiet hours", "kind", kind)
		return
	}

	for _, sink := range n.sinks {
		if err := sink.Notify(ctx, kind); err != nil {
			metrics.NotifyErrors.Inc()
			n.log.Warn("notify sink failed", "sink", sink.Name(), "kind", kind, "error", err)
		}
	}
}

// InQuietHours reports whether now falls inside the quiet window.
// The window may cross midnight ("22:00" to "08:00"). Malformed times
// disable the window rather than silencing the daemon forever.
func InQuietHours(q model.QuietHours, now time.Time) bool {
	if !q.Enabled {
		return false
	}

	start, ok1 := minutesOfDay(q.Start)
	end, ok2 := minutesOfDay(q.End)
	if !ok1 || !ok2 || start == end {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	if start < end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

func minutesOfDay(hhmm string) (int, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
