package poller

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/Sxientrie/reddit-hawk/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDurableTimerFires(t *testing.T) {
	tm := NewDurableTimer(store.NewMemory(), discardLogger())

	fired := make(chan struct{}, 1)
	tm.Bind(func() { fired <- struct{}{} })

	if err := tm.Schedule(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestDurableTimerResumeAfterRestart(t *testing.T) {
	ctx := context.Background()
	durable := store.NewMemory()

	// First "process" schedules and dies without firing.
	tm1 := NewDurableTimer(durable, discardLogger())
	tm1.Bind(func() {})
	if err := tm1.Schedule(ctx, time.Hour); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	tm1.mu.Lock()
	tm1.timer.Stop()
	tm1.mu.Unlock()

	// Second process resumes the persisted trigger.
	tm2 := NewDurableTimer(durable, discardLogger())
	tm2.Bind(func() {})
	if !tm2.Resume(ctx) {
		t.Fatal("expected resume from persisted trigger")
	}
	tm2.Cancel()
}

func TestDurableTimerOverdueResumesImmediately(t *testing.T) {
	ctx := context.Background()
	durable := store.NewMemory()

	// A next-fire time in the past, as left behind by a dead process.
	past := strconv.FormatInt(time.Now().Add(-time.Minute).Unix(), 10)
	if err := durable.Set(ctx, store.KeyNextFireUnix, []byte(past)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tm := NewDurableTimer(durable, discardLogger())
	fired := make(chan struct{}, 1)
	tm.Bind(func() { fired <- struct{}{} })

	if !tm.Resume(ctx) {
		t.Fatal("expected resume")
	}
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("overdue trigger did not fire immediately")
	}
}

func TestDurableTimerCancelClearsState(t *testing.T) {
	ctx := context.Background()
	durable := store.NewMemory()

	tm := NewDurableTimer(durable, discardLogger())
	tm.Bind(func() { t.Error("cancelled timer must not fire") })
	if err := tm.Schedule(ctx, 200*time.Millisecond); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	tm.Cancel()

	if _, err := durable.Get(ctx, store.KeyNextFireUnix); err == nil {
		t.Error("persisted fire time not cleared")
	}
	if tm.Resume(ctx) {
		t.Error("resume after cancel must report false")
	}

	time.Sleep(300 * time.Millisecond)
}
