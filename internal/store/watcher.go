package store

import (
	"context"
	"sync"
)

// Watched wraps a Store and notifies subscribers about writes made
// through it. Notification is in-process only: writes performed against
// the underlying store directly are not observed.
type Watched struct {
	Store

	mu     sync.Mutex
	nextID int
	subs   map[int]func(key string, value []byte)
}

// Watch wraps s with change notification.
func Watch(s Store) *Watched {
	return &Watched{
		Store: s,
		subs:  make(map[int]func(key string, value []byte)),
	}
}

// Subscribe registers fn to be called after every successful Set or
// Remove. Remove delivers a nil value. The returned cancel function
// unregisters the subscription.
func (w *Watched) Subscribe(fn func(key string, value []byte)) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs, id)
	}
}

// Set writes through to the wrapped store, then notifies subscribers.
func (w *Watched) Set(ctx context.Context, key string, value []byte) error {
	if err := w.Store.Set(ctx, key, value); err != nil {
		return err
	}
	w.notify(key, value)
	return nil
}

// Remove writes through to the wrapped store, then notifies subscribers
// with a nil value.
func (w *Watched) Remove(ctx context.Context, key string) error {
	if err := w.Store.Remove(ctx, key); err != nil {
		return err
	}
	w.notify(key, nil)
	return nil
}

func (w *Watched) notify(key string, value []byte) {
	w.mu.Lock()
	fns := make([]func(string, []byte), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(key, value)
	}
}
