package eventbus

import (
	"context"
	"errors"
	"sync"
)

var ErrWatcherClosed = errors.New("watcher closed")

// Watcher collects the events of a fixed set of topics into an unbounded
// buffer, so a slow consumer (e.g. a network stream) never blocks publishers.
type Watcher struct {
	bus *Bus
	ids []string

	pending []Event
	closed  bool
	notify  chan struct{}
	mu      sync.Mutex
}

// Watch subscribes to topics and returns a Watcher receiving their events in
// publish order. Close must be called to release the subscriptions.
func (b *Bus) Watch(topics ...string) *Watcher {
	w := &Watcher{
		bus:    b,
		notify: make(chan struct{}, 1),
	}

	for _, topic := range topics {
		w.ids = append(w.ids, b.Subscribe(topic, w.push))
	}

	return w
}

func (w *Watcher) push(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	w.pending = append(w.pending, e)

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Next returns the next event, blocking until one arrives, ctx is done, or
// the Watcher is closed.
func (w *Watcher) Next(ctx context.Context) (Event, error) {
	for {
		w.mu.Lock()

		if w.closed {
			w.mu.Unlock()
			return Event{}, ErrWatcherClosed
		}

		if len(w.pending) > 0 {
			e := w.pending[0]
			w.pending[0] = Event{}
			w.pending = w.pending[1:]
			w.mu.Unlock()

			return e, nil
		}

		w.mu.Unlock()

		select {
		case <-w.notify:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close unsubscribes the Watcher and discards pending events. Closing an
// already closed Watcher is a no-op.
func (w *Watcher) Close() {
	w.mu.Lock()

	if w.closed {
		w.mu.Unlock()
		return
	}

	w.closed = true
	w.pending = nil
	close(w.notify)

	w.mu.Unlock()

	for _, id := range w.ids {
		w.bus.Unsubscribe(id)
	}
}
