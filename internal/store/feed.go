package store

import (
	"context"
	"sync"

	"doable/internal/events"
)

// Subscription is a live feed over one query. Each delivery is the full
// current result set, never an incremental patch; consumers replace their
// snapshot wholesale. Unsubscribe releases the feed and is safe to call
// more than once.
type Subscription struct {
	cancel  func()
	stop    chan struct{}
	stopped sync.Once
	done    chan struct{}
}

func (s *Subscription) Unsubscribe() {
	s.stopped.Do(func() {
		s.cancel()
		close(s.stop)
		<-s.done
	})
}

// Subscribe opens a feed over the query. fn receives an initial snapshot
// immediately, then a fresh one after every observed change to the
// collection. Deliveries are serialized; a change that arrives while fn runs
// coalesces into one trailing re-query rather than queueing per event.
func (g *Gateway[T]) Subscribe(ctx context.Context, opts QueryOptions, fn func([]T)) (*Subscription, error) {
	kick := make(chan struct{}, 1)
	sub := &Subscription{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	sub.cancel = events.OnWithCancel(ChangedEvent(g.Collection()), func(interface{}) {
		select {
		case kick <- struct{}{}:
		default:
		}
	})

	push := func() {
		snapshot, err := g.Query(ctx, opts)
		if err != nil {
			// A failed re-query keeps the previous snapshot in place; the
			// next change will try again.
			g.log.Warn("Feed re-query for %s failed: %v", g.Collection(), err)
			return
		}
		fn(snapshot)
	}

	// Initial snapshot before any change arrives.
	initial, err := g.Query(ctx, opts)
	if err != nil {
		sub.cancel()
		close(sub.done)
		return nil, err
	}
	fn(initial)

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-sub.stop:
				return
			case <-ctx.Done():
				return
			case <-kick:
				push()
			}
		}
	}()

	return sub, nil
}
