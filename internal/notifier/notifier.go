// Package notifier provides a single-slot publish/subscribe primitive that
// replays the latest value to new subscribers.
package notifier

import (
	"context"
	"sync"
)

// Notifier holds the latest published value and fans it out to subscribers.
//
// Subscribers are called synchronously, in subscription order, and every
// Publish is delivered in call order. A callback must not call Publish or
// Subscribe on the same Notifier; it may call Unsubscribe.
// All methods are safe for concurrent use.
type Notifier[T any] struct {
	// deliverMu serializes Publish and the replay done by Subscribe.
	deliverMu sync.Mutex

	mu    sync.Mutex
	value T
	subs  []*Subscription[T]
}

// Subscription is the handle returned by Subscribe.
type Subscription[T any] struct {
	n  *Notifier[T]
	fn func(T)
}

// New creates a Notifier holding initial.
func New[T any](initial T) *Notifier[T] {
	return &Notifier[T]{value: initial}
}

// Value returns the latest published value.
func (n *Notifier[T]) Value() T {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value
}

// Publish stores v and delivers it to every current subscriber.
func (n *Notifier[T]) Publish(v T) {
	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()

	n.mu.Lock()
	n.value = v
	subs := make([]*Subscription[T], len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		if s.active() {
			s.fn(v)
		}
	}
}

// Subscribe registers fn and calls it with the current value before returning.
func (n *Notifier[T]) Subscribe(fn func(T)) *Subscription[T] {
	n.deliverMu.Lock()
	defer n.deliverMu.Unlock()

	s := &Subscription[T]{n: n, fn: fn}
	n.mu.Lock()
	n.subs = append(n.subs, s)
	v := n.value
	n.mu.Unlock()

	fn(v)
	return s
}

// Watch returns a channel carrying the current value followed by every change.
// The channel holds at most one pending value: a reader that falls behind
// only sees the most recent one. It is closed when ctx is done.
func (n *Notifier[T]) Watch(ctx context.Context) <-chan T {
	ch := make(chan T, 1)
	sub := n.Subscribe(func(v T) {
		select {
		case <-ch:
		default:
		}
		ch <- v
	})

	go func() {
		<-ctx.Done()
		n.deliverMu.Lock()
		defer n.deliverMu.Unlock()
		sub.Unsubscribe()
		close(ch)
	}()
	return ch
}

// Len returns the number of active subscriptions.
func (n *Notifier[T]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Unsubscribe stops delivery to the subscription. It is idempotent.
func (s *Subscription[T]) Unsubscribe() {
	n := s.n
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, cur := range n.subs {
		if cur == s {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

func (s *Subscription[T]) active() bool {
	n := s.n
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, cur := range n.subs {
		if cur == s {
			return true
		}
	}
	return false
}
