// Package worker runs blocking network calls on a pool of I/O goroutines and
// hands their results to a single callback goroutine.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is passed to callbacks of calls submitted after Close. Those
// callbacks run on their own goroutine.
var ErrClosed = errors.New("dispatcher closed")

// CancelFunc cancels a submitted call. The callback still runs and observes
// the cancellation through the error returned by the call.
type CancelFunc func()

// Dispatcher owns the I/O workers and the callback goroutine.
// Callbacks run one at a time, in completion order. Workers never wait for
// the callback goroutine, so callbacks may submit further calls.
type Dispatcher struct {
	jobs chan func()
	log  *zap.Logger

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup

	qmu      sync.Mutex
	pending  []func()
	stopping bool
	wake     chan struct{}
	cbDone   chan struct{}
}

// New starts a Dispatcher with the given number of I/O workers (at least one).
func New(workers int, log *zap.Logger) *Dispatcher {
	workers = max(workers, 1)
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		jobs:   make(chan func(), workers*16),
		log:    log,
		wake:   make(chan struct{}, 1),
		cbDone: make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		d.workers.Add(1)
		go d.work()
	}
	go d.deliverLoop()
	return d
}

func (d *Dispatcher) work() {
	defer d.workers.Done()
	for job := range d.jobs {
		job()
	}
}

// deliver queues cb for the callback goroutine without blocking.
func (d *Dispatcher) deliver(cb func()) {
	d.qmu.Lock()
	d.pending = append(d.pending, cb)
	d.qmu.Unlock()
	d.signal()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) deliverLoop() {
	defer close(d.cbDone)
	for {
		d.qmu.Lock()
		batch, stop := d.pending, d.stopping
		d.pending = nil
		d.qmu.Unlock()

		for _, cb := range batch {
			d.safeCall(cb)
		}
		if len(batch) == 0 {
			if stop {
				return
			}
			<-d.wake
		}
	}
}

func (d *Dispatcher) safeCall(cb func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("callback panicked", zap.Any("panic", r))
		}
	}()
	cb()
}

// Submit runs fn on an I/O worker and delivers its result to cb on the
// callback goroutine. cb may be nil. It may call Submit but must not wait for
// other submitted calls or call Close. When the queue is full Submit blocks
// until a worker is free or ctx is done; in the latter case fn is not run and
// cb receives ctx.Err().
func Submit[T any](d *Dispatcher, ctx context.Context, fn func(context.Context) (T, error), cb func(T, error)) CancelFunc {
	ctx, cancel := context.WithCancel(ctx)

	job := func() {
		defer cancel()
		v, err := fn(ctx)
		if cb != nil {
			d.deliver(func() { cb(v, err) })
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		cancel()
		if cb != nil {
			var zero T
			go cb(zero, ErrClosed)
		}
		return CancelFunc(cancel)
	}
	select {
	case d.jobs <- job:
	case <-ctx.Done():
		err := ctx.Err()
		cancel()
		if cb != nil {
			var zero T
			d.deliver(func() { cb(zero, err) })
		}
	}
	return CancelFunc(cancel)
}

// Run executes job on an I/O worker and passes its error to cb on the
// callback goroutine.
func (d *Dispatcher) Run(ctx context.Context, job func(context.Context) error, cb func(error)) CancelFunc {
	var done func(struct{}, error)
	if cb != nil {
		done = func(_ struct{}, err error) { cb(err) }
	}
	return Submit(d, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, job(ctx)
	}, done)
}

// Close stops accepting work, waits for queued calls and their callbacks,
// then returns. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.cbDone
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.workers.Wait()
	d.qmu.Lock()
	d.stopping = true
	d.qmu.Unlock()
	d.signal()
	<-d.cbDone
}
