package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_DeliversResult(t *testing.T) {
	d := New(2, nil)
	defer d.Close()

	done := make(chan struct{})
	Submit(d, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	}, func(v int, err error) {
		assert.NoError(t, err)
		assert.Equal(t, 42, v)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback not called")
	}
}

func TestSubmit_CallbacksAreSerialized(t *testing.T) {
	d := New(8, nil)

	var running, maxRunning int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		Submit(d, context.Background(), func(ctx context.Context) (int, error) {
			return 0, nil
		}, func(int, error) {
			defer wg.Done()
			n := atomic.AddInt32(&running, 1)
			if n > atomic.LoadInt32(&maxRunning) {
				atomic.StoreInt32(&maxRunning, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
		})
	}
	wg.Wait()
	d.Close()
	assert.Equal(t, int32(1), maxRunning)
}

func TestSubmit_Cancel(t *testing.T) {
	d := New(1, nil)
	defer d.Close()

	started := make(chan struct{})
	got := make(chan error, 1)
	cancel := Submit(d, context.Background(), func(ctx context.Context) (struct{}, error) {
		close(started)
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	}, func(_ struct{}, err error) {
		got <- err
	})

	<-started
	cancel()
	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("callback not called after cancel")
	}
}

func TestSubmit_PanickingCallbackDoesNotStopDelivery(t *testing.T) {
	d := New(1, nil)
	defer d.Close()

	Submit(d, context.Background(), func(context.Context) (int, error) { return 1, nil },
		func(int, error) { panic("boom") })

	done := make(chan struct{})
	Submit(d, context.Background(), func(context.Context) (int, error) { return 2, nil },
		func(int, error) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second callback not delivered")
	}
}

func TestClose_DrainsAndRejects(t *testing.T) {
	d := New(2, nil)

	var delivered int32
	for i := 0; i < 10; i++ {
		Submit(d, context.Background(), func(context.Context) (int, error) {
			time.Sleep(time.Millisecond)
			return 0, nil
		}, func(int, error) { atomic.AddInt32(&delivered, 1) })
	}
	d.Close()
	d.Close()
	assert.Equal(t, int32(10), atomic.LoadInt32(&delivered))

	got := make(chan error, 1)
	Submit(d, context.Background(), func(context.Context) (int, error) { return 0, nil },
		func(_ int, err error) { got <- err })
	select {
	case err := <-got:
		require.True(t, errors.Is(err, ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("closed dispatcher did not report ErrClosed")
	}
}

func TestSubmit_CallbacksMaySubmitUnderLoad(t *testing.T) {
	d := New(1, nil)
	defer d.Close()

	const calls = 200
	var wg sync.WaitGroup
	wg.Add(2 * calls)
	for i := 0; i < calls; i++ {
		Submit(d, context.Background(), func(context.Context) (int, error) {
			return i, nil
		}, func(int, error) {
			defer wg.Done()
			Submit(d, context.Background(), func(context.Context) (int, error) {
				return 0, nil
			}, func(int, error) { wg.Done() })
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("chained submissions stalled")
	}
}

func TestSubmit_CancelWhileQueueFull(t *testing.T) {
	d := New(1, nil)
	defer d.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	Submit(d, context.Background(), func(context.Context) (int, error) {
		close(started)
		<-release
		return 0, nil
	}, nil)
	<-started
	for i := 0; i < cap(d.jobs); i++ {
		Submit(d, context.Background(), func(context.Context) (int, error) {
			<-release
			return 0, nil
		}, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan error, 1)
	returned := make(chan struct{})
	go func() {
		Submit(d, ctx, func(context.Context) (int, error) {
			t.Error("call cancelled before queuing must not run")
			return 0, nil
		}, func(_ int, err error) { got <- err })
		close(returned)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Submit stayed blocked after cancel")
	}
	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("callback not called")
	}
	close(release)
}

func TestRun_PassesError(t *testing.T) {
	d := New(1, nil)
	defer d.Close()

	boom := errors.New("boom")
	got := make(chan error, 1)
	d.Run(context.Background(), func(context.Context) error { return boom }, func(err error) { got <- err })

	select {
	case err := <-got:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("callback not called")
	}
}
