package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolAcquireRelease(t *testing.T) {
	p := NewPool(1)

	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("expected acquire success, got %v", err)
	}
	if len(p.sem) != 0 {
		t.Fatalf("expected token consumed after acquire")
	}
	p.Release()
	if len(p.sem) != 1 {
		t.Fatalf("expected token returned after release")
	}

	p.Close()
	if err := p.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected acquire to fail when pool is closed, got %v", err)
	}
}

func TestPoolAcquireContextCanceled(t *testing.T) {
	p := &Pool{sem: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestPoolDoneContextNeverTakesFreeSlot(t *testing.T) {
	p := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	for i := 0; i < 100; i++ {
		if err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("attempt %d: expected context canceled, got %v", i, err)
		}
		if err := p.Do(ctx, func() error { ran.Add(1); return nil }); !errors.Is(err, context.Canceled) {
			t.Fatalf("attempt %d: expected Do to fail with context canceled, got %v", i, err)
		}
	}
	if ran.Load() != 0 {
		t.Fatalf("expected no task to run after cancellation, ran %d", ran.Load())
	}
	if st := p.Stats(); st.Idle != 1 {
		t.Fatalf("expected the slot to stay idle, got %+v", st)
	}
}

func TestPoolAcquireTimesOutWhenNoCapacity(t *testing.T) {
	p := NewPool(1)
	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected acquire deadline exceeded, got %v", err)
	}
}

func TestPoolStatsAndClose(t *testing.T) {
	p := NewPool(2)

	st := p.Stats()
	if !st.Enabled || st.Capacity != 2 || st.Idle != 2 || st.InUse != 0 {
		t.Fatalf("unexpected stats before acquire: %+v", st)
	}
	if err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if st = p.Stats(); st.InUse != 1 {
		t.Fatalf("expected one in use, got %+v", st)
	}
	p.Release()

	p.Close()
	p.Close() // idempotent
	if st = p.Stats(); st.Enabled {
		t.Fatalf("expected stats disabled after close: %+v", st)
	}
}

func TestNewPool_DefaultsToCPUCount(t *testing.T) {
	if got := NewPool(0).Stats().Capacity; got < 1 {
		t.Fatalf("expected at least one slot, got %d", got)
	}
}

func TestPoolDo(t *testing.T) {
	p := NewPool(2)
	boom := errors.New("boom")

	if err := p.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if err := p.Do(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}
	if err := p.Do(context.Background(), func() error { panic("kaput") }); err == nil {
		t.Fatalf("expected panic to surface as error")
	}

	st := p.Stats()
	if st.Completed != 1 || st.Failed != 2 || st.Idle != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestPoolDo_BoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var running, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func() error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, saw %d", peak.Load())
	}
}

func TestPoolDo_ContextEndsBeforeTask(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Do(ctx, func() error {
		<-release
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if p.Stats().InUse != 1 {
		t.Fatalf("abandoned task should keep its slot until it returns")
	}

	close(release)
	deadline := time.Now().Add(time.Second)
	for p.Stats().InUse != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("slot was never returned")
		}
		time.Sleep(time.Millisecond)
	}
}
