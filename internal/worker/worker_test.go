package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"digest-pipe/internal/blocking"
	"digest-pipe/internal/digest"
	"digest-pipe/internal/metrics"
	"digest-pipe/internal/ring"
)

var fastPolicy = blocking.Policy{Interval: time.Millisecond}

type wiring struct {
	inTx     []*ring.Producer[digest.Item]
	outRx    []*ring.Consumer[digest.Digest]
	config   PoolConfig
	counters []*metrics.Counters
}

func newWiring(t *testing.T, family string, n, capacity int, fn digest.Func) *wiring {
	t.Helper()
	w := &wiring{}
	w.config = PoolConfig{Family: family, Func: fn, Policy: fastPolicy}
	for i := range n {
		inTx, inRx, err := ring.New[digest.Item](capacity)
		if err != nil {
			t.Fatalf("failed to create input ring: %v", err)
		}
		outTx, outRx, err := ring.New[digest.Digest](capacity)
		if err != nil {
			t.Fatalf("failed to create output ring: %v", err)
		}
		c := metrics.NewCounters(fmt.Sprintf("%s_%d", family, i))
		w.inTx = append(w.inTx, inTx)
		w.outRx = append(w.outRx, outRx)
		w.counters = append(w.counters, c)
		w.config.Ins = append(w.config.Ins, inRx)
		w.config.Outs = append(w.config.Outs, outTx)
		w.config.Counters = append(w.config.Counters, c)
	}
	return w
}

func popWithin(t *testing.T, rx *ring.Consumer[digest.Digest], d time.Duration) digest.Digest {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if v, err := rx.TryPop(); err == nil {
			return v
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timeout waiting for digest")
	return nil
}

func sha512Func(t *testing.T) digest.Func {
	t.Helper()
	alg, err := digest.Lookup("sha512")
	if err != nil {
		t.Fatal(err)
	}
	return alg.Func
}

func TestNewPoolValidation(t *testing.T) {
	if _, err := NewPool(PoolConfig{Family: "sha512", Func: sha512Func(t)}); err == nil {
		t.Error("expected error for zero workers")
	}

	w := newWiring(t, "sha512", 2, 4, sha512Func(t))
	w.config.Counters = w.config.Counters[:1]
	if _, err := NewPool(w.config); err == nil {
		t.Error("expected error for mismatched wiring")
	}

	w = newWiring(t, "sha512", 1, 4, nil)
	if _, err := NewPool(w.config); err == nil {
		t.Error("expected error for missing digest function")
	}
}

func TestPoolStartStop(t *testing.T) {
	w := newWiring(t, "sha512", 2, 4, sha512Func(t))
	pool, err := NewPool(w.config)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	if pool.NumWorkers() != 2 {
		t.Errorf("expected 2 workers, got %d", pool.NumWorkers())
	}
	if pool.Family() != "sha512" {
		t.Errorf("expected family sha512, got %s", pool.Family())
	}

	ctx := context.Background()
	pool.Start(ctx)
	// Double start should be no-op
	pool.Start(ctx)

	pool.Stop()
	// Double stop should be no-op
	pool.Stop()

	if pool.Err() != nil {
		t.Errorf("expected no error after clean stop, got %v", pool.Err())
	}
}

func TestPoolProcessesInOrder(t *testing.T) {
	fn := sha512Func(t)
	w := newWiring(t, "sha512", 2, 8, fn)
	pool, err := NewPool(w.config)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	pool.Start(context.Background())
	defer pool.Stop()

	// worker 0 gets even indices, worker 1 odd ones
	for i := uint64(0); i < 8; i++ {
		if err := w.inTx[i%2].TryPush(digest.Encode(i)); err != nil {
			t.Fatalf("failed to push item %d: %v", i, err)
		}
	}

	for i := uint64(0); i < 8; i++ {
		got := popWithin(t, w.outRx[i%2], time.Second)
		if !bytes.Equal(got, fn(digest.Encode(i))) {
			t.Errorf("item %d: unexpected digest", i)
		}
	}

	if pool.Processed() != 8 {
		t.Errorf("expected 8 processed, got %d", pool.Processed())
	}
	for _, s := range pool.Stages() {
		if s.Processed() != 4 {
			t.Errorf("%s: expected 4 processed, got %d", s.Name(), s.Processed())
		}
	}
}

func TestStageAccountsIdle(t *testing.T) {
	w := newWiring(t, "blake3", 1, 4, sha512Func(t))
	pool, err := NewPool(w.config)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	pool.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	pool.Stop()

	if w.counters[0].Idle() == 0 {
		t.Error("expected idle time for a starved stage")
	}
	if w.counters[0].Blocked() != 0 {
		t.Errorf("expected no blocked time, got %v", w.counters[0].Blocked())
	}
}

func TestStageAccountsBlocked(t *testing.T) {
	w := newWiring(t, "sha512", 1, 1, sha512Func(t))
	pool, err := NewPool(w.config)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	pool.Start(context.Background())
	defer pool.Stop()

	// output capacity 1: the second digest cannot be pushed until we pop
	_ = w.inTx[0].TryPush(digest.Encode(0))
	_ = w.inTx[0].TryPush(digest.Encode(1))

	time.Sleep(50 * time.Millisecond)
	if w.counters[0].Blocked() == 0 {
		t.Error("expected blocked time when output is full")
	}

	popWithin(t, w.outRx[0], time.Second)
	popWithin(t, w.outRx[0], time.Second)
}

func TestStagePanicReported(t *testing.T) {
	panicky := func(digest.Item) digest.Digest { panic("boom") }
	w := newWiring(t, "broken", 1, 2, panicky)

	var reported atomic.Value
	w.config.OnError = func(stage string, err error) {
		reported.Store(err)
	}

	pool, err := NewPool(w.config)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	pool.Start(context.Background())
	defer pool.Stop()

	_ = w.inTx[0].TryPush(digest.Encode(0))

	deadline := time.Now().Add(time.Second)
	for reported.Load() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	got, _ := reported.Load().(error)
	if !errors.Is(got, ErrStagePanic) {
		t.Fatalf("expected ErrStagePanic, got %v", got)
	}
	if !errors.Is(pool.Err(), ErrStagePanic) {
		t.Errorf("expected pool error to be ErrStagePanic, got %v", pool.Err())
	}
}

func TestPoolContextCancel(t *testing.T) {
	w := newWiring(t, "sha512", 2, 4, sha512Func(t))
	pool, err := NewPool(w.config)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pool to stop after cancel")
	}
	if pool.Err() != nil {
		t.Errorf("cancellation should not be reported as an error, got %v", pool.Err())
	}
}
