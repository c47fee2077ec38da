package blocking

import (
	"context"
	"time"

	"digest-pipe/internal/metrics"
	"digest-pipe/internal/ring"
)

// DefaultInterval はリトライ間隔のデフォルト値
const DefaultInterval = 10 * time.Millisecond

// Policy はリトライ待ちの設定
type Policy struct {
	Interval time.Duration // full / empty 時の待ち時間
}

// DefaultPolicy はデフォルト設定を返す
func DefaultPolicy() Policy {
	return Policy{
		Interval: DefaultInterval,
	}
}

func (p Policy) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultInterval
	}
	return p.Interval
}

// Push は空きができるまで待って値を追加する
// 待った時間は counters の blocked に加算される
func Push[T any](ctx context.Context, p Policy, tx *ring.Producer[T], v T, counters *metrics.Counters) error {
	if tx.TryPush(v) == nil {
		return nil
	}

	var w waiter
	defer w.stop()

	for {
		slept, err := w.wait(ctx, p.interval())
		if counters != nil {
			counters.AddBlocked(slept)
		}
		if err != nil {
			return err
		}
		if tx.TryPush(v) == nil {
			return nil
		}
	}
}

// Pop は値が来るまで待って取り出す
// 待った時間は counters の idle に加算される
func Pop[T any](ctx context.Context, p Policy, rx *ring.Consumer[T], counters *metrics.Counters) (T, error) {
	if v, err := rx.TryPop(); err == nil {
		return v, nil
	}

	var w waiter
	defer w.stop()

	for {
		slept, err := w.wait(ctx, p.interval())
		if counters != nil {
			counters.AddIdle(slept)
		}
		if err != nil {
			var zero T
			return zero, err
		}
		if v, err := rx.TryPop(); err == nil {
			return v, nil
		}
	}
}

// waiter は再利用可能なタイマーで中断可能なスリープを行う
type waiter struct {
	timer *time.Timer
}

// wait は d だけ待ち、実際に経過した時間を返す
func (w *waiter) wait(ctx context.Context, d time.Duration) (time.Duration, error) {
	start := time.Now()
	if w.timer == nil {
		w.timer = time.NewTimer(d)
	} else {
		w.timer.Reset(d)
	}

	select {
	case <-ctx.Done():
		w.timer.Stop()
		return time.Since(start), ctx.Err()
	case <-w.timer.C:
		return time.Since(start), nil
	}
}

func (w *waiter) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}
