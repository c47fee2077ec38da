// Package blocking turns the non-blocking ring primitives into blocking
// push and pop operations without kernel wait primitives.
//
// When a push finds the ring full, or a pop finds it empty, the caller
// sleeps for Policy.Interval, charges the measured sleep to its own
// utilization counters (blocked for push, idle for pop) and retries.
// Retries are unbounded: the only way out other than success is
// cancellation of the supplied context, which is checked at every retry
// point and returned as ctx.Err().
//
// The cost of this policy is at most one Interval of added latency per
// operation; the interval trades wasted CPU against latency.
//
//	policy := blocking.Policy{Interval: 10 * time.Millisecond}
//	if err := blocking.Push(ctx, policy, tx, item, counters); err != nil {
//	    return err // only ctx.Err()
//	}
//	v, err := blocking.Pop(ctx, policy, rx, counters)
package blocking
