// Package ring provides a fixed-capacity, lock-free single-producer /
// single-consumer (SPSC) ring buffer.
//
// New returns the two ends of one ring. The Producer end is the only value
// that can push and the Consumer end is the only value that can pop, so the
// SPSC discipline is enforced by ownership: hand each end to exactly one
// goroutine and never share it.
//
// # Basic Usage
//
//	tx, rx, err := ring.New[uint64](1024)
//	if err != nil {
//	    return err
//	}
//
//	go func() {
//	    for i := uint64(0); i < 100; i++ {
//	        for tx.TryPush(i) != nil {
//	            time.Sleep(time.Millisecond) // full: back off and retry
//	        }
//	    }
//	}()
//
//	v, err := rx.TryPop()
//	if errors.Is(err, ring.ErrEmpty) {
//	    // nothing available yet
//	}
//
// # Guarantees
//
// Values are popped in exactly the order they were pushed. TryPush and
// TryPop never block: they return ErrFull or ErrEmpty immediately. A slot
// released by TryPop is available to the next TryPush without any further
// coordination. The number of buffered values always stays within
// [0, Cap()].
//
// Blocking semantics (retry, back-off, utilization accounting) live in
// package blocking.
package ring
