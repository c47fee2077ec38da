// Package worker provides the worker stages of one digest family.
//
// A Stage owns exactly one input channel end and one output channel end,
// neither shared with any sibling. Its loop pops an item (blocking, idle
// time accounted), applies the family's digest function and pushes the
// result (blocking, blocked time accounted), indefinitely.
//
// A Pool groups the stages of one family and manages their goroutines,
// one per stage. Stages never talk to each other.
//
// # Basic Usage
//
//	pool, err := worker.NewPool(worker.PoolConfig{
//	    Family:   "sha512",
//	    Func:     alg.Func,
//	    Ins:      fromGenerator, // []*ring.Consumer[digest.Item]
//	    Outs:     toMerger,      // []*ring.Producer[digest.Digest]
//	    Counters: counters,      // one per stage
//	    Policy:   blocking.DefaultPolicy(),
//	})
//	pool.Start(ctx)
//	defer pool.Stop()
//
// # Stage Failure
//
// A stage only leaves its loop when the context is cancelled or the digest
// function panics. A panic is recovered and reported as ErrStagePanic
// through the OnError hook, so the owner can cancel the rest of the
// pipeline instead of leaving the stage's peers waiting forever.
//
// Stop cancels the pool context and waits for every stage goroutine.
package worker
