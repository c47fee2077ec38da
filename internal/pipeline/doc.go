// Package pipeline wires and runs the fixed-topology digest pipeline.
//
// The topology is
//
//	generator ─┬─> family A: worker_0 … worker_n ─┬─> merger
//	           └─> family B: worker_0 … worker_m ─┘
//
// with one SPSC ring between every pair of connected stages. All rings are
// allocated up front from Config; nothing is resized or rewired while the
// pipeline runs.
//
// # Basic Usage
//
//	cfg := pipeline.QuickPreset()
//	cfg.Items = 10_000
//
//	engine := pipeline.New(cfg)
//	result, err := engine.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Report())
//
// # Configuration Errors
//
// Run validates the configuration before any goroutine is started. Every
// violation is reported (combined with multierr), each naming the offending
// parameter and wrapping ErrInvalidConfig.
//
// # Termination and Shutdown
//
// The merger consuming exactly Items digests per family is the only normal
// termination condition. Cancelling the context passed to Run stops every
// stage at its next retry point; in-flight items are discarded and Run
// returns the partial result together with the context error. If a worker
// stage dies, the run is cancelled with that stage's error as the cause, so
// no peer waits forever on a dead channel.
package pipeline
