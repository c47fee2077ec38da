// Package metrics provides per-stage utilization counters for the pipeline.
//
// Every stage owns one Counters handle holding two monotonically
// non-decreasing accumulators: idle time (waiting for input) and blocked
// time (waiting for output capacity). The owning stage is the only writer;
// the monitor, the Prometheus collector and the final report are readers.
// Updates are plain atomic adds, so readers observe them eventually, which
// is all diagnostics need.
//
// # Basic Usage
//
//	reg := metrics.NewRegistry()
//	c, err := reg.Register("sha512_0")
//	if err != nil {
//	    return err
//	}
//
//	// inside the stage
//	c.AddIdle(10 * time.Millisecond)
//
//	// from the monitor
//	for _, u := range reg.Snapshot(time.Since(start)) {
//	    fmt.Printf("%s: %%idle=%.0f %%blocked=%.0f\n", u.Stage, u.IdlePercent, u.BlockedPercent)
//	}
//
// # Prometheus
//
// NewCollector exposes the raw accumulators as counters and
// NewUtilizationGauges holds the latest sampled percentages, both labelled
// by stage.
//
// # Summary
//
// Summarize aggregates a utilization snapshot across stages (mean and
// standard deviation via gonum/stat) and names the busiest stage.
package metrics
