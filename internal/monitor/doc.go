// Package monitor periodically samples the utilization counters of every
// pipeline stage.
//
// On each tick the monitor computes, for every registered stage,
//
//	idle_percent    = 100 * idle_time    / elapsed
//	blocked_percent = 100 * blocked_time / elapsed
//
// where elapsed is the time since the monitor started, and reports one line
// per stage through the logger. When configured it also publishes a
// stage_sample event per stage and updates the Prometheus utilization
// gauges.
//
// The monitor is purely observational: it only reads counters and never
// touches channels or stage state.
//
//	mon := monitor.New(registry, monitor.Config{Interval: time.Second})
//	mon.SetEventBus(bus)
//	mon.Start(ctx)
//	defer mon.Stop()
package monitor
