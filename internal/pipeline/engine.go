package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"digest-pipe/internal/blocking"
	"digest-pipe/internal/digest"
	"digest-pipe/internal/events"
	"digest-pipe/internal/generator"
	"digest-pipe/internal/logger"
	"digest-pipe/internal/merger"
	"digest-pipe/internal/metrics"
	"digest-pipe/internal/monitor"
	"digest-pipe/internal/ring"
	"digest-pipe/internal/worker"
)

// ErrAlreadyRunning は実行中に Run が呼ばれたことを示す
var ErrAlreadyRunning = errors.New("pipeline is already running")

// Engine はパイプライン実行エンジン
type Engine struct {
	config    Config
	eventBus  *events.Bus
	gauges    *metrics.UtilizationGauges
	collector *metrics.Collector

	mu        sync.RWMutex
	running   bool
	runID     string
	startTime time.Time
	registry  *metrics.Registry
	monitor   *monitor.Monitor
	generator *generator.Generator
	pools     []*worker.Pool
	merger    *merger.Merger
	cancel    context.CancelCauseFunc
}

// New は新しいEngineを作成する
func New(config Config) *Engine {
	return &Engine{
		config: config,
	}
}

// SetEventBus はイベントバスを設定する
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.eventBus = bus
}

// SetGauges はPrometheusゲージを設定する
func (e *Engine) SetGauges(g *metrics.UtilizationGauges) {
	e.gauges = g
}

// SetCollector は実行ごとのカウンタを公開するCollectorを設定する
func (e *Engine) SetCollector(c *metrics.Collector) {
	e.collector = c
}

// Config は設定を返す
func (e *Engine) Config() Config {
	return e.config
}

// Run はパイプラインを実行し、merger が全件を受け取るまで待つ
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	// setup 中でも Stop で止められるよう、running と同時に cancel を公開する
	runCtx, cancel := context.WithCancelCause(ctx)
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	defer cancel(nil)

	if err := e.setup(cancel); err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	logger.Info("", "=== Pipeline '%s' started (run %s) ===", e.config.Name, e.runID)
	logger.Info("", "Items: %d, Families: %d, Workers: %d", e.config.Items, len(e.config.Families), e.config.TotalWorkers())

	result := &Result{
		RunID:     e.runID,
		Name:      e.config.Name,
		Items:     e.config.Items,
		StartTime: time.Now(),
	}
	e.mu.Lock()
	e.startTime = result.StartTime
	e.mu.Unlock()

	e.publish(events.NewRunStartEvent(e.runID, e.config.Items, e.registry.Size()))

	e.monitor.Start(runCtx)
	for _, p := range e.pools {
		p.Start(runCtx)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return e.generator.Run(gctx)
	})
	g.Go(func() error {
		_, err := e.merger.Run(gctx)
		return err
	})
	runErr := g.Wait()

	result.EndTime = time.Now()
	result.Elapsed = result.EndTime.Sub(result.StartTime)

	// merger 完了後は残りのステージを止める
	cancel(nil)
	e.teardown()

	if runErr != nil {
		// ステージ死亡が原因なら、その原因を優先して返す
		if cause := context.Cause(runCtx); cause != nil &&
			!errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
			runErr = cause
		}
	}

	e.collectResults(result)
	result.Complete = runErr == nil

	if runErr != nil {
		logger.Error("", "Pipeline '%s' failed after %v: %v", e.config.Name, result.Elapsed, runErr)
		e.publish(events.NewRunFailedEvent(e.runID, runErr))
		return result, fmt.Errorf("pipeline %s: %w", e.config.Name, runErr)
	}

	logger.Info("", "=== Pipeline '%s' completed in %v ===", e.config.Name, result.Elapsed)
	e.publish(events.NewRunCompleteEvent(e.runID, result.Elapsed, result.Completions))

	return result, nil
}

// setup は全リングとステージを確保する
func (e *Engine) setup(cancel context.CancelCauseFunc) error {
	cfg := e.config
	policy := blocking.Policy{Interval: cfg.RetryInterval}
	registry := metrics.NewRegistry()

	genCounters, err := registry.Register("generator")
	if err != nil {
		return err
	}

	genFamilies := make([]generator.Family, 0, len(cfg.Families))
	mergeFamilies := make([]merger.Family, 0, len(cfg.Families))
	pools := make([]*worker.Pool, 0, len(cfg.Families))

	for _, f := range cfg.Families {
		fn, err := f.transform()
		if err != nil {
			return err
		}

		poolConfig := worker.PoolConfig{
			Family: f.Name,
			Func:   fn,
			Policy: policy,
			OnError: func(stage string, err error) {
				cancel(fmt.Errorf("stage %s died: %w", stage, err))
			},
		}
		genFamily := generator.Family{Name: f.Name}
		mergeFamily := merger.Family{Name: f.Name}
		if cfg.Verify {
			mergeFamily.Verify = fn
		}

		for i := range f.Workers {
			inTx, inRx, err := ring.New[digest.Item](cfg.inputCapacity(f))
			if err != nil {
				return fmt.Errorf("family %s input ring: %w", f.Name, err)
			}
			outTx, outRx, err := ring.New[digest.Digest](cfg.outputCapacity(f))
			if err != nil {
				return fmt.Errorf("family %s output ring: %w", f.Name, err)
			}
			counters, err := registry.Register(fmt.Sprintf("%s_%d", f.Name, i))
			if err != nil {
				return err
			}

			genFamily.Outs = append(genFamily.Outs, inTx)
			poolConfig.Ins = append(poolConfig.Ins, inRx)
			poolConfig.Outs = append(poolConfig.Outs, outTx)
			poolConfig.Counters = append(poolConfig.Counters, counters)
			mergeFamily.Ins = append(mergeFamily.Ins, outRx)
		}

		pool, err := worker.NewPool(poolConfig)
		if err != nil {
			return err
		}
		pools = append(pools, pool)
		genFamilies = append(genFamilies, genFamily)
		mergeFamilies = append(mergeFamilies, mergeFamily)
	}

	mergeCounters, err := registry.Register("merger")
	if err != nil {
		return err
	}

	gen, err := generator.New(cfg.Items, genFamilies, policy, genCounters)
	if err != nil {
		return err
	}
	merge, err := merger.New(cfg.Items, mergeFamilies, policy, mergeCounters)
	if err != nil {
		return err
	}

	mon := monitor.New(registry, monitor.Config{Interval: cfg.StatsInterval, Quiet: cfg.Quiet})
	runID := uuid.NewString()
	mon.SetRunID(runID)
	if e.eventBus != nil {
		mon.SetEventBus(e.eventBus)
	}
	if e.gauges != nil {
		mon.SetGauges(e.gauges)
	}

	if e.collector != nil {
		e.collector.SetRegistry(registry)
	}
	if e.gauges != nil {
		// 前回の実行のステージを残さない
		e.gauges.Reset()
	}

	e.mu.Lock()
	e.runID = runID
	e.registry = registry
	e.generator = gen
	e.pools = pools
	e.merger = merge
	e.monitor = mon
	e.mu.Unlock()

	return nil
}

// teardown は全ワーカーとモニタを停止する
func (e *Engine) teardown() {
	for _, p := range e.pools {
		p.Stop()
	}
	e.monitor.Stop()
}

// collectResults は結果を収集する
func (e *Engine) collectResults(result *Result) {
	result.Completions = e.merger.Counts()
	result.Generated = e.generator.Produced()

	for i, f := range e.config.Families {
		result.Families = append(result.Families, FamilyResult{
			Name:      f.Name,
			Algorithm: f.algorithm(),
			Workers:   f.Workers,
			Processed: e.pools[i].Processed(),
			Completed: result.Completions[f.Name],
		})
	}

	result.Stages = e.registry.Snapshot(result.Elapsed)
	result.Summary = metrics.Summarize(result.Stages)
}

func (e *Engine) publish(ev events.Event) {
	if e.eventBus != nil {
		e.eventBus.Publish(ev)
	}
}

// Stop は実行中のパイプラインをキャンセルする
func (e *Engine) Stop() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.running || e.cancel == nil {
		return false
	}
	e.cancel(context.Canceled)
	return true
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// RunID は直近の実行IDを返す
func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// Stages は現時点のステージ利用率を返す
func (e *Engine) Stages() []metrics.Utilization {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.registry == nil {
		return nil
	}
	return e.registry.Snapshot(time.Since(e.startTime))
}

// Progress はmergerが受け取った件数と期待件数を返す
func (e *Engine) Progress() (done, total uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	total = e.config.Items * uint64(len(e.config.Families))
	if e.merger == nil {
		return 0, total
	}
	return e.merger.Total(), total
}
