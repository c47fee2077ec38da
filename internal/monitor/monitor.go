package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"digest-pipe/internal/events"
	"digest-pipe/internal/logger"
	"digest-pipe/internal/metrics"
)

// Config はMonitorの設定
type Config struct {
	Interval time.Duration // サンプリング間隔
	Quiet    bool          // true なら1行ごとのログを出さない
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Interval: time.Second,
	}
}

// Monitor はステージ利用率を定期的にサンプリングする
type Monitor struct {
	config    Config
	registry  *metrics.Registry
	publisher events.Publisher
	gauges    *metrics.UtilizationGauges
	log       *logger.Logger
	runID     string

	running atomic.Bool
	ticks   atomic.Uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	start  time.Time
	latest []metrics.Utilization
}

// New は新しいMonitorを作成する
func New(registry *metrics.Registry, config Config) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Monitor{
		config:   config,
		registry: registry,
		log:      logger.Default,
	}
}

// SetEventBus はイベントの発行先を設定する
func (m *Monitor) SetEventBus(p events.Publisher) {
	m.publisher = p
}

// SetGauges はPrometheusゲージを設定する
func (m *Monitor) SetGauges(g *metrics.UtilizationGauges) {
	m.gauges = g
}

// SetLogger は出力先のロガーを設定する
func (m *Monitor) SetLogger(l *logger.Logger) {
	m.log = l
}

// SetRunID はイベントに付与する実行IDを設定する
func (m *Monitor) SetRunID(id string) {
	m.runID = id
}

// Start はサンプリングを開始する
func (m *Monitor) Start(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	m.start = time.Now()
	m.mu.Unlock()

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop はサンプリングを停止する
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.cancel()
	m.wg.Wait()
}

// IsRunning は実行中かどうかを返す
func (m *Monitor) IsRunning() bool {
	return m.running.Load()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick は1回分のサンプリングと報告を行う
func (m *Monitor) tick() {
	sample := m.Sample()
	m.ticks.Add(1)

	for _, u := range sample {
		if !m.config.Quiet {
			m.log.Info(u.Stage, "%%idle=%d %%blocked=%d", int(u.IdlePercent), int(u.BlockedPercent))
		}
		if m.publisher != nil {
			m.publisher.Publish(events.NewStageSampleEvent(m.runID, u))
		}
	}
	if m.gauges != nil {
		m.gauges.Observe(sample)
	}
}

// Sample は現時点の利用率を計算し、Latest として保持する
func (m *Monitor) Sample() []metrics.Utilization {
	m.mu.Lock()
	defer m.mu.Unlock()

	var elapsed time.Duration
	if !m.start.IsZero() {
		elapsed = time.Since(m.start)
	}
	m.latest = m.registry.Snapshot(elapsed)

	out := make([]metrics.Utilization, len(m.latest))
	copy(out, m.latest)
	return out
}

// Latest は直近のサンプルを返す
func (m *Monitor) Latest() []metrics.Utilization {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]metrics.Utilization, len(m.latest))
	copy(out, m.latest)
	return out
}

// Ticks はこれまでのサンプリング回数を返す
func (m *Monitor) Ticks() uint64 {
	return m.ticks.Load()
}
