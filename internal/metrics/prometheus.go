package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	idleDesc = prometheus.NewDesc(
		"digestpipe_stage_idle_seconds_total",
		"Cumulative time a stage spent waiting for input",
		[]string{"stage"}, nil,
	)
	blockedDesc = prometheus.NewDesc(
		"digestpipe_stage_blocked_seconds_total",
		"Cumulative time a stage spent waiting for output capacity",
		[]string{"stage"}, nil,
	)
)

// Collector はレジストリのカウンタをPrometheusに公開する
// 実行ごとにレジストリを差し替えられる
type Collector struct {
	registry atomic.Pointer[Registry]
}

// Ensure Collector implements prometheus.Collector
var _ prometheus.Collector = (*Collector)(nil)

// NewCollector は新しいCollectorを作成する
func NewCollector(registry *Registry) *Collector {
	c := &Collector{}
	c.registry.Store(registry)
	return c
}

// SetRegistry は公開対象のレジストリを差し替える
func (c *Collector) SetRegistry(registry *Registry) {
	c.registry.Store(registry)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- idleDesc
	ch <- blockedDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	registry := c.registry.Load()
	if registry == nil {
		return
	}
	for _, s := range registry.Stages() {
		ch <- prometheus.MustNewConstMetric(idleDesc, prometheus.CounterValue, s.Idle().Seconds(), s.Name())
		ch <- prometheus.MustNewConstMetric(blockedDesc, prometheus.CounterValue, s.Blocked().Seconds(), s.Name())
	}
}

// UtilizationGauges は最新サンプルの利用率（%）を保持する
type UtilizationGauges struct {
	Idle    *prometheus.GaugeVec
	Blocked *prometheus.GaugeVec
}

// NewUtilizationGauges はゲージを作成し reg に登録する
func NewUtilizationGauges(reg prometheus.Registerer) (*UtilizationGauges, error) {
	g := &UtilizationGauges{
		Idle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "digestpipe_stage_idle_percent",
				Help: "Idle time as a percentage of elapsed time at the last sample",
			},
			[]string{"stage"},
		),
		Blocked: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "digestpipe_stage_blocked_percent",
				Help: "Blocked time as a percentage of elapsed time at the last sample",
			},
			[]string{"stage"},
		),
	}
	for _, c := range []prometheus.Collector{g.Idle, g.Blocked} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Observe はサンプルをゲージに反映する
func (g *UtilizationGauges) Observe(us []Utilization) {
	for _, u := range us {
		g.Idle.WithLabelValues(u.Stage).Set(u.IdlePercent)
		g.Blocked.WithLabelValues(u.Stage).Set(u.BlockedPercent)
	}
}

// Reset は全ステージのゲージを削除する
func (g *UtilizationGauges) Reset() {
	g.Idle.Reset()
	g.Blocked.Reset()
}
