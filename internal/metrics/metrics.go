package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Counters はステージごとの idle / blocked 累積時間
type Counters struct {
	name      string
	idleNs    atomic.Uint64
	blockedNs atomic.Uint64
}

// NewCounters は登録なしの単独カウンタを作成する
func NewCounters(name string) *Counters {
	return &Counters{name: name}
}

// Name はステージ名を返す
func (c *Counters) Name() string {
	return c.name
}

// AddIdle は入力待ち時間を加算する
func (c *Counters) AddIdle(d time.Duration) {
	if d > 0 {
		c.idleNs.Add(uint64(d))
	}
}

// AddBlocked は出力待ち時間を加算する
func (c *Counters) AddBlocked(d time.Duration) {
	if d > 0 {
		c.blockedNs.Add(uint64(d))
	}
}

// Idle は累積入力待ち時間を返す
func (c *Counters) Idle() time.Duration {
	return time.Duration(c.idleNs.Load())
}

// Blocked は累積出力待ち時間を返す
func (c *Counters) Blocked() time.Duration {
	return time.Duration(c.blockedNs.Load())
}

// Utilization はある時点でのステージ利用率
type Utilization struct {
	Stage          string        `json:"stage"`
	Idle           time.Duration `json:"idle"`
	Blocked        time.Duration `json:"blocked"`
	Elapsed        time.Duration `json:"elapsed"`
	IdlePercent    float64       `json:"idle_percent"`
	BlockedPercent float64       `json:"blocked_percent"`
}

// String は診断用の1行表現を返す
func (u Utilization) String() string {
	return fmt.Sprintf("%s: %%idle=%d %%blocked=%d", u.Stage, int(u.IdlePercent), int(u.BlockedPercent))
}

// Compute は経過時間に対する利用率を計算する
func Compute(c *Counters, elapsed time.Duration) Utilization {
	u := Utilization{
		Stage:   c.Name(),
		Idle:    c.Idle(),
		Blocked: c.Blocked(),
		Elapsed: elapsed,
	}
	if elapsed > 0 {
		u.IdlePercent = 100 * float64(u.Idle) / float64(elapsed)
		u.BlockedPercent = 100 * float64(u.Blocked) / float64(elapsed)
	}
	return u
}

// Registry は登録順を保持したステージカウンタの集合
type Registry struct {
	mu     sync.RWMutex
	stages []*Counters
	byName map[string]*Counters
}

// NewRegistry は新しいレジストリを作成する
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Counters),
	}
}

// Register はステージを登録し、そのカウンタを返す
func (r *Registry) Register(name string) (*Counters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("stage %s already registered", name)
	}

	c := NewCounters(name)
	r.stages = append(r.stages, c)
	r.byName[name] = c
	return c, nil
}

// Get は名前でカウンタを取得する
func (r *Registry) Get(name string) (*Counters, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byName[name]
	return c, ok
}

// Stages は登録順に全てのカウンタを返す
func (r *Registry) Stages() []*Counters {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stages := make([]*Counters, len(r.stages))
	copy(stages, r.stages)
	return stages
}

// Size は登録済みステージ数を返す
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages)
}

// Snapshot は全ステージの利用率を返す
func (r *Registry) Snapshot(elapsed time.Duration) []Utilization {
	stages := r.Stages()
	out := make([]Utilization, 0, len(stages))
	for _, c := range stages {
		out = append(out, Compute(c, elapsed))
	}
	return out
}
