package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"digest-pipe/internal/blocking"
	"digest-pipe/internal/digest"
	"digest-pipe/internal/logger"
	"digest-pipe/internal/metrics"
	"digest-pipe/internal/ring"
)

// ErrStagePanic は変換関数のpanicでステージが停止したことを示す
var ErrStagePanic = errors.New("worker stage panicked")

// Stage は1つの入力と1つの出力を専有するワーカー
type Stage struct {
	name     string
	in       *ring.Consumer[digest.Item]
	out      *ring.Producer[digest.Digest]
	fn       digest.Func
	policy   blocking.Policy
	counters *metrics.Counters

	processed atomic.Uint64
}

// NewStage は新しいステージを作成する
func NewStage(in *ring.Consumer[digest.Item], out *ring.Producer[digest.Digest], fn digest.Func,
	policy blocking.Policy, counters *metrics.Counters) *Stage {
	return &Stage{
		name:     counters.Name(),
		in:       in,
		out:      out,
		fn:       fn,
		policy:   policy,
		counters: counters,
	}
}

// Name はステージ名を返す
func (s *Stage) Name() string {
	return s.name
}

// Processed は処理済みItem数を返す
func (s *Stage) Processed() uint64 {
	return s.processed.Load()
}

// Run はコンテキストがキャンセルされるまで pop → 変換 → push を繰り返す
func (s *Stage) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrStagePanic, s.name, r)
		}
	}()

	for {
		item, err := blocking.Pop(ctx, s.policy, s.in, s.counters)
		if err != nil {
			return err
		}
		d := s.fn(item)
		if err := blocking.Push(ctx, s.policy, s.out, d, s.counters); err != nil {
			return err
		}
		s.processed.Add(1)
	}
}

// PoolConfig はファミリーのワーカープール設定
type PoolConfig struct {
	Family   string
	Func     digest.Func
	Ins      []*ring.Consumer[digest.Item]
	Outs     []*ring.Producer[digest.Digest]
	Counters []*metrics.Counters
	Policy   blocking.Policy

	// OnError はステージが異常終了したときに呼ばれる（キャンセルは除く）
	OnError func(stage string, err error)
}

// Pool は1ファミリー分のステージを管理する
type Pool struct {
	family  string
	stages  []*Stage
	onError func(stage string, err error)

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex

	errMu sync.Mutex
	err   error
}

// NewPool は設定からワーカープールを作成する
// Ins / Outs / Counters は同じ長さでなければならない
func NewPool(config PoolConfig) (*Pool, error) {
	n := len(config.Ins)
	if n == 0 {
		return nil, fmt.Errorf("family %s: no workers", config.Family)
	}
	if len(config.Outs) != n || len(config.Counters) != n {
		return nil, fmt.Errorf("family %s: mismatched stage wiring (ins=%d outs=%d counters=%d)",
			config.Family, n, len(config.Outs), len(config.Counters))
	}
	if config.Func == nil {
		return nil, fmt.Errorf("family %s: no digest function", config.Family)
	}

	stages := make([]*Stage, n)
	for i := range n {
		stages[i] = NewStage(config.Ins[i], config.Outs[i], config.Func, config.Policy, config.Counters[i])
	}
	return &Pool{
		family:  config.Family,
		stages:  stages,
		onError: config.OnError,
	}, nil
}

// Start はステージごとにゴルーチンを起動する
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true

	for _, s := range p.stages {
		p.wg.Add(1)
		go p.run(s)
	}

	logger.Info("", "Family %s started with %d workers", p.family, len(p.stages))
}

// run は個々のステージゴルーチン
func (p *Pool) run(s *Stage) {
	defer p.wg.Done()

	err := s.Run(p.ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	logger.Error(s.Name(), "Stage died: %v", err)
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()

	if p.onError != nil {
		p.onError(s.Name(), err)
	}
}

// Stop は全ステージを停止し、終了を待つ
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	logger.Info("", "Family %s stopped (%d items processed)", p.family, p.Processed())
}

// Err は最初に異常終了したステージのエラーを返す
func (p *Pool) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Family はファミリー名を返す
func (p *Pool) Family() string {
	return p.family
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return len(p.stages)
}

// Stages は全ステージを返す
func (p *Pool) Stages() []*Stage {
	stages := make([]*Stage, len(p.stages))
	copy(stages, p.stages)
	return stages
}

// Processed は全ステージの処理済みItem数の合計を返す
func (p *Pool) Processed() uint64 {
	var total uint64
	for _, s := range p.stages {
		total += s.Processed()
	}
	return total
}
