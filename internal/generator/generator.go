package generator

import (
	"context"
	"fmt"
	"sync/atomic"

	"digest-pipe/internal/blocking"
	"digest-pipe/internal/digest"
	"digest-pipe/internal/logger"
	"digest-pipe/internal/metrics"
	"digest-pipe/internal/ring"
)

const cancelCheckEvery = 4096

// Family はファミリーごとのファンアウト先
type Family struct {
	Name string
	Outs []*ring.Producer[digest.Item]
}

// Generator は連番を生成してファンアウトするステージ
type Generator struct {
	items    uint64
	families []Family
	policy   blocking.Policy
	counters *metrics.Counters

	produced atomic.Uint64
}

// New は新しいGeneratorを作成する
func New(items uint64, families []Family, policy blocking.Policy, counters *metrics.Counters) (*Generator, error) {
	for _, f := range families {
		if len(f.Outs) == 0 {
			return nil, fmt.Errorf("family %s has no output channels", f.Name)
		}
	}
	return &Generator{
		items:    items,
		families: families,
		policy:   policy,
		counters: counters,
	}, nil
}

// Run は N 個のItemを生成し終えるまで実行する
func (g *Generator) Run(ctx context.Context) error {
	name := g.counters.Name()
	logger.Debug(name, "Generating %d items for %d families", g.items, len(g.families))

	cursors := make([]int, len(g.families))
	for i := uint64(0); i < g.items; i++ {
		// リングが詰まらない間もキャンセルに気付けるようにする
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("generator stopped at item %d: %w", i, err)
			}
		}
		item := digest.Encode(i)
		for f := range g.families {
			outs := g.families[f].Outs
			if err := blocking.Push(ctx, g.policy, outs[cursors[f]], item, g.counters); err != nil {
				return fmt.Errorf("generator stopped at item %d: %w", i, err)
			}
			cursors[f] = (cursors[f] + 1) % len(outs)
		}
		g.produced.Store(i + 1)
	}

	logger.Debug(name, "Generated %d items", g.items)
	return nil
}

// Produced は生成済みのItem数を返す
func (g *Generator) Produced() uint64 {
	return g.produced.Load()
}
