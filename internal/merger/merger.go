package merger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"digest-pipe/internal/blocking"
	"digest-pipe/internal/digest"
	"digest-pipe/internal/logger"
	"digest-pipe/internal/metrics"
	"digest-pipe/internal/ring"
)

// ErrDigestMismatch は検証に失敗したことを示す
var ErrDigestMismatch = errors.New("digest mismatch")

// ErrVerifyPanic は検証用の変換関数がpanicしたことを示す
var ErrVerifyPanic = errors.New("merger verification panicked")

// Family はファミリーごとのファンイン元
type Family struct {
	Name   string
	Ins    []*ring.Consumer[digest.Digest]
	Verify digest.Func // nil なら検証しない
}

// Counts はファミリーごとの完了数
type Counts map[string]uint64

// Merger は全ワーカー出力を集約するステージ
type Merger struct {
	items    uint64
	families []Family
	policy   blocking.Policy
	counters *metrics.Counters

	completed []atomic.Uint64

	// OnDigest は取り出した各Digestに対して呼ばれる
	OnDigest func(family string, index uint64, d digest.Digest)
}

// New は新しいMergerを作成する
func New(items uint64, families []Family, policy blocking.Policy, counters *metrics.Counters) (*Merger, error) {
	for _, f := range families {
		if len(f.Ins) == 0 {
			return nil, fmt.Errorf("family %s has no input channels", f.Name)
		}
	}
	return &Merger{
		items:     items,
		families:  families,
		policy:    policy,
		counters:  counters,
		completed: make([]atomic.Uint64, len(families)),
	}, nil
}

// Run は各ファミリーから N 個のDigestを取り出し終えるまで実行する
func (m *Merger) Run(ctx context.Context) (counts Counts, err error) {
	name := m.counters.Name()
	defer func() {
		if r := recover(); r != nil {
			counts, err = m.Counts(), fmt.Errorf("%w: %s: %v", ErrVerifyPanic, name, r)
		}
	}()

	logger.Debug(name, "Expecting %d digests from %d families", m.items*uint64(len(m.families)), len(m.families))

	cursors := make([]int, len(m.families))
	for i := uint64(0); i < m.items; i++ {
		for f := range m.families {
			fam := &m.families[f]
			d, err := blocking.Pop(ctx, m.policy, fam.Ins[cursors[f]], m.counters)
			if err != nil {
				return m.Counts(), fmt.Errorf("merger stopped at item %d of %s: %w", i, fam.Name, err)
			}
			if fam.Verify != nil && !bytes.Equal(d, fam.Verify(digest.Encode(i))) {
				return m.Counts(), fmt.Errorf("%w: family %s item %d (worker %d)", ErrDigestMismatch, fam.Name, i, cursors[f])
			}
			if m.OnDigest != nil {
				m.OnDigest(fam.Name, i, d)
			}
			m.completed[f].Add(1)
			cursors[f] = (cursors[f] + 1) % len(fam.Ins)
		}
	}

	logger.Debug(name, "Merged %d items per family", m.items)
	return m.Counts(), nil
}

// Counts は現在のファミリーごとの完了数を返す
func (m *Merger) Counts() Counts {
	counts := make(Counts, len(m.families))
	for f, fam := range m.families {
		counts[fam.Name] = m.completed[f].Load()
	}
	return counts
}

// Total は全ファミリーの完了数の合計を返す
func (m *Merger) Total() uint64 {
	var total uint64
	for f := range m.completed {
		total += m.completed[f].Load()
	}
	return total
}
