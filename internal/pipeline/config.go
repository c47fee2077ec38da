package pipeline

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"digest-pipe/internal/digest"
)

// ErrInvalidConfig は設定違反を示す
var ErrInvalidConfig = errors.New("invalid pipeline config")

// FamilyConfig は変換ファミリーの設定
type FamilyConfig struct {
	Name           string // ステージ名の接頭辞
	Algorithm      string // digest アルゴリズム名（空なら Name）
	Workers        int    // ワーカー数 = ファンアウト幅
	Capacity       int    // generator → worker のリング容量（0で Config.Capacity）
	OutputCapacity int    // worker → merger のリング容量（0で入力側と同じ）

	// Func は外部から与える変換関数。nil でなければ Algorithm より優先する
	// 純粋関数でなければならない（verify 時は merger からも呼ばれる）
	Func digest.Func
}

// algorithm はアルゴリズム名を返す
func (f FamilyConfig) algorithm() string {
	if f.Algorithm != "" {
		return f.Algorithm
	}
	if f.Func != nil {
		return "custom"
	}
	return f.Name
}

// transform はファミリーの変換関数を返す
func (f FamilyConfig) transform() (digest.Func, error) {
	if f.Func != nil {
		return f.Func, nil
	}
	alg, err := digest.Lookup(f.algorithm())
	if err != nil {
		return nil, err
	}
	return alg.Func, nil
}

// Config はパイプラインの設定
type Config struct {
	Name        string // 設定名
	Description string // 説明
	Items       uint64 // 生成するItem数 N

	Families []FamilyConfig

	Capacity      int           // 既定のリング容量
	RetryInterval time.Duration // full / empty 時の待ち時間
	StatsInterval time.Duration // 利用率の報告間隔
	Verify        bool          // merger で全Digestを検証する
	Quiet         bool          // ステージごとの定期ログを出さない
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Name:        "default",
		Description: "Default pipeline",
		Items:       100_000,
		Families: []FamilyConfig{
			{Name: "sha512", Workers: 8},
			{Name: "blake3", Workers: 4},
		},
		Capacity:      1024,
		RetryInterval: 10 * time.Millisecond,
		StatsInterval: time.Second,
	}
}

// inputCapacity は generator → worker のリング容量を返す
func (c Config) inputCapacity(f FamilyConfig) int {
	if f.Capacity > 0 {
		return f.Capacity
	}
	return c.Capacity
}

// outputCapacity は worker → merger のリング容量を返す
func (c Config) outputCapacity(f FamilyConfig) int {
	if f.OutputCapacity > 0 {
		return f.OutputCapacity
	}
	return c.inputCapacity(f)
}

// TotalWorkers は全ファミリーのワーカー数の合計を返す
func (c Config) TotalWorkers() int {
	total := 0
	for _, f := range c.Families {
		total += f.Workers
	}
	return total
}

// Validate は設定を検証し、全ての違反をまとめて返す
func (c Config) Validate() error {
	var err error
	invalid := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Items == 0 {
		invalid("items must be at least 1")
	}
	if len(c.Families) == 0 {
		invalid("at least one family is required")
	}
	if c.Capacity < 0 {
		invalid("capacity must be non-negative")
	}
	if c.RetryInterval <= 0 {
		invalid("retry_interval must be positive")
	}
	if c.StatsInterval <= 0 {
		invalid("stats_interval must be positive")
	}

	seen := make(map[string]bool, len(c.Families))
	for i, f := range c.Families {
		if f.Name == "" {
			invalid("families[%d].name is required", i)
		} else if seen[f.Name] {
			invalid("families[%d].name %q is duplicated", i, f.Name)
		}
		seen[f.Name] = true

		if f.Workers < 1 {
			invalid("families[%d].workers must be at least 1 (family %s)", i, f.Name)
		}
		if f.Capacity < 0 || f.OutputCapacity < 0 {
			invalid("families[%d] capacities must be non-negative (family %s)", i, f.Name)
		}
		if c.inputCapacity(f) < 1 {
			invalid("families[%d].capacity must be at least 1 (family %s)", i, f.Name)
		}
		if _, lookupErr := f.transform(); lookupErr != nil {
			invalid("families[%d].algorithm: %v", i, lookupErr)
		}
	}

	return err
}
