package pipeline

import (
	"time"
)

// ReferencePreset は基準ワークロードを返す
// sha512 ×8 と blake3 ×4、10億件、リング容量100万
func ReferencePreset() Config {
	return Config{
		Name:        "reference",
		Description: "Reference workload: 1e9 items, 8 sha512 and 4 blake3 workers",
		Items:       1_000_000_000,
		Families: []FamilyConfig{
			{Name: "sha512", Workers: 8},
			{Name: "blake3", Workers: 4},
		},
		Capacity:      1_000_000,
		RetryInterval: 10 * time.Millisecond,
		StatsInterval: time.Second,
	}
}

// QuickPreset は短時間の動作確認用設定を返す
func QuickPreset() Config {
	return Config{
		Name:        "quick",
		Description: "Quick run of the reference topology",
		Items:       200_000,
		Families: []FamilyConfig{
			{Name: "sha512", Workers: 8},
			{Name: "blake3", Workers: 4},
		},
		Capacity:      4096,
		RetryInterval: time.Millisecond,
		StatsInterval: 500 * time.Millisecond,
		Verify:        true,
	}
}

// BackpressurePreset はリング容量が小さく生成側が追い越す設定を返す
func BackpressurePreset() Config {
	return Config{
		Name:        "backpressure",
		Description: "Tiny rings so the generator outruns capacity",
		Items:       10,
		Families: []FamilyConfig{
			{Name: "sha512", Workers: 1},
			{Name: "blake3", Workers: 1},
		},
		Capacity:      4,
		RetryInterval: time.Millisecond,
		StatsInterval: 100 * time.Millisecond,
		Verify:        true,
	}
}

// SinglePreset はファンアウト幅1の設定を返す
func SinglePreset() Config {
	return Config{
		Name:        "single",
		Description: "Fan-out width 1 per family, 1000 verified items",
		Items:       1000,
		Families: []FamilyConfig{
			{Name: "sha512", Workers: 1},
			{Name: "blake3", Workers: 1},
		},
		Capacity:      64,
		RetryInterval: time.Millisecond,
		StatsInterval: 250 * time.Millisecond,
		Verify:        true,
	}
}

// WidePreset は全アルゴリズムを使う設定を返す
func WidePreset() Config {
	return Config{
		Name:        "wide",
		Description: "All four digest families with heterogeneous widths",
		Items:       100_000,
		Families: []FamilyConfig{
			{Name: "sha512", Workers: 6},
			{Name: "blake3", Workers: 2},
			{Name: "blake2b", Workers: 3},
			{Name: "sha3", Workers: 4, Capacity: 512, OutputCapacity: 2048},
		},
		Capacity:      1024,
		RetryInterval: time.Millisecond,
		StatsInterval: 500 * time.Millisecond,
		Verify:        true,
	}
}

var presets = map[string]func() Config{
	"reference":    ReferencePreset,
	"quick":        QuickPreset,
	"backpressure": BackpressurePreset,
	"single":       SinglePreset,
	"wide":         WidePreset,
}

// GetPreset は名前からプリセットを取得する
func GetPreset(name string) (Config, bool) {
	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Config{}, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	return []string{"reference", "quick", "backpressure", "single", "wide"}
}
