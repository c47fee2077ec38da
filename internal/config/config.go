package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"digest-pipe/internal/pipeline"
)

// EnvPrefix は環境変数の接頭辞
const EnvPrefix = "DIGESTPIPE"

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline" toml:"pipeline"`
}

// PipelineConfig はパイプライン設定
type PipelineConfig struct {
	Name          string         `yaml:"name" json:"name" toml:"name"`
	Description   string         `yaml:"description" json:"description" toml:"description"`
	Items         uint64         `yaml:"items" json:"items" toml:"items"`
	Capacity      int            `yaml:"capacity" json:"capacity" toml:"capacity"`
	RetryInterval string         `yaml:"retry_interval" json:"retry_interval" toml:"retry_interval"`
	StatsInterval string         `yaml:"stats_interval" json:"stats_interval" toml:"stats_interval"`
	Verify        bool           `yaml:"verify" json:"verify" toml:"verify"`
	Quiet         bool           `yaml:"quiet" json:"quiet" toml:"quiet"`
	Families      []FamilyConfig `yaml:"families" json:"families" toml:"families"`
}

// FamilyConfig は変換ファミリー設定
type FamilyConfig struct {
	Name           string `yaml:"name" json:"name" toml:"name"`
	Algorithm      string `yaml:"algorithm" json:"algorithm" toml:"algorithm"`
	Workers        int    `yaml:"workers" json:"workers" toml:"workers"`
	Capacity       int    `yaml:"capacity" json:"capacity" toml:"capacity"`
	OutputCapacity int    `yaml:"output_capacity" json:"output_capacity" toml:"output_capacity"`
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// ToPipelineConfig はFileConfigをpipeline.Configに変換する
// 未指定の項目は base の値を引き継ぐ
func (f *FileConfig) ToPipelineConfig(base pipeline.Config) (pipeline.Config, error) {
	pc := f.Pipeline
	config := base

	if pc.Name != "" {
		config.Name = pc.Name
	}
	if pc.Description != "" {
		config.Description = pc.Description
	}
	if pc.Items > 0 {
		config.Items = pc.Items
	}
	if pc.Capacity > 0 {
		config.Capacity = pc.Capacity
	}
	if pc.RetryInterval != "" {
		d, err := time.ParseDuration(pc.RetryInterval)
		if err != nil {
			return config, fmt.Errorf("invalid retry_interval: %w", err)
		}
		config.RetryInterval = d
	}
	if pc.StatsInterval != "" {
		d, err := time.ParseDuration(pc.StatsInterval)
		if err != nil {
			return config, fmt.Errorf("invalid stats_interval: %w", err)
		}
		config.StatsInterval = d
	}
	config.Verify = config.Verify || pc.Verify
	config.Quiet = config.Quiet || pc.Quiet

	// ファミリー指定があれば丸ごと置き換える
	if len(pc.Families) > 0 {
		config.Families = make([]pipeline.FamilyConfig, len(pc.Families))
		for i, fc := range pc.Families {
			config.Families[i] = pipeline.FamilyConfig{
				Name:           fc.Name,
				Algorithm:      fc.Algorithm,
				Workers:        fc.Workers,
				Capacity:       fc.Capacity,
				OutputCapacity: fc.OutputCapacity,
			}
		}
	}

	return config, nil
}

// Validate は設定ファイルの値を検証する
func (f *FileConfig) Validate() error {
	pc := f.Pipeline
	var err error

	if pc.Capacity < 0 {
		err = multierr.Append(err, fmt.Errorf("capacity must be non-negative"))
	}
	for _, d := range []struct{ name, value string }{
		{"retry_interval", pc.RetryInterval},
		{"stats_interval", pc.StatsInterval},
	} {
		if d.value == "" {
			continue
		}
		if v, parseErr := time.ParseDuration(d.value); parseErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", d.name, parseErr))
		} else if v <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive", d.name))
		}
	}
	for i, fc := range pc.Families {
		if fc.Name == "" {
			err = multierr.Append(err, fmt.Errorf("families[%d].name is required", i))
		}
		if fc.Workers < 0 {
			err = multierr.Append(err, fmt.Errorf("families[%d].workers must be non-negative", i))
		}
		if fc.Capacity < 0 || fc.OutputCapacity < 0 {
			err = multierr.Append(err, fmt.Errorf("families[%d] capacities must be non-negative", i))
		}
	}

	return err
}

// Env は環境変数による上書き値
// キーは DIGESTPIPE_ITEMS や DIGESTPIPE_RETRY_INTERVAL の形式、未設定の項目は nil のまま
type Env struct {
	Items         *uint64        `split_words:"true"`
	Capacity      *int           `split_words:"true"`
	RetryInterval *time.Duration `split_words:"true"`
	StatsInterval *time.Duration `split_words:"true"`
	Verify        *bool          `split_words:"true"`
	Quiet         *bool          `split_words:"true"`
	Workers       map[string]int `split_words:"true"`
	LogLevel      string         `split_words:"true"`
}

// LoadEnv は DIGESTPIPE_* 環境変数を読み込む
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	return &env, nil
}

// Apply は環境変数の値で設定を上書きする
func (e *Env) Apply(config *pipeline.Config) error {
	if e.Items != nil {
		config.Items = *e.Items
	}
	if e.Capacity != nil {
		config.Capacity = *e.Capacity
	}
	if e.RetryInterval != nil {
		config.RetryInterval = *e.RetryInterval
	}
	if e.StatsInterval != nil {
		config.StatsInterval = *e.StatsInterval
	}
	if e.Verify != nil {
		config.Verify = *e.Verify
	}
	if e.Quiet != nil {
		config.Quiet = *e.Quiet
	}
	return SetWorkers(config, e.Workers)
}

// ApplyEnv は環境変数を読み込んで設定を上書きする
func ApplyEnv(config *pipeline.Config) error {
	env, err := LoadEnv()
	if err != nil {
		return err
	}
	return env.Apply(config)
}

// SetWorkers はファミリー名ごとのワーカー数を上書きする
func SetWorkers(config *pipeline.Config, workers map[string]int) error {
	for name, n := range workers {
		found := false
		for i := range config.Families {
			if config.Families[i].Name == name {
				config.Families[i].Workers = n
				found = true
			}
		}
		if !found {
			return fmt.Errorf("unknown family: %s", name)
		}
	}
	return nil
}

// ParseWorkers は "family=n" 形式の指定をパースする
func ParseWorkers(specs []string) (map[string]int, error) {
	workers := make(map[string]int, len(specs))
	for _, s := range specs {
		name, value, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid worker spec %q (want family=n)", s)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid worker count in %q: %w", s, err)
		}
		workers[strings.TrimSpace(name)] = n
	}
	return workers, nil
}
