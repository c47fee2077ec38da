// Package main is the entry point for digest-pipe.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"digest-pipe/internal/api"
	"digest-pipe/internal/config"
	"digest-pipe/internal/logger"
	"digest-pipe/internal/pipeline"
)

var (
	version = "dev"
)

// options はコマンドラインフラグの値
type options struct {
	configFile    string
	presetName    string
	items         uint64
	workers       []string
	capacity      int
	retry         time.Duration
	statsInterval time.Duration
	verify        bool
	quiet         bool
	logLevel      string
	addr          string
}

// errConfig は設定エラーを示す
var errConfig = errors.New("configuration error")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("", "%v", err)
		_ = logger.Default.Sync()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "digest-pipe",
		Short: "digest-pipe - lock-free SPSC fan-out/fan-in hashing pipeline",
		Long: `digest-pipe streams N little-endian counters through per-family worker
pools over bounded lock-free rings and reports per-stage idle and blocked time.`,
		Example: `  # 基準ワークロードを実行
  digest-pipe

  # プリセットを実行
  digest-pipe --preset quick

  # 設定ファイルから実行
  digest-pipe --config pipeline.yaml

  # フラグでカスタマイズ
  digest-pipe --preset single --items 5000 --workers sha512=4 --verify`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogger(cmd, opts); err != nil {
				return err
			}
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")

	bindRunFlags(rootCmd, opts)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "HTTP/WebSocket API サーバーを起動する",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogger(cmd, opts); err != nil {
				return err
			}
			return runServer(cmd.Context(), opts.addr)
		},
	}
	serveCmd.Flags().StringVar(&opts.addr, "addr", ":8080", "サーバーアドレス (例: :8080, 0.0.0.0:3000)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "利用可能なプリセットを表示する",
		Run: func(cmd *cobra.Command, args []string) {
			printPresets(cmd)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "バージョンを表示する",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("digest-pipe version %s\n", version)
		},
	}

	rootCmd.AddCommand(serveCmd, presetsCmd, versionCmd)
	return rootCmd
}

// bindRunFlags はパイプライン実行用のフラグを登録する
func bindRunFlags(cmd *cobra.Command, opts *options) {
	rf := cmd.Flags()
	rf.StringVarP(&opts.configFile, "config", "c", "", "設定ファイルパス (YAML/JSON/TOML)")
	rf.StringVarP(&opts.presetName, "preset", "p", "", "プリセット名 (reference, quick, backpressure, single, wide)")
	rf.Uint64VarP(&opts.items, "items", "n", 0, "生成するItem数")
	rf.StringSliceVarP(&opts.workers, "workers", "w", nil, "ファミリーごとのワーカー数 (例: sha512=8,blake3=4)")
	rf.IntVar(&opts.capacity, "capacity", 0, "リング容量")
	rf.DurationVar(&opts.retry, "retry", 0, "full / empty 時の待ち時間 (例: 10ms)")
	rf.DurationVar(&opts.statsInterval, "stats-interval", 0, "利用率の報告間隔 (例: 1s)")
	rf.BoolVar(&opts.verify, "verify", false, "mergerで全Digestを検証する")
	rf.BoolVarP(&opts.quiet, "quiet", "q", false, "ステージごとの定期ログを出さない")
}

// setupLogger はフラグと環境変数からログレベルを設定する
func setupLogger(cmd *cobra.Command, opts *options) error {
	level := opts.logLevel
	if !cmd.Flags().Changed("log-level") {
		env, err := config.LoadEnv()
		if err != nil {
			return fmt.Errorf("%w: %v", errConfig, err)
		}
		level = env.LogLevel
	}
	if level == "" {
		return nil
	}

	l, err := logger.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	logger.Default.SetLevel(l)
	return nil
}

// buildConfig はパイプライン設定を構築する
// 優先順位: フラグ > 環境変数 > 設定ファイル / プリセット > reference
func buildConfig(cmd *cobra.Command, opts *options) (pipeline.Config, error) {
	cfg := pipeline.ReferencePreset()

	if opts.presetName != "" {
		preset, ok := pipeline.GetPreset(opts.presetName)
		if !ok {
			return cfg, fmt.Errorf("%w: unknown preset %s (available: %v)", errConfig, opts.presetName, pipeline.ListPresets())
		}
		cfg = preset
	}

	if opts.configFile != "" {
		fileConfig, err := config.LoadFile(opts.configFile)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", errConfig, err)
		}
		if err := fileConfig.Validate(); err != nil {
			return cfg, fmt.Errorf("%w: %v", errConfig, err)
		}
		cfg, err = fileConfig.ToPipelineConfig(cfg)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", errConfig, err)
		}
	}

	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", errConfig, err)
	}

	// 明示的に指定されたフラグのみ上書きする
	flags := cmd.Flags()
	if flags.Changed("items") {
		cfg.Items = opts.items
	}
	if flags.Changed("capacity") {
		cfg.Capacity = opts.capacity
	}
	if flags.Changed("retry") {
		cfg.RetryInterval = opts.retry
	}
	if flags.Changed("stats-interval") {
		cfg.StatsInterval = opts.statsInterval
	}
	if flags.Changed("verify") {
		cfg.Verify = opts.verify
	}
	if flags.Changed("quiet") {
		cfg.Quiet = opts.quiet
	}
	if len(opts.workers) > 0 {
		workers, err := config.ParseWorkers(opts.workers)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", errConfig, err)
		}
		if err := config.SetWorkers(&cfg, workers); err != nil {
			return cfg, fmt.Errorf("%w: %v", errConfig, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// runPipeline はパイプラインを実行する
func runPipeline(ctx context.Context, cfg pipeline.Config) error {
	fmt.Println("digest-pipe - SPSC fan-out/fan-in hashing pipeline")
	fmt.Println("===================================================")
	fmt.Printf("Pipeline: %s\n", cfg.Name)
	fmt.Printf("Items: %d, Capacity: %d\n", cfg.Items, cfg.Capacity)
	for _, f := range cfg.Families {
		fmt.Printf("Family %s: %d workers\n", f.Name, f.Workers)
	}
	fmt.Printf("Retry: %v, Stats: %v, Verify: %v\n", cfg.RetryInterval, cfg.StatsInterval, cfg.Verify)
	fmt.Println("===================================================")
	fmt.Println()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := pipeline.New(cfg)
	result, err := engine.Run(ctx)
	if result != nil {
		fmt.Println(result.Report())
	}
	return err
}

// printPresets は利用可能なプリセットを表示する
func printPresets(cmd *cobra.Command) {
	cmd.Println("利用可能なプリセット:")
	cmd.Println()

	for _, name := range pipeline.ListPresets() {
		cfg, _ := pipeline.GetPreset(name)
		cmd.Printf("  %-14s %s\n", name, cfg.Description)
	}

	cmd.Println()
	cmd.Println("使用例: digest-pipe --preset quick")
}

// runServer はAPIサーバーを起動する
func runServer(ctx context.Context, addr string) error {
	fmt.Println("digest-pipe - API Server")
	fmt.Println("========================")
	fmt.Printf("Starting server on http://%s\n", addr)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(addr)
	if err != nil {
		return err
	}
	return server.Start(ctx)
}
