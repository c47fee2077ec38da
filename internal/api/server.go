package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	pconfig "digest-pipe/internal/config"
	"digest-pipe/internal/events"
	"digest-pipe/internal/logger"
	"digest-pipe/internal/metrics"
	"digest-pipe/internal/pipeline"
)

// Server はAPIサーバー
type Server struct {
	addr      string
	bus       *events.Bus
	registry  *prometheus.Registry
	collector *metrics.Collector
	gauges    *metrics.UtilizationGauges

	mu      sync.RWMutex
	ctx     context.Context
	running bool
	engine  *pipeline.Engine
	config  pipeline.Config
	result  *pipeline.Result
	lastErr string

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(addr string) (*Server, error) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(nil)
	if err := registry.Register(collector); err != nil {
		return nil, fmt.Errorf("failed to register collector: %w", err)
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	gauges, err := metrics.NewUtilizationGauges(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register gauges: %w", err)
	}

	return &Server{
		addr:      addr,
		bus:       events.NewBus(),
		registry:  registry,
		collector: collector,
		gauges:    gauges,
		ctx:       context.Background(),
	}, nil
}

// Bus はイベントバスを返す
func (s *Server) Bus() *events.Bus {
	return s.bus
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/stages", s.handleStages)
	mux.HandleFunc("/api/result", s.handleResult)
	mux.HandleFunc("/api/run/start", s.handleRunStart)
	mux.HandleFunc("/api/run/stop", s.handleRunStop)
	mux.HandleFunc("/api/presets", s.handlePresets)

	// Prometheus
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始する
// ctx がキャンセルされると実行中のパイプラインも止まる
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("", "API Server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.bus.Close()
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running   bool   `json:"running"`
	RunID     string `json:"run_id,omitempty"`
	Pipeline  string `json:"pipeline,omitempty"`
	Items     uint64 `json:"items,omitempty"`
	Workers   int    `json:"workers,omitempty"`
	Merged    uint64 `json:"merged"`
	Expected  uint64 `json:"expected"`
	Complete  bool   `json:"complete"`
	LastError string `json:"last_error,omitempty"`
}

func (s *Server) status() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{
		Running:   s.running,
		LastError: s.lastErr,
	}
	if s.engine != nil {
		resp.RunID = s.engine.RunID()
		resp.Pipeline = s.config.Name
		resp.Items = s.config.Items
		resp.Workers = s.config.TotalWorkers()
		resp.Merged, resp.Expected = s.engine.Progress()
	}
	if s.result != nil {
		resp.Complete = s.result.Complete
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	engine, result := s.engine, s.result
	s.mu.RUnlock()

	stages := []metrics.Utilization{}
	switch {
	case result != nil:
		stages = result.Stages
	case engine != nil:
		if live := engine.Stages(); live != nil {
			stages = live
		}
	}

	s.writeJSON(w, stages)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	result := s.result
	s.mu.RUnlock()

	if result == nil {
		http.Error(w, "No result available", http.StatusNotFound)
		return
	}
	s.writeJSON(w, result)
}

// RunRequest はパイプライン開始リクエスト
type RunRequest struct {
	Preset   string         `json:"preset"`
	Items    uint64         `json:"items,omitempty"`
	Capacity int            `json:"capacity,omitempty"`
	Workers  map[string]int `json:"workers,omitempty"`
	Verify   *bool          `json:"verify,omitempty"`
	Quiet    bool           `json:"quiet,omitempty"`
}

// buildConfig はプリセットにオーバーライドを適用する
func (req RunRequest) buildConfig() (pipeline.Config, error) {
	config, ok := pipeline.GetPreset(req.Preset)
	if !ok {
		if req.Preset != "" {
			return config, fmt.Errorf("unknown preset: %s", req.Preset)
		}
		config = pipeline.QuickPreset()
	}

	if req.Items > 0 {
		config.Items = req.Items
	}
	if req.Capacity > 0 {
		config.Capacity = req.Capacity
	}
	if err := pconfig.SetWorkers(&config, req.Workers); err != nil {
		return config, err
	}
	if req.Verify != nil {
		config.Verify = *req.Verify
	}
	config.Quiet = config.Quiet || req.Quiet

	return config, config.Validate()
}

func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	config, err := req.buildConfig()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "Pipeline already running", http.StatusConflict)
		return
	}

	engine := pipeline.New(config)
	engine.SetEventBus(s.bus)
	engine.SetGauges(s.gauges)
	engine.SetCollector(s.collector)

	s.config = config
	s.engine = engine
	s.result = nil
	s.lastErr = ""
	s.running = true
	ctx := s.ctx
	s.mu.Unlock()

	// バックグラウンドで実行
	go func() {
		result, err := engine.Run(ctx)

		s.mu.Lock()
		s.running = false
		s.result = result
		if err != nil {
			s.lastErr = err.Error()
		}
		s.mu.Unlock()

		if err != nil {
			logger.Error("", "Pipeline failed: %v", err)
			return
		}
		logger.Info("", "Pipeline completed: %d digests merged", result.TotalCompleted())
	}()

	s.writeJSON(w, map[string]string{"status": "started", "pipeline": config.Name})
}

func (s *Server) handleRunStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	engine, running := s.engine, s.running
	s.mu.RUnlock()

	if !running || engine == nil || !engine.Stop() {
		http.Error(w, "No pipeline running", http.StatusBadRequest)
		return
	}

	s.writeJSON(w, map[string]string{"status": "stop requested"})
}

// PresetInfo はプリセット情報
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Items       uint64 `json:"items"`
	Workers     int    `json:"workers"`
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var presets []PresetInfo
	for _, name := range pipeline.ListPresets() {
		config, _ := pipeline.GetPreset(name)
		presets = append(presets, PresetInfo{
			Name:        name,
			Description: config.Description,
			Items:       config.Items,
			Workers:     config.TotalWorkers(),
		})
	}

	s.writeJSON(w, presets)
}

// handleWebSocket はバスのイベントをJSONで配信する
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	ch := s.bus.Subscribe()
	defer func() {
		s.bus.Unsubscribe(ch)
		_ = ws.Close()
	}()

	// 受信側が閉じたら配信をやめる
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(ws, ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("", "Failed to encode JSON: %v", err)
	}
}
