package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MetricsCollector 指標收集器
// 模擬模式下彙整引擎統計，接收模式下彙整接收器統計
type MetricsCollector struct {
	mu sync.RWMutex

	startTime time.Time

	// 引擎指標
	engineState        string
	totalTransmitters  int
	activeTransmitters int
	connectedClients   int64

	// 報文指標
	totalFrames atomic.Uint64
	totalErrors atomic.Uint64
	totalBytes  atomic.Uint64

	// 接收指標
	receiverState string
	reconnects    uint64
	malformed     uint64
	lastDeviceMs  int64
	kindCounts    [6]uint64

	// 情境指標
	currentProfile string

	// 歷史記錄 (用於計算速率)
	frameHistory []frameSample
	maxHistory   int

	// 參照，任一可為 nil
	engine   *Engine
	receiver *Receiver
	logger   *zap.Logger
}

type frameSample struct {
	timestamp time.Time
	frames    uint64
	errors    uint64
}

// MetricsSnapshot 指標快照
type MetricsSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`

	// 引擎指標
	EngineState        string `json:"engine_state,omitempty"`
	CurrentProfile     string `json:"current_profile,omitempty"`
	TotalTransmitters  int    `json:"total_transmitters"`
	ActiveTransmitters int    `json:"active_transmitters"`
	ConnectedClients   int64  `json:"connected_clients"`

	// 報文指標
	TotalFrames   uint64  `json:"total_frames"`
	TotalErrors   uint64  `json:"total_errors"`
	ErrorRate     float64 `json:"error_rate"`
	FramesPerSec  float64 `json:"frames_per_sec"`
	TotalBytes    uint64  `json:"total_bytes"`

	// 接收指標
	ReceiverState   string `json:"receiver_state,omitempty"`
	Reconnects      uint64 `json:"reconnects"`
	MalformedFrames uint64 `json:"malformed_frames"`
	LastDeviceMs    int64  `json:"last_device_ms"`
	PhaseFrames     uint64 `json:"phase_frames"`
	DoubleFrames    uint64 `json:"double_frames"`
	Int32Frames     uint64 `json:"int32_frames"`
	MessageFrames   uint64 `json:"message_frames"`
}

// NewMetricsCollector 建立指標收集器
func NewMetricsCollector(engine *Engine, receiver *Receiver, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		engine:     engine,
		receiver:   receiver,
		logger:     logger,
		maxHistory: 60, // 保留 60 個樣本 (用於計算每秒速率)
	}
}

// Start 啟動指標收集
func (m *MetricsCollector) Start(endpoint string, port int) error {
	m.startTime = time.Now()

	// 啟動背景收集
	go m.collectLoop()

	// 啟動 HTTP 伺服器
	mux := http.NewServeMux()
	mux.HandleFunc(endpoint, m.handleMetrics)
	mux.HandleFunc("/health", m.handleHealth)
	mux.HandleFunc("/ready", m.handleReady)

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("啟動指標伺服器", zap.String("addr", addr))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("指標伺服器錯誤", zap.Error(err))
		}
	}()

	return nil
}

// collectLoop 背景收集迴圈
func (m *MetricsCollector) collectLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collect()
	}
}

// collect 收集指標
func (m *MetricsCollector) collect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var frames, errors uint64

	if m.engine != nil {
		stats := m.engine.Stats()
		m.engineState = m.engine.State().String()
		m.totalTransmitters = stats.TransmitterCount
		m.activeTransmitters = stats.ActiveTransmitters
		m.connectedClients = stats.TotalClients
		m.currentProfile = m.engine.GetProfile().String()

		frames = stats.TotalFrames
		errors = stats.TotalErrorFrames
		m.totalBytes.Store(stats.TotalBytes)
	}

	if m.receiver != nil {
		stats := m.receiver.Stats()
		m.receiverState = m.receiver.State().String()
		m.reconnects = stats.Reconnects.Load()
		m.malformed = stats.MalformedFrames.Load()
		m.lastDeviceMs = stats.LastDeviceMs.Load()
		for k := range m.kindCounts {
			m.kindCounts[k] = stats.KindCount(ReportKind(k))
		}

		frames = stats.FramesReceived.Load()
		errors = m.kindCounts[KindError]
		m.totalBytes.Store(stats.BytesReceived.Load())
	}

	m.totalFrames.Store(frames)
	m.totalErrors.Store(errors)

	// 記錄歷史
	sample := frameSample{
		timestamp: time.Now(),
		frames:    frames,
		errors:    errors,
	}
	m.frameHistory = append(m.frameHistory, sample)
	if len(m.frameHistory) > m.maxHistory {
		m.frameHistory = m.frameHistory[1:]
	}
}

// Snapshot 取得指標快照
func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalFrames := m.totalFrames.Load()
	totalErrors := m.totalErrors.Load()

	snapshot := MetricsSnapshot{
		Timestamp:          time.Now(),
		Uptime:             time.Since(m.startTime).String(),
		EngineState:        m.engineState,
		CurrentProfile:     m.currentProfile,
		TotalTransmitters:  m.totalTransmitters,
		ActiveTransmitters: m.activeTransmitters,
		ConnectedClients:   m.connectedClients,
		TotalFrames:        totalFrames,
		TotalErrors:        totalErrors,
		TotalBytes:         m.totalBytes.Load(),
		ReceiverState:      m.receiverState,
		Reconnects:         m.reconnects,
		MalformedFrames:    m.malformed,
		LastDeviceMs:       m.lastDeviceMs,
		PhaseFrames:        m.kindCounts[KindPhase],
		DoubleFrames:       m.kindCounts[KindDouble],
		Int32Frames:        m.kindCounts[KindInt32],
		MessageFrames:      m.kindCounts[KindMessage],
	}

	// 計算錯誤率
	if totalFrames > 0 {
		snapshot.ErrorRate = float64(totalErrors) / float64(totalFrames) * 100
	}

	// 計算每秒報文數 (使用最近的歷史記錄)
	if len(m.frameHistory) >= 2 {
		first := m.frameHistory[0]
		last := m.frameHistory[len(m.frameHistory)-1]
		duration := last.timestamp.Sub(first.timestamp).Seconds()
		if duration > 0 {
			snapshot.FramesPerSec = float64(last.frames-first.frames) / duration
		}
	}

	return snapshot
}

// handleMetrics 處理 /metrics 請求
func (m *MetricsCollector) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := m.Snapshot()

	// 檢查 Accept header
	accept := r.Header.Get("Accept")
	if accept == "application/json" || r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot)
		return
	}

	// Prometheus 格式
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	fmt.Fprintf(w, "# HELP fxesim_uptime_seconds Uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE fxesim_uptime_seconds gauge\n")
	fmt.Fprintf(w, "fxesim_uptime_seconds %f\n\n", time.Since(m.startTime).Seconds())

	fmt.Fprintf(w, "# HELP fxesim_transmitters_total Total number of transmitters\n")
	fmt.Fprintf(w, "# TYPE fxesim_transmitters_total gauge\n")
	fmt.Fprintf(w, "fxesim_transmitters_total %d\n\n", snapshot.TotalTransmitters)

	fmt.Fprintf(w, "# HELP fxesim_transmitters_active Active number of transmitters\n")
	fmt.Fprintf(w, "# TYPE fxesim_transmitters_active gauge\n")
	fmt.Fprintf(w, "fxesim_transmitters_active %d\n\n", snapshot.ActiveTransmitters)

	fmt.Fprintf(w, "# HELP fxesim_clients_connected Connected client count\n")
	fmt.Fprintf(w, "# TYPE fxesim_clients_connected gauge\n")
	fmt.Fprintf(w, "fxesim_clients_connected %d\n\n", snapshot.ConnectedClients)

	fmt.Fprintf(w, "# HELP fxesim_frames_total Total number of report frames\n")
	fmt.Fprintf(w, "# TYPE fxesim_frames_total counter\n")
	fmt.Fprintf(w, "fxesim_frames_total %d\n\n", snapshot.TotalFrames)

	fmt.Fprintf(w, "# HELP fxesim_error_frames_total Total number of error report frames\n")
	fmt.Fprintf(w, "# TYPE fxesim_error_frames_total counter\n")
	fmt.Fprintf(w, "fxesim_error_frames_total %d\n\n", snapshot.TotalErrors)

	fmt.Fprintf(w, "# HELP fxesim_frames_per_second Report frames per second\n")
	fmt.Fprintf(w, "# TYPE fxesim_frames_per_second gauge\n")
	fmt.Fprintf(w, "fxesim_frames_per_second %f\n\n", snapshot.FramesPerSec)

	fmt.Fprintf(w, "# HELP fxesim_bytes_total Total frame bytes\n")
	fmt.Fprintf(w, "# TYPE fxesim_bytes_total counter\n")
	fmt.Fprintf(w, "fxesim_bytes_total %d\n\n", snapshot.TotalBytes)

	fmt.Fprintf(w, "# HELP fxesim_reconnects_total Receiver reconnect count\n")
	fmt.Fprintf(w, "# TYPE fxesim_reconnects_total counter\n")
	fmt.Fprintf(w, "fxesim_reconnects_total %d\n\n", snapshot.Reconnects)

	fmt.Fprintf(w, "# HELP fxesim_malformed_frames_total Frames with inconsistent content length\n")
	fmt.Fprintf(w, "# TYPE fxesim_malformed_frames_total counter\n")
	fmt.Fprintf(w, "fxesim_malformed_frames_total %d\n\n", snapshot.MalformedFrames)

	fmt.Fprintf(w, "# HELP fxesim_last_device_ms Last device relative time in milliseconds\n")
	fmt.Fprintf(w, "# TYPE fxesim_last_device_ms gauge\n")
	fmt.Fprintf(w, "fxesim_last_device_ms %d\n\n", snapshot.LastDeviceMs)

	fmt.Fprintf(w, "# HELP fxesim_phase_frames_total Phase report frames received\n")
	fmt.Fprintf(w, "# TYPE fxesim_phase_frames_total counter\n")
	fmt.Fprintf(w, "fxesim_phase_frames_total %d\n\n", snapshot.PhaseFrames)

	fmt.Fprintf(w, "# HELP fxesim_double_frames_total Float64 report frames received\n")
	fmt.Fprintf(w, "# TYPE fxesim_double_frames_total counter\n")
	fmt.Fprintf(w, "fxesim_double_frames_total %d\n\n", snapshot.DoubleFrames)

	fmt.Fprintf(w, "# HELP fxesim_int32_frames_total Int32 report frames received\n")
	fmt.Fprintf(w, "# TYPE fxesim_int32_frames_total counter\n")
	fmt.Fprintf(w, "fxesim_int32_frames_total %d\n\n", snapshot.Int32Frames)

	fmt.Fprintf(w, "# HELP fxesim_message_frames_total Message report frames received\n")
	fmt.Fprintf(w, "# TYPE fxesim_message_frames_total counter\n")
	fmt.Fprintf(w, "fxesim_message_frames_total %d\n", snapshot.MessageFrames)
}

// handleHealth 處理 /health 請求
func (m *MetricsCollector) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// handleReady 處理 /ready 請求
func (m *MetricsCollector) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := false
	if m.engine != nil && m.engine.State() == EngineStateRunning {
		ready = true
	}
	if m.receiver != nil && m.receiver.State() == ReceiverStateRunning {
		ready = true
	}

	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
