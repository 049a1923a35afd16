package main

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TransmitterState 發送器狀態
type TransmitterState int32

const (
	TransmitterStateStopped TransmitterState = iota
	TransmitterStateStarting
	TransmitterStateRunning
	TransmitterStateStopping
)

func (s TransmitterState) String() string {
	switch s {
	case TransmitterStateStopped:
		return "stopped"
	case TransmitterStateStarting:
		return "starting"
	case TransmitterStateRunning:
		return "running"
	case TransmitterStateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Transmitter 單一模擬計數器實例
// 在指定位址監聽 TCP 連線，依測量間隔向所有客戶端廣播報文
type Transmitter struct {
	mu sync.RWMutex

	// 基本資訊
	ID   string
	Addr netip.Addr
	Port int

	// 狀態
	state atomic.Int32

	// 報文源
	source *ReportSource

	// TCP
	listener net.Listener
	clients  map[net.Conn]struct{}

	// 統計
	stats TransmitterStats

	// 情境
	profile     ProfileType
	profileCtx  context.Context
	profileStop context.CancelFunc

	// 日誌
	logger *zap.Logger

	// 配置
	config *Config
}

// TransmitterStats 發送器統計資訊
type TransmitterStats struct {
	StartTime      time.Time
	FramesSent     atomic.Uint64
	BytesSent      atomic.Uint64
	ErrorFrames    atomic.Uint64
	ClientCount    atomic.Int64
	LastFrameTime  atomic.Int64
	DroppedClients atomic.Uint64
}

// TransmitterOption 發送器配置選項
type TransmitterOption func(*Transmitter)

// WithSource 設定自訂報文源
func WithSource(src *ReportSource) TransmitterOption {
	return func(t *Transmitter) {
		t.source = src
	}
}

// WithProfile 設定初始情境
func WithProfile(profile ProfileType) TransmitterOption {
	return func(t *Transmitter) {
		t.profile = profile
	}
}

// WithLogger 設定日誌
func WithLogger(logger *zap.Logger) TransmitterOption {
	return func(t *Transmitter) {
		t.logger = logger
	}
}

// NewTransmitter 建立新的發送器
func NewTransmitter(addr netip.Addr, port int, config *Config, opts ...TransmitterOption) *Transmitter {
	sim := config.Simulator
	seed := sim.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	t := &Transmitter{
		ID:      fmt.Sprintf("%s:%d", addr.String(), port),
		Addr:    addr,
		Port:    port,
		clients: make(map[net.Conn]struct{}),
		config:  config,
		profile: ParseProfileType(sim.DefaultProfile),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.source == nil {
		t.source = NewReportSource(sim.Channels, ParseReportMode(sim.Mode), sim.IntervalMs, sim.FrequencyHz, seed)
	}

	if t.logger == nil {
		t.logger, _ = zap.NewProduction()
	}

	return t
}

// Start 啟動發送器
func (t *Transmitter) Start(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(TransmitterStateStopped), int32(TransmitterStateStarting)) {
		return fmt.Errorf("transmitter %s 已經在運行中", t.ID)
	}

	addr := fmt.Sprintf("%s:%d", t.Addr.String(), t.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		t.state.Store(int32(TransmitterStateStopped))
		return fmt.Errorf("監聽 %s 失敗: %w", addr, err)
	}
	t.listener = listener
	t.stats.StartTime = time.Now()

	t.profileCtx, t.profileStop = context.WithCancel(ctx)
	go t.acceptLoop()
	go t.broadcastLoop()

	t.state.Store(int32(TransmitterStateRunning))

	t.logger.Info("發送器已啟動",
		zap.String("id", t.ID),
		zap.String("addr", addr),
		zap.String("profile", t.profile.String()),
	)

	return nil
}

// Stop 停止發送器
func (t *Transmitter) Stop(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(TransmitterStateRunning), int32(TransmitterStateStopping)) {
		return nil // 已經停止
	}

	if t.profileStop != nil {
		t.profileStop()
	}

	if t.listener != nil {
		t.listener.Close()
	}

	t.mu.Lock()
	for conn := range t.clients {
		conn.Close()
	}
	t.clients = make(map[net.Conn]struct{})
	t.mu.Unlock()

	t.state.Store(int32(TransmitterStateStopped))

	t.logger.Info("發送器已停止",
		zap.String("id", t.ID),
		zap.Duration("uptime", time.Since(t.stats.StartTime)),
		zap.Uint64("frames", t.stats.FramesSent.Load()),
	)

	return nil
}

// State 取得當前狀態
func (t *Transmitter) State() TransmitterState {
	return TransmitterState(t.state.Load())
}

// GetStats 取得統計資訊
func (t *Transmitter) GetStats() *TransmitterStats {
	return &t.stats
}

// Source 取得報文源
func (t *Transmitter) Source() *ReportSource {
	return t.source
}

// ApplyProfile 套用情境
func (t *Transmitter) ApplyProfile(profile ProfileType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profile = profile
}

// GetProfile 取得當前情境
func (t *Transmitter) GetProfile() ProfileType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.profile
}

// acceptLoop 接受客戶端連線
func (t *Transmitter) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			// 停止中的 Accept 錯誤屬正常收尾
			if t.State() != TransmitterStateRunning {
				return
			}
			t.logger.Warn("接受連線失敗",
				zap.String("id", t.ID),
				zap.Error(err),
			)
			continue
		}

		t.mu.Lock()
		t.clients[conn] = struct{}{}
		t.mu.Unlock()
		t.stats.ClientCount.Add(1)

		t.logger.Debug("客戶端已連線",
			zap.String("id", t.ID),
			zap.String("remote", conn.RemoteAddr().String()),
		)
	}
}

// broadcastLoop 依測量間隔產生並廣播報文
func (t *Transmitter) broadcastLoop() {
	interval := time.Duration(t.config.Simulator.IntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.profileCtx.Done():
			return
		case <-ticker.C:
			t.emitFrame()
		}
	}
}

// emitFrame 產生下一份報文並送往所有客戶端
func (t *Transmitter) emitFrame() {
	t.mu.RLock()
	profile := t.profile
	t.mu.RUnlock()

	params, ok := t.config.Simulator.Profiles[profile.String()]
	if !ok {
		params = ProfileParams{}
	}

	frame := t.source.Next(profile, params)
	if frame == nil {
		return
	}
	if ReportKind(frame.ReportType) == KindError {
		t.stats.ErrorFrames.Add(1)
	}

	buf := EncodeRawFrame(frame)

	t.mu.Lock()
	for conn := range t.clients {
		if _, err := conn.Write(buf); err != nil {
			conn.Close()
			delete(t.clients, conn)
			t.stats.ClientCount.Add(-1)
			t.stats.DroppedClients.Add(1)
			continue
		}
		t.stats.FramesSent.Add(1)
		t.stats.BytesSent.Add(uint64(len(buf)))
	}
	t.mu.Unlock()

	t.stats.LastFrameTime.Store(time.Now().UnixNano())
}

// ClientCount 目前連線的客戶端數
func (t *Transmitter) ClientCount() int64 {
	return t.stats.ClientCount.Load()
}
