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

// EngineState 引擎狀態
type EngineState int32

const (
	EngineStateStopped EngineState = iota
	EngineStateStarting
	EngineStateRunning
	EngineStateStopping
)

func (s EngineState) String() string {
	switch s {
	case EngineStateStopped:
		return "stopped"
	case EngineStateStarting:
		return "starting"
	case EngineStateRunning:
		return "running"
	case EngineStateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// bindPoint 發送器的綁定位址與埠
type bindPoint struct {
	addr netip.Addr
	port int
}

// Engine 模擬計數器引擎，管理一整批發送器
type Engine struct {
	mu sync.RWMutex

	// 配置
	config *Config

	// 狀態
	state atomic.Int32

	// 發送器
	transmitters map[string]*Transmitter

	// 統計
	stats EngineStats

	// 情境
	currentProfile ProfileType

	// 日誌
	logger *zap.Logger
}

// EngineStats 引擎統計資訊
type EngineStats struct {
	StartTime          time.Time
	TransmitterCount   int
	ActiveTransmitters int
	TotalFrames        uint64
	TotalErrorFrames   uint64
	TotalBytes         uint64
	TotalClients       int64
}

// NewEngine 建立新的引擎
func NewEngine(config *Config, logger *zap.Logger) *Engine {
	return &Engine{
		config:         config,
		transmitters:   make(map[string]*Transmitter),
		currentProfile: ParseProfileType(config.Simulator.DefaultProfile),
		logger:         logger,
	}
}

// Start 啟動引擎
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(EngineStateStopped), int32(EngineStateStarting)) {
		return fmt.Errorf("引擎已經在運行中")
	}

	e.stats.StartTime = time.Now()
	e.logger.Info("正在啟動引擎",
		zap.Int("transmitter_count", e.config.Simulator.Count),
		zap.Int("port", e.config.Simulator.Port),
		zap.String("profile", e.currentProfile.String()),
	)

	// 取得要綁定的位址列表
	binds, err := e.getBindPoints()
	if err != nil {
		e.state.Store(int32(EngineStateStopped))
		return fmt.Errorf("取得綁定位址失敗: %w", err)
	}

	// 建立並啟動發送器
	var wg sync.WaitGroup
	errChan := make(chan error, len(binds))
	semaphore := make(chan struct{}, 100) // 限制並發啟動數量

	for _, bind := range binds {
		wg.Add(1)
		go func(bind bindPoint) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			tx := NewTransmitter(
				bind.addr,
				bind.port,
				e.config,
				WithProfile(e.currentProfile),
				WithLogger(e.logger.With(zap.String("transmitter_id", fmt.Sprintf("%s:%d", bind.addr.String(), bind.port)))),
			)

			if err := tx.Start(ctx); err != nil {
				errChan <- fmt.Errorf("啟動發送器 %s 失敗: %w", tx.ID, err)
				return
			}

			e.mu.Lock()
			e.transmitters[tx.ID] = tx
			e.mu.Unlock()
		}(bind)
	}

	// 等待所有發送器啟動
	wg.Wait()
	close(errChan)

	// 收集錯誤
	var errors []error
	for err := range errChan {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		e.logger.Warn("部分發送器啟動失敗",
			zap.Int("failed", len(errors)),
			zap.Int("success", len(e.transmitters)),
		)
		// 如果全部失敗，返回錯誤
		if len(e.transmitters) == 0 {
			e.state.Store(int32(EngineStateStopped))
			return fmt.Errorf("所有發送器啟動失敗: %v", errors[0])
		}
	}

	e.stats.TransmitterCount = len(e.transmitters)
	e.stats.ActiveTransmitters = len(e.transmitters)
	e.state.Store(int32(EngineStateRunning))

	e.logger.Info("引擎啟動完成",
		zap.Int("active_transmitters", e.stats.ActiveTransmitters),
		zap.Duration("startup_time", time.Since(e.stats.StartTime)),
	)

	return nil
}

// Stop 停止引擎
func (e *Engine) Stop(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(EngineStateRunning), int32(EngineStateStopping)) {
		return nil
	}

	e.logger.Info("正在停止引擎", zap.Int("transmitter_count", len(e.transmitters)))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 100)

	e.mu.RLock()
	txs := make([]*Transmitter, 0, len(e.transmitters))
	for _, tx := range e.transmitters {
		txs = append(txs, tx)
	}
	e.mu.RUnlock()

	for _, tx := range txs {
		wg.Add(1)
		go func(t *Transmitter) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := t.Stop(ctx); err != nil {
				e.logger.Warn("停止發送器失敗",
					zap.String("id", t.ID),
					zap.Error(err),
				)
			}
		}(tx)
	}

	// 等待所有發送器停止或超時
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("停止引擎超時")
	}

	e.mu.Lock()
	e.transmitters = make(map[string]*Transmitter)
	e.mu.Unlock()

	e.state.Store(int32(EngineStateStopped))
	e.logger.Info("引擎已停止")

	return nil
}

// GetTransmitter 取得指定 ID 的發送器
func (e *Engine) GetTransmitter(id string) (*Transmitter, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tx, ok := e.transmitters[id]
	return tx, ok
}

// ListTransmitters 列出所有發送器
func (e *Engine) ListTransmitters() []*Transmitter {
	e.mu.RLock()
	defer e.mu.RUnlock()

	txs := make([]*Transmitter, 0, len(e.transmitters))
	for _, tx := range e.transmitters {
		txs = append(txs, tx)
	}
	return txs
}

// State 取得引擎狀態
func (e *Engine) State() EngineState {
	return EngineState(e.state.Load())
}

// Stats 取得統計資訊
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := e.stats

	// 彙整所有發送器的統計
	for _, tx := range e.transmitters {
		txStats := tx.GetStats()
		stats.TotalFrames += txStats.FramesSent.Load()
		stats.TotalErrorFrames += txStats.ErrorFrames.Load()
		stats.TotalBytes += txStats.BytesSent.Load()
		stats.TotalClients += txStats.ClientCount.Load()
	}

	return stats
}

// ApplyProfile 套用情境到所有發送器
func (e *Engine) ApplyProfile(profile ProfileType) error {
	e.mu.Lock()
	e.currentProfile = profile
	e.mu.Unlock()

	e.logger.Info("套用情境", zap.String("profile", profile.String()))

	for _, tx := range e.ListTransmitters() {
		tx.ApplyProfile(profile)
	}

	return nil
}

// GetProfile 取得當前情境
func (e *Engine) GetProfile() ProfileType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentProfile
}

// getBindPoints 取得要綁定的位址列表
// 有 IP 範圍時一個位址一台發送器，否則在本機以遞增埠號排布
func (e *Engine) getBindPoints() ([]bindPoint, error) {
	count := e.config.Simulator.Count
	port := e.config.Simulator.Port

	if len(e.config.Network.IPRanges) > 0 {
		addrs, err := e.config.ExpandIPRanges()
		if err != nil {
			return nil, err
		}
		if len(addrs) < count {
			return nil, fmt.Errorf("IP 範圍僅含 %d 個位址，不足 %d 台發送器", len(addrs), count)
		}

		binds := make([]bindPoint, 0, count)
		for _, addr := range addrs[:count] {
			binds = append(binds, bindPoint{addr: addr, port: port})
		}
		return binds, nil
	}

	local, err := localBindAddr()
	if err != nil {
		return nil, err
	}

	binds := make([]bindPoint, 0, count)
	for i := 0; i < count; i++ {
		binds = append(binds, bindPoint{addr: local, port: port + i})
	}
	return binds, nil
}

// localBindAddr 取得本機綁定位址，沒有非迴路 IPv4 時退回 127.0.0.1
func localBindAddr() (netip.Addr, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return netip.Addr{}, err
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			if a, ok := netip.AddrFromSlice(ip4); ok {
				return a, nil
			}
		}
	}

	return netip.MustParseAddr("127.0.0.1"), nil
}
