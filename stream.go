package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// FrameReader 由位元組串流讀取固定長度的原始報文
type FrameReader struct {
	r   io.Reader
	buf [ReportFrameSize]byte
}

// NewFrameReader 建立報文讀取器
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// Next 讀取下一份完整報文
// 串流在報文邊界結束時返回 io.EOF，中途截斷時返回 io.ErrUnexpectedEOF
func (fr *FrameReader) Next() (*RawReportFrame, error) {
	if _, err := io.ReadFull(fr.r, fr.buf[:]); err != nil {
		return nil, err
	}
	return DecodeRawFrame(fr.buf[:])
}

// DecodeCapture 解碼擷取檔 (連續串接的原始報文) 並逐行輸出
// 返回成功解碼的報文數
func DecodeCapture(r io.Reader, out io.Writer, sep byte, debug bool) (int, error) {
	fr := NewFrameReader(bufio.NewReader(r))
	w := bufio.NewWriter(out)
	defer w.Flush()

	count := 0
	for {
		frame, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return count, fmt.Errorf("擷取檔在第 %d 份報文處截斷", count+1)
		}
		if err != nil {
			return count, err
		}

		report := ParseReport(frame)
		var line string
		var ok bool
		if debug {
			line, ok = report.DebugString(sep)
		} else {
			line, ok = report.LogString(sep)
		}
		if ok {
			fmt.Fprintln(w, line)
		}
		count++
	}
}

// ReceiverState 接收器狀態
type ReceiverState int32

const (
	ReceiverStateStopped ReceiverState = iota
	ReceiverStateConnecting
	ReceiverStateRunning
	ReceiverStateStopping
)

func (s ReceiverState) String() string {
	switch s {
	case ReceiverStateStopped:
		return "stopped"
	case ReceiverStateConnecting:
		return "connecting"
	case ReceiverStateRunning:
		return "running"
	case ReceiverStateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ReceiverStats 接收器統計資訊
type ReceiverStats struct {
	StartTime       time.Time
	FramesReceived  atomic.Uint64
	BytesReceived   atomic.Uint64
	Reconnects      atomic.Uint64
	MalformedFrames atomic.Uint64 // 通道數被強制歸零的測量報文
	UnknownFrames   atomic.Uint64 // 無法識別類型標籤的報文
	LastDeviceMs    atomic.Int64
	kindCounts      [6]atomic.Uint64
}

// KindCount 指定報文類型的累計數
func (s *ReceiverStats) KindCount(k ReportKind) uint64 {
	if int(k) >= len(s.kindCounts) {
		return 0
	}
	return s.kindCounts[k].Load()
}

// Receiver 連接計數器的 TCP 報文串流並解碼輸出
//
// 重連/退避屬於此傳輸層；解碼核心本身永不重試。
type Receiver struct {
	addr   string
	config *Config
	state  atomic.Int32
	stats  ReceiverStats
	logger *zap.Logger
	out    io.Writer
	sep    byte
	debug  bool
}

// ReceiverOption 接收器配置選項
type ReceiverOption func(*Receiver)

// WithReceiverOutput 設定解碼輸出目標
func WithReceiverOutput(w io.Writer) ReceiverOption {
	return func(r *Receiver) {
		r.out = w
	}
}

// WithReceiverLogger 設定日誌
func WithReceiverLogger(logger *zap.Logger) ReceiverOption {
	return func(r *Receiver) {
		r.logger = logger
	}
}

// WithDebugOutput 輸出除錯格式而非紀錄格式
func WithDebugOutput(debug bool) ReceiverOption {
	return func(r *Receiver) {
		r.debug = debug
	}
}

// NewReceiver 建立接收器
func NewReceiver(addr string, config *Config, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		addr:   addr,
		config: config,
		out:    io.Discard,
		sep:    config.Decode.Separator(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger, _ = zap.NewProduction()
	}

	return r
}

// State 取得接收器狀態
func (rc *Receiver) State() ReceiverState {
	return ReceiverState(rc.state.Load())
}

// Stats 取得統計資訊
func (rc *Receiver) Stats() *ReceiverStats {
	return &rc.stats
}

// Run 連接設備並解碼報文流，直到 ctx 取消
// 連線中斷時按配置的延遲重連
func (rc *Receiver) Run(ctx context.Context) error {
	if !rc.state.CompareAndSwap(int32(ReceiverStateStopped), int32(ReceiverStateConnecting)) {
		return fmt.Errorf("接收器已經在運行中")
	}
	defer rc.state.Store(int32(ReceiverStateStopped))

	rc.stats.StartTime = time.Now()
	w := bufio.NewWriter(rc.out)
	defer w.Flush()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		rc.state.Store(int32(ReceiverStateConnecting))
		conn, err := rc.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			rc.logger.Warn("連接設備失敗",
				zap.String("addr", rc.addr),
				zap.Error(err),
			)
			if !rc.waitReconnect(ctx) {
				return nil
			}
			continue
		}

		rc.logger.Info("已連接設備", zap.String("addr", rc.addr))
		rc.state.Store(int32(ReceiverStateRunning))

		err = rc.consume(ctx, conn, w)
		conn.Close()
		w.Flush()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			rc.logger.Warn("報文流中斷",
				zap.String("addr", rc.addr),
				zap.Error(err),
			)
		}

		rc.stats.Reconnects.Add(1)
		if !rc.waitReconnect(ctx) {
			return nil
		}
	}
}

// dial 建立設備連線
func (rc *Receiver) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: rc.config.Device.DialTimeout}
	return d.DialContext(ctx, "tcp", rc.addr)
}

// waitReconnect 等待重連延遲，ctx 取消時返回 false
func (rc *Receiver) waitReconnect(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(rc.config.Device.ReconnectDelay):
		return true
	}
}

// consume 讀取並解碼單一連線上的報文流
func (rc *Receiver) consume(ctx context.Context, conn net.Conn, w *bufio.Writer) error {
	fr := NewFrameReader(conn)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if rc.config.Device.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(rc.config.Device.ReadTimeout))
		}

		frame, err := fr.Next()
		if err != nil {
			return err
		}

		rc.stats.FramesReceived.Add(1)
		rc.stats.BytesReceived.Add(ReportFrameSize)

		report := ParseReport(frame)
		rc.record(&report)
		rc.emit(&report, w)
	}
}

// record 更新報文統計
func (rc *Receiver) record(report *Report) {
	rc.stats.kindCounts[report.Kind].Add(1)

	switch report.Kind {
	case KindNone:
		rc.stats.UnknownFrames.Add(1)
	case KindPhase, KindDouble, KindInt32:
		if report.ChannelCount == 0 && report.ContentLen() > 0 {
			rc.stats.MalformedFrames.Add(1)
		}
	}

	if ms := report.DeviceMs(); ms >= 0 {
		rc.stats.LastDeviceMs.Store(ms)
	}
}

// emit 輸出解碼結果
func (rc *Receiver) emit(report *Report, w *bufio.Writer) {
	if report.Kind == KindError {
		rc.logger.Warn("設備回報錯誤",
			zap.String("code", report.ErrorCode.String()),
			zap.String("message", report.ErrorText()),
		)
	}

	var line string
	var ok bool
	if rc.debug {
		line, ok = report.DebugString(rc.sep)
	} else {
		line, ok = report.LogString(rc.sep)
	}
	if !ok {
		return
	}

	fmt.Fprintln(w, line)
	if rc.stats.FramesReceived.Load()%64 == 0 {
		w.Flush()
	}

	if dbg, ok := report.DebugString(rc.sep); ok {
		rc.logger.Debug("收到報文", zap.String("report", dbg))
	}
}
