package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// ProfileType 模擬情境類型
type ProfileType int

const (
	ProfileSteady ProfileType = iota
	ProfileDrift
	ProfileGlitch
	ProfileChatter
)

func (p ProfileType) String() string {
	switch p {
	case ProfileSteady:
		return "steady"
	case ProfileDrift:
		return "drift"
	case ProfileGlitch:
		return "glitch"
	case ProfileChatter:
		return "chatter"
	default:
		return "unknown"
	}
}

// ParseProfileType 解析情境名稱
func ParseProfileType(s string) ProfileType {
	switch s {
	case "steady":
		return ProfileSteady
	case "drift":
		return ProfileDrift
	case "glitch":
		return ProfileGlitch
	case "chatter":
		return ProfileChatter
	default:
		return ProfileSteady
	}
}

// ProfileParams 情境參數
type ProfileParams struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// NoisePPB 每次測量疊加的相位雜訊 (十億分率)
	NoisePPB float64 `json:"noise_ppb" mapstructure:"noise_ppb"`

	// DriftPPBPerTick 頻率老化速率 (每測量間隔的十億分率)
	DriftPPBPerTick float64 `json:"drift_ppb_per_tick" mapstructure:"drift_ppb_per_tick"`

	// ErrorRate 注入錯誤報文的機率
	ErrorRate float64 `json:"error_rate" mapstructure:"error_rate"`

	// MalformedRate 注入長度不整除報文的機率
	MalformedRate float64 `json:"malformed_rate" mapstructure:"malformed_rate"`

	// MessageEvery 每 N 份測量報文夾帶一份時間戳/心跳報文
	MessageEvery int `json:"message_every" mapstructure:"message_every"`
}

// ProfileHandler 情境處理介面: 為報文源產生下一份報文
type ProfileHandler interface {
	Type() ProfileType
	Next(src *ReportSource, params ProfileParams) *RawReportFrame
}

// 情境處理器註冊表
var (
	profileHandlers   = make(map[ProfileType]ProfileHandler)
	profileHandlersMu sync.RWMutex
)

func init() {
	RegisterProfileHandler(&SteadyProfile{})
	RegisterProfileHandler(&DriftProfile{})
	RegisterProfileHandler(&GlitchProfile{})
	RegisterProfileHandler(&ChatterProfile{})
}

// RegisterProfileHandler 註冊情境處理器
func RegisterProfileHandler(handler ProfileHandler) {
	profileHandlersMu.Lock()
	defer profileHandlersMu.Unlock()
	profileHandlers[handler.Type()] = handler
}

// GetProfileHandler 取得情境處理器
func GetProfileHandler(profileType ProfileType) ProfileHandler {
	profileHandlersMu.RLock()
	defer profileHandlersMu.RUnlock()
	return profileHandlers[profileType]
}

// ListProfileTypes 列出所有情境類型
func ListProfileTypes() []ProfileType {
	return []ProfileType{
		ProfileSteady,
		ProfileDrift,
		ProfileGlitch,
		ProfileChatter,
	}
}

// ReportSource 單一模擬計數器的測量狀態與報文產生器
type ReportSource struct {
	mu sync.Mutex

	channels   int
	mode       ReportMode
	intervalMs int
	frequency  float64 // 標稱頻率 (Hz)

	// 累積狀態
	phases    []Phase   // 各通道累積相位 (週期)
	measured  []float64 // 各通道最近一次的瞬時頻率
	driftPPB  float64   // 累積頻率偏移
	deviceMs  int64
	tickCount uint64

	rng *rand.Rand
}

// NewReportSource 建立報文源
func NewReportSource(channels int, mode ReportMode, intervalMs int, frequency float64, seed int64) *ReportSource {
	if channels < 1 {
		channels = 1
	} else if channels > MaxChannels {
		channels = MaxChannels
	}

	return &ReportSource{
		channels:   channels,
		mode:       mode,
		intervalMs: intervalMs,
		frequency:  frequency,
		phases:     make([]Phase, channels),
		measured:   make([]float64, channels),
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// header 組出當前測量狀態的報頭
func (s *ReportSource) header() uint16 {
	return EncodeHeader(HeaderFields{
		Mode:       s.mode,
		IntervalMs: s.intervalMs,
		PPI:        PPIDefault,
		Scrambler:  ScramblerOff,
	})
}

// advance 推進一個測量間隔
// 各通道相位增加 frequency*dt，疊加雜訊與累積偏移
func (s *ReportSource) advance(noisePPB float64) {
	dt := float64(s.intervalMs) / 1000.0
	scale := 1.0 + s.driftPPB*1e-9

	for i := range s.phases {
		noise := (s.rng.Float64()*2 - 1) * noisePPB * 1e-9
		freq := s.frequency * (scale + noise)
		s.measured[i] = freq

		inc := PhaseFromFloat(freq * dt)
		s.phases[i].High += inc.High
		s.phases[i].Low += inc.Low
		s.phases[i].Normalize()
	}

	s.deviceMs += int64(s.intervalMs)
	s.tickCount++
}

// measurementFrame 依測量模式產生相位或頻率報文
func (s *ReportSource) measurementFrame() *RawReportFrame {
	switch s.mode {
	case ModeFrequency, ModeFrequencyAverage:
		return s.doubleFrame(s.measured)
	default:
		return s.phaseFrame()
	}
}

// phaseFrame 產生相位報文，附各通道的小數位數表
func (s *ReportSource) phaseFrame() *RawReportFrame {
	f := &RawReportFrame{
		ReportType: uint8(KindPhase),
		ErrCode:    1, // 設備碼 1 = 無錯誤
		Header:     s.header(),
		Len:        int32(s.channels * PhaseElementSize),
		DeviceMs:   s.deviceMs,
	}

	decimals := byte(DecimalPlacesForFrequency(s.frequency))
	offset := 0
	for i := 0; i < s.channels; i++ {
		binary.LittleEndian.PutUint64(f.Content[offset:], uint64(s.phases[i].High))
		binary.LittleEndian.PutUint64(f.Content[offset+8:], math.Float64bits(s.phases[i].Low))
		offset += PhaseElementSize
		f.Content[DecimalsOffset+i] = decimals
	}

	return f
}

// doubleFrame 產生 float64 測量報文 (頻率模式)
func (s *ReportSource) doubleFrame(values []float64) *RawReportFrame {
	f := &RawReportFrame{
		ReportType: uint8(KindDouble),
		ErrCode:    1,
		Header:     s.header(),
		Len:        int32(len(values) * DoubleElementSize),
		DeviceMs:   s.deviceMs,
	}

	decimals := byte(DecimalPlacesForFrequency(s.frequency))
	offset := 0
	for i, v := range values {
		binary.LittleEndian.PutUint64(f.Content[offset:], math.Float64bits(v))
		offset += DoubleElementSize
		f.Content[DecimalsOffset+i] = decimals
	}

	return f
}

// heartbeatFrame 產生 int32 心跳報文
func (s *ReportSource) heartbeatFrame() *RawReportFrame {
	f := &RawReportFrame{
		ReportType: uint8(KindInt32),
		ErrCode:    1,
		Header:     s.header(),
		Len:        int32(s.channels * Int32ElementSize),
		DeviceMs:   s.deviceMs,
	}

	for i := 0; i < s.channels; i++ {
		binary.LittleEndian.PutUint32(f.Content[i*Int32ElementSize:], uint32(s.tickCount))
	}

	return f
}

// timestampFrame 產生 0x7016 時間戳報文 (100ms 計數)
func (s *ReportSource) timestampFrame() *RawReportFrame {
	f := &RawReportFrame{
		ReportType: uint8(KindMessage),
		ErrCode:    1,
		Header:     HeaderTimestamp100ms,
		Len:        4,
		DeviceMs:   s.deviceMs,
	}
	binary.LittleEndian.PutUint32(f.Content[:4], uint32(s.deviceMs/100))
	return f
}

// errorFrame 產生錯誤報文
func (s *ReportSource) errorFrame(deviceCode uint8, msg string) *RawReportFrame {
	f := &RawReportFrame{
		ReportType: uint8(KindError),
		ErrCode:    deviceCode,
		DeviceMs:   s.deviceMs,
		Len:        int32(len(msg)),
	}
	copy(f.Content[:], msg)
	return f
}

// Next 依情境產生下一份報文
func (s *ReportSource) Next(profile ProfileType, params ProfileParams) *RawReportFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	handler := GetProfileHandler(profile)
	if handler == nil {
		handler = GetProfileHandler(ProfileSteady)
	}
	return handler.Next(s, params)
}

// DeviceMs 目前的設備相對時間
func (s *ReportSource) DeviceMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceMs
}

// --- Steady Profile ---

// SteadyProfile 穩定測量情境 - 僅微小相位雜訊
type SteadyProfile struct{}

func (p *SteadyProfile) Type() ProfileType {
	return ProfileSteady
}

func (p *SteadyProfile) Next(s *ReportSource, params ProfileParams) *RawReportFrame {
	noise := params.NoisePPB
	if noise == 0 {
		noise = 0.5
	}
	s.advance(noise)
	return s.measurementFrame()
}

// --- Drift Profile ---

// DriftProfile 頻率老化情境 - 偏移隨時間累積
type DriftProfile struct{}

func (p *DriftProfile) Type() ProfileType {
	return ProfileDrift
}

func (p *DriftProfile) Next(s *ReportSource, params ProfileParams) *RawReportFrame {
	rate := params.DriftPPBPerTick
	if rate == 0 {
		rate = 0.1
	}
	s.driftPPB += rate

	noise := params.NoisePPB
	if noise == 0 {
		noise = 0.5
	}
	s.advance(noise)
	return s.measurementFrame()
}

// --- Glitch Profile ---

// GlitchProfile 故障情境 - 偶發錯誤報文與畸形長度報文
type GlitchProfile struct{}

func (p *GlitchProfile) Type() ProfileType {
	return ProfileGlitch
}

func (p *GlitchProfile) Next(s *ReportSource, params ProfileParams) *RawReportFrame {
	errorRate := params.ErrorRate
	if errorRate == 0 {
		errorRate = 0.02
	}
	malformedRate := params.MalformedRate
	if malformedRate == 0 {
		malformedRate = 0.01
	}

	roll := s.rng.Float64()
	switch {
	case roll < errorRate/2:
		return s.errorFrame(8, fmt.Sprintf("buffer overflow at %d ms", s.deviceMs))
	case roll < errorRate:
		return s.errorFrame(9, "measurement hardware fault")
	case roll < errorRate+malformedRate:
		// 長度與元素大小不整除，接收端應降級為零通道
		s.advance(0.5)
		f := s.measurementFrame()
		f.Len--
		return f
	}

	s.advance(params.NoisePPB)
	return s.measurementFrame()
}

// --- Chatter Profile ---

// ChatterProfile 訊息情境 - 定期夾帶時間戳與心跳報文
type ChatterProfile struct{}

func (p *ChatterProfile) Type() ProfileType {
	return ProfileChatter
}

func (p *ChatterProfile) Next(s *ReportSource, params ProfileParams) *RawReportFrame {
	every := params.MessageEvery
	if every <= 0 {
		every = 10
	}

	s.advance(params.NoisePPB)

	if s.tickCount%uint64(every*2) == 0 {
		return s.timestampFrame()
	}
	if s.tickCount%uint64(every) == 0 {
		return s.heartbeatFrame()
	}
	return s.measurementFrame()
}
