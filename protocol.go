package main

// FXE 報文協議常數
const (
	// 報文固定佈局 (little-endian):
	// ReportType u8 | ErrCode u8 | Header u16 | Len i32 | DeviceMs i64 | Content
	ReportContentSize = 454
	ReportHeaderSize  = 16
	ReportFrameSize   = ReportHeaderSize + ReportContentSize

	// 每通道元素大小 (bytes)
	PhaseElementSize  = 16 // int64 高位 + float64 低位
	DoubleElementSize = 8
	Int32ElementSize  = 4

	// FXE 硬體通道上限
	MaxChannels = 24

	// Phase/Double 報文內容中各通道小數位數表的偏移
	DecimalsOffset = MaxChannels * PhaseElementSize

	// 報頭有效範圍: [0, 0x7000)，其餘為非測量報頭
	HeaderLimit = 0x7000

	// 已知的非測量報頭
	HeaderVersion        = 0x7001 // 韌體版本文字
	HeaderTimestampSec   = 0x7015 // 時間戳 (計整秒)
	HeaderTimestamp100ms = 0x7016 // 時間戳 (計 100ms)

	// 預設 TCP 報文串流埠號
	FXEDefaultPort = 48896
)

// ReportKind 報文類型標籤
type ReportKind uint8

const (
	KindNone ReportKind = iota
	KindError
	KindMessage
	KindPhase
	KindDouble
	KindInt32
)

func (k ReportKind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindError:
		return "Error"
	case KindMessage:
		return "Message"
	case KindPhase:
		return "Phase"
	case KindDouble:
		return "Double"
	case KindInt32:
		return "Int32"
	default:
		return "Unknown"
	}
}

// ElementSize 返回該類型每通道佔用的位元組數，非測量類型為 0
func (k ReportKind) ElementSize() int {
	switch k {
	case KindPhase:
		return PhaseElementSize
	case KindDouble:
		return DoubleElementSize
	case KindInt32:
		return Int32ElementSize
	default:
		return 0
	}
}

// ReportMode FXE 測量模式 (報頭 bits 12-15)
type ReportMode int

const (
	ModePhase ReportMode = iota
	ModePhaseAverage
	ModeFrequency
	ModeFrequencyAverage
	ModePhaseDifference
	ModePhaseAverageDifference

	// ModeUnavailable 非測量報頭或保留值
	ModeUnavailable ReportMode = -1
)

func (m ReportMode) String() string {
	switch m {
	case ModePhase:
		return "phase"
	case ModePhaseAverage:
		return "phase_average"
	case ModeFrequency:
		return "frequency"
	case ModeFrequencyAverage:
		return "frequency_average"
	case ModePhaseDifference:
		return "phase_difference"
	case ModePhaseAverageDifference:
		return "phase_average_difference"
	default:
		return "unavailable"
	}
}

// ParseReportMode 解析測量模式名稱
func ParseReportMode(s string) ReportMode {
	switch s {
	case "phase":
		return ModePhase
	case "phase_average":
		return ModePhaseAverage
	case "frequency":
		return ModeFrequency
	case "frequency_average":
		return ModeFrequencyAverage
	case "phase_difference":
		return ModePhaseDifference
	case "phase_average_difference":
		return ModePhaseAverageDifference
	default:
		return ModeUnavailable
	}
}

// PPIMode 每間隔相位控制模式 (報頭 bits 6-7)
type PPIMode int

const (
	PPIDefault PPIMode = iota
	PPIUserControlled
	ppiReserved // 2 = 設備回報的無效值
	PPIInUse    // 由設備自身或其他使用者控制

	// PPIUnavailable 非測量報頭或無效 PPI 碼
	PPIUnavailable PPIMode = -1
)

func (p PPIMode) String() string {
	switch p {
	case PPIDefault:
		return "default"
	case PPIUserControlled:
		return "user_controlled"
	case PPIInUse:
		return "in_use"
	default:
		return "unavailable"
	}
}

// ScramblerMode 訊號調理模式 (報頭 bits 4-5)
type ScramblerMode int

const (
	ScramblerOff ScramblerMode = iota
	ScramblerAuto
	ScramblerTrim
	ScramblerInUse // 由其他使用者控制

	// ScramblerUnavailable 非測量報頭
	ScramblerUnavailable ScramblerMode = -1
)

func (s ScramblerMode) String() string {
	switch s {
	case ScramblerOff:
		return "off"
	case ScramblerAuto:
		return "auto"
	case ScramblerTrim:
		return "trim"
	case ScramblerInUse:
		return "in_use"
	default:
		return "unavailable"
	}
}

// 測量間隔查找表，以報頭 bits 8-11 為索引 (ms)
var intervalTable = [14]int{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 20000}

// HeaderFields 16 位元報頭解出的各欄位
//
// 報頭位元佈局 (最高位在前): mmmmiiiippss0000
//
//	m: 4 bit 測量模式
//	i: 4 bit 間隔碼
//	p: 2 bit PPI
//	s: 2 bit Scrambler
//	0: 4 bit 保留
type HeaderFields struct {
	Mode       ReportMode
	IntervalMs int // 0 = 間隔碼超出查找表
	PPI        PPIMode
	Scrambler  ScramblerMode
}

// DecodeHeader 解碼 16 位元報頭
// 報頭 >= 0x7000 為非測量報頭，返回 false
func DecodeHeader(raw uint16) (HeaderFields, bool) {
	if raw >= HeaderLimit {
		return HeaderFields{
			Mode:      ModeUnavailable,
			PPI:       PPIUnavailable,
			Scrambler: ScramblerUnavailable,
		}, false
	}

	var f HeaderFields

	mode := int((raw & 0xF000) >> 12)
	if mode > int(ModePhaseAverageDifference) {
		f.Mode = ModeUnavailable
	} else {
		f.Mode = ReportMode(mode)
	}

	code := int((raw & 0x0F00) >> 8)
	if code < len(intervalTable) {
		f.IntervalMs = intervalTable[code]
	}

	ppi := int((raw & 0x00C0) >> 6)
	if ppi == int(ppiReserved) {
		// 碼 2 定義為無效，與三個有效碼區分
		f.PPI = PPIUnavailable
	} else {
		f.PPI = PPIMode(ppi)
	}

	f.Scrambler = ScramblerMode((raw & 0x0030) >> 4)

	return f, true
}

// EncodeHeader 將報頭欄位編回 16 位元報頭 (模擬器與測試使用)
// IntervalMs 必須是查找表中的值，否則間隔碼編為 0xF (超界)
func EncodeHeader(f HeaderFields) uint16 {
	code := 0xF
	for i, ms := range intervalTable {
		if ms == f.IntervalMs {
			code = i
			break
		}
	}

	raw := uint16(f.Mode&0xF) << 12
	raw |= uint16(code&0xF) << 8
	raw |= uint16(f.PPI&0x3) << 6
	raw |= uint16(f.Scrambler&0x3) << 4
	return raw
}

// isTextHeader 判斷 Message 報文內容是否為人類可讀文字
func isTextHeader(header uint16) bool {
	switch header {
	case 0x7001, 0x7022, 0x7030, 0x7902, 0x7F23, 0x7F40:
		return true
	}
	return header >= 0x7FF0
}
