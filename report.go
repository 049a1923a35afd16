package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// RawReportFrame 與設備線上佈局一致的原始報文 (little-endian)
//
// 實際有效內容長度由 Len 決定，Content 之後的尾段未定義。
// 設備每次輪詢產生一份，緩衝區會被呼叫端重用，所以解碼必須複製。
type RawReportFrame struct {
	ReportType uint8
	ErrCode    uint8
	Header     uint16
	Len        int32
	DeviceMs   int64 // 設備自開機/重新同步起的毫秒數
	Content    [ReportContentSize]byte
}

// DecodeRawFrame 由位元組切片還原原始報文
func DecodeRawFrame(buf []byte) (*RawReportFrame, error) {
	if len(buf) < ReportFrameSize {
		return nil, fmt.Errorf("報文長度不足: %d (需要 %d)", len(buf), ReportFrameSize)
	}

	f := &RawReportFrame{
		ReportType: buf[0],
		ErrCode:    buf[1],
		Header:     binary.LittleEndian.Uint16(buf[2:4]),
		Len:        int32(binary.LittleEndian.Uint32(buf[4:8])),
		DeviceMs:   int64(binary.LittleEndian.Uint64(buf[8:16])),
	}
	copy(f.Content[:], buf[ReportHeaderSize:ReportFrameSize])
	return f, nil
}

// EncodeRawFrame 將原始報文序列化為線上格式 (模擬器使用)
func EncodeRawFrame(f *RawReportFrame) []byte {
	buf := make([]byte, ReportFrameSize)
	buf[0] = f.ReportType
	buf[1] = f.ErrCode
	binary.LittleEndian.PutUint16(buf[2:4], f.Header)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(f.Len))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(f.DeviceMs))
	copy(buf[ReportHeaderSize:], f.Content[:])
	return buf
}

// Report 解碼後的報文值
//
// 所有派生欄位在 ParseReport 中一次算出，之後不可變，
// 不保留對來源緩衝區的任何引用，可跨 goroutine 安全讀取。
type Report struct {
	Kind ReportKind

	// ErrorCode Kind 為 KindError 時的語意分類，其餘為 ErrNoError
	ErrorCode ErrorCode

	// ChannelCount 測量值通道數；Len 與類型不符時為 0
	ChannelCount int

	// 依 Kind 填入其一
	Phases  []Phase
	Doubles []float64
	Ints    []uint32

	header     uint16
	deviceMs   int64
	content    []byte
	decimals   [MaxChannels]byte
	hasDecimal bool
}

// ParseReport 將原始報文解碼為 Report
//
// 不會 panic 也不返回錯誤: 未知的類型標籤降級為 KindNone，
// 與元素大小不整除的內容長度降級為零通道 (視為無可用測量)。
func ParseReport(frame *RawReportFrame) Report {
	r := Report{Kind: KindNone, ErrorCode: ErrNoError, deviceMs: -1}

	if frame.ReportType > uint8(KindInt32) {
		// 無法識別的標籤，交由呼叫端決定是噪聲還是傳輸故障
		return r
	}
	r.Kind = ReportKind(frame.ReportType)
	if r.Kind == KindNone {
		return r
	}

	r.header = frame.Header
	r.deviceMs = frame.DeviceMs

	// 內容長度防衛: 超出容量或為負時視為無內容
	n := int(frame.Len)
	if n < 0 || n > ReportContentSize {
		n = 0
	}
	r.content = make([]byte, n)
	copy(r.content, frame.Content[:n])

	switch r.Kind {
	case KindError:
		r.ErrorCode = MapDeviceError(frame.ErrCode)

	case KindMessage:
		// 內容保持原樣，文字/整數雙重解讀延後到格式化時按報頭決定

	case KindPhase, KindDouble, KindInt32:
		size := r.Kind.ElementSize()
		count := n / size
		if size*count != n {
			count = 0 // Len 無效，不解出任何通道
		}
		r.ChannelCount = count

		offset := 0
		switch r.Kind {
		case KindPhase:
			r.Phases = make([]Phase, 0, count)
			for i := 0; i < count; i++ {
				high := int64(binary.LittleEndian.Uint64(r.content[offset:]))
				low := math.Float64frombits(binary.LittleEndian.Uint64(r.content[offset+8:]))
				r.Phases = append(r.Phases, Phase{High: high, Low: low})
				offset += PhaseElementSize
			}
		case KindDouble:
			r.Doubles = make([]float64, 0, count)
			for i := 0; i < count; i++ {
				r.Doubles = append(r.Doubles, math.Float64frombits(binary.LittleEndian.Uint64(r.content[offset:])))
				offset += DoubleElementSize
			}
		case KindInt32:
			r.Ints = make([]uint32, 0, count)
			for i := 0; i < count; i++ {
				r.Ints = append(r.Ints, binary.LittleEndian.Uint32(r.content[offset:]))
				offset += Int32ElementSize
			}
		}

		// FXE 測量報文在內容固定偏移處帶各通道的小數位數表
		if r.Kind == KindPhase || r.Kind == KindDouble {
			copy(r.decimals[:], frame.Content[DecimalsOffset:DecimalsOffset+MaxChannels])
			r.hasDecimal = true
		}
	}

	return r
}

// ContentLen 解碼後保留的內容位元組數
func (r *Report) ContentLen() int {
	return len(r.content)
}

// Header 返回報頭，KindNone 與 KindError 時為 -1
func (r *Report) Header() int {
	if r.Kind == KindNone || r.Kind == KindError {
		return -1
	}
	return int(r.header)
}

// DeviceMs 設備相對時間 (ms)，KindNone 時為 -1
func (r *Report) DeviceMs() int64 {
	if r.Kind == KindNone {
		return -1
	}
	return r.deviceMs
}

// DeviceMsString 設備時間的日誌片段，不可用時為空字串
func (r *Report) DeviceMsString() string {
	ms := r.DeviceMs()
	if ms == -1 {
		return ""
	}
	return " ms=" + strconv.FormatInt(ms, 10)
}

// Message Message 報文的文字內容，其餘類型為空字串
func (r *Report) Message() string {
	if r.Kind != KindMessage {
		return ""
	}
	return string(r.content)
}

// ErrorText Error 報文附帶的文字訊息
func (r *Report) ErrorText() string {
	if r.Kind != KindError {
		return ""
	}
	return string(r.content)
}

// ContentUint16 內容前 2 位元組作為無號整數 (little-endian)
// 內容不足 2 位元組時返回 0xFFFF
func (r *Report) ContentUint16() uint16 {
	if len(r.content) < 2 {
		return 0xFFFF
	}
	return binary.LittleEndian.Uint16(r.content[:2])
}

// ContentUint32 內容前 4 位元組作為無號整數 (little-endian)
// 內容不足 4 位元組時返回 0xFFFFFFFF
func (r *Report) ContentUint32() uint32 {
	if len(r.content) < 4 {
		return 0xFFFFFFFF
	}
	return binary.LittleEndian.Uint32(r.content[:4])
}

// IsTimestamp 是否為時間戳報文 (報頭 0x7015/0x7016)
func (r *Report) IsTimestamp() bool {
	return r.Kind != KindNone &&
		(r.header == HeaderTimestampSec || r.header == HeaderTimestamp100ms)
}

// Timestamp 時間戳值 (100ms 計數)，非時間戳報文時為 -1
// 報頭 0x7015 計整秒，需乘 10 換算為 100ms 單位
func (r *Report) Timestamp() int64 {
	if !r.IsTimestamp() {
		return -1
	}
	t := int64(r.ContentUint32())
	if r.header == HeaderTimestampSec {
		t *= 10
	}
	return t
}

// Decimals 各通道的相位小數位數表 (僅 Phase/Double 報文)
func (r *Report) Decimals() []byte {
	if !r.hasDecimal {
		return nil
	}
	out := make([]byte, MaxChannels)
	copy(out, r.decimals[:])
	return out
}

// channelDecimals 指定通道的小數位數，無表時退回頻率推算的預設值
func (r *Report) channelDecimals(i int) int {
	if r.hasDecimal && i < MaxChannels {
		return int(r.decimals[i])
	}
	return 11
}
