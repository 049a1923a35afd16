package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// DefaultDecimalSeparator 未指定地區設定時的小數分隔符
const DefaultDecimalSeparator = byte('.')

// LogString 報文的緊湊紀錄格式
//
// KindNone 無輸出，返回 false。測量報文以 "%04x; " 報頭開場
// (0x7001 版本報文例外，不加 "; ")，各通道值以 ';' 相接。
// sep 為相位定點格式使用的小數分隔符。
func (r *Report) LogString(sep byte) (string, bool) {
	switch r.Kind {
	case KindNone:
		return "", false

	case KindError:
		return "ERROR " + r.ErrorCode.String() + ": " + r.ErrorText(), true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%04x", r.header)
	if r.header != HeaderVersion {
		sb.WriteString("; ")
	}

	switch r.Kind {
	case KindMessage:
		sb.WriteString(r.logMessage())

	case KindInt32:
		for i, v := range r.Ints {
			if i > 0 {
				sb.WriteByte(';')
			}
			fmt.Fprintf(&sb, "%#x", v)
		}

	case KindDouble:
		for i, v := range r.Doubles {
			if i > 0 {
				sb.WriteByte(';')
			}
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}

	case KindPhase:
		for i := range r.Phases {
			if i > 0 {
				sb.WriteByte(';')
			}
			sb.WriteString(r.Phases[i].FixedString(r.channelDecimals(i), sep))
		}
	}

	return sb.String(), true
}

// logMessage Message 報文在紀錄格式下的文字/整數雙重解讀
//
// 已知文字報頭直接輸出內容；時間戳報頭輸出十進位計數
// (0x7015 計秒，乘 10 換算為 100ms)；2/4 位元組內容視為
// 無號狀態碼以十六進位輸出；其餘內容傾印為十六進位。
func (r *Report) logMessage() string {
	if isTextHeader(r.header) {
		return r.Message()
	}

	switch r.header {
	case HeaderTimestampSec:
		return strconv.FormatInt(int64(r.ContentUint32())*10, 10)
	case HeaderTimestamp100ms:
		return strconv.FormatInt(int64(r.ContentUint32()), 10)
	}

	switch len(r.content) {
	case 2:
		return fmt.Sprintf("0x%04x", r.ContentUint16())
	case 4:
		return fmt.Sprintf("0x%08x", r.ContentUint32())
	}
	return hex.EncodeToString(r.content)
}

// DebugString 報文的除錯格式，帶類型標幟、設備時間與報文長度
//
// 與紀錄格式的差異刻意保留: Message 報文在除錯格式下 2/4 位元組
// 內容優先視為整數，即使報頭屬於文字報頭。
func (r *Report) DebugString(sep byte) (string, bool) {
	switch r.Kind {
	case KindNone:
		return "", false

	case KindError:
		return r.Kind.String() + " " + r.ErrorCode.String() + ": " + r.ErrorText(), true
	}

	var sb strings.Builder
	sb.WriteString(r.Kind.String())
	sb.WriteString(r.DeviceMsString())
	fmt.Fprintf(&sb, " header=0x%04x len=%d ", r.header, len(r.content))

	if r.Kind == KindMessage {
		switch len(r.content) {
		case 2:
			fmt.Fprintf(&sb, "0x%04x", r.ContentUint16())
		case 4:
			fmt.Fprintf(&sb, "0x%08x", r.ContentUint32())
		default:
			if isTextHeader(r.header) {
				sb.WriteString(r.Message())
			} else {
				sb.WriteString(hex.EncodeToString(r.content))
			}
		}
		return sb.String(), true
	}

	sb.WriteByte(' ')
	sb.WriteString(r.measurementString())
	return sb.String(), true
}

// measurementString 測量值的除錯摘要
func (r *Report) measurementString() string {
	var sb strings.Builder

	switch r.Kind {
	case KindPhase:
		sb.WriteString("Phases: ")
		for i := range r.Phases {
			// 除錯輸出用合併浮點值，精度損失可接受
			sb.WriteString(strconv.FormatFloat(r.Phases[i].Float(), 'g', -1, 64))
			sb.WriteByte(';')
		}
	case KindDouble:
		sb.WriteString("Doubles: ")
		for _, v := range r.Doubles {
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			sb.WriteByte(';')
		}
	case KindInt32:
		sb.WriteString("Int32: ")
		for _, v := range r.Ints {
			fmt.Fprintf(&sb, "%#x;", v)
		}
	}

	return sb.String()
}
