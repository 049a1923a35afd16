package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Phase FXE 相位值的高低位分離表示
//
// 相位是一個持續遞增且無上界的量 (訊號週期計數)。單一 float64 在
// 週期數變大後會丟失整數解析度，因此整數部分與小數部分分開儲存:
// High 為整數週期數，Low 為小數部分。High + Low 即為實際值。
type Phase struct {
	High int64   // 整數部分，單位 1 週期
	Low  float64 // 小數部分，正規化後落在對應符號的半開區間
}

// PhaseFromFloat 由 float64 建立 Phase
func PhaseFromFloat(v float64) Phase {
	high := int64(math.Trunc(v))
	return Phase{High: high, Low: v - float64(high)}
}

// Normalize 將 Low 的整數部分移入 High
//
// 正規化後 Low 落在由 High+Low 的符號決定的標準區間:
// 合併值為負時 -1 < Low <= 0，否則 0 <= Low < 1。冪等操作。
func (p *Phase) Normalize() {
	// 先搬移整數部分，使 -1 < Low < 1
	t := int64(math.Trunc(p.Low))
	p.High += t
	p.Low -= float64(t)

	// 依合併值的符號 (而非 High 單獨的符號) 調整至標準分支
	sum := float64(p.High) + p.Low
	if sum < 0 && p.Low > 0 {
		p.High++
		p.Low--
	} else if sum >= 0 && p.Low < 0 {
		p.High--
		p.Low++
	}
}

// Float 合併為 float64，High 很大時會丟失精度
func (p Phase) Float() float64 {
	return float64(p.High) + p.Low
}

// FixedString 格式化為固定 26 字元的定點字串
//
// decimals 限制在 [7,11]；sep 為小數分隔符 (由呼叫端按地區習慣傳入，
// 不依賴行程全域 locale)。整數部分靠右對齊填滿剩餘寬度。
// High == 0 且 Low < 0 時，負號移入整數欄位 (裸 "0" 沒有帶負號的位置)。
func (p Phase) FixedString(decimals int, sep byte) string {
	if decimals < 7 {
		decimals = 7
	} else if decimals > 11 {
		decimals = 11
	}

	p.Normalize()

	// 小數部分: 取 '.' 之後的數位，符號由整數欄位承載
	lowStr := strconv.FormatFloat(p.Low, 'f', decimals, 64)
	dot := strings.IndexByte(lowStr, '.')
	frac := lowStr[dot+1:]

	// 整數部分: 25-decimals 寬度，使總長恰為 26
	result := fmt.Sprintf("%*d", 25-decimals, p.High) + string(sep) + frac

	if p.High == 0 && p.Low < 0 {
		b := []byte(result)
		b[23-decimals] = '-'
		result = string(b)
	}

	if len(result) > 26 {
		result = result[:26]
	}
	return result
}

// DecimalPlacesForFrequency 按測量頻率選擇相位小數位數
//
// 頻率越高，可解析的相位小數位數越少。
func DecimalPlacesForFrequency(hz float64) int {
	hz = math.Abs(hz)
	switch {
	case hz > 32768000.0: // 32.768 MHz
		return 7
	case hz > 4096000.0: // 4.096 MHz
		return 8
	case hz > 512000.0: // 512 kHz
		return 9
	case hz > 32000.0: // 32 kHz
		return 10
	default:
		return 11
	}
}
