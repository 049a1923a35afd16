package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportKind_ElementSize(t *testing.T) {
	assert.Equal(t, 16, KindPhase.ElementSize())
	assert.Equal(t, 8, KindDouble.ElementSize())
	assert.Equal(t, 4, KindInt32.ElementSize())
	assert.Equal(t, 0, KindNone.ElementSize())
	assert.Equal(t, 0, KindError.ElementSize())
	assert.Equal(t, 0, KindMessage.ElementSize())
}

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name     string
		raw      uint16
		wantOK   bool
		expected HeaderFields
	}{
		{
			name:   "phase mode 1ms default",
			raw:    0x0000,
			wantOK: true,
			expected: HeaderFields{
				Mode:       ModePhase,
				IntervalMs: 1,
				PPI:        PPIDefault,
				Scrambler:  ScramblerOff,
			},
		},
		{
			name:   "frequency mode 20ms user ppi",
			raw:    0x3245, // mode 3, interval code 2, ppi 01, scrambler 00
			wantOK: true,
			expected: HeaderFields{
				Mode:       ModeFrequencyAverage,
				IntervalMs: 5,
				PPI:        PPIUserControlled,
				Scrambler:  ScramblerOff,
			},
		},
		{
			name:   "scrambler auto",
			raw:    0x0010,
			wantOK: true,
			expected: HeaderFields{
				Mode:       ModePhase,
				IntervalMs: 1,
				PPI:        PPIDefault,
				Scrambler:  ScramblerAuto,
			},
		},
		{
			name:   "ppi in use",
			raw:    0x00C0,
			wantOK: true,
			expected: HeaderFields{
				Mode:       ModePhase,
				IntervalMs: 1,
				PPI:        PPIInUse,
				Scrambler:  ScramblerOff,
			},
		},
		{
			name:   "ppi reserved code maps to unavailable",
			raw:    0x0080,
			wantOK: true,
			expected: HeaderFields{
				Mode:       ModePhase,
				IntervalMs: 1,
				PPI:        PPIUnavailable,
				Scrambler:  ScramblerOff,
			},
		},
		{
			name:   "mode above defined range",
			raw:    0x6000, // mode 6 is reserved
			wantOK: true,
			expected: HeaderFields{
				Mode:       ModeUnavailable,
				IntervalMs: 1,
				PPI:        PPIDefault,
				Scrambler:  ScramblerOff,
			},
		},
		{
			name:   "interval code out of table",
			raw:    0x0E00, // code 14
			wantOK: true,
			expected: HeaderFields{
				Mode:       ModePhase,
				IntervalMs: 0,
				PPI:        PPIDefault,
				Scrambler:  ScramblerOff,
			},
		},
		{
			name:   "header at limit",
			raw:    0x7000,
			wantOK: false,
			expected: HeaderFields{
				Mode:      ModeUnavailable,
				PPI:       PPIUnavailable,
				Scrambler: ScramblerUnavailable,
			},
		},
		{
			name:   "version header",
			raw:    HeaderVersion,
			wantOK: false,
			expected: HeaderFields{
				Mode:      ModeUnavailable,
				PPI:       PPIUnavailable,
				Scrambler: ScramblerUnavailable,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, ok := DecodeHeader(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.expected, fields)
		})
	}
}

func TestDecodeHeader_IntervalTable(t *testing.T) {
	expected := []int{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 20000}
	for code, ms := range expected {
		fields, ok := DecodeHeader(uint16(code) << 8)
		require.True(t, ok)
		assert.Equal(t, ms, fields.IntervalMs, "interval code %d", code)
	}
}

func TestEncodeHeader_Roundtrip(t *testing.T) {
	cases := []HeaderFields{
		{Mode: ModePhase, IntervalMs: 1, PPI: PPIDefault, Scrambler: ScramblerOff},
		{Mode: ModeFrequency, IntervalMs: 1000, PPI: PPIUserControlled, Scrambler: ScramblerAuto},
		{Mode: ModePhaseAverageDifference, IntervalMs: 20000, PPI: PPIInUse, Scrambler: ScramblerTrim},
		{Mode: ModePhaseAverage, IntervalMs: 100, PPI: PPIDefault, Scrambler: ScramblerInUse},
	}

	for _, f := range cases {
		raw := EncodeHeader(f)
		require.Less(t, raw, uint16(HeaderLimit))

		decoded, ok := DecodeHeader(raw)
		require.True(t, ok)
		assert.Equal(t, f, decoded)
	}
}

func TestEncodeHeader_UnknownInterval(t *testing.T) {
	raw := EncodeHeader(HeaderFields{Mode: ModePhase, IntervalMs: 123})
	fields, ok := DecodeHeader(raw)
	require.True(t, ok)
	assert.Equal(t, 0, fields.IntervalMs, "unknown interval encodes out-of-table code")
}

func TestParseReportMode(t *testing.T) {
	for m := ModePhase; m <= ModePhaseAverageDifference; m++ {
		assert.Equal(t, m, ParseReportMode(m.String()))
	}
	assert.Equal(t, ModeUnavailable, ParseReportMode("bogus"))
}

func TestIsTextHeader(t *testing.T) {
	textHeaders := []uint16{0x7001, 0x7022, 0x7030, 0x7902, 0x7F23, 0x7F40, 0x7FF0, 0x7FFF, 0xFFFF}
	for _, h := range textHeaders {
		assert.True(t, isTextHeader(h), "0x%04x", h)
	}

	nonText := []uint16{0x0000, 0x1234, 0x7000, 0x7015, 0x7016, 0x7FEF}
	for _, h := range nonText {
		assert.False(t, isTextHeader(h), "0x%04x", h)
	}
}
