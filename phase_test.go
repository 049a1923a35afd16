package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseFromFloat(t *testing.T) {
	tests := []struct {
		input    float64
		wantHigh int64
		wantLow  float64
	}{
		{0, 0, 0},
		{1.25, 1, 0.25},
		{-1.25, -1, -0.25},
		{123456789.5, 123456789, 0.5},
		{0.75, 0, 0.75},
		{-0.75, 0, -0.75},
	}

	for _, tt := range tests {
		p := PhaseFromFloat(tt.input)
		assert.Equal(t, tt.wantHigh, p.High, "input %v", tt.input)
		assert.InDelta(t, tt.wantLow, p.Low, 1e-12, "input %v", tt.input)
	}
}

func TestPhase_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		in       Phase
		wantHigh int64
		wantLow  float64
	}{
		{"already canonical positive", Phase{High: 5, Low: 0.25}, 5, 0.25},
		{"already canonical negative", Phase{High: -5, Low: -0.25}, -5, -0.25},
		{"low overflow", Phase{High: 1, Low: 2.5}, 3, 0.5},
		{"low underflow", Phase{High: 1, Low: -2.5}, -1, -0.5},
		{"positive sum with negative low", Phase{High: 3, Low: -0.25}, 2, 0.75},
		{"negative sum with positive low", Phase{High: -3, Low: 0.25}, -2, -0.75},
		{"exact negative integer low", Phase{High: 1, Low: -1.0}, 0, 0},
		{"zero", Phase{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			p.Normalize()
			assert.Equal(t, tt.wantHigh, p.High)
			assert.InDelta(t, tt.wantLow, p.Low, 1e-12)

			// 合併值不變
			assert.InDelta(t, tt.in.Float(), p.Float(), 1e-9)
		})
	}
}

func TestPhase_Normalize_Idempotent(t *testing.T) {
	inputs := []Phase{
		{High: 1, Low: -1.0},
		{High: -1, Low: 1.0},
		{High: 7, Low: 3.75},
		{High: -7, Low: -3.75},
		{High: 0, Low: -0.5},
		{High: 2, Low: -0.5},
	}

	for _, in := range inputs {
		p := in
		p.Normalize()
		once := p
		p.Normalize()
		assert.Equal(t, once, p, "normalize must be idempotent for %+v", in)
	}
}

func TestPhase_Normalize_CanonicalRange(t *testing.T) {
	inputs := []Phase{
		{High: 10, Low: 5.9},
		{High: -10, Low: -5.9},
		{High: 3, Low: -7.25},
		{High: -3, Low: 7.25},
	}

	for _, in := range inputs {
		p := in
		p.Normalize()
		if p.Float() < 0 {
			assert.Greater(t, p.Low, -1.0)
			assert.LessOrEqual(t, p.Low, 0.0)
		} else {
			assert.GreaterOrEqual(t, p.Low, 0.0)
			assert.Less(t, p.Low, 1.0)
		}
	}
}

func TestPhase_FixedString(t *testing.T) {
	tests := []struct {
		name     string
		p        Phase
		decimals int
		sep      byte
		expected string
	}{
		{
			name:     "simple positive",
			p:        Phase{High: 42, Low: 0.125},
			decimals: 8,
			sep:      '.',
			expected: "               42.12500000",
		},
		{
			name:     "comma separator",
			p:        Phase{High: 42, Low: 0.125},
			decimals: 8,
			sep:      ',',
			expected: "               42,12500000",
		},
		{
			name:     "negative value",
			p:        Phase{High: -42, Low: -0.125},
			decimals: 8,
			sep:      '.',
			expected: "              -42.12500000",
		},
		{
			name:     "zero high with negative low keeps sign",
			p:        Phase{High: 0, Low: -0.25},
			decimals: 8,
			sep:      '.',
			expected: "               -0.25000000",
		},
		{
			name:     "decimals clamped below 7",
			p:        Phase{High: 1, Low: 0.5},
			decimals: 3,
			sep:      '.',
			expected: "                 1.5000000",
		},
		{
			name:     "decimals clamped above 11",
			p:        Phase{High: 1, Low: 0.5},
			decimals: 15,
			sep:      '.',
			expected: "             1.50000000000",
		},
		{
			name:     "large cycle count",
			p:        Phase{High: 1234567890123, Low: 0.5},
			decimals: 11,
			sep:      '.',
			expected: " 1234567890123.50000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.p.FixedString(tt.decimals, tt.sep)
			assert.Equal(t, tt.expected, got)
			assert.Len(t, got, 26)
		})
	}
}

func TestPhase_FixedString_DoesNotMutate(t *testing.T) {
	p := Phase{High: 3, Low: -0.25}
	_ = p.FixedString(8, '.')
	assert.Equal(t, Phase{High: 3, Low: -0.25}, p)
}

func TestDecimalPlacesForFrequency(t *testing.T) {
	tests := []struct {
		hz       float64
		expected int
	}{
		{100e6, 7},
		{32768001, 7},
		{32768000, 8},
		{10e6, 8},
		{4096001, 8},
		{4096000, 9},
		{1e6, 9},
		{512001, 9},
		{512000, 10},
		{100000, 10},
		{32001, 10},
		{32000, 11},
		{5000, 11},
		{0, 11},
		{-10e6, 8}, // 負頻率按絕對值
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, DecimalPlacesForFrequency(tt.hz), "hz=%v", tt.hz)
	}
}
