package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapDeviceError(t *testing.T) {
	tests := []struct {
		code     uint8
		expected ErrorCode
	}{
		{1, ErrNoError},
		{3, ErrWrite},
		{4, ErrServerDown},
		{6, ErrBufferTooSmall},
		{7, ErrDeviceNotConnected},
		{8, ErrBufferOverflow},
		{9, ErrHardwareFault},
		{10, ErrParam},
		{11, ErrCmdIgnored},
		{12, ErrNotSupported},
		{13, ErrReconnected},
		{14, ErrReconnected},
		{15, ErrLibException},
		// 表外的值一律歸入一般錯誤
		{0, ErrGeneric},
		{2, ErrGeneric},
		{5, ErrGeneric},
		{16, ErrGeneric},
		{99, ErrGeneric},
		{255, ErrGeneric},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, MapDeviceError(tt.code), "device code %d", tt.code)
	}
}

func TestMapDeviceError_Total(t *testing.T) {
	// 任何 8 位元碼都必須得到一個有名字的分類
	for code := 0; code <= 255; code++ {
		ec := MapDeviceError(uint8(code))
		assert.NotEqual(t, "", ec.String())
	}
}

func TestErrorCode_String(t *testing.T) {
	tests := []struct {
		ec       ErrorCode
		expected string
	}{
		{ErrNoError, "no_error"},
		{ErrGeneric, "generic_error"},
		{ErrBufferOverflow, "buffer_overflow"},
		{ErrHardwareFault, "hardware_fault"},
		{ErrReconnected, "reconnected"},
		{ErrLibException, "lib_exception"},
		{ErrorCode(999), "generic_error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.ec.String())
	}
}
