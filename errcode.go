package main

// ErrorCode 設備錯誤狀況的語意分類
type ErrorCode int

const (
	ErrNoError ErrorCode = iota
	ErrGeneric
	ErrWrite
	ErrServerDown
	ErrDeviceNotConnected
	ErrBufferTooSmall
	ErrBufferOverflow
	ErrHardwareFault
	ErrParam
	ErrCmdIgnored
	ErrNotSupported
	ErrReconnected
	ErrLibException
)

func (e ErrorCode) String() string {
	switch e {
	case ErrNoError:
		return "no_error"
	case ErrGeneric:
		return "generic_error"
	case ErrWrite:
		return "write_error"
	case ErrServerDown:
		return "server_down"
	case ErrDeviceNotConnected:
		return "device_not_connected"
	case ErrBufferTooSmall:
		return "buffer_too_small"
	case ErrBufferOverflow:
		return "buffer_overflow"
	case ErrHardwareFault:
		return "hardware_fault"
	case ErrParam:
		return "param_error"
	case ErrCmdIgnored:
		return "cmd_ignored"
	case ErrNotSupported:
		return "not_supported"
	case ErrReconnected:
		return "reconnected"
	case ErrLibException:
		return "lib_exception"
	default:
		return "generic_error"
	}
}

// 設備層數值錯誤碼對照表
//
// 碼 10 (source not found) 歸入參數錯誤；碼 14 (recovered) 與
// 碼 13 同樣歸入重新連線。
var deviceErrorTable = map[uint8]ErrorCode{
	1:  ErrNoError,
	3:  ErrWrite,
	4:  ErrServerDown,
	6:  ErrBufferTooSmall,
	7:  ErrDeviceNotConnected,
	8:  ErrBufferOverflow,
	9:  ErrHardwareFault,
	10: ErrParam,
	11: ErrCmdIgnored,
	12: ErrNotSupported,
	13: ErrReconnected,
	14: ErrReconnected,
	15: ErrLibException,
}

// MapDeviceError 將設備層數值錯誤碼映射為 ErrorCode
// 全域定義: 碼 0 與表外的任何值映射為一般錯誤
func MapDeviceError(code uint8) ErrorCode {
	if ec, ok := deviceErrorTable[code]; ok {
		return ec
	}
	return ErrGeneric
}
