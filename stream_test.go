package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureFixture(t *testing.T, frames ...*RawReportFrame) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(EncodeRawFrame(f))
	}
	return buf.Bytes()
}

func TestFrameReader_Next(t *testing.T) {
	src := NewReportSource(2, ModePhase, 1000, 10e6, 1)
	f1 := src.Next(ProfileSteady, ProfileParams{})
	f2 := src.Next(ProfileSteady, ProfileParams{})

	data := captureFixture(t, f1, f2)
	fr := NewFrameReader(bytes.NewReader(data))

	got1, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, f1, got1)

	got2, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, f2, got2)

	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReader_Truncated(t *testing.T) {
	src := NewReportSource(1, ModePhase, 1000, 10e6, 1)
	data := captureFixture(t, src.Next(ProfileSteady, ProfileParams{}))

	fr := NewFrameReader(bytes.NewReader(data[:ReportFrameSize-10]))
	_, err := fr.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeCapture(t *testing.T) {
	src := NewReportSource(2, ModePhase, 1000, 10e6, 1)
	frames := []*RawReportFrame{
		src.Next(ProfileSteady, ProfileParams{}),
		src.Next(ProfileSteady, ProfileParams{}),
		src.Next(ProfileSteady, ProfileParams{}),
	}
	data := captureFixture(t, frames...)

	var out bytes.Buffer
	count, err := DecodeCapture(bytes.NewReader(data), &out, '.', false)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		// 每行: 報頭 + "; " + 兩個 26 字元通道以 ';' 相接
		parts := strings.SplitN(line, "; ", 2)
		require.Len(t, parts, 2)
		channels := strings.Split(parts[1], ";")
		assert.Len(t, channels, 2)
		for _, ch := range channels {
			assert.Len(t, ch, 26)
		}
	}
}

func TestDecodeCapture_SkipsNoneFrames(t *testing.T) {
	src := NewReportSource(1, ModePhase, 1000, 10e6, 1)
	none := &RawReportFrame{ReportType: uint8(KindNone)}
	data := captureFixture(t, none, src.Next(ProfileSteady, ProfileParams{}))

	var out bytes.Buffer
	count, err := DecodeCapture(bytes.NewReader(data), &out, '.', false)
	require.NoError(t, err)

	// 兩份都算入計數，但 None 不產生輸出
	assert.Equal(t, 2, count)
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Len(t, lines, 1)
}

func TestDecodeCapture_Truncated(t *testing.T) {
	src := NewReportSource(1, ModePhase, 1000, 10e6, 1)
	data := captureFixture(t, src.Next(ProfileSteady, ProfileParams{}), src.Next(ProfileSteady, ProfileParams{}))

	var out bytes.Buffer
	count, err := DecodeCapture(bytes.NewReader(data[:len(data)-5]), &out, '.', false)
	assert.Error(t, err)
	assert.Equal(t, 1, count, "first complete frame decodes before the truncation error")
}

func TestDecodeCapture_Empty(t *testing.T) {
	var out bytes.Buffer
	count, err := DecodeCapture(bytes.NewReader(nil), &out, '.', false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, "", out.String())
}

func TestDecodeCapture_DebugFormat(t *testing.T) {
	src := NewReportSource(1, ModePhase, 1000, 10e6, 1)
	data := captureFixture(t, src.Next(ProfileSteady, ProfileParams{}))

	var out bytes.Buffer
	count, err := DecodeCapture(bytes.NewReader(data), &out, '.', true)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, strings.HasPrefix(out.String(), "Phase ms=1000 header=0x"))
}

func TestReceiverStats_KindCount(t *testing.T) {
	var stats ReceiverStats
	stats.kindCounts[KindPhase].Add(3)
	stats.kindCounts[KindError].Add(1)

	assert.Equal(t, uint64(3), stats.KindCount(KindPhase))
	assert.Equal(t, uint64(1), stats.KindCount(KindError))
	assert.Equal(t, uint64(0), stats.KindCount(KindDouble))
	assert.Equal(t, uint64(0), stats.KindCount(ReportKind(99)))
}

func TestReceiver_StateString(t *testing.T) {
	assert.Equal(t, "stopped", ReceiverStateStopped.String())
	assert.Equal(t, "connecting", ReceiverStateConnecting.String())
	assert.Equal(t, "running", ReceiverStateRunning.String())
	assert.Equal(t, "stopping", ReceiverStateStopping.String())
}
