package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileType_String(t *testing.T) {
	tests := []struct {
		profile  ProfileType
		expected string
	}{
		{ProfileSteady, "steady"},
		{ProfileDrift, "drift"},
		{ProfileGlitch, "glitch"},
		{ProfileChatter, "chatter"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.profile.String())
		})
	}
}

func TestParseProfileType(t *testing.T) {
	tests := []struct {
		input    string
		expected ProfileType
	}{
		{"steady", ProfileSteady},
		{"drift", ProfileDrift},
		{"glitch", ProfileGlitch},
		{"chatter", ProfileChatter},
		{"unknown", ProfileSteady}, // 預設為 steady
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseProfileType(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetProfileHandler(t *testing.T) {
	for _, profileType := range ListProfileTypes() {
		handler := GetProfileHandler(profileType)
		require.NotNil(t, handler, "handler for %s should not be nil", profileType)
		assert.Equal(t, profileType, handler.Type())
	}
}

func TestReportSource_SteadyPhase(t *testing.T) {
	src := NewReportSource(4, ModePhase, 1000, 10e6, 42)
	params := ProfileParams{NoisePPB: 0.5}

	for i := 0; i < 10; i++ {
		frame := src.Next(ProfileSteady, params)
		require.NotNil(t, frame)

		report := ParseReport(frame)
		require.Equal(t, KindPhase, report.Kind)
		require.Equal(t, 4, report.ChannelCount)

		// 10 MHz、1 秒間隔: 每間隔約 1e7 週期
		expected := float64(i+1) * 1e7
		for ch := 0; ch < 4; ch++ {
			assert.InDelta(t, expected, report.Phases[ch].Float(), expected*1e-6,
				"channel %d phase after %d ticks", ch, i+1)
		}
	}
}

func TestReportSource_FrequencyMode(t *testing.T) {
	src := NewReportSource(2, ModeFrequency, 500, 5e6, 7)
	frame := src.Next(ProfileSteady, ProfileParams{NoisePPB: 1})

	report := ParseReport(frame)
	require.Equal(t, KindDouble, report.Kind)
	require.Equal(t, 2, report.ChannelCount)

	for _, v := range report.Doubles {
		assert.InDelta(t, 5e6, v, 5e6*1e-6)
	}
}

func TestReportSource_HeaderRoundtrip(t *testing.T) {
	src := NewReportSource(1, ModePhaseAverage, 200, 10e6, 1)
	frame := src.Next(ProfileSteady, ProfileParams{})

	fields, ok := DecodeHeader(frame.Header)
	require.True(t, ok)
	assert.Equal(t, ModePhaseAverage, fields.Mode)
	assert.Equal(t, 200, fields.IntervalMs)
	assert.Equal(t, PPIDefault, fields.PPI)
	assert.Equal(t, ScramblerOff, fields.Scrambler)
}

func TestReportSource_DecimalsTrailer(t *testing.T) {
	// 10 MHz > 4.096 MHz: 各通道 8 位小數
	src := NewReportSource(3, ModePhase, 1000, 10e6, 3)
	frame := src.Next(ProfileSteady, ProfileParams{})

	report := ParseReport(frame)
	decimals := report.Decimals()
	require.NotNil(t, decimals)
	for ch := 0; ch < 3; ch++ {
		assert.Equal(t, byte(8), decimals[ch])
	}
}

func TestReportSource_ChannelClamp(t *testing.T) {
	src := NewReportSource(99, ModePhase, 1000, 10e6, 1)
	frame := src.Next(ProfileSteady, ProfileParams{})

	report := ParseReport(frame)
	assert.Equal(t, MaxChannels, report.ChannelCount)

	src = NewReportSource(0, ModePhase, 1000, 10e6, 1)
	frame = src.Next(ProfileSteady, ProfileParams{})
	report = ParseReport(frame)
	assert.Equal(t, 1, report.ChannelCount)
}

func TestDriftProfile_Accumulates(t *testing.T) {
	driftSrc := NewReportSource(1, ModeFrequency, 1000, 10e6, 5)
	params := ProfileParams{DriftPPBPerTick: 100, NoisePPB: 1e-9}

	var last float64
	for i := 0; i < 50; i++ {
		frame := driftSrc.Next(ProfileDrift, params)
		report := ParseReport(frame)
		require.Equal(t, 1, report.ChannelCount)
		last = report.Doubles[0]
	}

	// 50 ticks * 100 ppb: 頻率明顯抬升
	assert.Greater(t, last, 10e6*(1+40*100*1e-9))
}

func TestGlitchProfile_EmitsErrors(t *testing.T) {
	src := NewReportSource(2, ModePhase, 1000, 10e6, 11)
	params := ProfileParams{ErrorRate: 0.5, MalformedRate: 0.3}

	var errorSeen, malformedSeen, measurementSeen bool
	for i := 0; i < 500; i++ {
		frame := src.Next(ProfileGlitch, params)
		report := ParseReport(frame)

		switch report.Kind {
		case KindError:
			errorSeen = true
			assert.NotEqual(t, ErrNoError, report.ErrorCode)
		case KindPhase:
			if report.ChannelCount == 0 {
				malformedSeen = true
			} else {
				measurementSeen = true
			}
		}
	}

	assert.True(t, errorSeen, "glitch profile should emit error frames")
	assert.True(t, malformedSeen, "glitch profile should emit malformed frames")
	assert.True(t, measurementSeen, "glitch profile should still emit measurements")
}

func TestChatterProfile_InterleavesMessages(t *testing.T) {
	src := NewReportSource(2, ModePhase, 1000, 10e6, 13)
	params := ProfileParams{MessageEvery: 5}

	kinds := make(map[ReportKind]int)
	for i := 0; i < 40; i++ {
		frame := src.Next(ProfileChatter, params)
		report := ParseReport(frame)
		kinds[report.Kind]++
	}

	assert.Greater(t, kinds[KindPhase], 0)
	assert.Greater(t, kinds[KindInt32], 0, "heartbeat frames expected")
	assert.Greater(t, kinds[KindMessage], 0, "timestamp frames expected")
}

func TestChatterProfile_TimestampContent(t *testing.T) {
	src := NewReportSource(1, ModePhase, 100, 10e6, 17)
	params := ProfileParams{MessageEvery: 5}

	for i := 0; i < 100; i++ {
		frame := src.Next(ProfileChatter, params)
		report := ParseReport(frame)
		if report.Kind != KindMessage {
			continue
		}

		require.True(t, report.IsTimestamp())
		// 0x7016 計 100ms，應與設備時間一致
		assert.Equal(t, report.DeviceMs()/100, report.Timestamp())
		return
	}
	t.Fatal("no timestamp frame within 100 ticks")
}

func BenchmarkReportSource_Next(b *testing.B) {
	src := NewReportSource(24, ModePhase, 1000, 10e6, 1)
	params := ProfileParams{NoisePPB: 0.5}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		src.Next(ProfileSteady, params)
	}
}
