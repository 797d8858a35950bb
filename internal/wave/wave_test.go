package wave

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i - n/2)
	}
	return out
}

func TestCheckFormat(t *testing.T) {
	ok := EngineFormat(16000)
	assert.True(t, CheckFormat(ok, 16000))

	cases := map[string]Format{
		"sample rate":  {SampleRate: 8000, BitDepth: 16, Channels: 1, AudioFormat: FormatPCM},
		"bit depth":    {SampleRate: 16000, BitDepth: 8, Channels: 1, AudioFormat: FormatPCM},
		"channels":     {SampleRate: 16000, BitDepth: 16, Channels: 2, AudioFormat: FormatPCM},
		"audio format": {SampleRate: 16000, BitDepth: 16, Channels: 1, AudioFormat: 3},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, CheckFormat(f, 16000))
		})
	}
}

func TestOpenReadsHeaderAndFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.wav")
	samples := ramp(1000)
	require.NoError(t, WriteFile(path, samples, EngineFormat(16000)))

	rec, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	assert.Equal(t, EngineFormat(16000), rec.Format())
	assert.True(t, CheckFormat(rec.Format(), 16000))

	seq := rec.Frames(256)
	var frames []Frame
	for frame := range seq.All() {
		frames = append(frames, frame)
	}
	require.NoError(t, seq.Err())

	// 1000 samples make three full frames; the 232-sample tail is dropped.
	require.Len(t, frames, 3)
	assert.Equal(t, 3, seq.Count())
	for i, frame := range frames {
		require.Len(t, frame, 256)
		assert.Equal(t, samples[i*256:(i+1)*256], []int16(frame))
	}
}

func TestOpenRejectedFormatsStillDecodeHeader(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]Format{
		"8khz":   {SampleRate: 8000, BitDepth: 16, Channels: 1, AudioFormat: FormatPCM},
		"stereo": {SampleRate: 16000, BitDepth: 16, Channels: 2, AudioFormat: FormatPCM},
		"8bit":   {SampleRate: 16000, BitDepth: 8, Channels: 1, AudioFormat: FormatPCM},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".wav")
			require.NoError(t, WriteFile(path, make([]int16, 64), f))
			rec, err := Open(path)
			require.NoError(t, err)
			t.Cleanup(func() { _ = rec.Close() })
			assert.Equal(t, f.SampleRate, rec.Format().SampleRate)
			assert.Equal(t, f.Channels, rec.Format().Channels)
			assert.Equal(t, f.BitDepth, rec.Format().BitDepth)
			assert.False(t, CheckFormat(rec.Format(), 16000))
		})
	}
}

func TestNewRecordingRejectsGarbage(t *testing.T) {
	_, err := NewRecording(bytes.NewReader([]byte("definitely not a riff header")))
	require.ErrorIs(t, err, ErrInvalidWave)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
}

func TestFrameSequenceIsSingleUse(t *testing.T) {
	seq := FromSamples(ramp(40), 10)

	first := 0
	for range seq.All() {
		first++
	}
	assert.Equal(t, 4, first)
	require.NoError(t, seq.Err())

	second := 0
	for range seq.All() {
		second++
	}
	assert.Zero(t, second)
	assert.ErrorIs(t, seq.Err(), ErrSequenceConsumed)
}

func TestFrameSequenceStopsEarly(t *testing.T) {
	seq := FromSamples(ramp(100), 10)
	taken := 0
	for range seq.All() {
		taken++
		if taken == 2 {
			break
		}
	}
	assert.Equal(t, 2, taken)
	assert.Equal(t, 2, seq.Count())
}

func TestFrameSequenceShorterThanOneFrame(t *testing.T) {
	seq := FromSamples(ramp(5), 10)
	for range seq.All() {
		t.Fatal("no frame expected")
	}
	assert.NoError(t, seq.Err())
}

func TestRecordingFramesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.wav")
	require.NoError(t, WriteFile(path, ramp(64), EngineFormat(16000)))
	rec, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	n := 0
	for range rec.Frames(16).All() {
		n++
	}
	assert.Equal(t, 4, n)

	again := rec.Frames(16)
	for range again.All() {
		t.Fatal("recording must not be framed twice")
	}
	assert.ErrorIs(t, again.Err(), ErrSequenceConsumed)
}

func TestPCMRoundTrip(t *testing.T) {
	samples := []int16{-32768, -1, 0, 1, 32767}
	decoded, err := DecodePCM(EncodePCM(samples))
	require.NoError(t, err)
	assert.Equal(t, samples, decoded)

	_, err = DecodePCM([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidPCM)
}
