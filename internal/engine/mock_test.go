package engine

import (
	"context"
	"testing"

	"github.com/loqalabs/loqa-voiceid/internal/config"
	"github.com/loqalabs/loqa-voiceid/internal/wave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockConfig() config.EngineConfig {
	return config.EngineConfig{
		Mode:              "mock",
		AccessKey:         "test-key",
		SampleRate:        16000,
		FrameLength:       4,
		MinEnrollSamples:  8,
		MockEnrollSamples: 16,
	}
}

func constant(n int, v int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestNewRequiresAccessKey(t *testing.T) {
	cfg := mockConfig()
	cfg.AccessKey = ""
	_, err := New(cfg)
	require.ErrorIs(t, err, ErrMissingAccessKey)

	cfg.Mode = "exec"
	cfg.Command = "bridge"
	_, err = New(cfg)
	require.ErrorIs(t, err, ErrMissingAccessKey)
}

func TestNewUnknownMode(t *testing.T) {
	cfg := mockConfig()
	cfg.Mode = "cloud"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestMockProfilerEnrollAndExport(t *testing.T) {
	ctx := context.Background()
	factory, err := New(mockConfig())
	require.NoError(t, err)

	profiler, err := factory.NewProfiler(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16000, profiler.SampleRate())
	assert.Equal(t, 4, profiler.FrameLength())
	assert.Equal(t, 8, profiler.MinEnrollSamples())

	progress, err := profiler.Enroll(ctx, constant(8, 500))
	require.NoError(t, err)
	assert.Equal(t, Progress{Percentage: 50, Feedback: FeedbackGood}, progress)

	_, err = profiler.Export(ctx)
	require.Error(t, err, "export before completion")

	progress, err = profiler.Enroll(ctx, constant(8, 0))
	require.NoError(t, err)
	assert.Equal(t, Progress{Percentage: 50, Feedback: FeedbackNoVoiceFound}, progress)

	progress, err = profiler.Enroll(ctx, constant(4, 500))
	require.NoError(t, err)
	assert.Equal(t, FeedbackAudioTooShort, progress.Feedback)

	progress, err = profiler.Enroll(ctx, constant(8, -500))
	require.NoError(t, err)
	assert.Equal(t, Progress{Percentage: 100, Feedback: FeedbackGood}, progress)

	blob, err := profiler.Export(ctx)
	require.NoError(t, err)
	level, err := decodeMockProfile(blob)
	require.NoError(t, err)
	assert.InDelta(t, 500, level, 1e-9)

	require.NoError(t, profiler.Release())
	assert.Error(t, profiler.Release(), "second release")
	_, err = profiler.Enroll(ctx, constant(8, 500))
	assert.Error(t, err)
}

func TestMockRecognizerScores(t *testing.T) {
	ctx := context.Background()
	factory, err := New(mockConfig())
	require.NoError(t, err)

	_, err = factory.NewRecognizer(ctx, nil)
	require.Error(t, err)
	_, err = factory.NewRecognizer(ctx, [][]byte{[]byte("garbage")})
	require.Error(t, err)

	recognizer, err := factory.NewRecognizer(ctx, [][]byte{encodeMockProfile(500), encodeMockProfile(1500)})
	require.NoError(t, err)
	defer func() { require.NoError(t, recognizer.Release()) }()

	scores, err := recognizer.Process(ctx, wave.Frame(constant(4, 500)))
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.InDelta(t, 1.0, scores[0], 1e-6)
	assert.InDelta(t, 0.5, scores[1], 1e-6)

	_, err = recognizer.Process(ctx, wave.Frame(constant(3, 500)))
	assert.Error(t, err, "short frame")
}
