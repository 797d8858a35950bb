package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-voiceid/internal/config"
	"github.com/loqalabs/loqa-voiceid/internal/engine"
	"github.com/loqalabs/loqa-voiceid/internal/profile"
	"github.com/loqalabs/loqa-voiceid/internal/voiceid"
	"github.com/loqalabs/loqa-voiceid/internal/wave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*voiceid.Manager, string) {
	t.Helper()
	root := t.TempDir()
	factory, err := engine.New(config.EngineConfig{
		Mode:              "mock",
		AccessKey:         "test-key",
		SampleRate:        16000,
		FrameLength:       4,
		MinEnrollSamples:  8,
		MockEnrollSamples: 16,
	})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := voiceid.NewManager(factory, profile.NewDirStore(filepath.Join(root, "profiles")), nil, root, logger)
	require.NoError(t, err)

	loud := make([]int16, 40)
	for i := range loud {
		loud[i] = 1000
	}
	require.NoError(t, wave.WriteFile(filepath.Join(root, "joyce_1.wav"), loud, wave.EngineFormat(16000)))
	return m, root
}

func TestEnrollIdentifyOutput(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runEnroll(ctx, &out, m, "joyce_1.wav", "joyce"))
	assert.Equal(t, "[enroll progress] 50% Good audio\n[enroll progress] 100% Good audio\n[enroll result] 100% Good audio\n", out.String())

	out.Reset()
	require.NoError(t, runIdentify(ctx, &out, m, "joyce_1.wav"))
	assert.Equal(t, "score of \"joyce\" 1\n", out.String())

	out.Reset()
	require.NoError(t, runProfiles(ctx, &out, m))
	assert.Equal(t, "joyce\n", out.String())
}

func TestEnrollIncompleteOutput(t *testing.T) {
	m, root := newManager(t)
	short := make([]int16, 4)
	require.NoError(t, wave.WriteFile(filepath.Join(root, "short.wav"), short, wave.EngineFormat(16000)))

	var out bytes.Buffer
	require.NoError(t, runEnroll(context.Background(), &out, m, "short.wav", "joyce"))
	assert.Equal(t, "[enroll result] 0% \n", out.String())

	_, err := os.Stat(filepath.Join(root, "profiles", "joyce"))
	assert.True(t, os.IsNotExist(err))
}

func TestRequiresSample(t *testing.T) {
	m, _ := newManager(t)
	var out bytes.Buffer
	assert.Error(t, runEnroll(context.Background(), &out, m, "", "joyce"))
	assert.Error(t, runIdentify(context.Background(), &out, m, ""))
}

func TestIdentifyWithoutProfiles(t *testing.T) {
	m, _ := newManager(t)
	var out bytes.Buffer
	err := runIdentify(context.Background(), &out, m, "joyce_1.wav")
	assert.ErrorIs(t, err, voiceid.ErrNoProfiles)
}
