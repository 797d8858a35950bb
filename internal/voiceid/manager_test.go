package voiceid

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-voiceid/internal/config"
	"github.com/loqalabs/loqa-voiceid/internal/engine"
	"github.com/loqalabs/loqa-voiceid/internal/enroll"
	"github.com/loqalabs/loqa-voiceid/internal/eventstore"
	"github.com/loqalabs/loqa-voiceid/internal/profile"
	"github.com/loqalabs/loqa-voiceid/internal/wave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func engineConfig() config.EngineConfig {
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

type fixture struct {
	manager  *Manager
	store    profile.Store
	history  *eventstore.Store
	samples  string
	profiles string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		samples:  filepath.Join(root, "samples"),
		profiles: filepath.Join(root, "profiles"),
	}
	require.NoError(t, os.MkdirAll(f.samples, 0o755))

	factory, err := engine.New(engineConfig())
	require.NoError(t, err)

	f.store = profile.NewDirStore(f.profiles)
	f.history, err = eventstore.Open(context.Background(), config.EventStoreConfig{
		Path:          filepath.Join(root, "runs.db"),
		RetentionMode: "session",
	}, newLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.history.Close() })

	f.manager, err = NewManager(factory, f.store, f.history, f.samples, newLogger())
	require.NoError(t, err)
	return f
}

func (f *fixture) writeSample(t *testing.T, name string, samples []int16, format wave.Format) {
	t.Helper()
	require.NoError(t, wave.WriteFile(filepath.Join(f.samples, name), samples, format))
}

func (f *fixture) events(t *testing.T, runID string) []eventstore.Event {
	t.Helper()
	events, err := f.history.ListRunEvents(context.Background(), runID, 100)
	require.NoError(t, err)
	return events
}

func TestCreateProfileComplete(t *testing.T) {
	f := newFixture(t)
	f.writeSample(t, "joyce_1.wav", constant(40, 1000), wave.EngineFormat(16000))

	var seen []int
	out, err := f.manager.CreateProfile(context.Background(), "joyce_1.wav", "joyce", func(p engine.Progress) {
		seen = append(seen, p.Percentage)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{50, 100}, seen)
	assert.Equal(t, enroll.StateComplete, out.State)
	assert.Equal(t, 100, out.Progress.Percentage)
	assert.Equal(t, "Good audio", out.Message())
	assert.Equal(t, 2, out.Submissions)
	assert.NotEmpty(t, out.RunID)

	profiles, err := f.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "joyce", profiles[0].Name)

	events := f.events(t, out.RunID)
	require.Len(t, events, 3)
	assert.Equal(t, eventstore.EventEnrollProgress, events[0].Type)
	assert.Equal(t, eventstore.EventEnrollProgress, events[1].Type)
	assert.Equal(t, eventstore.EventEnrollResult, events[2].Type)

	var res enrollResultPayload
	require.NoError(t, json.Unmarshal(events[2].Payload, &res))
	assert.Equal(t, "complete", res.State)
	assert.Equal(t, 100, res.Percentage)
}

func TestCreateProfileIncompleteWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.writeSample(t, "short.wav", constant(12, 1000), wave.EngineFormat(16000))

	out, err := f.manager.CreateProfile(context.Background(), "short.wav", "joyce", nil)
	require.NoError(t, err)
	assert.Equal(t, enroll.StateIncomplete, out.State)
	assert.Equal(t, 50, out.Progress.Percentage)

	profiles, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestCreateProfileRejectsFormat(t *testing.T) {
	f := newFixture(t)
	format := wave.EngineFormat(8000)
	f.writeSample(t, "phone.wav", constant(40, 1000), format)

	out, err := f.manager.CreateProfile(context.Background(), "phone.wav", "joyce", nil)
	require.ErrorIs(t, err, wave.ErrUnsupportedFormat)

	events := f.events(t, out.RunID)
	require.Len(t, events, 1)
	assert.Equal(t, eventstore.EventFormatRejected, events[0].Type)

	profiles, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestCreateProfileInvalidName(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.CreateProfile(context.Background(), "joyce_1.wav", "../joyce", nil)
	require.ErrorIs(t, err, ErrInvalidProfileName)
	require.ErrorIs(t, err, profile.ErrInvalidName)
}

func TestCreateProfileMissingSample(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.CreateProfile(context.Background(), "nope.wav", "joyce", nil)
	require.Error(t, err)
}

func TestCreateProfileUsesRunID(t *testing.T) {
	f := newFixture(t)
	f.writeSample(t, "joyce_1.wav", constant(40, 1000), wave.EngineFormat(16000))

	out, err := f.manager.CreateProfile(context.Background(), "joyce_1.wav", "joyce", nil, WithRunID("run-1"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.RunID)
	assert.NotEmpty(t, f.events(t, "run-1"))
}

func TestDetectProfileScoresInStoreOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeSample(t, "joyce_1.wav", constant(40, 1000), wave.EngineFormat(16000))
	f.writeSample(t, "bob_1.wav", constant(40, 3000), wave.EngineFormat(16000))
	f.writeSample(t, "joyce_2.wav", constant(22, 1000), wave.EngineFormat(16000))

	_, err := f.manager.CreateProfile(ctx, "joyce_1.wav", "joyce", nil)
	require.NoError(t, err)
	_, err = f.manager.CreateProfile(ctx, "bob_1.wav", "bob", nil)
	require.NoError(t, err)

	out, err := f.manager.DetectProfile(ctx, filepath.Join(f.samples, "joyce_2.wav"))
	require.NoError(t, err)

	assert.Equal(t, 5, out.Frames)
	require.Len(t, out.Scores, 2)
	assert.Equal(t, "bob", out.Scores[0].Profile)
	assert.InDelta(t, 1.0/3.0, out.Scores[0].Score, 1e-6)
	assert.Equal(t, "joyce", out.Scores[1].Profile)
	assert.InDelta(t, 1.0, out.Scores[1].Score, 1e-6)

	events := f.events(t, out.RunID)
	require.Len(t, events, 2)
	var first scorePayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &first))
	assert.Equal(t, "bob", first.Profile)

	names, err := f.manager.Profiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "joyce"}, names)
}

func TestDetectProfileWithoutProfiles(t *testing.T) {
	f := newFixture(t)
	f.writeSample(t, "noise.wav", constant(40, 1000), wave.EngineFormat(16000))

	_, err := f.manager.DetectProfile(context.Background(), "noise.wav")
	require.ErrorIs(t, err, ErrNoProfiles)
}

func TestDetectProfileShortRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeSample(t, "joyce_1.wav", constant(40, 1000), wave.EngineFormat(16000))
	f.writeSample(t, "blip.wav", constant(3, 1000), wave.EngineFormat(16000))
	_, err := f.manager.CreateProfile(ctx, "joyce_1.wav", "joyce", nil)
	require.NoError(t, err)

	out, err := f.manager.DetectProfile(ctx, "blip.wav")
	require.NoError(t, err)
	assert.Zero(t, out.Frames)
	assert.Empty(t, out.Scores)
}

func TestDetectProfileRejectsFormat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeSample(t, "joyce_1.wav", constant(40, 1000), wave.EngineFormat(16000))
	_, err := f.manager.CreateProfile(ctx, "joyce_1.wav", "joyce", nil)
	require.NoError(t, err)

	stereo := wave.EngineFormat(16000)
	stereo.Channels = 2
	f.writeSample(t, "stereo.wav", constant(40, 1000), stereo)

	out, err := f.manager.DetectProfile(ctx, "stereo.wav")
	require.ErrorIs(t, err, wave.ErrUnsupportedFormat)
	events := f.events(t, out.RunID)
	require.Len(t, events, 1)
	assert.Equal(t, eventstore.EventFormatRejected, events[0].Type)
}

func TestManagerWithoutRecorder(t *testing.T) {
	root := t.TempDir()
	factory, err := engine.New(engineConfig())
	require.NoError(t, err)
	m, err := NewManager(factory, profile.NewDirStore(filepath.Join(root, "profiles")), nil, root, newLogger())
	require.NoError(t, err)

	require.NoError(t, wave.WriteFile(filepath.Join(root, "joyce_1.wav"), constant(40, 1000), wave.EngineFormat(16000)))
	out, err := m.CreateProfile(context.Background(), "joyce_1.wav", "joyce", nil)
	require.NoError(t, err)
	assert.Equal(t, enroll.StateComplete, out.State)
}

// countingFactory counts Release calls on every engine instance it hands out.
type countingFactory struct {
	engine.Factory
	releases  int
	enrollErr error
}

func (f *countingFactory) NewProfiler(ctx context.Context) (engine.Profiler, error) {
	p, err := f.Factory.NewProfiler(ctx)
	if err != nil {
		return nil, err
	}
	return &countingProfiler{Profiler: p, factory: f}, nil
}

func (f *countingFactory) NewRecognizer(ctx context.Context, profiles [][]byte) (engine.Recognizer, error) {
	r, err := f.Factory.NewRecognizer(ctx, profiles)
	if err != nil {
		return nil, err
	}
	return &countingRecognizer{Recognizer: r, factory: f}, nil
}

type countingProfiler struct {
	engine.Profiler
	factory *countingFactory
}

func (p *countingProfiler) Enroll(ctx context.Context, pcm []int16) (engine.Progress, error) {
	if p.factory.enrollErr != nil {
		return engine.Progress{}, p.factory.enrollErr
	}
	return p.Profiler.Enroll(ctx, pcm)
}

func (p *countingProfiler) Release() error {
	p.factory.releases++
	return p.Profiler.Release()
}

type countingRecognizer struct {
	engine.Recognizer
	factory *countingFactory
}

func (r *countingRecognizer) Release() error {
	r.factory.releases++
	return r.Recognizer.Release()
}

func (f *fixture) countingManager(t *testing.T) (*Manager, *countingFactory) {
	t.Helper()
	inner, err := engine.New(engineConfig())
	require.NoError(t, err)
	counting := &countingFactory{Factory: inner}
	m, err := NewManager(counting, f.store, f.history, f.samples, newLogger())
	require.NoError(t, err)
	return m, counting
}

func TestEngineReleasedOncePerRun(t *testing.T) {
	stereo := wave.EngineFormat(16000)
	stereo.Channels = 2

	cases := []struct {
		name      string
		samples   []int16
		format    wave.Format
		enrollErr error
		wantErr   bool
		wantState enroll.State
	}{
		{name: "format rejected", samples: constant(40, 1000), format: stereo, wantErr: true},
		{name: "incomplete", samples: constant(12, 1000), format: wave.EngineFormat(16000), wantState: enroll.StateIncomplete},
		{name: "complete", samples: constant(40, 1000), format: wave.EngineFormat(16000), wantState: enroll.StateComplete},
		{name: "enroll error", samples: constant(40, 1000), format: wave.EngineFormat(16000), enrollErr: errors.New("engine exploded"), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			m, counting := f.countingManager(t)
			counting.enrollErr = tc.enrollErr
			f.writeSample(t, "sample.wav", tc.samples, tc.format)

			out, err := m.CreateProfile(context.Background(), "sample.wav", "joyce", nil)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.wantState, out.State)
			}
			assert.Equal(t, 1, counting.releases)
		})
	}
}

func TestRecognizerReleasedOncePerRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeSample(t, "joyce_1.wav", constant(40, 1000), wave.EngineFormat(16000))
	_, err := f.manager.CreateProfile(ctx, "joyce_1.wav", "joyce", nil)
	require.NoError(t, err)

	stereo := wave.EngineFormat(16000)
	stereo.Channels = 2
	f.writeSample(t, "stereo.wav", constant(40, 1000), stereo)

	m, counting := f.countingManager(t)
	_, err = m.DetectProfile(ctx, "joyce_1.wav")
	require.NoError(t, err)
	assert.Equal(t, 1, counting.releases)

	_, err = m.DetectProfile(ctx, "stereo.wav")
	require.ErrorIs(t, err, wave.ErrUnsupportedFormat)
	assert.Equal(t, 2, counting.releases)
}

func TestSaveSampleFeedsEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	name, err := f.manager.SaveSample(ctx, "captured.wav", constant(40, 1000), 16000)
	require.NoError(t, err)

	rec, err := wave.Open(filepath.Join(f.samples, name))
	require.NoError(t, err)
	assert.Equal(t, wave.EngineFormat(16000), rec.Format())
	require.NoError(t, rec.Close())

	out, err := f.manager.CreateProfile(ctx, name, "joyce", nil)
	require.NoError(t, err)
	assert.Equal(t, enroll.StateComplete, out.State)
}

func TestSaveSampleRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.SaveSample(context.Background(), "../escape.wav", constant(4, 1), 16000)
	assert.ErrorIs(t, err, profile.ErrInvalidName)
	_, err = f.manager.SaveSample(context.Background(), "ok.wav", constant(4, 1), 0)
	assert.Error(t, err)
}
