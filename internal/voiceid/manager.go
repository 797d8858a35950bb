// Package voiceid runs enrollment and identification against stored
// profiles and records each run.
package voiceid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-voiceid/internal/engine"
	"github.com/loqalabs/loqa-voiceid/internal/enroll"
	"github.com/loqalabs/loqa-voiceid/internal/eventstore"
	"github.com/loqalabs/loqa-voiceid/internal/identify"
	"github.com/loqalabs/loqa-voiceid/internal/profile"
	"github.com/loqalabs/loqa-voiceid/internal/wave"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-voiceid/voiceid"

var (
	// ErrNoProfiles is returned by DetectProfile when nothing has been enrolled.
	ErrNoProfiles = errors.New("no stored profiles")
	// ErrInvalidProfileName is returned by CreateProfile for names the
	// profile store cannot hold.
	ErrInvalidProfileName = errors.New("invalid profile name")
)

// Recorder keeps the run history.
type Recorder interface {
	AppendRun(ctx context.Context, run eventstore.Run) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
}

// Observer receives enrollment progress after every engine submission.
type Observer func(engine.Progress)

type runOptions struct {
	runID string
}

type RunOption func(*runOptions)

// WithRunID makes the run use id instead of a generated one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) {
		o.runID = id
	}
}

// EnrollOutcome is the result of CreateProfile.
type EnrollOutcome struct {
	RunID   string
	Profile string
	enroll.Result
}

// IdentifyOutcome is the result of DetectProfile.
type IdentifyOutcome struct {
	RunID string
	identify.Result
}

type Manager struct {
	factory    engine.Factory
	store      profile.Store
	recorder   Recorder
	samplesDir string
	logger     *slog.Logger
	tracer     trace.Tracer

	submissions    metric.Int64Counter
	profilesMade   metric.Int64Counter
	identifyRuns   metric.Int64Counter
	identifyFrames metric.Int64Histogram
}

// NewManager wires the engine, profile store and run history. recorder may
// be nil. Relative sample paths are resolved against samplesDir.
func NewManager(factory engine.Factory, store profile.Store, recorder Recorder, samplesDir string, logger *slog.Logger) (*Manager, error) {
	meter := otel.Meter(instrumentationName)
	m := &Manager{
		factory:    factory,
		store:      store,
		recorder:   recorder,
		samplesDir: samplesDir,
		logger:     logger.With(slog.String("component", "voiceid")),
		tracer:     otel.Tracer(instrumentationName),
	}

	var err error
	if m.submissions, err = meter.Int64Counter("voiceid.enroll.submissions",
		metric.WithDescription("Batches submitted to the engine during enrollment")); err != nil {
		return nil, err
	}
	if m.profilesMade, err = meter.Int64Counter("voiceid.profiles.created",
		metric.WithDescription("Profiles exported and saved")); err != nil {
		return nil, err
	}
	if m.identifyRuns, err = meter.Int64Counter("voiceid.identify.runs",
		metric.WithDescription("Identification runs")); err != nil {
		return nil, err
	}
	if m.identifyFrames, err = meter.Int64Histogram("voiceid.identify.frames",
		metric.WithDescription("Frames scored per identification run")); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateProfile enrolls the speaker in sample. The profile is saved as
// profileName only when the engine reaches 100%; an incomplete run returns
// no error. observer may be nil.
func (m *Manager) CreateProfile(ctx context.Context, sample, profileName string, observer Observer, opts ...RunOption) (EnrollOutcome, error) {
	runID := m.runID(opts)
	out := EnrollOutcome{RunID: runID, Profile: profileName}
	if err := profile.ValidateName(profileName); err != nil {
		return out, fmt.Errorf("%w: %w", ErrInvalidProfileName, err)
	}

	ctx, span := m.tracer.Start(ctx, "voiceid.create_profile", trace.WithAttributes(
		attribute.String("voiceid.run_id", runID),
		attribute.String("voiceid.sample", sample),
		attribute.String("voiceid.profile", profileName),
	))
	defer span.End()

	logger := m.logger.With(slog.String("run_id", runID), slog.String("profile", profileName))
	m.record(ctx, logger, eventstore.Run{ID: runID, Operation: eventstore.OperationEnroll, Sample: sample, Profile: profileName})

	result, err := m.createProfile(ctx, logger, runID, sample, profileName, observer)
	out.Result = result
	if err != nil {
		if errors.Is(err, wave.ErrUnsupportedFormat) {
			m.event(ctx, logger, runID, eventstore.EventFormatRejected, formatRejectedPayload{Sample: sample, Message: wave.FormatRequirement})
		}
		failSpan(span, err)
		return out, err
	}

	m.event(ctx, logger, runID, eventstore.EventEnrollResult, enrollResultPayload{
		State:       result.State.String(),
		Percentage:  result.Progress.Percentage,
		Message:     result.Message(),
		Submissions: result.Submissions,
		Frames:      result.Frames,
	})
	span.SetAttributes(
		attribute.String("voiceid.state", result.State.String()),
		attribute.Int("voiceid.percentage", result.Progress.Percentage),
	)
	if result.State == enroll.StateComplete {
		m.profilesMade.Add(ctx, 1)
	}
	return out, nil
}

func (m *Manager) createProfile(ctx context.Context, logger *slog.Logger, runID, sample, profileName string, observer Observer) (enroll.Result, error) {
	rec, err := wave.Open(m.resolve(sample))
	if err != nil {
		return enroll.Result{}, err
	}
	defer rec.Close()

	profiler, err := m.factory.NewProfiler(ctx)
	if err != nil {
		return enroll.Result{}, fmt.Errorf("create profiler: %w", err)
	}
	defer func() {
		if err := profiler.Release(); err != nil {
			logger.Warn("release profiler", slogError(err))
		}
	}()

	session := enroll.NewSession(profiler, m.store, logger)
	session.OnProgress(func(p engine.Progress) {
		m.submissions.Add(ctx, 1)
		m.event(ctx, logger, runID, eventstore.EventEnrollProgress, progressPayload{
			Percentage: p.Percentage,
			Feedback:   p.Feedback.String(),
			Message:    p.Feedback.Message(),
		})
		if observer != nil {
			observer(p)
		}
	})
	return session.Run(ctx, rec, profileName)
}

// DetectProfile scores sample against every stored profile, in the order
// the store lists them.
func (m *Manager) DetectProfile(ctx context.Context, sample string, opts ...RunOption) (IdentifyOutcome, error) {
	runID := m.runID(opts)
	out := IdentifyOutcome{RunID: runID}

	ctx, span := m.tracer.Start(ctx, "voiceid.detect_profile", trace.WithAttributes(
		attribute.String("voiceid.run_id", runID),
		attribute.String("voiceid.sample", sample),
	))
	defer span.End()

	logger := m.logger.With(slog.String("run_id", runID))
	m.record(ctx, logger, eventstore.Run{ID: runID, Operation: eventstore.OperationIdentify, Sample: sample})

	result, err := m.detectProfile(ctx, logger, sample)
	out.Result = result
	if err != nil {
		if errors.Is(err, wave.ErrUnsupportedFormat) {
			m.event(ctx, logger, runID, eventstore.EventFormatRejected, formatRejectedPayload{Sample: sample, Message: wave.FormatRequirement})
		}
		failSpan(span, err)
		return out, err
	}

	for _, s := range result.Scores {
		m.event(ctx, logger, runID, eventstore.EventIdentifyScore, scorePayload{Profile: s.Profile, Score: s.Score})
	}
	m.identifyRuns.Add(ctx, 1)
	m.identifyFrames.Record(ctx, int64(result.Frames))
	span.SetAttributes(
		attribute.Int("voiceid.frames", result.Frames),
		attribute.Int("voiceid.profiles", len(result.Scores)),
	)
	return out, nil
}

func (m *Manager) detectProfile(ctx context.Context, logger *slog.Logger, sample string) (identify.Result, error) {
	profiles, err := m.store.List(ctx)
	if err != nil {
		return identify.Result{}, fmt.Errorf("load profiles: %w", err)
	}
	if len(profiles) == 0 {
		return identify.Result{}, ErrNoProfiles
	}
	names := make([]string, len(profiles))
	blobs := make([][]byte, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
		blobs[i] = p.Data
	}

	rec, err := wave.Open(m.resolve(sample))
	if err != nil {
		return identify.Result{}, err
	}
	defer rec.Close()

	recognizer, err := m.factory.NewRecognizer(ctx, blobs)
	if err != nil {
		return identify.Result{}, fmt.Errorf("create recognizer: %w", err)
	}
	defer func() {
		if err := recognizer.Release(); err != nil {
			logger.Warn("release recognizer", slogError(err))
		}
	}()

	return identify.NewSession(recognizer, logger).Run(ctx, rec, names)
}

// SaveSample writes pcm into the samples directory as a mono 16-bit WAV
// at sampleRate and returns the identifier CreateProfile and DetectProfile
// accept for it.
func (m *Manager) SaveSample(_ context.Context, name string, pcm []int16, sampleRate int) (string, error) {
	if err := profile.ValidateName(name); err != nil {
		return "", fmt.Errorf("invalid sample name: %w", err)
	}
	if sampleRate <= 0 {
		return "", fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	path := m.resolve(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create samples dir: %w", err)
	}
	if err := wave.WriteFile(path, pcm, wave.EngineFormat(sampleRate)); err != nil {
		return "", err
	}
	m.logger.Info("sample saved", slog.String("sample", name), slog.Int("samples", len(pcm)))
	return name, nil
}

// Profiles lists the names of the stored profiles.
func (m *Manager) Profiles(ctx context.Context) ([]string, error) {
	profiles, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}
	return names, nil
}

func (m *Manager) resolve(sample string) string {
	if m.samplesDir == "" || filepath.IsAbs(sample) {
		return sample
	}
	return filepath.Join(m.samplesDir, sample)
}

func (m *Manager) runID(opts []RunOption) string {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		return uuid.NewString()
	}
	return o.runID
}

// record and event never fail a run: history is best effort.
func (m *Manager) record(ctx context.Context, logger *slog.Logger, run eventstore.Run) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.AppendRun(ctx, run); err != nil {
		logger.Warn("record run", slogError(err))
	}
}

func (m *Manager) event(ctx context.Context, logger *slog.Logger, runID, eventType string, payload any) {
	if m.recorder == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("encode run event", slog.String("type", eventType), slogError(err))
		return
	}
	if err := m.recorder.AppendEvent(ctx, eventstore.Event{RunID: runID, Type: eventType, Payload: data}); err != nil {
		logger.Warn("record run event", slog.String("type", eventType), slogError(err))
	}
}

type progressPayload struct {
	Percentage int    `json:"percentage"`
	Feedback   string `json:"feedback"`
	Message    string `json:"message"`
}

type enrollResultPayload struct {
	State       string `json:"state"`
	Percentage  int    `json:"percentage"`
	Message     string `json:"message"`
	Submissions int    `json:"submissions"`
	Frames      int    `json:"frames"`
}

type scorePayload struct {
	Profile string  `json:"profile"`
	Score   float64 `json:"score"`
}

type formatRejectedPayload struct {
	Sample  string `json:"sample"`
	Message string `json:"message"`
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
