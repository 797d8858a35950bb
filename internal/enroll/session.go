package enroll

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-voiceid/internal/engine"
	"github.com/loqalabs/loqa-voiceid/internal/wave"
)

// State is the position of a session in the enrollment state machine.
type State int

const (
	StateCollecting State = iota
	StateComplete
	// StateIncomplete means the recording ran out below 100%. No profile
	// is written and no error is returned.
	StateIncomplete
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateComplete:
		return "complete"
	case StateIncomplete:
		return "incomplete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Recording is the audio a session consumes.
type Recording interface {
	Format() wave.Format
	Frames(frameLength int) *wave.FrameSequence
}

// ProfileWriter persists exported profiles.
type ProfileWriter interface {
	Save(ctx context.Context, name string, data []byte) error
}

// Result summarises a finished session.
type Result struct {
	State       State
	Progress    engine.Progress
	Submissions int
	Frames      int
}

// Message is the feedback description of the last submission, or empty
// when nothing was submitted.
func (r Result) Message() string {
	if r.Submissions == 0 {
		return ""
	}
	return r.Progress.Feedback.Message()
}

// Session runs one enrollment. The profiler is borrowed: releasing it is
// the caller's job.
type Session struct {
	profiler   engine.Profiler
	writer     ProfileWriter
	logger     *slog.Logger
	onProgress func(engine.Progress)
}

func NewSession(profiler engine.Profiler, writer ProfileWriter, logger *slog.Logger) *Session {
	return &Session{
		profiler: profiler,
		writer:   writer,
		logger:   logger.With(slog.String("component", "enroll-session")),
	}
}

// OnProgress registers fn to be called after every submission.
func (s *Session) OnProgress(fn func(engine.Progress)) {
	s.onProgress = fn
}

// Run validates rec, feeds its frames to the profiler and, once the engine
// reports 100%, exports the profile and saves it as name.
func (s *Session) Run(ctx context.Context, rec Recording, name string) (Result, error) {
	format := rec.Format()
	if !wave.CheckFormat(format, s.profiler.SampleRate()) {
		s.logger.Error(wave.FormatRequirement,
			slog.Int("sample_rate", format.SampleRate),
			slog.Int("bit_depth", format.BitDepth),
			slog.Int("channels", format.Channels))
		return Result{}, wave.ErrUnsupportedFormat
	}

	acc := NewAccumulator(s.profiler)
	frames := rec.Frames(s.profiler.FrameLength())
	state := StateCollecting

	for frame := range frames.All() {
		progress, submitted, err := acc.Add(ctx, frame)
		if err != nil {
			return s.result(state, acc, frames), fmt.Errorf("enroll: %w", err)
		}
		if !submitted {
			continue
		}
		s.logger.Info("enroll progress",
			slog.Int("percentage", progress.Percentage),
			slog.String("feedback", progress.Feedback.Message()))
		if s.onProgress != nil {
			s.onProgress(progress)
		}
		if progress.Complete() {
			state = StateComplete
			break
		}
	}
	if err := frames.Err(); err != nil {
		return s.result(state, acc, frames), fmt.Errorf("read frames: %w", err)
	}
	if state != StateComplete {
		state = StateIncomplete
	}

	result := s.result(state, acc, frames)
	s.logger.Info("enroll result",
		slog.String("state", state.String()),
		slog.Int("percentage", result.Progress.Percentage),
		slog.String("feedback", result.Message()))

	if state != StateComplete {
		return result, nil
	}
	profile, err := s.profiler.Export(ctx)
	if err != nil {
		return result, fmt.Errorf("export profile: %w", err)
	}
	if err := s.writer.Save(ctx, name, profile); err != nil {
		return result, fmt.Errorf("save profile %q: %w", name, err)
	}
	s.logger.Info("profile saved", slog.String("profile", name), slog.Int("bytes", len(profile)))
	return result, nil
}

func (s *Session) result(state State, acc *Accumulator, frames *wave.FrameSequence) Result {
	return Result{
		State:       state,
		Progress:    acc.Progress(),
		Submissions: acc.Submissions(),
		Frames:      frames.Count(),
	}
}
