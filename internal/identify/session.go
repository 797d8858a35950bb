package identify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-voiceid/internal/engine"
	"github.com/loqalabs/loqa-voiceid/internal/wave"
)

// Recording is the audio a session consumes.
type Recording interface {
	Format() wave.Format
	Frames(frameLength int) *wave.FrameSequence
}

// Score is the mean score of one profile.
type Score struct {
	Profile string
	Score   float64
}

// Result holds one Score per profile, in profile load order.
type Result struct {
	Scores []Score
	Frames int
}

// Session scores one recording. The recognizer is borrowed: releasing it
// is the caller's job.
type Session struct {
	recognizer engine.Recognizer
	logger     *slog.Logger
}

func NewSession(recognizer engine.Recognizer, logger *slog.Logger) *Session {
	return &Session{
		recognizer: recognizer,
		logger:     logger.With(slog.String("component", "identify-session")),
	}
}

// Run validates rec and averages the recognizer's scores over all its
// frames. profiles names the recognizer's profiles in the order they were
// loaded.
func (s *Session) Run(ctx context.Context, rec Recording, profiles []string) (Result, error) {
	format := rec.Format()
	if !wave.CheckFormat(format, s.recognizer.SampleRate()) {
		s.logger.Error(wave.FormatRequirement,
			slog.Int("sample_rate", format.SampleRate),
			slog.Int("bit_depth", format.BitDepth),
			slog.Int("channels", format.Channels))
		return Result{}, wave.ErrUnsupportedFormat
	}

	frames := rec.Frames(s.recognizer.FrameLength())
	mean, n, err := Aggregate(ctx, frames.All(), s.recognizer.Process)
	if err != nil {
		return Result{Frames: n}, err
	}
	if err := frames.Err(); err != nil {
		return Result{Frames: n}, fmt.Errorf("read frames: %w", err)
	}
	if n > 0 && len(mean) != len(profiles) {
		return Result{Frames: n}, fmt.Errorf("%w: engine returned %d scores for %d profiles", ErrScoreLength, len(mean), len(profiles))
	}

	result := Result{Scores: make([]Score, len(mean)), Frames: n}
	for i, m := range mean {
		result.Scores[i] = Score{Profile: profiles[i], Score: m}
		s.logger.Info("score", slog.String("profile", profiles[i]), slog.Float64("score", m))
	}
	return result, nil
}
