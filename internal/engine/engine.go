// Package engine defines the contract of the external speaker-recognition
// engine and provides mock and subprocess implementations of it.
package engine

import (
	"context"
	"errors"

	"github.com/loqalabs/loqa-voiceid/internal/wave"
)

// ErrMissingAccessKey is returned when an engine is built without credentials.
var ErrMissingAccessKey = errors.New("engine access key is required")

// Progress is the engine's answer to one enrollment submission.
type Progress struct {
	Percentage int
	Feedback   Feedback
}

// Complete reports whether the profile is ready for export.
func (p Progress) Complete() bool {
	return p.Percentage == 100
}

// Profiler enrolls a single speaker.
type Profiler interface {
	SampleRate() int
	FrameLength() int
	MinEnrollSamples() int
	Enroll(ctx context.Context, pcm []int16) (Progress, error)
	Export(ctx context.Context) ([]byte, error)
	// Release frees the engine instance. It must be called exactly once.
	Release() error
}

// Recognizer scores frames against a fixed, ordered set of profiles.
type Recognizer interface {
	SampleRate() int
	FrameLength() int
	// Process returns one score per profile, in the order the profiles
	// were given to NewRecognizer.
	Process(ctx context.Context, frame wave.Frame) ([]float32, error)
	// Release frees the engine instance. It must be called exactly once.
	Release() error
}

// Factory creates engine instances.
type Factory interface {
	NewProfiler(ctx context.Context) (Profiler, error)
	NewRecognizer(ctx context.Context, profiles [][]byte) (Recognizer, error)
}
