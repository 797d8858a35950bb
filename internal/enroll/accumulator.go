// Package enroll drives an engine profiler over a recording until the
// speaker profile is complete.
package enroll

import (
	"context"

	"github.com/loqalabs/loqa-voiceid/internal/engine"
	"github.com/loqalabs/loqa-voiceid/internal/wave"
)

// Enroller is the slice of engine.Profiler the accumulator submits to.
type Enroller interface {
	FrameLength() int
	MinEnrollSamples() int
	Enroll(ctx context.Context, pcm []int16) (engine.Progress, error)
}

// Accumulator buffers frames and submits them to the engine once the
// buffer holds at least MinEnrollSamples samples.
type Accumulator struct {
	enroller    Enroller
	frameLength int
	minSamples  int
	buffer      []wave.Frame
	progress    engine.Progress
	submissions int
}

func NewAccumulator(enroller Enroller) *Accumulator {
	return &Accumulator{
		enroller:    enroller,
		frameLength: enroller.FrameLength(),
		minSamples:  enroller.MinEnrollSamples(),
	}
}

// Add appends frame to the buffer. When the buffer is large enough it is
// concatenated, cleared and submitted; submitted reports whether that
// happened and progress is then the engine's answer. Otherwise progress is
// the last value observed.
func (a *Accumulator) Add(ctx context.Context, frame wave.Frame) (progress engine.Progress, submitted bool, err error) {
	a.buffer = append(a.buffer, frame)
	if len(a.buffer)*a.frameLength < a.minSamples {
		return a.progress, false, nil
	}

	pcm := concatFrames(a.buffer, a.frameLength)
	a.buffer = nil
	a.submissions++

	p, err := a.enroller.Enroll(ctx, pcm)
	if err != nil {
		return a.progress, false, err
	}
	a.progress = p
	return p, true, nil
}

// Progress returns the last progress reported by the engine.
func (a *Accumulator) Progress() engine.Progress {
	return a.progress
}

// Buffered returns the number of frames waiting for the next submission.
func (a *Accumulator) Buffered() int {
	return len(a.buffer)
}

// Submissions returns how many batches were handed to the engine.
func (a *Accumulator) Submissions() int {
	return a.submissions
}

// concatFrames lays frames out back to back in arrival order.
func concatFrames(frames []wave.Frame, frameLength int) []int16 {
	out := make([]int16, len(frames)*frameLength)
	for i, f := range frames {
		copy(out[i*frameLength:(i+1)*frameLength], f)
	}
	return out
}
