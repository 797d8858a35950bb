// Package identify scores a recording against enrolled speaker profiles.
package identify

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/loqalabs/loqa-voiceid/internal/wave"
)

// ErrScoreLength reports a score vector whose length differs from the
// first one seen.
var ErrScoreLength = errors.New("score vector length changed between frames")

// Aggregator keeps running per-profile score sums. It learns the number
// of profiles from the first vector it sees.
type Aggregator struct {
	sums   []float64
	frames int
}

// Add folds one frame's score vector into the sums.
func (a *Aggregator) Add(scores []float32) error {
	if a.frames == 0 {
		a.sums = make([]float64, len(scores))
	} else if len(scores) != len(a.sums) {
		return fmt.Errorf("%w: frame %d has %d scores, want %d", ErrScoreLength, a.frames, len(scores), len(a.sums))
	}
	for i, s := range scores {
		a.sums[i] += float64(s)
	}
	a.frames++
	return nil
}

// Frames returns the number of vectors added.
func (a *Aggregator) Frames() int {
	return a.frames
}

// Mean divides every sum by the frame count. It is empty, not nil, when
// no frame was added.
func (a *Aggregator) Mean() []float64 {
	mean := make([]float64, len(a.sums))
	if a.frames == 0 {
		return mean
	}
	n := float64(a.frames)
	for i, sum := range a.sums {
		mean[i] = sum / n
	}
	return mean
}

// ProcessFunc scores a single frame.
type ProcessFunc func(ctx context.Context, frame wave.Frame) ([]float32, error)

// Aggregate runs process over every frame, in order, and returns the mean
// score vector along with the number of frames consumed.
func Aggregate(ctx context.Context, frames iter.Seq[wave.Frame], process ProcessFunc) ([]float64, int, error) {
	var agg Aggregator
	for frame := range frames {
		scores, err := process(ctx, frame)
		if err != nil {
			return nil, agg.Frames(), fmt.Errorf("process frame %d: %w", agg.Frames(), err)
		}
		if err := agg.Add(scores); err != nil {
			return nil, agg.Frames(), err
		}
	}
	return agg.Mean(), agg.Frames(), nil
}
