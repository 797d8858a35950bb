package wave

import (
	"errors"
	"io"
	"iter"
)

// ErrSequenceConsumed is recorded when a FrameSequence is iterated twice.
var ErrSequenceConsumed = errors.New("frame sequence already consumed")

// Frame is a fixed-length chunk of signed 16-bit samples.
type Frame []int16

type sampleSource interface {
	// ReadSamples fills a prefix of dst and returns io.EOF once drained.
	ReadSamples(dst []int16) (int, error)
}

// FrameSequence yields frames of a recording exactly once, in order.
// A trailing chunk shorter than the frame length is dropped.
type FrameSequence struct {
	src         sampleSource
	frameLength int
	used        bool
	count       int
	err         error
}

func newFrameSequence(src sampleSource, frameLength int) *FrameSequence {
	return &FrameSequence{src: src, frameLength: frameLength}
}

// FromSamples frames an in-memory sample buffer.
func FromSamples(samples []int16, frameLength int) *FrameSequence {
	return newFrameSequence(&sliceSource{samples: samples}, frameLength)
}

// All returns the frames as an iterator. Only the first call yields
// anything; check Err after the loop.
func (s *FrameSequence) All() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		if s.used {
			if s.err == nil {
				s.err = ErrSequenceConsumed
			}
			return
		}
		s.used = true
		if s.src == nil || s.frameLength <= 0 {
			return
		}
		for {
			frame := make(Frame, s.frameLength)
			n, err := readFull(s.src, frame)
			if n < s.frameLength {
				if err != nil && !errors.Is(err, io.EOF) {
					s.err = err
				}
				return
			}
			s.count++
			if !yield(frame) {
				return
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.err = err
				}
				return
			}
		}
	}
}

// Count returns the number of frames yielded so far.
func (s *FrameSequence) Count() int {
	return s.count
}

// Err returns the first decode error hit during iteration.
func (s *FrameSequence) Err() error {
	return s.err
}

func readFull(src sampleSource, dst []int16) (int, error) {
	total := 0
	for total < len(dst) {
		n, err := src.ReadSamples(dst[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

type sliceSource struct {
	samples []int16
	pos     int
}

func (s *sliceSource) ReadSamples(dst []int16) (int, error) {
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	n := copy(dst, s.samples[s.pos:])
	s.pos += n
	return n, nil
}
