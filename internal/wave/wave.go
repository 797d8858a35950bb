// Package wave reads WAV recordings and splits them into fixed-length
// PCM16 frames for the speaker-recognition engine.
package wave

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// RequiredBitDepth is the only sample width the engine accepts.
	RequiredBitDepth = 16
	// RequiredChannels is the only channel layout the engine accepts.
	RequiredChannels = 1
	// FormatPCM is the WAV audio format tag for linear PCM.
	FormatPCM = 1
)

// FormatRequirement is logged whenever a recording fails CheckFormat.
const FormatRequirement = "Audio file did not meet requirements. Wave file must be 16KHz, 16-bit, linear PCM (mono)."

var (
	// ErrUnsupportedFormat reports a recording rejected by CheckFormat.
	ErrUnsupportedFormat = errors.New("unsupported wave format")
	// ErrInvalidWave reports input that is not a readable WAV file.
	ErrInvalidWave = errors.New("invalid wave file")
)

// Format describes the header of a recording.
type Format struct {
	SampleRate  int
	BitDepth    int
	Channels    int
	AudioFormat int
}

// CheckFormat reports whether f is mono 16-bit linear PCM at sampleRate.
func CheckFormat(f Format, sampleRate int) bool {
	return f.SampleRate == sampleRate &&
		f.BitDepth == RequiredBitDepth &&
		f.Channels == RequiredChannels &&
		f.AudioFormat == FormatPCM
}

// Recording is a decoded WAV header with lazy access to its samples.
type Recording struct {
	format Format
	dec    *wav.Decoder
	closer io.Closer
	framed bool
}

// Open opens the WAV file at path. The caller must Close the recording.
func Open(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	rec, err := NewRecording(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec.closer = f
	return rec, nil
}

// NewRecording reads the WAV header from r. Samples are decoded on demand.
func NewRecording(r io.ReadSeeker) (*Recording, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWave, err)
		}
		return nil, ErrInvalidWave
	}
	return &Recording{
		format: Format{
			SampleRate:  int(dec.SampleRate),
			BitDepth:    int(dec.BitDepth),
			Channels:    int(dec.NumChans),
			AudioFormat: int(dec.WavAudioFormat),
		},
		dec: dec,
	}, nil
}

// Format returns the recording header.
func (r *Recording) Format() Format {
	return r.format
}

// Frames returns the single-use frame sequence of the recording. A
// recording can be framed only once; later calls return an exhausted
// sequence.
func (r *Recording) Frames(frameLength int) *FrameSequence {
	if r.framed {
		return &FrameSequence{frameLength: frameLength, used: true}
	}
	r.framed = true
	return newFrameSequence(&decoderSource{dec: r.dec}, frameLength)
}

// Close releases the underlying file, if any.
func (r *Recording) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

type decoderSource struct {
	dec *wav.Decoder
	buf audio.IntBuffer
}

func (s *decoderSource) ReadSamples(dst []int16) (int, error) {
	if cap(s.buf.Data) < len(dst) {
		s.buf.Data = make([]int, len(dst))
	}
	s.buf.Data = s.buf.Data[:len(dst)]
	n, err := s.dec.PCMBuffer(&s.buf)
	for i := 0; i < n; i++ {
		dst[i] = int16(s.buf.Data[i])
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("decode pcm: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
