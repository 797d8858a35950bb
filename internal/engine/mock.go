package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/loqalabs/loqa-voiceid/internal/config"
	"github.com/loqalabs/loqa-voiceid/internal/wave"
)

// silenceLevel is the mean absolute amplitude below which the mock engine
// treats a batch as containing no voice.
const silenceLevel = 32

var (
	mockProfileMagic = []byte("VIDM")

	errReleased         = errors.New("engine instance already released")
	errEnrollIncomplete = errors.New("enrollment incomplete, profile cannot be exported")
)

type mockFactory struct {
	cfg config.EngineConfig
}

// NewMockFactory returns a deterministic engine. Enrollment progress grows
// with the amount of voiced audio and identification scores compare mean
// amplitudes, which is enough to drive the workflows end to end.
func NewMockFactory(cfg config.EngineConfig) (Factory, error) {
	if cfg.AccessKey == "" {
		return nil, ErrMissingAccessKey
	}
	if cfg.SampleRate <= 0 || cfg.FrameLength <= 0 || cfg.MinEnrollSamples <= 0 || cfg.MockEnrollSamples <= 0 {
		return nil, fmt.Errorf("mock engine requires positive sample_rate, frame_length, min_enroll_samples and mock_enroll_samples")
	}
	return &mockFactory{cfg: cfg}, nil
}

func (f *mockFactory) NewProfiler(_ context.Context) (Profiler, error) {
	return &mockProfiler{cfg: f.cfg}, nil
}

func (f *mockFactory) NewRecognizer(_ context.Context, profiles [][]byte) (Recognizer, error) {
	if len(profiles) == 0 {
		return nil, errors.New("at least one speaker profile is required")
	}
	levels := make([]float64, len(profiles))
	for i, p := range profiles {
		level, err := decodeMockProfile(p)
		if err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		levels[i] = level
	}
	return &mockRecognizer{cfg: f.cfg, levels: levels}, nil
}

type mockProfiler struct {
	cfg        config.EngineConfig
	voicedSum  float64
	voicedLen  int
	percentage int
	released   bool
}

func (p *mockProfiler) SampleRate() int       { return p.cfg.SampleRate }
func (p *mockProfiler) FrameLength() int      { return p.cfg.FrameLength }
func (p *mockProfiler) MinEnrollSamples() int { return p.cfg.MinEnrollSamples }

func (p *mockProfiler) Enroll(_ context.Context, pcm []int16) (Progress, error) {
	if p.released {
		return Progress{}, errReleased
	}
	if len(pcm) < p.cfg.MinEnrollSamples {
		return Progress{Percentage: p.percentage, Feedback: FeedbackAudioTooShort}, nil
	}
	sum := sumAbs(pcm)
	if sum/float64(len(pcm)) < silenceLevel {
		return Progress{Percentage: p.percentage, Feedback: FeedbackNoVoiceFound}, nil
	}
	p.voicedSum += sum
	p.voicedLen += len(pcm)
	p.percentage = min(100, p.voicedLen*100/p.cfg.MockEnrollSamples)
	return Progress{Percentage: p.percentage, Feedback: FeedbackGood}, nil
}

func (p *mockProfiler) Export(_ context.Context) ([]byte, error) {
	if p.released {
		return nil, errReleased
	}
	if p.percentage < 100 {
		return nil, errEnrollIncomplete
	}
	return encodeMockProfile(p.voicedSum / float64(p.voicedLen)), nil
}

func (p *mockProfiler) Release() error {
	if p.released {
		return errReleased
	}
	p.released = true
	return nil
}

type mockRecognizer struct {
	cfg      config.EngineConfig
	levels   []float64
	released bool
}

func (r *mockRecognizer) SampleRate() int  { return r.cfg.SampleRate }
func (r *mockRecognizer) FrameLength() int { return r.cfg.FrameLength }

func (r *mockRecognizer) Process(_ context.Context, frame wave.Frame) ([]float32, error) {
	if r.released {
		return nil, errReleased
	}
	if len(frame) != r.cfg.FrameLength {
		return nil, fmt.Errorf("frame has %d samples, want %d", len(frame), r.cfg.FrameLength)
	}
	level := sumAbs(frame) / float64(len(frame))
	scores := make([]float32, len(r.levels))
	for i, target := range r.levels {
		scores[i] = float32(1 / (1 + math.Abs(level-target)/1000))
	}
	return scores, nil
}

func (r *mockRecognizer) Release() error {
	if r.released {
		return errReleased
	}
	r.released = true
	return nil
}

func sumAbs(pcm []int16) float64 {
	var sum float64
	for _, s := range pcm {
		sum += math.Abs(float64(s))
	}
	return sum
}

func encodeMockProfile(level float64) []byte {
	out := make([]byte, len(mockProfileMagic)+8)
	copy(out, mockProfileMagic)
	binary.LittleEndian.PutUint64(out[len(mockProfileMagic):], math.Float64bits(level))
	return out
}

func decodeMockProfile(data []byte) (float64, error) {
	if len(data) != len(mockProfileMagic)+8 || string(data[:len(mockProfileMagic)]) != string(mockProfileMagic) {
		return 0, errors.New("not a mock speaker profile")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data[len(mockProfileMagic):])), nil
}
