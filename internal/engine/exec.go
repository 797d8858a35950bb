package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loqalabs/loqa-voiceid/internal/config"
	"github.com/loqalabs/loqa-voiceid/internal/wave"
	"github.com/mattn/go-shellwords"
)

// The exec engine talks to a long-lived bridge process, one per engine
// instance, exchanging one JSON object per line on stdin and stdout.

const (
	opInit    = "init"
	opEnroll  = "enroll"
	opExport  = "export"
	opProcess = "process"
	opRelease = "release"

	roleProfiler   = "profiler"
	roleRecognizer = "recognizer"

	defaultReleaseTimeout = 5 * time.Second
)

type execRequest struct {
	Op        string   `json:"op"`
	Role      string   `json:"role,omitempty"`
	AccessKey string   `json:"access_key,omitempty"`
	Profiles  [][]byte `json:"profiles,omitempty"`
	PCM       []byte   `json:"pcm,omitempty"`
}

type execResponse struct {
	Error            string    `json:"error,omitempty"`
	SampleRate       int       `json:"sample_rate,omitempty"`
	FrameLength      int       `json:"frame_length,omitempty"`
	MinEnrollSamples int       `json:"min_enroll_samples,omitempty"`
	Percentage       int       `json:"percentage,omitempty"`
	Feedback         string    `json:"feedback,omitempty"`
	Profile          []byte    `json:"profile,omitempty"`
	Scores           []float32 `json:"scores,omitempty"`
}

type execFactory struct {
	cmd            []string
	accessKey      string
	releaseTimeout time.Duration
}

// NewExecFactory returns a Factory backed by the bridge command in cfg.
func NewExecFactory(cfg config.EngineConfig) (Factory, error) {
	if cfg.AccessKey == "" {
		return nil, ErrMissingAccessKey
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	return &execFactory{cmd: args, accessKey: cfg.AccessKey, releaseTimeout: defaultReleaseTimeout}, nil
}

func (f *execFactory) NewProfiler(ctx context.Context) (Profiler, error) {
	proc, err := f.start(ctx, execRequest{Op: opInit, Role: roleProfiler, AccessKey: f.accessKey})
	if err != nil {
		return nil, err
	}
	if proc.info.SampleRate <= 0 || proc.info.FrameLength <= 0 || proc.info.MinEnrollSamples <= 0 {
		_ = proc.Release()
		return nil, fmt.Errorf("engine reported invalid profiler properties %+v", proc.info)
	}
	return &execProfiler{proc}, nil
}

func (f *execFactory) NewRecognizer(ctx context.Context, profiles [][]byte) (Recognizer, error) {
	proc, err := f.start(ctx, execRequest{Op: opInit, Role: roleRecognizer, AccessKey: f.accessKey, Profiles: profiles})
	if err != nil {
		return nil, err
	}
	if proc.info.SampleRate <= 0 || proc.info.FrameLength <= 0 {
		_ = proc.Release()
		return nil, fmt.Errorf("engine reported invalid recognizer properties %+v", proc.info)
	}
	return &execRecognizer{proc}, nil
}

// execProcess is one bridge process. It lives as long as the context it
// was started with; cancelling that context kills it.
type execProcess struct {
	ctx            context.Context
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	enc            *json.Encoder
	dec            *json.Decoder
	info           execResponse
	releaseTimeout time.Duration
	mu             sync.Mutex
	broken         error
	released       bool
}

func (f *execFactory) start(ctx context.Context, init execRequest) (*execProcess, error) {
	args := f.cmd
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine command: %w", err)
	}
	p := &execProcess{
		ctx:            ctx,
		cmd:            cmd,
		stdin:          stdin,
		enc:            json.NewEncoder(stdin),
		dec:            json.NewDecoder(stdout),
		releaseTimeout: f.releaseTimeout,
	}
	info, err := p.call(ctx, init)
	if err != nil {
		p.kill()
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	p.info = info
	return p, nil
}

func (p *execProcess) call(ctx context.Context, req execRequest) (execResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return execResponse{}, errReleased
	}
	if p.broken != nil {
		return execResponse{}, p.broken
	}
	if err := ctx.Err(); err != nil {
		return execResponse{}, err
	}
	if err := p.ctx.Err(); err != nil {
		return execResponse{}, fmt.Errorf("engine process stopped: %w", err)
	}
	if err := p.enc.Encode(req); err != nil {
		p.broken = fmt.Errorf("write engine request: %w", err)
		return execResponse{}, p.broken
	}

	type result struct {
		resp execResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var resp execResponse
		err := p.dec.Decode(&resp)
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		p.broken = fmt.Errorf("engine %s call abandoned: %w", req.Op, ctx.Err())
		_ = p.cmd.Process.Kill()
		return execResponse{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			p.broken = fmt.Errorf("read engine response: %w", r.err)
			return execResponse{}, p.broken
		}
		if r.resp.Error != "" {
			return execResponse{}, fmt.Errorf("engine %s failed: %s", req.Op, r.resp.Error)
		}
		return r.resp, nil
	}
}

// Release asks the bridge to free the engine and waits for it to exit. A
// bridge that does not answer or exit within the release timeout is killed.
func (p *execProcess) Release() error {
	p.mu.Lock()
	broken, released := p.broken, p.released
	p.mu.Unlock()
	if released {
		return errReleased
	}
	if broken == nil && p.ctx.Err() != nil {
		broken = p.ctx.Err()
	}

	var callErr error
	if broken == nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.releaseTimeout)
		_, callErr = p.call(ctx, execRequest{Op: opRelease})
		cancel()
		if callErr != nil {
			callErr = fmt.Errorf("release engine: %w", callErr)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	_ = p.stdin.Close()
	waitErr := p.waitOrKill()
	if broken != nil {
		// killed or lost earlier; the exit status carries no news
		return nil
	}
	if callErr != nil {
		return callErr
	}
	return waitErr
}

// waitOrKill reaps the process, killing it if it outlives the release
// timeout.
func (p *execProcess) waitOrKill() error {
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	timer := time.NewTimer(p.releaseTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = p.cmd.Process.Kill()
		<-done
		return fmt.Errorf("engine did not exit within %s", p.releaseTimeout)
	}
}

func (p *execProcess) kill() {
	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
	_ = p.cmd.Wait()
	p.released = true
}

type execProfiler struct {
	*execProcess
}

func (p *execProfiler) SampleRate() int       { return p.info.SampleRate }
func (p *execProfiler) FrameLength() int      { return p.info.FrameLength }
func (p *execProfiler) MinEnrollSamples() int { return p.info.MinEnrollSamples }

func (p *execProfiler) Enroll(ctx context.Context, pcm []int16) (Progress, error) {
	resp, err := p.call(ctx, execRequest{Op: opEnroll, PCM: wave.EncodePCM(pcm)})
	if err != nil {
		return Progress{}, err
	}
	feedback, err := ParseFeedback(resp.Feedback)
	if err != nil {
		return Progress{}, err
	}
	return Progress{Percentage: resp.Percentage, Feedback: feedback}, nil
}

func (p *execProfiler) Export(ctx context.Context) ([]byte, error) {
	resp, err := p.call(ctx, execRequest{Op: opExport})
	if err != nil {
		return nil, err
	}
	if len(resp.Profile) == 0 {
		return nil, errors.New("engine exported an empty profile")
	}
	return resp.Profile, nil
}

type execRecognizer struct {
	*execProcess
}

func (r *execRecognizer) SampleRate() int  { return r.info.SampleRate }
func (r *execRecognizer) FrameLength() int { return r.info.FrameLength }

func (r *execRecognizer) Process(ctx context.Context, frame wave.Frame) ([]float32, error) {
	resp, err := r.call(ctx, execRequest{Op: opProcess, PCM: wave.EncodePCM(frame)})
	if err != nil {
		return nil, err
	}
	return resp.Scores, nil
}
