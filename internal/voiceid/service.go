package voiceid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-voiceid/internal/bus"
	"github.com/loqalabs/loqa-voiceid/internal/engine"
	"github.com/loqalabs/loqa-voiceid/internal/protocol"
	"github.com/loqalabs/loqa-voiceid/internal/wave"
	"github.com/nats-io/nats.go"
)

// Service answers enrollment and identification requests on the bus. Runs
// are handled one at a time.
type Service struct {
	bus     *bus.Client
	manager *Manager
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	runMu   sync.Mutex
	subs    []*nats.Subscription
	ready   bool
}

func NewService(parent context.Context, busClient *bus.Client, manager *Manager) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:     busClient,
		manager: manager,
		logger:  busClient.Logger().With(slog.String("component", "voiceid-service")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Service) Start() error {
	handlers := map[string]nats.MsgHandler{
		protocol.SubjectEnroll:   s.handleEnroll,
		protocol.SubjectIdentify: s.handleIdentify,
		protocol.SubjectProfiles: s.handleProfiles,
		protocol.SubjectSamples:  s.handleSampleUpload,
	}
	for subject, handler := range handlers {
		sub, err := s.bus.Conn().Subscribe(subject, handler)
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.ready = true
	s.logger.Info("voiceid service listening")
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.unsubscribe()
}

func (s *Service) Healthy() bool {
	return s.ready && s.bus.Healthy()
}

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) handleEnroll(msg *nats.Msg) {
	var req protocol.EnrollRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode enroll request", slogError(err))
		s.reply(msg, protocol.EnrollResponse{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	var opts []RunOption
	if req.RunID != "" {
		opts = append(opts, WithRunID(req.RunID))
	}
	runID := req.RunID
	observer := func(p engine.Progress) {
		if runID == "" {
			return
		}
		progress := protocol.EnrollProgress{
			RunID:      runID,
			Profile:    req.Profile,
			Percentage: p.Percentage,
			Feedback:   p.Feedback.String(),
			Message:    p.Feedback.Message(),
		}
		if err := s.bus.PublishJSON(protocol.EnrollProgressSubject(runID), progress); err != nil {
			s.logger.Warn("failed to publish enroll progress", slogError(err))
		}
	}

	out, err := s.manager.CreateProfile(s.ctx, req.Sample, req.Profile, observer, opts...)
	resp := protocol.EnrollResponse{
		RunID:       out.RunID,
		Profile:     out.Profile,
		Percentage:  out.Progress.Percentage,
		Submissions: out.Submissions,
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.State = out.State.String()
		resp.Complete = out.Progress.Complete()
		resp.Message = out.Message()
		if out.Submissions > 0 {
			resp.Feedback = out.Progress.Feedback.String()
		}
	}
	s.reply(msg, resp)
}

func (s *Service) handleIdentify(msg *nats.Msg) {
	var req protocol.IdentifyRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode identify request", slogError(err))
		s.reply(msg, protocol.IdentifyResponse{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	out, err := s.manager.DetectProfile(s.ctx, req.Sample)
	resp := protocol.IdentifyResponse{
		RunID:  out.RunID,
		Scores: make([]protocol.ProfileScore, 0, len(out.Scores)),
		Frames: out.Frames,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	for _, sc := range out.Scores {
		resp.Scores = append(resp.Scores, protocol.ProfileScore{Profile: sc.Profile, Score: sc.Score})
	}
	s.reply(msg, resp)
}

func (s *Service) handleProfiles(msg *nats.Msg) {
	var resp protocol.ProfilesResponse
	names, err := s.manager.Profiles(s.ctx)
	if err != nil {
		resp.Error = err.Error()
	}
	resp.Profiles = names
	s.reply(msg, resp)
}

func (s *Service) handleSampleUpload(msg *nats.Msg) {
	var req protocol.SampleUpload
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode sample upload", slogError(err))
		s.reply(msg, protocol.SampleUploadResponse{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	pcm, err := wave.DecodePCM(req.PCM)
	if err != nil {
		s.reply(msg, protocol.SampleUploadResponse{Error: err.Error()})
		return
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	resp := protocol.SampleUploadResponse{Samples: len(pcm)}
	resp.Sample, err = s.manager.SaveSample(s.ctx, req.Name, pcm, req.SampleRate)
	if err != nil {
		resp.Error = err.Error()
	}
	s.reply(msg, resp)
}

func (s *Service) reply(msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	if err := s.bus.PublishJSON(msg.Reply, v); err != nil {
		s.logger.Warn("failed to send reply", slog.String("subject", msg.Subject), slogError(err))
	}
}
