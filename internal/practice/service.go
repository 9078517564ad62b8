// Package practice exposes the scoring pipeline on the bus: it scores
// submitted attempts, drives runtime-local recording attempts and persists
// every analysis.
package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parlolabs/parlo-core/internal/audio"
	"github.com/parlolabs/parlo-core/internal/bus"
	"github.com/parlolabs/parlo-core/internal/config"
	"github.com/parlolabs/parlo-core/internal/pitch"
	"github.com/parlolabs/parlo-core/internal/protocol"
	"github.com/parlolabs/parlo-core/internal/recognizer"
	"github.com/parlolabs/parlo-core/internal/record"
	"github.com/parlolabs/parlo-core/internal/resultstore"
	"github.com/parlolabs/parlo-core/internal/score"
)

// Service wires attempt scoring and recording control onto the bus.
type Service struct {
	cfg      config.Config
	bus      *bus.Client
	scorer   *score.Engine
	store    *resultstore.Store
	engine   recognizer.Engine
	device   audio.Device
	detector pitch.Detector
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*record.Orchestrator
	ready  bool

	attemptsScored metric.Int64Counter
	overallScores  metric.Int64Histogram
}

func NewService(parent context.Context, cfg config.Config, busClient *bus.Client, scorer *score.Engine, store *resultstore.Store, engine recognizer.Engine, device audio.Device, detector pitch.Detector, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		scorer:   scorer,
		store:    store,
		engine:   engine,
		device:   device,
		detector: detector,
		logger:   logger.With(slog.String("component", "practice")),
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]*record.Orchestrator),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Practice.Enabled {
		return nil
	}
	if err := s.initMetrics(); err != nil {
		s.logger.Warn("practice metrics unavailable", slogError(err))
	}

	subjects := map[string]nats.MsgHandler{
		protocol.SubjectPracticeAttempt: s.handleAttempt,
		protocol.SubjectRecordStart:     s.handleRecordStart,
		protocol.SubjectRecordStop:      s.handleRecordStop,
	}
	for subject, handler := range subjects {
		sub, err := s.bus.Conn().Subscribe(subject, handler)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	// Warm the recognizer in the background so the first record.start does
	// not pay for model load.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		record.PreloadModel(s.ctx, s.engine, s.logger)
	}()

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.logger.Info("practice service started")
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.mu.Lock()
	for _, orch := range s.active {
		orch.Stop()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	if !s.cfg.Practice.Enabled {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Service) initMetrics() error {
	meter := otel.Meter("github.com/parlolabs/parlo-core/runtime")
	counter, err := meter.Int64Counter("parlo.practice.attempts",
		metric.WithDescription("Scored practice attempts"))
	if err != nil {
		return err
	}
	hist, err := meter.Int64Histogram("parlo.practice.overall_score",
		metric.WithDescription("Overall score distribution"))
	if err != nil {
		return err
	}
	s.attemptsScored = counter
	s.overallScores = hist
	return nil
}

func (s *Service) handleAttempt(msg *nats.Msg) {
	var req protocol.AttemptRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode attempt request", slogError(err))
		return
	}
	s.scoreAttempt(req, msg.Reply)
}

// scoreAttempt runs the scorer, persists the analysis and publishes it on
// the session's analysis subject, plus the reply subject when present.
func (s *Service) scoreAttempt(req protocol.AttemptRequest, reply string) {
	if req.AttemptID == "" {
		req.AttemptID = uuid.NewString()
	}

	analysis := s.scorer.Analyze(
		req.ExpectedText,
		req.Transcript,
		toRecognizerWords(req.Words),
		toPitchPoints(req.Contour),
		toPitchPoints(req.ReferenceContour),
	)

	result := protocol.AnalysisResult{
		AttemptID:       req.AttemptID,
		SessionID:       req.SessionID,
		ItemID:          req.ItemID,
		ExpectedText:    req.ExpectedText,
		Transcript:      req.Transcript,
		OverallScore:    analysis.OverallScore,
		AccuracyScore:   analysis.AccuracyScore,
		ConfidenceScore: analysis.ConfidenceScore,
		IntonationScore: analysis.IntonationScore,
		FluencyScore:    analysis.FluencyScore,
		Words:           toWordScores(analysis.Words),
		HasSpeechData:   analysis.HasSpeechData,
		Duration:        req.Duration,
		Timestamp:       time.Now().UTC(),
	}

	s.recordMetrics(result)
	s.persist(req, result)
	s.publish(result, reply)
}

func (s *Service) recordMetrics(result protocol.AnalysisResult) {
	if s.attemptsScored == nil {
		return
	}
	band := s.scorer.Band(result.OverallScore)
	s.attemptsScored.Add(s.ctx, 1, metric.WithAttributes(attribute.String("band", band)))
	s.overallScores.Record(s.ctx, int64(result.OverallScore))
}

func (s *Service) persist(req protocol.AttemptRequest, result protocol.AnalysisResult) {
	if s.store == nil {
		return
	}
	if err := s.store.AppendSession(s.ctx, req.SessionID, ""); err != nil {
		s.logger.Warn("failed to persist session", slogError(err))
		return
	}
	wordsJSON, err := json.Marshal(result.Words)
	if err != nil {
		s.logger.Warn("failed to marshal word feedback", slogError(err))
		wordsJSON = nil
	}
	attempt := resultstore.Attempt{
		AttemptID:       result.AttemptID,
		SessionID:       result.SessionID,
		ItemID:          result.ItemID,
		ExpectedText:    result.ExpectedText,
		Transcript:      result.Transcript,
		OverallScore:    result.OverallScore,
		AccuracyScore:   result.AccuracyScore,
		ConfidenceScore: result.ConfidenceScore,
		IntonationScore: result.IntonationScore,
		FluencyScore:    result.FluencyScore,
		WordsJSON:       wordsJSON,
		Duration:        result.Duration,
	}
	if err := s.store.AppendAttempt(s.ctx, attempt); err != nil {
		s.logger.Warn("failed to persist attempt", slogError(err))
	}
}

func (s *Service) publish(result protocol.AnalysisResult, reply string) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to marshal analysis", slogError(err))
		return
	}
	if reply != "" {
		if err := s.bus.Conn().Publish(reply, data); err != nil {
			s.logger.Warn("failed to reply with analysis", slogError(err))
		}
	}
	if err := s.bus.Conn().Publish(protocol.AnalysisSubject(result.SessionID), data); err != nil {
		s.logger.Warn("failed to publish analysis", slogError(err))
	}
}

func (s *Service) handleRecordStart(msg *nats.Msg) {
	var req protocol.RecordStart
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode record start", slogError(err))
		return
	}
	if s.device == nil || !s.cfg.Capture.Enabled {
		s.logger.Warn("record start ignored, capture disabled",
			slog.String("session_id", req.SessionID))
		return
	}

	orch := record.New(record.Options{
		Device:     s.device,
		Engine:     s.engine,
		Detector:   s.detector,
		SampleRate: s.cfg.Capture.SampleRate,
		Pitch:      s.cfg.Pitch,
		Record:     s.cfg.Record,
		Logger:     s.logger,
	})

	s.mu.Lock()
	if _, exists := s.active[req.SessionID]; exists {
		s.mu.Unlock()
		s.logger.Warn("record start ignored, attempt already active",
			slog.String("session_id", req.SessionID))
		return
	}
	s.active[req.SessionID] = orch
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, req.SessionID)
			s.mu.Unlock()
		}()

		result, err := orch.Run(s.ctx)
		if err != nil {
			s.logger.Warn("recording attempt failed",
				slog.String("session_id", req.SessionID), slogError(err))
			return
		}
		s.scoreAttempt(protocol.AttemptRequest{
			SessionID:    req.SessionID,
			ItemID:       req.ItemID,
			ExpectedText: req.ExpectedText,
			Transcript:   result.Transcript,
			Words:        fromRecognizerWords(result.Words),
			Contour:      fromPitchPoints(result.Contour),
			Duration:     result.Duration,
			Timestamp:    time.Now().UTC(),
		}, "")
	}()
}

func (s *Service) handleRecordStop(msg *nats.Msg) {
	var req protocol.RecordStop
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode record stop", slogError(err))
		return
	}
	s.mu.Lock()
	orch := s.active[req.SessionID]
	s.mu.Unlock()
	if orch == nil {
		return
	}
	orch.Stop()
}

func toWordScores(in []score.WordResult) []protocol.WordScore {
	if len(in) == 0 {
		return nil
	}
	out := make([]protocol.WordScore, len(in))
	for i, w := range in {
		out[i] = protocol.WordScore{Word: w.Word, Score: w.Score, Confidence: w.Confidence, Band: w.Band}
	}
	return out
}

func toRecognizerWords(in []protocol.WordTiming) []recognizer.Word {
	if len(in) == 0 {
		return nil
	}
	out := make([]recognizer.Word, len(in))
	for i, w := range in {
		out[i] = recognizer.Word{Word: w.Word, Confidence: w.Confidence, Start: w.Start, End: w.End}
	}
	return out
}

func fromRecognizerWords(in []recognizer.Word) []protocol.WordTiming {
	if len(in) == 0 {
		return nil
	}
	out := make([]protocol.WordTiming, len(in))
	for i, w := range in {
		out[i] = protocol.WordTiming{Word: w.Word, Confidence: w.Confidence, Start: w.Start, End: w.End}
	}
	return out
}

func toPitchPoints(in []protocol.PitchPoint) []pitch.Point {
	if len(in) == 0 {
		return nil
	}
	out := make([]pitch.Point, len(in))
	for i, p := range in {
		out[i] = pitch.Point{Time: p.Time, Pitch: p.Pitch, Clarity: p.Clarity}
	}
	return out
}

func fromPitchPoints(in []pitch.Point) []protocol.PitchPoint {
	if len(in) == 0 {
		return nil
	}
	out := make([]protocol.PitchPoint, len(in))
	for i, p := range in {
		out[i] = protocol.PitchPoint{Time: p.Time, Pitch: p.Pitch, Clarity: p.Clarity}
	}
	return out
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
