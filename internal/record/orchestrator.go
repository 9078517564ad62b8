// Package record orchestrates one practice recording attempt: microphone
// capture fanned out to the recognizer session, the WAV recorder and the
// pitch tracker, then a joint finalize that always resolves to a result.
package record

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/parlolabs/parlo-core/internal/audio"
	"github.com/parlolabs/parlo-core/internal/config"
	"github.com/parlolabs/parlo-core/internal/pitch"
	"github.com/parlolabs/parlo-core/internal/recognizer"
)

// State tracks an attempt through its lifecycle. Transitions only move
// forward; Stop in any state steers the attempt toward StateResolved.
type State int32

const (
	StateIdle State = iota
	StateModelLoading
	StateCapturing
	StateFinalizing
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateModelLoading:
		return "model_loading"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// fallbackConfidence is assigned to words synthesized from a partial
// transcript when the recognizer never delivered a final result.
const fallbackConfidence = 0.3

// Result is what one recording attempt resolves to. All fields may be
// empty: a stop before capture yields the zero Result with no error.
type Result struct {
	Transcript string
	Words      []recognizer.Word
	Blob       []byte
	Duration   float64
	Contour    []pitch.Point
}

// Options wires an orchestrator. Either Device or Stream must be set; a
// caller-supplied Stream is borrowed and never closed by the orchestrator,
// while streams opened from Device are always closed before resolving.
type Options struct {
	Device     audio.Device
	Stream     audio.Stream
	Engine     recognizer.Engine
	Detector   pitch.Detector
	SampleRate int
	Pitch      config.PitchConfig
	Record     config.RecordConfig
	Logger     *slog.Logger
}

// Orchestrator runs a single recording attempt. Each attempt needs a fresh
// orchestrator; Run can only be called once.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	started bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "record"))
	return &Orchestrator{
		opts:   opts,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Stop requests the end of capture. Safe to call from any state, any
// number of times, from any goroutine. A stop before capture begins makes
// the attempt resolve to an empty result without touching the microphone.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

func (o *Orchestrator) stopped() bool {
	select {
	case <-o.stopCh:
		return true
	default:
		return false
	}
}

// PreloadModel warms the recognizer ahead of the first attempt so model
// load time does not eat into capture.
func PreloadModel(ctx context.Context, engine recognizer.Engine, logger *slog.Logger) {
	if engine == nil || engine.Ready() {
		return
	}
	if err := engine.Load(ctx); err != nil {
		logger.Warn("recognizer preload failed", slog.String("error", err.Error()))
	}
}

// Run executes the attempt and blocks until it resolves. Capture setup
// failures (microphone permission, unsupported runtime) are fatal and
// return an error with no result; recognizer failures degrade the result
// instead of failing the attempt.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return Result{}, fmt.Errorf("record: attempt already ran")
	}
	o.started = true
	o.state = StateModelLoading
	o.mu.Unlock()

	defer o.setState(StateResolved)

	engine := o.opts.Engine
	if engine != nil && !engine.Ready() {
		if err := engine.Load(ctx); err != nil {
			o.logger.Warn("recognizer load failed, continuing without recognition",
				slog.String("error", err.Error()))
			engine = nil
		}
	}

	// A stop that lands before capture starts resolves without ever
	// acquiring the microphone.
	if o.stopped() || ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	stream, owned, err := o.openStream()
	if err != nil {
		return Result{}, err
	}
	if owned {
		defer stream.Close()
	}

	var session recognizer.Session
	if engine != nil {
		session, err = engine.NewSession(ctx, stream.SampleRate())
		if err != nil {
			o.logger.Warn("recognizer session failed, continuing without recognition",
				slog.String("error", err.Error()))
			session = nil
		} else {
			defer session.Close()
		}
	}

	var latest audio.LatestFrame
	var tracker *pitch.Tracker
	if o.opts.Pitch.Enabled && o.opts.Detector != nil {
		tracker = pitch.Track(ctx, o.opts.Detector, &latest, stream.SampleRate(), pitch.TrackerConfig{
			ClarityThreshold: o.opts.Pitch.ClarityThreshold,
			MinPitchHz:       o.opts.Pitch.MinPitchHz,
			MaxPitchHz:       o.opts.Pitch.MaxPitchHz,
			SampleInterval:   time.Duration(o.opts.Pitch.SampleIntervalMS) * time.Millisecond,
		})
	}

	lastPartial := o.watchPartials(session)

	o.setState(StateCapturing)
	recorder := audio.NewRecorder(stream.SampleRate())
	o.capture(ctx, stream, owned, recorder, session, &latest)

	o.setState(StateFinalizing)
	result := Result{Duration: recorder.Duration()}

	// The latest-frame buffer stops updating once capture ends, so the
	// tracker must stop now or it would keep sampling the stale last frame
	// for the whole finalize window.
	if tracker != nil {
		result.Contour = tracker.Stop()
	}

	// Blob encoding and transcript finalization run under independent
	// timeouts; neither may block the other indefinitely.
	blobCh := o.encodeBlob(recorder)
	result.Transcript, result.Words = o.finalize(ctx, session, lastPartial, recorder.Duration())
	result.Blob = o.awaitBlob(blobCh)
	return result, nil
}

func (o *Orchestrator) encodeBlob(recorder *audio.Recorder) <-chan []byte {
	ch := make(chan []byte, 1)
	go func() {
		blob, err := recorder.Blob()
		if err != nil {
			o.logger.Warn("audio blob encoding failed", slog.String("error", err.Error()))
			ch <- nil
			return
		}
		ch <- blob
	}()
	return ch
}

func (o *Orchestrator) awaitBlob(ch <-chan []byte) []byte {
	timeout := time.Duration(o.opts.Record.BlobTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		return <-ch
	}
	select {
	case blob := <-ch:
		return blob
	case <-time.After(timeout):
		o.logger.Warn("audio blob encoding timed out", slog.Duration("timeout", timeout))
		return nil
	}
}

func (o *Orchestrator) openStream() (audio.Stream, bool, error) {
	if o.opts.Stream != nil {
		return o.opts.Stream, false, nil
	}
	if o.opts.Device == nil {
		return nil, false, fmt.Errorf("record: no capture device configured")
	}
	stream, err := o.opts.Device.Open(o.opts.SampleRate)
	if err != nil {
		return nil, false, fmt.Errorf("open capture stream: %w", err)
	}
	return stream, true, nil
}

// capture fans frames out to the recorder, the recognizer session and the
// pitch tracker's latest-frame buffer. It returns when the stream ends
// naturally, Stop is called, the context dies or the attempt outlives its
// duration cap.
func (o *Orchestrator) capture(ctx context.Context, stream audio.Stream, owned bool, recorder *audio.Recorder, session recognizer.Session, latest *audio.LatestFrame) {
	var deadline <-chan time.Time
	if o.opts.Record.MaxDurationMS > 0 {
		timer := time.NewTimer(time.Duration(o.opts.Record.MaxDurationMS) * time.Millisecond)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case frame, ok := <-stream.Frames():
			if !ok {
				return
			}
			recorder.Append(frame)
			latest.Store(frame)
			if session != nil {
				session.Accept(frame.Clone())
			}
		case <-o.stopCh:
			if owned {
				stream.Close()
				o.drain(stream, recorder, session, latest)
			}
			return
		case <-deadline:
			o.logger.Warn("attempt hit duration cap, stopping capture")
			o.Stop()
		case <-ctx.Done():
			return
		}
	}
}

// drain consumes frames still buffered between Close and the channel
// closing so the tail of the utterance is not lost.
func (o *Orchestrator) drain(stream audio.Stream, recorder *audio.Recorder, session recognizer.Session, latest *audio.LatestFrame) {
	for frame := range stream.Frames() {
		recorder.Append(frame)
		latest.Store(frame)
		if session != nil {
			session.Accept(frame.Clone())
		}
	}
}

// watchPartials keeps the most recent partial hypothesis, the fallback
// transcript when the recognizer never finalizes.
func (o *Orchestrator) watchPartials(session recognizer.Session) func() string {
	if session == nil {
		return func() string { return "" }
	}
	var mu sync.Mutex
	var last string
	go func() {
		for p := range session.Partials() {
			mu.Lock()
			last = p
			mu.Unlock()
		}
	}()
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

// finalize flushes the recognizer and waits for its final result, falling
// back to the last partial when the recognizer times out or fails.
func (o *Orchestrator) finalize(ctx context.Context, session recognizer.Session, lastPartial func() string, duration float64) (string, []recognizer.Word) {
	if session == nil {
		return "", nil
	}

	if grace := time.Duration(o.opts.Record.FlushGraceMS) * time.Millisecond; grace > 0 {
		select {
		case <-time.After(grace):
		case <-ctx.Done():
		}
	}
	session.Flush()

	timeout := time.Duration(o.opts.Record.FinalizeTimeoutMS) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result, ok := <-session.Final():
		if ok {
			return result.Text, result.Words
		}
		o.logger.Warn("recognizer failed to finalize, using last partial")
	case <-timer.C:
		o.logger.Warn("recognizer finalize timed out, using last partial",
			slog.Duration("timeout", timeout))
	case <-ctx.Done():
	}

	partial := lastPartial()
	return partial, synthesizeWords(partial, duration)
}

// synthesizeWords fabricates evenly spaced word timings for a partial
// transcript so downstream scoring still has per-word data to work with.
func synthesizeWords(text string, duration float64) []recognizer.Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	if duration <= 0 {
		duration = float64(len(fields)) * 0.4
	}
	step := duration / float64(len(fields))
	words := make([]recognizer.Word, len(fields))
	for i, f := range fields {
		words[i] = recognizer.Word{
			Word:       f,
			Confidence: fallbackConfidence,
			Start:      float64(i) * step,
			End:        float64(i+1) * step,
		}
	}
	return words
}
