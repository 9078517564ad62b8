package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/parlolabs/parlo-core/internal/audio"
	"github.com/parlolabs/parlo-core/internal/config"
)

// ExecEngine shells out to an external recognizer command for each
// transcription. The command receives a WAV file via --audio and prints a
// JSON result on stdout. This keeps heavyweight STT runtimes out of the
// process without cgo, same as the capture backend.
type ExecEngine struct {
	cfg   config.RecognizerConfig
	cmd   []string
	ready atomic.Bool
}

func NewExecEngine(cfg config.RecognizerConfig) (*ExecEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognizer command is empty")
	}
	return &ExecEngine{cfg: cfg, cmd: args}, nil
}

// Load verifies the command binary and model path exist. The actual model
// load happens inside the external process per invocation.
func (e *ExecEngine) Load(ctx context.Context) error {
	if _, err := exec.LookPath(e.cmd[0]); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if e.cfg.ModelPath != "" {
		if _, err := os.Stat(e.cfg.ModelPath); err != nil {
			return fmt.Errorf("%w: model path: %v", ErrEngineUnavailable, err)
		}
	}
	e.ready.Store(true)
	return nil
}

func (e *ExecEngine) Ready() bool { return e.ready.Load() }

func (e *ExecEngine) Close() error { return nil }

func (e *ExecEngine) NewSession(ctx context.Context, sampleRate int) (Session, error) {
	if !e.ready.Load() {
		if err := e.Load(ctx); err != nil {
			return nil, err
		}
	}
	sessCtx, cancel := context.WithCancel(ctx)
	s := &execSession{
		engine:     e,
		ctx:        sessCtx,
		cancel:     cancel,
		sampleRate: sampleRate,
		partials:   make(chan string, 4),
		final:      make(chan Result, 1),
	}
	return s, nil
}

type execSession struct {
	engine     *ExecEngine
	ctx        context.Context
	cancel     context.CancelFunc
	sampleRate int

	mu          sync.Mutex
	pcm         []int16
	flushed     bool
	inflight    bool
	lastPartial time.Time

	partials chan string
	final    chan Result

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *execSession) Partials() <-chan string { return s.partials }

func (s *execSession) Final() <-chan Result { return s.final }

func (s *execSession) Accept(frame audio.Frame) {
	s.mu.Lock()
	if s.flushed {
		s.mu.Unlock()
		return
	}
	s.pcm = append(s.pcm, frame...)
	runPartial := s.shouldRunPartialLocked()
	var snapshot []int16
	if runPartial {
		snapshot = append([]int16(nil), s.pcm...)
		s.inflight = true
		s.lastPartial = time.Now()
	}
	s.mu.Unlock()

	if runPartial {
		s.wg.Add(1)
		go s.runPartial(snapshot)
	}
}

// shouldRunPartialLocked applies the partial cadence with an inflight guard
// so at most one transcription runs at a time. Caller holds s.mu.
func (s *execSession) shouldRunPartialLocked() bool {
	interval := time.Duration(s.engine.cfg.PartialEveryMS) * time.Millisecond
	if interval <= 0 || s.inflight {
		return false
	}
	if s.lastPartial.IsZero() {
		// Let the first interval of audio accumulate before asking.
		s.lastPartial = time.Now()
		return false
	}
	return time.Since(s.lastPartial) >= interval
}

func (s *execSession) runPartial(pcm []int16) {
	defer s.wg.Done()
	result, err := s.engine.transcribe(s.ctx, pcm, s.sampleRate, false)

	s.mu.Lock()
	s.inflight = false
	flushed := s.flushed
	s.mu.Unlock()

	if err != nil || flushed || result.Text == "" {
		return
	}
	select {
	case s.partials <- result.Text:
	default:
		// Consumer is behind; drop the stale hypothesis.
	}
}

func (s *execSession) Flush() {
	s.mu.Lock()
	if s.flushed {
		s.mu.Unlock()
		return
	}
	s.flushed = true
	snapshot := append([]int16(nil), s.pcm...)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.final)
		result, err := s.engine.transcribe(s.ctx, snapshot, s.sampleRate, true)
		if err != nil {
			return
		}
		s.final <- result
	}()
}

func (s *execSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wasFlushed := s.flushed
		s.flushed = true
		s.mu.Unlock()
		s.cancel()
		s.wg.Wait()
		close(s.partials)
		if !wasFlushed {
			close(s.final)
		}
	})
	return nil
}

type execWireResult struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`
}

func (e *ExecEngine) transcribe(ctx context.Context, pcm []int16, sampleRate int, final bool) (Result, error) {
	if len(pcm) == 0 {
		return Result{}, nil
	}
	file, err := os.CreateTemp("", "parlo_stt_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	name := file.Name()
	defer os.Remove(name)

	if err := audio.WriteWAV(file, pcm, sampleRate); err != nil {
		file.Close()
		return Result{}, err
	}
	if err := file.Close(); err != nil {
		return Result{}, fmt.Errorf("close wav file: %w", err)
	}

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", name)
	if e.cfg.ModelPath != "" {
		args = append(args, "--model", e.cfg.ModelPath)
	}
	if e.cfg.Language != "" {
		args = append(args, "--language", e.cfg.Language)
	}
	if !final {
		args = append(args, "--partial")
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("recognizer command failed: %w: %s", err, stderr.String())
	}

	var resp execWireResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode recognizer response: %w", err)
	}
	return Result{Text: resp.Text, Words: resp.Words}, nil
}
