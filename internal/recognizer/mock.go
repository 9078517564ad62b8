package recognizer

import (
	"context"
	"sync"
	"time"

	"github.com/parlolabs/parlo-core/internal/audio"
)

// MockEngine is a scripted recognizer for tests and for running the
// runtime without a real STT backend. Each session replays the configured
// partials while audio flows and delivers ScriptedResult on Flush.
type MockEngine struct {
	// LoadErr, when set, is returned from Load and marks the engine
	// unavailable.
	LoadErr error
	// LoadDelay makes Load block, simulating model warm-up.
	LoadDelay time.Duration
	// ScriptedResult is delivered as the final result of every session.
	ScriptedResult Result
	// ScriptedPartials are emitted one per accepted frame, in order.
	ScriptedPartials []string
	// SuppressFinal keeps the final channel open with no result, forcing
	// callers onto their timeout path.
	SuppressFinal bool
	// FailFinal closes the final channel without a result, simulating a
	// recognition failure.
	FailFinal bool

	mu    sync.Mutex
	ready bool
	loads int
}

func (e *MockEngine) Load(ctx context.Context) error {
	if e.LoadDelay > 0 {
		select {
		case <-time.After(e.LoadDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads++
	if e.LoadErr != nil {
		return e.LoadErr
	}
	e.ready = true
	return nil
}

func (e *MockEngine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// LoadCount reports how many times Load ran. Used to assert preloading.
func (e *MockEngine) LoadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads
}

func (e *MockEngine) Close() error { return nil }

func (e *MockEngine) NewSession(ctx context.Context, sampleRate int) (Session, error) {
	if err := e.Load(ctx); err != nil {
		return nil, err
	}
	return &mockSession{
		engine:   e,
		partials: make(chan string, len(e.ScriptedPartials)+1),
		final:    make(chan Result, 1),
	}, nil
}

type mockSession struct {
	engine *MockEngine

	mu          sync.Mutex
	frames      int
	flushed     bool
	finalClosed bool
	partials    chan string
	final       chan Result

	closeOnce sync.Once
}

func (s *mockSession) Partials() <-chan string { return s.partials }

func (s *mockSession) Final() <-chan Result { return s.final }

func (s *mockSession) Accept(frame audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushed {
		return
	}
	if s.frames < len(s.engine.ScriptedPartials) {
		select {
		case s.partials <- s.engine.ScriptedPartials[s.frames]:
		default:
		}
	}
	s.frames++
}

func (s *mockSession) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushed {
		return
	}
	s.flushed = true
	if s.engine.SuppressFinal {
		return
	}
	if !s.engine.FailFinal {
		s.final <- s.engine.ScriptedResult
	}
	s.finalClosed = true
	close(s.final)
}

func (s *mockSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.flushed = true
		if !s.finalClosed {
			s.finalClosed = true
			close(s.final)
		}
		close(s.partials)
	})
	return nil
}
