package recognizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parlolabs/parlo-core/internal/audio"
	"github.com/parlolabs/parlo-core/internal/config"
)

func TestMockSessionDeliversFinalOnFlush(t *testing.T) {
	engine := &MockEngine{
		ScriptedResult: Result{
			Text:  "bonjour",
			Words: []Word{{Word: "bonjour", Confidence: 0.9, Start: 0, End: 0.5}},
		},
		ScriptedPartials: []string{"bon", "bonjour"},
	}
	sess, err := engine.NewSession(context.Background(), 16000)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Close()

	sess.Accept(make(audio.Frame, 256))
	sess.Accept(make(audio.Frame, 256))
	sess.Flush()

	if p := <-sess.Partials(); p != "bon" {
		t.Fatalf("first partial = %q", p)
	}
	select {
	case result, ok := <-sess.Final():
		if !ok {
			t.Fatal("final channel closed without result")
		}
		if result.Text != "bonjour" || len(result.Words) != 1 {
			t.Fatalf("unexpected final: %+v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for final")
	}
}

func TestMockSessionSuppressFinalKeepsChannelOpen(t *testing.T) {
	engine := &MockEngine{SuppressFinal: true}
	sess, err := engine.NewSession(context.Background(), 16000)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Close()

	sess.Flush()
	select {
	case <-sess.Final():
		t.Fatal("final channel should stay open")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMockSessionFailFinalClosesWithoutResult(t *testing.T) {
	engine := &MockEngine{FailFinal: true}
	sess, err := engine.NewSession(context.Background(), 16000)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer sess.Close()

	sess.Flush()
	select {
	case _, ok := <-sess.Final():
		if ok {
			t.Fatal("expected closed channel, got a result")
		}
	case <-time.After(time.Second):
		t.Fatal("final channel never closed")
	}
}

func TestMockEngineLoadErr(t *testing.T) {
	loadErr := errors.New("no model")
	engine := &MockEngine{LoadErr: loadErr}
	if err := engine.Load(context.Background()); !errors.Is(err, loadErr) {
		t.Fatalf("load error = %v", err)
	}
	if engine.Ready() {
		t.Fatal("engine must not report ready after load failure")
	}
	if _, err := engine.NewSession(context.Background(), 16000); err == nil {
		t.Fatal("session open should fail when load fails")
	}
}

func TestExecEngineRejectsBadCommand(t *testing.T) {
	if _, err := NewExecEngine(config.RecognizerConfig{Command: ""}); err == nil {
		t.Fatal("empty command should be rejected")
	}
	if _, err := NewExecEngine(config.RecognizerConfig{Command: `unterminated "quote`}); err == nil {
		t.Fatal("unparseable command should be rejected")
	}
}

func TestExecEngineLoadMissingBinary(t *testing.T) {
	engine, err := NewExecEngine(config.RecognizerConfig{Command: "parlo-definitely-missing-binary --json"})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Load(context.Background()); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("want ErrEngineUnavailable, got %v", err)
	}
}
