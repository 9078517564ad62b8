package practice

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/parlolabs/parlo-core/internal/config"
	"github.com/parlolabs/parlo-core/internal/protocol"
	"github.com/parlolabs/parlo-core/internal/resultstore"
	"github.com/parlolabs/parlo-core/internal/score"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScoreAttemptPersists(t *testing.T) {
	cfg := config.Default()
	store, err := resultstore.Open(context.Background(), config.ResultStoreConfig{
		Path:          filepath.Join(t.TempDir(), "attempts.db"),
		RetentionMode: "session",
	}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	svc := NewService(context.Background(), cfg, nil,
		score.NewEngine(cfg.Scoring), store, nil, nil, nil, newLogger())

	svc.scoreAttempt(protocol.AttemptRequest{
		SessionID:    "s1",
		ItemID:       "phrase-1",
		ExpectedText: "Je m'appelle Marie",
		Transcript:   "je mapel marie",
		Duration:     2.0,
	}, "")

	attempts, err := store.ListSessionAttempts(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 persisted attempt, got %d", len(attempts))
	}
	a := attempts[0]
	if a.AttemptID == "" {
		t.Fatal("attempt must receive a generated id")
	}
	if a.ItemID != "phrase-1" || a.Transcript != "je mapel marie" {
		t.Fatalf("unexpected attempt row: %+v", a)
	}
	if a.OverallScore <= 0 || a.OverallScore > 100 {
		t.Fatalf("overall score out of range: %d", a.OverallScore)
	}
	if len(a.WordsJSON) == 0 {
		t.Fatal("per-word feedback must be persisted")
	}
	var words []protocol.WordScore
	if err := json.Unmarshal(a.WordsJSON, &words); err != nil {
		t.Fatalf("decode word feedback: %v", err)
	}
	if len(words) != 3 {
		t.Fatalf("word feedback entries = %d, want 3", len(words))
	}
	if words[1].Word != "m'appelle" || words[1].Band == "" {
		t.Fatalf("unexpected word feedback: %+v", words[1])
	}
}

func TestWordScoreConversion(t *testing.T) {
	in := []score.WordResult{
		{Word: "je", Score: 100, Confidence: 0.9, Band: score.BandHigh},
		{Word: "vais", Score: 55, Confidence: 0.4, Band: score.BandLow},
	}
	out := toWordScores(in)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Word != in[i].Word || out[i].Score != in[i].Score ||
			out[i].Confidence != in[i].Confidence || out[i].Band != in[i].Band {
			t.Fatalf("entry %d changed: %+v vs %+v", i, out[i], in[i])
		}
	}
	if toWordScores(nil) != nil {
		t.Fatal("empty input must stay nil")
	}
}

func TestWordTimingConversionRoundTrip(t *testing.T) {
	in := []protocol.WordTiming{
		{Word: "je", Confidence: 0.9, Start: 0, End: 0.3},
		{Word: "vais", Confidence: 0.8, Start: 0.3, End: 0.7},
	}
	out := fromRecognizerWords(toRecognizerWords(in))
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("word %d changed: %+v vs %+v", i, out[i], in[i])
		}
	}
	if toRecognizerWords(nil) != nil {
		t.Fatal("empty input must stay nil")
	}
}

func TestHealthyWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Practice.Enabled = false
	svc := NewService(context.Background(), cfg, nil,
		score.NewEngine(cfg.Scoring), nil, nil, nil, nil, newLogger())
	if !svc.Healthy() {
		t.Fatal("disabled service must report healthy")
	}
}
