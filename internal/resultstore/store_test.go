package resultstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/parlolabs/parlo-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.ResultStoreConfig{RetentionMode: "ephemeral"}
	rs, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	if err := rs.AppendAttempt(ctx, Attempt{AttemptID: "a1", SessionID: "s1", ItemID: "i1"}); err != nil {
		t.Fatalf("ephemeral append must be a no-op: %v", err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.ResultStoreConfig{Path: filepath.Join(tmp, "attempts.db"), RetentionMode: "session"}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open result store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	sessionID := "session-123"
	if err := rs.AppendSession(context.Background(), sessionID, "learner-1"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	attempt := Attempt{
		AttemptID:       "attempt-1",
		SessionID:       sessionID,
		ItemID:          "phrase-42",
		ExpectedText:    "je m'appelle marie",
		Transcript:      "je mapel marie",
		OverallScore:    71,
		AccuracyScore:   78,
		ConfidenceScore: 60,
		IntonationScore: 65,
		FluencyScore:    90,
		WordsJSON:       []byte(`[{"word":"je","score":100}]`),
		Duration:        2.1,
	}
	if err := rs.AppendAttempt(context.Background(), attempt); err != nil {
		t.Fatalf("append attempt: %v", err)
	}

	attempts, err := rs.ListSessionAttempts(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	got := attempts[0]
	if got.OverallScore != 71 || got.ItemID != "phrase-42" {
		t.Fatalf("unexpected attempt: %+v", got)
	}
	if string(got.WordsJSON) != `[{"word":"je","score":100}]` {
		t.Fatalf("unexpected words payload: %s", got.WordsJSON)
	}
}

func TestProgressAggregation(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.ResultStoreConfig{Path: filepath.Join(tmp, "attempts.db"), RetentionMode: "persistent"}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open result store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	if err := rs.AppendSession(context.Background(), "s1", "learner"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	scores := []int{60, 80, 70}
	for i, score := range scores {
		err := rs.AppendAttempt(context.Background(), Attempt{
			AttemptID:    "a" + string(rune('1'+i)),
			SessionID:    "s1",
			ItemID:       "phrase-1",
			OverallScore: score,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append attempt: %v", err)
		}
	}

	progress, err := rs.Progress(context.Background(), 10)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(progress) != 1 {
		t.Fatalf("expected 1 item, got %d", len(progress))
	}
	p := progress[0]
	if p.Attempts != 3 || p.BestScore != 80 || p.LastScore != 70 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if p.AverageScore < 69.9 || p.AverageScore > 70.1 {
		t.Fatalf("average = %v, want 70", p.AverageScore)
	}
}

func TestPruneByDaysAndMaxAttempts(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.ResultStoreConfig{
		Path:          filepath.Join(tmp, "attempts.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxAttempts:   1,
	}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open result store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	rs.clock = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	if err := rs.AppendSession(context.Background(), "old-session", "learner"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := rs.AppendAttempt(context.Background(), Attempt{AttemptID: "old", SessionID: "old-session", ItemID: "i"}); err != nil {
		t.Fatalf("append attempt: %v", err)
	}

	rs.clock = func() time.Time { return time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC) }
	if err := rs.AppendSession(context.Background(), "new-session", "learner"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := rs.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	attempts, err := rs.ListSessionAttempts(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatal("expected old attempts pruned")
	}
}
