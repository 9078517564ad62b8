// Package resultstore persists scored practice attempts in SQLite so
// learners can track progress across sessions.
package resultstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parlolabs/parlo-core/internal/config"
)

// Attempt is one persisted scoring result.
type Attempt struct {
	ID              int64
	AttemptID       string
	SessionID       string
	ItemID          string
	ExpectedText    string
	Transcript      string
	OverallScore    int
	AccuracyScore   int
	ConfidenceScore int
	IntonationScore int
	FluencyScore    int
	// WordsJSON holds the serialized per-word feedback.
	WordsJSON []byte
	Duration  float64
	CreatedAt time.Time
}

// ItemProgress aggregates a learner's history on one practice item.
type ItemProgress struct {
	ItemID       string
	Attempts     int
	BestScore    int
	AverageScore float64
	LastScore    int
}

// Store wraps a SQLite-backed attempt history store.
type Store struct {
	db    *sql.DB
	cfg   config.ResultStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the result store according to config. Ephemeral mode
// returns a store that drops everything on the floor.
func Open(ctx context.Context, cfg config.ResultStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("result store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("result store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    learner_id TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    attempt_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    expected_text TEXT,
    transcript TEXT,
    overall_score INTEGER NOT NULL,
    accuracy_score INTEGER NOT NULL,
    confidence_score INTEGER NOT NULL,
    intonation_score INTEGER NOT NULL,
    fluency_score INTEGER NOT NULL,
    words BLOB,
    duration REAL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_attempts_session_created ON attempts(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_attempts_item ON attempts(item_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendSession ensures a session row exists.
func (s *Store) AppendSession(ctx context.Context, sessionID, learnerID string) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, learner_id, created_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET learner_id=excluded.learner_id`,
		sessionID, learnerID, s.clock().UTC())
	return err
}

// AppendAttempt writes a scored attempt into the store.
func (s *Store) AppendAttempt(ctx context.Context, a Attempt) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts(attempt_id, session_id, item_id, expected_text, transcript,
		  overall_score, accuracy_score, confidence_score, intonation_score, fluency_score,
		  words, duration, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AttemptID, a.SessionID, a.ItemID, a.ExpectedText, a.Transcript,
		a.OverallScore, a.AccuracyScore, a.ConfidenceScore, a.IntonationScore, a.FluencyScore,
		a.WordsJSON, a.Duration, a.CreatedAt)
	return err
}

// ListSessionAttempts retrieves up to limit attempts for a session ordered
// ascending by time.
func (s *Store) ListSessionAttempts(ctx context.Context, sessionID string, limit int) ([]Attempt, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attempt_id, session_id, item_id, expected_text, transcript,
		  overall_score, accuracy_score, confidence_score, intonation_score, fluency_score,
		  words, duration, created_at
		 FROM attempts WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var created string
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.SessionID, &a.ItemID, &a.ExpectedText, &a.Transcript,
			&a.OverallScore, &a.AccuracyScore, &a.ConfidenceScore, &a.IntonationScore, &a.FluencyScore,
			&a.WordsJSON, &a.Duration, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			a.CreatedAt = ts
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Progress aggregates scores per practice item, most attempted first.
func (s *Store) Progress(ctx context.Context, limit int) ([]ItemProgress, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, COUNT(*), MAX(overall_score), AVG(overall_score),
		  (SELECT overall_score FROM attempts a2
		   WHERE a2.item_id = a.item_id ORDER BY a2.created_at DESC LIMIT 1)
		 FROM attempts a GROUP BY item_id ORDER BY COUNT(*) DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ItemProgress
	for rows.Next() {
		var p ItemProgress
		if err := rows.Scan(&p.ItemID, &p.Attempts, &p.BestScore, &p.AverageScore, &p.LastScore); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM attempts WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxAttempts > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM attempts WHERE id IN (
			SELECT id FROM attempts ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxAttempts)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
