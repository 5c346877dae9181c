// Package sqlite persists trace records in an append-only SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/havenlabs/haven/internal/core/domain"
	"github.com/havenlabs/haven/internal/core/ports"
)

// TraceStore is a SQLite implementation of ports.TraceStore. Records are
// inserted once and never updated or deleted.
type TraceStore struct {
	db *sql.DB
}

var _ ports.TraceStore = (*TraceStore)(nil)

// New opens (or creates) the trace database at path.
func New(path string) (*TraceStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open trace database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &TraceStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize trace schema: %w", err)
	}
	return store, nil
}

func (s *TraceStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			frame_id TEXT,
			user_id TEXT NOT NULL,
			input_summary TEXT NOT NULL,
			risk_level TEXT NOT NULL,
			matched_pattern TEXT,
			breaker_state TEXT,
			breaker_failures INTEGER NOT NULL DEFAULT 0,
			response_summary TEXT NOT NULL,
			actions TEXT,
			latency_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_user_time ON traces(user_id, id DESC)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *TraceStore) Append(ctx context.Context, rec *domain.TraceRecord) error {
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO traces (frame_id, user_id, input_summary, risk_level,
			matched_pattern, breaker_state, breaker_failures, response_summary,
			actions, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.FrameID, rec.UserID, rec.InputSummary, string(rec.Safety.Risk),
		rec.Safety.MatchedPattern, string(rec.BreakerSnapshot.State),
		rec.BreakerSnapshot.ConsecutiveFailures, rec.ResponseSummary,
		string(actions), rec.LatencyMS, rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("append trace: %w", err)
	}
	return nil
}

func (s *TraceStore) Recent(ctx context.Context, userID string, n int) ([]*domain.TraceRecord, error) {
	if n <= 0 {
		// SQLite treats a negative LIMIT as unlimited.
		n = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_id, user_id, input_summary, risk_level, matched_pattern,
			breaker_state, breaker_failures, response_summary, actions,
			latency_ms, created_at
		FROM traces WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("query recent traces: %w", err)
	}
	defer rows.Close()

	var recs []*domain.TraceRecord
	for rows.Next() {
		var rec domain.TraceRecord
		var risk, breakerState string
		var actions sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&rec.FrameID, &rec.UserID, &rec.InputSummary,
			&risk, &rec.Safety.MatchedPattern, &breakerState,
			&rec.BreakerSnapshot.ConsecutiveFailures, &rec.ResponseSummary,
			&actions, &rec.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		rec.Safety.Risk = domain.RiskLevel(risk)
		rec.BreakerSnapshot.State = domain.BreakerState(breakerState)
		rec.Timestamp = createdAt
		if actions.Valid && actions.String != "" && actions.String != "null" {
			if err := json.Unmarshal([]byte(actions.String), &rec.Actions); err != nil {
				return nil, fmt.Errorf("unmarshal trace actions: %w", err)
			}
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

func (s *TraceStore) Close() error {
	return s.db.Close()
}
