package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ismaiel54/fullfeed/internal/feed"
)

// Store keeps statistics snapshots and the journal of frames that failed
// to decode.
type Store struct {
	db *sql.DB
}

// Reject is one frame that failed to decode
type Reject struct {
	ID                  string        `json:"reject_id"`
	SessionID           string        `json:"session_id"`
	Kind                string        `json:"kind"`
	FrameType           string        `json:"frame_type,omitempty"`
	Field               string        `json:"field,omitempty"`
	Token               string        `json:"token,omitempty"`
	Message             string        `json:"message"`
	Frame               string        `json:"frame"`
	CreatedUnixMillis   int64         `json:"created_unix_millis"`
	PublishedUnixMillis sql.NullInt64 `json:"-"`
}

// RejectFromError builds the journal entry for a frame whose decode failed
// with err.
func RejectFromError(sessionID string, frame []byte, err error, now time.Time) Reject {
	r := Reject{
		ID:                uuid.NewString(),
		SessionID:         sessionID,
		Kind:              feed.ErrorKind(err),
		Message:           err.Error(),
		Frame:             string(frame),
		CreatedUnixMillis: now.UnixMilli(),
	}

	var de *feed.DecodeError
	if errors.As(err, &de) {
		r.FrameType = string(de.Type)
		r.Field = de.Field
		r.Token = de.Token
	}
	return r
}

// Open creates or opens the store
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; the relay and the journal share this handle.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the necessary tables
func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS stat_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			ts_unix_nanos INTEGER NOT NULL,
			frame_count INTEGER NOT NULL,
			byte_size INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_session
			ON stat_snapshots(session_id, id)`,
		`CREATE TABLE IF NOT EXISTS rejected_frames (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reject_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			frame_type TEXT NOT NULL,
			field TEXT NOT NULL,
			token TEXT NOT NULL,
			message TEXT NOT NULL,
			frame TEXT NOT NULL,
			created_unix_millis INTEGER NOT NULL,
			published_unix_millis INTEGER NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rejects_unpublished
			ON rejected_frames(published_unix_millis)
			WHERE published_unix_millis IS NULL`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// WriteSnapshot stores one statistics row for a session
func (s *Store) WriteSnapshot(ctx context.Context, sessionID string, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stat_snapshots (session_id, ts_unix_nanos, frame_count, byte_size)
		 VALUES (?, ?, ?, ?)`,
		sessionID, snap.Timestamp.UnixNano(), int64(snap.Count), int64(snap.Size),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns a session's rows in insertion order
func (s *Store) ListSnapshots(ctx context.Context, sessionID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts_unix_nanos, frame_count, byte_size
		 FROM stat_snapshots
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var ts, count, size int64
		if err := rows.Scan(&ts, &count, &size); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, Snapshot{
			Timestamp: time.Unix(0, ts),
			Count:     uint64(count),
			Size:      uint64(size),
		})
	}

	return snaps, rows.Err()
}

// SnapshotSink adapts the store to a Sink for one session. Closing the sink
// leaves the store open.
func (s *Store) SnapshotSink(sessionID string) Sink {
	return &storeSink{store: s, sessionID: sessionID}
}

type storeSink struct {
	store     *Store
	sessionID string
}

func (k *storeSink) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	return k.store.WriteSnapshot(ctx, k.sessionID, snap)
}

func (k *storeSink) Close() error { return nil }

// RecordReject journals a rejected frame. Recording the same reject id
// twice is a no-op.
func (s *Store) RecordReject(ctx context.Context, r Reject) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rejected_frames
			(reject_id, session_id, kind, frame_type, field, token, message, frame, created_unix_millis, published_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		r.ID, r.SessionID, r.Kind, r.FrameType, r.Field, r.Token, r.Message, r.Frame, r.CreatedUnixMillis,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rejected frame: %w", err)
	}
	return nil
}

// ListUnpublishedRejects returns rejects not yet relayed, oldest first
func (s *Store) ListUnpublishedRejects(ctx context.Context, limit int) ([]Reject, error) {
	return s.queryRejects(ctx,
		`SELECT reject_id, session_id, kind, frame_type, field, token, message, frame, created_unix_millis, published_unix_millis
		 FROM rejected_frames
		 WHERE published_unix_millis IS NULL
		 ORDER BY id ASC
		 LIMIT ?`,
		limit,
	)
}

// ListRejects returns the most recent rejects, newest first
func (s *Store) ListRejects(ctx context.Context, limit int) ([]Reject, error) {
	return s.queryRejects(ctx,
		`SELECT reject_id, session_id, kind, frame_type, field, token, message, frame, created_unix_millis, published_unix_millis
		 FROM rejected_frames
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
}

func (s *Store) queryRejects(ctx context.Context, query string, args ...any) ([]Reject, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejected frames: %w", err)
	}
	defer rows.Close()

	var rejects []Reject
	for rows.Next() {
		var r Reject
		err := rows.Scan(
			&r.ID, &r.SessionID, &r.Kind, &r.FrameType, &r.Field, &r.Token,
			&r.Message, &r.Frame, &r.CreatedUnixMillis, &r.PublishedUnixMillis,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rejected frame: %w", err)
		}
		rejects = append(rejects, r)
	}

	return rejects, rows.Err()
}

// MarkRejectPublished marks a reject as relayed
func (s *Store) MarkRejectPublished(ctx context.Context, rejectID string, nowMillis int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE rejected_frames SET published_unix_millis = ? WHERE reject_id = ?",
		nowMillis, rejectID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark reject as published: %w", err)
	}
	return nil
}

// CountRejectsByKind returns the number of journaled rejects per error kind
func (s *Store) CountRejectsByKind(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, COUNT(*) FROM rejected_frames GROUP BY kind",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count rejected frames: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan reject count: %w", err)
		}
		counts[kind] = n
	}

	return counts, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
