package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS live_streams (
	id             TEXT PRIMARY KEY,
	broadcaster_id TEXT NOT NULL,
	title          TEXT NOT NULL,
	status         TEXT NOT NULL,
	quality        TEXT NOT NULL,
	viewer_count   INTEGER NOT NULL DEFAULT 0,
	started_at     TIMESTAMP,
	ended_at       TIMESTAMP,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_live_streams_status ON live_streams (status);

CREATE TABLE IF NOT EXISTS live_chat_messages (
	id         TEXT PRIMARY KEY,
	stream_id  TEXT NOT NULL,
	username   TEXT NOT NULL,
	message    TEXT NOT NULL,
	ip         TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_live_chat_messages_stream ON live_chat_messages (stream_id, created_at);

CREATE TABLE IF NOT EXISTS live_classifications (
	id              TEXT PRIMARY KEY,
	stream_id       TEXT NOT NULL,
	frame_url       TEXT NOT NULL DEFAULT '',
	trail_condition TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	confidence      REAL NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	attempts        INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_live_classifications_stream ON live_classifications (stream_id, created_at);
`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteStream(row rowScanner) (*models.Stream, error) {
	var s models.Stream
	if err := row.Scan(&s.ID, &s.BroadcasterID, &s.Title, &s.Status, &s.Quality, &s.ViewerCount,
		&s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepository) CreateStream(ctx context.Context, stream *models.Stream) error {
	query := `INSERT INTO live_streams (` + streamColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, stream.ID, stream.BroadcasterID, stream.Title, stream.Status,
		stream.Quality, stream.ViewerCount, stream.StartedAt, stream.EndedAt, stream.CreatedAt, stream.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert stream '%s': %w", stream.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetStream(ctx context.Context, streamID string) (*models.Stream, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+streamColumns+` FROM live_streams WHERE id = ?`, streamID)
	s, err := scanSQLiteStream(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error querying stream: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) ListStreamsByStatus(ctx context.Context, status models.StreamStatus) ([]*models.Stream, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+streamColumns+` FROM live_streams WHERE status = ? ORDER BY started_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query streams: %w", err)
	}
	defer rows.Close()

	streams := []*models.Stream{}
	for rows.Next() {
		s, err := scanSQLiteStream(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		streams = append(streams, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over streams: %w", err)
	}
	return streams, nil
}

func (r *SQLiteRepository) UpdateStream(ctx context.Context, stream *models.Stream) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE live_streams
		SET title = ?, status = ?, quality = ?, viewer_count = ?,
		    started_at = ?, ended_at = ?, updated_at = ?
		WHERE id = ?
	`, stream.Title, stream.Status, stream.Quality, stream.ViewerCount,
		stream.StartedAt, stream.EndedAt, stream.UpdatedAt, stream.ID)
	if err != nil {
		return fmt.Errorf("failed to update stream '%s': %w", stream.ID, err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) SetViewerCount(ctx context.Context, streamID string, count int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE live_streams SET viewer_count = ? WHERE id = ?`, count, streamID)
	if err != nil {
		return fmt.Errorf("failed to update viewer count: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) CreateMessage(ctx context.Context, m *models.ChatMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO live_chat_messages (id, stream_id, username, message, ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.StreamID, m.Username, m.Message, m.IP, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListMessages(ctx context.Context, streamID string) ([]*models.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stream_id, username, message, ip, created_at
		FROM live_chat_messages
		WHERE stream_id = ?
		ORDER BY created_at ASC, id ASC
	`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.StreamID, &m.Username, &m.Message, &m.IP, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func (r *SQLiteRepository) DeleteMessages(ctx context.Context, streamID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM live_chat_messages WHERE stream_id = ?`, streamID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) CreateClassification(ctx context.Context, c *models.Classification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO live_classifications
			(id, stream_id, frame_url, trail_condition, description, confidence, status, attempts, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.StreamID, c.FrameURL, c.Condition, c.Description, c.Confidence, c.Status, c.Attempts, c.Error, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert classification: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListClassifications(ctx context.Context, streamID string, limit int) ([]*models.Classification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, stream_id, frame_url, trail_condition, description, confidence, status, attempts, error, created_at
		FROM live_classifications
		WHERE stream_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer rows.Close()

	records := []*models.Classification{}
	for rows.Next() {
		var c models.Classification
		if err := rows.Scan(&c.ID, &c.StreamID, &c.FrameURL, &c.Condition, &c.Description, &c.Confidence,
			&c.Status, &c.Attempts, &c.Error, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}
		records = append(records, &c)
	}
	return records, rows.Err()
}
