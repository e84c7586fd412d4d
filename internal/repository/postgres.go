package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS live_streams (
	id             TEXT PRIMARY KEY,
	broadcaster_id TEXT NOT NULL,
	title          TEXT NOT NULL,
	status         TEXT NOT NULL,
	quality        TEXT NOT NULL,
	viewer_count   INTEGER NOT NULL DEFAULT 0,
	started_at     TIMESTAMPTZ,
	ended_at       TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_live_streams_status ON live_streams (status);

CREATE TABLE IF NOT EXISTS live_chat_messages (
	id         TEXT PRIMARY KEY,
	stream_id  TEXT NOT NULL,
	username   TEXT NOT NULL,
	message    TEXT NOT NULL,
	ip         TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_live_chat_messages_stream ON live_chat_messages (stream_id, created_at);

CREATE TABLE IF NOT EXISTS live_classifications (
	id          TEXT PRIMARY KEY,
	stream_id   TEXT NOT NULL,
	frame_url   TEXT NOT NULL DEFAULT '',
	trail_condition TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_live_classifications_stream ON live_classifications (stream_id, created_at DESC);
`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	// Postgres may not be ready yet in Docker
	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 10; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
			pool = nil
		}
		log.Printf("⚠️ DB connect attempt %d/10 failed: %v", attempt, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if pool == nil {
		return nil, fmt.Errorf("failed to connect after 10 attempts: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Printf("✅ Postgres store ready")
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const streamColumns = `id, broadcaster_id, title, status, quality, viewer_count, started_at, ended_at, created_at, updated_at`

func scanStream(row pgx.Row) (*models.Stream, error) {
	var s models.Stream
	if err := row.Scan(&s.ID, &s.BroadcasterID, &s.Title, &s.Status, &s.Quality, &s.ViewerCount,
		&s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) CreateStream(ctx context.Context, stream *models.Stream) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO live_streams (`+streamColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, stream.ID, stream.BroadcasterID, stream.Title, stream.Status, stream.Quality, stream.ViewerCount,
		stream.StartedAt, stream.EndedAt, stream.CreatedAt, stream.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert stream: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetStream(ctx context.Context, streamID string) (*models.Stream, error) {
	s, err := scanStream(r.pool.QueryRow(ctx, `SELECT `+streamColumns+` FROM live_streams WHERE id = $1`, streamID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select stream: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListStreamsByStatus(ctx context.Context, status models.StreamStatus) ([]*models.Stream, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+streamColumns+` FROM live_streams
		WHERE status = $1
		ORDER BY started_at DESC NULLS LAST
	`, status)
	if err != nil {
		return nil, fmt.Errorf("select streams: %w", err)
	}
	defer rows.Close()

	streams := []*models.Stream{}
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		streams = append(streams, s)
	}
	return streams, rows.Err()
}

func (r *PostgresRepository) UpdateStream(ctx context.Context, stream *models.Stream) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE live_streams
		SET title = $2, status = $3, quality = $4, viewer_count = $5,
		    started_at = $6, ended_at = $7, updated_at = $8
		WHERE id = $1
	`, stream.ID, stream.Title, stream.Status, stream.Quality, stream.ViewerCount,
		stream.StartedAt, stream.EndedAt, stream.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetViewerCount(ctx context.Context, streamID string, count int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE live_streams SET viewer_count = $2, updated_at = NOW() WHERE id = $1
	`, streamID, count)
	if err != nil {
		return fmt.Errorf("update viewer count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateMessage(ctx context.Context, m *models.ChatMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO live_chat_messages (id, stream_id, username, message, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.StreamID, m.Username, m.Message, m.IP, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListMessages(ctx context.Context, streamID string) ([]*models.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, stream_id, username, message, ip, created_at
		FROM live_chat_messages
		WHERE stream_id = $1
		ORDER BY created_at ASC, id ASC
	`, streamID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.StreamID, &m.Username, &m.Message, &m.IP, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func (r *PostgresRepository) DeleteMessages(ctx context.Context, streamID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM live_chat_messages WHERE stream_id = $1`, streamID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) CreateClassification(ctx context.Context, c *models.Classification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO live_classifications
			(id, stream_id, frame_url, trail_condition, description, confidence, status, attempts, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.StreamID, c.FrameURL, c.Condition, c.Description, c.Confidence, c.Status, c.Attempts, c.Error, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListClassifications(ctx context.Context, streamID string, limit int) ([]*models.Classification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, stream_id, frame_url, trail_condition, description, confidence, status, attempts, error, created_at
		FROM live_classifications
		WHERE stream_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("select classifications: %w", err)
	}
	defer rows.Close()

	records := []*models.Classification{}
	for rows.Next() {
		var c models.Classification
		if err := rows.Scan(&c.ID, &c.StreamID, &c.FrameURL, &c.Condition, &c.Description, &c.Confidence,
			&c.Status, &c.Attempts, &c.Error, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		records = append(records, &c)
	}
	return records, rows.Err()
}
