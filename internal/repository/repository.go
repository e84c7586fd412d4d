package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

type StreamRepository interface {
	CreateStream(ctx context.Context, stream *models.Stream) error
	GetStream(ctx context.Context, streamID string) (*models.Stream, error)
	ListStreamsByStatus(ctx context.Context, status models.StreamStatus) ([]*models.Stream, error)
	UpdateStream(ctx context.Context, stream *models.Stream) error
	SetViewerCount(ctx context.Context, streamID string, count int) error
}

type ChatRepository interface {
	CreateMessage(ctx context.Context, message *models.ChatMessage) error
	// ListMessages returns every message of a stream, oldest first.
	ListMessages(ctx context.Context, streamID string) ([]*models.ChatMessage, error)
	DeleteMessages(ctx context.Context, streamID string) (int64, error)
}

type ClassificationRepository interface {
	CreateClassification(ctx context.Context, c *models.Classification) error
	// ListClassifications returns the newest records first.
	ListClassifications(ctx context.Context, streamID string, limit int) ([]*models.Classification, error)
}

// Store bundles every repository the service needs behind one backend.
type Store interface {
	StreamRepository
	ChatRepository
	ClassificationRepository
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Store.Driver {
	case "dynamodb":
		store, err = openDynamoDB(cfg.AWS)
	case "postgres":
		store, err = openPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite":
		store, err = openSQLite(cfg.Store.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return store, nil
}

func openDynamoDB(cfg config.AWSConfig) (Store, error) {
	r, err := NewDynamoDBRepository(cfg)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func openPostgres(ctx context.Context, url string) (Store, error) {
	r, err := NewPostgresRepository(ctx, url)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func openSQLite(path string) (Store, error) {
	r, err := NewSQLiteRepository(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}
