package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/chunkstore"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/models"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/repository"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/pubsub"
)

// ViewerStore holds the live viewer counter of each stream.
type ViewerStore interface {
	IncrViewers(ctx context.Context, streamID string) (int64, error)
	DecrViewers(ctx context.Context, streamID string) (int64, error)
	GetViewers(ctx context.Context, streamID string) (int64, error)
	SetViewers(ctx context.Context, streamID string, count int64) error
	ClearViewers(ctx context.Context, streamID string) error
}

type CreateStreamRequest struct {
	Title   string               `json:"title" form:"title" binding:"required,max=120"`
	Quality models.StreamQuality `json:"quality" form:"quality" binding:"omitempty,oneof=low medium high"`
}

type StreamService struct {
	config    *config.Config
	streams   repository.StreamRepository
	chats     repository.ChatRepository
	viewers   ViewerStore
	chunks    *chunkstore.Store
	publisher pubsub.Publisher
	now       func() time.Time
}

func NewStreamService(
	cfg *config.Config,
	streams repository.StreamRepository,
	chats repository.ChatRepository,
	viewers ViewerStore,
	chunks *chunkstore.Store,
	publisher pubsub.Publisher,
) *StreamService {
	return &StreamService{
		config:    cfg,
		streams:   streams,
		chats:     chats,
		viewers:   viewers,
		chunks:    chunks,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *StreamService) Create(ctx context.Context, broadcasterID string, req CreateStreamRequest) (*models.Stream, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalidField("title", "is required")
	}
	quality := req.Quality
	if quality == "" {
		quality = models.QualityMedium
	}

	now := s.now()
	stream := &models.Stream{
		ID:            generateStreamID(),
		BroadcasterID: broadcasterID,
		Title:         title,
		Status:        models.StreamStatusScheduled,
		Quality:       quality,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.streams.CreateStream(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	log.Printf("🎬 Stream created: %s by %s", stream.ID, broadcasterID)
	return stream, nil
}

func (s *StreamService) Get(ctx context.Context, streamID string) (*models.Stream, error) {
	stream, err := s.streams.GetStream(ctx, streamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrStreamNotFound
		}
		return nil, fmt.Errorf("failed to load stream: %w", err)
	}
	return stream, nil
}

// GetLive returns the stream only while it is broadcasting.
func (s *StreamService) GetLive(ctx context.Context, streamID string) (*models.Stream, error) {
	stream, err := s.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if !stream.IsLive() {
		return nil, ErrStreamNotLive
	}
	return stream, nil
}

// GetOwned returns the stream if callerID is its broadcaster.
func (s *StreamService) GetOwned(ctx context.Context, streamID, callerID string) (*models.Stream, error) {
	if callerID == "" {
		return nil, ErrUnauthorized
	}
	stream, err := s.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if stream.BroadcasterID != callerID {
		return nil, ErrForbidden
	}
	return stream, nil
}

func (s *StreamService) ListLive(ctx context.Context) ([]*models.Stream, error) {
	streams, err := s.streams.ListStreamsByStatus(ctx, models.StreamStatusLive)
	if err != nil {
		return nil, fmt.Errorf("failed to list live streams: %w", err)
	}
	return streams, nil
}

// Start opens a new session: chat, segments and viewers from any earlier session are discarded.
func (s *StreamService) Start(ctx context.Context, streamID, callerID string) (*models.Stream, error) {
	stream, err := s.GetOwned(ctx, streamID, callerID)
	if err != nil {
		return nil, err
	}
	if stream.IsLive() {
		return nil, ErrInvalidTransition
	}

	deleted, err := s.chats.DeleteMessages(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to clear chat: %w", err)
	}
	if _, err := s.chunks.PurgeAll(streamID); err != nil {
		return nil, fmt.Errorf("failed to purge chunks: %w", err)
	}
	if err := s.viewers.SetViewers(ctx, streamID, 0); err != nil {
		return nil, fmt.Errorf("failed to reset viewers: %w", err)
	}

	now := s.now()
	stream.Status = models.StreamStatusLive
	stream.ViewerCount = 0
	stream.StartedAt = &now
	stream.EndedAt = nil
	stream.UpdatedAt = now

	if err := s.streams.UpdateStream(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to update stream: %w", err)
	}

	log.Printf("🔴 Stream STARTED: %s (cleared %d chat messages)", streamID, deleted)
	s.publish(ctx, streamID, pubsub.EventStreamStarted, stream)
	return stream, nil
}

// Stop ends the current session and drops its segments and viewers.
func (s *StreamService) Stop(ctx context.Context, streamID, callerID string) (*models.Stream, error) {
	stream, err := s.GetOwned(ctx, streamID, callerID)
	if err != nil {
		return nil, err
	}
	if !stream.IsLive() {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	stream.Status = models.StreamStatusOffline
	stream.ViewerCount = 0
	stream.EndedAt = &now
	stream.UpdatedAt = now

	if err := s.streams.UpdateStream(ctx, stream); err != nil {
		return nil, fmt.Errorf("failed to update stream: %w", err)
	}

	if _, err := s.chunks.PurgeAll(streamID); err != nil {
		log.Printf("⚠️ Could not purge chunks for %s: %v", streamID, err)
	}
	if err := s.viewers.ClearViewers(ctx, streamID); err != nil {
		log.Printf("⚠️ Could not clear viewers for %s: %v", streamID, err)
	}

	log.Printf("⚫ Stream ENDED: %s", streamID)
	s.publish(ctx, streamID, pubsub.EventStreamEnded, stream)
	return stream, nil
}

// Status reports the session state of any stream, live or not.
func (s *StreamService) Status(ctx context.Context, streamID string) (*models.StreamStatusView, error) {
	stream, err := s.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}

	view := &models.StreamStatusView{
		IsLive:      stream.IsLive(),
		Status:      stream.Status,
		ViewerCount: stream.ViewerCount,
		StartedAt:   stream.StartedAt,
	}
	if !stream.IsLive() {
		return view, nil
	}

	if n, err := s.viewers.GetViewers(ctx, streamID); err == nil {
		view.ViewerCount = int(n)
	} else {
		log.Printf("⚠️ Could not read viewers for %s: %v", streamID, err)
	}

	latest, err := s.chunks.LatestIndex(streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest chunk: %w", err)
	}
	view.LatestChunkIndex = latest
	return view, nil
}

func (s *StreamService) publish(ctx context.Context, streamID, event string, payload any) {
	if err := s.publisher.Publish(ctx, pubsub.StreamChannel(streamID), event, payload); err != nil {
		log.Printf("⚠️ Could not publish %s for %s: %v", event, streamID, err)
	}
}

func generateStreamID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "stream_" + hex.EncodeToString(bytes)
}
