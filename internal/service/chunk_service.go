package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/chunkstore"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/pubsub"
)

type ChunkService struct {
	config    *config.ChunkConfig
	streams   *StreamService
	chunks    *chunkstore.Store
	publisher pubsub.Publisher
	now       func() time.Time
}

func NewChunkService(cfg *config.ChunkConfig, streams *StreamService, chunks *chunkstore.Store, publisher pubsub.Publisher) *ChunkService {
	return &ChunkService{
		config:    cfg,
		streams:   streams,
		chunks:    chunks,
		publisher: publisher,
		now:       time.Now,
	}
}

// Ingest stores one segment from the broadcaster and trims segments that fell out of the window.
func (s *ChunkService) Ingest(ctx context.Context, streamID, callerID string, index int, r io.Reader) (*chunkstore.Chunk, error) {
	if index < 0 {
		return nil, invalidField("index", "must be a non-negative integer")
	}

	stream, err := s.streams.GetOwned(ctx, streamID, callerID)
	if err != nil {
		return nil, err
	}
	if !stream.IsLive() {
		return nil, ErrStreamNotLive
	}

	chunk, err := s.chunks.Write(streamID, index, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChunkWrite, err)
	}

	s.evict(streamID, index)

	payload := map[string]any{"stream_id": streamID, "index": index, "size": chunk.Size}
	if err := s.publisher.Publish(ctx, pubsub.StreamChannel(streamID), pubsub.EventChunkUploaded, payload); err != nil {
		log.Printf("⚠️ Could not publish chunk %d for %s: %v", index, streamID, err)
	}
	return chunk, nil
}

// evict keeps the newest RetentionWindow segments plus the init segment.
func (s *ChunkService) evict(streamID string, index int) {
	window := s.config.RetentionWindow
	if window <= 0 || index < window {
		return
	}
	bound := index - window + 1
	removed, err := s.chunks.PurgeBefore(streamID, bound)
	if err != nil {
		log.Printf("⚠️ Eviction failed for %s below %d: %v", streamID, bound, err)
		return
	}
	if removed > 0 {
		log.Printf("🧹 Evicted %d chunks of %s below index %d", removed, streamID, bound)
	}
}

// Serve returns the bytes of a segment of the current session.
func (s *ChunkService) Serve(ctx context.Context, streamID string, index int) ([]byte, error) {
	if index < 0 {
		return nil, invalidField("index", "must be a non-negative integer")
	}

	stream, err := s.streams.GetLive(ctx, streamID)
	if err != nil {
		return nil, err
	}

	chunk, err := s.chunks.Stat(streamID, index)
	if err != nil {
		if errors.Is(err, chunkstore.ErrNotFound) {
			return nil, ErrChunkNotFound
		}
		return nil, err
	}

	// file mtimes may only have second resolution
	if stream.StartedAt != nil && chunk.ModTime.Before(stream.StartedAt.Truncate(time.Second)) {
		if err := s.chunks.Remove(streamID, index); err != nil {
			log.Printf("⚠️ Could not remove stale chunk %d of %s: %v", index, streamID, err)
		}
		return nil, ErrChunkStale
	}

	if index != 0 && s.config.MaxAge > 0 && s.now().Sub(chunk.ModTime) > s.config.MaxAge {
		return nil, ErrChunkExpired
	}

	data, err := s.chunks.Read(streamID, index)
	if err != nil {
		if errors.Is(err, chunkstore.ErrNotFound) {
			return nil, ErrChunkNotFound
		}
		return nil, err
	}
	return data, nil
}

// Sweep runs the administrative age-based cleanup.
func (s *ChunkService) Sweep(maxAge time.Duration) (chunkstore.SweepReport, error) {
	report, err := s.chunks.SweepOlderThan(maxAge, false)
	if err != nil {
		return report, err
	}
	if report.Files > 0 {
		log.Printf("🧹 Sweep removed %d files (%d bytes) across %d streams", report.Files, report.Bytes, report.Streams)
	}
	return report, nil
}
