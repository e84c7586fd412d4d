package service

import (
	"context"
	"fmt"
	"log"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/repository"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/pubsub"
)

const (
	ViewerJoin  = "join"
	ViewerLeave = "leave"
)

type ViewerCountRequest struct {
	Action string `json:"action" form:"action" binding:"omitempty,oneof=join leave"`
	Count  *int   `json:"count" form:"count" binding:"omitempty,min=0"`
}

type ViewerCountResult struct {
	ViewerCount int64 `json:"viewer_count"`
	Updated     bool  `json:"updated"`
}

type ViewerService struct {
	threshold int
	streams   *StreamService
	records   repository.StreamRepository
	viewers   ViewerStore
	publisher pubsub.Publisher
}

func NewViewerService(threshold int, streams *StreamService, records repository.StreamRepository, viewers ViewerStore, publisher pubsub.Publisher) *ViewerService {
	return &ViewerService{
		threshold: threshold,
		streams:   streams,
		records:   records,
		viewers:   viewers,
		publisher: publisher,
	}
}

// Update applies a join, a leave, or a client-reported absolute count.
func (s *ViewerService) Update(ctx context.Context, streamID string, req ViewerCountRequest) (*ViewerCountResult, error) {
	if req.Action == "" && req.Count == nil {
		return nil, invalidField("action", "action or count is required")
	}
	if req.Count != nil && *req.Count < 0 {
		return nil, invalidField("count", "must be at least 0")
	}
	switch req.Action {
	case "", ViewerJoin, ViewerLeave:
	default:
		return nil, invalidField("action", "must be one of: join, leave")
	}

	if _, err := s.streams.GetLive(ctx, streamID); err != nil {
		return nil, err
	}

	var (
		count int64
		err   error
	)
	switch req.Action {
	case ViewerJoin:
		count, err = s.viewers.IncrViewers(ctx, streamID)
	case ViewerLeave:
		count, err = s.viewers.DecrViewers(ctx, streamID)
	default:
		return s.setCount(ctx, streamID, int64(*req.Count))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update viewers: %w", err)
	}

	s.mirror(ctx, streamID, count)
	return &ViewerCountResult{ViewerCount: count, Updated: true}, nil
}

// setCount only replaces the stored count on a significant change or when it drops to zero.
func (s *ViewerService) setCount(ctx context.Context, streamID string, n int64) (*ViewerCountResult, error) {
	current, err := s.viewers.GetViewers(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to read viewers: %w", err)
	}

	diff := n - current
	if diff < 0 {
		diff = -diff
	}
	if n != 0 && diff < int64(s.threshold) {
		return &ViewerCountResult{ViewerCount: current, Updated: false}, nil
	}

	if err := s.viewers.SetViewers(ctx, streamID, n); err != nil {
		return nil, fmt.Errorf("failed to set viewers: %w", err)
	}
	s.mirror(ctx, streamID, n)
	return &ViewerCountResult{ViewerCount: n, Updated: true}, nil
}

func (s *ViewerService) mirror(ctx context.Context, streamID string, count int64) {
	if err := s.records.SetViewerCount(ctx, streamID, int(count)); err != nil {
		log.Printf("⚠️ Could not mirror viewer count for %s: %v", streamID, err)
	}
	payload := map[string]any{"stream_id": streamID, "count": count}
	if err := s.publisher.Publish(ctx, pubsub.StreamChannel(streamID), pubsub.EventViewerCount, payload); err != nil {
		log.Printf("⚠️ Could not publish viewer count for %s: %v", streamID, err)
	}
}
