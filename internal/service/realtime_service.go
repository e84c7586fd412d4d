package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/pubsub"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/sfu"
)

type SignalRequest struct {
	Type    string          `json:"type" binding:"required,oneof=offer answer ice"`
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

type SFUTokenRequest struct {
	Identity string `json:"identity" form:"identity" binding:"omitempty,max=64"`
	Name     string `json:"name" form:"name" binding:"omitempty,max=64"`
}

type SFUToken struct {
	Token      string `json:"token"`
	URL        string `json:"url"`
	Room       string `json:"room"`
	Identity   string `json:"identity"`
	CanPublish bool   `json:"can_publish"`
}

// RealtimeService relays WebRTC signaling and hands out SFU access tokens.
type RealtimeService struct {
	streams   *StreamService
	minter    *sfu.Minter
	publisher pubsub.Publisher
}

func NewRealtimeService(streams *StreamService, minter *sfu.Minter, publisher pubsub.Publisher) *RealtimeService {
	return &RealtimeService{
		streams:   streams,
		minter:    minter,
		publisher: publisher,
	}
}

// Signal forwards an offer, answer or ICE candidate to the subscribers of the stream.
func (s *RealtimeService) Signal(ctx context.Context, streamID, senderID string, req SignalRequest) error {
	switch req.Type {
	case "offer", "answer", "ice":
	default:
		return invalidField("type", "must be one of: offer, answer, ice")
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		return invalidField("payload", "must be valid JSON")
	}

	if _, err := s.streams.GetLive(ctx, streamID); err != nil {
		return err
	}

	msg := map[string]any{
		"from":    senderID,
		"target":  req.Target,
		"payload": req.Payload,
	}
	if err := s.publisher.Publish(ctx, pubsub.StreamChannel(streamID), pubsub.EventSignalPrefix+req.Type, msg); err != nil {
		return fmt.Errorf("failed to relay signal: %w", err)
	}
	return nil
}

// Token mints a publish token for the broadcaster and a subscribe-only token for anyone else.
func (s *RealtimeService) Token(ctx context.Context, streamID, callerID string, req SFUTokenRequest) (*SFUToken, error) {
	stream, err := s.streams.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}

	owner := callerID != "" && callerID == stream.BroadcasterID
	identity := strings.TrimSpace(req.Identity)
	switch {
	case owner:
		identity = callerID
	case !stream.IsLive():
		return nil, ErrStreamNotLive
	case identity == "":
		identity = "viewer-" + uuid.NewString()[:8]
	}

	token, err := s.minter.Mint(sfu.Grant{
		Room:       streamID,
		Identity:   identity,
		Name:       req.Name,
		CanPublish: owner,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	log.Printf("🎟️ SFU token for %s in %s (publish=%t)", identity, streamID, owner)
	return &SFUToken{
		Token:      token,
		URL:        s.minter.URL(),
		Room:       streamID,
		Identity:   identity,
		CanPublish: owner,
	}, nil
}
