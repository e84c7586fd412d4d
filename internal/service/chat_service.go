package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/net/html"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/models"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/repository"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/pubsub"
)

// RateLimiter counts actions per key in a fixed window.
type RateLimiter interface {
	HitRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type SendChatRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Message  string `json:"message" form:"message" binding:"required"`
}

type ChatService struct {
	config    *config.ChatConfig
	streams   *StreamService
	messages  repository.ChatRepository
	limiter   RateLimiter
	publisher pubsub.Publisher
	now       func() time.Time
}

func NewChatService(cfg *config.ChatConfig, streams *StreamService, messages repository.ChatRepository, limiter RateLimiter, publisher pubsub.Publisher) *ChatService {
	return &ChatService{
		config:    cfg,
		streams:   streams,
		messages:  messages,
		limiter:   limiter,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Send validates, rate limits, stores and relays one chat message.
func (s *ChatService) Send(ctx context.Context, streamID, clientIP string, req SendChatRequest) (*models.ChatMessage, error) {
	if _, err := s.streams.GetLive(ctx, streamID); err != nil {
		return nil, err
	}

	username := StripMarkup(req.Username)
	message := StripMarkup(req.Message)

	fields := map[string]string{}
	switch {
	case username == "":
		fields["username"] = "is required"
	case utf8.RuneCountInString(username) > s.config.MaxUsername:
		fields["username"] = fmt.Sprintf("must be at most %d characters", s.config.MaxUsername)
	}
	switch {
	case message == "":
		fields["message"] = "is required"
	case utf8.RuneCountInString(message) > s.config.MaxMessage:
		fields["message"] = fmt.Sprintf("must be at most %d characters", s.config.MaxMessage)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	allowed, wait, err := s.limiter.HitRateLimit(ctx, clientIP, s.config.RateLimit, s.config.RateWindow)
	if err != nil {
		return nil, err
	}
	if !allowed {
		log.Printf("🚫 Chat rate limit hit by %s on %s", clientIP, streamID)
		return nil, &RateLimitError{Wait: wait}
	}

	msg := &models.ChatMessage{
		ID:        ulid.Make().String(),
		StreamID:  streamID,
		Username:  username,
		Message:   message,
		IP:        clientIP,
		CreatedAt: s.now(),
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	if err := s.publisher.Publish(ctx, pubsub.StreamChannel(streamID), pubsub.EventChatMessage, msg); err != nil {
		log.Printf("⚠️ Could not publish chat message for %s: %v", streamID, err)
	}
	return msg, nil
}

// History returns the chat of the current session, oldest first.
func (s *ChatService) History(ctx context.Context, streamID string) ([]*models.ChatMessage, error) {
	if _, err := s.streams.GetLive(ctx, streamID); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListMessages(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return messages, nil
}

// StripMarkup keeps only the text content of s, entities left as written. Script and style bodies are dropped.
func StripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				log.Printf("⚠️ markup tokenizer: %v", z.Err())
			}
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			if isRawTextTag(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawTextTag(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			// Raw keeps entities encoded so &lt;b&gt; never turns back into a tag
			if skip == 0 {
				b.Write(z.Raw())
			}
		}
	}
}

func isRawTextTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}
