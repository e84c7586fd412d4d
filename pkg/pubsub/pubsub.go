package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/aws"
)

const channelPrefix = "stream."

// Event names published on a stream channel.
const (
	EventChunkUploaded   = "chunk.uploaded"
	EventViewerCount     = "viewer.count"
	EventChatMessage     = "chat.message"
	EventStreamStarted   = "stream.started"
	EventStreamEnded     = "stream.ended"
	EventFrameClassified = "frame.classified"
	EventSignalPrefix    = "signal."
)

// Publisher fans an event out to subscribers of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// Envelope is the wire format of every published event.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	SentAt  time.Time       `json:"sent_at"`
}

func StreamChannel(streamID string) string {
	return channelPrefix + streamID
}

// StreamIDFromChannel is the inverse of StreamChannel.
func StreamIDFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(channel, channelPrefix)
	return id, id != ""
}

func Encode(channel, event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{
		Event:   event,
		Channel: channel,
		Data:    data,
		SentAt:  time.Now().UTC(),
	})
}

func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	msg, err := Encode(channel, event, payload)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, channel, msg).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}
	return nil
}

// KinesisPublisher forwards a selected set of events to a Kinesis stream.
type KinesisPublisher struct {
	client *aws.KinesisClient
	events map[string]bool
}

func NewKinesisPublisher(client *aws.KinesisClient, events ...string) *KinesisPublisher {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[e] = true
	}
	return &KinesisPublisher{client: client, events: allowed}
}

func (p *KinesisPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	if len(p.events) > 0 && !p.events[event] {
		return nil
	}
	msg, err := Encode(channel, event, payload)
	if err != nil {
		return err
	}
	return p.client.PutRecord(ctx, channel, msg)
}

// Multi publishes to every member. All are attempted; the first error is returned.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, channel, event string, payload any) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, channel, event, payload); err != nil {
			log.Printf("⚠️ Publish %s on %s failed: %v", event, channel, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }
