package models

import (
	"time"
)

type StreamStatus string

const (
	StreamStatusScheduled StreamStatus = "scheduled"
	StreamStatusLive      StreamStatus = "live"
	StreamStatusOffline   StreamStatus = "offline"
)

type StreamQuality string

const (
	QualityLow    StreamQuality = "low"
	QualityMedium StreamQuality = "medium"
	QualityHigh   StreamQuality = "high"
)

type Stream struct {
	ID            string        `json:"id" dynamodbav:"id"`
	BroadcasterID string        `json:"broadcaster_id" dynamodbav:"broadcaster_id"`
	Title         string        `json:"title" dynamodbav:"title"`
	Status        StreamStatus  `json:"status" dynamodbav:"status"`
	Quality       StreamQuality `json:"quality" dynamodbav:"quality"`
	ViewerCount   int           `json:"viewer_count" dynamodbav:"viewer_count"`
	StartedAt     *time.Time    `json:"started_at,omitempty" dynamodbav:"started_at,omitempty"`
	EndedAt       *time.Time    `json:"ended_at,omitempty" dynamodbav:"ended_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" dynamodbav:"updated_at"`
}

func (s *Stream) IsLive() bool {
	return s.Status == StreamStatusLive
}

// StreamStatusView is the payload of GET /streams/:id/status.
type StreamStatusView struct {
	IsLive           bool         `json:"is_live"`
	Status           StreamStatus `json:"status"`
	ViewerCount      int          `json:"viewer_count"`
	StartedAt        *time.Time   `json:"started_at"`
	LatestChunkIndex *int         `json:"latest_chunk_index"`
}
