package models

import (
	"strings"
	"time"
)

type TrailCondition string

const (
	ConditionClear   TrailCondition = "clear"
	ConditionCloudy  TrailCondition = "cloudy"
	ConditionFoggy   TrailCondition = "foggy"
	ConditionRainy   TrailCondition = "rainy"
	ConditionSnowy   TrailCondition = "snowy"
	ConditionMuddy   TrailCondition = "muddy"
	ConditionUnknown TrailCondition = "unknown"
)

// ParseTrailCondition maps free-form model output onto a known condition.
func ParseTrailCondition(s string) TrailCondition {
	switch c := TrailCondition(strings.ToLower(strings.TrimSpace(s))); c {
	case ConditionClear, ConditionCloudy, ConditionFoggy, ConditionRainy, ConditionSnowy, ConditionMuddy:
		return c
	default:
		return ConditionUnknown
	}
}

type ClassificationStatus string

const (
	ClassificationSuccess ClassificationStatus = "success"
	ClassificationFailed  ClassificationStatus = "failed"
)

type Classification struct {
	ID          string               `json:"id" dynamodbav:"id"`
	StreamID    string               `json:"stream_id" dynamodbav:"stream_id"`
	FrameURL    string               `json:"frame_url" dynamodbav:"frame_url"`
	Condition   TrailCondition       `json:"condition" dynamodbav:"condition"`
	Description string               `json:"description" dynamodbav:"description"`
	Confidence  float64              `json:"confidence" dynamodbav:"confidence"`
	Status      ClassificationStatus `json:"status" dynamodbav:"status"`
	Attempts    int                  `json:"attempts" dynamodbav:"attempts"`
	Error       string               `json:"error,omitempty" dynamodbav:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at" dynamodbav:"created_at"`
}
