package models

import "time"

type ChatMessage struct {
	ID        string    `json:"id" dynamodbav:"id"`
	StreamID  string    `json:"stream_id" dynamodbav:"stream_id"`
	Username  string    `json:"username" dynamodbav:"username"`
	Message   string    `json:"message" dynamodbav:"message"`
	IP        string    `json:"-" dynamodbav:"ip"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}
