// Package protocol defines the JSON bodies of the HTTP API.
package protocol

import "time"

// ConversationResponse describes a conversation.
type ConversationResponse struct {
	ID        string    `json:"id"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	// Reply carries the partial turn result when a turn failed upstream.
	Reply any `json:"reply,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
