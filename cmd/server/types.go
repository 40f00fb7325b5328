package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/himanishpuri/mousai/pkg/mousai"
)

// MaxTokenLength bounds PUT /api/token bodies.
const MaxTokenLength = 256

// SetTokenRequest is the request body for PUT /api/token
type SetTokenRequest struct {
	Token string `json:"token"`
}

// Validate checks if the request is valid
func (r *SetTokenRequest) Validate() error {
	r.Token = strings.TrimSpace(r.Token)
	if len(r.Token) > MaxTokenLength {
		return fmt.Errorf("token too long: %d characters (maximum: %d)", len(r.Token), MaxTokenLength)
	}
	if strings.ContainsAny(r.Token, " \t\r\n") {
		return fmt.Errorf("token must not contain whitespace")
	}
	return nil
}

// NoticeDTO is the last message the controller raised.
type NoticeDTO struct {
	Kind    string    `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// StateResponse is the response for GET /api/state
type StateResponse struct {
	State       mousai.State `json:"state"`
	Device      string       `json:"device,omitempty"`
	RemainingMs int64        `json:"remaining_ms"`
	Level       float64      `json:"level"`
	Peak        float64      `json:"peak"`
	HistorySize int          `json:"history_size"`
	Notice      *NoticeDTO   `json:"notice,omitempty"`
}

// ActionResponse acknowledges listen, cancel and identify requests.
type ActionResponse struct {
	Message string       `json:"message"`
	State   mousai.State `json:"state"`
}

// HistoryResponse is the response for GET /api/history and /api/history/search
type HistoryResponse struct {
	Songs []mousai.Song `json:"songs"`
	Count int           `json:"count"`
	Query string        `json:"query,omitempty"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
