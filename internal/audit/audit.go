// Package audit records proxied interactions for operability. Only
// already-redacted content and request metadata ever reaches a store; raw
// user text is never persisted.
package audit

import (
	"context"
	"time"
)

// Interaction is one proxied request, written after the response is sent.
type Interaction struct {
	ID           string
	RequestID    string
	Subject      string
	Model        string
	Temperature  float64
	MessageCount int
	PromptTokens int
	Estimated    bool
	Status       int
	Duration     time.Duration
	CreatedAt    time.Time
}

// Store persists interactions. Implementations must tolerate concurrent
// writers; recording is best-effort and must never fail a request.
type Store interface {
	Record(ctx context.Context, in Interaction) error
	Close() error
}

// NopStore discards every interaction. Used when storage is disabled.
type NopStore struct{}

func (NopStore) Record(ctx context.Context, in Interaction) error { return nil }
func (NopStore) Close() error                                     { return nil }
