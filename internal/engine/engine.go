package engine

import (
	"context"
	"time"
)

// Engine is the session engine collaborator: an automated client that logs
// into the chat network, maintains the live connection, and emits events.
// The engine is opaque beyond this interface — login mechanics, transport
// reconnection, and message parsing all happen on the far side of it.
//
// The session state machine is the sole owner of Initialize/Destroy. Other
// components hold the engine only as a reference and must treat command
// errors during the uninitialized/disconnected window as a normal condition.
type Engine interface {
	// Initialize starts (or restarts) the underlying client. After a
	// successful call the engine begins emitting lifecycle events on
	// Events(), starting with a qr-challenge unless a stored credential
	// lets it authenticate directly.
	Initialize(ctx context.Context) error

	// Destroy tears the underlying client down. Safe to call on an
	// engine that was never initialized.
	Destroy(ctx context.Context) error

	// Events returns the engine's event stream. The channel is owned by
	// the engine and stays open across Destroy/Initialize cycles; it is
	// read by exactly one consumer (the bridge pump).
	Events() <-chan Event

	// SendText delivers a text message to a canonicalized recipient id.
	SendText(ctx context.Context, to, body string) (*SendResult, error)

	// SendMedia delivers a binary payload with a caption.
	SendMedia(ctx context.Context, to string, media Media, caption string) (*SendResult, error)

	// IsReachable reports whether the recipient id is a registered
	// identity on the network.
	IsReachable(ctx context.Context, to string) (bool, error)
}

// Media is a fetched binary payload ready for handoff to the engine.
type Media struct {
	Data        []byte `json:"data"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename,omitempty"`
}

// SendResult is the engine's acknowledgment of an accepted send.
type SendResult struct {
	MessageID string    `json:"messageId"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}
