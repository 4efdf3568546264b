package engine

import "time"

// EventType tags the events emitted by a session engine. Lifecycle events
// describe connectivity/auth state; content events carry message traffic.
type EventType string

const (
	// Lifecycle events.
	EventQRChallenge   EventType = "qr-challenge"
	EventAuthenticated EventType = "authenticated"
	EventReady         EventType = "ready"
	EventAuthFailed    EventType = "auth-failed"
	EventDisconnected  EventType = "disconnected"

	// Content events.
	EventMessageReceived   EventType = "message-received"
	EventMessageAck        EventType = "message-ack"
	EventGroupNotification EventType = "group-notification"
	EventCallReceived      EventType = "call-received"
	EventContactChanged    EventType = "contact-changed"
)

// IsLifecycle reports whether the event type describes session
// connectivity/auth state rather than message content.
func (t EventType) IsLifecycle() bool {
	switch t {
	case EventQRChallenge, EventAuthenticated, EventReady, EventAuthFailed, EventDisconnected:
		return true
	}
	return false
}

// Event is the tagged union emitted on the engine's event stream. Exactly
// the payload field matching Type is populated; the rest are zero. Events
// are immutable after construction and never persisted.
type Event struct {
	Type EventType

	// Challenge is the raw QR challenge payload (qr-challenge only).
	Challenge string

	// Reason describes why the session dropped (disconnected, auth-failed).
	Reason string

	Message *Message           // message-received
	Ack     *Ack               // message-ack
	Group   *GroupNotification // group-notification
	Call    *Call              // call-received
	Contact *ContactChange     // contact-changed
}

// Message is an inbound chat message.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Body      string    `json:"body"`
	FromMe    bool      `json:"fromMe,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Ack levels as reported by the network, from error through played.
const (
	AckError   = -1
	AckPending = 0
	AckServer  = 1
	AckDevice  = 2
	AckRead    = 3
	AckPlayed  = 4
)

// Ack reports a delivery-state change for a previously sent message.
type Ack struct {
	MessageID string `json:"messageId"`
	Level     int    `json:"level"`
}

// GroupNotification describes a group membership or metadata change.
type GroupNotification struct {
	GroupID   string    `json:"groupId"`
	Kind      string    `json:"kind"` // "join", "leave", "update"
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Call describes an incoming voice or video call.
type Call struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	IsVideo bool   `json:"isVideo"`
	IsGroup bool   `json:"isGroup"`
}

// ContactChange reports a contact switching to a new identity.
type ContactChange struct {
	OldID     string    `json:"oldId"`
	NewID     string    `json:"newId"`
	IsContact bool      `json:"isContact"`
	Timestamp time.Time `json:"timestamp"`
}
