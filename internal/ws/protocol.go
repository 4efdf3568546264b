package ws

// NoticeType tags server-to-subscriber realtime notices.
type NoticeType string

const (
	// NoticeMessage carries human-readable status text.
	NoticeMessage NoticeType = "message"
	// NoticeQR carries a scannable login challenge as a PNG data URL.
	NoticeQR NoticeType = "qr"
	// NoticeReady signals the session is ready to send.
	NoticeReady NoticeType = "ready"
	// NoticeAuthenticated signals successful authentication.
	NoticeAuthenticated NoticeType = "authenticated"
	// NoticeEvent forwards a content event from the session engine.
	NoticeEvent NoticeType = "event"
)

// Notice is the realtime channel envelope. Delivery is live-only: no
// acknowledgment, no replay for late subscribers.
type Notice struct {
	Type    NoticeType `json:"type"`
	Payload any        `json:"payload"`
}

// EventPayload is the body of a forwarded content event.
type EventPayload struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
