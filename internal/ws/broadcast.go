package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sendBuffer = 64

// subscriber is one live realtime connection. The broadcaster's registry is
// non-owning: the transport layer owns the connection's lifetime, the
// broadcaster only holds it between Register and Unregister.
type subscriber struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time
	b           *Broadcaster
}

func (s *subscriber) writePump() {
	defer s.conn.Close()
	for msg := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.b.Unregister(s)
			return
		}
	}
}

// Broadcaster fans session notices out to all registered subscribers. One
// publisher (the bridge pump), N subscribers. Delivery to each subscriber is
// independent: a slow or dead subscriber is dropped, never waited on.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*subscriber]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*subscriber]bool)}
}

// Register adds a connection to the registry and immediately queues the
// initial connecting notice. Past lifecycle events are not replayed.
func (b *Broadcaster) Register(conn *websocket.Conn) *subscriber {
	s := &subscriber{
		id:          uuid.NewString(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		connectedAt: time.Now(),
		b:           b,
	}
	go s.writePump()

	b.mu.Lock()
	b.subs[s] = true
	b.mu.Unlock()

	if data, err := json.Marshal(Notice{Type: NoticeMessage, Payload: "Connecting..."}); err == nil {
		select {
		case s.send <- data:
		default:
		}
	}
	return s
}

// Unregister removes a subscriber and closes its send queue. Safe to call
// more than once; only the first call for a given subscriber does anything.
func (b *Broadcaster) Unregister(s *subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.send)
	}
	b.mu.Unlock()
}

// Publish delivers a notice to every currently registered subscriber. The
// notice is marshaled once, not per subscriber. Fan-out iterates a snapshot
// of the registry so registration changes mid-publish are safe; a subscriber
// added during a publish may or may not see that notice.
func (b *Broadcaster) Publish(n Notice) {
	data, err := json.Marshal(n)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.send <- data:
		default:
			// Subscriber can't keep up; drop it rather than stall the rest.
			log.Printf("subscriber %s too slow, disconnecting", s.id)
			b.Unregister(s)
		}
	}
}

// PublishStatus publishes a plain status text notice.
func (b *Broadcaster) PublishStatus(text string) {
	b.Publish(Notice{Type: NoticeMessage, Payload: text})
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
