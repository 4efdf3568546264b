package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	remoteEventBuffer = 256
	remoteReadTimeout = 90 * time.Second
)

// Remote drives a session engine sidecar: commands go over its HTTP API,
// events arrive on its WebSocket feed. The sidecar owns the actual chat
// client (browser automation, credential storage, transport reconnection);
// this adapter only translates between its wire format and the Engine
// interface.
type Remote struct {
	baseURL string
	client  *http.Client

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	events chan Event
}

// NewRemote creates an adapter for a sidecar at baseURL
// (e.g. "http://127.0.0.1:7006").
func NewRemote(baseURL string, commandTimeout time.Duration) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: commandTimeout},
		events:  make(chan Event, remoteEventBuffer),
	}
}

// wireEvent is the sidecar's event envelope.
type wireEvent struct {
	Type      string             `json:"type"`
	Challenge string             `json:"challenge,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Message   *Message           `json:"message,omitempty"`
	Ack       *Ack               `json:"ack,omitempty"`
	Group     *GroupNotification `json:"group,omitempty"`
	Call      *Call              `json:"call,omitempty"`
	Contact   *ContactChange     `json:"contact,omitempty"`
}

func (r *Remote) Initialize(ctx context.Context) error {
	if err := r.post(ctx, "/session/start", nil, nil); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}

	wsURL := "ws" + strings.TrimPrefix(r.baseURL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("engine event feed dial: %w", err)
	}

	r.mu.Lock()
	if r.conn != nil {
		r.conn.Close()
	}
	if r.cancel != nil {
		r.cancel()
	}
	readCtx, cancel := context.WithCancel(context.Background())
	r.conn = conn
	r.cancel = cancel
	r.mu.Unlock()

	go r.readLoop(readCtx, conn)
	return nil
}

func (r *Remote) Destroy(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.mu.Unlock()

	if err := r.post(ctx, "/session/stop", nil, nil); err != nil {
		return fmt.Errorf("engine stop: %w", err)
	}
	return nil
}

func (r *Remote) Events() <-chan Event {
	return r.events
}

// readLoop pumps sidecar events into the adapter's channel until the
// connection drops. A dropped feed is reported as a disconnected event so
// the state machine can run its recovery path.
func (r *Remote) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	for {
		conn.SetReadDeadline(time.Now().Add(remoteReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return // deliberate teardown, not a session drop
			}
			r.emit(Event{Type: EventDisconnected, Reason: fmt.Sprintf("event feed: %v", err)})
			return
		}

		var we wireEvent
		if err := json.Unmarshal(data, &we); err != nil {
			log.Printf("engine: malformed event dropped: %v", err)
			continue
		}
		r.emit(Event{
			Type:      EventType(we.Type),
			Challenge: we.Challenge,
			Reason:    we.Reason,
			Message:   we.Message,
			Ack:       we.Ack,
			Group:     we.Group,
			Call:      we.Call,
			Contact:   we.Contact,
		})
	}
}

func (r *Remote) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		// The pump has stalled badly; dropping content beats blocking the
		// sidecar feed. Lifecycle events are rare enough to always fit.
		log.Printf("engine: event buffer full, dropped %s", ev.Type)
	}
}

func (r *Remote) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	req := map[string]string{"to": to, "body": body}
	var res SendResult
	if err := r.post(ctx, "/messages/text", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Remote) SendMedia(ctx context.Context, to string, media Media, caption string) (*SendResult, error) {
	req := map[string]any{
		"to":      to,
		"media":   media, // Data marshals as base64 via encoding/json
		"caption": caption,
	}
	var res SendResult
	if err := r.post(ctx, "/messages/media", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Remote) IsReachable(ctx context.Context, to string) (bool, error) {
	var res struct {
		Exists bool `json:"exists"`
	}
	if err := r.get(ctx, "/contacts/"+to+"/exists", &res); err != nil {
		return false, err
	}
	return res.Exists, nil
}

func (r *Remote) post(ctx context.Context, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req, out)
}

func (r *Remote) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	return r.do(req, out)
}

func (r *Remote) do(req *http.Request, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("engine %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
