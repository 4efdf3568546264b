// Package mock provides a scripted session engine for demos and local
// development: it walks the login lifecycle on a timer and echoes traffic
// without touching any real chat network.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wa-bridge/backend/internal/engine"
)

// Engine simulates a session engine. Initialize emits a QR challenge,
// then authenticates and becomes ready on a short delay. Recipients whose
// number contains "000000" are treated as unregistered so the unreachable
// path can be exercised by hand.
type Engine struct {
	stepDelay time.Duration
	events    chan engine.Event

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    int
	sends  int
}

// NewEngine creates a mock engine. stepDelay spaces the scripted lifecycle
// events; zero means a snappy 500ms.
func NewEngine(stepDelay time.Duration) *Engine {
	if stepDelay <= 0 {
		stepDelay = 500 * time.Millisecond
	}
	return &Engine{
		stepDelay: stepDelay,
		events:    make(chan engine.Event, 64),
	}
}

func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	scriptCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	go e.runScript(scriptCtx, seq)
	return nil
}

func (e *Engine) Destroy(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	return nil
}

func (e *Engine) Events() <-chan engine.Event {
	return e.events
}

// runScript plays the login lifecycle for one Initialize call.
func (e *Engine) runScript(ctx context.Context, seq int) {
	script := []engine.Event{
		{Type: engine.EventQRChallenge, Challenge: fmt.Sprintf("mock-challenge-%d", seq)},
		{Type: engine.EventAuthenticated},
		{Type: engine.EventReady},
		{Type: engine.EventMessageReceived, Message: &engine.Message{
			ID:        fmt.Sprintf("mock-inbound-%d", seq),
			From:      "628555000111@c.us",
			Body:      "!ping",
			Timestamp: time.Now(),
		}},
	}

	for _, ev := range script {
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.stepDelay):
		}
		select {
		case e.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) SendText(ctx context.Context, to, body string) (*engine.SendResult, error) {
	e.mu.Lock()
	e.sends++
	n := e.sends
	e.mu.Unlock()

	result := &engine.SendResult{
		MessageID: fmt.Sprintf("mock-sent-%d", n),
		To:        to,
		Timestamp: time.Now(),
	}

	// Echo an ack so subscribers see traffic flowing.
	select {
	case e.events <- engine.Event{Type: engine.EventMessageAck, Ack: &engine.Ack{MessageID: result.MessageID, Level: engine.AckDevice}}:
	default:
	}
	return result, nil
}

func (e *Engine) SendMedia(ctx context.Context, to string, media engine.Media, caption string) (*engine.SendResult, error) {
	e.mu.Lock()
	e.sends++
	n := e.sends
	e.mu.Unlock()

	return &engine.SendResult{
		MessageID: fmt.Sprintf("mock-sent-%d", n),
		To:        to,
		Timestamp: time.Now(),
	}, nil
}

func (e *Engine) IsReachable(ctx context.Context, to string) (bool, error) {
	return !strings.Contains(to, "000000"), nil
}
