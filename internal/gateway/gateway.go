// Package gateway executes inbound send commands against the session
// engine: validation, precondition checks, and uniform error mapping. One
// bad request must never corrupt session state; every failure surfaces as a
// typed error to exactly the caller that triggered it.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wa-bridge/backend/internal/engine"
	"github.com/wa-bridge/backend/internal/media"
	"github.com/wa-bridge/backend/internal/phone"
	"github.com/wa-bridge/backend/internal/session"
)

type Gateway struct {
	machine     *session.Machine
	fetcher     *media.Fetcher
	sendTimeout time.Duration
}

// New creates a gateway. sendTimeout bounds each engine call; the fetcher
// carries its own separate timeout for media retrieval.
func New(machine *session.Machine, fetcher *media.Fetcher, sendTimeout time.Duration) *Gateway {
	return &Gateway{
		machine:     machine,
		fetcher:     fetcher,
		sendTimeout: sendTimeout,
	}
}

type SendTextRequest struct {
	Number  string
	Message string
}

// SendText validates the request, checks the recipient is reachable, and
// delivers the message. Fails fast with session.ErrNotReady unless the
// session is Ready. No automatic retry on any failure.
func (g *Gateway) SendText(ctx context.Context, req SendTextRequest) (*engine.SendResult, error) {
	var missing []string
	if strings.TrimSpace(req.Number) == "" {
		missing = append(missing, "number")
	}
	if strings.TrimSpace(req.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}

	to := phone.Canonicalize(req.Number)

	ctx, cancel := context.WithTimeout(ctx, g.sendTimeout)
	defer cancel()

	var result *engine.SendResult
	err := g.machine.Exec(ctx, func(eng engine.Engine) error {
		reachable, err := eng.IsReachable(ctx, to)
		if err != nil {
			return &DeliveryError{Err: fmt.Errorf("reachability check: %w", err)}
		}
		if !reachable {
			return &UnreachableRecipientError{Recipient: to}
		}

		res, err := eng.SendText(ctx, to, req.Message)
		if err != nil {
			return &DeliveryError{Err: err}
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type SendMediaRequest struct {
	Number  string
	Caption string
	FileURL string
}

// SendMedia resolves the media reference and delivers it with the caption.
// Unlike SendText there is no reachability precondition — a long-standing
// asymmetry kept on purpose until product decides otherwise.
func (g *Gateway) SendMedia(ctx context.Context, req SendMediaRequest) (*engine.SendResult, error) {
	// Fail fast before spending a fetch on a session that can't send.
	if g.machine.State() != session.Ready {
		return nil, session.ErrNotReady
	}

	to := phone.Canonicalize(req.Number)

	payload, err := g.fetcher.Resolve(ctx, req.FileURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.sendTimeout)
	defer cancel()

	var result *engine.SendResult
	err = g.machine.Exec(ctx, func(eng engine.Engine) error {
		res, err := eng.SendMedia(ctx, to, *payload, req.Caption)
		if err != nil {
			return &DeliveryError{Err: err}
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
