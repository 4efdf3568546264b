package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wa-bridge/backend/internal/config"
	"github.com/wa-bridge/backend/internal/engine"
)

// ErrNotReady is returned by Exec when the session cannot accept commands.
// Callers should retry later; the condition is transient while the engine
// authenticates or recovers.
var ErrNotReady = errors.New("session not ready")

// transitions is the full table of valid lifecycle transitions. An event
// with no entry for the current state is inconsistent with it and ignored —
// the engine gives no ordering guarantees.
var transitions = map[engine.EventType]map[State]State{
	engine.EventQRChallenge:   {Uninitialized: AwaitingChallenge},
	engine.EventAuthenticated: {AwaitingChallenge: Authenticated},
	engine.EventReady:         {Authenticated: Ready},
	engine.EventAuthFailed:    {AwaitingChallenge: AuthFailed},
	engine.EventDisconnected: {
		Authenticated: Disconnected,
		Ready:         Disconnected,
	},
}

// Machine owns the process-wide session: it is the only component allowed
// to initialize or destroy the engine, the only writer of session state,
// and the serialization point for engine commands.
//
// Entering Disconnected or AuthFailed triggers recovery: re-entry to
// Uninitialized followed by teardown and a bounded, backoff-spaced
// reinitialize. Recovery is single-flight — a second trigger while one is
// in progress is suppressed.
type Machine struct {
	eng    engine.Engine
	cfg    config.RecoveryConfig
	notify func(text string)

	mu               sync.Mutex
	state            State
	lastTransitionAt time.Time
	retryCount       int
	recovering       bool

	// cmdMu serializes engine commands (sends, reachability probes) with
	// teardown/reinitialize so their effects cannot interleave on the
	// underlying session.
	cmdMu sync.Mutex
}

// NewMachine creates the machine in Uninitialized. notify, if non-nil,
// receives operator-facing text when recovery gives up; it must not block.
func NewMachine(eng engine.Engine, cfg config.RecoveryConfig, notify func(string)) *Machine {
	if notify == nil {
		notify = func(string) {}
	}
	return &Machine{
		eng:              eng,
		cfg:              cfg,
		notify:           notify,
		state:            Uninitialized,
		lastTransitionAt: time.Now(),
	}
}

// Start performs the initial engine initialize.
func (m *Machine) Start(ctx context.Context) error {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()
	if err := m.eng.Initialize(ctx); err != nil {
		return fmt.Errorf("engine initialize: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot for the status API.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:            m.state,
		LastTransitionAt: m.lastTransitionAt,
		RetryCount:       m.retryCount,
		Recovering:       m.recovering,
	}
}

// Apply folds one engine event into the session state. Content events and
// events inconsistent with the current state leave it unchanged. Returns
// whether a transition was applied.
func (m *Machine) Apply(ev engine.Event) bool {
	if !ev.Type.IsLifecycle() {
		return false
	}

	m.mu.Lock()
	next, ok := transitions[ev.Type][m.state]
	if !ok {
		log.Printf("session: ignoring %s while %s", ev.Type, m.state)
		m.mu.Unlock()
		return false
	}

	prev := m.state
	m.state = next
	m.lastTransitionAt = time.Now()
	if next == Ready {
		m.retryCount = 0
	}

	startRecovery := (next == Disconnected || next == AuthFailed) && !m.recovering
	if startRecovery {
		m.recovering = true
	}
	m.mu.Unlock()

	log.Printf("session: %s -> %s (%s)", prev, next, ev.Type)

	if startRecovery {
		go m.recover(ev.Reason)
	}
	return true
}

// Exec runs fn against the engine under the command mutex, failing fast
// when the session is not Ready. The state check happens before the lock:
// recovery holds cmdMu for its whole teardown/reinitialize cycle, and a
// command arriving mid-recovery must get ErrNotReady immediately, not queue
// behind it. The re-check after the lock covers a disconnect that lands
// between check and acquisition. Commands never interleave with each other
// or with recovery teardown.
func (m *Machine) Exec(ctx context.Context, fn func(engine.Engine) error) error {
	if m.State() != Ready {
		return ErrNotReady
	}
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()
	if m.State() != Ready {
		return ErrNotReady
	}
	return fn(m.eng)
}

// recover tears the engine down and reinitializes it, spacing attempts with
// exponential backoff up to the configured retry bound. Runs in its own
// goroutine; the disconnect that triggered it has already been observed by
// the caller, so blocking here stalls nobody.
func (m *Machine) recover(reason string) {
	defer func() {
		m.mu.Lock()
		m.recovering = false
		m.mu.Unlock()
	}()

	m.mu.Lock()
	m.state = Uninitialized
	m.lastTransitionAt = time.Now()
	m.mu.Unlock()
	log.Printf("session: recovering (%s)", reason)

	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	ctx := context.Background()
	if err := m.eng.Destroy(ctx); err != nil {
		log.Printf("session: engine destroy during recovery: %v", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.InitialBackoff
	bo.MaxInterval = m.cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // bounded by retry count, not wall clock

	attempts := 0
	initialize := func() error {
		attempts++
		m.mu.Lock()
		m.retryCount = attempts
		m.mu.Unlock()

		if err := m.eng.Initialize(ctx); err != nil {
			log.Printf("session: reinitialize attempt %d: %v", attempts, err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(initialize, backoff.WithMaxRetries(bo, uint64(m.cfg.MaxRetries))); err != nil {
		log.Printf("session: recovery abandoned after %d attempts: %v", attempts, err)
		m.notify(fmt.Sprintf("Session recovery failed after %d attempts. Restart the service to reconnect.", attempts))
		return
	}

	log.Printf("session: engine reinitialized after %d attempt(s)", attempts)
}
