package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wa-bridge/backend/internal/config"
	"github.com/wa-bridge/backend/internal/engine"
)

type fakeEngine struct {
	mu           sync.Mutex
	initCalls    int
	destroyCalls int
	initErr      error
	initBlock    chan struct{} // when non-nil, Initialize waits on it
	events       chan engine.Event
	sentTexts    []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan engine.Event, 16)}
}

func (f *fakeEngine) Initialize(ctx context.Context) error {
	f.mu.Lock()
	f.initCalls++
	block := f.initBlock
	err := f.initErr
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeEngine) Destroy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCalls++
	return nil
}

func (f *fakeEngine) Events() <-chan engine.Event { return f.events }

func (f *fakeEngine) SendText(ctx context.Context, to, body string) (*engine.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTexts = append(f.sentTexts, to+"|"+body)
	return &engine.SendResult{MessageID: "msg-1", To: to}, nil
}

func (f *fakeEngine) SendMedia(ctx context.Context, to string, media engine.Media, caption string) (*engine.SendResult, error) {
	return &engine.SendResult{MessageID: "msg-1", To: to}, nil
}

func (f *fakeEngine) IsReachable(ctx context.Context, to string) (bool, error) {
	return true, nil
}

func (f *fakeEngine) counts() (inits, destroys int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls, f.destroyCalls
}

func testRecoveryConfig() config.RecoveryConfig {
	return config.RecoveryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func lifecycle(evType engine.EventType) engine.Event {
	return engine.Event{Type: evType}
}

func TestApplyHappyPath(t *testing.T) {
	m := NewMachine(newFakeEngine(), testRecoveryConfig(), nil)

	steps := []struct {
		ev   engine.EventType
		want State
	}{
		{engine.EventQRChallenge, AwaitingChallenge},
		{engine.EventAuthenticated, Authenticated},
		{engine.EventReady, Ready},
	}

	for _, step := range steps {
		if !m.Apply(lifecycle(step.ev)) {
			t.Fatalf("Apply(%s) not applied in state %s", step.ev, m.State())
		}
		if got := m.State(); got != step.want {
			t.Fatalf("after %s: state = %s, want %s", step.ev, got, step.want)
		}
	}
}

func TestApplyInvalidEventsIgnored(t *testing.T) {
	tests := []struct {
		name  string
		state State
		ev    engine.EventType
	}{
		{"ReadyWhileUninitialized", Uninitialized, engine.EventReady},
		{"AuthenticatedWhileUninitialized", Uninitialized, engine.EventAuthenticated},
		{"DisconnectedWhileUninitialized", Uninitialized, engine.EventDisconnected},
		{"QRWhileReady", Ready, engine.EventQRChallenge},
		{"QRWhileAwaiting", AwaitingChallenge, engine.EventQRChallenge},
		{"AuthFailedWhileReady", Ready, engine.EventAuthFailed},
		{"ReadyWhileReady", Ready, engine.EventReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(newFakeEngine(), testRecoveryConfig(), nil)
			m.state = tt.state

			if m.Apply(lifecycle(tt.ev)) {
				t.Errorf("Apply(%s) applied in state %s", tt.ev, tt.state)
			}
			if got := m.State(); got != tt.state {
				t.Errorf("state changed to %s", got)
			}
		})
	}
}

func TestContentEventsDoNotTransition(t *testing.T) {
	m := NewMachine(newFakeEngine(), testRecoveryConfig(), nil)
	m.state = Ready

	content := []engine.EventType{
		engine.EventMessageReceived,
		engine.EventMessageAck,
		engine.EventGroupNotification,
		engine.EventCallReceived,
		engine.EventContactChanged,
	}
	for _, evType := range content {
		if m.Apply(lifecycle(evType)) {
			t.Errorf("content event %s applied a transition", evType)
		}
	}
	if m.State() != Ready {
		t.Errorf("state = %s, want ready", m.State())
	}
}

func TestDisconnectTriggersRecovery(t *testing.T) {
	eng := newFakeEngine()
	m := NewMachine(eng, testRecoveryConfig(), nil)
	m.state = Ready

	m.Apply(engine.Event{Type: engine.EventDisconnected, Reason: "ws closed"})

	waitFor(t, "teardown and reinitialize", func() bool {
		inits, destroys := eng.counts()
		return destroys == 1 && inits == 1
	})
	waitFor(t, "re-entry to uninitialized", func() bool {
		st := m.Status()
		return st.State == Uninitialized && !st.Recovering
	})
}

func TestRecoverySingleFlight(t *testing.T) {
	eng := newFakeEngine()
	eng.initBlock = make(chan struct{})
	m := NewMachine(eng, testRecoveryConfig(), nil)
	m.state = Ready

	m.Apply(lifecycle(engine.EventDisconnected))
	waitFor(t, "first recovery to reach initialize", func() bool {
		inits, _ := eng.counts()
		return inits == 1
	})

	// A second disconnect while recovery is still in flight must not start
	// another teardown/reinitialize cycle.
	m.mu.Lock()
	m.state = Ready // engine ordering is untrusted; simulate a late transition
	m.mu.Unlock()
	m.Apply(lifecycle(engine.EventDisconnected))

	close(eng.initBlock)
	waitFor(t, "recovery to finish", func() bool { return !m.Status().Recovering })

	inits, destroys := eng.counts()
	if inits != 1 {
		t.Errorf("initialize ran %d times, want 1", inits)
	}
	if destroys != 1 {
		t.Errorf("destroy ran %d times, want 1", destroys)
	}
}

func TestRecoveryExhaustionNotifies(t *testing.T) {
	eng := newFakeEngine()
	eng.initErr = errors.New("engine refuses to start")

	notices := make(chan string, 1)
	m := NewMachine(eng, testRecoveryConfig(), func(text string) { notices <- text })
	m.state = Ready

	m.Apply(lifecycle(engine.EventDisconnected))

	select {
	case <-notices:
	case <-time.After(2 * time.Second):
		t.Fatal("no persistent failure notice after retry exhaustion")
	}

	// MaxRetries=2 means one attempt plus two retries.
	inits, _ := eng.counts()
	if inits != 3 {
		t.Errorf("initialize attempts = %d, want 3", inits)
	}
	if st := m.Status(); st.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", st.RetryCount)
	}

	// The process stays up; command callers just see not-ready.
	err := m.Exec(context.Background(), func(engine.Engine) error { return nil })
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Exec after abandoned recovery = %v, want ErrNotReady", err)
	}
}

func TestExecFailsFastDuringRecovery(t *testing.T) {
	eng := newFakeEngine()
	eng.initBlock = make(chan struct{})
	m := NewMachine(eng, testRecoveryConfig(), nil)
	m.state = Ready

	m.Apply(lifecycle(engine.EventDisconnected))
	waitFor(t, "recovery to reach initialize", func() bool {
		inits, _ := eng.counts()
		return inits == 1
	})

	// Recovery is parked inside Initialize holding the command mutex. A
	// command must not queue behind it for the rest of the backoff cycle.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.Exec(ctx, func(engine.Engine) error { return nil })
	elapsed := time.Since(start)

	close(eng.initBlock)

	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("Exec during recovery = %v, want ErrNotReady", err)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("Exec returned after %v, want an immediate failure", elapsed)
	}

	waitFor(t, "recovery to finish", func() bool { return !m.Status().Recovering })
}

func TestReadyResetsRetryCount(t *testing.T) {
	m := NewMachine(newFakeEngine(), testRecoveryConfig(), nil)
	m.state = Authenticated
	m.retryCount = 4

	m.Apply(lifecycle(engine.EventReady))

	if st := m.Status(); st.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 after ready", st.RetryCount)
	}
}

func TestExec(t *testing.T) {
	eng := newFakeEngine()
	m := NewMachine(eng, testRecoveryConfig(), nil)

	called := false
	err := m.Exec(context.Background(), func(engine.Engine) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("Exec while uninitialized = %v, want ErrNotReady", err)
	}
	if called {
		t.Fatal("fn ran while session not ready")
	}

	m.state = Ready
	err = m.Exec(context.Background(), func(e engine.Engine) error {
		_, err := e.SendText(context.Background(), "628123@c.us", "hi")
		return err
	})
	if err != nil {
		t.Fatalf("Exec while ready: %v", err)
	}
	if len(eng.sentTexts) != 1 {
		t.Fatalf("engine saw %d sends, want 1", len(eng.sentTexts))
	}
}
