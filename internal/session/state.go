package session

import (
	"encoding/json"
	"time"
)

// State is the lifecycle position of the process-wide session.
type State int

const (
	Uninitialized State = iota
	AwaitingChallenge
	Authenticated
	Ready
	Disconnected
	AuthFailed
)

var stateNames = map[State]string{
	Uninitialized:     "uninitialized",
	AwaitingChallenge: "awaiting-challenge",
	Authenticated:     "authenticated",
	Ready:             "ready",
	Disconnected:      "disconnected",
	AuthFailed:        "auth-failed",
}

var stateFromName = map[string]State{
	"uninitialized":      Uninitialized,
	"awaiting-challenge": AwaitingChallenge,
	"authenticated":      Authenticated,
	"ready":              Ready,
	"disconnected":       Disconnected,
	"auth-failed":        AuthFailed,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}

// Connected reports whether the session holds a live authenticated link.
func (s State) Connected() bool {
	return s == Authenticated || s == Ready
}

// Status is a point-in-time snapshot of the session for the status API.
type Status struct {
	State            State     `json:"state"`
	LastTransitionAt time.Time `json:"lastTransitionAt"`
	RetryCount       int       `json:"retryCount"`
	Recovering       bool      `json:"recovering,omitempty"`
}
