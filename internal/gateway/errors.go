package gateway

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed caller input. Fields lists every
// offending field, not just the first.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: missing %s", strings.Join(e.Fields, ", "))
}

// UnreachableRecipientError reports a recipient that is not a registered
// identity on the network. The send was never attempted.
type UnreachableRecipientError struct {
	Recipient string
}

func (e *UnreachableRecipientError) Error() string {
	return fmt.Sprintf("recipient %s is not registered on the network", e.Recipient)
}

// DeliveryError wraps a send the engine rejected. Never retried here — the
// caller decides what to do with it.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
