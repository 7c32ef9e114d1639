package sync

import (
	"errors"
	"fmt"
)

// The worker funnels every cycle failure through one recovery point that
// classifies it with this taxonomy. Transport errors reschedule silently;
// everything else becomes a sticky account error.

// ConfigurationError means settings or credentials are absent or unusable.
// Never retried: requires user action.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// TransportError wraps a network/session-level failure. Transient: the worker
// closes the session and reschedules without touching account error state.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolIntegrityError means the provider's folder set violates an
// invariant the sync depends on (e.g. a Gmail account missing a canonical
// container). Fatal for the cycle, sticky on the account.
type ProtocolIntegrityError struct {
	Reason string
}

func (e *ProtocolIntegrityError) Error() string {
	return fmt.Sprintf("protocol integrity error: %s", e.Reason)
}

// IsTransport reports whether err should be treated as transient.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsConfiguration reports whether err requires user intervention.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
