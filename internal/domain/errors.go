package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrProviderNotConfigured indicates the settings lack a URL, key or model.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrAgentUnavailable indicates the CLI agent executable cannot be resolved.
	ErrAgentUnavailable = errors.New("agent runtime unavailable")

	// ErrUnsupported indicates the adapter does not offer the requested operation.
	ErrUnsupported = errors.New("operation not supported by provider")
)

// ConfigError rejects a run before anything is dispatched.
type ConfigError struct {
	Err    error
	Kind   ProviderKind
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Kind, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// TransportError covers failures to obtain or keep a usable stream:
// non-2xx responses, missing bodies, spawn failures and unexpected exits.
type TransportError struct {
	Cause      error
	Message    string
	StatusCode int
}

func (e *TransportError) Error() string {
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ProviderError is an error the provider embedded in an otherwise healthy stream.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// ProtocolError is a fatal protocol violation or JSON-RPC error response.
type ProtocolError struct {
	Cause   error
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// TimeoutError reports that an attempt exceeded its request timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Request timed out after %dms", e.Timeout.Milliseconds())
}

// IsRetryable reports whether another attempt may follow err.
func IsRetryable(err error) bool {
	var protocolErr *ProtocolError
	return !errors.As(err, &protocolErr)
}
