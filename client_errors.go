package xmppcore

import (
	"errors"
	"time"
)

// EventHandler receives client lifecycle events.
// Events are errors: check the kind with errors.Is() and extract details
// with errors.As(). Handlers run synchronously, in registration order, on
// the connection's own goroutine.
type EventHandler func(client *Client, event error)

// Sentinel events for client lifecycle - check with errors.Is().
var (
	// ErrConnected is emitted when the transport connection is established
	// and the XML stream is open, before any feature is negotiated.
	ErrConnected = errors.New("connected")

	// ErrDisconnected is emitted when the client disconnects gracefully.
	ErrDisconnected = errors.New("disconnected")

	// ErrConnectionLost is emitted when the connection is lost unexpectedly.
	ErrConnectionLost = errors.New("connection lost")

	// ErrReconnecting is emitted when the client is attempting to reconnect.
	ErrReconnecting = errors.New("reconnecting")

	// ErrReconnectFailed is emitted when all reconnection attempts have failed.
	ErrReconnectFailed = errors.New("reconnect failed")

	// ErrStreamNegotiated is emitted once per stream generation when the
	// feature walk completes without a restart.
	ErrStreamNegotiated = errors.New("stream negotiated")

	// ErrSessionBound is emitted when the server confirms resource binding.
	ErrSessionBound = errors.New("session bound")

	// ErrSessionStarted is emitted after legacy session establishment.
	ErrSessionStarted = errors.New("session started")
)

// Sentinel errors for caller contract violations - check with errors.Is().
var (
	// ErrFeatureNotFound is returned when unregistering a feature whose
	// (order, name) pair is not present in the registry.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrUnknownInterface is returned when a stanza is accessed through a
	// logical name its type does not declare.
	ErrUnknownInterface = errors.New("unknown stanza interface")
)

// Sentinel errors for protocol issues - check with errors.Is().
var (
	// ErrProtocolViolation is returned when the peer violates the protocol.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrAuthFailed is returned when SASL authentication fails.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrTLSRequired is returned when the server requires STARTTLS but the
	// client has it disabled or unconfigured.
	ErrTLSRequired = errors.New("TLS required")

	// ErrNoSharedMechanism is returned when the server offers no SASL
	// mechanism the client supports.
	ErrNoSharedMechanism = errors.New("no shared SASL mechanism")

	// ErrBindFailed is returned when resource binding is rejected.
	ErrBindFailed = errors.New("resource binding failed")
)

// Sentinel errors for operations - check with errors.Is().
var (
	// ErrClientClosed is returned when an operation is attempted on a closed client.
	ErrClientClosed = errors.New("client closed")

	// ErrNotConnected is returned when an operation requires an active connection.
	ErrNotConnected = errors.New("not connected")

	// ErrStreamClosed is returned when the peer closed the XML stream.
	ErrStreamClosed = errors.New("stream closed")
)

// InterfaceError reports access to an undeclared stanza interface.
// Extract with errors.As().
type InterfaceError struct {
	err    error
	Stanza string
	Name   string
}

func (e *InterfaceError) Error() string {
	return "stanza <" + e.Stanza + "/> has no interface " + e.Name
}

func (e *InterfaceError) Unwrap() error { return e.err }

func newInterfaceError(stanza, name string) *InterfaceError {
	return &InterfaceError{err: ErrUnknownInterface, Stanza: stanza, Name: name}
}

// RegistryError reports a failed feature registry operation.
// Extract with errors.As().
type RegistryError struct {
	err     error
	Feature string
	Order   int
}

func (e *RegistryError) Error() string {
	return "feature registry: " + e.err.Error() + ": " + e.Feature
}

func (e *RegistryError) Unwrap() error { return e.err }

// NegotiationError reports a feature handler failure during stream
// negotiation. It carries the failing feature name and the underlying
// cause. Extract with errors.As().
type NegotiationError struct {
	Feature string
	Cause   error
}

func (e *NegotiationError) Error() string {
	return "negotiation failed on feature " + e.Feature + ": " + e.Cause.Error()
}

func (e *NegotiationError) Unwrap() error { return e.Cause }

// NewNegotiationError creates a NegotiationError for the given feature.
func NewNegotiationError(feature string, cause error) *NegotiationError {
	return &NegotiationError{Feature: feature, Cause: cause}
}

// StreamError represents a <stream:error/> received from the peer.
// Extract with errors.As().
type StreamError struct {
	// Condition is the defined-condition child element name, for example
	// "host-unknown" or "conflict".
	Condition string

	// Text is the optional human-readable description.
	Text string
}

func (e *StreamError) Error() string {
	if e.Text != "" {
		return "stream error: " + e.Condition + ": " + e.Text
	}
	return "stream error: " + e.Condition
}

func (e *StreamError) Unwrap() error { return ErrProtocolViolation }

// ConnectedEvent contains details about an established stream.
// Extract with errors.As().
type ConnectedEvent struct {
	err        error
	RemoteAddr string
	TLS        bool
}

func (e *ConnectedEvent) Error() string { return e.err.Error() }
func (e *ConnectedEvent) Unwrap() error { return e.err }

// NewConnectedEvent creates a new ConnectedEvent.
func NewConnectedEvent(remoteAddr string, tlsActive bool) *ConnectedEvent {
	return &ConnectedEvent{err: ErrConnected, RemoteAddr: remoteAddr, TLS: tlsActive}
}

// NegotiatedEvent contains details about a completed feature walk.
// Extract with errors.As().
type NegotiatedEvent struct {
	err error

	// Features are the names negotiated during this generation, in the
	// order they were handled.
	Features []string
}

func (e *NegotiatedEvent) Error() string { return e.err.Error() }
func (e *NegotiatedEvent) Unwrap() error { return e.err }

// NewNegotiatedEvent creates a new NegotiatedEvent.
func NewNegotiatedEvent(features []string) *NegotiatedEvent {
	return &NegotiatedEvent{err: ErrStreamNegotiated, Features: features}
}

// BoundEvent contains the server-confirmed identity after resource binding.
// Extract with errors.As().
type BoundEvent struct {
	err error
	JID JID
}

func (e *BoundEvent) Error() string { return e.err.Error() }
func (e *BoundEvent) Unwrap() error { return e.err }

// NewBoundEvent creates a new BoundEvent.
func NewBoundEvent(jid JID) *BoundEvent {
	return &BoundEvent{err: ErrSessionBound, JID: jid}
}

// ReconnectEvent contains details about a reconnection attempt.
// Extract with errors.As().
type ReconnectEvent struct {
	err         error
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	cancelFn    func()
}

func (e *ReconnectEvent) Error() string { return e.err.Error() }
func (e *ReconnectEvent) Unwrap() error { return e.err }

// Cancel stops further reconnection attempts.
func (e *ReconnectEvent) Cancel() {
	if e.cancelFn != nil {
		e.cancelFn()
	}
}

// NewReconnectEvent creates a new ReconnectEvent.
func NewReconnectEvent(attempt, maxAttempts int, delay time.Duration, cancelFn func()) *ReconnectEvent {
	return &ReconnectEvent{
		err:         ErrReconnecting,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Delay:       delay,
		cancelFn:    cancelFn,
	}
}

// ConnectionLostError contains details about an unexpected disconnection.
// Extract with errors.As().
type ConnectionLostError struct {
	err   error
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause != nil {
		return "connection lost: " + e.Cause.Error()
	}
	return "connection lost"
}

func (e *ConnectionLostError) Unwrap() error { return e.err }

// NewConnectionLostError creates a new ConnectionLostError.
func NewConnectionLostError(cause error) *ConnectionLostError {
	return &ConnectionLostError{err: ErrConnectionLost, Cause: cause}
}

// SASLFailure represents a SASL <failure/> response from the server.
// Extract with errors.As().
type SASLFailure struct {
	// Condition is the failure condition element name, for example
	// "not-authorized" or "invalid-mechanism".
	Condition string

	// Text is the optional human-readable description.
	Text string
}

func (e *SASLFailure) Error() string {
	if e.Text != "" {
		return "SASL failure: " + e.Condition + ": " + e.Text
	}
	return "SASL failure: " + e.Condition
}

func (e *SASLFailure) Unwrap() error { return ErrAuthFailed }
