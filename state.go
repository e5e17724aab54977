package xmppcore

import (
	"sort"
	"sync"
	"sync/atomic"
)

// ConnectionState tracks the coarse session state of one connection.
// Every transport-level connect resets it to the zero state before any
// feature handler runs; a mid-bootstrap stream restart keeps it.
//
// The state is owned by the client. Feature handlers read it and write it
// on the client's behalf while negotiating.
type ConnectionState struct {
	authenticated  atomic.Bool
	bound          atomic.Bool
	sessionStarted atomic.Bool
	bindFailed     atomic.Bool

	mu         sync.Mutex
	negotiated map[string]struct{}
}

// NewConnectionState creates a connection state in its zero state.
func NewConnectionState() *ConnectionState {
	return &ConnectionState{negotiated: make(map[string]struct{})}
}

// Reset returns every field to its zero value and clears the negotiated
// feature set.
func (s *ConnectionState) Reset() {
	s.authenticated.Store(false)
	s.bound.Store(false)
	s.sessionStarted.Store(false)
	s.bindFailed.Store(false)

	s.mu.Lock()
	s.negotiated = make(map[string]struct{})
	s.mu.Unlock()
}

// Authenticated reports whether SASL authentication has completed.
func (s *ConnectionState) Authenticated() bool { return s.authenticated.Load() }

// SetAuthenticated records the authentication flag.
func (s *ConnectionState) SetAuthenticated(v bool) { s.authenticated.Store(v) }

// Bound reports whether a resource has been bound.
func (s *ConnectionState) Bound() bool { return s.bound.Load() }

// SetBound records the resource binding flag.
func (s *ConnectionState) SetBound(v bool) { s.bound.Store(v) }

// SessionStarted reports whether legacy session establishment completed.
func (s *ConnectionState) SessionStarted() bool { return s.sessionStarted.Load() }

// SetSessionStarted records the session establishment flag.
func (s *ConnectionState) SetSessionStarted(v bool) { s.sessionStarted.Store(v) }

// BindFailed reports whether the last resource binding attempt failed.
func (s *ConnectionState) BindFailed() bool { return s.bindFailed.Load() }

// SetBindFailed records the binding failure flag.
func (s *ConnectionState) SetBindFailed(v bool) { s.bindFailed.Store(v) }

// MarkNegotiated records that the named feature was handled during the
// current connection.
func (s *ConnectionState) MarkNegotiated(name string) {
	s.mu.Lock()
	s.negotiated[name] = struct{}{}
	s.mu.Unlock()
}

// Negotiated reports whether the named feature was handled.
func (s *ConnectionState) Negotiated(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.negotiated[name]
	return ok
}

// NegotiatedFeatures returns the handled feature names in sorted order.
func (s *ConnectionState) NegotiatedFeatures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.negotiated))
	for name := range s.negotiated {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
