package xmppcore

import (
	"context"
	"sync"
)

// negotiationState is the negotiator's per-generation state.
type negotiationState int

const (
	stateNegotiating negotiationState = iota
	stateDone
)

// FeatureNegotiator walks the feature registry against a stream features
// announcement, one announcement per stream generation. Handlers run
// strictly in ascending (order, name); a handled restart-class feature
// truncates the walk so the transport can restart the stream, because the
// remainder of the announcement is stale once the stream changes.
type FeatureNegotiator struct {
	registry *FeatureRegistry
	state    *ConnectionState

	mu         sync.Mutex
	phase      negotiationState
	generation uint64
	handled    []string

	onNegotiated func(features []string)
}

// NewFeatureNegotiator creates a negotiator over the given registry and
// connection state, starting at generation 1 in the negotiating phase.
func NewFeatureNegotiator(registry *FeatureRegistry, state *ConnectionState) *FeatureNegotiator {
	return &FeatureNegotiator{
		registry:   registry,
		state:      state,
		phase:      stateNegotiating,
		generation: 1,
	}
}

// OnNegotiated sets the callback fired once per generation when the walk
// completes without a restart. It runs synchronously on the negotiating
// goroutine.
func (n *FeatureNegotiator) OnNegotiated(fn func(features []string)) {
	n.mu.Lock()
	n.onNegotiated = fn
	n.mu.Unlock()
}

// NewGeneration begins a fresh stream generation: the negotiator re-enters
// the negotiating phase and forgets the features handled so far. Called by
// the client after a stream restart or a fresh connection.
func (n *FeatureNegotiator) NewGeneration() {
	n.mu.Lock()
	n.phase = stateNegotiating
	n.generation++
	n.handled = nil
	n.mu.Unlock()
}

// Done reports whether the current generation finished negotiating.
func (n *FeatureNegotiator) Done() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phase == stateDone
}

// Generation returns the current stream generation counter.
func (n *FeatureNegotiator) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.generation
}

// HandledFeatures returns the features handled so far this generation, in
// handling order.
func (n *FeatureNegotiator) HandledFeatures() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.handled))
	copy(out, n.handled)
	return out
}

// HandleAnnouncement consumes one features announcement. It returns
// restart=true when a handled restart-class feature halted the walk; the
// caller restarts the stream and waits for the next announcement. When the
// walk completes it transitions to done and fires the negotiated callback
// exactly once for this generation.
//
// A handler error aborts the generation and is returned as a
// NegotiationError carrying the feature name. Context cancellation is
// observed between handlers and prevents further invocations.
func (n *FeatureNegotiator) HandleAnnouncement(ctx context.Context, c *Client, features *StreamFeatures) (bool, error) {
	for name := range n.registry.OrderedNames() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !features.Has(name) {
			continue
		}

		entry, ok := n.registry.lookup(name)
		if !ok {
			continue
		}

		handled, err := entry.handler(ctx, c, features)
		if err != nil {
			return false, NewNegotiationError(name, err)
		}
		if !handled {
			continue
		}

		n.recordHandled(name)

		if entry.restart {
			return true, nil
		}
	}

	n.finish()
	return false, nil
}

func (n *FeatureNegotiator) recordHandled(name string) {
	n.state.MarkNegotiated(name)
	n.mu.Lock()
	n.handled = append(n.handled, name)
	n.mu.Unlock()
}

func (n *FeatureNegotiator) finish() {
	n.mu.Lock()
	n.phase = stateDone
	handled := make([]string, len(n.handled))
	copy(handled, n.handled)
	fn := n.onNegotiated
	n.mu.Unlock()

	if fn != nil {
		fn(handled)
	}
}
