package xmppcore

import (
	"context"
	"errors"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func announce(names ...string) *StreamFeatures {
	el := etree.NewElement("features")
	el.CreateAttr("xmlns", NamespaceStream)
	for _, name := range names {
		el.CreateElement(name)
	}
	return ParseStreamFeatures(el)
}

// recordingHandler appends the feature name to calls and reports handled.
func recordingHandler(calls *[]string, name string, handled bool) FeatureHandler {
	return func(_ context.Context, _ *Client, _ *StreamFeatures) (bool, error) {
		*calls = append(*calls, name)
		return handled, nil
	}
}

func TestNegotiatorInvocationOrder(t *testing.T) {
	var calls []string
	r := NewFeatureRegistry()
	r.Register("a", recordingHandler(&calls, "a", true), false, 10)
	r.Register("b", recordingHandler(&calls, "b", true), false, 5)

	n := NewFeatureNegotiator(r, NewConnectionState())
	restart, err := n.HandleAnnouncement(context.Background(), nil, announce("a", "b"))

	require.NoError(t, err)
	assert.False(t, restart)
	assert.Equal(t, []string{"b", "a"}, calls, "ascending order wins over registration order")
}

func TestNegotiatorTieBreakDeterminism(t *testing.T) {
	for range 10 {
		var calls []string
		r := NewFeatureRegistry()
		r.Register("zeta", recordingHandler(&calls, "zeta", true), false, 100)
		r.Register("alpha", recordingHandler(&calls, "alpha", true), false, 100)

		n := NewFeatureNegotiator(r, NewConnectionState())
		_, err := n.HandleAnnouncement(context.Background(), nil, announce("zeta", "alpha"))
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "zeta"}, calls)
	}
}

func TestNegotiatorRestartTruncation(t *testing.T) {
	var calls []string
	r := NewFeatureRegistry()
	r.Register("starttls", recordingHandler(&calls, "starttls", true), true, 0)
	r.Register("bind", recordingHandler(&calls, "bind", true), false, 10)

	var negotiated bool
	n := NewFeatureNegotiator(r, NewConnectionState())
	n.OnNegotiated(func([]string) { negotiated = true })

	restart, err := n.HandleAnnouncement(context.Background(), nil, announce("starttls", "bind"))

	require.NoError(t, err)
	assert.True(t, restart)
	assert.Equal(t, []string{"starttls"}, calls, "nothing past the restart point runs")
	assert.False(t, negotiated, "no completion signal for a truncated generation")
	assert.False(t, n.Done())
}

func TestNegotiatorRestartFlagWithoutHandled(t *testing.T) {
	// A restart-class feature that reports unhandled must not halt the walk.
	var calls []string
	r := NewFeatureRegistry()
	r.Register("starttls", recordingHandler(&calls, "starttls", false), true, 0)
	r.Register("bind", recordingHandler(&calls, "bind", true), false, 10)

	n := NewFeatureNegotiator(r, NewConnectionState())
	restart, err := n.HandleAnnouncement(context.Background(), nil, announce("starttls", "bind"))

	require.NoError(t, err)
	assert.False(t, restart)
	assert.Equal(t, []string{"starttls", "bind"}, calls)
}

func TestNegotiatorCompletionSignal(t *testing.T) {
	r := NewFeatureRegistry()
	var calls []string
	r.Register("bind", recordingHandler(&calls, "bind", true), false, 10000)
	r.Register("session", recordingHandler(&calls, "session", true), false, 10001)

	var fired int
	var got []string
	n := NewFeatureNegotiator(r, NewConnectionState())
	n.OnNegotiated(func(features []string) {
		fired++
		got = features
	})

	restart, err := n.HandleAnnouncement(context.Background(), nil, announce("bind", "session"))

	require.NoError(t, err)
	assert.False(t, restart)
	assert.Equal(t, 1, fired, "negotiated fires exactly once per generation")
	assert.Equal(t, []string{"bind", "session"}, got)
	assert.True(t, n.Done())
}

func TestNegotiatorSkipsUnannounced(t *testing.T) {
	var calls []string
	r := NewFeatureRegistry()
	r.Register("starttls", recordingHandler(&calls, "starttls", true), true, 10)
	r.Register("bind", recordingHandler(&calls, "bind", true), false, 10000)

	n := NewFeatureNegotiator(r, NewConnectionState())
	restart, err := n.HandleAnnouncement(context.Background(), nil, announce("bind"))

	require.NoError(t, err)
	assert.False(t, restart)
	assert.Equal(t, []string{"bind"}, calls)
}

func TestNegotiatorHandlerError(t *testing.T) {
	boom := errors.New("mechanism rejected")
	var calls []string
	r := NewFeatureRegistry()
	r.Register("mechanisms", func(_ context.Context, _ *Client, _ *StreamFeatures) (bool, error) {
		return false, boom
	}, true, 100)
	r.Register("bind", recordingHandler(&calls, "bind", true), false, 10000)

	n := NewFeatureNegotiator(r, NewConnectionState())
	_, err := n.HandleAnnouncement(context.Background(), nil, announce("mechanisms", "bind"))

	require.Error(t, err)
	var negErr *NegotiationError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, "mechanisms", negErr.Feature)
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, calls, "handlers after the failure do not run")
	assert.False(t, n.Done())
}

func TestNegotiatorContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls []string
	r := NewFeatureRegistry()
	r.Register("first", func(_ context.Context, _ *Client, _ *StreamFeatures) (bool, error) {
		calls = append(calls, "first")
		cancel() // cancel at the handler's suspension point
		return true, nil
	}, false, 1)
	r.Register("second", recordingHandler(&calls, "second", true), false, 2)

	n := NewFeatureNegotiator(r, NewConnectionState())
	_, err := n.HandleAnnouncement(ctx, nil, announce("first", "second"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, calls, "no handler runs after cancellation")
}

func TestNegotiatorGenerations(t *testing.T) {
	r := NewFeatureRegistry()
	r.Register("bind", nopFeatureHandler, false, 10000)

	state := NewConnectionState()
	n := NewFeatureNegotiator(r, state)
	assert.Equal(t, uint64(1), n.Generation())

	_, err := n.HandleAnnouncement(context.Background(), nil, announce())
	require.NoError(t, err)
	assert.True(t, n.Done())

	n.NewGeneration()
	assert.Equal(t, uint64(2), n.Generation())
	assert.False(t, n.Done())
	assert.Empty(t, n.HandledFeatures())
}

func TestNegotiatorRecordsNegotiatedFeatures(t *testing.T) {
	var calls []string
	r := NewFeatureRegistry()
	r.Register("bind", recordingHandler(&calls, "bind", true), false, 10000)
	r.Register("session", recordingHandler(&calls, "session", false), false, 10001)

	state := NewConnectionState()
	n := NewFeatureNegotiator(r, state)
	_, err := n.HandleAnnouncement(context.Background(), nil, announce("bind", "session"))

	require.NoError(t, err)
	assert.True(t, state.Negotiated("bind"))
	assert.False(t, state.Negotiated("session"), "unhandled features are not recorded")
	assert.Equal(t, []string{"bind"}, n.HandledFeatures())
}
