package xmppcore

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopFeatureHandler(_ context.Context, _ *Client, _ *StreamFeatures) (bool, error) {
	return false, nil
}

func orderedNames(r *FeatureRegistry) []string {
	return slices.Collect(r.OrderedNames())
}

func TestFeatureRegistryOrdering(t *testing.T) {
	r := NewFeatureRegistry()
	r.Register("bind", nopFeatureHandler, false, 10000)
	r.Register("starttls", nopFeatureHandler, true, 10)
	r.Register("mechanisms", nopFeatureHandler, true, 100)
	r.Register("session", nopFeatureHandler, false, 10001)

	assert.Equal(t, []string{"starttls", "mechanisms", "bind", "session"}, orderedNames(r))
}

func TestFeatureRegistryTieBreak(t *testing.T) {
	// Equal orders fall back to lexical name order, deterministically.
	for range 10 {
		r := NewFeatureRegistry()
		r.Register("zeta", nopFeatureHandler, false, 100)
		r.Register("alpha", nopFeatureHandler, false, 100)
		r.Register("mid", nopFeatureHandler, false, 100)

		assert.Equal(t, []string{"alpha", "mid", "zeta"}, orderedNames(r))
	}
}

func TestFeatureRegistryOverwrite(t *testing.T) {
	r := NewFeatureRegistry()
	r.Register("mechanisms", nopFeatureHandler, true, 100)
	r.Register("bind", nopFeatureHandler, false, 10000)

	// Re-registering under a new order must reconcile the old pair so the
	// name never appears twice in a traversal.
	r.Register("mechanisms", nopFeatureHandler, true, 50)

	assert.Equal(t, []string{"mechanisms", "bind"}, orderedNames(r))
	assert.Equal(t, 2, r.Len())

	// The stale pair is gone.
	err := r.Unregister("mechanisms", 100)
	assert.ErrorIs(t, err, ErrFeatureNotFound)
	require.NoError(t, r.Unregister("mechanisms", 50))
}

func TestFeatureRegistryUnregister(t *testing.T) {
	t.Run("exact match removes", func(t *testing.T) {
		r := NewFeatureRegistry()
		r.Register("starttls", nopFeatureHandler, true, 10)

		require.NoError(t, r.Unregister("starttls", 10))
		assert.Empty(t, orderedNames(r))
		assert.Equal(t, 0, r.Len())
	})

	t.Run("mismatched order fails and leaves registry unchanged", func(t *testing.T) {
		r := NewFeatureRegistry()
		r.Register("starttls", nopFeatureHandler, true, 10)
		r.Register("mechanisms", nopFeatureHandler, true, 100)
		before := orderedNames(r)

		err := r.Unregister("starttls", 99)
		require.ErrorIs(t, err, ErrFeatureNotFound)

		var regErr *RegistryError
		require.ErrorAs(t, err, &regErr)
		assert.Equal(t, "starttls", regErr.Feature)
		assert.Equal(t, 99, regErr.Order)

		assert.Equal(t, before, orderedNames(r))
	})

	t.Run("unknown name fails", func(t *testing.T) {
		r := NewFeatureRegistry()
		err := r.Unregister("ghost", 5000)
		assert.ErrorIs(t, err, ErrFeatureNotFound)
	})
}

func TestFeatureRegistryOrderedNamesRestartable(t *testing.T) {
	r := NewFeatureRegistry()
	r.Register("a", nopFeatureHandler, false, 1)
	r.Register("b", nopFeatureHandler, false, 2)

	seq := r.OrderedNames()

	// Early break, then a full second pass over the same sequence.
	for name := range seq {
		assert.Equal(t, "a", name)
		break
	}
	assert.Equal(t, []string{"a", "b"}, slices.Collect(seq))
}

func TestFeatureRegistryOrderedNamesSnapshot(t *testing.T) {
	r := NewFeatureRegistry()
	r.Register("a", nopFeatureHandler, false, 1)

	seq := r.OrderedNames()
	r.Register("b", nopFeatureHandler, false, 2)

	assert.Equal(t, []string{"a"}, slices.Collect(seq),
		"mutations after the call do not leak into the sequence")
}
