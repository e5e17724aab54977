package xmppcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJID(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		jid, err := ParseJID("user@example.org/desktop")
		require.NoError(t, err)
		assert.Equal(t, "user", jid.Local)
		assert.Equal(t, "example.org", jid.Domain)
		assert.Equal(t, "desktop", jid.Resource)
	})

	t.Run("bare", func(t *testing.T) {
		jid, err := ParseJID("user@example.org")
		require.NoError(t, err)
		assert.Equal(t, "user", jid.Local)
		assert.Equal(t, "example.org", jid.Domain)
		assert.Empty(t, jid.Resource)
	})

	t.Run("domain only", func(t *testing.T) {
		jid, err := ParseJID("example.org")
		require.NoError(t, err)
		assert.Empty(t, jid.Local)
		assert.Equal(t, "example.org", jid.Domain)
	})

	t.Run("resource with slashes", func(t *testing.T) {
		jid, err := ParseJID("user@example.org/work/laptop")
		require.NoError(t, err)
		assert.Equal(t, "work/laptop", jid.Resource)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, s := range []string{"", "@example.org", "user@", "user@example.org/", "@"} {
			_, err := ParseJID(s)
			assert.ErrorIs(t, err, ErrInvalidJID, "input %q", s)
		}
	})
}

func TestJIDForms(t *testing.T) {
	jid := MustParseJID("user@example.org/desktop")

	assert.Equal(t, "user@example.org", jid.Bare())
	assert.Equal(t, "user@example.org/desktop", jid.Full())
	assert.Equal(t, "user@example.org/desktop", jid.String())

	bare := MustParseJID("example.org")
	assert.Equal(t, "example.org", bare.Full())
}

func TestJIDWithResource(t *testing.T) {
	jid := MustParseJID("user@example.org")
	bound := jid.WithResource("mobile")

	assert.Equal(t, "user@example.org/mobile", bound.Full())
	assert.Empty(t, jid.Resource, "original JID unchanged")
}

func TestJIDIsZero(t *testing.T) {
	assert.True(t, JID{}.IsZero())
	assert.False(t, MustParseJID("example.org").IsZero())
}

func TestMustParseJIDPanics(t *testing.T) {
	assert.Panics(t, func() { MustParseJID("@") })
}
