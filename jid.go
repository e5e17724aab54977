package xmppcore

import (
	"errors"
	"strings"
)

// ErrInvalidJID is returned when a JID string cannot be parsed.
var ErrInvalidJID = errors.New("invalid JID")

// JID is an XMPP address of the form local@domain/resource.
// Local and Resource may be empty; Domain is always required.
type JID struct {
	Local    string
	Domain   string
	Resource string
}

// ParseJID parses a JID string. The local part and resource are optional:
// "example.org", "user@example.org" and "user@example.org/desktop" are all
// valid.
func ParseJID(s string) (JID, error) {
	if s == "" {
		return JID{}, ErrInvalidJID
	}

	var jid JID

	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		jid.Resource = s[idx+1:]
		s = s[:idx]
		if jid.Resource == "" {
			return JID{}, ErrInvalidJID
		}
	}

	if idx := strings.IndexByte(s, '@'); idx >= 0 {
		jid.Local = s[:idx]
		s = s[idx+1:]
		if jid.Local == "" {
			return JID{}, ErrInvalidJID
		}
	}

	if s == "" || strings.ContainsAny(s, "@/") {
		return JID{}, ErrInvalidJID
	}
	jid.Domain = s

	return jid, nil
}

// MustParseJID parses a JID string and panics on failure.
// Intended for tests and static configuration.
func MustParseJID(s string) JID {
	jid, err := ParseJID(s)
	if err != nil {
		panic("xmppcore: " + err.Error() + ": " + s)
	}
	return jid
}

// Bare returns the JID without its resource (local@domain).
func (j JID) Bare() string {
	if j.Local == "" {
		return j.Domain
	}
	return j.Local + "@" + j.Domain
}

// Full returns the complete JID string including the resource when present.
func (j JID) Full() string {
	if j.Resource == "" {
		return j.Bare()
	}
	return j.Bare() + "/" + j.Resource
}

// String returns the full JID form.
func (j JID) String() string {
	return j.Full()
}

// IsZero reports whether the JID is unset.
func (j JID) IsZero() bool {
	return j.Domain == ""
}

// WithResource returns a copy of the JID with the given resource.
func (j JID) WithResource(resource string) JID {
	j.Resource = resource
	return j
}
