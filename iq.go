package xmppcore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/beevik/etree"
)

// iqSpec declares the <iq/> stanza type used during bootstrap.
var iqSpec = MustStanzaSpec("iq", NamespaceClient, []string{"id", "type", "to", "from"})

// idGenerator allocates stream-unique stanza ids: a random session prefix
// plus a monotonic counter.
type idGenerator struct {
	prefix  string
	counter atomic.Uint64
}

func newIDGenerator() *idGenerator {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return &idGenerator{prefix: "xmpp"}
	}
	return &idGenerator{prefix: hex.EncodeToString(b)}
}

func (g *idGenerator) next() string {
	return g.prefix + "-" + strconv.FormatUint(g.counter.Add(1), 10)
}

// newIQ creates an <iq/> stanza of the given type with a fresh id.
// "type" and "id" are declared interfaces of iqSpec, so Set cannot fail.
func (c *Client) newIQ(iqType string) *Stanza {
	iq := NewStanza(iqSpec)
	_ = iq.Set("type", iqType)
	_ = iq.Set("id", c.ids.next())
	return iq
}

// roundTripIQ sends an IQ and waits for the matching result or error
// response. Bootstrap IQ exchanges are strictly sequential on the stream,
// so any interleaved non-matching stanza is a protocol violation here.
func (c *Client) roundTripIQ(ctx context.Context, iq *Stanza) (*etree.Element, error) {
	id, err := iq.Get("id")
	if err != nil {
		return nil, err
	}

	if err := c.writeElement(ctx, iq.Element()); err != nil {
		return nil, fmt.Errorf("failed to send iq: %w", err)
	}

	el, err := c.stream.readElement(ctx)
	if err != nil {
		return nil, err
	}
	if isStreamError(el) {
		return nil, parseStreamError(el)
	}
	if el.Tag != "iq" {
		return nil, fmt.Errorf("expected iq response, got <%s>: %w", el.Tag, ErrProtocolViolation)
	}

	resp := WrapStanza(iqSpec, el)
	respID, _ := resp.Get("id")
	if respID != id {
		return nil, fmt.Errorf("iq response id mismatch: %w", ErrProtocolViolation)
	}

	respType, _ := resp.Get("type")
	switch respType {
	case "result", "error":
		return el, nil
	default:
		return nil, fmt.Errorf("unexpected iq type %q: %w", respType, ErrProtocolViolation)
	}
}
