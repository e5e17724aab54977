package xmppcore

import (
	"context"
	"fmt"
)

// bindSpec declares the resource binding payload. Both interfaces live in
// sub-element text, not attributes.
var bindSpec = MustStanzaSpec("bind", NamespaceBind,
	[]string{"jid", "resource"}, "jid", "resource")

// handleBind negotiates resource binding: it requests a resource via IQ,
// records the server-confirmed identity, and re-homes the roster to it.
// Binding completes the mandatory part of the bootstrap; it does not
// restart the stream.
func handleBind(ctx context.Context, c *Client, _ *StreamFeatures) (bool, error) {
	iq := c.newIQ("set")
	payload := NewStanza(bindSpec)
	if c.options.resource != "" {
		if err := payload.Set("resource", c.options.resource); err != nil {
			return false, err
		}
	}
	iq.Element().AddChild(payload.Element())

	resp, err := c.roundTripIQ(ctx, iq)
	if err != nil {
		c.state.SetBindFailed(true)
		return false, err
	}

	respType := WrapStanza(iqSpec, resp)
	if t, _ := respType.Get("type"); t == "error" {
		c.state.SetBindFailed(true)
		return false, fmt.Errorf("server rejected resource binding: %w", ErrBindFailed)
	}

	bindEl := resp.SelectElement("bind")
	if bindEl == nil {
		c.state.SetBindFailed(true)
		return false, fmt.Errorf("bind result missing payload: %w", ErrProtocolViolation)
	}

	jidText, err := WrapStanza(bindSpec, bindEl).Get("jid")
	if err != nil || jidText == "" {
		c.state.SetBindFailed(true)
		return false, fmt.Errorf("bind result missing jid: %w", ErrProtocolViolation)
	}
	boundJID, err := ParseJID(jidText)
	if err != nil {
		c.state.SetBindFailed(true)
		return false, fmt.Errorf("bind result jid %q: %w", jidText, err)
	}

	c.handleSessionBind(boundJID)
	return true, nil
}

// handleSessionBind records the bound identity, re-homes the roster, and
// announces the bind. Runs exactly once per successful bind.
func (c *Client) handleSessionBind(boundJID JID) {
	c.boundMu.Lock()
	c.boundJID = boundJID
	c.boundMu.Unlock()

	c.state.SetBound(true)
	c.state.SetBindFailed(false)
	c.roster.Rehome(boundJID)

	c.logger.Info("resource bound", LogFields{LogFieldJID: boundJID.Full()})
	c.emit(NewBoundEvent(boundJID))
}
