package xmppcore

import (
	"context"
	"fmt"

	"github.com/beevik/etree"
)

// handleSession establishes a legacy session (RFC 3921). Modern servers
// advertise the feature with an <optional/> child; when present the IQ
// exchange is skipped entirely.
func handleSession(ctx context.Context, c *Client, features *StreamFeatures) (bool, error) {
	if el := features.Element(FeatureSession); el != nil {
		if el.SelectElement("optional") != nil {
			c.markSessionStarted()
			return true, nil
		}
	}

	iq := c.newIQ("set")
	sessionEl := etree.NewElement("session")
	sessionEl.CreateAttr("xmlns", NamespaceSession)
	iq.Element().AddChild(sessionEl)

	resp, err := c.roundTripIQ(ctx, iq)
	if err != nil {
		return false, err
	}
	if t, _ := WrapStanza(iqSpec, resp).Get("type"); t == "error" {
		return false, fmt.Errorf("server rejected session establishment: %w", ErrProtocolViolation)
	}

	c.markSessionStarted()
	return true, nil
}

func (c *Client) markSessionStarted() {
	c.state.SetSessionStarted(true)
	c.logger.Debug("session established", nil)
	c.emit(ErrSessionStarted)
}
