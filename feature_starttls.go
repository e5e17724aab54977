package xmppcore

import (
	"context"
	"crypto/tls"
	"fmt"
)

// Stream feature names and their negotiation order. Transport security
// runs before everything else; authentication before binding.
const (
	FeatureSTARTTLS = "starttls"
	FeatureSASL     = "mechanisms"
	FeatureBind     = "bind"
	FeatureSession  = "session"

	OrderSTARTTLS = 10
	OrderSASL     = 100
	OrderBind     = 10000
	OrderSession  = 10001
)

var starttlsSpec = MustStanzaSpec("starttls", NamespaceTLS, nil)

// handleSTARTTLS negotiates the STARTTLS stream feature: it requests the
// upgrade, waits for <proceed/>, and performs the TLS handshake on the
// existing connection. A successful upgrade invalidates the rest of the
// announcement, so this feature is registered restart-class.
func handleSTARTTLS(ctx context.Context, c *Client, features *StreamFeatures) (bool, error) {
	if c.stream.tls {
		// Already encrypted (direct TLS or QUIC), nothing to negotiate.
		return false, nil
	}

	required := features.Element(FeatureSTARTTLS).SelectElement("required") != nil
	if !c.options.useSTARTTLS {
		if required {
			return false, ErrTLSRequired
		}
		return false, nil
	}

	if err := c.writeElement(ctx, NewStanza(starttlsSpec).Element()); err != nil {
		return false, fmt.Errorf("failed to request STARTTLS: %w", err)
	}

	resp, err := c.stream.readElement(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read STARTTLS response: %w", err)
	}

	switch resp.Tag {
	case "proceed":
	case "failure":
		return false, fmt.Errorf("server refused STARTTLS: %w", ErrTLSRequired)
	default:
		return false, fmt.Errorf("expected proceed or failure, got <%s>: %w",
			resp.Tag, ErrProtocolViolation)
	}

	if err := c.stream.upgradeTLS(ctx, c.tlsConfig()); err != nil {
		return false, err
	}

	c.logger.Debug("STARTTLS upgrade complete", LogFields{
		LogFieldRemoteAddr: c.stream.remoteAddr(),
	})
	return true, nil
}

// tlsConfig returns the configured TLS settings with the server name
// defaulted to the account domain.
func (c *Client) tlsConfig() *tls.Config {
	config := c.options.tlsConfig
	if config == nil {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		config = config.Clone()
	}
	if config.ServerName == "" {
		config.ServerName = c.options.jid.Domain
	}
	return config
}
