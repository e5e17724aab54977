package xmppcore

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
)

// handleSASL negotiates the SASL authentication feature: it selects the
// strongest mechanism both sides support, runs the challenge/response
// exchange, and marks the connection authenticated. Success restarts the
// stream, so this feature is registered restart-class.
func handleSASL(ctx context.Context, c *Client, features *StreamFeatures) (bool, error) {
	if c.state.Authenticated() {
		return false, nil
	}

	offered := offeredMechanisms(features.Element(FeatureSASL))
	if !c.stream.tls && !c.options.allowInsecurePLAIN {
		// Never send a plaintext password over an unencrypted stream.
		delete(offered, "PLAIN")
	}

	name, factory, err := selectMechanism(c.options.saslPreference, c.options.saslFactories, offered)
	if err != nil {
		return false, err
	}

	mech := factory(c.options.jid.Local, c.options.password())
	c.logger.Debug("starting SASL exchange", LogFields{LogFieldMechanism: name})

	initial, err := mech.Start()
	if err != nil {
		return false, err
	}

	auth := etree.NewElement("auth")
	auth.CreateAttr("xmlns", NamespaceSASL)
	auth.CreateAttr("mechanism", name)
	if len(initial) > 0 {
		auth.SetText(base64.StdEncoding.EncodeToString(initial))
	} else {
		// An empty initial response is encoded as "=" on the wire.
		auth.SetText("=")
	}
	if err := c.writeElement(ctx, auth); err != nil {
		return false, fmt.Errorf("failed to send auth: %w", err)
	}

	for {
		el, err := c.stream.readElement(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to read SASL response: %w", err)
		}

		switch el.Tag {
		case "challenge":
			challenge, err := decodeSASLText(el.Text())
			if err != nil {
				return false, err
			}
			response, err := mech.Step(challenge)
			if err != nil {
				return false, err
			}

			resp := etree.NewElement("response")
			resp.CreateAttr("xmlns", NamespaceSASL)
			if len(response) > 0 {
				resp.SetText(base64.StdEncoding.EncodeToString(response))
			}
			if err := c.writeElement(ctx, resp); err != nil {
				return false, fmt.Errorf("failed to send SASL response: %w", err)
			}

		case "success":
			// Additional data on <success/> carries the server's final
			// message for mechanisms with mutual authentication.
			if text := el.Text(); text != "" {
				data, err := decodeSASLText(text)
				if err != nil {
					return false, err
				}
				if _, err := mech.Step(data); err != nil {
					return false, err
				}
			}
			c.state.SetAuthenticated(true)
			c.logger.Debug("SASL exchange complete", LogFields{LogFieldMechanism: name})
			return true, nil

		case "failure":
			return false, parseSASLFailure(el)

		default:
			return false, fmt.Errorf("unexpected SASL element <%s>: %w", el.Tag, ErrProtocolViolation)
		}
	}
}

func offeredMechanisms(el *etree.Element) map[string]struct{} {
	offered := make(map[string]struct{})
	if el == nil {
		return offered
	}
	for _, child := range el.ChildElements() {
		if child.Tag == "mechanism" && child.Text() != "" {
			offered[child.Text()] = struct{}{}
		}
	}
	return offered
}

func decodeSASLText(text string) ([]byte, error) {
	if text == "" || text == "=" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("malformed SASL payload: %w", ErrProtocolViolation)
	}
	return data, nil
}

func parseSASLFailure(el *etree.Element) *SASLFailure {
	failure := &SASLFailure{Condition: "not-authorized"}
	for _, child := range el.ChildElements() {
		if child.Tag == "text" {
			failure.Text = child.Text()
			continue
		}
		failure.Condition = child.Tag
	}
	return failure
}
