// Package xmppcore implements the XMPP client connection bootstrap: stream
// feature negotiation, SASL authentication, and resource binding as defined
// by RFC 6120, with a declarative stanza attribute model on top of raw XML.
//
// # Client
//
// Use the high-level Client API to connect and negotiate a stream:
//
//	client, err := xmppcore.Dial(
//	    xmppcore.WithJID(xmppcore.MustParseJID("alice@example.org")),
//	    xmppcore.WithPassword("secret"),
//	)
//	defer client.Close()
//
// Servers are discovered through DNS SRV records on the JID's domain, or
// set explicitly:
//
//	client, err := xmppcore.Dial(
//	    xmppcore.WithJID(jid),
//	    xmppcore.WithServers("tcp://xmpp.example.org:5222"),
//	)
//
// Direct-TLS (legacy port 5223) and QUIC transports use the tls:// and
// quic:// schemes. Plain tcp:// streams upgrade via STARTTLS during
// negotiation.
//
// # Feature Negotiation
//
// Stream features are negotiated by handlers registered per connection
// with a name and an order. Handlers run in ascending order against each
// <stream:features/> announcement; features the server did not announce
// are skipped. A restart-class feature (STARTTLS, SASL) that succeeds
// halts the walk and re-exchanges stream headers before the next
// announcement:
//
//	client.RegisterFeature("compression", handleCompression, false, 250)
//
// The built-in handlers cover STARTTLS, SASL (SCRAM-SHA-1/256/512 with
// mutual authentication, and PLAIN), resource binding, and legacy session
// establishment.
//
// # Stanzas
//
// Stanza types declare named interfaces that map to attributes or
// sub-element text, so callers work with logical names instead of XML
// plumbing:
//
//	spec := xmppcore.MustStanzaSpec("message", xmppcore.NamespaceClient,
//	    []string{"to", "from", "type", "body"}, "body")
//	msg := xmppcore.NewStanza(spec)
//	msg.Set("to", "bob@example.org")
//	msg.Set("body", "hello")
//	client.Send(ctx, msg)
//
// # Events
//
// Lifecycle events are errors dispatched to handlers registered with
// OnEvent. Check the kind with errors.Is and extract details with
// errors.As:
//
//	xmppcore.OnEvent(func(c *xmppcore.Client, event error) {
//	    var bound *xmppcore.BoundEvent
//	    if errors.As(event, &bound) {
//	        log.Println("bound as", bound.JID.Full())
//	    }
//	})
//
// # Reconnection
//
// With WithAutoReconnect enabled the client reconnects on connection loss
// with exponential backoff, re-running the full negotiation on each fresh
// connection. ReconnectEvent carries the attempt number and a Cancel
// method to stop further attempts.
//
// # Logging
//
// Implement the Logger interface for structured logging:
//
//	logger := xmppcore.NewStdLogger(os.Stdout, xmppcore.LogLevelInfo)
//	client, err := xmppcore.Dial(xmppcore.WithJID(jid), xmppcore.WithLogger(logger))
package xmppcore
