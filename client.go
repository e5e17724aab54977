package xmppcore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beevik/etree"
	"golang.org/x/time/rate"
)

// StanzaHandler handles stanzas received after negotiation completes.
type StanzaHandler func(el *etree.Element)

// Client is an XMPP client connection. It owns the transport, the XML
// stream, and the feature negotiation machinery, and exposes the bound
// identity once the bootstrap completes.
type Client struct {
	conn    net.Conn
	stream  *xmppStream
	options *clientOptions

	// Multi-server support
	serverIndex uint32 // Atomic counter for round-robin server selection

	// Negotiation machinery. The registry is per-connection: changes on one
	// client never affect another.
	registry   *FeatureRegistry
	negotiator *FeatureNegotiator
	state      *ConnectionState

	// Post-bind identity
	boundMu  sync.RWMutex
	boundJID JID
	roster   *Roster

	// Stanza dispatch after negotiation
	handlerMu      sync.RWMutex
	stanzaHandlers []StanzaHandler

	ids     *idGenerator
	limiter *rate.Limiter
	logger  Logger

	// Connection state
	connected    atomic.Bool
	reconnecting atomic.Bool
	closed       atomic.Bool

	// Lifecycle control
	parentCtx     context.Context // User's context for lifecycle management
	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
	readDone      chan struct{}
	keepAliveDone chan struct{}
	reconnectStop chan struct{} // Used to cancel reconnection attempts
	reconnectMu   sync.Mutex    // Protects reconnectStop
	lastActivity  atomic.Int64  // Unix timestamp of last outbound write
}

// Dial connects to an XMPP server and returns a client once the stream is
// fully negotiated. Use WithJID() to set the account; servers come from
// WithServers(), WithServerResolver(), or DNS SRV discovery on the JID's
// domain.
func Dial(opts ...Option) (*Client, error) {
	return DialContext(context.Background(), opts...)
}

// DialContext connects to an XMPP server with a context.
// The context controls the client's lifecycle: when canceled, the client
// closes and any reconnection attempts stop.
func DialContext(ctx context.Context, opts ...Option) (*Client, error) {
	options := applyOptions(opts...)

	if options.jid.IsZero() {
		return nil, errors.New("no account configured: use WithJID()")
	}
	if len(options.servers) == 0 && options.serverResolver == nil {
		options.serverResolver = SRVResolver(options.jid.Domain)
	}

	c := &Client{
		options:   options,
		parentCtx: ctx,
		registry:  NewFeatureRegistry(),
		state:     NewConnectionState(),
		roster:    NewRoster(),
		ids:       newIDGenerator(),
		logger:    options.logger,
		done:      make(chan struct{}),
	}
	c.negotiator = NewFeatureNegotiator(c.registry, c.state)
	c.negotiator.OnNegotiated(func(features []string) {
		c.emit(NewNegotiatedEvent(features))
	})

	if options.sendRate > 0 {
		burst := options.sendBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(options.sendRate), burst)
	}

	c.registerDefaultFeatures()

	connectCtx, connectCancel := context.WithTimeout(ctx, options.connectTimeout)
	defer connectCancel()

	if err := c.connect(connectCtx); err != nil {
		return nil, err
	}

	go c.watchParentContext()

	return c, nil
}

// registerDefaultFeatures installs the standard bootstrap features. Callers
// can add or replace features with RegisterFeature before negotiation of
// the next connection starts.
func (c *Client) registerDefaultFeatures() {
	c.registry.Register(FeatureSTARTTLS, handleSTARTTLS, true, OrderSTARTTLS)
	c.registry.Register(FeatureSASL, handleSASL, true, OrderSASL)
	c.registry.Register(FeatureBind, handleBind, false, OrderBind)
	c.registry.Register(FeatureSession, handleSession, false, OrderSession)
}

// watchParentContext monitors the parent context and closes the client when
// canceled.
func (c *Client) watchParentContext() {
	if c.parentCtx == nil {
		return
	}

	select {
	case <-c.parentCtx.Done():
		c.Close()
	case <-c.done:
	}
}

// connect establishes the network connection, exchanges stream headers, and
// drives feature negotiation to completion. On return the stream is ready
// for stanza traffic.
func (c *Client) connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Cancel any goroutines left from a previous connection
	if c.cancel != nil {
		c.cancel()
		c.waitLoops(time.Second)
	}

	parentCtx := c.parentCtx
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	c.ctx, c.cancel = context.WithCancel(parentCtx)
	c.readDone = make(chan struct{})
	c.keepAliveDone = make(chan struct{})

	serverAddr, err := c.nextServer(ctx)
	if err != nil {
		c.cancel()
		return fmt.Errorf("failed to get server: %w", err)
	}

	conn, err := c.dial(ctx, serverAddr)
	if err != nil {
		c.cancel()
		return err
	}
	c.conn = conn

	// Session flags reset on every fresh transport connection. Stream
	// restarts within one connection keep them.
	c.state.Reset()
	c.negotiator.NewGeneration()

	c.stream = newStream(conn, c.options.jid.Domain, c.options.lang)
	if err := c.stream.open(ctx); err != nil {
		c.cancel()
		c.conn.Close()
		return err
	}

	c.logger.Debug("stream opened", LogFields{
		LogFieldRemoteAddr: c.stream.remoteAddr(),
		LogFieldJID:        c.options.jid.Bare(),
	})
	c.emit(NewConnectedEvent(c.stream.remoteAddr(), c.stream.tls))

	if err := c.negotiate(ctx); err != nil {
		c.cancel()
		c.conn.Close()
		return err
	}

	c.connected.Store(true)
	c.touchActivity()

	go c.readLoop()
	go c.keepAliveLoop()

	return nil
}

// negotiate reads stream features announcements and feeds them to the
// negotiator until the bootstrap is complete. Each handler that upgrades
// the stream triggers a header re-exchange and a fresh announcement.
func (c *Client) negotiate(ctx context.Context) error {
	for !c.negotiator.Done() {
		el, err := c.stream.readElement(ctx)
		if err != nil {
			return fmt.Errorf("negotiation read failed: %w", err)
		}
		if isStreamError(el) {
			return parseStreamError(el)
		}
		if el.Tag != "features" {
			return fmt.Errorf("expected stream features, got <%s>: %w", el.Tag, ErrProtocolViolation)
		}

		features := ParseStreamFeatures(el)
		restart, err := c.negotiator.HandleAnnouncement(ctx, c, features)
		if err != nil {
			return err
		}
		if restart {
			c.negotiator.NewGeneration()
			if err := c.stream.restart(ctx); err != nil {
				return fmt.Errorf("stream restart failed: %w", err)
			}
		}
	}

	// The negotiator's completion callback already emitted the typed
	// NegotiatedEvent, once per generation.
	c.logger.Info("stream negotiated", LogFields{
		LogFieldJID:        c.options.jid.Bare(),
		LogFieldGeneration: c.negotiator.Generation(),
	})

	return nil
}

// nextServer returns the next server address to try using round-robin
// selection. It calls the resolver if configured, then falls back to the
// static server list.
func (c *Client) nextServer(ctx context.Context) (string, error) {
	var servers []string

	if c.options.serverResolver != nil {
		resolvedServers, err := c.options.serverResolver(ctx)
		if err == nil && len(resolvedServers) > 0 {
			servers = resolvedServers
		}
	}

	if len(servers) == 0 {
		servers = c.options.servers
	}

	if len(servers) == 0 {
		return "", errors.New("no servers available")
	}

	index := atomic.AddUint32(&c.serverIndex, 1) - 1
	selectedIndex := index % uint32(len(servers))

	return servers[selectedIndex], nil
}

// dial creates the network connection to the specified address.
func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "tcp", "xmpp":
			host = net.JoinHostPort(u.Hostname(), DefaultPort)
		case "ssl", "tls", "xmpps":
			host = net.JoinHostPort(u.Hostname(), DefaultTLSPort)
		case "quic":
			host = net.JoinHostPort(u.Hostname(), DefaultPort)
		}
	}

	if c.options.dialer != nil {
		conn, err := c.options.dialer.Dial(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dial failed: %w", err)
		}
		return conn, nil
	}

	var dialer Dialer

	switch u.Scheme {
	case "tcp", "xmpp":
		if c.options.directTLS {
			dialer = &TLSDialer{Config: c.tlsConfig(), Timeout: c.options.connectTimeout}
		} else {
			dialer = &TCPDialer{Timeout: c.options.connectTimeout}
		}
	case "ssl", "tls", "xmpps":
		dialer = &TLSDialer{Config: c.tlsConfig(), Timeout: c.options.connectTimeout}
	case "quic":
		dialer = NewQUICDialer(c.tlsConfig())
	default:
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	if c.options.proxyConfig != nil {
		if u.Scheme == "quic" {
			return nil, errors.New("proxy is not supported for quic connections")
		}
		proxyDialer, err := NewProxyDialer(
			c.options.proxyConfig.URL,
			c.options.proxyConfig.Username,
			c.options.proxyConfig.Password,
		)
		if err != nil {
			return nil, fmt.Errorf("proxy configuration error: %w", err)
		}
		conn, err := proxyDialer.DialContext(ctx, "tcp", host)
		if err != nil {
			return nil, fmt.Errorf("dial failed: %w", err)
		}
		return conn, nil
	}

	conn, err := dialer.Dial(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return conn, nil
}

// Close terminates the stream with a closing tag and releases resources.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	c.cancelReconnect()
	c.cancel()

	if c.connected.Load() {
		c.stream.sendFooter()
		c.connected.Store(false)
	}

	if c.conn != nil {
		c.conn.Close()
	}

	c.waitLoops(time.Second)

	close(c.done)

	c.emit(ErrDisconnected)

	return nil
}

// waitLoops blocks until the read and keepalive goroutines of the current
// connection exit, bounded by the timeout. Both channels must be drained
// before the stream is reassigned.
func (c *Client) waitLoops(timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-c.readDone:
	case <-deadline.C:
		return
	}
	select {
	case <-c.keepAliveDone:
	case <-deadline.C:
	}
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && !c.closed.Load()
}

// JID returns the configured account address.
func (c *Client) JID() JID {
	return c.options.jid
}

// BoundJID returns the server-confirmed full identity from the last
// successful resource binding, or the zero JID before binding.
func (c *Client) BoundJID() JID {
	c.boundMu.RLock()
	defer c.boundMu.RUnlock()
	return c.boundJID
}

// Roster returns the client's contact list, re-homed on each bind.
func (c *Client) Roster() *Roster {
	return c.roster
}

// State exposes the per-connection session flags.
func (c *Client) State() *ConnectionState {
	return c.state
}

// Password returns the account password from the credential set.
func (c *Client) Password() string {
	return c.options.password()
}

// SetPassword replaces the account password used on the next
// authentication attempt.
func (c *Client) SetPassword(password string) {
	c.options.credentials["password"] = password
}

// RegisterFeature installs a negotiation handler for a stream feature.
// Features run in ascending order during negotiation; restart marks
// features whose success requires a stream header re-exchange.
// Re-registering a name moves it to the new order.
func (c *Client) RegisterFeature(name string, handler FeatureHandler, restart bool, order int) {
	c.registry.Register(name, handler, restart, order)
}

// UnregisterFeature removes a feature previously registered at exactly the
// given order. A mismatched name or order leaves the registry unchanged
// and returns an error.
func (c *Client) UnregisterFeature(name string, order int) error {
	return c.registry.Unregister(name, order)
}

// HandleStanza appends a handler for stanzas received after negotiation.
// Handlers run synchronously in registration order on the read goroutine.
func (c *Client) HandleStanza(handler StanzaHandler) {
	c.handlerMu.Lock()
	c.stanzaHandlers = append(c.stanzaHandlers, handler)
	c.handlerMu.Unlock()
}

// Send writes a stanza to the stream. Blocks when a send rate limit is
// configured and the budget is exhausted.
func (c *Client) Send(ctx context.Context, stanza *Stanza) error {
	return c.writeElement(ctx, stanza.Element())
}

// writeElement writes a top-level element to the stream, honoring the
// outbound rate limit.
func (c *Client) writeElement(ctx context.Context, el *etree.Element) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.stream == nil {
		return ErrNotConnected
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if err := c.stream.writeElement(el); err != nil {
		return err
	}

	c.touchActivity()
	return nil
}

// emit dispatches an event to the registered handlers in order.
func (c *Client) emit(event error) {
	for _, handler := range c.options.onEvent {
		handler(c, event)
	}
}

// readLoop reads stanzas from the stream after negotiation completes and
// dispatches them to stanza handlers.
func (c *Client) readLoop() {
	defer close(c.readDone)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		el, err := c.stream.readElement(c.ctx)
		if err != nil {
			if c.closed.Load() || errors.Is(err, context.Canceled) {
				return
			}

			c.connected.Store(false)

			if c.cancel != nil {
				c.cancel()
			}
			if c.conn != nil {
				c.conn.Close()
			}

			c.logger.Warn("connection lost", LogFields{LogFieldError: err.Error()})
			c.emit(NewConnectionLostError(err))

			if c.options.autoReconnect && !c.closed.Load() {
				go c.reconnectLoop()
			}
			return
		}

		c.handleStanza(el)
	}
}

// handleStanza dispatches one inbound top-level element. Stream errors end
// the session; everything else goes to the registered handlers.
func (c *Client) handleStanza(el *etree.Element) {
	if isStreamError(el) {
		c.emit(parseStreamError(el))
		return
	}

	c.handlerMu.RLock()
	handlers := make([]StanzaHandler, len(c.stanzaHandlers))
	copy(handlers, c.stanzaHandlers)
	c.handlerMu.RUnlock()

	for _, handler := range handlers {
		handler(el)
	}
}

// cancelReconnect stops an in-progress reconnection loop, if any.
func (c *Client) cancelReconnect() {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	if c.reconnectStop != nil {
		select {
		case <-c.reconnectStop:
		default:
			close(c.reconnectStop)
		}
	}
}

// reconnectLoop handles automatic reconnection with backoff.
func (c *Client) reconnectLoop() {
	if !c.options.autoReconnect || c.closed.Load() {
		return
	}

	if !c.reconnecting.CompareAndSwap(false, true) {
		return // Already reconnecting
	}
	defer c.reconnecting.Store(false)

	c.reconnectMu.Lock()
	c.reconnectStop = make(chan struct{})
	stopCh := c.reconnectStop
	c.reconnectMu.Unlock()

	cancelReconnect := func() {
		c.cancelReconnect()
	}

	attempt := 0
	backoff := c.options.reconnectBackoff

	for {
		if c.closed.Load() {
			return
		}

		attempt++
		if c.options.maxReconnects > 0 && attempt > c.options.maxReconnects {
			c.emit(ErrReconnectFailed)
			return
		}

		c.emit(NewReconnectEvent(attempt, c.options.maxReconnects, backoff, cancelReconnect))

		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		connectCtx, connectCancel := context.WithTimeout(context.Background(), c.options.connectTimeout)
		err := c.connect(connectCtx)
		connectCancel()

		if err == nil {
			return // Successfully reconnected
		}

		c.logger.Debug("reconnect attempt failed", LogFields{LogFieldError: err.Error()})

		if c.options.backoffStrategy != nil {
			backoff = c.options.backoffStrategy(attempt, backoff, err)
		} else {
			backoff *= 2
		}
		if backoff > c.options.maxBackoff {
			backoff = c.options.maxBackoff
		}
	}
}
