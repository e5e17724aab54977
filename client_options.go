package xmppcore

import (
	"crypto/tls"
	"time"
)

// BackoffStrategy is a function that computes the next backoff duration.
// It receives the current attempt number (1-based), the previous backoff
// duration, and the error from the last connection attempt.
// Return the duration to wait before the next attempt.
// This allows implementing jitter, server hints, or custom strategies.
type BackoffStrategy func(attempt int, currentBackoff time.Duration, err error) time.Duration

// clientOptions holds configuration for a Client.
type clientOptions struct {
	// Identity
	jid         JID
	resource    string
	credentials map[string]string
	lang        string

	// Server selection
	servers        []string       // Static server list
	serverResolver ServerResolver // Dynamic service discovery

	// TLS configuration
	tlsConfig   *tls.Config
	useSTARTTLS bool // upgrade plain streams via STARTTLS
	directTLS   bool // dial with TLS from the start (legacy 5223 style)

	// SASL
	saslPreference     []string
	saslFactories      map[string]SASLMechanismFactory
	allowInsecurePLAIN bool

	// Proxy
	proxyConfig *ProxyConfig

	// Custom transport, overrides scheme-based dialer selection
	dialer Dialer

	// Timeouts
	connectTimeout time.Duration
	keepAlive      time.Duration

	// Auto reconnect settings
	autoReconnect    bool
	maxReconnects    int
	reconnectBackoff time.Duration
	maxBackoff       time.Duration
	backoffStrategy  BackoffStrategy

	// Outbound stanza rate limiting (0 = unlimited)
	sendRate  float64
	sendBurst int

	// Event handlers, invoked synchronously in registration order
	onEvent []EventHandler

	// Logging
	logger Logger
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *clientOptions {
	return &clientOptions{
		credentials:      make(map[string]string),
		lang:             "en",
		useSTARTTLS:      true,
		saslPreference:   defaultMechanismPreference,
		saslFactories:    defaultMechanisms(),
		connectTimeout:   10 * time.Second,
		keepAlive:        60 * time.Second,
		autoReconnect:    false,
		maxReconnects:    10,
		reconnectBackoff: 1 * time.Second,
		maxBackoff:       60 * time.Second,
		logger:           NewNoOpLogger(),
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// WithJID sets the account address. The domain part drives service
// discovery when no explicit servers are configured; an explicit resource
// part is requested during binding.
func WithJID(jid JID) Option {
	return func(o *clientOptions) {
		o.jid = jid
		if jid.Resource != "" {
			o.resource = jid.Resource
		}
	}
}

// WithPassword sets the account password used for SASL authentication.
func WithPassword(password string) Option {
	return func(o *clientOptions) {
		o.credentials["password"] = password
	}
}

// WithCredential sets a named credential for SASL mechanisms that need
// more than a password.
func WithCredential(name, value string) Option {
	return func(o *clientOptions) {
		o.credentials[name] = value
	}
}

// WithResource requests a specific resource during binding. The server may
// override it.
func WithResource(resource string) Option {
	return func(o *clientOptions) {
		o.resource = resource
	}
}

// WithLang sets the stream's xml:lang attribute.
func WithLang(lang string) Option {
	return func(o *clientOptions) {
		o.lang = lang
	}
}

// WithServers sets a static list of server addresses for connection
// attempts, tried in round-robin order. Addresses are in URI format:
// scheme://host:port (e.g., "tcp://xmpp.example.org:5222",
// "tls://xmpp.example.org:5223", "quic://xmpp.example.org:5222").
// Multiple calls append to the existing list.
func WithServers(servers ...string) Option {
	return func(o *clientOptions) {
		o.servers = append(o.servers, servers...)
	}
}

// WithServerResolver sets a dynamic server resolver for service discovery.
// The resolver is called before each connection/reconnection attempt. When
// neither servers nor a resolver are configured, DNS SRV discovery against
// the JID's domain is used.
func WithServerResolver(resolver ServerResolver) Option {
	return func(o *clientOptions) {
		o.serverResolver = resolver
	}
}

// WithTLS sets the TLS configuration used for STARTTLS upgrades and
// direct-TLS connections.
func WithTLS(config *tls.Config) Option {
	return func(o *clientOptions) {
		o.tlsConfig = config
	}
}

// WithSTARTTLS controls whether plain streams are upgraded via STARTTLS.
// Enabled by default; disabling it fails negotiation when the server marks
// STARTTLS as required.
func WithSTARTTLS(enabled bool) Option {
	return func(o *clientOptions) {
		o.useSTARTTLS = enabled
	}
}

// WithDirectTLS dials with TLS from the first byte instead of upgrading,
// the legacy port-5223 connection method.
func WithDirectTLS(enabled bool) Option {
	return func(o *clientOptions) {
		o.directTLS = enabled
	}
}

// WithSASLMechanism registers or replaces a SASL mechanism factory.
func WithSASLMechanism(name string, factory SASLMechanismFactory) Option {
	return func(o *clientOptions) {
		o.saslFactories[name] = factory
	}
}

// WithSASLPreference sets the order mechanisms are tried when the server
// offers several.
func WithSASLPreference(names ...string) Option {
	return func(o *clientOptions) {
		o.saslPreference = names
	}
}

// WithAllowInsecurePLAIN permits the PLAIN mechanism over unencrypted
// streams. Off by default; only for test setups.
func WithAllowInsecurePLAIN(allow bool) Option {
	return func(o *clientOptions) {
		o.allowInsecurePLAIN = allow
	}
}

// WithDialer sets a custom transport dialer, bypassing the scheme-based
// dialer selection. The proxy configuration is ignored when set.
func WithDialer(dialer Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = dialer
	}
}

// WithProxy routes the connection through an HTTP CONNECT or SOCKS5 proxy.
func WithProxy(config *ProxyConfig) Option {
	return func(o *clientOptions) {
		o.proxyConfig = config
	}
}

// WithConnectTimeout sets the timeout covering dialing, the stream header
// exchange, and feature negotiation.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.connectTimeout = d
	}
}

// WithKeepAlive sets the idle interval after which a whitespace keepalive
// is written. Zero disables keepalives.
func WithKeepAlive(d time.Duration) Option {
	return func(o *clientOptions) {
		o.keepAlive = d
	}
}

// WithAutoReconnect enables automatic reconnection on connection loss.
func WithAutoReconnect(enabled bool) Option {
	return func(o *clientOptions) {
		o.autoReconnect = enabled
	}
}

// WithMaxReconnects sets the maximum number of reconnection attempts.
// Use -1 for unlimited attempts.
func WithMaxReconnects(n int) Option {
	return func(o *clientOptions) {
		o.maxReconnects = n
	}
}

// WithReconnectBackoff sets the initial backoff duration between
// reconnection attempts.
func WithReconnectBackoff(d time.Duration) Option {
	return func(o *clientOptions) {
		o.reconnectBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration between reconnection
// attempts.
func WithMaxBackoff(d time.Duration) Option {
	return func(o *clientOptions) {
		o.maxBackoff = d
	}
}

// WithBackoffStrategy sets a custom backoff strategy for reconnection
// attempts. If not set, uses exponential backoff (doubling) up to
// maxBackoff.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(o *clientOptions) {
		o.backoffStrategy = strategy
	}
}

// WithSendRateLimit caps outbound stanza writes to rate per second with
// the given burst, protecting against server-side flood limits. Zero rate
// means unlimited.
func WithSendRateLimit(rate float64, burst int) Option {
	return func(o *clientOptions) {
		o.sendRate = rate
		o.sendBurst = burst
	}
}

// OnEvent appends an event handler for client lifecycle events and errors.
// Handlers run synchronously in registration order.
func OnEvent(handler EventHandler) Option {
	return func(o *clientOptions) {
		o.onEvent = append(o.onEvent, handler)
	}
}

// WithLogger sets the logger for client internals.
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// applyOptions applies all options to the default options.
func applyOptions(opts ...Option) *clientOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// password returns the configured account password.
func (o *clientOptions) password() string {
	return o.credentials["password"]
}
