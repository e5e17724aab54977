package xmppcore

// SASLMechanism is a client-side SASL mechanism. A mechanism instance is
// single-use: it holds exchange state and is created fresh for each
// authentication attempt.
type SASLMechanism interface {
	// Name returns the IANA mechanism name, e.g. "SCRAM-SHA-256".
	Name() string

	// Start returns the initial response sent with the <auth/> element.
	Start() ([]byte, error)

	// Step processes a server challenge (or the additional data carried by
	// <success/>) and returns the next response. A nil response with a nil
	// error means the exchange needs no further client message.
	Step(challenge []byte) ([]byte, error)
}

// SASLMechanismFactory creates a mechanism instance for an authentication
// attempt with the given identity and password.
type SASLMechanismFactory func(username, password string) SASLMechanism

// defaultMechanisms lists the built-in mechanisms in preference order,
// strongest first. PLAIN is last and only ever used over an encrypted
// stream.
func defaultMechanisms() map[string]SASLMechanismFactory {
	return map[string]SASLMechanismFactory{
		"SCRAM-SHA-512": func(username, password string) SASLMechanism {
			return NewSCRAMMechanism(SCRAMHashSHA512, username, password)
		},
		"SCRAM-SHA-256": func(username, password string) SASLMechanism {
			return NewSCRAMMechanism(SCRAMHashSHA256, username, password)
		},
		"SCRAM-SHA-1": func(username, password string) SASLMechanism {
			return NewSCRAMMechanism(SCRAMHashSHA1, username, password)
		},
		"PLAIN": func(username, password string) SASLMechanism {
			return NewPlainMechanism(username, password)
		},
	}
}

// defaultMechanismPreference is the order mechanisms are tried when the
// server offers several.
var defaultMechanismPreference = []string{
	"SCRAM-SHA-512",
	"SCRAM-SHA-256",
	"SCRAM-SHA-1",
	"PLAIN",
}

// selectMechanism picks the most preferred mechanism that both sides
// support. The offered set comes from the server's <mechanisms/> feature;
// preference and factories come from client configuration.
func selectMechanism(preference []string, factories map[string]SASLMechanismFactory, offered map[string]struct{}) (string, SASLMechanismFactory, error) {
	for _, name := range preference {
		if _, ok := offered[name]; !ok {
			continue
		}
		factory, ok := factories[name]
		if !ok {
			continue
		}
		return name, factory, nil
	}
	return "", nil, ErrNoSharedMechanism
}

// PlainMechanism implements the PLAIN mechanism (RFC 4616): a single
// message of authzid, authcid and password separated by NUL bytes.
type PlainMechanism struct {
	username string
	password string
}

// NewPlainMechanism creates a PLAIN mechanism for the given identity.
func NewPlainMechanism(username, password string) *PlainMechanism {
	return &PlainMechanism{username: username, password: password}
}

// Name returns "PLAIN".
func (m *PlainMechanism) Name() string { return "PLAIN" }

// Start returns the single PLAIN message.
func (m *PlainMechanism) Start() ([]byte, error) {
	out := make([]byte, 0, len(m.username)+len(m.password)+2)
	out = append(out, 0)
	out = append(out, m.username...)
	out = append(out, 0)
	out = append(out, m.password...)
	return out, nil
}

// Step fails: PLAIN has no challenge round.
func (m *PlainMechanism) Step(_ []byte) ([]byte, error) {
	return nil, ErrProtocolViolation
}
