package xmppcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // SHA-1 required for SCRAM-SHA-1 compatibility
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SCRAMHash represents the hash algorithm used for SCRAM authentication.
type SCRAMHash int

const (
	// SCRAMHashSHA1 uses SHA-1 (for legacy compatibility, not recommended for new deployments).
	SCRAMHashSHA1 SCRAMHash = iota
	// SCRAMHashSHA256 uses SHA-256 (recommended).
	SCRAMHashSHA256
	// SCRAMHashSHA512 uses SHA-512 (highest security).
	SCRAMHashSHA512
)

// String returns the SASL mechanism name for this hash.
func (h SCRAMHash) String() string {
	switch h {
	case SCRAMHashSHA1:
		return "SCRAM-SHA-1"
	case SCRAMHashSHA256:
		return "SCRAM-SHA-256"
	case SCRAMHashSHA512:
		return "SCRAM-SHA-512"
	default:
		return "SCRAM-SHA-256"
	}
}

// hashFunc returns the hash.Hash constructor for this algorithm.
func (h SCRAMHash) hashFunc() func() hash.Hash {
	switch h {
	case SCRAMHashSHA1:
		return sha1.New
	case SCRAMHashSHA256:
		return sha256.New
	case SCRAMHashSHA512:
		return sha512.New
	default:
		return sha256.New
	}
}

// keySize returns the key size in bytes for this hash.
func (h SCRAMHash) keySize() int {
	switch h {
	case SCRAMHashSHA1:
		return 20
	case SCRAMHashSHA256:
		return 32
	case SCRAMHashSHA512:
		return 64
	default:
		return 32
	}
}

// ErrSCRAMServerSignature is returned when the server's final signature
// does not verify, meaning the server never knew the password.
var ErrSCRAMServerSignature = errors.New("SCRAM server signature mismatch")

// scramPhase tracks the client exchange progress.
type scramPhase int

const (
	scramPhaseStart scramPhase = iota
	scramPhaseFirstSent
	scramPhaseFinalSent
	scramPhaseDone
)

// SCRAMMechanism implements the client side of SCRAM (RFC 5802): a salted
// challenge-response exchange with mutual authentication. The server's
// final signature is verified so a server that does not hold the
// credentials cannot fake a success.
type SCRAMMechanism struct {
	hashType SCRAMHash
	username string
	password string

	phase       scramPhase
	clientNonce string
	authMessage string
	saltedPass  []byte
}

// NewSCRAMMechanism creates a SCRAM client mechanism for the given hash
// and identity.
func NewSCRAMMechanism(hashType SCRAMHash, username, password string) *SCRAMMechanism {
	return &SCRAMMechanism{
		hashType: hashType,
		username: username,
		password: password,
	}
}

// Name returns the SASL mechanism name, e.g. "SCRAM-SHA-256".
func (m *SCRAMMechanism) Name() string { return m.hashType.String() }

// Start returns the client-first-message: GS2 header plus username and a
// fresh nonce.
func (m *SCRAMMechanism) Start() ([]byte, error) {
	m.clientNonce = generateScramNonce()
	m.phase = scramPhaseFirstSent
	first := fmt.Sprintf("n,,n=%s,r=%s", escapeScramUsername(m.username), m.clientNonce)
	return []byte(first), nil
}

// Step processes the server-first-message (returning the
// client-final-message with the proof) and then the server-final-message
// (verifying the server signature, returning nil).
func (m *SCRAMMechanism) Step(challenge []byte) ([]byte, error) {
	switch m.phase {
	case scramPhaseFirstSent:
		return m.stepServerFirst(string(challenge))
	case scramPhaseFinalSent:
		return nil, m.verifyServerFinal(string(challenge))
	default:
		return nil, ErrProtocolViolation
	}
}

func (m *SCRAMMechanism) stepServerFirst(serverFirst string) ([]byte, error) {
	serverNonce, saltB64, iterStr := parseScramServerFirst(serverFirst)
	if serverNonce == "" || saltB64 == "" || iterStr == "" {
		return nil, fmt.Errorf("malformed server-first-message: %w", ErrProtocolViolation)
	}

	// The server nonce must extend ours, otherwise the exchange is replayed.
	if !strings.HasPrefix(serverNonce, m.clientNonce) {
		return nil, fmt.Errorf("server nonce does not extend client nonce: %w", ErrProtocolViolation)
	}

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("malformed salt: %w", ErrProtocolViolation)
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return nil, fmt.Errorf("malformed iteration count: %w", ErrProtocolViolation)
	}

	hashFunc := m.hashType.hashFunc()

	// SaltedPassword = PBKDF2(password, salt, iterations, keySize, Hash)
	m.saltedPass = pbkdf2.Key([]byte(m.password), salt, iterations, m.hashType.keySize(), hashFunc)

	// ClientKey = HMAC(SaltedPassword, "Client Key"); StoredKey = H(ClientKey)
	clientKeyHMAC := hmac.New(hashFunc, m.saltedPass)
	clientKeyHMAC.Write([]byte("Client Key"))
	clientKey := clientKeyHMAC.Sum(nil)

	h := hashFunc()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	clientFirstBare := fmt.Sprintf("n=%s,r=%s", escapeScramUsername(m.username), m.clientNonce)
	clientFinalWithoutProof := fmt.Sprintf("c=biws,r=%s", serverNonce)
	m.authMessage = clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	// ClientSignature = HMAC(StoredKey, AuthMessage)
	clientSigHMAC := hmac.New(hashFunc, storedKey)
	clientSigHMAC.Write([]byte(m.authMessage))
	clientSignature := clientSigHMAC.Sum(nil)

	// ClientProof = ClientKey XOR ClientSignature
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}

	m.phase = scramPhaseFinalSent
	clientFinal := fmt.Sprintf("%s,p=%s", clientFinalWithoutProof, base64.StdEncoding.EncodeToString(proof))
	return []byte(clientFinal), nil
}

func (m *SCRAMMechanism) verifyServerFinal(serverFinal string) error {
	var sigB64 string
	for _, part := range strings.Split(serverFinal, ",") {
		if strings.HasPrefix(part, "v=") {
			sigB64 = part[2:]
		}
	}
	if sigB64 == "" {
		return fmt.Errorf("missing server signature: %w", ErrSCRAMServerSignature)
	}

	serverSig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("malformed server signature: %w", ErrSCRAMServerSignature)
	}

	hashFunc := m.hashType.hashFunc()

	// ServerKey = HMAC(SaltedPassword, "Server Key")
	serverKeyHMAC := hmac.New(hashFunc, m.saltedPass)
	serverKeyHMAC.Write([]byte("Server Key"))
	serverKey := serverKeyHMAC.Sum(nil)

	// ServerSignature = HMAC(ServerKey, AuthMessage)
	serverSigHMAC := hmac.New(hashFunc, serverKey)
	serverSigHMAC.Write([]byte(m.authMessage))
	expected := serverSigHMAC.Sum(nil)

	if !hmac.Equal(serverSig, expected) {
		return ErrSCRAMServerSignature
	}

	m.phase = scramPhaseDone
	return nil
}

// escapeScramUsername applies the SCRAM username escaping from RFC 5802:
// "=" becomes "=3D" and "," becomes "=2C".
func escapeScramUsername(username string) string {
	username = strings.ReplaceAll(username, "=", "=3D")
	return strings.ReplaceAll(username, ",", "=2C")
}

// parseScramServerFirst extracts nonce, salt and iteration count from the
// server-first-message.
func parseScramServerFirst(msg string) (nonce, salt, iterations string) {
	for _, part := range strings.Split(msg, ",") {
		if len(part) < 2 {
			continue
		}
		switch part[:2] {
		case "r=":
			nonce = part[2:]
		case "s=":
			salt = part[2:]
		case "i=":
			iterations = part[2:]
		}
	}
	return
}

// generateScramNonce creates a cryptographically secure random nonce.
func generateScramNonce() string {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		// Fallback to less secure but functional nonce
		return "fallback-nonce"
	}
	return base64.StdEncoding.EncodeToString(b)
}
