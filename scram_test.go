package xmppcore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSCRAMHashString(t *testing.T) {
	tests := []struct {
		hash SCRAMHash
		want string
	}{
		{SCRAMHashSHA1, "SCRAM-SHA-1"},
		{SCRAMHashSHA256, "SCRAM-SHA-256"},
		{SCRAMHashSHA512, "SCRAM-SHA-512"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hash.String())
		})
	}
}

// Exchange vectors from RFC 5802 section 5.
func TestSCRAMSHA1Exchange(t *testing.T) {
	mech := NewSCRAMMechanism(SCRAMHashSHA1, "user", "pencil")

	_, err := mech.Start()
	require.NoError(t, err)

	// Replay the published exchange with the documented nonce.
	mech.clientNonce = "fyko+d2lbbFgONRv9qkxdawL"

	serverFirst := "r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096"
	clientFinal, err := mech.Step([]byte(serverFirst))
	require.NoError(t, err)

	assert.Equal(t,
		"c=biws,r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,p=v0X8v3Bz2T0CJGbJQyF0X+HI4Ts=",
		string(clientFinal))

	extra, err := mech.Step([]byte("v=rmF9pqV8S7suAoZWja4dJRkFsKQ="))
	require.NoError(t, err)
	assert.Nil(t, extra)
}

// Exchange vectors from RFC 7677 section 3.
func TestSCRAMSHA256Exchange(t *testing.T) {
	mech := NewSCRAMMechanism(SCRAMHashSHA256, "user", "pencil")

	_, err := mech.Start()
	require.NoError(t, err)

	mech.clientNonce = "rOprNGfwEbeRWgbNEkqO"

	serverFirst := "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	clientFinal, err := mech.Step([]byte(serverFirst))
	require.NoError(t, err)

	assert.Equal(t,
		"c=biws,r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,p=dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ=",
		string(clientFinal))

	extra, err := mech.Step([]byte("v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4="))
	require.NoError(t, err)
	assert.Nil(t, extra)
}

func TestSCRAMServerSignatureMismatch(t *testing.T) {
	mech := NewSCRAMMechanism(SCRAMHashSHA256, "user", "pencil")

	_, err := mech.Start()
	require.NoError(t, err)
	mech.clientNonce = "rOprNGfwEbeRWgbNEkqO"

	serverFirst := "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	_, err = mech.Step([]byte(serverFirst))
	require.NoError(t, err)

	// Tampered signature means the server never held the credentials.
	_, err = mech.Step([]byte("v=AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="))
	assert.ErrorIs(t, err, ErrSCRAMServerSignature)
}

func TestSCRAMRejectsReplayedNonce(t *testing.T) {
	mech := NewSCRAMMechanism(SCRAMHashSHA1, "user", "pencil")

	_, err := mech.Start()
	require.NoError(t, err)
	mech.clientNonce = "fyko+d2lbbFgONRv9qkxdawL"

	// Server nonce that does not extend ours.
	serverFirst := "r=completely-different-nonce,s=QSXCR+Q6sek8bf92,i=4096"
	_, err = mech.Step([]byte(serverFirst))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestSCRAMMalformedServerFirst(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{"empty", ""},
		{"missing salt", "r=abc,i=4096"},
		{"missing iterations", "r=abc,s=QSXCR+Q6sek8bf92"},
		{"bad iteration count", "r=abc,s=QSXCR+Q6sek8bf92,i=zero"},
		{"bad salt encoding", "r=abc,s=!!!,i=4096"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mech := NewSCRAMMechanism(SCRAMHashSHA256, "user", "pencil")
			first, err := mech.Start()
			require.NoError(t, err)
			// Feed back our own nonce so the prefix check passes.
			if tt.message != "" {
				tt.message = strings.Replace(tt.message, "r=abc", "r="+mech.clientNonce+"abc", 1)
			}

			require.NotEmpty(t, first)
			_, err = mech.Step([]byte(tt.message))
			assert.ErrorIs(t, err, ErrProtocolViolation)
		})
	}
}

func TestEscapeScramUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user", "user"},
		{"user=name", "user=3Dname"},
		{"user,name", "user=2Cname"},
		{"a=b,c", "a=3Db=2Cc"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeScramUsername(tt.in))
	}
}

func TestSCRAMStartIncludesEscapedUsername(t *testing.T) {
	mech := NewSCRAMMechanism(SCRAMHashSHA256, "u=ser,x", "pw")

	first, err := mech.Start()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(first), "n,,n=u=3Dser=2Cx,r="))
}

func TestGenerateScramNonce(t *testing.T) {
	a := generateScramNonce()
	b := generateScramNonce()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, ",")
}
