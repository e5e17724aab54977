package xmppcore

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServerHeader = "<?xml version='1.0'?>" +
	"<stream:stream from='example.org' id='s1' xmlns:stream='http://etherx.jabber.org/streams' " +
	"xmlns='jabber:client' version='1.0'>"

// scriptConn runs a scripted peer on the far end of a pipe: it drains
// whatever the client writes and plays back the canned responses in order.
func scriptConn(t *testing.T, responses ...string) net.Conn {
	t.Helper()

	client, server := net.Pipe()
	go func() {
		buf := make([]byte, 4096)
		for _, resp := range responses {
			if _, err := server.Read(buf); err != nil {
				return
			}
			if _, err := server.Write([]byte(resp)); err != nil {
				return
			}
		}
		// Drain until the client hangs up.
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStreamOpen(t *testing.T) {
	conn := scriptConn(t, testServerHeader)
	s := newStream(conn, "example.org", "en")

	require.NoError(t, s.open(testContext(t)))
	assert.Equal(t, "s1", s.id)
	assert.False(t, s.tls)
}

func TestStreamOpenRejectsNonStreamHeader(t *testing.T) {
	conn := scriptConn(t, "<?xml version='1.0'?><html>")
	s := newStream(conn, "example.org", "en")

	err := s.open(testContext(t))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestStreamReadElement(t *testing.T) {
	conn := scriptConn(t,
		testServerHeader+"<stream:features><starttls xmlns='urn:ietf:params:xml:ns:xmpp-tls'/></stream:features>")
	s := newStream(conn, "example.org", "en")
	ctx := testContext(t)

	require.NoError(t, s.open(ctx))

	el, err := s.readElement(ctx)
	require.NoError(t, err)
	assert.Equal(t, "features", el.Tag)

	starttls := el.SelectElement("starttls")
	require.NotNil(t, starttls)
	assert.Equal(t, NamespaceTLS, starttls.SelectAttrValue("xmlns", ""))
}

func TestStreamReadElementSkipsWhitespace(t *testing.T) {
	conn := scriptConn(t, testServerHeader+"   \n  <stream:features/>")
	s := newStream(conn, "example.org", "en")
	ctx := testContext(t)

	require.NoError(t, s.open(ctx))

	el, err := s.readElement(ctx)
	require.NoError(t, err)
	assert.Equal(t, "features", el.Tag)
}

func TestStreamReadElementText(t *testing.T) {
	conn := scriptConn(t,
		testServerHeader+"<iq type='result' id='a1'><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'><jid>alice@example.org/desk</jid></bind></iq>")
	s := newStream(conn, "example.org", "en")
	ctx := testContext(t)

	require.NoError(t, s.open(ctx))

	el, err := s.readElement(ctx)
	require.NoError(t, err)
	require.Equal(t, "iq", el.Tag)
	assert.Equal(t, "result", el.SelectAttrValue("type", ""))

	bind := el.SelectElement("bind")
	require.NotNil(t, bind)
	jid := bind.SelectElement("jid")
	require.NotNil(t, jid)
	assert.Equal(t, "alice@example.org/desk", jid.Text())
}

func TestStreamReadElementStreamEnd(t *testing.T) {
	conn := scriptConn(t, testServerHeader+"</stream:stream>")
	s := newStream(conn, "example.org", "en")
	ctx := testContext(t)

	require.NoError(t, s.open(ctx))

	_, err := s.readElement(ctx)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStreamWriteElement(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := newStream(client, "example.org", "en")

	el := etree.NewElement("presence")
	el.CreateAttr("type", "unavailable")

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 1024)
		n, _ := server.Read(buf)
		got <- string(buf[:n])
	}()

	require.NoError(t, s.writeElement(el))

	select {
	case wire := <-got:
		assert.Contains(t, wire, "<presence")
		assert.Contains(t, wire, `type="unavailable"`)
	case <-time.After(time.Second):
		t.Fatal("write not observed")
	}
}

func TestStreamKeepAliveAndFooter(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := newStream(client, "example.org", "en")

	go func() {
		s.sendKeepAlive()
		s.sendFooter()
	}()

	data, err := readN(server, len(" </stream:stream>"))
	require.NoError(t, err)
	assert.Equal(t, " </stream:stream>", data)
}

func readN(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func TestParseStreamErrorCondition(t *testing.T) {
	el := etree.NewElement("error")
	el.CreateAttr("xmlns", NamespaceStream)
	el.AddChild(etree.NewElement("host-unknown"))
	text := etree.NewElement("text")
	text.SetText("unknown host")
	el.AddChild(text)

	require.True(t, isStreamError(el))

	streamErr := parseStreamError(el)
	assert.Equal(t, "host-unknown", streamErr.Condition)
	assert.Equal(t, "unknown host", streamErr.Text)
}

func TestParseStreamErrorUndefined(t *testing.T) {
	el := etree.NewElement("error")
	el.CreateAttr("xmlns", NamespaceStream)

	streamErr := parseStreamError(el)
	assert.Equal(t, "undefined-condition", streamErr.Condition)
}

func TestIsStreamErrorWrongNamespace(t *testing.T) {
	el := etree.NewElement("error")
	el.CreateAttr("xmlns", NamespaceClient)
	assert.False(t, isStreamError(el))
}
