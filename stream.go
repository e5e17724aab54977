package xmppcore

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/beevik/etree"
)

// xmppStream is the XML stream engine over a single network connection.
// It exchanges <stream:stream> headers, reads and writes top-level stanza
// elements, and performs the in-place TLS upgrade for STARTTLS. Each header
// exchange begins a new stream generation.
type xmppStream struct {
	conn net.Conn
	dec  *xml.Decoder

	writeMu sync.Mutex

	domain string
	lang   string

	id  string
	tls bool
}

func newStream(conn net.Conn, domain, lang string) *xmppStream {
	s := &xmppStream{
		conn:   conn,
		domain: domain,
		lang:   lang,
	}
	s.dec = xml.NewDecoder(conn)
	_, s.tls = conn.(*tls.Conn)
	return s
}

// open sends the stream header and consumes the server's response header.
// Called once per stream generation: on connect, after STARTTLS, and after
// SASL success.
func (s *xmppStream) open(ctx context.Context) error {
	header := fmt.Sprintf(
		"<?xml version='1.0'?><stream:stream to='%s' xmlns:stream='%s' xmlns='%s' xml:lang='%s' version='1.0'>",
		s.domain, NamespaceStream, NamespaceClient, s.lang)

	if err := s.writeRaw([]byte(header)); err != nil {
		return fmt.Errorf("failed to send stream header: %w", err)
	}
	return s.readStreamStart(ctx)
}

// readStreamStart consumes tokens up to and including the server's
// <stream:stream> start tag and records the stream id.
func (s *xmppStream) readStreamStart(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
		defer s.conn.SetReadDeadline(time.Time{})
	}

	for {
		tok, err := s.dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read stream header: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != NamespaceStream || t.Name.Local != "stream" {
				return fmt.Errorf("expected stream header, got <%s>: %w",
					t.Name.Local, ErrProtocolViolation)
			}
			s.id = ""
			for _, attr := range t.Attr {
				if attr.Name.Local == "id" {
					s.id = attr.Value
				}
			}
			return nil
		case xml.ProcInst, xml.Comment, xml.CharData:
			// Skip the XML declaration and inter-element noise.
		default:
			return fmt.Errorf("unexpected token before stream header: %w", ErrProtocolViolation)
		}
	}
}

// readElement reads the next top-level element off the stream. Whitespace
// between stanzas (keepalives) is skipped. A </stream:stream> end tag or
// EOF yields ErrStreamClosed.
func (s *xmppStream) readElement(ctx context.Context) (*etree.Element, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
		defer s.conn.SetReadDeadline(time.Time{})
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tok, err := s.dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, ErrStreamClosed
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			return s.buildElement(t)
		case xml.EndElement:
			// Only the enclosing stream element can end at this depth.
			return nil, ErrStreamClosed
		case xml.CharData, xml.Comment, xml.ProcInst:
			// Whitespace keepalive or noise between stanzas.
		}
	}
}

// buildElement converts a start token and its subtree into an etree
// element. Namespaces resolved by the decoder are re-materialized as xmlns
// attributes so stanza views see them.
func (s *xmppStream) buildElement(start xml.StartElement) (*etree.Element, error) {
	el := etree.NewElement(start.Name.Local)
	if start.Name.Space != "" {
		el.CreateAttr("xmlns", start.Name.Space)
	}
	for _, attr := range start.Attr {
		if attr.Name.Local == "xmlns" || attr.Name.Space == "xmlns" {
			continue
		}
		el.CreateAttr(attr.Name.Local, attr.Value)
	}

	for {
		tok, err := s.dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, ErrStreamClosed
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := s.buildElement(t)
			if err != nil {
				return nil, err
			}
			el.AddChild(child)
		case xml.CharData:
			if text := string(t); text != "" {
				el.SetText(el.Text() + text)
			}
		case xml.EndElement:
			return el, nil
		}
	}
}

// writeElement serializes one element onto the stream.
func (s *xmppStream) writeElement(el *etree.Element) error {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	out, err := doc.WriteToString()
	if err != nil {
		return fmt.Errorf("failed to serialize stanza: %w", err)
	}
	return s.writeRaw([]byte(out))
}

func (s *xmppStream) writeRaw(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(data)
	return err
}

// upgradeTLS wraps the connection with TLS and resets the tokenizer for
// the fresh stream that follows. The server must not send any bytes after
// <proceed/> until the handshake completes.
func (s *xmppStream) upgradeTLS(ctx context.Context, config *tls.Config) error {
	tlsConn := tls.Client(s.conn, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("TLS handshake failed: %w", err)
	}

	s.conn = tlsConn
	s.dec = xml.NewDecoder(tlsConn)
	s.tls = true
	return nil
}

// restart resets the tokenizer and re-opens the stream header exchange,
// beginning a new generation on the same connection. Used after SASL
// success, where the stream restarts without a transport change.
func (s *xmppStream) restart(ctx context.Context) error {
	s.dec = xml.NewDecoder(s.conn)
	return s.open(ctx)
}

// sendFooter closes the stream politely.
func (s *xmppStream) sendFooter() error {
	return s.writeRaw([]byte("</stream:stream>"))
}

// sendKeepAlive writes a single whitespace byte, the XMPP idle keepalive.
func (s *xmppStream) sendKeepAlive() error {
	return s.writeRaw([]byte(" "))
}

func (s *xmppStream) remoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}

// parseStreamError converts a <stream:error/> element into a StreamError.
func parseStreamError(el *etree.Element) *StreamError {
	streamErr := &StreamError{Condition: "undefined-condition"}
	for _, child := range el.ChildElements() {
		if child.Tag == "text" {
			streamErr.Text = child.Text()
			continue
		}
		streamErr.Condition = child.Tag
	}
	return streamErr
}

// isStreamError reports whether the element is a stream-level error.
func isStreamError(el *etree.Element) bool {
	return el.Tag == "error" && el.SelectAttrValue("xmlns", "") == NamespaceStream
}
