package xmppcore

import (
	"sort"

	"github.com/beevik/etree"
)

// XMPP namespaces used during connection bootstrap.
const (
	NamespaceStream  = "http://etherx.jabber.org/streams"
	NamespaceClient  = "jabber:client"
	NamespaceTLS     = "urn:ietf:params:xml:ns:xmpp-tls"
	NamespaceSASL    = "urn:ietf:params:xml:ns:xmpp-sasl"
	NamespaceBind    = "urn:ietf:params:xml:ns:xmpp-bind"
	NamespaceSession = "urn:ietf:params:xml:ns:xmpp-session"
)

// streamFeaturesSpec declares the <stream:features/> stanza type.
var streamFeaturesSpec = MustStanzaSpec("features", NamespaceStream, nil)

// StreamFeatures is an immutable view over one <stream:features/>
// announcement. The server produces one per stream generation; the
// negotiator consumes it exactly once. Feature names are the local tag
// names of the announcement's child elements (starttls, mechanisms, bind,
// session, ...).
type StreamFeatures struct {
	stanza  *Stanza
	entries map[string]*etree.Element
}

// ParseStreamFeatures builds a features view from a parsed
// <stream:features/> element.
func ParseStreamFeatures(el *etree.Element) *StreamFeatures {
	entries := make(map[string]*etree.Element)
	for _, child := range el.ChildElements() {
		entries[child.Tag] = child
	}
	return &StreamFeatures{
		stanza:  WrapStanza(streamFeaturesSpec, el),
		entries: entries,
	}
}

// Has reports whether the server announced the named feature.
func (f *StreamFeatures) Has(name string) bool {
	_, ok := f.entries[name]
	return ok
}

// Element returns the announcement child for the named feature, or nil if
// the feature was not announced. Handlers use this to inspect feature
// details such as offered SASL mechanisms or a <required/> marker.
func (f *StreamFeatures) Element(name string) *etree.Element {
	return f.entries[name]
}

// Names returns the announced feature names in sorted order.
func (f *StreamFeatures) Names() []string {
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stanza returns the announcement as a stanza view.
func (f *StreamFeatures) Stanza() *Stanza {
	return f.stanza
}
