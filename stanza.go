package xmppcore

import (
	"fmt"
	"sort"

	"github.com/beevik/etree"
)

// StanzaSpec declares the shape of a stanza type: its XML tag name and
// namespace, the set of logical interfaces it exposes, and the subset of
// those interfaces stored as sub-element text instead of XML attributes.
//
// A spec is built once per stanza type and shared read-only by every
// Stanza instance of that type.
type StanzaSpec struct {
	name          string
	namespace     string
	interfaces    map[string]struct{}
	subInterfaces map[string]struct{}
}

// NewStanzaSpec creates a stanza spec. Every name in subInterfaces must also
// be present in interfaces.
func NewStanzaSpec(name, namespace string, interfaces []string, subInterfaces ...string) (*StanzaSpec, error) {
	spec := &StanzaSpec{
		name:          name,
		namespace:     namespace,
		interfaces:    make(map[string]struct{}, len(interfaces)),
		subInterfaces: make(map[string]struct{}, len(subInterfaces)),
	}
	for _, iface := range interfaces {
		spec.interfaces[iface] = struct{}{}
	}
	for _, iface := range subInterfaces {
		if _, ok := spec.interfaces[iface]; !ok {
			return nil, fmt.Errorf("sub-interface %q not declared as interface on <%s/>: %w",
				iface, name, ErrUnknownInterface)
		}
		spec.subInterfaces[iface] = struct{}{}
	}
	return spec, nil
}

// MustStanzaSpec is like NewStanzaSpec but panics on an invalid declaration.
// Intended for package-level stanza type definitions.
func MustStanzaSpec(name, namespace string, interfaces []string, subInterfaces ...string) *StanzaSpec {
	spec, err := NewStanzaSpec(name, namespace, interfaces, subInterfaces...)
	if err != nil {
		panic("xmppcore: " + err.Error())
	}
	return spec
}

// Name returns the XML tag name bound at creation.
func (s *StanzaSpec) Name() string { return s.name }

// Namespace returns the XML namespace bound at creation.
func (s *StanzaSpec) Namespace() string { return s.namespace }

// Interfaces returns the declared logical names in sorted order.
func (s *StanzaSpec) Interfaces() []string {
	names := make([]string, 0, len(s.interfaces))
	for name := range s.interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasInterface reports whether the logical name is declared on this type.
func (s *StanzaSpec) HasInterface(name string) bool {
	_, ok := s.interfaces[name]
	return ok
}

// IsSubInterface reports whether the logical name is bound to sub-element
// text rather than an XML attribute.
func (s *StanzaSpec) IsSubInterface(name string) bool {
	_, ok := s.subInterfaces[name]
	return ok
}

// Stanza is a view over an XML element exposing the logical interfaces
// declared by its spec. Reads and writes resolve through the spec: names in
// the sub-interface set always route to sub-element text, even when an XML
// attribute with the same name exists on the element.
type Stanza struct {
	spec *StanzaSpec
	el   *etree.Element
}

// NewStanza creates a fresh stanza of the given type with an empty element
// carrying the spec's tag name and namespace.
func NewStanza(spec *StanzaSpec) *Stanza {
	el := etree.NewElement(spec.name)
	if spec.namespace != "" {
		el.CreateAttr("xmlns", spec.namespace)
	}
	return &Stanza{spec: spec, el: el}
}

// WrapStanza creates a stanza view over an existing element, typically one
// parsed off the stream. The element is not copied.
func WrapStanza(spec *StanzaSpec, el *etree.Element) *Stanza {
	return &Stanza{spec: spec, el: el}
}

// Spec returns the stanza type declaration.
func (st *Stanza) Spec() *StanzaSpec { return st.spec }

// Element returns the underlying XML element.
func (st *Stanza) Element() *etree.Element { return st.el }

// Get returns the value bound to the logical name. A declared but unset
// name yields an empty string. Undeclared names fail with an
// InterfaceError wrapping ErrUnknownInterface.
func (st *Stanza) Get(name string) (string, error) {
	if !st.spec.HasInterface(name) {
		return "", newInterfaceError(st.spec.name, name)
	}
	if st.spec.IsSubInterface(name) {
		if child := st.el.SelectElement(name); child != nil {
			return child.Text(), nil
		}
		return "", nil
	}
	return st.el.SelectAttrValue(name, ""), nil
}

// Set writes the value through the logical name's binding. Setting an empty
// value removes the binding entirely, both for attributes and sub-elements.
func (st *Stanza) Set(name, value string) error {
	if !st.spec.HasInterface(name) {
		return newInterfaceError(st.spec.name, name)
	}
	if value == "" {
		return st.Del(name)
	}
	if st.spec.IsSubInterface(name) {
		child := st.el.SelectElement(name)
		if child == nil {
			child = st.el.CreateElement(name)
		}
		child.SetText(value)
		return nil
	}
	st.el.CreateAttr(name, value)
	return nil
}

// Del removes the binding for the logical name, if present.
func (st *Stanza) Del(name string) error {
	if !st.spec.HasInterface(name) {
		return newInterfaceError(st.spec.name, name)
	}
	if st.spec.IsSubInterface(name) {
		if child := st.el.SelectElement(name); child != nil {
			st.el.RemoveChild(child)
		}
		return nil
	}
	st.el.RemoveAttr(name)
	return nil
}

// String returns the serialized XML form of the stanza.
func (st *Stanza) String() string {
	doc := etree.NewDocument()
	doc.SetRoot(st.el.Copy())
	out, err := doc.WriteToString()
	if err != nil {
		return "<" + st.spec.name + "/>"
	}
	return out
}
