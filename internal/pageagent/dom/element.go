package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Element is a handle to one element of a Document. The zero Element
// refers to nothing.
type Element struct {
	doc *Document
	n   *html.Node
}

// IsZero reports whether e refers to nothing.
func (e Element) IsZero() bool {
	return e.n == nil
}

// ID returns the element's stable identifier.
func (e Element) ID() NodeID {
	if e.n == nil {
		return ""
	}
	return idOf(e.n)
}

// Tag returns the lower-case tag name.
func (e Element) Tag() string {
	if e.n == nil {
		return ""
	}
	return strings.ToLower(e.n.Data)
}

// Attr returns the value of the named attribute.
func (e Element) Attr(key string) (string, bool) {
	if e.n == nil {
		return "", false
	}
	return getAttr(e.n, key)
}

// SetAttr sets the named attribute. The identifier attribute is read-only.
func (e Element) SetAttr(key, val string) {
	if e.n == nil || key == IDAttr {
		return
	}
	setAttr(e.n, key, val)
}

// Type returns the lower-case input type, "text" when unset.
func (e Element) Type() string {
	t, ok := e.Attr("type")
	if !ok || t == "" {
		return "text"
	}
	return strings.ToLower(t)
}

// Value returns the current value of a form control.
func (e Element) Value() string {
	v, _ := e.Attr("value")
	return v
}

// SetValue sets the current value of a form control.
func (e Element) SetValue(v string) {
	e.SetAttr("value", v)
}

// Closest returns the nearest ancestor-or-self with the given tag.
func (e Element) Closest(tag string) (Element, bool) {
	for n := e.n; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
			return Element{doc: e.doc, n: n}, true
		}
	}
	return Element{}, false
}

// QueryAll returns the descendants of e matching p, in document order.
func (e Element) QueryAll(p Predicate) []Element {
	if e.n == nil {
		return nil
	}
	return e.doc.queryAll(e.n, p, 0)
}

// Query returns the first descendant of e matching p.
func (e Element) Query(p Predicate) (Element, bool) {
	if e.n == nil {
		return Element{}, false
	}
	found := e.doc.queryAll(e.n, p, 1)
	if len(found) == 0 {
		return Element{}, false
	}
	return found[0], true
}

// Precedes reports whether e comes before other in document order.
// Both must belong to the same tree.
func (e Element) Precedes(other Element) bool {
	if e.n == nil || other.n == nil || e.n == other.n {
		return false
	}
	root := e.n
	for root.Parent != nil {
		root = root.Parent
	}
	first := (*html.Node)(nil)
	walk(root, func(n *html.Node) bool {
		if n == e.n || n == other.n {
			first = n
			return false
		}
		return true
	})
	return first == e.n
}

// Equal reports whether e and other refer to the same element.
func (e Element) Equal(other Element) bool {
	return e.n == other.n
}

// Predicate selects elements.
type Predicate func(Element) bool

// Tag matches elements with the given tag name.
func Tag(name string) Predicate {
	name = strings.ToLower(name)
	return func(e Element) bool { return e.Tag() == name }
}

// Input matches input elements whose type attribute is present and equal to
// typ, ignoring case. An input without a type attribute does not match.
func Input(typ string) Predicate {
	return func(e Element) bool {
		if e.Tag() != "input" {
			return false
		}
		t, ok := e.Attr("type")
		return ok && strings.EqualFold(t, typ)
	}
}

// AttrEquals matches elements whose attribute key equals val.
func AttrEquals(key, val string) Predicate {
	return func(e Element) bool {
		v, ok := e.Attr(key)
		return ok && v == val
	}
}

// AttrContains matches elements whose attribute key contains sub.
// Matching is case-sensitive and an empty sub matches nothing.
func AttrContains(key, sub string) Predicate {
	return func(e Element) bool {
		v, ok := e.Attr(key)
		return ok && sub != "" && strings.Contains(v, sub)
	}
}

// All matches when every predicate matches.
func All(ps ...Predicate) Predicate {
	return func(e Element) bool {
		for _, p := range ps {
			if !p(e) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one predicate matches.
func Any(ps ...Predicate) Predicate {
	return func(e Element) bool {
		for _, p := range ps {
			if p(e) {
				return true
			}
		}
		return false
	}
}
