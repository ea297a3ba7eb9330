// Package dom models the document of the visited page for the page agent.
//
// A Document wraps a parsed golang.org/x/net/html tree and adds the small
// part of the browser DOM the agent relies on: stable element identities,
// submit listeners, mutation observers and teardown hooks. Every element
// carries a stable identifier in the data-vault-id attribute; identifiers
// already present in a snapshot are kept, so a live page and its mirrored
// Document agree on which form is which.
//
// A Document is not safe for concurrent use. Like a page's event loop, the
// owner serializes every call.
package dom

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/atinyakov/keeperbridge/internal/pubsub"
	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// IDAttr is the attribute holding an element's stable identifier.
const IDAttr = "data-vault-id"

var (
	// ErrDetached is returned when an element is no longer in the document.
	ErrDetached = errors.New("element is not attached to the document")
	// ErrNotForm is returned when a submit is dispatched on a non-form element.
	ErrNotForm = errors.New("element is not a form")
)

// NodeID identifies an element for the lifetime of the document.
type NodeID string

// Mutation describes one change to the document tree.
type Mutation struct {
	Added   []Element
	Removed []NodeID
}

// Document is the page model.
type Document struct {
	url    *url.URL
	root   *html.Node
	nodes  map[NodeID]*html.Node
	submit map[NodeID][]func(Element)
	detach map[NodeID][]func()
	unload []func()

	mutations *pubsub.Hub[Mutation]
}

// Parse reads an HTML document served at rawURL.
func Parse(rawURL string, r io.Reader) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	d := &Document{
		url:       u,
		submit:    make(map[NodeID][]func(Element)),
		detach:    make(map[NodeID][]func()),
		mutations: pubsub.New[Mutation](),
	}
	d.root = root
	d.nodes = index(root)
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(rawURL, src string) (*Document, error) {
	return Parse(rawURL, strings.NewReader(src))
}

// URL returns the page URL.
func (d *Document) URL() *url.URL {
	return d.url
}

// Body returns the body element, or the zero Element for a document
// without one.
func (d *Document) Body() Element {
	var body Element
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = d.wrap(n)
			return false
		}
		return true
	})
	return body
}

// QueryAll returns every element matching p, in document order.
func (d *Document) QueryAll(p Predicate) []Element {
	return d.queryAll(d.root, p, 0)
}

// Query returns the first element matching p in document order.
func (d *Document) Query(p Predicate) (Element, bool) {
	found := d.queryAll(d.root, p, 1)
	if len(found) == 0 {
		return Element{}, false
	}
	return found[0], true
}

// PasswordFields returns every password-typed input of the page.
func (d *Document) PasswordFields() []Element {
	return d.QueryAll(Input("password"))
}

// ElementByID looks an element up by its stable identifier.
func (d *Document) ElementByID(id NodeID) (Element, bool) {
	n, ok := d.nodes[id]
	if !ok {
		return Element{}, false
	}
	return d.wrap(n), true
}

// AddSubmitListener registers fn to run when form is submitted.
func (d *Document) AddSubmitListener(form Element, fn func(form Element)) {
	id := form.ID()
	d.submit[id] = append(d.submit[id], fn)
}

// SubmitListeners reports how many submit listeners form carries.
func (d *Document) SubmitListeners(form Element) int {
	return len(d.submit[form.ID()])
}

// Submit dispatches a submit event on form. Listeners run synchronously in
// registration order.
func (d *Document) Submit(form Element) error {
	if !d.Contains(form) {
		return ErrDetached
	}
	if form.Tag() != "form" {
		return ErrNotForm
	}
	fns := append([]func(Element){}, d.submit[form.ID()]...)
	for _, fn := range fns {
		fn(form)
	}
	return nil
}

// Observe registers fn for every subsequent tree mutation. Closing the
// returned subscription disconnects the observer.
func (d *Document) Observe(fn func(Mutation)) *pubsub.Subscription {
	return d.mutations.Subscribe(fn)
}

// Contains reports whether el is attached to this document.
func (d *Document) Contains(el Element) bool {
	if el.n == nil || el.doc != d {
		return false
	}
	n, ok := d.nodes[el.ID()]
	return ok && n == el.n
}

// AppendHTML parses fragment in the context of parent, appends the result
// and notifies observers of the added top-level elements.
func (d *Document) AppendHTML(parent Element, fragment string) ([]Element, error) {
	if !d.Contains(parent) {
		return nil, ErrDetached
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent.n)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}

	var added []Element
	for _, n := range nodes {
		parent.n.AppendChild(n)
		for id, node := range index(n) {
			if _, taken := d.nodes[id]; taken {
				id = NodeID(uuid.NewString())
				setAttr(node, IDAttr, string(id))
			}
			d.nodes[id] = node
		}
		if n.Type == html.ElementNode {
			added = append(added, d.wrap(n))
		}
	}
	if len(added) > 0 {
		d.mutations.Publish(Mutation{Added: added})
	}
	return added, nil
}

// Remove detaches el and its subtree, running their detach hooks.
func (d *Document) Remove(el Element) {
	if !d.Contains(el) {
		return
	}
	var gone []NodeID
	for id := range index(el.n) {
		gone = append(gone, id)
	}
	if el.n.Parent != nil {
		el.n.Parent.RemoveChild(el.n)
	}
	d.forget(gone)
	d.mutations.Publish(Mutation{Removed: gone})
}

// Replace swaps the tree for a fresh snapshot of the same page. Elements
// whose identifier survives keep their listeners and hooks; the others are
// detached. Observers see the difference as a single mutation.
func (d *Document) Replace(r io.Reader) error {
	root, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}
	next := index(root)

	prev := d.nodes
	var m Mutation
	for id := range prev {
		if _, ok := next[id]; !ok {
			m.Removed = append(m.Removed, id)
		}
	}
	d.root, d.nodes = root, next
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if _, existed := prev[idOf(n)]; !existed {
			m.Added = append(m.Added, d.wrap(n))
		}
		return true
	})
	d.forget(m.Removed)

	if len(m.Added) > 0 || len(m.Removed) > 0 {
		d.mutations.Publish(m)
	}
	return nil
}

// OnDetach registers fn to run once el leaves the document.
func (d *Document) OnDetach(el Element, fn func()) {
	id := el.ID()
	d.detach[id] = append(d.detach[id], fn)
}

// OnUnload registers fn to run when the document unloads.
func (d *Document) OnUnload(fn func()) {
	d.unload = append(d.unload, fn)
}

// Unload tears the document down: unload hooks run, then every element is
// forgotten and observers are dropped.
func (d *Document) Unload() {
	fns := d.unload
	d.unload = nil
	for _, fn := range fns {
		fn()
	}
	d.root = &html.Node{Type: html.DocumentNode}
	d.nodes = make(map[NodeID]*html.Node)
	d.submit = make(map[NodeID][]func(Element))
	d.detach = make(map[NodeID][]func())
	d.mutations = pubsub.New[Mutation]()
}

// Render writes the current tree as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

func (d *Document) forget(ids []NodeID) {
	for _, id := range ids {
		fns := d.detach[id]
		delete(d.detach, id)
		delete(d.submit, id)
		delete(d.nodes, id)
		for _, fn := range fns {
			fn()
		}
	}
}

func (d *Document) queryAll(from *html.Node, p Predicate, limit int) []Element {
	var out []Element
	walk(from, func(n *html.Node) bool {
		if n == from || n.Type != html.ElementNode {
			return true
		}
		if el := d.wrap(n); p(el) {
			out = append(out, el)
			if limit > 0 && len(out) >= limit {
				return false
			}
		}
		return true
	})
	return out
}

func (d *Document) wrap(n *html.Node) Element {
	return Element{doc: d, n: n}
}

// index stamps every element under n with an identifier and returns them.
// Duplicated identifiers inside one tree are reassigned.
func index(n *html.Node) map[NodeID]*html.Node {
	out := make(map[NodeID]*html.Node)
	walk(n, func(c *html.Node) bool {
		if c.Type != html.ElementNode {
			return true
		}
		id := idOf(c)
		if _, dup := out[id]; id == "" || dup {
			id = NodeID(uuid.NewString())
			setAttr(c, IDAttr, string(id))
		}
		out[id] = c
		return true
	})
	return out
}

// walk visits n and its descendants in document order until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func idOf(n *html.Node) NodeID {
	v, _ := getAttr(n, IDAttr)
	return NodeID(v)
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
