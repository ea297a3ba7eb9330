package detector

import (
	"strings"

	"github.com/atinyakov/keeperbridge/internal/pageagent/dom"
)

// identitySelectors lists the identity field patterns by decreasing
// specificity. The first pattern with a match other than the password
// field wins.
var identitySelectors = []dom.Predicate{
	dom.Input("email"),
	dom.All(dom.Input("text"), dom.AttrContains("name", "user")),
	dom.All(dom.Input("text"), dom.AttrContains("name", "email")),
	dom.All(dom.Input("text"), dom.AttrContains("name", "login")),
	dom.All(dom.Input("text"), dom.AttrContains("id", "user")),
	dom.All(dom.Input("text"), dom.AttrContains("id", "email")),
	dom.All(dom.Input("text"), dom.AttrContains("id", "login")),
	dom.All(dom.Tag("input"), dom.AttrEquals("autocomplete", "username")),
	dom.All(dom.Tag("input"), dom.AttrEquals("autocomplete", "email")),
}

var textOrEmail = dom.Any(dom.Input("text"), dom.Input("email"))

// FindIdentityField pairs a password field with the field most likely to
// hold the account identity. The search is scoped to the enclosing form, or
// to the document body when the field has none.
func FindIdentityField(doc *dom.Document, password dom.Element) (dom.Element, bool) {
	scope, ok := password.Closest("form")
	if !ok {
		scope = doc.Body()
	}
	if scope.IsZero() {
		return dom.Element{}, false
	}

	for _, sel := range identitySelectors {
		if field, ok := scope.Query(sel); ok && !field.Equal(password) {
			return field, true
		}
	}

	// Fallback: the text or email field immediately before the password.
	var prev dom.Element
	for _, field := range scope.QueryAll(textOrEmail) {
		if !field.Precedes(password) {
			break
		}
		prev = field
	}
	return prev, !prev.IsZero()
}

// SiteName derives the short site name from a hostname: a leading "www."
// is dropped and only the first label is kept.
func SiteName(hostname string) string {
	host := strings.TrimPrefix(hostname, "www.")
	name, _, _ := strings.Cut(host, ".")
	return name
}
