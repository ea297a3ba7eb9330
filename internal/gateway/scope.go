package gateway

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultScopePatterns are the paths that receive the master secret header.
var DefaultScopePatterns = []string{"/api/vault*", "/api/analytics*"}

// Scope decides which request paths are sensitive.
type Scope struct {
	globs []glob.Glob
}

// NewScope compiles patterns. Patterns are matched against the whole path,
// so they should be anchored at the leading slash.
func NewScope(patterns ...string) (*Scope, error) {
	s := &Scope{}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile scope pattern %q: %w", p, err)
		}
		s.globs = append(s.globs, g)
	}
	return s, nil
}

// DefaultScope covers vault and analytics paths.
func DefaultScope() *Scope {
	s, err := NewScope(DefaultScopePatterns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Sensitive reports whether the path component of path matches any pattern.
// Query strings and fragments are not considered.
func (s *Scope) Sensitive(path string) bool {
	if s == nil {
		return false
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, g := range s.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}
