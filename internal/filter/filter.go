// Package filter drops unwanted entities before they reach the event log.
package filter

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Blocklist matches entity ids against glob patterns (*, ?, character
// classes). An empty list blocks nothing.
type Blocklist struct {
	patterns []glob.Glob
}

// NewBlocklist compiles the given patterns. Invalid patterns are a
// configuration error surfaced at startup.
func NewBlocklist(patterns []string) (*Blocklist, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile blocklist pattern %q: %w", p, err)
		}
		compiled = append(compiled, g)
	}
	return &Blocklist{patterns: compiled}, nil
}

// ShouldBlock reports whether the entity id matches any blocked pattern.
func (b *Blocklist) ShouldBlock(entityID string) bool {
	for _, g := range b.patterns {
		if g.Match(entityID) {
			return true
		}
	}
	return false
}
