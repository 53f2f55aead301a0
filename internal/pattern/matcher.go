// Package pattern implements the glob engine behind learned text patterns
// and the derivation/reinforcement rules that maintain them.
package pattern

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/quillbooks/quill/internal/model"
)

// Match reports whether the glob pattern matches the text. Matching is
// case-insensitive; `*` matches any run of characters; a pattern without
// wildcards must match the whole text.
func Match(pattern, text string) bool {
	g, err := compile(pattern)
	if err != nil {
		return false
	}
	return g.Match(strings.ToLower(text))
}

var (
	compileMu    sync.RWMutex
	compileCache = make(map[string]glob.Glob)
)

// compile caches compiled globs; patterns repeat heavily across bulk passes.
func compile(pattern string) (glob.Glob, error) {
	key := strings.ToLower(pattern)

	compileMu.RLock()
	g, ok := compileCache[key]
	compileMu.RUnlock()
	if ok {
		return g, nil
	}

	g, err := glob.Compile(key)
	if err != nil {
		return nil, err
	}

	compileMu.Lock()
	compileCache[key] = g
	compileMu.Unlock()
	return g, nil
}

// Matcher evaluates a set of learned patterns against transaction text.
type Matcher struct {
	compiled map[string]glob.Glob
	patterns []model.LearnedPattern
}

// NewMatcher pre-compiles the given learned patterns. Patterns that fail to
// compile are skipped rather than failing the whole set.
func NewMatcher(patterns []model.LearnedPattern) *Matcher {
	m := &Matcher{
		patterns: patterns,
		compiled: make(map[string]glob.Glob, len(patterns)),
	}
	for _, p := range patterns {
		if g, err := compile(p.Pattern); err == nil {
			m.compiled[p.Pattern] = g
		}
	}
	return m
}

// Best returns the highest-confidence pattern matching the text.
func (m *Matcher) Best(text string) (model.LearnedPattern, bool) {
	lower := strings.ToLower(text)
	var best model.LearnedPattern
	found := false
	for _, p := range m.patterns {
		g, ok := m.compiled[p.Pattern]
		if !ok || !g.Match(lower) {
			continue
		}
		if !found || p.Confidence > best.Confidence {
			best = p
			found = true
		}
	}
	return best, found
}
