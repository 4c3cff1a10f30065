// Package filter decides per file path whether sites are recorded and
// reported. Rules evaluate include, then exclude, then syspath; later rules
// override earlier ones. Matching is by path-prefix comparison after
// normalization.
package filter

import (
	"path/filepath"
	"strings"
)

type Policy struct {
	*PolicyOptions
}

type PolicyOptions struct {
	include  []string
	exclude  []string
	syspaths []string
}

type PolicyOption func(*Policy)

// WithInclude restricts tracking to paths matching at least one prefix.
func WithInclude(prefixes ...string) PolicyOption {
	return func(p *Policy) {
		p.include = append(p.include, normalizeAll(prefixes)...)
	}
}

// WithExclude suppresses paths matching any prefix, even included ones.
func WithExclude(prefixes ...string) PolicyOption {
	return func(p *Policy) {
		p.exclude = append(p.exclude, normalizeAll(prefixes)...)
	}
}

// WithSyspaths suppresses paths under any interpreter library directory.
func WithSyspaths(dirs ...string) PolicyOption {
	return func(p *Policy) {
		p.syspaths = append(p.syspaths, normalizeAll(dirs)...)
	}
}

func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		PolicyOptions: &PolicyOptions{},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Tracked reports whether sites in path are recorded and reported.
func (p *Policy) Tracked(path string) bool {
	path = normalize(path)
	if len(p.include) > 0 && !matchAny(path, p.include) {
		return false
	}
	if matchAny(path, p.exclude) {
		return false
	}
	if matchAny(path, p.syspaths) {
		return false
	}
	return true
}

func matchAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func normalize(path string) string {
	// "File names" reported by a host runtime are not always filesystem
	// paths (e.g. "<string>", "<stdin>"); those are kept verbatim.
	if strings.HasPrefix(path, "<") {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(filepath.Clean(path))
}

func normalizeAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, normalize(p))
	}
	return out
}
