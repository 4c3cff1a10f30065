// Package source retrieves and caches program source text for report
// rendering. Missing files are tolerated: a missing line renders empty and
// profiling data is still emitted.
package source

import (
	"os"
	"strings"
	"sync"
)

// Provider caches source files by path. Safe for concurrent use; rendering
// may consult it from multiple writers.
type Provider struct {
	*ProviderOptions

	mu    sync.Mutex
	cache map[string][]string
}

type ProviderOptions struct {
	// synthetic supplies content for paths that are not readable from
	// disk, e.g. code stored in a database. Returns false when it has
	// nothing for the path.
	synthetic func(path string) ([]byte, bool)
}

type ProviderOption func(*Provider)

// WithSyntheticSource installs a hook supplying content for paths not
// present on disk.
func WithSyntheticSource(f func(path string) ([]byte, bool)) ProviderOption {
	return func(p *Provider) {
		p.synthetic = f
	}
}

func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		ProviderOptions: &ProviderOptions{},
		cache:           make(map[string][]string),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Lines returns the file's source, one element per line: element i holds
// line i+1 (Line takes a 1-based number). Returns nil for unreadable files.
func (p *Provider) Lines(path string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(path)
}

// Line returns the text of the given 1-based line, without trailing
// newline. Empty for unreadable files or out-of-range lines.
func (p *Provider) Line(path string, lineno int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	lines := p.load(path)
	if lineno < 1 || lineno > len(lines) {
		return ""
	}
	return lines[lineno-1]
}

// Exists reports whether any source is available for path.
func (p *Provider) Exists(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(path) != nil
}

func (p *Provider) load(path string) []string {
	if lines, ok := p.cache[path]; ok {
		return lines
	}
	data, err := os.ReadFile(path)
	if err != nil && p.synthetic != nil {
		if synth, ok := p.synthetic(path); ok {
			data, err = synth, nil
		}
	}
	var lines []string
	if err == nil {
		lines = splitLines(string(data))
	}
	p.cache[path] = lines
	return lines
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
