package report

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lineprof/lineprof/pkg/profile"
)

// CallgrindWriter emits a textual Callgrind-format profile. Costs carry two
// events per position: hit count and nanoseconds. For every callable block
// the sum of self line costs plus outbound edge costs equals the block's
// inclusive time; readers rely on that identity.
type CallgrindWriter struct {
	*CallgrindOptions
}

type CallgrindOptions struct {
	creator  string
	relative bool
}

type CallgrindOption func(*CallgrindWriter)

func WithCallgrindCreator(creator string) CallgrindOption {
	return func(w *CallgrindWriter) {
		w.creator = creator
	}
}

// WithCallgrindRelativePaths strips absolute path components, so readers
// resolve sources inside an archive instead of system-wide files.
func WithCallgrindRelativePaths(relative bool) CallgrindOption {
	return func(w *CallgrindWriter) {
		w.relative = relative
	}
}

func NewCallgrindWriter(opts ...CallgrindOption) *CallgrindWriter {
	w := &CallgrindWriter{
		CallgrindOptions: &CallgrindOptions{},
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

func (c *CallgrindWriter) Write(out io.Writer, g *profile.GlobalProfile) error {
	w := bufio.NewWriter(out)
	fmt.Fprintln(w, "# callgrind format")
	fmt.Fprintln(w, "version: 1")
	fmt.Fprintf(w, "creator: %s\n", c.creator)
	if g.Cmdline != "" {
		fmt.Fprintf(w, "cmd: %s\n", g.Cmdline)
	}
	fmt.Fprintln(w, "positions: line")
	fmt.Fprintln(w, "events: Hits Time")
	fmt.Fprintf(w, "summary: %d\n", g.TotalNanos)
	fmt.Fprintln(w)

	for _, name := range g.NamesSorted() {
		c.writeFile(w, g.Files[name])
	}

	return w.Flush()
}

func (c *CallgrindWriter) writeFile(w *bufio.Writer, f *profile.FileStats) {
	printable := c.path(f.Name)
	fmt.Fprintf(w, "fl=%s\n", printable)

	var current profile.CallableID
	haveFn := false
	for _, lineno := range statLines(f) {
		stat := f.Lines[lineno]
		calls := f.Calls[lineno]
		var fn profile.CallableID
		switch {
		case stat != nil:
			fn = stat.Fn
		case len(calls) > 0:
			fn = calls[0].CallerFn
		}
		if !haveFn || fn != current {
			current = fn
			haveFn = true
			fmt.Fprintf(w, "fn=%s\n", c.callableName(fn, printable))
		}
		var hits, nanos uint64
		if stat != nil {
			hits, nanos = stat.Hits, stat.Nanos
		}
		fmt.Fprintf(w, "%d %d %d\n", lineno, hits, nanos)
		for _, call := range callsByHitsAsc(calls) {
			calleeFile := c.path(call.Callee.File)
			fmt.Fprintf(w, "cfl=%s\n", calleeFile)
			fmt.Fprintf(w, "cfn=%s\n", c.callableName(call.Callee, calleeFile))
			fmt.Fprintf(w, "calls=%d %d\n", call.Hits, call.Callee.FirstLine)
			fmt.Fprintf(w, "%d %d %d\n", lineno, call.Hits, call.Nanos)
		}
	}
	fmt.Fprintln(w)
}

// statLines lists the line numbers carrying hits or calls, ascending.
// Lines without either are omitted from the output.
func statLines(f *profile.FileStats) []int {
	seen := make(map[int]struct{}, len(f.Lines)+len(f.Calls))
	for n := range f.Lines {
		seen[n] = struct{}{}
	}
	for n := range f.Calls {
		seen[n] = struct{}{}
	}
	lines := make([]int, 0, len(seen))
	for n := range seen {
		lines = append(lines, n)
	}
	sort.Ints(lines)
	return lines
}

func callsByHitsAsc(calls []*profile.CallStat) []*profile.CallStat {
	out := make([]*profile.CallStat, len(calls))
	copy(out, calls)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Hits != out[j].Hits {
			return out[i].Hits < out[j].Hits
		}
		if out[i].Nanos != out[j].Nanos {
			return out[i].Nanos < out[j].Nanos
		}
		return calleeName(out[i]) < calleeName(out[j])
	})
	return out
}

// callableName renders a function block name: "<name>:<firstline>" for
// named callables, the printable file name for a module toplevel.
func (c *CallgrindWriter) callableName(fn profile.CallableID, printableFile string) string {
	if fn.Name == "" || fn.Name == "<module>" {
		return printableFile
	}
	return fmt.Sprintf("%s:%d", fn.Name, fn.FirstLine)
}

func (c *CallgrindWriter) path(name string) string {
	if c.relative {
		name = relPath(name)
	}
	return filepath.ToSlash(name)
}

// relPath strips absolute components so paths resolve inside an archive.
func relPath(name string) string {
	name = filepath.Clean(name)
	name = strings.TrimPrefix(name, filepath.VolumeName(name))
	return strings.TrimLeft(name, "/\\")
}
