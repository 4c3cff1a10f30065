// Package report renders a GlobalProfile: annotated source listings,
// Callgrind-format profiles, pprof profiles, and source archives.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lineprof/lineprof/pkg/profile"
	"github.com/lineprof/lineprof/pkg/source"
)

var (
	annotateHeader = fmt.Sprintf("%6s|%10s|%13s|%13s|%7s|Source code",
		"Line #", "Hits", "Time", "Time per hit", "%")
	annotateRule = makeRule(annotateHeader)
)

func makeRule(header string) string {
	var b strings.Builder
	for _, c := range header {
		if c == '|' {
			b.WriteByte('+')
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Annotator renders one block per file: a duration header and the source
// annotated line by line, with outgoing calls listed under their line.
type Annotator struct {
	*AnnotatorOptions
}

type AnnotatorOptions struct {
	src *source.Provider
}

type AnnotatorOption func(*Annotator)

func WithAnnotatorSource(src *source.Provider) AnnotatorOption {
	return func(a *Annotator) {
		a.src = src
	}
}

func NewAnnotator(opts ...AnnotatorOption) *Annotator {
	a := &Annotator{
		AnnotatorOptions: &AnnotatorOptions{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.src == nil {
		a.src = source.NewProvider()
	}

	return a
}

// Write renders the whole profile. Rendering is a pure function of the
// profile and the source text: annotating the same profile twice yields
// identical bytes.
func (a *Annotator) Write(out io.Writer, g *profile.GlobalProfile) error {
	w := bufio.NewWriter(out)
	if g.Cmdline != "" {
		fmt.Fprintf(w, "Command line: %s\n", g.Cmdline)
	}
	total := seconds(g.TotalNanos)
	fmt.Fprintf(w, "Total duration: %gs\n", total)
	if dropped := g.ClampedTicks + g.Underflows; dropped > 0 {
		fmt.Fprintf(w, "Dropped deltas: %d\n", dropped)
	}
	if g.TotalNanos == 0 {
		return w.Flush()
	}
	for _, f := range g.SortedFiles() {
		a.writeFile(w, g, f)
	}

	return w.Flush()
}

func (a *Annotator) writeFile(w *bufio.Writer, g *profile.GlobalProfile, f *profile.FileStats) {
	fileTime := seconds(f.TotalNanos)
	fmt.Fprintf(w, "File: %s\n", f.Name)
	fmt.Fprintf(w, "File duration: %gs (%.2f%%)\n", fileTime, percent(fileTime, seconds(g.TotalNanos)))
	fmt.Fprintln(w, annotateHeader)
	fmt.Fprintln(w, annotateRule)

	lines := a.src.Lines(f.Name)
	last := len(lines)
	if m := f.MaxLine(); m > last {
		last = m
	}
	for lineno := 1; lineno <= last; lineno++ {
		text := ""
		if lineno <= len(lines) {
			text = lines[lineno-1]
		}
		var hits, nanos uint64
		if stat, ok := f.Lines[lineno]; ok {
			hits, nanos = stat.Hits, stat.Nanos
		}
		t := seconds(nanos)
		perHit := 0.0
		if hits > 0 {
			perHit = t / float64(hits)
		}
		fmt.Fprintf(w, "%6d|%10d|%13g|%13g|%6.2f%%|%s\n",
			lineno, hits, t, perHit, percent(t, seconds(g.TotalNanos)), text)
		for _, c := range callsByHitsDesc(f.Calls[lineno]) {
			ct := seconds(c.Nanos)
			cPerHit := 0.0
			if c.Hits > 0 {
				cPerHit = ct / float64(c.Hits)
			}
			fmt.Fprintf(w, "(call)|%10d|%13g|%13g|%6.2f%%|# %s:%d %s\n",
				c.Hits, ct, cPerHit, percent(ct, seconds(g.TotalNanos)),
				c.Callee.File, c.Callee.FirstLine, c.Callee.Name)
		}
	}
}

// callsByHitsDesc orders a line's outgoing edges by descending hit count.
func callsByHitsDesc(calls []*profile.CallStat) []*profile.CallStat {
	out := make([]*profile.CallStat, len(calls))
	copy(out, calls)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Hits != out[j].Hits {
			return out[i].Hits > out[j].Hits
		}
		if out[i].Nanos != out[j].Nanos {
			return out[i].Nanos > out[j].Nanos
		}
		return calleeName(out[i]) < calleeName(out[j])
	})
	return out
}

func calleeName(c *profile.CallStat) string {
	return fmt.Sprintf("%s:%d %s", c.Callee.File, c.Callee.FirstLine, c.Callee.Name)
}

func seconds(nanos uint64) float64 {
	return float64(nanos) / 1e9
}

func percent(value, scale float64) float64 {
	if scale == 0 {
		return 0
	}
	return value * 100 / scale
}
