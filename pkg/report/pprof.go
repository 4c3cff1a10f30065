package report

import (
	"io"
	"sort"

	gprofile "github.com/google/pprof/profile"

	"github.com/lineprof/lineprof/pkg/profile"
)

// WritePprof renders the profile in pprof's protobuf format: one sample per
// site valued (hits, nanos), one location per site, one function per
// callable. Call edges are not representable without full stacks and are
// left to the Callgrind output.
func WritePprof(out io.Writer, g *profile.GlobalProfile) error {
	p := &gprofile.Profile{
		SampleType: []*gprofile.ValueType{
			{Type: "hits", Unit: "count"},
			{Type: "time", Unit: "nanoseconds"},
		},
		DurationNanos: int64(g.TotalNanos),
	}

	functions := make(map[profile.CallableID]*gprofile.Function)
	var nextFunc, nextLoc uint64

	for _, name := range g.NamesSorted() {
		f := g.Files[name]
		lines := make([]int, 0, len(f.Lines))
		for n := range f.Lines {
			lines = append(lines, n)
		}
		sort.Ints(lines)
		for _, lineno := range lines {
			stat := f.Lines[lineno]
			fn, ok := functions[stat.Fn]
			if !ok {
				nextFunc++
				fn = &gprofile.Function{
					ID:        nextFunc,
					Name:      functionName(stat.Fn, name),
					Filename:  name,
					StartLine: int64(stat.Fn.FirstLine),
				}
				functions[stat.Fn] = fn
				p.Function = append(p.Function, fn)
			}
			nextLoc++
			loc := &gprofile.Location{
				ID: nextLoc,
				Line: []gprofile.Line{
					{Function: fn, Line: int64(lineno)},
				},
			}
			p.Location = append(p.Location, loc)
			p.Sample = append(p.Sample, &gprofile.Sample{
				Location: []*gprofile.Location{loc},
				Value:    []int64{int64(stat.Hits), int64(stat.Nanos)},
			})
		}
	}

	return p.Write(out)
}

func functionName(fn profile.CallableID, file string) string {
	if fn.Name == "" || fn.Name == "<module>" {
		return file
	}
	return fn.Name
}
