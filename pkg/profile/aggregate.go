package profile

import (
	"sort"
)

// CallStat is one aggregated outgoing call edge, attached to its caller
// line inside a FileStats.
type CallStat struct {
	Callee   CallableID
	CallerFn CallableID
	Hits     uint64
	Nanos    uint64
}

// FileStats holds the merged per-line and per-call statistics of one file.
type FileStats struct {
	Name       string
	Lines      map[int]*LineStat
	Calls      map[int][]*CallStat
	TotalNanos uint64
	TotalHits  uint64
}

// MaxLine returns the highest line number carrying any stat, so renderers
// can walk past EOF for sites recorded beyond the readable source.
func (f *FileStats) MaxLine() int {
	max := 0
	for n := range f.Lines {
		if n > max {
			max = n
		}
	}
	for n := range f.Calls {
		if n > max {
			max = n
		}
	}
	return max
}

// GlobalProfile is the merged, filter-applied view of all thread stores.
type GlobalProfile struct {
	Files       map[string]*FileStats
	TotalNanos  uint64
	Cmdline     string
	Statistical bool
	Threads     int

	// Dropped deltas and stack underflows observed during the session,
	// surfaced in report headers.
	ClampedTicks uint64
	Underflows   uint64
}

// Stats merges all thread stores into a GlobalProfile. The filter policy is
// applied a second time here, so a file may have been traced yet still be
// omitted from reports. Call after Disable; stores are not synchronized
// with live writers.
func (p *Profiler) Stats() *GlobalProfile {
	g := &GlobalProfile{
		Files:       make(map[string]*FileStats),
		TotalNanos:  p.totalNanos,
		Cmdline:     p.cmdline,
		Statistical: p.statistical,
	}
	p.stores.Range(func(_, v any) bool {
		st := v.(*ThreadStore)
		g.Threads++
		g.ClampedTicks += st.clampedTicks
		g.Underflows += st.underflows
		for site, stat := range st.lines {
			if !p.isTracked(site.File) {
				continue
			}
			f := g.file(site.File)
			entry, ok := f.Lines[site.Line]
			if !ok {
				entry = &LineStat{Fn: stat.Fn}
				f.Lines[site.Line] = entry
			}
			entry.Hits += stat.Hits
			entry.Nanos += stat.Nanos
			f.TotalHits += stat.Hits
			f.TotalNanos += stat.Nanos
		}
		for edge, stat := range st.edges {
			if !p.isTracked(edge.Caller.File) {
				continue
			}
			f := g.file(edge.Caller.File)
			entry := f.call(edge.Caller.Line, edge.Callee, stat.CallerFn)
			entry.Hits += stat.Hits
			entry.Nanos += stat.Nanos
		}
		return true
	})

	return g
}

func (g *GlobalProfile) file(name string) *FileStats {
	f, ok := g.Files[name]
	if !ok {
		f = &FileStats{
			Name:  name,
			Lines: make(map[int]*LineStat),
			Calls: make(map[int][]*CallStat),
		}
		g.Files[name] = f
	}
	return f
}

func (f *FileStats) call(line int, callee CallableID, callerFn CallableID) *CallStat {
	for _, c := range f.Calls[line] {
		if c.Callee == callee {
			return c
		}
	}
	c := &CallStat{Callee: callee, CallerFn: callerFn}
	f.Calls[line] = append(f.Calls[line], c)
	return c
}

// SortedFiles orders files by descending total time, then total hit count,
// the order the annotator lists them in.
func (g *GlobalProfile) SortedFiles() []*FileStats {
	files := make([]*FileStats, 0, len(g.Files))
	for _, f := range g.Files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].TotalNanos != files[j].TotalNanos {
			return files[i].TotalNanos > files[j].TotalNanos
		}
		if files[i].TotalHits != files[j].TotalHits {
			return files[i].TotalHits > files[j].TotalHits
		}
		return files[i].Name < files[j].Name
	})
	return files
}

// NamesSorted orders files lexically, the stable order the callgrind
// emitter uses.
func (g *GlobalProfile) NamesSorted() []string {
	names := make([]string, 0, len(g.Files))
	for name := range g.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
