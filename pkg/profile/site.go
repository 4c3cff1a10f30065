package profile

import (
	"fmt"

	"github.com/lineprof/lineprof/pkg/host"
)

// Site is the primary cost key: one executable source line.
type Site struct {
	File string
	Line int
}

func (s Site) String() string {
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// CallableID groups sites into function blocks for the callgrind emitter.
type CallableID struct {
	File      string
	FirstLine int
	Name      string
}

func callableID(c host.Callable) CallableID {
	return CallableID{File: c.File, FirstLine: c.FirstLine, Name: c.Name}
}

// FirstSite is the site a call event lands on.
func (c CallableID) FirstSite() Site {
	return Site{File: c.File, Line: c.FirstLine}
}

// Edge is a directed (caller line, callee) pair.
type Edge struct {
	Caller Site
	Callee CallableID
}

// LineStat accumulates cost for one site. Fn is the callable enclosing the
// line; it is constant for a given site. In statistical mode Nanos stays 0
// and Hits counts samples.
type LineStat struct {
	Fn    CallableID
	Hits  uint64
	Nanos uint64
}

// EdgeStat accumulates cost for one edge. Nanos is the callee's inclusive
// time, already included in the callee's own line cost; Hits counts dynamic
// invocations. CallerFn is the callable enclosing the caller line, kept so
// call-only lines can still be grouped into a function block.
type EdgeStat struct {
	CallerFn CallableID
	Hits     uint64
	Nanos    uint64
}
