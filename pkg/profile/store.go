package profile

import (
	"github.com/lineprof/lineprof/internal/utils"
	"github.com/lineprof/lineprof/pkg/host"
)

// frameRec mirrors one interpreter activation on the profiler side.
type frameRec struct {
	fn      CallableID
	site    Site
	hasSite bool

	entered  uint64
	lastTick uint64
	discount uint64

	caller    Site
	hasCaller bool

	tracked       bool
	callerTracked bool
}

// ThreadStore accumulates line and edge cost for exactly one thread. It is
// written by its owning thread (deterministic mode) or by the sampler
// thread (statistical mode), never by both; no locking on the hot path.
type ThreadStore struct {
	tid   host.ThreadID
	lines map[Site]*LineStat
	edges map[Edge]*EdgeStat
	stack []frameRec

	// trackedCache memoizes the filter decision per file hash so the
	// per-event cost of filtering is one map probe.
	trackedCache map[uint64]bool
	isTracked    func(path string) bool

	// Invariant-violation counters, surfaced in report headers.
	underflows   uint64
	clampedTicks uint64
}

func newThreadStore(tid host.ThreadID, isTracked func(string) bool) *ThreadStore {
	return &ThreadStore{
		tid:          tid,
		lines:        make(map[Site]*LineStat),
		edges:        make(map[Edge]*EdgeStat),
		stack:        make([]frameRec, 0, 64),
		trackedCache: make(map[uint64]bool),
		isTracked:    isTracked,
	}
}

// RecordLine accumulates one hit and delta nanoseconds on site.
func (s *ThreadStore) RecordLine(site Site, fn CallableID, delta uint64) {
	entry, ok := s.lines[site]
	if !ok {
		entry = &LineStat{Fn: fn}
		s.lines[site] = entry
	}
	entry.Hits++
	entry.Nanos += delta
}

// RecordEdgeHit counts one dynamic invocation of edge. callerFn is the
// callable enclosing the caller line; a line belongs to exactly one
// callable, so the value is constant per edge.
func (s *ThreadStore) RecordEdgeHit(e Edge, callerFn CallableID) {
	entry, ok := s.edges[e]
	if !ok {
		entry = &EdgeStat{CallerFn: callerFn}
		s.edges[e] = entry
	}
	entry.Hits++
}

// AddEdgeCost posts the callee's inclusive time on edge without counting a
// hit. Called on return, so mid-run snapshots may show edges with hits and
// no cost yet.
func (s *ThreadStore) AddEdgeCost(e Edge, delta uint64) {
	entry, ok := s.edges[e]
	if !ok {
		entry = &EdgeStat{}
		s.edges[e] = entry
	}
	entry.Nanos += delta
}

func (s *ThreadStore) tracked(path string) bool {
	h := utils.Hash(path)
	t, ok := s.trackedCache[h]
	if !ok {
		t = s.isTracked(path)
		s.trackedCache[h] = t
	}
	return t
}

// pushRoot seeds the stack for a thread first observed mid-frame. The root
// frame carries no site, so no time is credited until its first LINE event.
func (s *ThreadStore) pushRoot(fr host.Frame, now uint64) *frameRec {
	cal := fr.Callable()
	s.stack = append(s.stack, frameRec{
		fn:       callableID(cal),
		entered:  now,
		lastTick: now,
		tracked:  s.tracked(cal.File),
	})
	return &s.stack[len(s.stack)-1]
}

func (s *ThreadStore) top() *frameRec {
	if len(s.stack) == 0 {
		return nil
	}
	return &s.stack[len(s.stack)-1]
}

// flush credits residual frame time at teardown: each unreturned frame's
// open interval goes to the site it last entered.
func (s *ThreadStore) flush(now uint64) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		fr := &s.stack[i]
		if !fr.hasSite || !fr.tracked {
			continue
		}
		delta, ok := elapsed(now, fr.lastTick, fr.discount)
		if !ok {
			s.clampedTicks++
		}
		s.RecordLine(fr.site, fr.fn, delta)
		fr.discount = 0
	}
	s.stack = s.stack[:0]
}

// elapsed computes now-last-discount clamped at zero. ok is false when the
// clamp fired.
func elapsed(now, last, discount uint64) (uint64, bool) {
	if now < last {
		return 0, false
	}
	d := now - last
	if d < discount {
		return 0, false
	}
	return d - discount, true
}
