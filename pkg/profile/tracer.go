package profile

import (
	"github.com/lineprof/lineprof/pkg/host"
)

// Tracer is the deterministic event consumer. It implements host.Hook: the
// runtime calls it for every executed line and every call boundary, so the
// handlers must stay O(1), allocation-free past store growth, and lock-free.
type Tracer struct {
	*TracerOptions
	prof *Profiler
}

func NewTracer(opts ...TracerOption) (*Tracer, error) {
	t := &Tracer{
		TracerOptions: &TracerOptions{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.prof == nil {
		return nil, ErrProfilerNil
	}

	return t, nil
}

// OnLine closes the interval opened by the previous event on this thread,
// credits it to the frame's current site, and re-opens at the new line.
func (t *Tracer) OnLine(tid host.ThreadID, fr host.Frame) {
	p := t.prof
	if !p.enabled.Load() {
		return
	}
	p.events.Add(1)
	now := p.clock()
	st := p.store(tid)
	top := st.top()
	if top == nil {
		// Thread was already inside a frame when tracing began: seed a
		// root frame with no site, so the leading interval is dropped.
		top = st.pushRoot(fr, now)
	}
	if top.hasSite {
		delta, ok := elapsed(now, top.lastTick, top.discount)
		if !ok {
			st.clampedTicks++
			p.warnViolation()
		}
		if top.tracked {
			st.RecordLine(top.site, top.fn, delta)
		}
	}
	top.discount = 0
	top.site = Site{File: fr.File(), Line: fr.Line()}
	top.hasSite = true
	// Both interval endpoints use the same event timestamp, so a
	// callable's self cost plus its outbound edge costs equals its
	// inclusive time exactly; handler cost counts as line time.
	top.lastTick = now
	if t.verbose {
		t.logEvent("line", tid, top.site, len(st.stack), 0)
	}
}

// OnCall credits the caller's current line with the time elapsed so far,
// pushes a frame for the callee, and counts the edge hit. The caller's line
// is suspended rather than finished, so its hit is counted once, when the
// next LINE or RETURN event closes it. The edge cost is posted on return.
func (t *Tracer) OnCall(tid host.ThreadID, fr host.Frame) {
	p := t.prof
	if !p.enabled.Load() {
		return
	}
	cal := fr.Callable()
	if cal.Native {
		// Opaque callee: no frame, its time stays on the invoking line.
		return
	}
	p.events.Add(1)
	now := p.clock()
	st := p.store(tid)

	var callerSite Site
	var hasCaller, callerTracked bool
	var callerFn CallableID
	if top := st.top(); top != nil {
		if top.hasSite {
			delta, ok := elapsed(now, top.lastTick, top.discount)
			if !ok {
				st.clampedTicks++
				p.warnViolation()
			}
			if top.tracked {
				entry, ok := st.lines[top.site]
				if !ok {
					entry = &LineStat{Fn: top.fn}
					st.lines[top.site] = entry
				}
				entry.Nanos += delta
			}
			top.discount = 0
			callerSite = top.site
			callerFn = top.fn
			hasCaller = true
			callerTracked = top.tracked
		}
		top.lastTick = now
	}

	calID := callableID(cal)
	entered := now
	st.stack = append(st.stack, frameRec{
		fn:            calID,
		site:          calID.FirstSite(),
		hasSite:       true,
		entered:       entered,
		lastTick:      entered,
		caller:        callerSite,
		hasCaller:     hasCaller,
		tracked:       st.tracked(cal.File),
		callerTracked: callerTracked,
	})
	if hasCaller && callerTracked {
		st.RecordEdgeHit(Edge{Caller: callerSite, Callee: calID}, callerFn)
	}
	if t.verbose {
		t.logEvent("call", tid, calID.FirstSite(), len(st.stack), 0)
	}
}

// OnReturn credits the final interval to the callee's last line, pops the
// frame, posts the inclusive duration on the caller edge, and discounts it
// from the caller's next interval.
func (t *Tracer) OnReturn(tid host.ThreadID, fr host.Frame) {
	t.leave(tid, fr, "return")
}

// OnException is a return through stack unwinding; cost semantics are
// identical.
func (t *Tracer) OnException(tid host.ThreadID, fr host.Frame) {
	t.leave(tid, fr, "exception")
}

func (t *Tracer) leave(tid host.ThreadID, fr host.Frame, kind string) {
	p := t.prof
	if !p.enabled.Load() {
		return
	}
	if fr.Callable().Native {
		// No frame was pushed for this callee; see OnCall.
		return
	}
	p.events.Add(1)
	now := p.clock()
	st := p.store(tid)
	top := st.top()
	if top == nil {
		st.underflows++
		p.warnViolation()
		return
	}
	if top.hasSite {
		delta, ok := elapsed(now, top.lastTick, top.discount)
		if !ok {
			st.clampedTicks++
			p.warnViolation()
		}
		if top.tracked {
			st.RecordLine(top.site, top.fn, delta)
		}
	}
	left := *top
	st.stack = st.stack[:len(st.stack)-1]

	var inclusive uint64
	if now >= left.entered {
		inclusive = now - left.entered
	} else {
		st.clampedTicks++
	}
	if parent := st.top(); parent != nil {
		parent.discount += inclusive
		if left.hasCaller && left.callerTracked {
			st.AddEdgeCost(Edge{Caller: left.caller, Callee: left.fn}, inclusive)
		}
	}
	if t.verbose {
		t.logEvent(kind, tid, left.site, len(st.stack)+1, inclusive)
	}
}

func (t *Tracer) logEvent(kind string, tid host.ThreadID, site Site, depth int, extra uint64) {
	if t.logger == nil {
		return
	}
	t.logger.Debug().
		Str("event", kind).
		Int64("tid", int64(tid)).
		Str("site", site.String()).
		Int("depth", depth).
		Uint64("ns", extra).
		Msg("trace event")
}
