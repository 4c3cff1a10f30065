package profile

import (
	"sync"
	"sync/atomic"

	"github.com/lineprof/lineprof/pkg/host"
)

// Profiler owns the per-thread stores and the profiling session lifecycle.
// Enable and Disable are called from the controlling thread; event handlers
// and the sampler reach stores through the lock-free registry.
type Profiler struct {
	*ProfilerOptions

	stores  sync.Map // host.ThreadID -> *ThreadStore
	enabled atomic.Bool

	startTick  uint64
	totalNanos uint64

	events   atomic.Uint64
	warnOnce sync.Once
}

func NewProfiler(opts ...ProfilerOption) *Profiler {
	p := &Profiler{
		ProfilerOptions: &ProfilerOptions{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.clock == nil {
		p.clock = nowNanos
	}
	if p.isTracked == nil {
		p.isTracked = func(string) bool { return true }
	}

	return p
}

// Enable starts a profiling session. Re-entrant calls are forbidden.
func (p *Profiler) Enable() error {
	if !p.enabled.CompareAndSwap(false, true) {
		return ErrAlreadyEnabled
	}
	p.startTick = p.clock()

	return nil
}

// Disable stops the session, flushes residual call-stack frames, and folds
// the session span into the total duration. Stores may be read safely after
// Disable returns.
func (p *Profiler) Disable() error {
	if !p.enabled.CompareAndSwap(true, false) {
		return ErrNotEnabled
	}
	now := p.clock()
	p.totalNanos += now - p.startTick
	p.stores.Range(func(_, v any) bool {
		v.(*ThreadStore).flush(now)
		return true
	})

	return nil
}

// Enabled reports whether a session is active. Event handlers consult it so
// events arriving after Disable are ignored.
func (p *Profiler) Enabled() bool {
	return p.enabled.Load()
}

// store returns the calling thread's store, creating it on first event.
func (p *Profiler) store(tid host.ThreadID) *ThreadStore {
	if v, ok := p.stores.Load(tid); ok {
		return v.(*ThreadStore)
	}
	v, _ := p.stores.LoadOrStore(tid, newThreadStore(tid, p.isTracked))
	return v.(*ThreadStore)
}

// EventCount returns the number of events consumed so far.
func (p *Profiler) EventCount() uint64 {
	return p.events.Load()
}

// SwapEventCount resets the event counter, returning the previous value.
// Used by the status line to derive an events/s rate.
func (p *Profiler) SwapEventCount() uint64 {
	return p.events.Swap(0)
}

// ThreadCount returns the number of threads observed so far.
func (p *Profiler) ThreadCount() int {
	n := 0
	p.stores.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// warnViolation logs a single warning per session; individual violations
// only bump store counters.
func (p *Profiler) warnViolation() {
	p.warnOnce.Do(func() {
		if p.logger != nil {
			p.logger.Warn().Msg("profiling invariant violated, affected deltas dropped")
		}
	})
}
