package profile_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lineprof/lineprof/pkg/host"
	"github.com/lineprof/lineprof/pkg/profile"
)

func newTestProfiler(t *testing.T, clk *fakeClock, opts ...profile.ProfilerOption) (*profile.Profiler, *profile.Tracer) {
	t.Helper()
	opts = append([]profile.ProfilerOption{profile.WithClock(clk.now)}, opts...)
	prof := profile.NewProfiler(opts...)
	tracer, err := profile.NewTracer(profile.WithTracerProfiler(prof))
	require.NoError(t, err)
	require.NoError(t, prof.Enable())

	return prof, tracer
}

func TestNewTracerRequiresProfiler(t *testing.T) {
	_, err := profile.NewTracer()
	require.ErrorIs(t, err, profile.ErrProfilerNil)
}

func TestFibonacciHitCounts(t *testing.T) {
	clk := &fakeClock{}
	prof, tracer := newTestProfiler(t, clk)

	e := newEmitter(tracer, clk, 1)
	e.fibProgram(10)

	require.NoError(t, prof.Disable())
	stats := prof.Stats()

	f := stats.Files[fibFile]
	require.NotNil(t, f)

	// fib is invoked 2*F(10)-1 = 109 times; 55 leaves, 54 recursive.
	require.Equal(t, uint64(109), f.Lines[2].Hits, "if n < 3")
	require.Equal(t, uint64(55), f.Lines[3].Hits, "return 1")
	require.Equal(t, uint64(54), f.Lines[4].Hits, "recursive return")
	require.Equal(t, 109+1, e.calls, "fib invocations plus module toplevel")
	require.Equal(t, e.calls, e.returns, "balanced stack")
	require.Zero(t, stats.Underflows)
	require.Zero(t, stats.ClampedTicks)
}

func TestFibonacciEdgeHits(t *testing.T) {
	clk := &fakeClock{}
	prof, tracer := newTestProfiler(t, clk)

	newEmitter(tracer, clk, 1).fibProgram(10)

	require.NoError(t, prof.Disable())
	f := prof.Stats().Files[fibFile]
	require.NotNil(t, f)

	require.Len(t, f.Calls[6], 1)
	require.Equal(t, uint64(1), f.Calls[6][0].Hits, "toplevel call")
	require.Len(t, f.Calls[4], 1)
	require.Equal(t, uint64(108), f.Calls[4][0].Hits, "recursive calls")
	require.Equal(t, "fib", f.Calls[4][0].Callee.Name)
}

// The callee's self time plus its outbound edge costs must equal its
// inclusive time; for fib, total self time equals the root call's cost.
func TestEdgeCostIdentity(t *testing.T) {
	clk := &fakeClock{}
	prof, tracer := newTestProfiler(t, clk)

	newEmitter(tracer, clk, 1).fibProgram(10)

	require.NoError(t, prof.Disable())
	f := prof.Stats().Files[fibFile]
	require.NotNil(t, f)

	// Line 1 holds every fib activation's prologue interval (call to first
	// line event), plus the module's own one-tick prologue, since the
	// module's first line is line 1 as well.
	self := f.Lines[1].Nanos - 1 + f.Lines[2].Nanos + f.Lines[3].Nanos + f.Lines[4].Nanos
	outbound := f.Calls[4][0].Nanos
	inbound := f.Calls[4][0].Nanos + f.Calls[6][0].Nanos
	require.Equal(t, inbound, self+outbound)
}

// The discount mechanism must keep a child's time out of the caller's own
// line cost.
func TestCallerLineExcludesCalleeTime(t *testing.T) {
	clk := &fakeClock{}
	prof, tracer := newTestProfiler(t, clk)

	outer := host.Callable{File: "demo/slow.py", FirstLine: 1, Name: "outer"}
	inner := host.Callable{File: "demo/slow.py", FirstLine: 10, Name: "inner"}

	e := newEmitter(tracer, clk, 1)
	e.call(outer)
	e.line(2)
	e.call(inner)
	e.line(11)
	clk.advance(1_000_000) // slow body
	e.ret()
	e.line(3)
	e.ret()

	require.NoError(t, prof.Disable())
	f := prof.Stats().Files["demo/slow.py"]
	require.NotNil(t, f)

	// Line 2 made the call: its own cost is one tick before the call and
	// one after the return, never the callee's million.
	require.Equal(t, uint64(2), f.Lines[2].Nanos)
	// The callee's body holds the slow million-plus ticks.
	require.Greater(t, f.Lines[11].Nanos, uint64(1_000_000))
	// The call edge carries the callee's inclusive time.
	require.Equal(t, f.Lines[10].Nanos+f.Lines[11].Nanos, f.Calls[2][0].Nanos)
}

func TestNativeCallablesAreOpaque(t *testing.T) {
	clk := &fakeClock{}
	prof, tracer := newTestProfiler(t, clk)

	mod := host.Callable{File: "demo/io.py", FirstLine: 1, Name: "<module>"}
	nativeWrite := host.Callable{File: "<builtin>", FirstLine: 0, Name: "write", Native: true}

	e := newEmitter(tracer, clk, 1)
	e.call(mod)
	e.line(1)
	// Native call events are delivered but must be ignored: time stays on
	// line 1.
	nat := &stackFrame{file: nativeWrite.File, cal: nativeWrite, parent: e.top}
	tracer.OnCall(1, nat)
	clk.advance(500)
	tracer.OnReturn(1, nat)
	e.line(2)
	e.ret()

	require.NoError(t, prof.Disable())
	stats := prof.Stats()
	f := stats.Files["demo/io.py"]
	require.NotNil(t, f)
	require.Equal(t, uint64(502), f.Lines[1].Nanos, "native time accrues to invoking line")
	require.Empty(t, f.Calls[1], "no edge for native callees")
	require.NotContains(t, stats.Files, "<builtin>")
	require.Zero(t, stats.Underflows)
}

func TestUntrackedFramesKeepStackBalanced(t *testing.T) {
	clk := &fakeClock{}
	prof, tracer := newTestProfiler(t, clk, profile.WithTrackedFunc(func(path string) bool {
		return path != "/usr/lib/python/json.py"
	}))

	mod := host.Callable{File: "demo/app.py", FirstLine: 1, Name: "<module>"}
	dumps := host.Callable{File: "/usr/lib/python/json.py", FirstLine: 100, Name: "dumps"}

	e := newEmitter(tracer, clk, 1)
	e.call(mod)
	e.line(1)
	e.call(dumps)
	e.line(101)
	clk.advance(100)
	e.ret()
	e.line(2)
	e.ret()

	require.NoError(t, prof.Disable())
	stats := prof.Stats()
	require.NotContains(t, stats.Files, "/usr/lib/python/json.py")
	f := stats.Files["demo/app.py"]
	require.NotNil(t, f)
	// The caller-side edge survives with the callee's inclusive cost.
	require.Len(t, f.Calls[1], 1)
	require.Equal(t, uint64(1), f.Calls[1][0].Hits)
	require.Greater(t, f.Calls[1][0].Nanos, uint64(100))
	require.Zero(t, stats.Underflows)
}

func TestReturnOnEmptyStackCountsUnderflow(t *testing.T) {
	clk := &fakeClock{}
	prof, tracer := newTestProfiler(t, clk)

	fr := &stackFrame{file: "demo/x.py", line: 1, cal: host.Callable{File: "demo/x.py", FirstLine: 1, Name: "f"}}
	tracer.OnReturn(1, fr)

	require.NoError(t, prof.Disable())
	require.Equal(t, uint64(1), prof.Stats().Underflows)
}

func TestEventsAfterDisableAreIgnored(t *testing.T) {
	clk := &fakeClock{}
	prof, tracer := newTestProfiler(t, clk)

	e := newEmitter(tracer, clk, 1)
	e.call(fibModule)
	e.line(6)
	e.ret()
	require.NoError(t, prof.Disable())

	before := prof.EventCount()
	e.call(fibModule)
	e.line(6)
	e.ret()
	require.Equal(t, before, prof.EventCount())
}

func TestExceptionUnwindsLikeReturn(t *testing.T) {
	clk := &fakeClock{}
	prof, tracer := newTestProfiler(t, clk)

	mod := host.Callable{File: "demo/exc.py", FirstLine: 1, Name: "<module>"}
	boom := host.Callable{File: "demo/exc.py", FirstLine: 10, Name: "boom"}

	e := newEmitter(tracer, clk, 1)
	e.call(mod)
	e.line(1)
	e.call(boom)
	e.line(11)
	clk.advance(10)
	clk.advance(1)
	tracer.OnException(1, e.top)
	e.top = e.top.parent
	e.line(2)
	e.ret()

	require.NoError(t, prof.Disable())
	stats := prof.Stats()
	f := stats.Files["demo/exc.py"]
	require.NotNil(t, f)
	require.Equal(t, uint64(1), f.Calls[1][0].Hits)
	require.Equal(t, f.Lines[10].Nanos+f.Lines[11].Nanos, f.Calls[1][0].Nanos)
	require.Zero(t, stats.Underflows)
}
