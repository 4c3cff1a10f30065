package profile_test

import (
	"github.com/lineprof/lineprof/pkg/host"
	"github.com/lineprof/lineprof/pkg/profile"
)

// fakeClock is a manually advanced monotonic clock.
type fakeClock struct {
	t uint64
}

func (c *fakeClock) now() uint64 {
	return c.t
}

func (c *fakeClock) advance(d uint64) {
	c.t += d
}

// stackFrame implements host.Frame for driving the tracer directly.
type stackFrame struct {
	file   string
	line   int
	cal    host.Callable
	parent *stackFrame
}

func (f *stackFrame) File() string {
	return f.file
}

func (f *stackFrame) Line() int {
	return f.line
}

func (f *stackFrame) Callable() host.Callable {
	return f.cal
}

func (f *stackFrame) Caller() host.Frame {
	if f.parent == nil {
		return nil
	}
	return f.parent
}

// emitter scripts interpreter events against a tracer, advancing the clock
// by one tick per event.
type emitter struct {
	tr  *profile.Tracer
	clk *fakeClock
	tid host.ThreadID
	top *stackFrame

	calls, returns int
}

func newEmitter(tr *profile.Tracer, clk *fakeClock, tid host.ThreadID) *emitter {
	return &emitter{tr: tr, clk: clk, tid: tid}
}

func (e *emitter) call(cal host.Callable) {
	e.top = &stackFrame{file: cal.File, line: cal.FirstLine, cal: cal, parent: e.top}
	e.clk.advance(1)
	e.tr.OnCall(e.tid, e.top)
	e.calls++
}

func (e *emitter) line(n int) {
	e.top.line = n
	e.clk.advance(1)
	e.tr.OnLine(e.tid, e.top)
}

func (e *emitter) ret() {
	e.clk.advance(1)
	e.tr.OnReturn(e.tid, e.top)
	e.top = e.top.parent
	e.returns++
}

var (
	fibFile   = "demo/fibo.py"
	fibCal    = host.Callable{File: fibFile, FirstLine: 1, Name: "fib"}
	fibModule = host.Callable{File: fibFile, FirstLine: 1, Name: "<module>"}
)

// fib emits the event stream of the recursive fib(n) reference program:
//
//	1  def fib(n):
//	2      if n < 3:
//	3          return 1
//	4      return fib(n-1) + fib(n-2)
//	5
//	6  print(fib(10))
func (e *emitter) fib(n int) {
	e.call(fibCal)
	e.line(2)
	if n < 3 {
		e.line(3)
		e.ret()
		return
	}
	e.line(4)
	e.fib(n - 1)
	e.fib(n - 2)
	e.ret()
}

func (e *emitter) fibProgram(n int) {
	e.call(fibModule)
	e.line(6)
	e.fib(n)
	e.ret()
}
