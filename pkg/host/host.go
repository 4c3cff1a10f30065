// Package host defines the boundary between the profiler core and the
// interpreter runtime it observes. The core never executes target code
// itself: it consumes line/call/return events through Hook and inspects
// live stacks through Runtime.Frames.
package host

// ThreadID identifies an interpreter thread. Values are opaque to the
// profiler and only used as map keys.
type ThreadID int64

// Callable identifies a unit of interpreted code: a function, method, or a
// module toplevel. FirstLine is the 1-based line of its definition. Native
// marks callables the interpreter cannot trace line by line; the profiler
// ignores their call events and leaves their time on the invoking line.
type Callable struct {
	File      string
	FirstLine int
	Name      string
	Native    bool
}

// Frame is a live activation record. Implementations must keep File, Line,
// Callable and Caller consistent for the duration of a Hook callback, and,
// for Runtime.Frames snapshots, for as long as the snapshot is walked.
type Frame interface {
	// File is the source path of the code executing in this frame.
	File() string
	// Line is the 1-based line currently executing.
	Line() int
	// Callable identifies the code object this frame executes.
	Callable() Callable
	// Caller is the parent activation, nil at the bottom of the stack.
	Caller() Frame
}

// Hook receives interpreter events. Calls for one thread arrive in strict
// program order; calls for distinct threads may arrive concurrently.
//
// Runtimes that re-enter a suspended frame (generators, coroutines) must
// emit one OnCall per resumption; edge hit counts follow that convention.
type Hook interface {
	// OnLine fires before a source line executes in fr.
	OnLine(tid ThreadID, fr Frame)
	// OnCall fires when control enters a callable; fr is the new frame.
	OnCall(tid ThreadID, fr Frame)
	// OnReturn fires when a callable returns normally.
	OnReturn(tid ThreadID, fr Frame)
	// OnException fires when a callable is left through an exception.
	OnException(tid ThreadID, fr Frame)
}

// Runtime is the surface the profiler needs from an embedding interpreter.
type Runtime interface {
	// SetTrace installs the hook. With propagate set, threads spawned
	// after installation inherit it; otherwise only the current thread
	// is traced.
	SetTrace(h Hook, propagate bool) error
	// ClearTrace detaches the hook. Events already past the hook entry
	// complete normally.
	ClearTrace()
	// Frames returns a snapshot of the top frame of every live thread.
	// The runtime must guarantee the returned chains are safe to walk
	// until the next interpreter step of the owning thread (e.g. by
	// holding its global lock while the caller walks them).
	Frames() map[ThreadID]Frame
	// CurrentThread returns the identity of the calling thread.
	CurrentThread() ThreadID
	// SysPaths lists the interpreter library directories, used by the
	// exclude-syspath filter rule.
	SysPaths() []string
	// RunPath loads and executes a target program. The returned int is
	// the program's exit code, valid also when err is nil.
	RunPath(path string, argv []string) (int, error)
	// RunModule resolves a named module and executes it.
	RunModule(name string, argv []string) (int, error)
}
