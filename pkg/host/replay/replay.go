// Package replay implements host.Runtime over recorded interpreter event
// streams. A stream is a JSON-lines file (or an in-memory Program) holding
// one event per line; threads replay concurrently, preserving per-thread
// order, which is the only ordering the profiler core relies on.
package replay

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lineprof/lineprof/pkg/host"
)

// Event is one recorded interpreter step.
//
// Kinds: "call", "line", "return", "exception" map to host.Hook events;
// "sleep" advances wall-clock time by SleepNs to model target work;
// "exit" sets the program's exit code.
type Event struct {
	Tid     int64  `json:"tid"`
	Kind    string `json:"ev"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Fn      string `json:"fn,omitempty"`
	FnLine  int    `json:"fn_line,omitempty"`
	Native  bool   `json:"native,omitempty"`
	SleepNs int64  `json:"sleep_ns,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// Program is an in-memory event stream.
type Program []Event

// Runtime replays event streams to an installed hook while maintaining the
// live frame chains the sampler walks.
type Runtime struct {
	*RuntimeOptions

	// mu is the interpreter barrier: it guards the frame table against
	// concurrent stack snapshots.
	mu     sync.Mutex
	frames map[host.ThreadID]*frame

	hook      host.Hook
	propagate bool
}

func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		RuntimeOptions: &RuntimeOptions{
			mainTid: 1,
		},
		frames: make(map[host.ThreadID]*frame),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Runtime) SetTrace(h host.Hook, propagate bool) error {
	if h == nil {
		return errors.New("hook is nil")
	}
	r.hook = h
	r.propagate = propagate

	return nil
}

func (r *Runtime) ClearTrace() {
	r.hook = nil
}

// Frames returns deep copies of every live frame chain, safe to walk while
// replay threads keep stepping.
func (r *Runtime) Frames() map[host.ThreadID]host.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[host.ThreadID]host.Frame, len(r.frames))
	for tid, top := range r.frames {
		if top != nil {
			out[tid] = top.freeze()
		}
	}
	return out
}

func (r *Runtime) CurrentThread() host.ThreadID {
	return r.mainTid
}

func (r *Runtime) SysPaths() []string {
	return r.syspaths
}

// RunPath loads a JSONL event stream and replays it.
func (r *Runtime) RunPath(path string, argv []string) (int, error) {
	events, err := LoadEvents(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to load event stream %s", path)
	}

	return r.Run(events)
}

// RunModule resolves a module name through the configured module table,
// then the search paths, and replays it.
func (r *Runtime) RunModule(name string, argv []string) (int, error) {
	if path, ok := r.modules[name]; ok {
		return r.RunPath(path, argv)
	}
	for _, dir := range r.searchPaths {
		path := filepath.Join(dir, name+".jsonl")
		if _, err := os.Stat(path); err == nil {
			return r.RunPath(path, argv)
		}
	}

	return 0, errors.Errorf("module not found: %s", name)
}

// Run replays an in-memory program. Each thread's events replay on their
// own goroutine in recorded order; cross-thread interleaving is arbitrary.
func (r *Runtime) Run(events Program) (int, error) {
	perTid := make(map[host.ThreadID]Program)
	var order []host.ThreadID
	exitCode := 0
	for _, ev := range events {
		if ev.Kind == "exit" {
			exitCode = ev.Code
			continue
		}
		tid := host.ThreadID(ev.Tid)
		if _, ok := perTid[tid]; !ok {
			order = append(order, tid)
		}
		perTid[tid] = append(perTid[tid], ev)
	}

	var g errgroup.Group
	for _, tid := range order {
		tid := tid
		g.Go(func() error {
			r.replayThread(tid, perTid[tid])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return exitCode, err
	}

	return exitCode, nil
}

func (r *Runtime) replayThread(tid host.ThreadID, events Program) {
	for _, ev := range events {
		r.step(tid, ev)
	}
	r.mu.Lock()
	delete(r.frames, tid)
	r.mu.Unlock()
}

func (r *Runtime) step(tid host.ThreadID, ev Event) {
	switch ev.Kind {
	case "sleep":
		time.Sleep(time.Duration(ev.SleepNs))
	case "call":
		cal := host.Callable{
			File:      ev.File,
			FirstLine: ev.FnLine,
			Name:      ev.Fn,
			Native:    ev.Native,
		}
		if cal.Native {
			// Native frames are invisible to stack walks; the event
			// still reaches the hook, which ignores it.
			if h := r.hookFor(tid); h != nil {
				h.OnCall(tid, &frame{file: cal.File, line: cal.FirstLine, cal: cal})
			}
			return
		}
		fr := r.push(tid, cal)
		if h := r.hookFor(tid); h != nil {
			h.OnCall(tid, fr)
		}
	case "line":
		fr := r.advance(tid, ev)
		if h := r.hookFor(tid); h != nil {
			h.OnLine(tid, fr)
		}
	case "return", "exception":
		if ev.Native {
			if h := r.hookFor(tid); h != nil {
				cal := host.Callable{File: ev.File, FirstLine: ev.FnLine, Name: ev.Fn, Native: true}
				h.OnReturn(tid, &frame{file: cal.File, line: cal.FirstLine, cal: cal})
			}
			return
		}
		fr := r.top(tid)
		if fr == nil {
			return
		}
		if h := r.hookFor(tid); h != nil {
			if ev.Kind == "exception" {
				h.OnException(tid, fr)
			} else {
				h.OnReturn(tid, fr)
			}
		}
		r.pop(tid)
	}
}

func (r *Runtime) hookFor(tid host.ThreadID) host.Hook {
	h := r.hook
	if h == nil {
		return nil
	}
	if !r.propagate && tid != r.mainTid {
		return nil
	}
	return h
}

func (r *Runtime) push(tid host.ThreadID, cal host.Callable) *frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	fr := &frame{
		file:   cal.File,
		line:   cal.FirstLine,
		cal:    cal,
		parent: r.frames[tid],
	}
	r.frames[tid] = fr
	return fr
}

func (r *Runtime) advance(tid host.ThreadID, ev Event) *frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	fr := r.frames[tid]
	if fr == nil {
		// Line event with no enclosing call: the thread was running
		// before the stream began recording. Seed a toplevel frame.
		fr = &frame{
			cal: host.Callable{File: ev.File, FirstLine: 1, Name: "<module>"},
		}
		r.frames[tid] = fr
	}
	fr.file = ev.File
	fr.line = ev.Line
	return fr
}

func (r *Runtime) top(tid host.ThreadID) *frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[tid]
}

func (r *Runtime) pop(tid host.ThreadID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fr := r.frames[tid]; fr != nil {
		r.frames[tid] = fr.parent
	}
}

// LoadEvents reads a JSONL event stream. Blank lines and lines starting
// with '#' are skipped.
func LoadEvents(path string) (Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events Program
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		raw := scanner.Bytes()
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, errors.Wrapf(err, "invalid event at line %d", lineno)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
