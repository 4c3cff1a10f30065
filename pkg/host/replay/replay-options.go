package replay

import (
	"github.com/lineprof/lineprof/pkg/host"
)

type RuntimeOptions struct {
	mainTid     host.ThreadID
	modules     map[string]string
	searchPaths []string
	syspaths    []string
}

type RuntimeOption func(*Runtime)

// WithMainThread sets the thread identity reported by CurrentThread.
// Recorded streams use tid 1 for the main thread by convention.
func WithMainThread(tid host.ThreadID) RuntimeOption {
	return func(r *Runtime) {
		r.mainTid = tid
	}
}

// WithModule maps a module name for RunModule resolution.
func WithModule(name, path string) RuntimeOption {
	return func(r *Runtime) {
		if r.modules == nil {
			r.modules = make(map[string]string)
		}
		r.modules[name] = path
	}
}

// WithSearchPaths sets directories searched for <module>.jsonl streams.
func WithSearchPaths(dirs ...string) RuntimeOption {
	return func(r *Runtime) {
		r.searchPaths = append(r.searchPaths, dirs...)
	}
}

// WithSysPaths sets the directories reported as interpreter library paths.
func WithSysPaths(dirs ...string) RuntimeOption {
	return func(r *Runtime) {
		r.syspaths = append(r.syspaths, dirs...)
	}
}
