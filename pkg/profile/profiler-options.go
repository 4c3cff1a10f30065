package profile

import (
	log "github.com/rs/zerolog"
)

type ProfilerOptions struct {
	logger      *log.Logger
	isTracked   func(path string) bool
	clock       func() uint64
	cmdline     string
	statistical bool
}

type ProfilerOption func(*Profiler)

func WithLogger(logger *log.Logger) ProfilerOption {
	return func(p *Profiler) {
		p.logger = logger
	}
}

// WithTrackedFunc installs the filter policy consulted before any store
// write and again at aggregation.
func WithTrackedFunc(f func(path string) bool) ProfilerOption {
	return func(p *Profiler) {
		p.isTracked = f
	}
}

// WithClock overrides the monotonic clock. Tests inject deterministic
// clocks through this.
func WithClock(clock func() uint64) ProfilerOption {
	return func(p *Profiler) {
		p.clock = clock
	}
}

// WithCmdline records the profiled command line for report headers.
func WithCmdline(cmdline string) ProfilerOption {
	return func(p *Profiler) {
		p.cmdline = cmdline
	}
}

// WithStatistical marks the session as sampler-driven: nanos fields stay
// zero and renderers treat them uniformly.
func WithStatistical(statistical bool) ProfilerOption {
	return func(p *Profiler) {
		p.statistical = statistical
	}
}
