package profile

import (
	log "github.com/rs/zerolog"
)

type TracerOptions struct {
	verbose bool
	logger  *log.Logger
}

type TracerOption func(*Tracer)

func WithTracerProfiler(prof *Profiler) TracerOption {
	return func(t *Tracer) {
		t.prof = prof
	}
}

func WithTracerLogger(logger *log.Logger) TracerOption {
	return func(t *Tracer) {
		t.logger = logger
	}
}

// WithTracerVerbose logs every consumed event at debug level. Cryptic and
// costly, for profiler debugging only.
func WithTracerVerbose(verbose bool) TracerOption {
	return func(t *Tracer) {
		t.verbose = verbose
	}
}
