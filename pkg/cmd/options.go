package cmd

import (
	"context"

	log "github.com/rs/zerolog"

	"github.com/lineprof/lineprof/pkg/host"
)

type CommonOptions struct {
	Ctx      context.Context
	Logger   log.Logger
	LogLevel string
	Runtime  host.Runtime

	// ExitCode is the profiled program's exit code, propagated by Execute.
	ExitCode int
}

type Option func(o *CommonOptions)

func NewCommonOptions(opts ...Option) *CommonOptions {
	o := new(CommonOptions)
	for _, f := range opts {
		f(o)
	}

	return o
}

func WithContext(ctx context.Context) Option {
	return func(o *CommonOptions) {
		o.Ctx = ctx
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *CommonOptions) {
		o.Logger = logger
	}
}

func WithRuntime(runtime host.Runtime) Option {
	return func(o *CommonOptions) {
		o.Runtime = runtime
	}
}
