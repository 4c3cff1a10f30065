package profile

import (
	"time"

	"github.com/lineprof/lineprof/pkg/host"
)

type SamplerOptions struct {
	period  time.Duration
	single  bool
	runtime host.Runtime
}

type SamplerOption func(*Sampler)

func WithSamplerProfiler(prof *Profiler) SamplerOption {
	return func(s *Sampler) {
		s.prof = prof
	}
}

func WithSamplerRuntime(runtime host.Runtime) SamplerOption {
	return func(s *Sampler) {
		s.runtime = runtime
	}
}

func WithSamplerPeriod(period time.Duration) SamplerOption {
	return func(s *Sampler) {
		s.period = period
	}
}

// WithSamplerSingle restricts sampling to the thread that constructed the
// sampler.
func WithSamplerSingle(single bool) SamplerOption {
	return func(s *Sampler) {
		s.single = single
	}
}
