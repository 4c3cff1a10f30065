package profile

import (
	"context"
	"time"

	"github.com/lineprof/lineprof/pkg/host"
)

const DefaultSamplePeriod = time.Millisecond

// Sampler periodically snapshots live call stacks instead of consuming
// per-line events. It is mutually exclusive with the deterministic Tracer
// within a session: all writes come from the sampling goroutine, so the
// single-owner store discipline holds with the roles swapped.
type Sampler struct {
	*SamplerOptions
	prof    *Profiler
	creator host.ThreadID
}

func NewSampler(opts ...SamplerOption) (*Sampler, error) {
	s := &Sampler{
		SamplerOptions: &SamplerOptions{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prof == nil {
		return nil, ErrProfilerNil
	}
	if s.runtime == nil {
		return nil, ErrRuntimeNil
	}
	if s.period == 0 {
		s.period = DefaultSamplePeriod
	}
	if s.period < 0 {
		return nil, ErrPeriodInvalid
	}
	s.creator = s.runtime.CurrentThread()

	return s, nil
}

// Run samples until ctx is cancelled. Cadence is best effort: a slow stack
// walk delays the next tick rather than piling up.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.prof.Enabled() {
				return nil
			}
			s.sampleAll()
		}
	}
}

func (s *Sampler) sampleAll() {
	for tid, fr := range s.runtime.Frames() {
		if s.single && tid != s.creator {
			continue
		}
		s.Sample(tid, fr)
	}
}

// Sample attributes one sample to the thread's stack snapshot: a hit on the
// topmost site, and an edge hit for each adjacent caller/callee pair. No
// time is recorded; nanos stay zero in statistical output.
func (s *Sampler) Sample(tid host.ThreadID, fr host.Frame) {
	p := s.prof
	p.events.Add(1)
	st := p.store(tid)

	if st.tracked(fr.File()) {
		st.RecordLine(Site{File: fr.File(), Line: fr.Line()}, callableID(fr.Callable()), 0)
	}
	callee := fr
	for {
		caller := callee.Caller()
		if caller == nil {
			break
		}
		if st.tracked(caller.File()) {
			st.RecordEdgeHit(Edge{
				Caller: Site{File: caller.File(), Line: caller.Line()},
				Callee: callableID(callee.Callable()),
			}, callableID(caller.Callable()))
		}
		callee = caller
	}
}
