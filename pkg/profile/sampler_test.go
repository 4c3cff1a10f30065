package profile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lineprof/lineprof/pkg/host"
	"github.com/lineprof/lineprof/pkg/host/replay"
	"github.com/lineprof/lineprof/pkg/profile"
)

func TestNewSamplerValidation(t *testing.T) {
	prof := profile.NewProfiler()
	runtime := replay.NewRuntime()

	_, err := profile.NewSampler()
	require.ErrorIs(t, err, profile.ErrProfilerNil)

	_, err = profile.NewSampler(profile.WithSamplerProfiler(prof))
	require.ErrorIs(t, err, profile.ErrRuntimeNil)

	_, err = profile.NewSampler(
		profile.WithSamplerProfiler(prof),
		profile.WithSamplerRuntime(runtime),
		profile.WithSamplerPeriod(-time.Millisecond),
	)
	require.ErrorIs(t, err, profile.ErrPeriodInvalid)
}

// Samples record hit counts only: every nanos field stays zero.
func TestSampleRecordsHitsWithoutTime(t *testing.T) {
	prof := profile.NewProfiler(profile.WithStatistical(true))
	runtime := replay.NewRuntime()
	sampler, err := profile.NewSampler(
		profile.WithSamplerProfiler(prof),
		profile.WithSamplerRuntime(runtime),
		profile.WithSamplerPeriod(profile.DefaultSamplePeriod),
	)
	require.NoError(t, err)
	require.NoError(t, prof.Enable())

	mod := &stackFrame{
		file: "demo/busy.py", line: 6,
		cal: host.Callable{File: "demo/busy.py", FirstLine: 1, Name: "<module>"},
	}
	busy := &stackFrame{
		file: "demo/busy.py", line: 3,
		cal:    host.Callable{File: "demo/busy.py", FirstLine: 2, Name: "busy"},
		parent: mod,
	}

	const samples = 100
	for i := 0; i < samples; i++ {
		sampler.Sample(1, busy)
	}
	require.NoError(t, prof.Disable())

	f := prof.Stats().Files["demo/busy.py"]
	require.NotNil(t, f)
	require.Equal(t, uint64(samples), f.Lines[3].Hits, "leaf line collects every sample")
	require.Zero(t, f.Lines[3].Nanos)
	require.Len(t, f.Calls[6], 1)
	require.Equal(t, uint64(samples), f.Calls[6][0].Hits)
	require.Zero(t, f.Calls[6][0].Nanos)
	require.Equal(t, "busy", f.Calls[6][0].Callee.Name)
	// Only the stack top counts as a line hit.
	require.Nil(t, f.Lines[6])
}

func TestSampleHonorsFilter(t *testing.T) {
	prof := profile.NewProfiler(
		profile.WithStatistical(true),
		profile.WithTrackedFunc(func(path string) bool { return path != "/usr/lib/python/ssl.py" }),
	)
	runtime := replay.NewRuntime()
	sampler, err := profile.NewSampler(
		profile.WithSamplerProfiler(prof),
		profile.WithSamplerRuntime(runtime),
		profile.WithSamplerPeriod(profile.DefaultSamplePeriod),
	)
	require.NoError(t, err)
	require.NoError(t, prof.Enable())

	app := &stackFrame{
		file: "demo/app.py", line: 4,
		cal: host.Callable{File: "demo/app.py", FirstLine: 1, Name: "<module>"},
	}
	ssl := &stackFrame{
		file: "/usr/lib/python/ssl.py", line: 20,
		cal:    host.Callable{File: "/usr/lib/python/ssl.py", FirstLine: 10, Name: "wrap"},
		parent: app,
	}
	sampler.Sample(1, ssl)
	require.NoError(t, prof.Disable())

	stats := prof.Stats()
	require.NotContains(t, stats.Files, "/usr/lib/python/ssl.py")
	// The caller-side edge into the excluded file is still visible.
	f := stats.Files["demo/app.py"]
	require.NotNil(t, f)
	require.Equal(t, uint64(1), f.Calls[4][0].Hits)
}

// End to end: the sampler ticks over a replayed program and lands its
// samples on the busy line.
func TestSamplerRunOverReplay(t *testing.T) {
	prof := profile.NewProfiler(profile.WithStatistical(true))
	runtime := replay.NewRuntime()
	sampler, err := profile.NewSampler(
		profile.WithSamplerProfiler(prof),
		profile.WithSamplerRuntime(runtime),
		profile.WithSamplerPeriod(5*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, prof.Enable())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sampler.Run(ctx)
	}()

	_, runErr := runtime.Run(replay.Program{
		{Tid: 1, Kind: "call", File: "demo/busy.py", Fn: "<module>", FnLine: 1},
		{Tid: 1, Kind: "line", File: "demo/busy.py", Line: 2},
		{Tid: 1, Kind: "sleep", SleepNs: int64(200 * time.Millisecond)},
		{Tid: 1, Kind: "return"},
	})
	require.NoError(t, runErr)
	cancel()
	require.NoError(t, <-done)
	require.NoError(t, prof.Disable())

	f := prof.Stats().Files["demo/busy.py"]
	require.NotNil(t, f)
	require.NotNil(t, f.Lines[2])
	require.Greater(t, f.Lines[2].Hits, uint64(0))
	require.Zero(t, f.Lines[2].Nanos)
}
