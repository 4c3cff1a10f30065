package profile

import "time"

// clockBase anchors the monotonic clock. Site costs are only ever summed,
// never ordered across threads, so a process-wide base is sufficient.
var clockBase = time.Now()

// nowNanos returns monotonic nanoseconds since process start of profiling
// support. Non-decreasing within a thread on every supported platform.
func nowNanos() uint64 {
	return uint64(time.Since(clockBase))
}
