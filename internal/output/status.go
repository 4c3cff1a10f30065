package output

import (
	"context"
	"fmt"
	"time"
)

func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}

func PrettyProfileStatus(elapsed time.Duration, rate uint64, threads int) string {
	return fmt.Sprintf("\r%-24s %-18s %-12s",
		fmt.Sprintf("Profiling: %8.1fs", elapsed.Seconds()),
		fmt.Sprintf("Events/s: %6d", rate),
		fmt.Sprintf("Threads: %3d", threads),
	)
}
