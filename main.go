package main

import (
	"github.com/lineprof/lineprof/pkg/cmd"
	"github.com/lineprof/lineprof/pkg/host/replay"
)

func main() {
	runtime := replay.NewRuntime(
		replay.WithSearchPaths("."),
	)
	cmd.Execute(runtime)
}
