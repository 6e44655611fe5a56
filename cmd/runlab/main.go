package main

import (
	"github.com/runlab/runlab/internal/cli"
	"github.com/runlab/runlab/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
