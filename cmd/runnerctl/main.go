package main

import (
	"os"

	"github.com/psantana5/runner-orchestrator/cmd/runnerctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
