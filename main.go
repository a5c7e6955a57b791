package main

import (
	"os"

	"github.com/sobandev/careerpilot-ai/cmd"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cmd.SetVersion(version)
	cmd.SetBuildInfo(commit, buildTime)
	os.Exit(cmd.Execute())
}
