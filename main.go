package main

import (
	"runtime"

	"tenant-backup/cmd"
)

// Set through -ldflags "-X main.version=..." by the release build
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, buildTime, gitCommit, runtime.Version())
	cmd.Execute()
}
