// cmd/tachys/main.go
package main

import (
	cmd "github.com/mwiater/tachys/internal/commands"
)

// Build metadata, overridden at release time through -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Indirections swapped out by tests.
var (
	setVersionInfo = cmd.SetVersionInfo
	executeCmd     = cmd.Execute
)

// main starts the tachys CLI application by injecting build metadata and
// delegating to the cobra root command defined in the commands package.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
