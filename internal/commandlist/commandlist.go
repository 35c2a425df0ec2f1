// internal/commandlist/commandlist.go
// Package commandlist renders the CLI command tree in a two-column layout.
package commandlist

import (
	"fmt"
	"io"
)

// CommandInfo holds the path and description of a command for display.
type CommandInfo struct {
	Path        string
	Description string
}

// ListCommands prints the command tree in a two-column layout. Descriptions
// start in a column two spaces past the longest path.
func ListCommands(out io.Writer, commands []CommandInfo) {
	widest := 0
	for _, info := range commands {
		if pathLen := len(info.Path); pathLen > widest {
			widest = pathLen
		}
	}

	fmt.Fprintln(out, "Commands and Subcommands:")
	for _, info := range commands {
		fmt.Fprintf(out, "  %-*s%s\n", widest+2, info.Path, info.Description)
	}
}
