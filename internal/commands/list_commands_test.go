// internal/commands/list_commands_test.go
package tachys

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestGatherCommands(t *testing.T) {
	root := &cobra.Command{Use: "scratch", Short: "root"}
	group := &cobra.Command{Use: "list", Short: "listing group"}
	leaf := &cobra.Command{Use: "models", Short: "list models"}
	completion := &cobra.Command{Use: "completion", Short: "shell completion"}
	completion.AddCommand(&cobra.Command{Use: "bash", Short: "bash completion"})
	group.AddCommand(leaf)
	root.AddCommand(group, completion)

	entries := gatherCommands(root, "", "")

	if len(entries) != 3 {
		t.Fatalf("expected root, group and leaf only, got %d entries: %+v", len(entries), entries)
	}
	if entries[0].Path != "scratch" {
		t.Errorf("unexpected root path: %q", entries[0].Path)
	}
	if entries[1].Path != "  scratch list" {
		t.Errorf("unexpected group path: %q", entries[1].Path)
	}
	if entries[2].Path != "    scratch list models" || entries[2].Description != "list models" {
		t.Errorf("unexpected leaf entry: %+v", entries[2])
	}
	for _, entry := range entries {
		if strings.Contains(entry.Path, "completion") {
			t.Errorf("completion should be pruned, found %q", entry.Path)
		}
	}
}
