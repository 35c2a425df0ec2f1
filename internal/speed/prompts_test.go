// internal/speed/prompts_test.go
package speed

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadPromptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.txt")
	content := "# Benchmark prompts\nTell me a joke\n\nWhy is the sky blue?\n  # indented comment\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("could not write prompt file: %v", err)
	}

	prompts, err := LoadPromptFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Tell me a joke", "Why is the sky blue?"}
	if !reflect.DeepEqual(prompts, want) {
		t.Fatalf("unexpected prompts: %+v", prompts)
	}
}

func TestLoadPromptFileLongLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.txt")
	long := strings.Repeat("context ", 20_000)
	if err := os.WriteFile(path, []byte(long+"\n"), 0o644); err != nil {
		t.Fatalf("could not write prompt file: %v", err)
	}

	prompts, err := LoadPromptFile(path)
	if err != nil {
		t.Fatalf("long prompts should be readable: %v", err)
	}
	if len(prompts) != 1 || len(prompts[0]) < 100_000 {
		t.Fatalf("long prompt was not preserved, got %d prompts", len(prompts))
	}
}

func TestLoadPromptFileEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.txt")
	if err := os.WriteFile(path, []byte("# only comments\n\n"), 0o644); err != nil {
		t.Fatalf("could not write prompt file: %v", err)
	}

	if _, err := LoadPromptFile(path); err == nil || !strings.Contains(err.Error(), "contains no prompts") {
		t.Fatalf("expected an empty file error, got %v", err)
	}
}

func TestLoadPromptFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := LoadPromptFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
