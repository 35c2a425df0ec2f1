package appconfig

import (
	"fmt"
	"io"
	"strings"

	"github.com/k0kubun/pp"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config, fallback Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	fmt.Fprintln(out, "Current configuration:")
	if cfg == nil {
		fmt.Fprintf(out, "  Host:     %s\n", fallback.HostURL())
		fmt.Fprintf(out, "  Provider: %s\n", fallback.ProviderName())
		fmt.Fprintf(out, "  Repeats:  %d\n", fallback.Repeats)
		fmt.Fprintf(out, "  Verbose:  %v\n", fallback.Verbose)
		fmt.Fprintf(out, "  Debug:    %v\n", fallback.Debug)
		return
	}

	fmt.Fprintf(out, "  Host:        %s\n", cfg.HostURL())
	fmt.Fprintf(out, "  Provider:    %s\n", cfg.ProviderName())
	fmt.Fprintf(out, "  Models:      %s\n", strings.Join(cfg.ModelList(), ", "))
	fmt.Fprintf(out, "  Prompts:     %d configured\n", len(cfg.PromptList()))
	fmt.Fprintf(out, "  Repeats:     %d\n", cfg.Repeats)
	fmt.Fprintf(out, "  Verbose:     %v\n", cfg.Verbose)
	fmt.Fprintf(out, "  Debug:       %v\n", cfg.Debug)
	fmt.Fprintf(out, "  JSON dump:   %v\n", cfg.JSONRecords)
	fmt.Fprintf(out, "  TUI:         %v\n", cfg.TUIMode)
	fmt.Fprintf(out, "  Unload:      %v\n", cfg.UnloadAfter)
	if cfg.PromptFile != "" {
		fmt.Fprintf(out, "  Prompt file: %s\n", cfg.PromptFile)
	}
	fmt.Fprintf(out, "  Timeout:     %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Log file:    %s\n", cfg.LogFilePath())

	if cfg.Debug {
		pp.Fprintln(out, cfg)
	}
}
