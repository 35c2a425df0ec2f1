package tachys

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mwiater/tachys/internal/appconfig"
	"github.com/mwiater/tachys/internal/logging"
)

func resetFlag(cmdFlag string) {
	flag := rootCmd.PersistentFlags().Lookup(cmdFlag)
	if flag == nil {
		return
	}
	_ = flag.Value.Set(flag.DefValue)
	flag.Changed = false
}

// resetSliceFlag restores a slice flag through SliceValue so repeated test
// runs never append onto stale values.
func resetSliceFlag(cmdFlag string, defaults []string) {
	flag := rootCmd.PersistentFlags().Lookup(cmdFlag)
	if flag == nil {
		return
	}
	if sv, ok := flag.Value.(pflag.SliceValue); ok {
		_ = sv.Replace(defaults)
	}
	flag.Changed = false
}

// setSliceFlag assigns a slice flag without going through Set, which would
// comma-split or append depending on the flag type.
func setSliceFlag(t *testing.T, cmdFlag string, values []string) {
	t.Helper()
	flag := rootCmd.PersistentFlags().Lookup(cmdFlag)
	if flag == nil {
		t.Fatalf("unknown flag %s", cmdFlag)
	}
	if err := flag.Value.(pflag.SliceValue).Replace(values); err != nil {
		t.Fatalf("replace %s: %v", cmdFlag, err)
	}
	flag.Changed = true
}

func resetAllFlags() {
	for _, name := range []string{"verbose", "debug", "json", "tui", "unload", "host", "provider", "promptFile", "logFile", "repeats", "timeout"} {
		resetFlag(name)
	}
	resetSliceFlag("models", []string{appconfig.DefaultModel})
	resetSliceFlag("prompts", []string{appconfig.DefaultPrompt})
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// useConfigFile points the root command at a config file, resets every
// persistent flag and keeps the log file out of the working directory.
func useConfigFile(t *testing.T, path string) {
	t.Helper()
	prevCfgFile := cfgFile
	cfgFile = path
	viper.SetConfigFile(path)
	t.Cleanup(func() {
		cfgFile = prevCfgFile
		viper.SetConfigFile(prevCfgFile)
	})
	t.Cleanup(func() { _ = logging.Close() })
	t.Cleanup(resetAllFlags)

	resetAllFlags()
	_ = rootCmd.PersistentFlags().Set("logFile", filepath.Join(t.TempDir(), "tachys.log"))
}

func TestPersistentPreRunEUsesFlagValues(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tachys.log")
	useConfigFile(t, writeTempConfig(t, "{}"))

	_ = rootCmd.PersistentFlags().Set("verbose", "true")
	_ = rootCmd.PersistentFlags().Set("debug", "true")
	_ = rootCmd.PersistentFlags().Set("json", "true")
	_ = rootCmd.PersistentFlags().Set("repeats", "3")
	_ = rootCmd.PersistentFlags().Set("host", "http://10.1.1.9:11434")
	_ = rootCmd.PersistentFlags().Set("timeout", "30")
	_ = rootCmd.PersistentFlags().Set("logFile", logPath)
	setSliceFlag(t, "models", []string{"m1", "m2"})

	if err := rootCmd.PersistentPreRunE(rootCmd, []string{}); err != nil {
		t.Fatalf("PersistentPreRunE error: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("expected a loaded config")
	}
	if !cfg.Verbose || !cfg.Debug || !cfg.JSONRecords {
		t.Fatalf("expected flag values to flow into config: %+v", cfg)
	}
	if cfg.Repeats != 3 {
		t.Fatalf("expected repeats 3, got %d", cfg.Repeats)
	}
	if cfg.HostURL() != "http://10.1.1.9:11434" {
		t.Fatalf("expected host from flag, got %s", cfg.HostURL())
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.RequestTimeout())
	}
	if len(cfg.Models) != 2 || cfg.Models[0] != "m1" {
		t.Fatalf("expected models from flag, got %+v", cfg.Models)
	}
}

func TestPersistentPreRunEReadsConfigValues(t *testing.T) {
	useConfigFile(t, writeTempConfig(t, `{
		"models": ["cfg-model"],
		"prompts": ["cfg prompt"],
		"repeats": 3,
		"timeout": 45,
		"verbose": true
	}`))

	if err := rootCmd.PersistentPreRunE(rootCmd, []string{}); err != nil {
		t.Fatalf("PersistentPreRunE error: %v", err)
	}

	cfg := GetConfig()
	if len(cfg.Models) != 1 || cfg.Models[0] != "cfg-model" {
		t.Fatalf("expected models from config, got %+v", cfg.Models)
	}
	if len(cfg.Prompts) != 1 || cfg.Prompts[0] != "cfg prompt" {
		t.Fatalf("expected prompts from config, got %+v", cfg.Prompts)
	}
	if cfg.Repeats != 3 {
		t.Fatalf("expected repeats 3, got %d", cfg.Repeats)
	}
	// The timeout key maps onto TimeoutSeconds through its json tag.
	if cfg.RequestTimeout() != 45*time.Second {
		t.Fatalf("expected 45s timeout from config, got %v", cfg.RequestTimeout())
	}
	if !cfg.Verbose {
		t.Fatal("expected verbose from config")
	}
}

func TestPersistentPreRunEFlagOverridesConfig(t *testing.T) {
	useConfigFile(t, writeTempConfig(t, `{"models": ["cfg-model"], "repeats": 5}`))

	setSliceFlag(t, "models", []string{"flag-model"})
	setSliceFlag(t, "prompts", []string{"Hello, world"})
	_ = rootCmd.PersistentFlags().Set("repeats", "2")

	if err := rootCmd.PersistentPreRunE(rootCmd, []string{}); err != nil {
		t.Fatalf("PersistentPreRunE error: %v", err)
	}

	cfg := GetConfig()
	if len(cfg.Models) != 1 || cfg.Models[0] != "flag-model" {
		t.Fatalf("expected flag to override config models, got %+v", cfg.Models)
	}
	// Prompts may contain commas and must never be comma-split.
	if len(cfg.Prompts) != 1 || cfg.Prompts[0] != "Hello, world" {
		t.Fatalf("expected prompt with comma preserved, got %+v", cfg.Prompts)
	}
	if cfg.Repeats != 2 {
		t.Fatalf("expected flag to override config repeats, got %d", cfg.Repeats)
	}
}

func TestPersistentPreRunERejectsLowRepeats(t *testing.T) {
	useConfigFile(t, writeTempConfig(t, "{}"))

	_ = rootCmd.PersistentFlags().Set("repeats", "0")

	err := rootCmd.PersistentPreRunE(rootCmd, []string{})
	if err == nil || !strings.Contains(err.Error(), "repeats must be at least 1") {
		t.Fatalf("expected a repeats validation error, got %v", err)
	}
}

func TestPersistentPreRunERejectsVerboseWithTUI(t *testing.T) {
	useConfigFile(t, writeTempConfig(t, "{}"))

	_ = rootCmd.PersistentFlags().Set("verbose", "true")
	_ = rootCmd.PersistentFlags().Set("tui", "true")

	err := rootCmd.PersistentPreRunE(rootCmd, []string{})
	if err == nil || !strings.Contains(err.Error(), "only one of tui or verbose") {
		t.Fatalf("expected a mode validation error, got %v", err)
	}
}

func TestPersistentPreRunERejectsUnknownProvider(t *testing.T) {
	useConfigFile(t, writeTempConfig(t, "{}"))

	_ = rootCmd.PersistentFlags().Set("provider", "vllm")

	err := rootCmd.PersistentPreRunE(rootCmd, []string{})
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("expected a provider validation error, got %v", err)
	}
}

func TestPersistentPreRunELoadsPromptFile(t *testing.T) {
	promptPath := filepath.Join(t.TempDir(), "prompts.txt")
	if err := os.WriteFile(promptPath, []byte("# comment\nfirst prompt\nsecond prompt\n"), 0o644); err != nil {
		t.Fatalf("write prompts: %v", err)
	}
	useConfigFile(t, writeTempConfig(t, `{"promptFile": `+jsonString(promptPath)+`}`))

	if err := rootCmd.PersistentPreRunE(rootCmd, []string{}); err != nil {
		t.Fatalf("PersistentPreRunE error: %v", err)
	}

	cfg := GetConfig()
	if len(cfg.Prompts) != 2 || cfg.Prompts[0] != "first prompt" {
		t.Fatalf("expected prompts from file, got %+v", cfg.Prompts)
	}
}

func TestPersistentPreRunERejectsUnknownConfigKey(t *testing.T) {
	useConfigFile(t, writeTempConfig(t, `{"modles": ["typo"]}`))

	err := rootCmd.PersistentPreRunE(rootCmd, []string{})
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("expected a schema validation error, got %v", err)
	}
}

func TestShowConfigCommandOutput(t *testing.T) {
	useConfigFile(t, writeTempConfig(t, "{}"))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--debug", "show", "config"})
	t.Cleanup(func() {
		rootCmd.SetArgs([]string{})
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	_, err := rootCmd.ExecuteC()
	if err != nil {
		t.Fatalf("ExecuteC error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Config file: "+cfgFile) {
		t.Fatalf("expected config file path in output, got %s", out)
	}
	if !strings.Contains(out, "Debug:       true") {
		t.Fatalf("expected debug in output, got %s", out)
	}
}

func jsonString(s string) string {
	replaced := strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(replaced, `"`, `\"`) + `"`
}
