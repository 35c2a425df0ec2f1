// internal/commands/root.go
package tachys

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/tachys/internal/appconfig"
	"github.com/mwiater/tachys/internal/logging"
	"github.com/mwiater/tachys/internal/speed"
	"github.com/mwiater/tachys/internal/tui"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
// Running it with no subcommand starts a measurement run.
var rootCmd = &cobra.Command{
	Use:   "tachys",
	Short: "tachys — measure token throughput of locally served models",
	Long: `tachys measures how many tokens per second locally served models produce.

Each configured model is measured against each configured prompt, repeating
every prompt the requested number of times. Calls run strictly one at a time
so measurements never compete for the same server. One table per model is
printed when the run completes, covering the prompt evaluation and response
generation phases.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureConfigLoaded(); err != nil {
			return err
		}

		flags := cmd.Root().PersistentFlags()
		for _, name := range []string{"verbose", "debug", "json", "tui", "unload"} {
			if !flags.Changed(name) {
				_ = flags.Set(name, strconv.FormatBool(viper.GetBool(name)))
			}
		}
		for _, name := range []string{"host", "provider", "promptFile", "logFile"} {
			if !flags.Changed(name) {
				_ = flags.Set(name, viper.GetString(name))
			}
		}
		for _, name := range []string{"repeats", "timeout"} {
			if !flags.Changed(name) {
				_ = flags.Set(name, strconv.Itoa(viper.GetInt(name)))
			}
		}

		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
			// Config struct fields carry json tags only.
			dc.TagName = "json"
		}); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ConfigPath = cfgFile

		// Slice flags bypass viper so prompts containing commas survive intact.
		if flags.Changed("models") {
			if modelsFlag, err := flags.GetStringSlice("models"); err == nil {
				cfg.Models = modelsFlag
			}
		}
		if flags.Changed("prompts") {
			if promptsFlag, err := flags.GetStringArray("prompts"); err == nil {
				cfg.Prompts = promptsFlag
			}
		}

		if cfg.PromptFile != "" {
			prompts, err := speed.LoadPromptFile(cfg.PromptFile)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cfg.Prompts = prompts
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		currentConfig = &cfg

		if err := logging.Init(currentConfig.LogFilePath()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		// Validation happened in PersistentPreRunE; runtime failures should
		// not print usage.
		cmd.SilenceUsage = true
		if cfg.TUIMode {
			return tui.Run(cfg)
		}
		return speed.RunMeasurement(cfg)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "stream responses and log per-call detail")
	rootCmd.PersistentFlags().StringSliceP("models", "m", []string{appconfig.DefaultModel}, "models to measure")
	rootCmd.PersistentFlags().StringArrayP("prompts", "p", []string{appconfig.DefaultPrompt}, "prompt to send to each model (repeatable)")
	rootCmd.PersistentFlags().IntP("repeats", "r", 1, "times to repeat each prompt (must be >= 1)")
	rootCmd.PersistentFlags().String("host", "", "base URL of the model server")
	rootCmd.PersistentFlags().String("provider", "", "model server provider (ollama or llamacpp)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("json", false, "print raw measurement records as JSON after the tables")
	rootCmd.PersistentFlags().Bool("tui", false, "render run progress in a terminal UI")
	rootCmd.PersistentFlags().Bool("unload", false, "unload each model after its measurements complete")
	rootCmd.PersistentFlags().String("promptFile", "", "file with one prompt per line (overrides --prompts)")
	rootCmd.PersistentFlags().Int("timeout", 0, "request timeout in seconds (0 = default)")
	rootCmd.PersistentFlags().String("logFile", "", "path to the log file")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("models", rootCmd.PersistentFlags().Lookup("models"))
	_ = viper.BindPFlag("prompts", rootCmd.PersistentFlags().Lookup("prompts"))
	_ = viper.BindPFlag("repeats", rootCmd.PersistentFlags().Lookup("repeats"))
	_ = viper.BindPFlag("host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("tui", rootCmd.PersistentFlags().Lookup("tui"))
	_ = viper.BindPFlag("unload", rootCmd.PersistentFlags().Lookup("unload"))
	_ = viper.BindPFlag("promptFile", rootCmd.PersistentFlags().Lookup("promptFile"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("logFile", rootCmd.PersistentFlags().Lookup("logFile"))
}

// initConfig points viper at the config file, falling back to the legacy
// root-level path when the default location is absent.
func initConfig() {
	if cfgFile == appconfig.DefaultConfigPath {
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			if _, err := os.Stat(appconfig.LegacyConfigPath); err == nil {
				cfgFile = appconfig.LegacyConfigPath
			}
		}
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// ensureConfigLoaded reads the config file when it exists. A missing file at
// the default location is fine; every setting has a flag or a default. An
// explicitly requested file that cannot be read is an error.
func ensureConfigLoaded() error {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) && cfgFile == appconfig.DefaultConfigPath {
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	if file := viper.ConfigFileUsed(); file != "" {
		if err := appconfig.ValidateFile(file); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
