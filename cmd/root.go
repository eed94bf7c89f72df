package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/attache-ai/attache/internal/config"
	"github.com/attache-ai/attache/internal/engine"
	"github.com/attache-ai/attache/internal/logger"
)

var (
	cfgPath               string
	debugMode             bool
	version, commit, date string

	cfg *config.Config
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "attache",
	Short: "Personal assistant relay over a local reasoning CLI",
	Long: `attache relays conversation messages to a local reasoning CLI,
streams its answers back, and keeps each conversation on its own
resumable session.

Long tasks run under an idle watchdog, interactive questions pause the
stream until you answer, and Ctrl-C stops a run while keeping whatever
text already arrived.`,
	Example: `  attache ask "summarize the notes in ./inbox"
  attache chat                      # Interactive multi-turn conversation
  attache chat --conversation work  # Separate session per conversation
  attache replay run.stream.log     # Inspect a recorded stream`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if debugMode {
			cfg.Debug = true
		}
		if err := logger.Setup(cfg.LogDir(), cfg.Debug); err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "Config file path")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: "conversation", Title: "Conversation Commands:"},
		&cobra.Group{ID: "tooling", Title: "Tooling Commands:"},
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// newEngine builds the invocation engine from the loaded config with the
// given timer settings. The config itself stays untouched after Load.
func newEngine(idleTimeout, softCeiling time.Duration) *engine.Engine {
	return engine.New(
		engine.WithBinary(cfg.Binary),
		engine.WithIdleTimeout(idleTimeout),
		engine.WithSoftCeiling(softCeiling),
		engine.WithInteractiveTools(cfg.InteractiveTools...),
		engine.WithLogger(logger.Default()),
	)
}

// Execute runs the root command
func Execute() error {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("attache %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("attache %s\n", version)
}
