package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/attache-ai/attache/internal/engine"
)

var (
	askModel       string
	askSession     string
	askDir         string
	askPermission  string
	askRecord      string
	askIdleTimeout time.Duration
	askSoftCeiling time.Duration
)

var askCmd = &cobra.Command{
	Use:     "ask <prompt>",
	Short:   "Run a single prompt and print the answer",
	GroupID: "conversation",
	Example: `  attache ask "what changed in this repo today?"
  attache ask --session sess-abc "and yesterday?"
  attache ask --record run.stream.log "inspect the failing test"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askModel, "model", "", "Model override")
	askCmd.Flags().StringVar(&askSession, "session", "", "Resume an existing session id")
	askCmd.Flags().StringVar(&askDir, "dir", "", "Working directory for the invocation")
	askCmd.Flags().StringVar(&askPermission, "permission-mode", "", "Permission mode passed to the CLI")
	askCmd.Flags().StringVar(&askRecord, "record", "", "Write the raw stream to this file")
	askCmd.Flags().DurationVar(&askIdleTimeout, "idle-timeout", 0, "Abort after this much event silence (overrides config)")
	askCmd.Flags().DurationVar(&askSoftCeiling, "soft-ceiling", 0, "Long-run advisory threshold (overrides config)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	// Ctrl-C cancels the invocation; whatever text already streamed in is
	// still printed.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idle, soft := askTimeouts(cfg.IdleTimeout, cfg.SoftCeiling,
		askIdleTimeout, cmd.Flags().Changed("soft-ceiling"), askSoftCeiling)

	stdin := bufio.NewReader(os.Stdin)
	req := engine.Request{
		Prompt:          args[0],
		ResumeSessionID: askSession,
		Model:           firstNonEmpty(askModel, cfg.Model),
		WorkingDir:      firstNonEmpty(askDir, cfg.WorkingDir),
		PermissionMode:  firstNonEmpty(askPermission, cfg.PermissionMode),
		OnProgress: func(summary string) {
			fmt.Fprintf(os.Stderr, "· %s\n", summary)
		},
		OnSoftCeiling: func(msg string) {
			fmt.Fprintf(os.Stderr, "· %s\n", msg)
		},
		OnQuestion: func(q *engine.Question) {
			q.Answer(promptAnswers(stdin, os.Stderr, q.Items))
		},
	}

	if askRecord != "" {
		f, err := os.Create(askRecord)
		if err != nil {
			return fmt.Errorf("failed to create stream recording: %w", err)
		}
		defer f.Close()
		req.StreamLog = f
	}

	res, err := newEngine(idle, soft).Run(ctx, req)
	if err != nil {
		return err
	}

	if res.Interrupted {
		fmt.Fprintln(os.Stderr, "· stopped early, partial answer:")
	}
	if res.Text != "" {
		fmt.Println(res.Text)
	}
	if res.SessionID != "" {
		fmt.Fprintf(os.Stderr, "· session %s\n", res.SessionID)
	}
	return nil
}

// askTimeouts resolves the effective timers from config values plus flag
// overrides. The soft ceiling tracks whether its flag was set at all, since
// an explicit zero disables the advisory.
func askTimeouts(cfgIdle, cfgSoft, flagIdle time.Duration, softSet bool, flagSoft time.Duration) (idle, soft time.Duration) {
	idle = cfgIdle
	if flagIdle > 0 {
		idle = flagIdle
	}
	soft = cfgSoft
	if softSet {
		soft = flagSoft
	}
	return idle, soft
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
