package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/attache-ai/attache/internal/engine"
)

var replayVerbose bool

var replayCmd = &cobra.Command{
	Use:     "replay <stream-file>",
	Short:   "Decode a recorded stream and print its final answer",
	GroupID: "tooling",
	Long: `replay re-decodes a raw stream recording (written by ask --record or
record_streams) and reports what the run produced: session id, event
counts, and the canonical answer text.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVarP(&replayVerbose, "verbose", "v", false, "Print every decoded event")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read stream file: %w", err)
	}

	dec := engine.NewDecoder(nil)
	events := dec.Feed(data)
	events = append(events, dec.Flush()...)

	var sessionID string
	counts := make(map[string]int)
	for _, ev := range events {
		switch ev := ev.(type) {
		case engine.SessionIdentifier:
			sessionID = ev.ID
			counts["session"]++
		case engine.AssistantDelta:
			counts["delta"]++
		case engine.ToolInvocation:
			counts["tool"]++
			if replayVerbose {
				fmt.Fprintf(os.Stderr, "tool: %s (%s)\n", ev.ToolName, ev.ToolUseID)
			}
		case engine.ResultEvent:
			counts["result"]++
		case engine.Diagnostic:
			counts["diagnostic"]++
		case engine.Unrecognized:
			counts["unrecognized"]++
			if replayVerbose {
				fmt.Fprintf(os.Stderr, "unrecognized: %s\n", ev.Raw)
			}
		}
	}

	fmt.Fprintf(os.Stderr, "events: %d (deltas %d, tools %d, results %d, diagnostics %d, unrecognized %d)\n",
		len(events), counts["delta"], counts["tool"], counts["result"],
		counts["diagnostic"], counts["unrecognized"])
	if sessionID != "" {
		fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
	}

	if text := engine.Canonicalize(events); text != "" {
		fmt.Println(text)
	} else {
		fmt.Fprintln(os.Stderr, "no answer text in stream")
	}
	return nil
}
