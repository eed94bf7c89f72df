package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/attache-ai/attache/internal/logger"
	"github.com/attache-ai/attache/internal/questions"
	"github.com/attache-ai/attache/internal/queue"
	"github.com/attache-ai/attache/internal/relay"
)

var chatConversation string

var chatCmd = &cobra.Command{
	Use:     "chat",
	Short:   "Interactive multi-turn conversation",
	GroupID: "conversation",
	Long: `chat reads messages from the terminal and relays them through the
engine, resuming the conversation's session across turns and restarts.

Commands inside the conversation:
  /new    forget the session and start fresh
  /quit   exit

Ctrl-C stops the active run and keeps its partial answer.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "default", "Conversation id")
	rootCmd.AddCommand(chatCmd)
}

// terminalNotifier renders relay notices and questions on the terminal.
// Questions are answered inline: AskQuestion blocks the suspended run while
// the user types, then delivers through the store.
type terminalNotifier struct {
	in     *bufio.Reader
	out    io.Writer
	answer func(id string, answers map[string]string) error
}

var _ relay.Notifier = (*terminalNotifier)(nil)

func (n *terminalNotifier) Notify(conversationID, message string) {
	fmt.Fprintf(n.out, "· %s\n", message)
}

func (n *terminalNotifier) AskQuestion(conversationID string, p *questions.Pending) {
	answers := promptAnswers(n.in, n.out, p.Items)
	if err := n.answer(p.ID, answers); err != nil {
		fmt.Fprintf(n.out, "· could not deliver answer: %v\n", err)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	sessions, err := relay.LoadSessionStore(cfg.SessionStorePath())
	if err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)
	notifier := &terminalNotifier{in: stdin, out: os.Stderr}

	opts := []relay.RelayOption{
		relay.WithNotifier(notifier),
		relay.WithLogger(logger.WithConversation(chatConversation)),
		relay.WithDispatcher(queue.NewDispatcher(
			queue.WithDepth(cfg.QueueDepth),
			queue.WithLaneTTL(cfg.LaneTTL),
			queue.WithLogger(logger.Default()),
		)),
	}
	if cfg.RecordStreams {
		opts = append(opts, relay.WithStreamLog(func(conversationID string) (io.WriteCloser, error) {
			return logger.StreamLog(cfg.DataDir, conversationID)
		}))
	}

	r := relay.New(newEngine(cfg.IdleTimeout, cfg.SoftCeiling), sessions, opts...)
	defer r.Close()
	notifier.answer = r.Questions().Answer

	// Ctrl-C stops the active run instead of killing the process; /quit
	// exits.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			if !r.Cancel(chatConversation) {
				fmt.Fprintln(os.Stderr, "· nothing running; /quit to exit")
			}
		}
	}()

	fmt.Fprintf(os.Stderr, "attache chat (conversation %q), /quit to exit\n", chatConversation)
	for {
		fmt.Fprint(os.Stderr, "you> ")
		line, err := stdin.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		text := strings.TrimSpace(line)
		switch {
		case text == "":
			continue
		case text == "/quit":
			return nil
		case text == "/new":
			if err := sessions.Forget(chatConversation); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "· starting a fresh session")
			continue
		}

		res, err := r.HandleMessage(cmd.Context(), chatConversation, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "· %v\n", err)
			continue
		}
		if res.Interrupted {
			fmt.Fprintln(os.Stderr, "· stopped early, partial answer:")
		}
		if res.Text != "" {
			fmt.Println(res.Text)
		} else {
			fmt.Fprintln(os.Stderr, "· no answer text")
		}
	}
}
