package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/attache-ai/attache/internal/engine"
)

// promptAnswers walks the user through a suspended question's items on the
// terminal. Numbered input picks an option; anything else is taken as a
// free-form answer, and empty input falls back to the first option.
func promptAnswers(in *bufio.Reader, out io.Writer, items []engine.QuestionItem) map[string]string {
	answers := make(map[string]string, len(items))
	for _, item := range items {
		if item.Header != "" {
			fmt.Fprintf(out, "\n[%s]\n", item.Header)
		}
		fmt.Fprintf(out, "%s\n", item.Question)
		for i, opt := range item.Options {
			fmt.Fprintf(out, "  %d) %s\n", i+1, opt)
		}
		fmt.Fprint(out, "> ")

		line, err := in.ReadString('\n')
		if err != nil {
			answers[item.Question] = fallbackAnswer(item)
			continue
		}
		answers[item.Question] = pickAnswer(item, strings.TrimSpace(line))
	}
	return answers
}

func pickAnswer(item engine.QuestionItem, input string) string {
	if input == "" {
		return fallbackAnswer(item)
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(item.Options) {
		return item.Options[n-1]
	}
	return input
}

func fallbackAnswer(item engine.QuestionItem) string {
	if len(item.Options) > 0 {
		return item.Options[0]
	}
	return "Continue as you see fit"
}
