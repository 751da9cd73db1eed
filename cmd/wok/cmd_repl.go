package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/dhamidi/wok/format"
	"github.com/dhamidi/wok/wollok/parser"
)

const historyFile = ".wok_history"

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactively parse Wollok sentences and print their trees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl()
		},
	}
}

func runRepl() error {
	fmt.Println("wok repl — type a sentence, :quit to exit")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	enc := format.NewTreeEncoder(os.Stdout)

	for {
		code, ok := readSentence(ln, "wok> ", "...> ")
		if !ok {
			fmt.Println()
			return nil
		}
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if trimmed == ":quit" {
			return nil
		}

		p := parser.ParseSentence(strings.NewReader(code), parser.WithFile("repl"))
		node := p.Finish()
		if node == nil {
			fmt.Fprintln(os.Stderr, "parse error")
			continue
		}
		if err := enc.Encode(node); err != nil {
			return err
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
	}
}

// readSentence keeps prompting while the accumulated input is still an
// incomplete sentence, so closures and bodies can span lines.
func readSentence(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder

	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
			if line == "" {
				// give up on continuation, let the parser complain
				return b.String(), true
			}
		}
		b.WriteString(line)

		src := b.String()
		if strings.TrimSpace(src) == "" {
			return src, true
		}
		probe := parser.ParseSentence(strings.NewReader(src), parser.WithFile("repl"))
		if probe.IsComplete() {
			return src, true
		}
	}
}
