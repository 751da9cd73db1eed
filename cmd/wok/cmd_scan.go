package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dhamidi/wok/wollok/codebase"
)

func newScanCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Parse every Wollok file under a directory and report problems",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rootDir := "."
			if len(args) == 1 {
				rootDir = args[0]
			}

			cb := codebase.New(rootDir)
			if err := cb.ScanAll(); err != nil {
				return fmt.Errorf("scan %s: %w", rootDir, err)
			}

			reportAll(cb)

			if watch {
				return watchLoop(cb)
			}

			if cb.ProblemCount() > 0 {
				return fmt.Errorf("%d problems found", cb.ProblemCount())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep watching for file changes")

	return cmd
}

func reportAll(cb *codebase.Codebase) {
	for _, file := range cb.Files() {
		reportFile(cb, file.Path)
	}
}

func reportFile(cb *codebase.Codebase, path string) {
	file := cb.GetFile(path)
	if file == nil {
		fmt.Printf("%s: removed\n", path)
		return
	}
	if len(file.Problems) == 0 {
		fmt.Printf("%s: ok\n", path)
		return
	}
	for _, prob := range file.Problems {
		fmt.Printf("%s:%d:%d: %s\n", path, prob.Src.Start.Line, prob.Src.Start.Column, prob.Code)
	}
}

func watchLoop(cb *codebase.Codebase) error {
	watcher, err := codebase.NewFileWatcher(cb)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	watcher.OnChange = func(path string) {
		reportFile(cb, path)
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Stop()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc
	return nil
}
