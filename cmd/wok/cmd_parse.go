package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dhamidi/wok/format"
	"github.com/dhamidi/wok/wollok/codebase"
	"github.com/dhamidi/wok/wollok/parser"
)

func newParseCmd() *cobra.Command {
	var outputFormat string
	var includePositions bool

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a Wollok source file and dump the AST",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]
			if !codebase.IsWollokFile(filename) {
				return fmt.Errorf("unsupported file extension: %s (expected .wlk, .wtest or .wpgm)", filepath.Ext(filename))
			}

			data, err := os.ReadFile(filename)
			if err != nil {
				return fmt.Errorf("read source file: %w", err)
			}
			pkg := parser.ParseFile(filename, data)

			var enc format.Encoder
			switch outputFormat {
			case "json":
				enc = format.NewASTJSONEncoder(os.Stdout)
			case "tree":
				tree := format.NewTreeEncoder(os.Stdout)
				if includePositions {
					tree = tree.WithPositions()
				}
				enc = tree
			default:
				return fmt.Errorf("unknown format: %s", outputFormat)
			}

			if err := enc.Encode(pkg); err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			if outputFormat == "json" {
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "output format (json, tree)")
	cmd.Flags().BoolVar(&includePositions, "positions", false, "include spans in tree output")

	return cmd
}
