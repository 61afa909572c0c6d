package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/memberimport/internal/core"
)

func newInspectCmd() *cobra.Command {
	var writeMapping string

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show a file's columns and the suggested mapping",
		Long: "Parse FILE and print its columns with the field each one would be imported as.\n" +
			"Use --write-mapping to save the suggestion as an editable mapping file.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, table, err := readSource(args[0])
			if err != nil {
				return err
			}
			suggested := core.SuggestMapping(table.Headers)

			if writeMapping != "" {
				data, err := writeMappingFile(suggested)
				if err != nil {
					return fmt.Errorf("render mapping: %w", err)
				}
				if err := os.WriteFile(writeMapping, data, 0o644); err != nil {
					return fmt.Errorf("write mapping file: %w", err)
				}
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"fileName":  filepath.Base(args[0]),
					"headers":   table.Headers,
					"rowCount":  table.Len(),
					"suggested": suggested,
					"complete":  suggested.IsComplete(),
				})
			}

			rows := make([][]string, 0, len(table.Headers))
			for i, col := range table.Headers {
				field := "-"
				if key, ok := suggested.Target(col); ok {
					field = string(key)
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), col, field})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rows, %d columns\n\n", filepath.Base(args[0]), table.Len(), len(table.Headers))
			if err := printTable(out, []string{"#", "COLUMN", "FIELD"}, rows); err != nil {
				return err
			}
			if !suggested.IsComplete() {
				fmt.Fprintln(out, "\nName columns are not mapped; provide a mapping file with --mapping.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&writeMapping, "write-mapping", "", "Write the suggested mapping to this YAML file")
	return cmd
}
