package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/memberimport/internal/core"
)

func newTemplateCmd() *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the member import template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := core.TemplateFormat(format)
			data, err := core.Template(f)
			if err != nil {
				return err
			}
			if out == "" {
				out = core.TemplateFileName(f)
			}
			if out == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", string(core.TemplateCSV), "Template format: csv or xlsx")
	cmd.Flags().StringVarP(&out, "file", "f", "", "Output path, or - for stdout (default: member_import_template.<format>)")
	return cmd
}
