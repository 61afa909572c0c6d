package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/memberimport/internal/core"
)

func newPreviewCmd() *cobra.Command {
	var (
		mappingPath string
		rows        int
	)

	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Transform a file without submitting it",
		Long: "Apply a column mapping to FILE and report the records that would be submitted\n" +
			"and the rows that would be rejected. Without --mapping the suggested mapping is used.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, table, err := readSource(args[0])
			if err != nil {
				return err
			}
			assignments, err := resolveMapping(mappingPath, table.Headers)
			if err != nil {
				return err
			}

			svc := core.NewService(nil, nil, core.ServiceConfig{PreviewRows: rows})
			result, err := svc.Preview(cmd.Context(), filepath.Base(args[0]), data, assignments)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rows, %d valid, %d rejected\n",
				result.FileName, result.RowCount, result.ValidCount, result.RejectedRows)

			if len(result.Sample) > 0 {
				fmt.Fprintln(out)
				sample := make([][]string, len(result.Sample))
				for i, rec := range result.Sample {
					id := rec.Identity()
					sample[i] = []string{strconv.Itoa(rec.Row()), id.FirstName, id.LastName, id.Email}
				}
				if err := printTable(out, []string{"ROW", "FIRST NAME", "LAST NAME", "EMAIL"}, sample); err != nil {
					return err
				}
			}

			if len(result.Errors) > 0 {
				fmt.Fprintln(out)
				errs := make([][]string, len(result.Errors))
				for i, v := range result.Errors {
					errs[i] = []string{strconv.Itoa(v.Row), v.Field, v.Message}
				}
				return printTable(out, []string{"ROW", "FIELD", "ERROR"}, errs)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mappingPath, "mapping", "m", "", "YAML mapping file (default: suggested mapping)")
	cmd.Flags().IntVar(&rows, "rows", core.DefaultPreviewRows, "Number of sample records to show")
	return cmd
}
