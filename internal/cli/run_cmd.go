package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/memberimport/internal/core"
	"github.com/JonMunkholm/memberimport/internal/remote"
)

type runOptions struct {
	mappingPath    string
	organisationID string
	branchID       string
	remoteURL      string
	apiKey         string
	createPath     string
	healthPath     string
	timeout        time.Duration
	delay          time.Duration
	skipDuplicates bool
	updateExisting bool
	failuresPath   string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Import the members in a file",
		Long: "Parse FILE, apply the column mapping and create each valid row in the member service,\n" +
			"one at a time. Rows that fail validation are reported and not submitted.\n\n" +
			"The member service is read from --remote-url or REMOTE_BASE_URL, the key from\n" +
			"--api-key or REMOTE_API_KEY, and the organisation from --org or ORGANISATION_ID.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyRunEnv(cmd, &opts)
			if opts.organisationID == "" {
				return errors.New("organisation id is required: use --org or ORGANISATION_ID")
			}
			if opts.remoteURL == "" {
				return errors.New("member service URL is required: use --remote-url or REMOTE_BASE_URL")
			}

			data, table, err := readSource(args[0])
			if err != nil {
				return err
			}
			assignments, err := resolveMapping(opts.mappingPath, table.Headers)
			if err != nil {
				return err
			}

			client, err := remote.NewClient(remote.Config{
				BaseURL:    opts.remoteURL,
				APIKey:     opts.apiKey,
				Timeout:    opts.timeout,
				CreatePath: opts.createPath,
				HealthPath: opts.healthPath,
			})
			if err != nil {
				return err
			}

			svc := core.NewService(client, nil, core.ServiceConfig{
				SubmitDelay:   opts.delay,
				MaxConcurrent: 1,
			})
			fileName := filepath.Base(args[0])
			importID, err := svc.StartImport(cmd.Context(), core.ImportRequest{
				FileName: fileName,
				Data:     data,
				Mapping:  assignments,
				Policy:   core.ImportPolicy{SkipDuplicates: opts.skipDuplicates, UpdateExisting: opts.updateExisting},
				Scope:    core.Scope{OrganisationID: opts.organisationID, BranchID: opts.branchID},
			})
			if err != nil {
				return err
			}

			if progress, err := svc.SubscribeProgress(importID); err == nil {
				reportProgress(cmd, progress)
			}

			report, err := svc.GetResult(cmd.Context(), importID)
			if err != nil {
				return err
			}

			if opts.failuresPath != "" && (report.ErrorCount > 0 || len(report.ValidationErrors) > 0) {
				if err := writeFailuresFile(opts.failuresPath, report); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote failures to %s\n", opts.failuresPath)
			}

			if getOutputFormat(cmd) == "json" {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printReport(cmd, report)
			}

			if report.Failure != "" {
				return fmt.Errorf("import failed: %s", report.Failure)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.mappingPath, "mapping", "m", "", "YAML mapping file (default: suggested mapping)")
	f.StringVar(&opts.organisationID, "org", "", "Organisation the members are created in")
	f.StringVar(&opts.branchID, "branch", "", "Branch the members are created in")
	f.StringVar(&opts.remoteURL, "remote-url", "", "Member service base URL")
	f.StringVar(&opts.apiKey, "api-key", "", "Member service API key")
	f.StringVar(&opts.createPath, "create-path", "", "Create-member endpoint path (default: /api/members)")
	f.StringVar(&opts.healthPath, "health-path", "", "Health endpoint checked before the run")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per-request timeout")
	f.DurationVar(&opts.delay, "delay", core.DefaultSubmitDelay, "Pause between submissions")
	f.BoolVar(&opts.skipDuplicates, "skip-duplicates", false, "Record the intent to skip existing members")
	f.BoolVar(&opts.updateExisting, "update-existing", false, "Record the intent to update existing members")
	f.StringVar(&opts.failuresPath, "failures", "", "Write rejected rows to this CSV file")
	return cmd
}

// applyRunEnv fills options not given as flags from the environment.
func applyRunEnv(cmd *cobra.Command, opts *runOptions) {
	fromEnv := func(flag string, dst *string, keys ...string) {
		if cmd.Flags().Changed(flag) {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	fromEnv("org", &opts.organisationID, "ORGANISATION_ID")
	fromEnv("branch", &opts.branchID, "BRANCH_ID")
	fromEnv("remote-url", &opts.remoteURL, "REMOTE_BASE_URL", "MEMBER_API_URL")
	fromEnv("api-key", &opts.apiKey, "REMOTE_API_KEY", "MEMBER_API_KEY")
	fromEnv("create-path", &opts.createPath, "REMOTE_CREATE_PATH")
	fromEnv("health-path", &opts.healthPath, "REMOTE_HEALTH_PATH")
}

// reportProgress prints a line each time another tenth of the run completes.
func reportProgress(cmd *cobra.Command, ch <-chan core.RunProgress) {
	w := cmd.ErrOrStderr()
	last := -1
	for p := range ch {
		if p.Total == 0 {
			continue
		}
		if step := p.Percent() / 10; step > last {
			last = step
			fmt.Fprintf(w, "%3d%%  %d/%d submitted (%d failed)\n", p.Percent(), p.Completed, p.Total, p.Failed)
		}
	}
}

func printReport(cmd *cobra.Command, report *core.ImportReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", report.Summary, report.Duration().Round(time.Millisecond))
	if n := report.InvalidRows(); n > 0 {
		fmt.Fprintf(out, "%d %s failed validation and %s not submitted.\n",
			n, plural(n, "row", "rows"), plural(n, "was", "were"))
	}
	for _, r := range report.Failed() {
		fmt.Fprintf(out, "  row %d  %s: %s\n", r.Row, r.Identity.DisplayName(), r.Error)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func writeFailuresFile(path string, report *core.ImportReport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failures file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return core.WriteFailures(f, report)
}
