// Package cli implements the memberimport command-line tool.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/memberimport/internal/core"
	"github.com/JonMunkholm/memberimport/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]any{"error": err.Error()}
			if msg := core.MapError(err); msg.Code != "" {
				errObj["code"] = msg.Code
				errObj["message"] = msg.Message
			}
			var mie *core.MappingIncompleteError
			if errors.As(err, &mie) {
				errObj["missing"] = mie.Missing
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		output    string
		logLevel  string
		logFormat string
		envFile   string
	)

	rootCmd := &cobra.Command{
		Use:           "memberimport",
		Short:         "Bulk member import tool",
		Long:          "Inspect, preview and import member spreadsheets (CSV or XLSX) into the member service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}

			// A missing default .env is fine; an explicit one must exist.
			if cmd.Flags().Changed("env-file") {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			} else {
				_ = godotenv.Load()
			}

			if !cmd.Flags().Changed("log-level") {
				if v := os.Getenv("LOG_LEVEL"); v != "" {
					logLevel = v
				}
			}
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), logLevel, logFormat))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file with REMOTE_* settings")

	rootCmd.AddCommand(
		newInspectCmd(),
		newPreviewCmd(),
		newRunCmd(),
		newTemplateCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "memberimport version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
