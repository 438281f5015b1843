package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"taarcom-commissions/internal/ingest"
	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the ingest command
var (
	ingestPrincipal string
	ingestRunning   string
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [raw report files...]",
	Short: "Canonicalize raw vendor reports and attribute them",
	Long: `Ingest reads raw commission reports from the principals, maps their columns
onto the canonical set and attributes every row through the Lookup Master
and the Distributor Map.

Attributed rows are appended to Running Commissions. Rows that could not be
attributed are also copied to Entries Need Fixing for manual repair. Files
already listed in Files Processed are skipped.

Without --running a new Running Commissions dated today is created in the
working directory.

The principal of every file is taken from --principal or, when that is not
given, inferred from the file name.

Examples:
  commissions ingest "ABR April.xlsx"
  commissions ingest --principal MIL "April invoices.xls"
  commissions ingest --running "Working/Running Commissions 04-20-2024.xlsx" "ABR May.xlsx"`,

	PreRunE: validateIngestFlags,
	RunE:    runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVarP(&ingestPrincipal, "principal", "p", "", "principal code applied to every file (default: inferred from the file name)")
	ingestCmd.Flags().StringVarP(&ingestRunning, "running", "r", "", "existing Running Commissions workbook to append to")
}

func validateIngestFlags(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && ingestRunning == "" {
		return errors.ValidationError(errors.CodeMissingField, "raw files", nil, nil).
			WithSuggestion("Pass at least one raw report, or --running to refresh an existing Running Commissions")
	}
	for i, path := range args {
		if err := validateFileExists(path, fmt.Sprintf("raw file %d", i+1)); err != nil {
			return err
		}
	}
	if ingestRunning != "" {
		if err := validateFileExists(ingestRunning, "running commissions"); err != nil {
			return err
		}
	}
	return nil
}

// ingestRequest pairs every raw file with the principal flag.
func ingestRequest(args []string, principal, running string) *reconciler.IngestRequest {
	code := strings.ToUpper(strings.TrimSpace(principal))
	req := &reconciler.IngestRequest{RunningPath: running}
	for _, path := range args {
		req.Inputs = append(req.Inputs, ingest.Input{Path: path, Principal: code})
	}
	return req
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, err := loadJobEnv("ingest")
	if err != nil {
		return err
	}

	orchestrator, err := reconciler.NewOrchestrator(env.config, env.dirs)
	if err != nil {
		return err
	}
	showProgress := viper.GetBool("progress")
	if showProgress {
		orchestrator.AddProgressCallback(progressPrinter(cmd))
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(cmd.ErrOrStderr(), "Ingesting %d file(s) into %s\n", len(args), runningLabel(ingestRunning))
	}

	summary, err := orchestrator.Ingest(ctx, ingestRequest(args, ingestPrincipal, ingestRunning))
	if showProgress {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}
	return writeSummary(cmd, env, summary)
}

func runningLabel(path string) string {
	if path == "" {
		return "a new Running Commissions"
	}
	return path
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithContext("description", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, filePath, nil).
			WithSuggestion(fmt.Sprintf("%s must be a file, not a directory", description))
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()

	return nil
}
