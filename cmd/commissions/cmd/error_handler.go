package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer) *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     out,
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if commissionErr, ok := errors.AsCommissionError(err); ok {
		return h.handleCommissionError(commissionErr)
	}

	return h.handleGenericError(err)
}

// handleCommissionError prints a CommissionError with its context
func (h *CLIErrorHandler) handleCommissionError(err *errors.CommissionError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range err.ContextKeys() {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if path, ok := err.Context["file_path"].(string); ok && err.Code == errors.CodeFileNotFound {
		if similar := similarFiles(path); len(similar) > 0 {
			fmt.Fprintf(h.out, "\nSimilar files found:\n")
			for _, name := range similar {
				fmt.Fprintf(h.out, "  - %s\n", name)
			}
		}
	}

	fmt.Fprintf(h.out, "\n%s\n", getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles errors that carry no category
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check the permissions of the shared directories\n")
		return 2
	}

	if isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// cobra reports flag and argument problems as plain errors
	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'commissions --help' for usage.\n")
	return 1
}

// getCategoryHelp returns category-specific help text
func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check the file exists in the configured Lookups, Working or Reports directory
• Close any workbook that is open in a spreadsheet application
• Ensure you have permission to read and write the shared directories`

	case errors.CategorySchema:
		return `Schema error help:
• Compare the file's header row with the required columns listed above
• Add missing aliases to fieldMappings.xlsx in the Lookups directory
• Add new principal codes to principalList.xlsx`

	case errors.CategoryParse:
		return `Parse error help:
• Remove text from dollar, percent and count columns
• Save legacy workbooks as .xlsx if they cannot be read
• Save CSV reports as UTF-8 or Windows-1252 text`

	case errors.CategoryValidation:
		return `Validation error help:
• Check the rows named above in Entries Need Fixing
• Invoice dates must be real dates in the current or prior year
• Every fixed row must keep its Unique ID`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and COMMISSIONS_ environment variables
• Verify configuration file syntax if using --config
• Use 'commissions <command> --help' to see all available options`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Nothing was written; the inputs are unchanged
• Check that no rows were added or removed from Running Commissions by hand
• A Running Commissions can only be closed into the Master once`

	default:
		return `For more help:
• Use 'commissions --help' for general help
• Use 'commissions <command> --help' for command-specific help
• Run again with --verbose for the underlying error`
	}
}

// Error detection helpers

func isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}

// similarFiles lists up to three files next to path whose names share its
// first three letters.
func similarFiles(path string) []string {
	baseName := filepath.Base(path)
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil || baseName == "" {
		return nil
	}
	prefix := strings.ToLower(baseName[:min(len(baseName), 3)])
	var similar []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.Contains(strings.ToLower(entry.Name()), prefix) {
			similar = append(similar, entry.Name())
		}
	}
	return similar[:min(len(similar), 3)]
}
