package cmd

import (
	"context"
	"fmt"

	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var mergeRunning string

// mergeCmd represents the merge command
var mergeCmd = &cobra.Command{
	Use:   "merge [running commissions]",
	Short: "Fold fixed rows back into Running Commissions",
	Long: `Merge reads the Entries Need Fixing workbook that shares the Running
Commissions date stamp, promotes every completed row by its Unique ID and
computes the salesperson commissions of the promoted rows.

The Running Commissions, the fix workbook and the Lookup Master are saved
together; when any of them is open in another program nothing is written.

Examples:
  commissions merge "Working/Running Commissions 04-20-2024.xlsx"
  commissions merge --running "Working/Running Commissions 04-20-2024.xlsx" --progress`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: validateMergeFlags,
	RunE:    runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVarP(&mergeRunning, "running", "r", "", "Running Commissions workbook (or pass it as the argument)")
}

func mergeRunningPath(args []string) string {
	if mergeRunning != "" {
		return mergeRunning
	}
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

func validateMergeFlags(cmd *cobra.Command, args []string) error {
	path := mergeRunningPath(args)
	if path == "" {
		return errors.ValidationError(errors.CodeMissingField, "running commissions path", nil, nil).
			WithSuggestion("Pass the Running Commissions workbook whose fixes should be merged")
	}
	return validateFileExists(path, "running commissions")
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, err := loadJobEnv("merge")
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

	path := mergeRunningPath(args)
	if viper.GetBool("verbose") {
		fmt.Fprintf(cmd.ErrOrStderr(), "Merging %s into %s\n", reconciler.FixPath(path), path)
	}

	summary, err := orchestrator.Merge(ctx, &reconciler.MergeRequest{RunningPath: path})
	if showProgress {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}
	return writeSummary(cmd, env, summary)
}
