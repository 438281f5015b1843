package cmd

import (
	"context"
	"fmt"

	"taarcom-commissions/internal/reporter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var closeRunning string

// closeCmd represents the close command
var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the quarter and build the salesperson reports",
	Long: `Close stamps every Running Commissions row with the next Comm Month,
settles the commissions of attributed rows, appends the quarter to the
Commissions Master and writes the revenue and commission reports of every
salesperson. Attributions learned from the quarter are added to the Lookup
Master and entries unused for too long are moved to Quarantined Lookups.

The Master is backed up before it is changed. A Running Commissions whose
files are already in the Master is refused.

Without --running the reports are rebuilt from the latest Comm Month in the
Commissions Master and nothing else is written.

Examples:
  commissions close --running "Working/Running Commissions 04-20-2024.xlsx"
  commissions close`,
	Args:    cobra.NoArgs,
	PreRunE: validateCloseFlags,
	RunE:    runClose,
}

func init() {
	rootCmd.AddCommand(closeCmd)

	closeCmd.Flags().StringVarP(&closeRunning, "running", "r", "", "Running Commissions workbook to close (default: rebuild reports only)")
}

func validateCloseFlags(cmd *cobra.Command, args []string) error {
	if closeRunning == "" {
		return nil
	}
	return validateFileExists(closeRunning, "running commissions")
}

func runClose(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, err := loadJobEnv("close")
	if err != nil {
		return err
	}

	job, err := reporter.NewCloseJob(env.config, env.dirs)
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		if closeRunning == "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Rebuilding reports from %s\n", job.MasterPath())
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Closing %s into %s\n", closeRunning, job.MasterPath())
		}
	}

	summary, err := job.Run(ctx, &reporter.CloseRequest{RunningPath: closeRunning})
	if err != nil {
		return err
	}
	return writeSummary(cmd, env, summary)
}
