package cmd

import (
	"fmt"
	"os"

	"taarcom-commissions/cmd/commissions/config"
	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/internal/reporter"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	envFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "commissions",
	Short: "Sales commission pipeline",
	Long: `Commissions turns vendor commission reports into attributed ledgers and
quarterly salesperson reports.

A quarter runs in three steps against the shared Lookups, Working and
Reports directories:
  ingest  canonicalize raw reports and attribute them via the Lookup Master
  merge   fold the rows fixed in Entries Need Fixing back into Running Commissions
  close   book the quarter into the Commissions Master and build the reports

Examples:
  commissions ingest "ABR April.xlsx" "Mill-Max April.xls"
  commissions ingest --running "Working/Running Commissions 04-20-2024.xlsx" "ABR May.xlsx"
  commissions merge "Working/Running Commissions 04-20-2024.xlsx"
  commissions close --running "Working/Running Commissions 04-20-2024.xlsx"
  commissions close --output-format json`,
	Version:           getVersionString(),
	PersistentPreRunE: initConfig,
	SilenceErrors:     true,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional, YAML/TOML/JSON)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	flags.String("lookups", "", "lookups directory (default \"Lookups\")")
	flags.String("working", "", "working directory holding the Master and Running Commissions (default \"Working\")")
	flags.String("reports", "", "reports directory (default \"Reports\")")
	flags.String("insights", "", "directory for summary files given without a path (default \"Insights\")")

	flags.StringP("output-format", "f", "console", "summary format: console, json, csv")
	flags.StringP("output-file", "o", "", "summary file (default: stdout)")
	flags.Bool("progress", false, "show progress indicators")

	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.String("log-output", "stderr", "log output: stderr, stdout, file")
	flags.String("log-file", "", "log file when --log-output=file")

	bindings := map[string]string{
		config.KeyVerbose:      "verbose",
		config.KeyLookupsDir:   "lookups",
		config.KeyWorkingDir:   "working",
		config.KeyReportsDir:   "reports",
		config.KeyInsightsDir:  "insights",
		config.KeyOutputFormat: "output-format",
		config.KeyOutputFile:   "output-file",
		"progress":             "progress",
		config.KeyLogLevel:     "log-level",
		config.KeyLogFormat:    "log-format",
		config.KeyLogOutput:    "log-output",
		config.KeyLogFile:      "log-file",
	}
	for key, flag := range bindings {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// initConfig reads the dotenv file, the config file and the environment, and
// installs the configured logger.
func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	if err := config.ReadConfigFile(viper.GetViper(), cfgFile); err != nil {
		return err
	}
	config.BindEnv(viper.GetViper())

	log, err := logger.NewLogger(config.LoggerConfig(viper.GetViper()))
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", viper.GetString(config.KeyLogLevel), err)
	}
	logger.SetGlobalLogger(log)

	if viper.GetBool(config.KeyVerbose) && viper.ConfigFileUsed() != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", viper.ConfigFileUsed())
	}
	return nil
}

// jobEnv is what every job needs from the configuration.
type jobEnv struct {
	config *reconciler.Config
	dirs   reconciler.Dirs
	logger logger.Logger
}

func loadJobEnv(job string) (*jobEnv, error) {
	log := logger.GetGlobalLogger().WithComponent("cli").WithField("job", job)

	commission, err := config.CommissionConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, ".", err)
	}
	dirs := config.ResolveDirs(viper.GetViper(), cwd, log)

	log.WithFields(logger.Fields{
		"lookups": dirs.Lookups,
		"working": dirs.Working,
		"reports": dirs.Reports,
	}).Debug("Resolved directories")

	return &jobEnv{config: commission, dirs: dirs, logger: log}, nil
}

// progressPrinter prints orchestrator progress on one line of stderr.
func progressPrinter(cmd *cobra.Command) reconciler.ProgressCallback {
	return func(progress *reconciler.JobProgress) {
		fmt.Fprintf(cmd.ErrOrStderr(), "\r[%d/%d] %s (%.1f%% complete)",
			progress.CompletedSteps, progress.TotalSteps,
			progress.CurrentStep, progress.PercentComplete)
	}
}

// writeSummary prints the job summary in the configured format, to stdout or
// to the summary file.
func writeSummary(cmd *cobra.Command, env *jobEnv, summary *reconciler.JobSummary) error {
	reportConfig, err := config.ReportConfig(viper.GetString(config.KeyOutputFormat))
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, env.logger)
	if err != nil {
		return err
	}

	output := cmd.OutOrStdout()
	if path := config.OutputPath(viper.GetString(config.KeyOutputFile), env.dirs); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		defer file.Close()
		output = file
		env.logger.WithField("file", path).Info("Writing job summary")
	}

	return generator.GenerateReportSafely(summary, output)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
