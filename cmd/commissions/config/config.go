package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/internal/reporter"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "COMMISSIONS"

// Configuration keys.
const (
	KeyLookupsDir        = "dirs.lookups"
	KeyWorkingDir        = "dirs.working"
	KeyReportsDir        = "dirs.reports"
	KeyInsightsDir       = "dirs.insights"
	KeySalesRate         = "commission.sales_rate"
	KeyDefaultCMSplit    = "commission.default_cm_split"
	KeyInvoiceYearWindow = "merge.invoice_year_window"
	KeyMaxLookupAgeDays  = "lookups.max_age_days"
	KeyRefreshLastUsed   = "lookups.refresh_last_used"
	KeyRootCustomerHint  = "lookups.root_customer_hint"
	KeyRevenueQuarters   = "close.revenue_quarters"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyLogOutput         = "log.output"
	KeyLogFile           = "log.file"
	KeyOutputFormat      = "output.format"
	KeyOutputFile        = "output.file"
	KeyVerbose           = "verbose"
)

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	defaults := reconciler.DefaultConfig()
	v.SetDefault(KeyLookupsDir, "Lookups")
	v.SetDefault(KeyWorkingDir, "Working")
	v.SetDefault(KeyReportsDir, "Reports")
	v.SetDefault(KeyInsightsDir, "Insights")
	v.SetDefault(KeySalesRate, defaults.SalesRate.String())
	v.SetDefault(KeyDefaultCMSplit, defaults.DefaultCMSplit.String())
	v.SetDefault(KeyInvoiceYearWindow, defaults.InvoiceYearWindow)
	v.SetDefault(KeyMaxLookupAgeDays, defaults.MaxLookupAgeDays)
	v.SetDefault(KeyRefreshLastUsed, defaults.RefreshLastUsed)
	v.SetDefault(KeyRootCustomerHint, defaults.RootCustomerHint)
	v.SetDefault(KeyRevenueQuarters, defaults.RevenueQuarters)
	v.SetDefault(KeyLogLevel, string(logger.InfoLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
	v.SetDefault(KeyLogOutput, string(logger.StderrOutput))
	v.SetDefault(KeyOutputFormat, string(reporter.FormatConsole))
}

// BindEnv makes every key readable from COMMISSIONS_<SECTION>_<NAME>.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads path into the process environment when it exists.
// Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, ".env", path, err)
	}
	return nil
}

// ReadConfigFile reads an explicit config file into v.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", path, err).
			WithSuggestion("Check the file exists and is valid YAML, TOML or JSON")
	}
	return nil
}

// LoggerConfig builds the logger configuration from the log.* keys.
func LoggerConfig(v *viper.Viper) *logger.Config {
	config := &logger.Config{
		Level:  logger.Level(strings.ToLower(v.GetString(KeyLogLevel))),
		Format: logger.Format(strings.ToLower(v.GetString(KeyLogFormat))),
		Output: logger.Output(strings.ToLower(v.GetString(KeyLogOutput))),
		File:   v.GetString(KeyLogFile),
	}
	if v.GetBool(KeyVerbose) {
		config.Level = logger.DebugLevel
	}
	return config
}

// CommissionConfig builds the job settings from the commission, merge,
// lookups and close keys.
func CommissionConfig(v *viper.Viper) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()

	rate, err := decimalKey(v, KeySalesRate)
	if err != nil {
		return nil, err
	}
	split, err := decimalKey(v, KeyDefaultCMSplit)
	if err != nil {
		return nil, err
	}
	config.SalesRate = rate
	config.DefaultCMSplit = split
	config.InvoiceYearWindow = v.GetInt(KeyInvoiceYearWindow)
	config.MaxLookupAgeDays = v.GetInt(KeyMaxLookupAgeDays)
	config.RefreshLastUsed = v.GetBool(KeyRefreshLastUsed)
	config.RootCustomerHint = v.GetBool(KeyRootCustomerHint)
	config.RevenueQuarters = v.GetInt(KeyRevenueQuarters)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.ConfigurationError(errors.CodeInvalidConfig, key, raw, err)
	}
	return d, nil
}

// ResolveDirs resolves the directory tree relative to cwd. A directory that
// does not exist falls back to cwd with a warning.
func ResolveDirs(v *viper.Viper, cwd string, log logger.Logger) reconciler.Dirs {
	resolve := func(key string) string {
		return ResolveDir(key, v.GetString(key), cwd, log)
	}
	return reconciler.Dirs{
		Lookups:  resolve(KeyLookupsDir),
		Working:  resolve(KeyWorkingDir),
		Reports:  resolve(KeyReportsDir),
		Insights: resolve(KeyInsightsDir),
	}
}

// ResolveDir returns configured as an absolute directory, or cwd when it is
// empty or is not a reachable directory.
func ResolveDir(key, configured, cwd string, log logger.Logger) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return cwd
	}
	path := configured
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		if log != nil {
			log.WithFields(logger.Fields{
				"key":       key,
				"directory": path,
			}).Warn("Directory not found, using the current directory")
		}
		return cwd
	}
	return path
}

// ReportConfig creates a summary configuration for the named output format.
func ReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(strings.TrimSpace(format)))

	switch config.Format {
	case reporter.FormatConsole:
		config.IncludeFiles = true
		config.IncludeOutputs = true
		config.IncludeIssues = true
	case reporter.FormatJSON:
		config.IncludeFiles = true
		config.IncludeOutputs = true
		config.IncludeIssues = true
		config.MaxIssues = 0
	case reporter.FormatCSV:
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeFiles = true
		config.IncludeOutputs = true
		config.IncludeIssues = true
		config.MaxIssues = 0
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyOutputFormat, format,
			fmt.Errorf("valid formats: console, json, csv"))
	}
	return config, nil
}

// OutputPath places a relative summary file name in the insights directory.
func OutputPath(name string, dirs reconciler.Dirs) string {
	if name == "" || filepath.IsAbs(name) || filepath.Dir(name) != "." {
		return name
	}
	return filepath.Join(dirs.Insights, name)
}
