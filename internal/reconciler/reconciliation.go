package reconciler

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"taarcom-commissions/pkg/errors"

	"github.com/shopspring/decimal"
)

// Working file names.
const (
	RunningPrefix  = "Running Commissions"
	FixPrefix      = "Entries Need Fixing"
	MasterFile     = "Commissions Master.xlsx"
	FileDateLayout = "01-02-2006"
)

var hundred = decimal.NewFromInt(100)

// Config holds the commission settings shared by the jobs.
type Config struct {
	// SalesRate is the share of Actual Comm Paid paid out as sales commission.
	SalesRate decimal.Decimal

	// DefaultCMSplit replaces an empty or zero CM Split, in percent.
	DefaultCMSplit decimal.Decimal

	// InvoiceYearWindow is how many years before the current one an invoice
	// date may fall in and still be promoted.
	InvoiceYearWindow int

	// MaxLookupAgeDays retires Lookup Master entries unused for longer.
	MaxLookupAgeDays int

	// RevenueQuarters is how many of the latest Master quarters feed the
	// revenue reports.
	RevenueQuarters int

	RefreshLastUsed  bool
	RootCustomerHint bool

	Now   func() time.Time
	NewID func() string
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		SalesRate:         decimal.RequireFromString("0.45"),
		DefaultCMSplit:    decimal.NewFromInt(20),
		InvoiceYearWindow: 1,
		MaxLookupAgeDays:  720,
		RevenueQuarters:   5,
		RefreshLastUsed:   true,
		RootCustomerHint:  true,
		Now:               time.Now,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.SalesRate.IsPositive() || c.SalesRate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "commission.sales_rate", c.SalesRate.String(),
			fmt.Errorf("must be in (0, 1]"))
	}
	if c.DefaultCMSplit.IsNegative() || c.DefaultCMSplit.GreaterThan(hundred) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "commission.default_cm_split", c.DefaultCMSplit.String(),
			fmt.Errorf("must be in [0, 100]"))
	}
	if c.InvoiceYearWindow < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "merge.invoice_year_window", c.InvoiceYearWindow,
			fmt.Errorf("must not be negative"))
	}
	if c.MaxLookupAgeDays <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "lookups.max_age_days", c.MaxLookupAgeDays,
			fmt.Errorf("must be positive"))
	}
	if c.RevenueQuarters <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "close.revenue_quarters", c.RevenueQuarters,
			fmt.Errorf("must be positive"))
	}
	if c.Now == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "clock", nil, nil)
	}
	return nil
}

// Today returns the configured clock's date at midnight UTC.
func (c *Config) Today() time.Time {
	now := c.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Dirs is the shared directory tree.
type Dirs struct {
	Lookups  string
	Working  string
	Reports  string
	Insights string
}

// RunningCommissionsName is the file name of a Running Commissions workbook
// minted on day.
func RunningCommissionsName(day time.Time) string {
	return fmt.Sprintf("%s %s.xlsx", RunningPrefix, day.Format(FileDateLayout))
}

// FixPath derives the Entries Need Fixing twin of a Running Commissions
// path. Names without the Running Commissions prefix get the fix prefix
// prepended.
func FixPath(runningPath string) string {
	dir, base := filepath.Split(runningPath)
	if strings.Contains(base, RunningPrefix) {
		return filepath.Join(dir, strings.Replace(base, RunningPrefix, FixPrefix, 1))
	}
	return filepath.Join(dir, FixPrefix+" "+base)
}

// FileSummary is one input file's line in a job summary.
type FileSummary struct {
	Name      string          `json:"name"`
	Principal string          `json:"principal,omitempty"`
	Rows      int             `json:"rows"`
	Total     decimal.Decimal `json:"total_commissions"`
	Status    string          `json:"status"`
	Detail    string          `json:"detail,omitempty"`
}

// File statuses in a summary.
const (
	FileAdded     = "added"
	FileDuplicate = "duplicate"
	FileFailed    = "failed"
)

// JobSummary is what a job reports on completion.
type JobSummary struct {
	Job       string        `json:"job"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Files []FileSummary `json:"files,omitempty"`

	RowsAdded       int `json:"rows_added"`
	FixAdded        int `json:"fix_added"`
	Promoted        int `json:"promoted"`
	FixPending      int `json:"fix_pending"`
	LookupRefreshed int `json:"lookup_refreshed"`
	LookupAdded     int `json:"lookup_added"`
	Quarantined     int `json:"quarantined"`

	CommMonth       string          `json:"comm_month,omitempty"`
	ActualCommTotal decimal.Decimal `json:"actual_comm_total"`

	Outputs []string           `json:"outputs,omitempty"`
	Reports []string           `json:"reports,omitempty"`
	Issues  []*errors.RowIssue `json:"issues,omitempty"`
}

// NewJobSummary starts a summary for job
func NewJobSummary(job string) *JobSummary {
	return &JobSummary{Job: job, StartedAt: time.Now()}
}

// Finish stamps the summary's duration.
func (s *JobSummary) Finish() *JobSummary {
	s.Duration = time.Since(s.StartedAt)
	return s
}
