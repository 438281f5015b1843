// Package reporter builds the quarter-close reports and prints job summaries.
//
// The quarter close groups the historical dataset by salesperson and by
// principal, emits per-salesperson revenue and commission workbooks and a
// combined revenue workbook with flattened pivot summaries, then folds
// Running Commissions into the Commissions Master and teaches the Lookup
// Master the attributions it observed.
//
// Job summaries can be printed as:
//   - Console: human-readable text for the terminal
//   - JSON: structured data for scripts
//   - CSV: one line per input file and per row issue
//
// Example usage:
//
//	job, err := reporter.NewCloseJob(config, dirs)
//	summary, err := job.Run(ctx, &reporter.CloseRequest{RunningPath: path})
//
//	generator, _ := reporter.NewReportGenerator(nil)
//	generator.GenerateReport(summary, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/pkg/errors"
)

// OutputFormat represents the supported summary output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for summary output
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeFiles   bool `json:"include_files"`
	IncludeOutputs bool `json:"include_outputs"`
	IncludeIssues  bool `json:"include_issues"`

	// MaxIssues limits the issues listed on the console; 0 lists all.
	MaxIssues int `json:"max_issues"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:         FormatConsole,
		IncludeFiles:   true,
		IncludeOutputs: true,
		IncludeIssues:  true,
		MaxIssues:      20,
		CSVDelimiter:   ',',
		CSVHeaders:     true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxIssues < 0 {
		return fmt.Errorf("max issues must not be negative, got %d", c.MaxIssues)
	}
	return nil
}

// ReportGenerator prints job summaries in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes the summary of a job to writer
func (rg *ReportGenerator) GenerateReport(summary *reconciler.JobSummary, writer io.Writer) error {
	if summary == nil {
		return fmt.Errorf("job summary cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(summary, writer)
	case FormatJSON:
		return rg.generateJSONReport(summary, writer)
	case FormatCSV:
		return rg.generateCSVReport(summary, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// errWriter keeps the first write error so console output can be checked once.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	ew.err = err
	return n, err
}

func (rg *ReportGenerator) generateConsoleReport(s *reconciler.JobSummary, out io.Writer) error {
	writer := &errWriter{w: out}
	fmt.Fprintf(writer, "%s SUMMARY\n", strings.ToUpper(s.Job))
	fmt.Fprintf(writer, "Started:  %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration: %v\n\n", s.Duration.Round(time.Millisecond))

	fmt.Fprintf(writer, "=== TOTALS ===\n")
	rg.printTotals(s, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeFiles && len(s.Files) > 0 {
		fmt.Fprintf(writer, "=== FILES ===\n")
		rg.printFiles(s.Files, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeOutputs && len(s.Outputs) > 0 {
		fmt.Fprintf(writer, "=== WRITTEN ===\n")
		for _, p := range s.Outputs {
			fmt.Fprintf(writer, "  %s\n", p)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeIssues && len(s.Issues) > 0 {
		fmt.Fprintf(writer, "=== ROW ISSUES ===\n")
		fmt.Fprintf(writer, "%s\n", errors.FormatIssuesForUser(s.Issues, rg.config.MaxIssues))
	}
	return writer.err
}

func (rg *ReportGenerator) generateJSONReport(s *reconciler.JobSummary, writer io.Writer) error {
	output := *s
	if !rg.config.IncludeFiles {
		output.Files = nil
	}
	if !rg.config.IncludeOutputs {
		output.Outputs = nil
		output.Reports = nil
	}
	if !rg.config.IncludeIssues {
		output.Issues = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&output)
}

func (rg *ReportGenerator) generateCSVReport(s *reconciler.JobSummary, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{"Type", "Name", "Principal", "Rows", "Total", "Status", "Detail"}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	if rg.config.IncludeFiles {
		for _, f := range s.Files {
			record := []string{"File", f.Name, f.Principal, strconv.Itoa(f.Rows), f.Total.StringFixed(2), f.Status, f.Detail}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write file record: %w", err)
			}
		}
	}

	if rg.config.IncludeOutputs {
		for _, p := range s.Outputs {
			if err := csvWriter.Write([]string{"Output", filepath.Base(p), "", "", "", "written", p}); err != nil {
				return fmt.Errorf("failed to write output record: %w", err)
			}
		}
	}

	if rg.config.IncludeIssues {
		for _, issue := range s.Issues {
			record := []string{"Issue", issue.File, "", strconv.Itoa(issue.Row), "", string(issue.Kind), issue.String()}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write issue record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) printTotals(s *reconciler.JobSummary, writer io.Writer) {
	switch s.Job {
	case "ingest":
		fmt.Fprintf(writer, "Rows Added:        %d\n", s.RowsAdded)
		fmt.Fprintf(writer, "Sent to Fix:       %d\n", s.FixAdded)
		fmt.Fprintf(writer, "Fix Pending:       %d\n", s.FixPending)
		fmt.Fprintf(writer, "Lookups Refreshed: %d\n", s.LookupRefreshed)
	case "merge":
		fmt.Fprintf(writer, "Promoted:          %d\n", s.Promoted)
		fmt.Fprintf(writer, "Fix Pending:       %d\n", s.FixPending)
		fmt.Fprintf(writer, "Quarantined:       %d\n", s.Quarantined)
	case "close":
		if s.CommMonth != "" {
			fmt.Fprintf(writer, "Comm Month:        %s\n", s.CommMonth)
		}
		fmt.Fprintf(writer, "Rows Closed:       %d\n", s.RowsAdded)
		fmt.Fprintf(writer, "Reports:           %d\n", len(s.Reports))
		fmt.Fprintf(writer, "Lookups Learned:   %d\n", s.LookupAdded)
		fmt.Fprintf(writer, "Quarantined:       %d\n", s.Quarantined)
	}
	fmt.Fprintf(writer, "Actual Comm Paid:  %s\n", s.ActualCommTotal.StringFixed(2))
	fmt.Fprintf(writer, "Row Issues:        %d\n", len(s.Issues))
}

func (rg *ReportGenerator) printFiles(files []reconciler.FileSummary, writer io.Writer) {
	for i, f := range files {
		fmt.Fprintf(writer, "  %d. %s [%s]", i+1, f.Name, f.Status)
		if f.Principal != "" {
			fmt.Fprintf(writer, " %s", f.Principal)
		}
		if f.Status == reconciler.FileAdded {
			fmt.Fprintf(writer, ", %d rows, %s", f.Rows, f.Total.StringFixed(2))
		}
		if f.Detail != "" {
			fmt.Fprintf(writer, " - %s", f.Detail)
		}
		fmt.Fprintf(writer, "\n")
	}
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
