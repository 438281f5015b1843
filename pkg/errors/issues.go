package errors

import (
	"fmt"
	"strings"
)

// IssueKind names a per-row degradation. Rows with an issue are left where
// they are and the job continues.
type IssueKind string

const (
	IssueDateUnparseable    IssueKind = "date_unparseable"
	IssueDateOutOfWindow    IssueKind = "date_out_of_window"
	IssueIdentityMissing    IssueKind = "identity_missing"
	IssueIdentityDuplicated IssueKind = "identity_duplicated"
	IssueUnknownSalesperson IssueKind = "unknown_salesperson"
	IssueNonNumeric         IssueKind = "non_numeric"
	IssueSplitOutOfRange    IssueKind = "split_out_of_range"
	IssueAmbiguousLookup    IssueKind = "ambiguous_lookup"
	IssueAmbiguousDist      IssueKind = "ambiguous_distributor"
	IssueDuplicateFile      IssueKind = "duplicate_file"
	IssueSkippedSheet       IssueKind = "skipped_sheet"
)

// RowIssue records a recoverable problem with a single row or sheet.
type RowIssue struct {
	Kind     IssueKind `json:"kind"`
	File     string    `json:"file,omitempty"`
	Sheet    string    `json:"sheet,omitempty"`
	Row      int       `json:"row,omitempty"`
	UniqueID string    `json:"unique_id,omitempty"`
	Column   string    `json:"column,omitempty"`
	Value    string    `json:"value,omitempty"`
	Detail   string    `json:"detail"`
}

func (i *RowIssue) String() string {
	var parts []string
	if i.File != "" {
		parts = append(parts, i.File)
	}
	if i.Sheet != "" {
		parts = append(parts, "sheet "+i.Sheet)
	}
	if i.Row > 0 {
		parts = append(parts, fmt.Sprintf("row %d", i.Row))
	}
	if i.UniqueID != "" {
		parts = append(parts, "id "+i.UniqueID)
	}
	if i.Column != "" {
		parts = append(parts, fmt.Sprintf("column '%s'", i.Column))
	}
	location := strings.Join(parts, ", ")
	if location == "" {
		return fmt.Sprintf("%s: %s", i.Kind, i.Detail)
	}
	return fmt.Sprintf("%s: %s (%s)", i.Kind, i.Detail, location)
}

// IssueCollector gathers row issues over the course of a job.
type IssueCollector struct {
	issues []*RowIssue
}

// NewIssueCollector creates an empty collector
func NewIssueCollector() *IssueCollector {
	return &IssueCollector{issues: make([]*RowIssue, 0)}
}

// Add appends an issue; nil is ignored.
func (c *IssueCollector) Add(issue *RowIssue) {
	if issue == nil {
		return
	}
	c.issues = append(c.issues, issue)
}

// HasIssues returns true if any issues have been collected
func (c *IssueCollector) HasIssues() bool {
	return len(c.issues) > 0
}

// Issues returns all collected issues in insertion order
func (c *IssueCollector) Issues() []*RowIssue {
	return c.issues
}

// Count returns the number of issues of the given kind
func (c *IssueCollector) Count(kind IssueKind) int {
	n := 0
	for _, issue := range c.issues {
		if issue.Kind == kind {
			n++
		}
	}
	return n
}

// ByKind returns issue counts grouped by kind
func (c *IssueCollector) ByKind() map[IssueKind]int {
	counts := make(map[IssueKind]int)
	for _, issue := range c.issues {
		counts[issue.Kind]++
	}
	return counts
}

// FormatIssuesForUser formats collected issues for the job summary, showing
// at most limit entries.
func FormatIssuesForUser(issues []*RowIssue, limit int) string {
	if len(issues) == 0 {
		return "No row issues"
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("%d row issue(s):", len(issues)))
	for i, issue := range issues {
		if limit > 0 && i >= limit {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(issues)-limit))
			break
		}
		lines = append(lines, "  - "+issue.String())
	}
	return strings.Join(lines, "\n")
}
