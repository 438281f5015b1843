package reconciler

import (
	"fmt"
	"strings"

	"taarcom-commissions/internal/ingest"
	"taarcom-commissions/internal/models"
	"taarcom-commissions/internal/parsers"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"

	"github.com/shopspring/decimal"
)

// Commission is a row's sales commission and its CM and design shares.
type Commission struct {
	Sales  decimal.Decimal
	CM     decimal.Decimal
	Design decimal.Decimal
}

// SplitCommission computes the commission on actual. The CM share is zero
// when the row has no CM salesperson; otherwise CM Split applies, with empty
// or zero meaning the default. Shares are rounded to cents and always add
// up to Sales.
func (c *Config) SplitCommission(actual decimal.Decimal, cmSales, cmSplit string) Commission {
	sales := actual.Mul(c.SalesRate).Round(2)
	split := decimal.Zero
	if strings.TrimSpace(cmSales) != "" {
		split = parsers.Split(cmSplit, c.DefaultCMSplit)
	}
	cm := sales.Mul(split).Div(hundred).Round(2)
	return Commission{Sales: sales, CM: cm, Design: sales.Sub(cm)}
}

// Apply writes the commission columns of row r.
func (cm Commission) Apply(t *models.Table, r int) {
	t.Set(models.ColSalesCommission, r, models.FormatMoney(cm.Sales))
	t.Set(models.ColCMSalesComm, r, models.FormatMoney(cm.CM))
	t.Set(models.ColDesignSalesComm, r, models.FormatMoney(cm.Design))
}

func validSplit(value string) bool {
	_, err := parsers.ParseSplit(value)
	return err == nil
}

// Ready reports whether fix row r is complete enough to promote: a tracked
// end customer and at least one salesperson code.
func Ready(t *models.Table, r int) bool {
	if strings.TrimSpace(t.Get(models.ColTEndCust, r)) == "" {
		return false
	}
	return models.IsInitials(t.Get(models.ColCMSales, r)) || models.IsInitials(t.Get(models.ColDesignSales, r))
}

// MergeResult is the outcome of a fix merge. Running and Fix are new tables;
// the inputs are not modified.
type MergeResult struct {
	Running  *models.Table
	Fix      *models.Table
	Promoted int
	Pending  int
	Total    decimal.Decimal
	Issues   *errors.IssueCollector
}

// MergeEngine promotes completed fix rows into Running Commissions.
type MergeEngine struct {
	config       *Config
	salespeople  map[string]bool
	preprocessor *FixPreprocessor
	logger       logger.Logger
}

// NewMergeEngine creates a merge engine. An empty salespeople set disables
// salesperson validation.
func NewMergeEngine(config *Config, salespeople map[string]bool) *MergeEngine {
	if config == nil {
		config = DefaultConfig()
	}
	return &MergeEngine{
		config:       config,
		salespeople:  salespeople,
		preprocessor: NewFixPreprocessor(nil),
		logger:       logger.GetGlobalLogger().WithComponent("merge"),
	}
}

// Merge promotes every ready fix row whose Unique ID names exactly one
// Running Commissions row. Rows that fail a check stay in the fix table and
// are reported as issues. The Actual Comm Paid total of Running Commissions
// must come out unchanged or the merge fails.
func (m *MergeEngine) Merge(running, fix *models.Table) (*MergeResult, error) {
	result := &MergeResult{
		Running: running.Clone(),
		Fix:     fix.Clone(),
		Issues:  errors.NewIssueCollector(),
	}

	before, err := models.SumColumn(result.Running, models.ColActualCommPaid)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeNonNumeric,
			"Running Commissions has a non-numeric Actual Comm Paid").
			WithContext("column", models.ColActualCommPaid)
	}

	m.preprocessor.Preprocess(result.Fix)

	byID := make(map[string][]int)
	for r, id := range result.Running.Column(models.ColUniqueID) {
		byID[strings.TrimSpace(id)] = append(byID[strings.TrimSpace(id)], r)
	}

	promoted := make(map[int]bool)
	for r := 0; r < result.Fix.Len(); r++ {
		if !Ready(result.Fix, r) {
			result.Pending++
			continue
		}
		if m.promote(result, r, byID) {
			promoted[r] = true
			continue
		}
		result.Pending++
	}
	result.Fix.DeleteRows(promoted)
	result.Promoted = len(promoted)

	after, err := models.SumColumn(result.Running, models.ColActualCommPaid)
	if err != nil || !after.Equal(before) {
		if err == nil {
			err = fmt.Errorf("actual comm paid total moved from %s to %s", before.StringFixed(2), after.StringFixed(2))
		}
		m.logger.WithFields(logger.Fields{
			"before": before.StringFixed(2),
			"after":  after.StringFixed(2),
		}).Error("Merge would change the Actual Comm Paid total")
		return nil, errors.ReconciliationError(errors.CodeConservation, "fix merge", err).
			WithContext("pre_merge_total", before.StringFixed(2)).
			WithContext("post_merge_total", after.StringFixed(2))
	}
	result.Total = after

	m.logger.WithFields(logger.Fields{
		"promoted": result.Promoted,
		"pending":  result.Pending,
		"total":    after.StringFixed(2),
	}).Info("Fix merge completed")
	return result, nil
}

// promote settles fix row r and copies it over its Running Commissions twin.
func (m *MergeEngine) promote(result *MergeResult, r int, byID map[string][]int) bool {
	fix := result.Fix
	id := strings.TrimSpace(fix.Get(models.ColUniqueID, r))
	log := m.logger.WithField("unique_id", id)
	issue := func(kind errors.IssueKind, column, value, detail string) bool {
		result.Issues.Add(&errors.RowIssue{
			Kind:     kind,
			File:     fix.Get(models.ColSourceFile, r),
			UniqueID: id,
			Column:   column,
			Value:    value,
			Detail:   detail,
		})
		log.WithFields(logger.Fields{"column": column, "value": value}).Warn(detail)
		return false
	}

	for _, col := range []string{models.ColCMSales, models.ColDesignSales} {
		person := fix.Get(col, r)
		if person != "" && len(m.salespeople) > 0 && !m.salespeople[person] {
			return issue(errors.IssueUnknownSalesperson, col, person, "Salesperson is not in Salespeople Info")
		}
	}

	actual, err := models.ParseDecimal(fix.Get(models.ColActualCommPaid, r))
	if err != nil {
		return issue(errors.IssueNonNumeric, models.ColActualCommPaid, fix.Get(models.ColActualCommPaid, r),
			"Actual Comm Paid is not a number")
	}

	if split := fix.Get(models.ColCMSplit, r); !validSplit(split) {
		return issue(errors.IssueSplitOutOfRange, models.ColCMSplit, split, "CM Split must be one number from 0 to 100")
	}

	raw := fix.Get(models.ColInvoiceDate, r)
	invoiced, err := models.ParseDate(raw)
	if err != nil {
		return issue(errors.IssueDateUnparseable, models.ColInvoiceDate, raw, "Invoice date does not parse")
	}
	current := m.config.Now().Year()
	if y := invoiced.Year(); y > current || y < current-m.config.InvoiceYearWindow {
		return issue(errors.IssueDateOutOfWindow, models.ColInvoiceDate, raw,
			fmt.Sprintf("Invoice year %d is outside %d-%d", y, current-m.config.InvoiceYearWindow, current))
	}

	targets := byID[id]
	switch {
	case id == "" || len(targets) == 0:
		return issue(errors.IssueIdentityMissing, models.ColUniqueID, id, "No Running Commissions row has this Unique ID")
	case len(targets) > 1:
		return issue(errors.IssueIdentityDuplicated, models.ColUniqueID, id,
			fmt.Sprintf("%d Running Commissions rows share this Unique ID", len(targets)))
	}

	fix.Set(models.ColInvoiceDate, r, invoiced.Format(models.DateLayout))
	ingest.DeriveTemporal(fix, r)
	m.config.SplitCommission(actual, fix.Get(models.ColCMSales, r), fix.Get(models.ColCMSplit, r)).Apply(fix, r)

	target := targets[0]
	running := result.Running
	for _, col := range running.Columns() {
		if fix.HasColumn(col) {
			running.Set(col, target, fix.Get(col, r))
		}
	}
	log.Debug("Fix row promoted")
	return true
}
