package reporter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"taarcom-commissions/internal/matcher"
	"taarcom-commissions/internal/models"
	"taarcom-commissions/internal/parsers"
	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/internal/workbook"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"

	"github.com/shopspring/decimal"
)

// Report tab names.
const (
	TabPivot      = "Pivot"
	TabPrincipals = "Principals"
	TabRawData    = "Raw Data"
)

var hundred = decimal.NewFromInt(100)

// Report is one generated workbook, named relative to the reports directory.
type Report struct {
	Name        string
	Salesperson string
	Tabs        []workbook.Tab
}

// CloseInput is the state a quarter close works on. None of it is modified.
type CloseInput struct {
	Running      *parsers.WorkingFile
	Master       *parsers.WorkingFile
	Accounts     *models.Table
	LookupMaster *models.Table
}

// CloseResult holds the updated tables and the reports of a quarter close.
type CloseResult struct {
	CommMonth    models.CommMonth
	Running      *models.Table
	Master       *models.Table
	MasterFiles  *models.Table
	LookupMaster *models.Table
	Reports      []Report
	Settled      int
	LookupAdded  int
	Total        decimal.Decimal
}

// Closer builds the quarter-close reports and the updated Commissions
// Master and Lookup Master in memory.
type Closer struct {
	config *reconciler.Config
	logger logger.Logger
}

// NewCloser creates a closer
func NewCloser(config *reconciler.Config) *Closer {
	if config == nil {
		config = reconciler.DefaultConfig()
	}
	return &Closer{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("close"),
	}
}

// Close stamps Running Commissions with the next commission month, settles
// commissions on attributed rows, builds the per-salesperson reports and
// folds Running Commissions into the Master. A Running Commissions whose
// files are already in the Master ledger is rejected.
func (c *Closer) Close(in *CloseInput) (*CloseResult, error) {
	today := c.config.Today()
	month := NextCommMonth(in.Master.Data, today)
	log := c.logger.WithField("comm_month", month.String())

	if overlap := models.LedgerOverlap(in.Running.Files, in.Master.Files); len(overlap) > 0 {
		err := errors.ReconciliationError(errors.CodeAlreadyClosed, "quarter close",
			fmt.Errorf("%d file(s) already closed", len(overlap))).
			WithContext("files", overlap)
		log.WithError(err).Error("Running Commissions already closed")
		return nil, err
	}

	result := &CloseResult{
		CommMonth:    month,
		Running:      in.Running.Data.Clone(),
		Master:       in.Master.Data.Clone(),
		MasterFiles:  in.Master.Files.Clone(),
		LookupMaster: in.LookupMaster.Clone(),
	}
	running := result.Running

	for r := 0; r < running.Len(); r++ {
		running.Set(models.ColCommMonth, r, month.String())
	}
	result.Settled = c.settle(running)

	result.Reports = c.buildReports(in.Master.Data, running, in.Accounts, month)
	result.LookupAdded = LearnAttributions(result.LookupMaster, running, today)

	stamp := today.Format(models.DateLayout)
	for r := 0; r < running.Len(); r++ {
		if strings.TrimSpace(running.Get(models.ColSalesReportDate, r)) == "" {
			running.Set(models.ColSalesReportDate, r, stamp)
		}
	}
	result.Master.Append(running)
	result.MasterFiles.Append(in.Running.Files)

	if total, err := models.SumColumn(running, models.ColActualCommPaid); err == nil {
		result.Total = total
	}

	log.WithFields(logger.Fields{
		"rows":         running.Len(),
		"settled":      result.Settled,
		"reports":      len(result.Reports),
		"lookup_added": result.LookupAdded,
	}).Info("Quarter close built")
	return result, nil
}

// Reports rebuilds the reports of the latest close from the Master alone:
// rows of the latest commission month play Running Commissions and the
// rest is history.
func (c *Closer) Reports(master, accounts *models.Table) ([]Report, models.CommMonth, error) {
	month, ok := MaxCommMonth(master)
	if !ok {
		return nil, month, errors.ValidationError(errors.CodeMissingField, models.ColCommMonth, nil,
			fmt.Errorf("the Commissions Master has no commission month")).
			WithSuggestion("Close a Running Commissions first")
	}
	latest := month.String()
	inMonth := func(r int) bool {
		m, ok := models.ParseCommMonth(master.Get(models.ColCommMonth, r))
		return ok && m.String() == latest
	}
	current := master.Filter(inMonth)
	history := master.Filter(func(r int) bool { return !inMonth(r) })

	c.logger.WithFields(logger.Fields{
		"comm_month": latest,
		"rows":       current.Len(),
	}).Info("Rebuilding reports from the Commissions Master")
	return c.buildReports(history, current, accounts, month), month, nil
}

// settle computes the split commission of attributed rows that have none.
// Ingest leaves Sales Commission at zero, so only the split columns mark a
// row as settled.
func (c *Closer) settle(running *models.Table) int {
	settled := 0
	for r := 0; r < running.Len(); r++ {
		if !reconciler.Ready(running, r) ||
			strings.TrimSpace(running.Get(models.ColCMSalesComm, r)) != "" ||
			strings.TrimSpace(running.Get(models.ColDesignSalesComm, r)) != "" {
			continue
		}
		actual, err := models.ParseDecimal(running.Get(models.ColActualCommPaid, r))
		if err != nil {
			c.logger.WithFields(logger.Fields{
				"unique_id": running.Get(models.ColUniqueID, r),
				"column":    models.ColActualCommPaid,
			}).Warn("Row left unsettled, Actual Comm Paid is not a number")
			continue
		}
		if _, err := parsers.ParseSplit(running.Get(models.ColCMSplit, r)); err != nil {
			c.logger.WithFields(logger.Fields{
				"unique_id": running.Get(models.ColUniqueID, r),
				"column":    models.ColCMSplit,
				"value":     running.Get(models.ColCMSplit, r),
			}).Warn("Row left unsettled, CM Split is not a number from 0 to 100")
			continue
		}
		c.config.SplitCommission(actual, running.Get(models.ColCMSales, r), running.Get(models.ColCMSplit, r)).
			Apply(running, r)
		settled++
	}
	return settled
}

func (c *Closer) buildReports(history, current, accounts *models.Table, month models.CommMonth) []Report {
	revenue := RevenueData(history, current, c.config.RevenueQuarters)
	StampCDS(revenue, accounts)
	splits := func(r int) bool {
		split, err := parsers.ParseSplit(revenue.Get(models.ColCMSplit, r))
		return err == nil && split.GreaterThan(c.config.DefaultCMSplit)
	}

	revenuePivot := Pivot{
		Rows:   []string{models.ColTEndCust, models.ColPartNumber, models.ColCM},
		Column: models.ColQuarterShipped,
		Value:  models.ColPaidOnRevenue,
		Filter: models.ColPrincipal,
	}
	commissionPivot := Pivot{
		Rows:  []string{models.ColTEndCust, models.ColPrincipal},
		Value: models.ColSalesCommission,
	}

	var reports []Report
	for _, p := range Salespeople(current) {
		rev := revenue.Filter(func(r int) bool {
			cds := code(revenue.Get(models.ColCurrentDesignSales, r))
			if cds == p {
				return true
			}
			return splits(r) && code(revenue.Get(models.ColCMSales, r)) == p
		})
		reports = append(reports, Report{
			Name:        fmt.Sprintf("%s Revenue Report %s.xlsx", p, month),
			Salesperson: p,
			Tabs: []workbook.Tab{
				{Name: models.TabData, Data: rev},
				revenuePivot.Tab(TabPivot, rev),
			},
		})

		comm := c.CommissionData(current, p)
		reports = append(reports, Report{
			Name:        fmt.Sprintf("%s Commission Report %s.xlsx", p, month),
			Salesperson: p,
			Tabs: []workbook.Tab{
				{Name: TabPrincipals, Data: PrincipalTotals(comm)},
				{Name: TabRawData, Data: comm},
				commissionPivot.Tab(TabPivot, comm),
			},
		})

		c.logger.WithFields(logger.Fields{
			"salesperson":     p,
			"revenue_rows":    rev.Len(),
			"commission_rows": comm.Len(),
		}).Debug("Salesperson reports built")
	}

	combined := revenuePivot
	combined.Rows = append([]string{models.ColCurrentDesignSales}, revenuePivot.Rows...)
	reports = append(reports, Report{
		Name: fmt.Sprintf("Combined Revenue Report %s.xlsx", month),
		Tabs: []workbook.Tab{
			{Name: models.TabData, Data: revenue},
			combined.Tab(TabPivot, revenue),
		},
	})
	return reports
}

// Role is a salesperson's part in a row's commission.
type Role int

const (
	RoleNone Role = iota
	RoleCMOnly
	RoleCMWithDesign
	RoleDesignOnly
	RoleDesignWithCM
	RoleDual
)

// RoleOf returns p's role on row r.
func RoleOf(t *models.Table, r int, p string) Role {
	cm := code(t.Get(models.ColCMSales, r))
	design := code(t.Get(models.ColDesignSales, r))
	switch {
	case cm == p && design == p:
		return RoleDual
	case cm == p && design == "":
		return RoleCMOnly
	case cm == p:
		return RoleCMWithDesign
	case design == p && cm == "":
		return RoleDesignOnly
	case design == p:
		return RoleDesignWithCM
	}
	return RoleNone
}

// CommissionData returns the Running Commissions rows p is paid on, grouped
// by role, with Sales Commission reduced to p's share.
func (c *Closer) CommissionData(running *models.Table, p string) *models.Table {
	out := models.NewTable(running.Columns()...)
	for _, role := range []Role{RoleCMOnly, RoleCMWithDesign, RoleDesignOnly, RoleDesignWithCM, RoleDual} {
		for r := 0; r < running.Len(); r++ {
			if RoleOf(running, r, p) != role {
				continue
			}
			row := running.Row(r)
			sales := models.DecimalOrZero(row[models.ColSalesCommission])
			split := parsers.Split(row[models.ColCMSplit], c.config.DefaultCMSplit)
			switch role {
			case RoleCMWithDesign:
				sales = sales.Mul(split).Div(hundred).Round(2)
			case RoleDesignWithCM:
				sales = sales.Mul(hundred.Sub(split)).Div(hundred).Round(2)
			}
			row[models.ColSalesCommission] = models.FormatMoney(sales)
			out.AppendRow(row)
		}
	}
	return out
}

// PrincipalTotals sums Sales Commission per principal, largest first.
func PrincipalTotals(t *models.Table) *models.Table {
	totals := make(map[string]decimal.Decimal)
	var principals []string
	for r := 0; r < t.Len(); r++ {
		p := strings.TrimSpace(t.Get(models.ColPrincipal, r))
		if _, ok := totals[p]; !ok {
			principals = append(principals, p)
		}
		totals[p] = totals[p].Add(models.DecimalOrZero(t.Get(models.ColSalesCommission, r)))
	}
	sort.SliceStable(principals, func(i, j int) bool {
		a, b := totals[principals[i]], totals[principals[j]]
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return principals[i] < principals[j]
	})

	out := models.NewTable(models.ColPrincipal, models.ColSalesCommission)
	for _, p := range principals {
		out.AppendRow(map[string]string{
			models.ColPrincipal:       p,
			models.ColSalesCommission: models.FormatMoney(totals[p]),
		})
	}
	return out
}

// RevenueData is the Master restricted to its latest quarters, followed by
// the current rows.
func RevenueData(history, current *models.Table, quarters int) *models.Table {
	keep := LatestQuarters(history, quarters)
	out := history.Filter(func(r int) bool {
		q, ok := models.ParseQuarter(history.Get(models.ColQuarterShipped, r))
		return ok && keep[q]
	})
	out.Append(current)
	return out
}

// LatestQuarters returns the n most recent Quarter Shipped values present.
func LatestQuarters(t *models.Table, n int) map[int]bool {
	var present []int
	seen := make(map[int]bool)
	for _, v := range t.Column(models.ColQuarterShipped) {
		q, ok := models.ParseQuarter(v)
		if ok && !seen[q] {
			seen[q] = true
			present = append(present, q)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(present)))
	if len(present) > n {
		present = present[:n]
	}
	keep := make(map[int]bool, len(present))
	for _, q := range present {
		keep[q] = true
	}
	return keep
}

// StampCDS fills the current design salesperson of every row: the primary
// salesperson of the one Account List entry named like the tracked end
// customer, otherwise the row's Design Sales.
func StampCDS(t, accounts *models.Table) {
	owners := make(map[string][]string)
	if accounts != nil {
		for r := 0; r < accounts.Len(); r++ {
			key := models.FoldKey(accounts.Get(models.ColAccountName, r))
			if key == "" {
				continue
			}
			owners[key] = append(owners[key], code(accounts.Get(models.ColPrimarySalesperson, r)))
		}
	}

	t.AddColumn(models.ColCurrentDesignSales)
	for r := 0; r < t.Len(); r++ {
		cds := code(t.Get(models.ColDesignSales, r))
		if found := owners[models.FoldKey(t.Get(models.ColTEndCust, r))]; len(found) == 1 && found[0] != "" {
			cds = found[0]
		}
		t.Set(models.ColCurrentDesignSales, r, cds)
	}
}

// Salespeople returns the sorted distinct CM and design salesperson codes.
func Salespeople(t *models.Table) []string {
	seen := make(map[string]bool)
	var out []string
	for _, col := range []string{models.ColCMSales, models.ColDesignSales} {
		for _, v := range t.Column(col) {
			if p := code(v); p != "" && !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// LearnAttributions appends the attributions of running that the Lookup
// Master does not hold yet, skipping void end customers and invalid CM
// Splits. New entries are dated today. It returns the number of entries
// added.
func LearnAttributions(lookup, running *models.Table, today time.Time) int {
	known := make(map[string]bool, lookup.Len())
	for r := 0; r < lookup.Len(); r++ {
		known[matcher.AttributionKey(lookup, r)] = true
	}

	stamp := today.Format(models.DateLayout)
	added := 0
	for r := 0; r < running.Len(); r++ {
		if !reconciler.Ready(running, r) || strings.TrimSpace(running.Get(models.ColReportedCustomer, r)) == "" {
			continue
		}
		if models.IsVoidEndCustomer(running.Get(models.ColTEndCust, r)) {
			continue
		}
		if _, err := parsers.ParseSplit(running.Get(models.ColCMSplit, r)); err != nil {
			continue
		}
		key := matcher.AttributionKey(running, r)
		if known[key] {
			continue
		}
		known[key] = true

		entry := make(map[string]string, len(models.LookupMasterColumns))
		for _, col := range models.LookupMasterColumns {
			entry[col] = running.Get(col, r)
		}
		entry[models.ColDateAdded] = stamp
		entry[models.ColLastUsed] = stamp
		lookup.AppendRow(entry)
		added++
	}
	return added
}

// NextCommMonth is the month after the latest in the Master, or today's
// month for an empty Master.
func NextCommMonth(master *models.Table, today time.Time) models.CommMonth {
	if latest, ok := MaxCommMonth(master); ok {
		return latest.Next()
	}
	return models.CommMonth{Year: today.Year(), Month: today.Month()}
}

// MaxCommMonth returns the latest Comm Month of t.
func MaxCommMonth(t *models.Table) (models.CommMonth, bool) {
	var latest models.CommMonth
	found := false
	for _, v := range t.Column(models.ColCommMonth) {
		m, ok := models.ParseCommMonth(v)
		if !ok {
			continue
		}
		if !found || latest.Before(m) {
			latest, found = m, true
		}
	}
	return latest, found
}

func code(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
