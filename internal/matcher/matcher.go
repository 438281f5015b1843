package matcher

import (
	"fmt"
	"strings"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

// Engine attributes commission lines against the lookup tables.
type Engine struct {
	Config       *AttributionConfig
	Lookup       *LookupIndex
	Distributors *DistributorIndex
	RootCustomer *RootCustomerIndex
	logger       logger.Logger
}

// Result is the outcome of one attribution pass.
type Result struct {
	// Fix holds a copy of every row that needs operator attention.
	Fix     *models.Table
	Summary Summary
	Issues  *errors.IssueCollector
}

// Summary provides aggregate statistics about an attribution pass.
type Summary struct {
	Rows             int
	Attributed       int
	FixRouted        int
	Void             int
	LookupUnique     int
	LookupNone       int
	LookupMultiple   int
	DistUnique       int
	DistNone         int
	DistMultiple     int
	LookupRefreshed  int
	RootCustomerHint int
}

// NewEngine creates an attribution engine with empty lookups
func NewEngine(config *AttributionConfig) *Engine {
	if config == nil {
		config = DefaultAttributionConfig()
	}
	return &Engine{
		Config:       config,
		Lookup:       NewLookupIndex(nil),
		Distributors: NewDistributorIndex(nil),
		RootCustomer: NewRootCustomerIndex(nil),
		logger:       logger.GetGlobalLogger().WithComponent("matcher"),
	}
}

// LoadLookupMaster indexes the Lookup Master. The table is kept, and Last
// Used is refreshed on it in place.
func (e *Engine) LoadLookupMaster(table *models.Table) {
	e.Lookup = NewLookupIndex(table)
}

// LoadDistributorMap indexes the Distributor Map
func (e *Engine) LoadDistributorMap(table *models.Table) {
	e.Distributors = NewDistributorIndex(table)
}

// LoadRootCustomers indexes the Root-Customer Map
func (e *Engine) LoadRootCustomers(table *models.Table) {
	e.RootCustomer = NewRootCustomerIndex(table)
}

// Attribute enriches data in place and returns the fix copies laid out with
// fixColumns.
func (e *Engine) Attribute(data *models.Table, fixColumns []string) *Result {
	today := e.Config.Now().Format(models.DateLayout)
	result := &Result{
		Fix:    models.NewTable(fixColumns...),
		Issues: errors.NewIssueCollector(),
	}
	for _, col := range attributionFields {
		data.AddColumn(col)
	}
	data.AddColumn(models.ColCorrectedDistributor)

	refreshed := make(map[int]bool)
	for r := 0; r < data.Len(); r++ {
		result.Summary.Rows++
		id := data.Get(models.ColUniqueID, r)
		log := e.logger.WithField("unique_id", id)

		lookupCount := e.matchLookup(data, r, refreshed, result)
		distCount := e.matchDistributor(data, r, result)

		if models.IsVoidEndCustomer(data.Get(models.ColTEndCust, r)) {
			result.Summary.Void++
		}

		if lookupCount == 1 && distCount == 1 {
			result.Summary.Attributed++
			continue
		}

		fix := data.Row(r)
		fix[models.ColLookupMatches] = fmt.Sprintf("%d", lookupCount)
		fix[models.ColDistributorMatches] = fmt.Sprintf("%d", distCount)
		fix[models.ColDateAdded] = today

		if lookupCount == 0 && e.Config.RootCustomerHint && strings.TrimSpace(fix[models.ColDesignSales]) == "" {
			if person, ok := e.RootCustomer.Salesperson(data.Get(models.ColReportedCustomer, r)); ok {
				fix[models.ColDesignSales] = person
				result.Summary.RootCustomerHint++
			}
		}

		result.Fix.AppendRow(fix)
		result.Summary.FixRouted++
		log.WithFields(logger.Fields{
			"lookup_matches":      lookupCount,
			"distributor_matches": distCount,
		}).Debug("Row routed to fix workbook")
	}

	if e.Config.RefreshLastUsed {
		for row := range refreshed {
			e.Lookup.Table.Set(models.ColLastUsed, row, today)
		}
		result.Summary.LookupRefreshed = len(refreshed)
	}

	e.logger.WithFields(logger.Fields{
		"rows":       result.Summary.Rows,
		"attributed": result.Summary.Attributed,
		"fix_routed": result.Summary.FixRouted,
	}).Info("Attribution completed")
	return result
}

func (e *Engine) matchLookup(data *models.Table, r int, refreshed map[int]bool, result *Result) int {
	hits := e.Lookup.Find(data.Get(models.ColReportedCustomer, r), data.Get(models.ColPartNumber, r))

	switch OutcomeOf(len(hits)) {
	case MatchUnique:
		result.Summary.LookupUnique++
		entry := hits[0]
		for _, col := range attributionFields {
			data.Set(col, r, e.Lookup.Table.Get(col, entry))
		}
		refreshed[entry] = true
	case MatchNone:
		result.Summary.LookupNone++
	case MatchMultiple:
		result.Summary.LookupMultiple++
		id := data.Get(models.ColUniqueID, r)
		e.logger.WithFields(logger.Fields{
			"unique_id":         id,
			"reported_customer": data.Get(models.ColReportedCustomer, r),
			"part_number":       data.Get(models.ColPartNumber, r),
			"matches":           len(hits),
		}).Warn("Lookup Master has several entries for this customer and part")
		result.Issues.Add(&errors.RowIssue{
			Kind:     errors.IssueAmbiguousLookup,
			File:     data.Get(models.ColSourceFile, r),
			UniqueID: id,
			Detail:   fmt.Sprintf("%d Lookup Master entries", len(hits)),
		})
	}
	return len(hits)
}

func (e *Engine) matchDistributor(data *models.Table, r int, result *Result) int {
	names := e.Distributors.Match(data.Get(models.ColReportedDistributor, r))

	switch OutcomeOf(len(names)) {
	case MatchUnique:
		result.Summary.DistUnique++
		data.Set(models.ColCorrectedDistributor, r, names[0])
	case MatchNone:
		result.Summary.DistNone++
	case MatchMultiple:
		result.Summary.DistMultiple++
		data.Set(models.ColCorrectedDistributor, r, models.MultipleDistributorMatches)
		id := data.Get(models.ColUniqueID, r)
		e.logger.WithFields(logger.Fields{
			"unique_id":            id,
			"reported_distributor": data.Get(models.ColReportedDistributor, r),
			"candidates":           Candidates(names),
		}).Warn("Distributor matches several map entries")
		result.Issues.Add(&errors.RowIssue{
			Kind:     errors.IssueAmbiguousDist,
			File:     data.Get(models.ColSourceFile, r),
			UniqueID: id,
			Column:   models.ColReportedDistributor,
			Value:    data.Get(models.ColReportedDistributor, r),
			Detail:   fmt.Sprintf("%d abbreviations match: %s", len(names), strings.Join(Candidates(names), ", ")),
		})
	}
	return len(names)
}
