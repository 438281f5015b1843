package matcher

import (
	"sort"
	"strings"

	"taarcom-commissions/internal/models"
)

// attributionFields are copied from a unique Lookup Master entry into a row.
var attributionFields = []string{
	models.ColCMSales,
	models.ColDesignSales,
	models.ColCMSplit,
	models.ColCM,
	models.ColTName,
	models.ColTEndCust,
}

// LookupIndex indexes Lookup Master rows by (Reported Customer, Part Number),
// case-insensitively.
type LookupIndex struct {
	Table *models.Table
	byKey map[string][]int
}

// NewLookupIndex builds the index over a Lookup Master table
func NewLookupIndex(table *models.Table) *LookupIndex {
	if table == nil {
		table = models.NewTable(models.LookupMasterColumns...)
	}
	idx := &LookupIndex{Table: table, byKey: make(map[string][]int)}
	customers := table.Column(models.ColReportedCustomer)
	parts := table.Column(models.ColPartNumber)
	for r := 0; r < table.Len(); r++ {
		key := models.PairKey(customers[r], models.NormalizeIdentifier(parts[r]))
		idx.byKey[key] = append(idx.byKey[key], r)
	}
	return idx
}

// Find returns the Lookup Master rows for a customer and part
func (li *LookupIndex) Find(customer, part string) []int {
	return li.byKey[models.PairKey(customer, models.NormalizeIdentifier(part))]
}

// Len returns the number of indexed entries
func (li *LookupIndex) Len() int {
	return li.Table.Len()
}

// distributorEntry is one Distributor Map row with its search key prepared.
type distributorEntry struct {
	needle    string
	corrected string
}

// DistributorIndex resolves free-text distributor names by substring search.
type DistributorIndex struct {
	entries []distributorEntry
	cache   map[string][]string
}

// NewDistributorIndex builds the index from a Distributor Map table.
// Abbreviations that are empty after normalization are ignored.
func NewDistributorIndex(table *models.Table) *DistributorIndex {
	idx := &DistributorIndex{cache: make(map[string][]string)}
	if table == nil {
		return idx
	}
	for r := 0; r < table.Len(); r++ {
		needle := models.AlnumLower(table.Get(models.ColSearchAbbreviation, r))
		corrected := strings.TrimSpace(table.Get(models.ColCorrectedDist, r))
		if needle == "" || corrected == "" {
			continue
		}
		idx.entries = append(idx.entries, distributorEntry{needle: needle, corrected: corrected})
	}
	return idx
}

// Match returns the corrected name of every abbreviation that occurs in the
// reported distributor, sorted. Two abbreviations of the same distributor
// count as two matches.
func (di *DistributorIndex) Match(reported string) []string {
	haystack := models.AlnumLower(reported)
	if haystack == "" {
		return nil
	}
	if hit, ok := di.cache[haystack]; ok {
		return hit
	}

	var names []string
	for _, e := range di.entries {
		if strings.Contains(haystack, e.needle) {
			names = append(names, e.corrected)
		}
	}
	sort.Strings(names)
	di.cache[haystack] = names
	return names
}

// Candidates returns names without repeats, for diagnostics.
func Candidates(names []string) []string {
	var out []string
	for i, n := range names {
		if i == 0 || n != names[i-1] {
			out = append(out, n)
		}
	}
	return out
}

// RootCustomerIndex maps reported customers to the salespeople observed for
// them in insight files.
type RootCustomerIndex struct {
	byCustomer map[string]map[string]bool
}

// NewRootCustomerIndex builds the index from a Root-Customer Map table
func NewRootCustomerIndex(table *models.Table) *RootCustomerIndex {
	idx := &RootCustomerIndex{byCustomer: make(map[string]map[string]bool)}
	if table == nil {
		return idx
	}
	for r := 0; r < table.Len(); r++ {
		customer := models.FoldKey(table.Get(models.ColReportedCustomer, r))
		person := strings.ToUpper(strings.TrimSpace(table.Get(models.ColSalesperson, r)))
		if customer == "" || person == "" {
			continue
		}
		if idx.byCustomer[customer] == nil {
			idx.byCustomer[customer] = make(map[string]bool)
		}
		idx.byCustomer[customer][person] = true
	}
	return idx
}

// Salesperson returns the single salesperson recorded for a customer. Zero or
// several recorded salespeople return false.
func (ri *RootCustomerIndex) Salesperson(customer string) (string, bool) {
	people := ri.byCustomer[models.FoldKey(customer)]
	if len(people) != 1 {
		return "", false
	}
	for p := range people {
		return p, true
	}
	return "", false
}
