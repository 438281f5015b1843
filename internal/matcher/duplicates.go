package matcher

import (
	"sort"
	"strings"

	"taarcom-commissions/internal/models"
)

// DuplicateGroup is a set of rows sharing one key.
type DuplicateGroup struct {
	Key  string
	Rows []int
}

// AttributionKey identifies a Lookup Master entry together with the
// attribution it carries. Two rows with equal keys teach the same thing.
func AttributionKey(t *models.Table, r int) string {
	parts := []string{
		models.PairKey(t.Get(models.ColReportedCustomer, r), models.NormalizeIdentifier(t.Get(models.ColPartNumber, r))),
	}
	for _, col := range []string{models.ColCMSales, models.ColDesignSales, models.ColCM, models.ColTName, models.ColTEndCust} {
		parts = append(parts, models.FoldKey(t.Get(col, r)))
	}
	return strings.Join(parts, "\x1e")
}

// DuplicateIDs returns the Unique IDs held by more than one row, and rows
// with no Unique ID grouped under the empty key.
func DuplicateIDs(t *models.Table) []DuplicateGroup {
	return groupsOf(t, func(r int) string {
		return strings.TrimSpace(t.Get(models.ColUniqueID, r))
	}, true)
}

// LookupConflicts returns the (customer, part) keys that map to more than
// one Lookup Master entry. Rows for these keys never attribute.
func LookupConflicts(idx *LookupIndex) []DuplicateGroup {
	var groups []DuplicateGroup
	for key, rows := range idx.byKey {
		if len(rows) > 1 {
			groups = append(groups, DuplicateGroup{Key: key, Rows: append([]int{}, rows...)})
		}
	}
	sortGroups(groups)
	return groups
}

func groupsOf(t *models.Table, key func(r int) string, emptyIsDuplicate bool) []DuplicateGroup {
	rows := make(map[string][]int)
	for r := 0; r < t.Len(); r++ {
		k := key(r)
		rows[k] = append(rows[k], r)
	}
	var groups []DuplicateGroup
	for k, rs := range rows {
		if len(rs) > 1 || (k == "" && emptyIsDuplicate) {
			groups = append(groups, DuplicateGroup{Key: k, Rows: rs})
		}
	}
	sortGroups(groups)
	return groups
}

func sortGroups(groups []DuplicateGroup) {
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Rows[0] < groups[j].Rows[0]
	})
}
