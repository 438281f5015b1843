package reconciler

import (
	"time"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/pkg/logger"
)

// AgeLookups moves Lookup Master entries last used more than maxAgeDays
// before today into quarantine, stamped with Date Quarantined. An entry
// without a Last Used date is aged by its Date Added; one with neither is
// kept. It returns the number of entries moved.
func AgeLookups(lookup, quarantine *models.Table, today time.Time, maxAgeDays int) int {
	log := logger.GetGlobalLogger().WithComponent("aging")
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := day.AddDate(0, 0, -maxAgeDays)

	for _, col := range models.QuarantineColumns {
		quarantine.AddColumn(col)
	}

	stale := make(map[int]bool)
	undated := 0
	for r := 0; r < lookup.Len(); r++ {
		used, err := models.ParseDate(lookup.Get(models.ColLastUsed, r))
		if err != nil {
			used, err = models.ParseDate(lookup.Get(models.ColDateAdded, r))
		}
		if err != nil {
			undated++
			continue
		}
		if !used.Before(cutoff) {
			continue
		}

		row := lookup.Row(r)
		row[models.ColDateQuarantined] = day.Format(models.DateLayout)
		quarantine.AppendRow(row)
		stale[r] = true
	}
	lookup.DeleteRows(stale)

	log.WithFields(logger.Fields{
		"quarantined": len(stale),
		"undated":     undated,
		"cutoff":      cutoff.Format(models.DateLayout),
	}).Info("Lookup Master aged")
	return len(stale)
}
