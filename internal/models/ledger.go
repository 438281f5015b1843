package models

import (
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// Working workbooks carry these tabs.
const (
	TabMaster         = "Master"
	TabFilesProcessed = "Files Processed"
	TabData           = "Data"
)

// NewFilesProcessed returns an empty Files Processed ledger.
func NewFilesProcessed() *Table {
	return NewTable(FilesProcessedColumns...)
}

// LedgerHas reports whether the basename of path is already recorded.
func LedgerHas(ledger *Table, path string) bool {
	if ledger == nil {
		return false
	}
	return len(ledger.Find(ColFilename, filepath.Base(path))) > 0
}

// LedgerRecord appends a processed file with its commission total.
func LedgerRecord(ledger *Table, path string, total decimal.Decimal, today time.Time) {
	ledger.AppendRow(map[string]string{
		ColFilename:         filepath.Base(path),
		ColDateAdded:        today.Format(DateLayout),
		ColTotalCommissions: FormatMoney(total),
	})
}

// LedgerOverlap returns the filenames present in both ledgers.
func LedgerOverlap(a, b *Table) []string {
	if a == nil || b == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, f := range b.Column(ColFilename) {
		seen[f] = true
	}
	var out []string
	for _, f := range a.Distinct(ColFilename) {
		if seen[f] {
			out = append(out, f)
		}
	}
	return out
}
