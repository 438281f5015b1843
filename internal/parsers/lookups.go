package parsers

import (
	"fmt"
	"path/filepath"
	"strings"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

// Lookup directory file names.
const (
	LookupMasterFile   = "Lookup Master - Current.xlsx"
	DistributorMapFile = "distributorLookup.xlsx"
	RootCustomerFile   = "rootCustomerMappings.xlsx"
	AccountListFile    = "Master Account List.xlsx"
	SalespeopleFile    = "Salespeople Info.xlsx"
	PrincipalListFile  = "principalList.xlsx"
	FieldMappingsFile  = "fieldMappings.xlsx"
	QuarantineFile     = "Quarantined Lookups.xlsx"
	InvoiceLogFile     = "Mill-Max Invoice Log.xlsx"
)

// LookupSpec describes one lookup workbook: its file, primary tab and the
// columns it must carry.
type LookupSpec struct {
	Name     string
	File     string
	Tab      string
	Required []string
}

// Lookup specs for every file of the lookups directory.
var (
	LookupMasterSpec = LookupSpec{
		Name: "Lookup Master", File: LookupMasterFile, Tab: models.TabMaster,
		Required: []string{
			models.ColReportedCustomer, models.ColPartNumber, models.ColCMSales, models.ColDesignSales,
			models.ColCMSplit, models.ColCM, models.ColTName, models.ColTEndCust,
		},
	}
	DistributorMapSpec = LookupSpec{
		Name: "Distributor Map", File: DistributorMapFile, Tab: "Distributors",
		Required: []string{models.ColSearchAbbreviation, models.ColCorrectedDist},
	}
	RootCustomerSpec = LookupSpec{
		Name: "Root-Customer Map", File: RootCustomerFile, Tab: "Mappings",
		Required: []string{models.ColReportedCustomer, models.ColSalesperson},
	}
	AccountListSpec = LookupSpec{
		Name: "Account List", File: AccountListFile, Tab: "Accounts",
		Required: []string{models.ColAccountName, models.ColPrimarySalesperson},
	}
	SalespeopleSpec = LookupSpec{
		Name: "Salespeople Info", File: SalespeopleFile, Tab: "Info",
		Required: []string{models.ColSalesperson, models.ColSalespersonName, models.ColEmail},
	}
	PrincipalListSpec = LookupSpec{
		Name: "Principal List", File: PrincipalListFile, Tab: "Principals",
		Required: []string{models.ColPrincipalName, models.ColAbbreviation},
	}
	QuarantineSpec = LookupSpec{
		Name: "Quarantine", File: QuarantineFile, Tab: models.TabMaster,
		Required: []string{models.ColReportedCustomer, models.ColPartNumber, models.ColDateQuarantined},
	}
	InvoiceLogSpec = LookupSpec{
		Name: "Mill-Max Invoice Log", File: InvoiceLogFile, Tab: "Log",
		Required: []string{models.ColInvoiceNumber, models.ColPartNumber},
	}
)

// Path returns the lookup file inside dir
func (s LookupSpec) Path(dir string) string {
	return filepath.Join(dir, s.File)
}

// LookupLoader reads lookup workbooks from the lookups directory.
type LookupLoader struct {
	*BaseParser
	dir string
}

// NewLookupLoader creates a loader rooted at the lookups directory
func NewLookupLoader(dir string) *LookupLoader {
	return &LookupLoader{
		BaseParser: NewBaseParser(&ParseConfig{SkipEmptyRows: true, Delimiter: ','}),
		dir:        dir,
	}
}

// Dir returns the lookups directory
func (l *LookupLoader) Dir() string {
	return l.dir
}

// Load reads one lookup. The returned table is never nil: when the file is
// missing, the tab is misnamed or required columns are absent it is an
// empty table with the required columns, and the error says why. Whether
// that is fatal is the caller's decision.
func (l *LookupLoader) Load(spec LookupSpec) (*models.Table, error) {
	path := spec.Path(l.dir)
	log := l.logger.WithFields(logger.Fields{"lookup": spec.Name, "file_path": path})
	empty := models.NewTable(spec.Required...)

	table, err := l.ReadTab(path, spec.Tab)
	if err != nil {
		log.WithError(err).Debug("Lookup unavailable")
		return empty, err
	}

	var missing []string
	for _, col := range spec.Required {
		if !table.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		log.WithField("missing_columns", missing).Warn("Lookup is missing required columns")
		return empty, errors.SchemaError(errors.CodeMissingColumn, spec.File, missing)
	}

	log.WithField("rows", table.Len()).Debug("Loaded lookup")
	return table, nil
}

// LoadOptional loads a lookup and degrades any failure to an empty table with
// a warning.
func (l *LookupLoader) LoadOptional(spec LookupSpec) *models.Table {
	table, err := l.Load(spec)
	if err != nil {
		l.logger.WithFields(logger.Fields{
			"lookup": spec.Name,
			"reason": err.Error(),
		}).Warn("Optional lookup not loaded, continuing without it")
	}
	return table
}

// LoadWritable loads a lookup the job saves back. A missing file starts an
// empty table; a file that exists but fails its checks is an error, so its
// contents are never replaced by the empty fallback.
func (l *LookupLoader) LoadWritable(spec LookupSpec) (*models.Table, error) {
	table, err := l.Load(spec)
	if err == nil {
		return table, nil
	}
	if errors.HasCode(err, errors.CodeFileNotFound) {
		l.logger.WithField("lookup", spec.Name).Info("Lookup not found, starting an empty one")
		return table, nil
	}
	if ce, ok := errors.AsCommissionError(err); ok {
		return nil, ce.WithContext("lookup", spec.Name).
			WithSuggestion(fmt.Sprintf("Repair or move %s; it is not overwritten while it fails to load", spec.File))
	}
	return nil, fmt.Errorf("loading %s: %w", spec.Name, err)
}

// LoadRequired loads a lookup whose absence aborts the job.
func (l *LookupLoader) LoadRequired(spec LookupSpec) (*models.Table, error) {
	table, err := l.Load(spec)
	if err != nil {
		if ce, ok := errors.AsCommissionError(err); ok {
			return nil, ce.WithContext("lookup", spec.Name)
		}
		return nil, fmt.Errorf("loading %s: %w", spec.Name, err)
	}
	return table, nil
}

// PrincipalCodes returns the upper-cased abbreviations of a principal list.
func PrincipalCodes(list *models.Table) map[string]bool {
	codes := make(map[string]bool)
	for _, v := range list.Column(models.ColAbbreviation) {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			codes[v] = true
		}
	}
	return codes
}

// SalespersonCodes returns the upper-cased initials of Salespeople Info.
func SalespersonCodes(info *models.Table) map[string]bool {
	codes := make(map[string]bool)
	for _, v := range info.Column(models.ColSalesperson) {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			codes[v] = true
		}
	}
	return codes
}
