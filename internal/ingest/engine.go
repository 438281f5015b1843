// Package ingest canonicalizes raw vendor commission reports: every sheet is
// mapped onto the canonical columns, run through its principal's rules,
// coerced, stamped with provenance and a fresh Unique ID, and appended in
// file and sheet order.
package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/internal/parsers"
	"taarcom-commissions/internal/principals"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

// Input is one raw report and its principal. An empty Principal is inferred
// from the file name.
type Input struct {
	Path      string
	Principal string
}

// FileResult summarizes one input file.
type FileResult struct {
	Path          string
	Principal     string
	Rows          int
	Total         decimal.Decimal
	Sheets        []string
	SkippedSheets []string
	Duplicate     bool
	Err           error
}

// Name returns the basename of the input
func (f FileResult) Name() string {
	return filepath.Base(f.Path)
}

// Result is the outcome of an ingest run.
type Result struct {
	Data   *models.Table
	Files  []FileResult
	Issues *errors.IssueCollector
}

// Accepted returns the files whose rows were appended
func (r *Result) Accepted() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if !f.Duplicate && f.Err == nil {
			out = append(out, f)
		}
	}
	return out
}

// Failed returns the files that aborted
func (r *Result) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Config holds the engine's collaborators. Nil fields get defaults.
type Config struct {
	Mapping        *parsers.FieldMapping
	Dispatch       *principals.Table
	InvoiceLog     *models.Table
	PrincipalCodes map[string]bool
	Now            func() time.Time
	NewID          func() string
}

// Engine is the Canonicalization Engine
type Engine struct {
	mapping        *parsers.FieldMapping
	dispatch       *principals.Table
	parser         *parsers.ReportParser
	invoiceLog     *models.Table
	principalCodes map[string]bool
	canonical      []string
	now            func() time.Time
	newID          func() string
	logger         logger.Logger
}

// NewEngine creates a canonicalization engine
func NewEngine(cfg Config) *Engine {
	if cfg.Mapping == nil {
		cfg.Mapping = parsers.DefaultFieldMapping()
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = principals.MustLoad()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	return &Engine{
		mapping:        cfg.Mapping,
		dispatch:       cfg.Dispatch,
		parser:         parsers.NewReportParser(cfg.Mapping, nil),
		invoiceLog:     cfg.InvoiceLog,
		principalCodes: cfg.PrincipalCodes,
		canonical:      cfg.Mapping.CanonicalColumns(),
		now:            cfg.Now,
		newID:          cfg.NewID,
		logger:         logger.GetGlobalLogger().WithComponent("ingest"),
	}
}

// Canonical returns the canonical column ordering in use
func (e *Engine) Canonical() []string {
	return append([]string{}, e.canonical...)
}

// Ingest canonicalizes each input in order. Files already in the ledger, or
// repeated within inputs, are excluded with a warning. A file that aborts is
// reported in its FileResult and contributes no rows; the other files still
// go through.
func (e *Engine) Ingest(inputs []Input, ledger *models.Table) *Result {
	result := &Result{
		Data:   models.NewTable(e.canonical...),
		Issues: errors.NewIssueCollector(),
	}
	progress := logger.NewProgressTracker("ingest", int64(len(inputs)), e.logger)
	seen := make(map[string]bool)

	for _, in := range inputs {
		name := filepath.Base(in.Path)
		log := e.logger.WithField("file", name)

		if models.LedgerHas(ledger, in.Path) || seen[name] {
			log.Warn("Duplicate file: already in Files Processed, excluded from ingest")
			result.Issues.Add(&errors.RowIssue{Kind: errors.IssueDuplicateFile, File: name, Detail: "already processed"})
			result.Files = append(result.Files, FileResult{Path: in.Path, Duplicate: true})
			progress.Step(name)
			continue
		}
		seen[name] = true

		fr, rows := e.ingestFile(in, result.Issues)
		if fr.Err != nil {
			log.WithError(fr.Err).Error("File aborted, no rows appended")
		} else {
			result.Data.Append(rows)
			log.WithFields(logger.Fields{
				"principal":         fr.Principal,
				"rows":              fr.Rows,
				"total_commissions": models.FormatMoney(fr.Total),
			}).Info("File ingested")
		}
		result.Files = append(result.Files, fr)
		progress.Step(name)
	}

	progress.Complete()
	return result
}

func (e *Engine) principalFor(in Input) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Principal))
	if code == "" {
		code = e.dispatch.CodeFromFilename(in.Path, e.principalCodes)
	}
	name := filepath.Base(in.Path)
	if code == "" {
		return "", errors.SchemaError(errors.CodeUnknownPrincipal, name, []string{"<none>"}).
			WithSuggestion("pass --principal or start the file name with a principal code: " +
				strings.Join(e.dispatch.Codes(), ", "))
	}
	if len(e.principalCodes) > 0 && !e.principalCodes[code] {
		return "", errors.SchemaError(errors.CodeUnknownPrincipal, name, []string{code})
	}
	return code, nil
}

func (e *Engine) ingestFile(in Input, issues *errors.IssueCollector) (FileResult, *models.Table) {
	fr := FileResult{Path: in.Path, Total: decimal.Zero}
	name := filepath.Base(in.Path)

	code, err := e.principalFor(in)
	if err != nil {
		fr.Err = err
		return fr, nil
	}
	fr.Principal = code

	sheets, err := e.parser.ParseReport(in.Path)
	if err != nil {
		fr.Err = err
		return fr, nil
	}

	rows := models.NewTable(e.canonical...)
	for _, sheet := range sheets {
		log := e.logger.WithFields(logger.Fields{"file": name, "sheet": sheet.Name})

		plan := e.dispatch.PlanFor(code, sheet.Name)
		if plan.Skip {
			log.WithField("reason", plan.Reason).Warn("Sheet skipped")
			issues.Add(&errors.RowIssue{Kind: errors.IssueSkippedSheet, File: name, Sheet: sheet.Name, Detail: plan.Reason})
			fr.SkippedSheets = append(fr.SkippedSheets, sheet.Name)
			continue
		}

		table, err := e.canonicalizeSheet(name, sheet, plan)
		if err != nil {
			fr.Err = err
			return fr, nil
		}
		if table == nil {
			log.Debug("No commission column, sheet skipped")
			fr.SkippedSheets = append(fr.SkippedSheets, sheet.Name)
			continue
		}

		total, err := models.SumColumn(table, models.ColActualCommPaid)
		if err != nil {
			fr.Err = errors.Wrap(err, errors.CategoryParse, errors.CodeNonNumeric, fmt.Sprintf("summing %s in %s", models.ColActualCommPaid, name))
			return fr, nil
		}
		fr.Total = fr.Total.Add(total)
		fr.Rows += table.Len()
		fr.Sheets = append(fr.Sheets, sheet.Name)
		rows.Append(table)
	}

	return fr, rows
}

// canonicalizeSheet returns nil without error for non-commission tabs.
func (e *Engine) canonicalizeSheet(file string, sheet parsers.ReportSheet, plan principals.Plan) (*models.Table, error) {
	table := sheet.Table.Clone()
	if err := plan.PreMap(table); err != nil {
		return nil, errors.Wrap(err, errors.CategorySchema, errors.CodeDuplicateColumn, fmt.Sprintf("duplicate canonical columns in %s", file)).
			WithContext("sheet", sheet.Name)
	}

	if err := e.mapColumns(file, sheet.Name, table); err != nil {
		return nil, err
	}

	if !table.HasColumn(models.ColActualCommPaid) {
		return nil, nil
	}

	ctx := &principals.Context{InvoiceLog: e.invoiceLog, Logger: e.logger.WithFields(logger.Fields{"file": file, "sheet": sheet.Name})}
	if err := plan.PostMap(table, ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, fmt.Sprintf("principal rules failed for %s", file))
	}

	table = table.Filter(func(r int) bool { return !isFooterRow(table, r) })

	firstRow := sheet.HeaderRow + 2
	if err := parsers.Coerce(table, file, firstRow); err != nil {
		if ce, ok := errors.AsCommissionError(err); ok {
			return nil, ce.WithContext("sheet", sheet.Name)
		}
		return nil, err
	}

	if err := plan.Finish(table, ctx); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, fmt.Sprintf("finalizing %s", file))
	}

	e.stamp(table, file, plan.Principal)
	return table.Select(e.canonical...), nil
}

// mapColumns renames vendor headers to canonical names through the alias
// table. Zero candidates leaves the column empty, more than one aborts.
func (e *Engine) mapColumns(file, sheet string, table *models.Table) error {
	var unmapped []string
	for _, col := range e.mapping.Columns {
		hits := e.mapping.Matches(col, table.Columns())
		switch len(hits) {
		case 0:
			unmapped = append(unmapped, col)
		case 1:
			if err := table.RenameColumn(hits[0], col); err != nil {
				return errors.SchemaError(errors.CodeDuplicateColumn, file, []string{col}).WithContext("sheet", sheet)
			}
		default:
			return errors.SchemaError(errors.CodeAmbiguousMapping, file, []string{col}).
				WithContext("sheet", sheet).
				WithContext("candidates", hits)
		}
	}
	if len(unmapped) > 0 {
		e.logger.WithFields(logger.Fields{
			"file":     file,
			"sheet":    sheet,
			"unmapped": unmapped,
		}).Warn("Canonical columns with no matching vendor column left empty")
	}
	return nil
}

// isFooterRow drops blank and total lines: no commission and no customer or
// part to attribute.
func isFooterRow(t *models.Table, r int) bool {
	return strings.TrimSpace(t.Get(models.ColActualCommPaid, r)) == "" &&
		strings.TrimSpace(t.Get(models.ColReportedCustomer, r)) == "" &&
		strings.TrimSpace(t.Get(models.ColPartNumber, r)) == ""
}

// stamp writes provenance, identity and the temporal fields derived from the
// invoice date. Sales Commission starts at zero until the row is settled.
func (e *Engine) stamp(t *models.Table, file, principal string) {
	for r := 0; r < t.Len(); r++ {
		t.Set(models.ColSourceFile, r, file)
		t.Set(models.ColPrincipal, r, principal)
		t.Set(models.ColUniqueID, r, e.newID())
		t.Set(models.ColSalesCommission, r, models.FormatMoney(decimal.Zero))
		DeriveTemporal(t, r)
	}
}

// DeriveTemporal sets Year, Month and Quarter Shipped from Invoice Date when
// it parses; otherwise the row is left as is.
func DeriveTemporal(t *models.Table, r int) bool {
	d, err := models.ParseDate(t.Get(models.ColInvoiceDate, r))
	if err != nil {
		return false
	}
	t.Set(models.ColYear, r, fmt.Sprintf("%d", d.Year()))
	t.Set(models.ColMonth, r, models.MonthAbbrev(d))
	t.Set(models.ColQuarterShipped, r, models.QuarterShipped(d))
	return true
}
