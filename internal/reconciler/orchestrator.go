// Package reconciler runs the commission jobs over the shared directory tree.
//
// This package coordinates:
//   - the ingest job: canonicalize raw reports, attribute them, append to
//     Running Commissions and route unresolved rows to Entries Need Fixing
//   - the merge job: promote completed fix rows back into Running
//     Commissions by Unique ID and age the Lookup Master
//   - the commission arithmetic and file naming shared with quarter close
//
// Engines are pure functions over in-memory tables. The Orchestrator owns
// file I/O and saves each job's outputs as one set: if any target is held
// open by another program, nothing is written.
//
// Example usage:
//
//	orchestrator, err := reconciler.NewOrchestrator(reconciler.DefaultConfig(), dirs)
//	summary, err := orchestrator.Ingest(ctx, &reconciler.IngestRequest{
//		Inputs: []ingest.Input{{Path: "ABR March.xlsx"}},
//	})
package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"taarcom-commissions/internal/ingest"
	"taarcom-commissions/internal/matcher"
	"taarcom-commissions/internal/models"
	"taarcom-commissions/internal/parsers"
	"taarcom-commissions/internal/workbook"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

// Orchestrator runs the ingest and merge jobs against a directory tree.
type Orchestrator struct {
	config *Config
	dirs   Dirs
	loader *parsers.LookupLoader
	reader *parsers.BaseParser
	writer *workbook.Writer
	logger logger.Logger

	progressCallbacks []ProgressCallback
	currentProgress   *JobProgress
	progressMutex     sync.RWMutex
}

// JobProgress tracks the steps of a running job
type JobProgress struct {
	Job             string        `json:"job"`
	TotalSteps      int           `json:"total_steps"`
	CompletedSteps  int           `json:"completed_steps"`
	CurrentStep     string        `json:"current_step"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
}

// ProgressCallback is called after every job step
type ProgressCallback func(*JobProgress)

// IngestRequest names the raw reports to ingest and, optionally, the Running
// Commissions workbook to append to. Without one, a new workbook dated today
// is created in the working directory.
type IngestRequest struct {
	Inputs      []ingest.Input
	RunningPath string
}

// Validate validates the ingest request
func (r *IngestRequest) Validate() error {
	if len(r.Inputs) == 0 && r.RunningPath == "" {
		return errors.ValidationError(errors.CodeMissingField, "raw files", nil, nil).
			WithSuggestion("Pass at least one raw report or an existing Running Commissions workbook")
	}
	for _, in := range r.Inputs {
		if in.Path == "" {
			return errors.ValidationError(errors.CodeMissingField, "raw file path", in.Path, nil)
		}
	}
	return nil
}

// MergeRequest names the Running Commissions workbook whose fixes are merged.
type MergeRequest struct {
	RunningPath string
}

// Validate validates the merge request
func (r *MergeRequest) Validate() error {
	if r.RunningPath == "" {
		return errors.ValidationError(errors.CodeMissingField, "running commissions path", nil, nil)
	}
	return nil
}

// NewOrchestrator creates an orchestrator rooted at dirs
func NewOrchestrator(config *Config, dirs Dirs) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log := logger.GetGlobalLogger().WithComponent("orchestrator")
	log.WithFields(logger.Fields{
		"lookups": dirs.Lookups,
		"working": dirs.Working,
		"reports": dirs.Reports,
	}).Debug("Creating orchestrator")

	return &Orchestrator{
		config:          config,
		dirs:            dirs,
		loader:          parsers.NewLookupLoader(dirs.Lookups),
		reader:          parsers.NewBaseParser(nil),
		writer:          workbook.NewWriter(),
		logger:          log,
		currentProgress: &JobProgress{},
	}, nil
}

// AddProgressCallback adds a callback for progress updates
func (o *Orchestrator) AddProgressCallback(callback ProgressCallback) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	o.progressCallbacks = append(o.progressCallbacks, callback)
}

// GetCurrentProgress returns a copy of the current job progress
func (o *Orchestrator) GetCurrentProgress() *JobProgress {
	o.progressMutex.RLock()
	defer o.progressMutex.RUnlock()
	progress := *o.currentProgress
	return &progress
}

func (o *Orchestrator) startProgress(job string, steps int) {
	o.progressMutex.Lock()
	o.currentProgress = &JobProgress{Job: job, TotalSteps: steps, StartTime: time.Now()}
	o.progressMutex.Unlock()
}

func (o *Orchestrator) updateProgress(step string) {
	o.progressMutex.Lock()
	p := o.currentProgress
	p.CompletedSteps++
	p.CurrentStep = step
	if p.TotalSteps > 0 {
		p.PercentComplete = float64(p.CompletedSteps) / float64(p.TotalSteps) * 100
	}
	p.ElapsedTime = time.Since(p.StartTime)
	snapshot := *p
	callbacks := append([]ProgressCallback{}, o.progressCallbacks...)
	o.progressMutex.Unlock()

	for _, cb := range callbacks {
		cb(&snapshot)
	}
}

// fieldMapping loads fieldMappings.xlsx from the lookups directory.
func (o *Orchestrator) fieldMapping() (*parsers.FieldMapping, error) {
	return parsers.LoadFieldMapping(filepath.Join(o.dirs.Lookups, parsers.FieldMappingsFile))
}

// Ingest canonicalizes and attributes the requested reports and saves
// Running Commissions, its fix twin and the Lookup Master together. Files
// that abort are reported in the summary and the first failure is returned
// after the other files have been saved.
func (o *Orchestrator) Ingest(ctx context.Context, req *IngestRequest) (*JobSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	op := logger.NewOperationLogger("ingest", o.logger).WithField("files", len(req.Inputs))
	summary := NewJobSummary("ingest")
	o.startProgress("ingest", 5)
	today := o.config.Today()

	mapping, err := o.fieldMapping()
	if err != nil {
		op.Error(err, "Field mapping unavailable")
		return nil, err
	}
	lookupMaster, err := o.loader.LoadRequired(parsers.LookupMasterSpec)
	if err != nil {
		op.Error(err, "Lookup Master unavailable")
		return nil, err
	}
	distributors, err := o.loader.LoadRequired(parsers.DistributorMapSpec)
	if err != nil {
		op.Error(err, "Distributor Map unavailable")
		return nil, err
	}
	roots := o.loader.LoadOptional(parsers.RootCustomerSpec)
	principalList := o.loader.LoadOptional(parsers.PrincipalListSpec)
	invoiceLog := o.loader.LoadOptional(parsers.InvoiceLogSpec)
	o.updateProgress("Lookups loaded")

	engine := ingest.NewEngine(ingest.Config{
		Mapping:        mapping,
		InvoiceLog:     invoiceLog,
		PrincipalCodes: parsers.PrincipalCodes(principalList),
		Now:            o.config.Now,
		NewID:          o.config.NewID,
	})
	canonical := engine.Canonical()

	running, err := o.openRunning(req.RunningPath, canonical, today)
	if err != nil {
		op.Error(err, "Running Commissions unavailable")
		return nil, err
	}
	fixPath := FixPath(running.Path)
	fix, err := o.reader.LoadFixWorkbook(fixPath, canonical)
	if err != nil {
		op.Error(err, "Fix workbook unavailable")
		return nil, err
	}
	o.updateProgress("Working files loaded")

	result := engine.Ingest(req.Inputs, running.Files)
	for _, f := range result.Files {
		summary.Files = append(summary.Files, fileSummary(f))
	}
	summary.Issues = append(summary.Issues, result.Issues.Issues()...)
	o.updateProgress("Reports canonicalized")

	attribution := o.attributionEngine(lookupMaster, distributors, roots)
	attributed := attribution.Attribute(result.Data, models.FixColumns(canonical))
	summary.Issues = append(summary.Issues, attributed.Issues.Issues()...)
	o.updateProgress("Rows attributed")

	accepted := result.Accepted()
	if len(accepted) > 0 {
		if err := ctx.Err(); err != nil {
			return summary.Finish(), err
		}

		running.Data.Append(result.Data)
		fix.Append(attributed.Fix)
		for _, f := range accepted {
			models.LedgerRecord(running.Files, f.Path, f.Total, today)
		}

		set := o.writer.NewSaveSet()
		set.Add(running.Path,
			workbook.Tab{Name: models.TabMaster, Data: running.Data},
			workbook.Tab{Name: models.TabFilesProcessed, Data: running.Files})
		set.Add(fixPath, workbook.Tab{Name: models.TabData, Data: fix})
		if attributed.Summary.LookupRefreshed > 0 {
			set.Add(parsers.LookupMasterSpec.Path(o.dirs.Lookups),
				workbook.Tab{Name: parsers.LookupMasterSpec.Tab, Data: lookupMaster})
		}
		if err := set.Save(); err != nil {
			op.Error(err, "Ingest outputs not saved")
			return summary.Finish(), err
		}
		summary.Outputs = set.Paths()
	} else {
		o.logger.Info("No new rows, working files left untouched")
	}
	o.updateProgress("Saved")

	summary.RowsAdded = result.Data.Len()
	summary.FixAdded = attributed.Fix.Len()
	summary.FixPending = fix.Len()
	summary.LookupRefreshed = attributed.Summary.LookupRefreshed
	if total, err := models.SumColumn(running.Data, models.ColActualCommPaid); err == nil {
		summary.ActualCommTotal = total
	}

	if failed := result.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.Name()
		}
		err := errors.WrapIfNeeded(failed[0].Err, errors.CategoryInternal, errors.CodeProcessingError, "file aborted").
			WithContext("failed_files", names)
		op.Error(err, "Some files aborted")
		return summary.Finish(), err
	}

	op.WithField("rows_added", summary.RowsAdded).WithField("fix_added", summary.FixAdded).Success("Ingest completed")
	return summary.Finish(), nil
}

// openRunning loads the requested Running Commissions workbook or starts
// today's. A requested path that does not exist is a missing input.
func (o *Orchestrator) openRunning(path string, canonical []string, today time.Time) (*parsers.WorkingFile, error) {
	if path != "" {
		return o.reader.LoadWorkingFile(path)
	}

	path = filepath.Join(o.dirs.Working, RunningCommissionsName(today))
	if _, err := os.Stat(path); err == nil {
		o.logger.WithField("file_path", path).Info("Appending to today's Running Commissions")
		return o.reader.LoadWorkingFile(path)
	}
	o.logger.WithField("file_path", path).Info("Starting a new Running Commissions")
	return parsers.NewWorkingFile(path, canonical), nil
}

func (o *Orchestrator) attributionEngine(lookupMaster, distributors, roots *models.Table) *matcher.Engine {
	engine := matcher.NewEngine(&matcher.AttributionConfig{
		RefreshLastUsed:  o.config.RefreshLastUsed,
		RootCustomerHint: o.config.RootCustomerHint,
		Now:              o.config.Now,
	})
	engine.LoadLookupMaster(lookupMaster)
	engine.LoadDistributorMap(distributors)
	engine.LoadRootCustomers(roots)

	if conflicts := matcher.LookupConflicts(engine.Lookup); len(conflicts) > 0 {
		o.logger.WithField("conflicts", len(conflicts)).Warn("Lookup Master has several entries for some customer and part pairs")
	}
	return engine
}

func fileSummary(f ingest.FileResult) FileSummary {
	fs := FileSummary{Name: f.Name(), Principal: f.Principal, Rows: f.Rows, Total: f.Total, Status: FileAdded}
	switch {
	case f.Duplicate:
		fs.Status = FileDuplicate
		fs.Detail = "already in Files Processed"
	case f.Err != nil:
		fs.Status = FileFailed
		fs.Detail = f.Err.Error()
	}
	return fs
}

// Merge promotes completed fix rows, ages the Lookup Master and saves
// Running Commissions, the fix workbook, the Lookup Master and Quarantine as
// one set. A conservation failure or a locked target writes nothing.
func (o *Orchestrator) Merge(ctx context.Context, req *MergeRequest) (*JobSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	op := logger.NewOperationLogger("merge", o.logger).WithField("running", filepath.Base(req.RunningPath))
	summary := NewJobSummary("merge")
	o.startProgress("merge", 4)
	today := o.config.Today()

	running, err := o.reader.LoadWorkingFile(req.RunningPath)
	if err != nil {
		op.Error(err, "Running Commissions unavailable")
		return nil, err
	}
	fixPath := FixPath(running.Path)
	fix, err := o.reader.LoadFixWorkbook(fixPath, running.Data.Columns())
	if err != nil {
		op.Error(err, "Fix workbook unavailable")
		return nil, err
	}
	lookupMaster, err := o.loader.LoadRequired(parsers.LookupMasterSpec)
	if err != nil {
		op.Error(err, "Lookup Master unavailable")
		return nil, err
	}
	quarantine, err := o.loader.LoadWritable(parsers.QuarantineSpec)
	if err != nil {
		op.Error(err, "Quarantined Lookups unreadable")
		return nil, err
	}
	salespeople := parsers.SalespersonCodes(o.loader.LoadOptional(parsers.SalespeopleSpec))
	o.updateProgress("Inputs loaded")

	if dups := matcher.DuplicateIDs(running.Data); len(dups) > 0 {
		o.logger.WithField("groups", len(dups)).Warn("Running Commissions has rows sharing a Unique ID")
	}

	merged, err := NewMergeEngine(o.config, salespeople).Merge(running.Data, fix)
	if err != nil {
		op.Error(err, "Merge aborted, nothing written")
		return summary.Finish(), err
	}
	summary.Issues = merged.Issues.Issues()
	o.updateProgress("Fixes merged")

	summary.Quarantined = AgeLookups(lookupMaster, quarantine, today, o.config.MaxLookupAgeDays)
	o.updateProgress("Lookups aged")

	if err := ctx.Err(); err != nil {
		return summary.Finish(), err
	}

	set := o.writer.NewSaveSet()
	set.Add(running.Path,
		workbook.Tab{Name: models.TabMaster, Data: merged.Running},
		workbook.Tab{Name: models.TabFilesProcessed, Data: running.Files})
	set.Add(fixPath, workbook.Tab{Name: models.TabData, Data: merged.Fix})
	set.Add(parsers.LookupMasterSpec.Path(o.dirs.Lookups),
		workbook.Tab{Name: parsers.LookupMasterSpec.Tab, Data: lookupMaster})
	set.Add(parsers.QuarantineSpec.Path(o.dirs.Lookups),
		workbook.Tab{Name: parsers.QuarantineSpec.Tab, Data: quarantine})
	if err := set.Save(); err != nil {
		op.Error(err, "Merge outputs not saved")
		return summary.Finish(), err
	}
	o.updateProgress("Saved")

	summary.Promoted = merged.Promoted
	summary.FixPending = merged.Pending
	summary.ActualCommTotal = merged.Total
	summary.Outputs = set.Paths()

	op.WithField("promoted", merged.Promoted).WithField("pending", merged.Pending).Success("Merge completed")
	return summary.Finish(), nil
}
