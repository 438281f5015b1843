package reporter

import (
	"context"
	"os"
	"path/filepath"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/internal/parsers"
	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/internal/workbook"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

// CloseRequest names the Running Commissions workbook to close. Without
// one, the reports of the latest close are rebuilt from the Master and
// nothing else is written.
type CloseRequest struct {
	RunningPath string
}

// CloseJob runs the quarter close against the directory tree.
type CloseJob struct {
	config *reconciler.Config
	dirs   reconciler.Dirs
	loader *parsers.LookupLoader
	reader *parsers.BaseParser
	writer *workbook.Writer
	closer *Closer
	logger logger.Logger
}

// NewCloseJob creates a close job rooted at dirs
func NewCloseJob(config *reconciler.Config, dirs reconciler.Dirs) (*CloseJob, error) {
	if config == nil {
		config = reconciler.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &CloseJob{
		config: config,
		dirs:   dirs,
		loader: parsers.NewLookupLoader(dirs.Lookups),
		reader: parsers.NewBaseParser(nil),
		writer: workbook.NewWriter(),
		closer: NewCloser(config),
		logger: logger.GetGlobalLogger().WithComponent("close"),
	}, nil
}

// MasterPath is the Commissions Master in the working directory.
func (j *CloseJob) MasterPath() string {
	return filepath.Join(j.dirs.Working, reconciler.MasterFile)
}

// Run closes the requested Running Commissions. The Master, Running
// Commissions, Lookup Master, Quarantine and every report are saved as one
// set; a rejection or a locked target writes nothing but the Master backup.
func (j *CloseJob) Run(ctx context.Context, req *CloseRequest) (*reconciler.JobSummary, error) {
	if req == nil || req.RunningPath == "" {
		return j.reportsOnly(ctx)
	}

	op := logger.NewOperationLogger("close", j.logger).WithField("running", filepath.Base(req.RunningPath))
	summary := reconciler.NewJobSummary("close")
	today := j.config.Today()

	running, err := j.reader.LoadWorkingFile(req.RunningPath)
	if err != nil {
		op.Error(err, "Running Commissions unavailable")
		return nil, err
	}

	masterPath := j.MasterPath()
	if _, err := workbook.Backup(masterPath, today); err != nil {
		op.Error(err, "Commissions Master backup failed")
		return nil, err
	}
	master, err := j.loadMaster(masterPath, running.Data.Columns())
	if err != nil {
		op.Error(err, "Commissions Master unavailable")
		return nil, err
	}

	accounts, err := j.loader.LoadRequired(parsers.AccountListSpec)
	if err != nil {
		op.Error(err, "Account List unavailable")
		return nil, err
	}
	lookupMaster, err := j.loader.LoadRequired(parsers.LookupMasterSpec)
	if err != nil {
		op.Error(err, "Lookup Master unavailable")
		return nil, err
	}
	quarantine, err := j.loader.LoadWritable(parsers.QuarantineSpec)
	if err != nil {
		op.Error(err, "Quarantined Lookups unreadable")
		return nil, err
	}

	result, err := j.closer.Close(&CloseInput{
		Running:      running,
		Master:       master,
		Accounts:     accounts,
		LookupMaster: lookupMaster,
	})
	if err != nil {
		op.Error(err, "Quarter close rejected, nothing written")
		return summary.Finish(), err
	}
	summary.Quarantined = reconciler.AgeLookups(result.LookupMaster, quarantine, today, j.config.MaxLookupAgeDays)

	if err := ctx.Err(); err != nil {
		return summary.Finish(), err
	}

	set := j.writer.NewSaveSet()
	set.Add(masterPath,
		workbook.Tab{Name: models.TabMaster, Data: result.Master},
		workbook.Tab{Name: models.TabFilesProcessed, Data: result.MasterFiles})
	set.Add(running.Path,
		workbook.Tab{Name: models.TabMaster, Data: result.Running},
		workbook.Tab{Name: models.TabFilesProcessed, Data: running.Files})
	set.Add(parsers.LookupMasterSpec.Path(j.dirs.Lookups),
		workbook.Tab{Name: parsers.LookupMasterSpec.Tab, Data: result.LookupMaster})
	set.Add(parsers.QuarantineSpec.Path(j.dirs.Lookups),
		workbook.Tab{Name: parsers.QuarantineSpec.Tab, Data: quarantine})
	summary.Reports = j.addReports(set, result.Reports)
	if err := set.Save(); err != nil {
		op.Error(err, "Quarter close outputs not saved")
		return summary.Finish(), err
	}

	summary.Outputs = set.Paths()
	summary.RowsAdded = result.Running.Len()
	summary.LookupAdded = result.LookupAdded
	summary.CommMonth = result.CommMonth.String()
	summary.ActualCommTotal = result.Total

	op.WithField("comm_month", summary.CommMonth).WithField("reports", len(summary.Reports)).Success("Quarter close completed")
	return summary.Finish(), nil
}

func (j *CloseJob) reportsOnly(ctx context.Context) (*reconciler.JobSummary, error) {
	op := logger.NewOperationLogger("reports", j.logger)
	summary := reconciler.NewJobSummary("close")

	masterPath := j.MasterPath()
	if _, err := os.Stat(masterPath); err != nil {
		err = errors.FileError(errors.CodeFileNotFound, masterPath, err).
			WithSuggestion("Pass a Running Commissions workbook to close, or close one first")
		op.Error(err, "Commissions Master unavailable")
		return nil, err
	}
	master, err := j.reader.LoadWorkingFile(masterPath)
	if err != nil {
		op.Error(err, "Commissions Master unavailable")
		return nil, err
	}
	accounts, err := j.loader.LoadRequired(parsers.AccountListSpec)
	if err != nil {
		op.Error(err, "Account List unavailable")
		return nil, err
	}

	reports, month, err := j.closer.Reports(master.Data, accounts)
	if err != nil {
		op.Error(err, "Reports not built")
		return summary.Finish(), err
	}
	if err := ctx.Err(); err != nil {
		return summary.Finish(), err
	}

	set := j.writer.NewSaveSet()
	summary.Reports = j.addReports(set, reports)
	if err := set.Save(); err != nil {
		op.Error(err, "Reports not saved")
		return summary.Finish(), err
	}
	summary.Outputs = set.Paths()
	summary.CommMonth = month.String()

	op.WithField("reports", len(reports)).Success("Reports rebuilt")
	return summary.Finish(), nil
}

// loadMaster reads the Commissions Master, starting an empty one with the
// Running Commissions columns when none exists yet.
func (j *CloseJob) loadMaster(path string, columns []string) (*parsers.WorkingFile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		j.logger.WithField("file_path", path).Warn("No Commissions Master yet, starting a new one")
		return parsers.NewWorkingFile(path, columns), nil
	}
	return j.reader.LoadWorkingFile(path)
}

func (j *CloseJob) addReports(set *workbook.SaveSet, reports []Report) []string {
	paths := make([]string, len(reports))
	for i, r := range reports {
		paths[i] = filepath.Join(j.dirs.Reports, r.Name)
		set.Add(paths[i], r.Tabs...)
	}
	return paths
}
