package parsers

import (
	"path/filepath"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

// WorkingFile is a Running Commissions or Commissions Master workbook: a
// Master tab plus its Files Processed ledger.
type WorkingFile struct {
	Path  string
	Data  *models.Table
	Files *models.Table
}

// ReadTab reads one tab whose first row is the header. Stored values are
// brought back to their canonical text form (see Normalize).
func (bp *BaseParser) ReadTab(path, tab string) (*models.Table, error) {
	sheet, err := bp.ReadSheet(path, tab)
	if err != nil {
		return nil, err
	}
	table := GridTable(sheet.Rows, 0)
	Normalize(table)
	return table, nil
}

// LoadWorkingFile reads the Master and Files Processed tabs. A missing
// ledger tab yields an empty ledger; a missing Master tab is a schema error.
func (bp *BaseParser) LoadWorkingFile(path string) (*WorkingFile, error) {
	log := bp.logger.WithField("file_path", path)

	data, err := bp.ReadTab(path, models.TabMaster)
	if err != nil {
		return nil, err
	}

	files, err := bp.ReadTab(path, models.TabFilesProcessed)
	if err != nil {
		if !errors.HasCode(err, errors.CodeMissingTab) {
			return nil, err
		}
		log.Warn("Files Processed tab missing, starting an empty ledger")
		files = models.NewFilesProcessed()
	}

	log.WithFields(logger.Fields{
		"rows":  data.Len(),
		"files": files.Len(),
	}).Debug("Loaded working file")

	return &WorkingFile{Path: path, Data: data, Files: files}, nil
}

// NewWorkingFile returns an empty working file with the given data columns.
func NewWorkingFile(path string, columns []string) *WorkingFile {
	return &WorkingFile{
		Path:  path,
		Data:  models.NewTable(columns...),
		Files: models.NewFilesProcessed(),
	}
}

// LoadFixWorkbook reads the Data tab of an Entries Need Fixing workbook. A
// missing file yields an empty table with the fix layout.
func (bp *BaseParser) LoadFixWorkbook(path string, canonical []string) (*models.Table, error) {
	table, err := bp.ReadTab(path, models.TabData)
	if err != nil {
		if errors.HasCode(err, errors.CodeFileNotFound) {
			bp.logger.WithField("file_path", path).Info("No fix workbook yet, starting empty")
			return models.NewTable(models.FixColumns(canonical)...), nil
		}
		return nil, err
	}
	return table, nil
}

// Name returns the basename of the working file
func (w *WorkingFile) Name() string {
	return filepath.Base(w.Path)
}
