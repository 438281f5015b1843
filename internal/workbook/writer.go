// Package workbook serializes tables to spreadsheet files.
//
// Every tab written gets a bold frozen header row, an autofilter over the data
// rectangle and column widths fitted to the longest value (capped). Cells are
// typed from the column classification in models: dollar, integer, percent
// and date columns are written as numbers with a matching number format,
// identifier columns as text so leading zeros survive a round trip through a
// spreadsheet application.
//
// Saving is all-or-nothing across a SaveSet: every target is probed for an
// external lock before any file is touched, each workbook is rendered to a
// temporary file in its destination directory, and only when every render
// succeeded are the temporaries moved into place.
package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

// MaxColumnWidth caps fitted column widths.
const MaxColumnWidth = 50

// Number formats per column kind.
const (
	dollarFormat  = `$#,##0.00`
	percentFormat = `0.00%`
	integerFormat = `0`
	dateFormat    = `yyyy-mm-dd`
	splitFormat   = `0.##`
	textFormatID  = 49
)

// Tab is one sheet of a workbook. Kinds overrides the classification of
// columns models does not know, such as pivot value columns.
type Tab struct {
	Name  string
	Data  *models.Table
	Kinds map[string]models.ColumnKind
}

func (t Tab) kindOf(col string) models.ColumnKind {
	if k, ok := t.Kinds[col]; ok {
		return k
	}
	return models.KindOf(col)
}

// Writer renders tables into workbooks.
type Writer struct {
	logger logger.Logger
}

// NewWriter creates a workbook writer
func NewWriter() *Writer {
	return &Writer{logger: logger.GetGlobalLogger().WithComponent("workbook")}
}

// Write saves a single workbook after checking it is not held open.
func (w *Writer) Write(path string, tabs ...Tab) error {
	set := w.NewSaveSet()
	set.Add(path, tabs...)
	return set.Save()
}

type styles struct {
	header  int
	dollar  int
	percent int
	integer int
	date    int
	text    int
	split   int
}

func newStyles(f *excelize.File) (*styles, error) {
	custom := func(format string) (int, error) {
		return f.NewStyle(&excelize.Style{CustomNumFmt: &format})
	}

	s := &styles{}
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return nil, err
	}
	if s.dollar, err = custom(dollarFormat); err != nil {
		return nil, err
	}
	if s.percent, err = custom(percentFormat); err != nil {
		return nil, err
	}
	if s.integer, err = custom(integerFormat); err != nil {
		return nil, err
	}
	if s.date, err = custom(dateFormat); err != nil {
		return nil, err
	}
	if s.split, err = custom(splitFormat); err != nil {
		return nil, err
	}
	if s.text, err = f.NewStyle(&excelize.Style{NumFmt: textFormatID}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *styles) forColumn(col string, kind models.ColumnKind) int {
	if col == models.ColCMSplit {
		return s.split
	}
	switch kind {
	case models.KindDollar:
		return s.dollar
	case models.KindPercent:
		return s.percent
	case models.KindInteger:
		return s.integer
	case models.KindDate:
		return s.date
	case models.KindIdentifier:
		return s.text
	}
	return 0
}

// render builds the workbook in memory.
func (w *Writer) render(tabs []Tab) (*excelize.File, error) {
	if len(tabs) == 0 {
		return nil, fmt.Errorf("workbook needs at least one tab")
	}

	f := excelize.NewFile()
	st, err := newStyles(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating styles: %w", err)
	}

	for i, tab := range tabs {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", tab.Name); err != nil {
				f.Close()
				return nil, err
			}
		} else if _, err := f.NewSheet(tab.Name); err != nil {
			f.Close()
			return nil, err
		}
		if err := writeTab(f, st, tab); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing tab %s: %w", tab.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeTab(f *excelize.File, st *styles, tab Tab) error {
	data := tab.Data
	if data == nil {
		data = models.NewTable()
	}
	columns := data.Columns()
	if len(columns) == 0 {
		return nil
	}

	header := append([]string{}, columns...)
	if err := f.SetSheetRow(tab.Name, "A1", &header); err != nil {
		return err
	}

	widths := make([]int, len(columns))
	for c, col := range columns {
		widths[c] = utf8.RuneCountInString(col)
	}

	row := make([]interface{}, len(columns))
	for r := 0; r < data.Len(); r++ {
		for c, col := range columns {
			v := data.Get(col, r)
			row[c] = cellValue(tab.kindOf(col), v)
			if n := utf8.RuneCountInString(v); n > widths[c] {
				widths[c] = n
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(tab.Name, cell, &row); err != nil {
			return err
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(columns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(tab.Name, "A1", lastCol+"1", st.header); err != nil {
		return err
	}

	for c, col := range columns {
		name, _ := excelize.ColumnNumberToName(c + 1)
		if style := st.forColumn(col, tab.kindOf(col)); style != 0 && data.Len() > 0 {
			if err := f.SetCellStyle(tab.Name, name+"2", fmt.Sprintf("%s%d", name, data.Len()+1), style); err != nil {
				return err
			}
		}
		width := widths[c]
		if width > MaxColumnWidth {
			width = MaxColumnWidth
		}
		if width < 1 {
			width = 1
		}
		if err := f.SetColWidth(tab.Name, name, name, float64(width)); err != nil {
			return err
		}
	}

	if err := f.SetPanes(tab.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	filterRef := fmt.Sprintf("A1:%s%d", lastCol, data.Len()+1)
	return f.AutoFilter(tab.Name, filterRef, nil)
}

// CellValue converts a stored string to the typed value written for its
// column. Values that do not parse for their column's kind are written as
// text unchanged.
func CellValue(col, v string) interface{} {
	return cellValue(models.KindOf(col), v)
}

func cellValue(kind models.ColumnKind, v string) interface{} {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	switch kind {
	case models.KindDollar, models.KindPercent:
		d, err := models.ParseDecimal(v)
		if err != nil {
			return v
		}
		f, _ := d.Float64()
		return f
	case models.KindInteger:
		n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), 10, 64)
		if err != nil {
			return v
		}
		return n
	case models.KindDate:
		t, err := models.ParseDate(v)
		if err != nil {
			return v
		}
		return t
	}
	return v
}

// IsLocked reports whether another process holds path open. A missing file
// is never locked. The probe is an open for read-write; an Office owner file
// (~$name) beside the target also counts.
func IsLocked(path string) bool {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return true
	}
	f.Close()

	owner := filepath.Join(filepath.Dir(path), "~$"+filepath.Base(path))
	if _, err := os.Stat(owner); err == nil {
		return true
	}
	return false
}

// CheckUnlocked returns a file-locked error naming every locked path.
func CheckUnlocked(paths ...string) error {
	var locked []string
	for _, p := range paths {
		if IsLocked(p) {
			locked = append(locked, p)
		}
	}
	if len(locked) == 0 {
		return nil
	}
	return errors.FileError(errors.CodeFileLocked, locked[0], nil).
		WithContext("locked_files", locked)
}

// BackupPath returns the backup name for path on the given day:
// <stem>_BACKUP_<mm-dd-YYYY>.xlsx in the same directory.
func BackupPath(path string, day time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), fmt.Sprintf("%s_BACKUP_%s.xlsx", stem, day.Format("01-02-2006")))
}
