// Package parsers reads vendor commission reports and the lookup workbooks of
// the shared directory into models.Table values.
//
// The package handles the variations found in real vendor reports:
//   - .xlsx/.xlsm workbooks (excelize), legacy .xls (xlsReader) and CSV
//   - CSV exports in Windows-1252 rather than UTF-8
//   - title rows above the header row
//   - vendor-specific header names, resolved through the field-mapping table
//   - money with currency symbols, separators and accounting parentheses
//   - dates as spreadsheet serials or in US and ISO layouts
//
// Example usage:
//
//	mapping, err := parsers.LoadFieldMapping(filepath.Join(lookups, parsers.FieldMappingsFile))
//	sheets, err := parsers.NewReportParser(mapping, nil).ParseReport("ABR March.xlsx")
package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

// Sheet is one worksheet as a grid of cell strings, in declaration order.
type Sheet struct {
	Name string
	Rows [][]string
}

// ParseConfig holds configuration for workbook reading
type ParseConfig struct {
	// HeaderScanRows bounds the search for a header row below title rows.
	HeaderScanRows int
	// MinHeaderMatches is the number of alias hits that marks a header row.
	MinHeaderMatches int
	SkipEmptyRows    bool
	Delimiter        rune
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HeaderScanRows:   20,
		MinHeaderMatches: 2,
		SkipEmptyRows:    true,
		Delimiter:        ',',
	}
}

// BaseParser provides common workbook reading functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("parser")
	log.WithFields(logger.Fields{
		"header_scan_rows":   config.HeaderScanRows,
		"min_header_matches": config.MinHeaderMatches,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// Config returns the parser configuration
func (bp *BaseParser) Config() *ParseConfig {
	return bp.config
}

// ReadWorkbook opens a workbook of any supported type and returns its sheets
// in declaration order.
func (bp *BaseParser) ReadWorkbook(path string) ([]Sheet, error) {
	log := bp.logger.WithField("file_path", path)
	log.Debug("Opening workbook")

	if _, err := os.Stat(path); err != nil {
		return nil, statError(path, err)
	}

	var sheets []Sheet
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		sheets, err = bp.readXLSX(path)
	case ".xls":
		sheets, err = bp.readXLS(path)
	case ".csv":
		sheets, err = bp.readCSV(path)
	default:
		return nil, errors.ParseError(errors.CodeUnsupportedExt, path, 0, "", filepath.Ext(path), nil)
	}
	if err != nil {
		log.WithError(err).Error("Failed to read workbook")
		return nil, err
	}

	if bp.config.SkipEmptyRows {
		for i := range sheets {
			sheets[i].Rows = dropEmptyRows(sheets[i].Rows)
		}
	}

	log.WithField("sheets", len(sheets)).Debug("Successfully read workbook")
	return sheets, nil
}

// ReadSheet reads a single named tab. A missing tab is a schema error.
func (bp *BaseParser) ReadSheet(path, tab string) (Sheet, error) {
	sheets, err := bp.ReadWorkbook(path)
	if err != nil {
		return Sheet{}, err
	}
	for _, s := range sheets {
		if strings.EqualFold(strings.TrimSpace(s.Name), tab) {
			return s, nil
		}
	}
	return Sheet{}, errors.SchemaError(errors.CodeMissingTab, filepath.Base(path), []string{tab})
}

func statError(path string, err error) error {
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, path, err)
	}
	if os.IsPermission(err) {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return errors.FileError(errors.CodeDirectoryError, path, err)
}

func (bp *BaseParser) readXLSX(path string) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, errors.FileError(errors.CodeFileCorrupted, path, err).WithContext("sheet", name)
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}

func (bp *BaseParser) readXLS(path string) ([]Sheet, error) {
	book, err := xls.OpenFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	var sheets []Sheet
	for i := 0; i < book.GetNumberSheets(); i++ {
		sheet, err := book.GetSheet(i)
		if err != nil || sheet == nil {
			bp.logger.WithFields(logger.Fields{"file_path": path, "sheet_index": i}).Warn("Skipping unreadable xls sheet")
			continue
		}
		var rows [][]string
		for _, row := range sheet.GetRows() {
			var values []string
			for _, col := range row.GetCols() {
				values = append(values, col.GetString())
			}
			rows = append(rows, values)
		}
		sheets = append(sheets, Sheet{Name: sheet.GetName(), Rows: rows})
	}
	return sheets, nil
}

func (bp *BaseParser) readCSV(path string) ([]Sheet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, statError(path, err)
	}

	var r io.Reader = bytes.NewReader(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")))
	if !utf8.Valid(raw) {
		bp.logger.WithField("file_path", path).Debug("CSV is not UTF-8, decoding as Windows-1252")
		r = transform.NewReader(bytes.NewReader(raw), charmap.Windows1252.NewDecoder())
	}

	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.ParseError(errors.CodeEncodingError, path, 0, "", "", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return []Sheet{{Name: name, Rows: rows}}, nil
}

func dropEmptyRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		if !isEmptyRecord(row) {
			out = append(out, row)
		}
	}
	return out
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// cleanHeaders removes whitespace and names blank header cells so that every
// column stays addressable.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		header = strings.Join(strings.Fields(header), " ")
		if header == "" {
			header = fmt.Sprintf("Unnamed-%d", i+1)
		}
		cleaned[i] = header
	}
	return cleaned
}
