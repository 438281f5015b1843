package parsers

import (
	"fmt"
	"strings"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/pkg/logger"
)

// ReportSheet is one vendor worksheet with its header resolved.
type ReportSheet struct {
	Name      string
	HeaderRow int
	Table     *models.Table
}

// ReportParser reads raw vendor commission reports. It embeds BaseParser
// for file access and uses the field mapping to find each sheet's header row.
type ReportParser struct {
	*BaseParser
	mapping *FieldMapping
}

// NewReportParser creates a parser for vendor reports
func NewReportParser(mapping *FieldMapping, config *ParseConfig) *ReportParser {
	if mapping == nil {
		mapping = DefaultFieldMapping()
	}
	return &ReportParser{
		BaseParser: NewBaseParser(config),
		mapping:    mapping,
	}
}

// Mapping returns the field mapping in use
func (rp *ReportParser) Mapping() *FieldMapping {
	return rp.mapping
}

// ParseReport reads every sheet of a vendor report. Sheets with no rows are
// returned with an empty table so callers can still log and skip them.
func (rp *ReportParser) ParseReport(path string) ([]ReportSheet, error) {
	sheets, err := rp.ReadWorkbook(path)
	if err != nil {
		return nil, err
	}

	out := make([]ReportSheet, 0, len(sheets))
	for _, s := range sheets {
		header := rp.FindHeaderRow(s.Rows)
		table := GridTable(s.Rows, header)
		rp.logger.WithFields(logger.Fields{
			"file_path":  path,
			"sheet":      s.Name,
			"header_row": header + 1,
			"rows":       table.Len(),
		}).Debug("Parsed report sheet")
		out = append(out, ReportSheet{Name: s.Name, HeaderRow: header, Table: table})
	}
	return out, nil
}

// FindHeaderRow returns the index of the first row, within the scan window,
// holding at least MinHeaderMatches cells that are known aliases. Sheets with
// no such row use the first row.
func (rp *ReportParser) FindHeaderRow(rows [][]string) int {
	limit := rp.config.HeaderScanRows
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	minHits := rp.config.MinHeaderMatches
	if minHits <= 0 {
		minHits = 1
	}

	for i := 0; i < limit; i++ {
		hits := 0
		for _, cell := range rows[i] {
			if strings.TrimSpace(cell) != "" && rp.mapping.IsAlias(cell) {
				hits++
			}
		}
		if hits >= minHits {
			return i
		}
	}
	return 0
}

// GridTable turns a cell grid into a table using rows[header] as the header.
// Repeated header names get a numeric suffix so no column is lost.
func GridTable(rows [][]string, header int) *models.Table {
	if header >= len(rows) {
		return models.NewTable()
	}

	headers := uniqueHeaders(cleanHeaders(rows[header]))
	width := len(headers)
	for _, row := range rows[header+1:] {
		if len(row) > width {
			width = len(row)
		}
	}
	for i := len(headers); i < width; i++ {
		headers = append(headers, fmt.Sprintf("Unnamed-%d", i+1))
	}

	table := models.NewTable(headers...)
	for _, row := range rows[header+1:] {
		record := make([]string, width)
		for i := 0; i < width && i < len(row); i++ {
			record[i] = strings.TrimSpace(row[i])
		}
		table.AppendRecord(record)
	}
	return table
}

func uniqueHeaders(headers []string) []string {
	seen := make(map[string]int, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		n := seen[h]
		seen[h] = n + 1
		if n > 0 {
			h = fmt.Sprintf("%s.%d", h, n)
		}
		out[i] = h
	}
	return out
}
