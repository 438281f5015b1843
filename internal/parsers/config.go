package parsers

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

//go:embed defaults/fieldmappings.yaml
var defaultFieldMappings []byte

// FieldMapping is the alias table that resolves vendor headers to canonical
// columns. Columns keeps the table's header order, which seeds the canonical
// column ordering.
type FieldMapping struct {
	Columns []string
	aliases map[string][]string
}

type fieldMappingEntry struct {
	Column  string   `yaml:"column"`
	Aliases []string `yaml:"aliases"`
}

// NewFieldMapping builds a mapping from ordered canonical columns and their
// aliases. The canonical name always matches itself.
func NewFieldMapping(columns []string, aliases map[string][]string) *FieldMapping {
	fm := &FieldMapping{aliases: make(map[string][]string)}
	for _, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, seen := fm.aliases[c]; !seen {
			fm.Columns = append(fm.Columns, c)
		}
		list := append([]string{c}, aliases[c]...)
		fm.aliases[c] = append(fm.aliases[c], list...)
	}
	return fm
}

// DefaultFieldMapping returns the embedded alias table
func DefaultFieldMapping() *FieldMapping {
	var entries []fieldMappingEntry
	if err := yaml.Unmarshal(defaultFieldMappings, &entries); err != nil {
		panic(fmt.Sprintf("embedded field mappings are invalid: %v", err))
	}
	columns := make([]string, 0, len(entries))
	aliases := make(map[string][]string, len(entries))
	for _, e := range entries {
		columns = append(columns, e.Column)
		aliases[e.Column] = e.Aliases
	}
	return NewFieldMapping(columns, aliases)
}

// LoadFieldMapping reads fieldMappings.xlsx: one column per canonical name
// with its aliases listed below the header. A missing file falls back to the
// embedded table with a warning.
func LoadFieldMapping(path string) (*FieldMapping, error) {
	log := logger.GetGlobalLogger().WithComponent("field_mapping").WithField("file_path", path)

	sheets, err := NewBaseParser(&ParseConfig{SkipEmptyRows: false, Delimiter: ','}).ReadWorkbook(path)
	if err != nil {
		if errors.HasCode(err, errors.CodeFileNotFound) {
			log.Warn("Field mapping workbook not found, using built-in aliases")
			return DefaultFieldMapping(), nil
		}
		return nil, err
	}
	if len(sheets) == 0 || len(sheets[0].Rows) == 0 {
		return nil, errors.SchemaError(errors.CodeMissingColumn, filepath.Base(path), []string{"<canonical column headers>"})
	}

	grid := sheets[0].Rows
	header := grid[0]
	aliases := make(map[string][]string, len(header))
	for c, name := range header {
		name = strings.TrimSpace(name)
		for _, row := range grid[1:] {
			if c < len(row) && strings.TrimSpace(row[c]) != "" {
				aliases[name] = append(aliases[name], strings.TrimSpace(row[c]))
			}
		}
	}

	fm := NewFieldMapping(header, aliases)
	log.WithField("columns", len(fm.Columns)).Debug("Loaded field mapping")
	return fm, nil
}

// Aliases returns the alias list of a canonical column, the name included.
func (fm *FieldMapping) Aliases(column string) []string {
	return fm.aliases[column]
}

// Matches returns the headers that match any alias of the canonical column,
// in header order.
func (fm *FieldMapping) Matches(column string, headers []string) []string {
	wanted := make(map[string]bool)
	for _, a := range fm.aliases[column] {
		wanted[headerKey(a)] = true
	}
	var hits []string
	for _, h := range headers {
		if wanted[headerKey(h)] {
			hits = append(hits, h)
		}
	}
	return hits
}

// IsAlias reports whether a header matches any alias of any column.
func (fm *FieldMapping) IsAlias(header string) bool {
	key := headerKey(header)
	for _, list := range fm.aliases {
		for _, a := range list {
			if headerKey(a) == key {
				return true
			}
		}
	}
	return false
}

// CanonicalColumns returns the full canonical ordering for this mapping.
func (fm *FieldMapping) CanonicalColumns() []string {
	return models.CanonicalColumns(fm.Columns)
}

func headerKey(h string) string {
	return models.FoldKey(strings.Join(strings.Fields(h), " "))
}
