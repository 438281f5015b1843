package reconciler

import (
	"strings"

	"taarcom-commissions/internal/models"
)

// FixPreprocessor cleans operator edits in the fix workbook before rows are
// tested for completeness.
type FixPreprocessor struct {
	config *PreprocessingConfig
}

// PreprocessingConfig contains configuration for fix-row preprocessing
type PreprocessingConfig struct {
	TrimWhitespace       bool
	UppercaseInitials    bool
	NormalizeIdentifiers bool
	NormalizeDates       bool
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		TrimWhitespace:       true,
		UppercaseInitials:    true,
		NormalizeIdentifiers: true,
		NormalizeDates:       true,
	}
}

// NewFixPreprocessor creates a new preprocessor
func NewFixPreprocessor(config *PreprocessingConfig) *FixPreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	return &FixPreprocessor{config: config}
}

// Preprocess normalizes t in place and returns the number of cells changed.
// Dates that do not parse are left for the date check to report.
func (fp *FixPreprocessor) Preprocess(t *models.Table) int {
	changed := 0
	for _, col := range t.Columns() {
		values := t.Column(col)
		for i, v := range values {
			clean := fp.cell(col, v)
			if clean != v {
				values[i] = clean
				changed++
			}
		}
	}
	return changed
}

func (fp *FixPreprocessor) cell(col, v string) string {
	if fp.config.TrimWhitespace {
		v = strings.TrimSpace(v)
	}
	if v == "" {
		return v
	}

	switch {
	case fp.config.UppercaseInitials && (col == models.ColCMSales || col == models.ColDesignSales):
		return strings.ToUpper(v)
	case fp.config.NormalizeIdentifiers && models.KindOf(col) == models.KindIdentifier:
		return models.NormalizeIdentifier(v)
	case fp.config.NormalizeDates && models.KindOf(col) == models.KindDate:
		return models.NormalizeDate(v)
	}
	return v
}
