package parsers

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"taarcom-commissions/internal/models"
	"taarcom-commissions/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// fullPrecision columns keep every decimal place instead of cents.
var fullPrecision = map[string]bool{
	models.ColUnitPrice: true,
	models.ColUnitCost:  true,
}

// Coerce normalizes every classified column of t in place. Only a
// non-numeric value in a numeric column is an error; it names the column and
// the spreadsheet row (firstRow is the sheet row number of table row 0).
func Coerce(t *models.Table, file string, firstRow int) error {
	for _, col := range t.Columns() {
		var err error
		switch models.KindOf(col) {
		case models.KindDollar:
			err = coerceDollar(t, col, file, firstRow)
		case models.KindInteger:
			err = coerceInteger(t, col, file, firstRow)
		case models.KindPercent:
			if col == models.ColCMSplit {
				coerceSplit(t)
				continue
			}
			err = coercePercent(t, col, file, firstRow)
		case models.KindDate:
			values := t.Column(col)
			for i, v := range values {
				values[i] = models.NormalizeDate(v)
			}
		case models.KindIdentifier:
			values := t.Column(col)
			for i, v := range values {
				values[i] = models.NormalizeIdentifier(v)
			}
			if col == models.ColPrincipal {
				for i, v := range values {
					values[i] = strings.ToUpper(v)
				}
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func nonNumeric(file string, row int, col, value string, err error) error {
	return errors.ParseError(errors.CodeNonNumeric, file, row, col, value, err)
}

func coerceDollar(t *models.Table, col, file string, firstRow int) error {
	values := t.Column(col)
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			values[i] = ""
			continue
		}
		d, err := models.ParseDecimal(v)
		if err != nil {
			return nonNumeric(file, firstRow+i, col, v, err)
		}
		if fullPrecision[col] {
			values[i] = d.String()
		} else {
			values[i] = models.FormatMoney(d)
		}
	}
	return nil
}

func coerceInteger(t *models.Table, col, file string, firstRow int) error {
	values := t.Column(col)
	for i, v := range values {
		clean := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if clean == "" {
			values[i] = ""
			continue
		}
		d, err := decimal.NewFromString(clean)
		if err != nil {
			return nonNumeric(file, firstRow+i, col, v, err)
		}
		if !d.IsInteger() {
			return nonNumeric(file, firstRow+i, col, v, nil)
		}
		values[i] = d.String()
	}
	return nil
}

// coercePercent parses rates and rescales the whole column when any value is
// above one, which means it was entered as a percentage.
func coercePercent(t *models.Table, col, file string, firstRow int) error {
	values := t.Column(col)
	parsed := make([]*decimal.Decimal, len(values))
	scale := false
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		d, err := models.ParseDecimal(v)
		if err != nil {
			return nonNumeric(file, firstRow+i, col, v, err)
		}
		parsed[i] = &d
		if d.GreaterThan(decimal.NewFromInt(1)) {
			scale = true
		}
	}
	for i, d := range parsed {
		if d == nil {
			values[i] = ""
			continue
		}
		v := *d
		if scale {
			v = v.Div(hundred)
		}
		values[i] = models.FormatRate(v)
	}
	return nil
}

// coerceSplit strips percent signs from CM Split but keeps its whole-number
// scale. Values that are not a single number are left as entered.
func coerceSplit(t *models.Table) {
	values := t.Column(models.ColCMSplit)
	for i, v := range values {
		if d, ok := splitNumber(v); ok {
			values[i] = d.String()
		}
	}
}

// splitNumber reads a CM Split cell as one number. Unlike ParseDecimal it
// does not drop separators, so multi-match text like "20, 30" is rejected.
func splitNumber(v string) (decimal.Decimal, bool) {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%"))
	if v == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseSplit validates a CM Split cell. Empty means the default and returns
// zero; anything else must be one number in [0, 100].
func ParseSplit(value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	d, ok := splitNumber(value)
	if !ok {
		return decimal.Zero, errors.ValidationError(errors.CodeNonNumeric, models.ColCMSplit, value, nil)
	}
	if d.IsNegative() || d.GreaterThan(hundred) {
		return decimal.Zero, errors.ValidationError(errors.CodeOutOfRange, models.ColCMSplit, value,
			fmt.Errorf("split must be between 0 and 100"))
	}
	return d, nil
}

// Split returns a row's CM split percentage with empty, zero or invalid
// values normalized to the default.
func Split(value string, defaultSplit decimal.Decimal) decimal.Decimal {
	d, err := ParseSplit(value)
	if err != nil || d.IsZero() {
		return defaultSplit
	}
	return d
}

// Normalize is the lenient counterpart of Coerce for workbooks this system
// wrote: typed cells read back as raw numbers (dates as serials, money
// without cents) are rendered in canonical text form. Values that do not
// parse are kept, and percentages are never rescaled.
func Normalize(t *models.Table) {
	for _, col := range t.Columns() {
		values := t.Column(col)
		for i, v := range values {
			if strings.TrimSpace(v) == "" {
				continue
			}
			values[i] = normalizeStored(col, v)
		}
	}
}

func normalizeStored(col, v string) string {
	if col == models.ColCMSplit {
		if d, ok := splitNumber(v); ok {
			return d.String()
		}
		return v
	}
	switch models.KindOf(col) {
	case models.KindDollar:
		d, err := models.ParseDecimal(v)
		if err != nil {
			return v
		}
		if fullPrecision[col] {
			return d.String()
		}
		return models.FormatMoney(d)
	case models.KindInteger, models.KindPercent:
		d, err := models.ParseDecimal(v)
		if err != nil {
			return v
		}
		return d.String()
	case models.KindDate:
		return models.NormalizeDate(v)
	case models.KindIdentifier:
		return models.NormalizeIdentifier(v)
	}
	return v
}
