package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// DateLayout is the layout dates are normalized to when written back.
const DateLayout = "2006-01-02"

// CommMonthLayout formats a booking month as YYYY-M.
const CommMonthLayout = "2006-1"

// excelEpoch is day zero of the 1900 date system as stored by spreadsheets.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var folder = cases.Fold()

// ParseDecimal parses a money or rate string. Dollar signs, thousands
// separators and percent signs are stripped, and accounting parentheses are
// read as a negative value. Empty input is an error; callers decide whether
// empty means zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// DecimalOrZero parses s and returns zero for empty or invalid input.
func DecimalOrZero(s string) decimal.Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatMoney renders a decimal with two places.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatRate renders a rate without trailing zeros.
func FormatRate(d decimal.Decimal) string {
	return d.String()
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// SumColumn adds the decimal values of a column. Empty cells count as zero; the
// first non-numeric cell is returned as an error naming its row.
func SumColumn(t *Table, column string) (decimal.Decimal, error) {
	total := decimal.Zero
	for r, v := range t.Column(column) {
		if strings.TrimSpace(v) == "" {
			continue
		}
		d, err := ParseDecimal(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("row %d of %s: %w", r+1, column, err)
		}
		total = total.Add(d)
	}
	return total, nil
}

// dateLayouts are tried in order by ParseDate. US month-first forms come
// before day-first forms because vendor reports are US formatted.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"1-2-2006",
	"01-02-06",
	"20060102",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"2-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"Mon Jan 2 15:04:05 2006",
}

// ParseDate is a tolerant date parser. It accepts spreadsheet serial numbers
// and the layouts above.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		// 8-digit numbers are yyyymmdd stamps, not serials.
		if len(s) == 8 && !strings.Contains(s, ".") {
			if t, err := time.Parse("20060102", s); err == nil {
				return t, nil
			}
		}
		return FromExcelSerial(serial)
	}

	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// FromExcelSerial converts a 1900-system serial day number.
func FromExcelSerial(serial float64) (time.Time, error) {
	if serial < 1 || serial > 2958465 {
		return time.Time{}, fmt.Errorf("serial %v is outside the spreadsheet date range", serial)
	}
	days := math.Floor(serial)
	frac := serial - days
	t := excelEpoch.AddDate(0, 0, int(days))
	return t.Add(time.Duration(frac * float64(24*time.Hour))).Truncate(time.Second), nil
}

// NormalizeDate returns s rewritten as YYYY-MM-DD when it parses and s
// unchanged otherwise.
func NormalizeDate(s string) string {
	t, err := ParseDate(s)
	if err != nil {
		return s
	}
	return t.Format(DateLayout)
}

// MonthAbbrev returns the three-letter month name
func MonthAbbrev(t time.Time) string {
	return t.Month().String()[:3]
}

// QuarterShipped formats YYYYQn with n = ceil(month/3).
func QuarterShipped(t time.Time) string {
	return fmt.Sprintf("%dQ%d", t.Year(), (int(t.Month())+2)/3)
}

// ParseQuarter reads a YYYYQn label into a sortable ordinal.
func ParseQuarter(s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	i := strings.Index(s, "Q")
	if i <= 0 || i == len(s)-1 {
		return 0, false
	}
	year, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, false
	}
	q, err := strconv.Atoi(s[i+1:])
	if err != nil || q < 1 || q > 4 {
		return 0, false
	}
	return year*4 + q - 1, true
}

// CommMonth is an accounting month, formatted YYYY-M.
type CommMonth struct {
	Year  int
	Month time.Month
}

// ParseCommMonth parses YYYY-M (also tolerating YYYY-MM and full dates).
func ParseCommMonth(s string) (CommMonth, bool) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return CommMonth{}, false
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return CommMonth{}, false
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return CommMonth{}, false
	}
	return CommMonth{Year: year, Month: time.Month(month)}, true
}

// Next returns the following month with year rollover.
func (c CommMonth) Next() CommMonth {
	if c.Month == time.December {
		return CommMonth{Year: c.Year + 1, Month: time.January}
	}
	return CommMonth{Year: c.Year, Month: c.Month + 1}
}

// Before reports whether c is earlier than o
func (c CommMonth) Before(o CommMonth) bool {
	if c.Year != o.Year {
		return c.Year < o.Year
	}
	return c.Month < o.Month
}

func (c CommMonth) String() string {
	return fmt.Sprintf("%d-%d", c.Year, int(c.Month))
}

// FoldKey normalizes a string for case-insensitive equality.
func FoldKey(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// PairKey joins two folded values into a composite lookup key.
func PairKey(a, b string) string {
	return FoldKey(a) + "\x1f" + FoldKey(b)
}

// AlnumLower strips everything but letters and digits and lowercases the rest.
func AlnumLower(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeIdentifier trims an identifier and drops a spreadsheet text marker
// or a float suffix produced by numeric cells ("00123.0" stays "00123").
func NormalizeIdentifier(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "'")
	if strings.HasSuffix(id, ".0") {
		if _, err := strconv.ParseInt(strings.TrimSuffix(id, ".0"), 10, 64); err == nil {
			id = strings.TrimSuffix(id, ".0")
		}
	}
	return id
}

// IsInitials reports whether s is a salesperson code: exactly two characters
// after trimming.
func IsInitials(s string) bool {
	return len([]rune(strings.TrimSpace(s))) == 2
}

// IsVoidEndCustomer reports whether the tracked end customer is one of the
// carve-out markers.
func IsVoidEndCustomer(endCustomer string) bool {
	upper := strings.ToUpper(endCustomer)
	for _, marker := range VoidEndCustomers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
