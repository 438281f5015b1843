package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategorySchema         ErrorCategory = "schema"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"
	CodeFileLocked     ErrorCode = "file_locked"
	CodeDirectoryError ErrorCode = "directory_error"
	CodeDuplicateFile  ErrorCode = "duplicate_file"

	// Schema errors
	CodeMissingColumn    ErrorCode = "missing_column"
	CodeMissingTab       ErrorCode = "missing_tab"
	CodeAmbiguousMapping ErrorCode = "ambiguous_mapping"
	CodeDuplicateColumn  ErrorCode = "duplicate_column"
	CodeUnknownPrincipal ErrorCode = "unknown_principal"

	// Parse errors
	CodeInvalidFormat  ErrorCode = "invalid_format"
	CodeNonNumeric     ErrorCode = "non_numeric"
	CodeEncodingError  ErrorCode = "encoding_error"
	CodeUnsupportedExt ErrorCode = "unsupported_extension"

	// Validation errors
	CodeInvalidDate       ErrorCode = "invalid_date"
	CodeIdentityCollision ErrorCode = "identity_collision"
	CodeMissingField      ErrorCode = "missing_field"
	CodeOutOfRange        ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Reconciliation errors
	CodeConservation    ErrorCode = "conservation_violation"
	CodeAlreadyClosed   ErrorCode = "already_closed"
	CodeProcessingError ErrorCode = "processing_error"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// CommissionError is the base error type for all pipeline errors
type CommissionError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *CommissionError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *CommissionError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *CommissionError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategorySchema, CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *CommissionError) WithContext(key string, value interface{}) *CommissionError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *CommissionError) WithSuggestion(suggestion string) *CommissionError {
	e.Suggestion = suggestion
	return e
}

// ContextKeys returns the context keys in sorted order for stable output.
func (e *CommissionError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New creates a new CommissionError
func New(category ErrorCategory, code ErrorCode, message string) *CommissionError {
	return &CommissionError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with CommissionError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *CommissionError {
	if err == nil {
		return nil
	}

	return &CommissionError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *CommissionError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check that the file exists in the configured directory"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions on the shared directory"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file could not be read as a workbook: %s", path)
		suggestion = "open the file in a spreadsheet application and re-save it as .xlsx"
	case CodeFileLocked:
		message = fmt.Sprintf("file is open in another program: %s", path)
		suggestion = "close the file in your spreadsheet application and run the job again"
	case CodeDirectoryError:
		message = fmt.Sprintf("directory error: %s", path)
		suggestion = "ensure the directory exists and is accessible"
	case CodeDuplicateFile:
		message = fmt.Sprintf("file already processed: %s", path)
		suggestion = "rename the file if it is genuinely new data"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	var result *CommissionError
	if err != nil {
		result = Wrap(err, CategoryFile, code, message)
	} else {
		result = New(CategoryFile, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// SchemaError creates an error for missing, ambiguous or duplicated columns.
// columns lists every offending column by name.
func SchemaError(code ErrorCode, file string, columns []string) *CommissionError {
	var message string
	var suggestion string
	joined := strings.Join(columns, ", ")

	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required columns in %s: %s", file, joined)
		suggestion = "add the missing column headers to the workbook"
	case CodeMissingTab:
		message = fmt.Sprintf("missing required tab in %s: %s", file, joined)
		suggestion = "rename the tab to the expected name"
	case CodeAmbiguousMapping:
		message = fmt.Sprintf("ambiguous mapping for %s in %s", joined, file)
		suggestion = "rename one of the vendor columns or add a principal pre-map rename"
	case CodeDuplicateColumn:
		message = fmt.Sprintf("duplicate canonical columns in %s: %s", file, joined)
		suggestion = "remove the duplicated column from the vendor report"
	case CodeUnknownPrincipal:
		message = fmt.Sprintf("unknown principal in %s: %s", file, joined)
		suggestion = "add the principal to principalList.xlsx or rename the file with a known code"
	default:
		message = fmt.Sprintf("schema error in %s: %s", file, joined)
		suggestion = "compare the workbook layout to the expected columns"
	}

	return New(CategorySchema, code, message).
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("columns", columns)
}

// ParseError creates a parsing-related error
func ParseError(code ErrorCode, file string, row int, column string, value string, err error) *CommissionError {
	var message string
	var suggestion string

	switch code {
	case CodeNonNumeric:
		message = fmt.Sprintf("non-numeric value in column '%s' of %s at row %d: '%s'", column, file, row, value)
		suggestion = "correct or clear the cell so the column contains only numbers"
	case CodeInvalidFormat:
		message = fmt.Sprintf("invalid format in %s at row %d, column '%s': '%s'", file, row, column, value)
		suggestion = "check the data format and ensure it matches the expected structure"
	case CodeEncodingError:
		message = fmt.Sprintf("encoding error in %s", file)
		suggestion = "save the report as .xlsx or UTF-8 CSV"
	case CodeUnsupportedExt:
		message = fmt.Sprintf("unsupported file type: %s", file)
		suggestion = "supply .xlsx, .xlsm, .xls or .csv files"
	default:
		message = fmt.Sprintf("parse error in %s at row %d", file, row)
		suggestion = "check the file format and data integrity"
	}

	var result *CommissionError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("file", file).
		WithContext("row", row).
		WithContext("column", column).
		WithContext("value", value)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *CommissionError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "enter the date as MM/DD/YYYY"
	case CodeIdentityCollision:
		message = fmt.Sprintf("identity collision on '%s': %v", field, value)
		suggestion = "check that the Unique ID was not edited or copied"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *CommissionError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *CommissionError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *CommissionError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ReconciliationError creates an error for a failed pipeline invariant
func ReconciliationError(code ErrorCode, operation string, err error) *CommissionError {
	var message string
	var suggestion string

	switch code {
	case CodeConservation:
		message = fmt.Sprintf("commission total changed during %s", operation)
		suggestion = "Actual Comm Paid must not be edited in the fix workbook; restore the original values"
	case CodeAlreadyClosed:
		message = fmt.Sprintf("files already present in the Commissions Master during %s", operation)
		suggestion = "this Running Commissions has already been closed out"
	case CodeProcessingError:
		message = fmt.Sprintf("processing error during %s", operation)
		suggestion = "review the log for the failing row"
	default:
		message = fmt.Sprintf("reconciliation error during %s", operation)
		suggestion = "review the data and configuration"
	}

	var result *CommissionError
	if err != nil {
		result = Wrap(err, CategoryReconciliation, code, message)
	} else {
		result = New(CategoryReconciliation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *CommissionError {
	message := fmt.Sprintf("internal error during %s", operation)
	suggestion := "try again or contact support if the problem persists"
	if code == CodeUnexpectedError {
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	}

	var result *CommissionError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// IsCommissionError checks if an error is a CommissionError
func IsCommissionError(err error) bool {
	_, ok := err.(*CommissionError)
	return ok
}

// AsCommissionError extracts a CommissionError from an error chain
func AsCommissionError(err error) (*CommissionError, bool) {
	var commissionErr *CommissionError
	if errors.As(err, &commissionErr) {
		return commissionErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	ce, ok := AsCommissionError(err)
	return ok && ce.Code == code
}

// WrapIfNeeded wraps an error if it's not already a CommissionError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *CommissionError {
	if err == nil {
		return nil
	}

	if commissionErr, ok := AsCommissionError(err); ok {
		return commissionErr
	}

	return Wrap(err, category, code, message)
}
