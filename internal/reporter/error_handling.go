package reporter

import (
	"fmt"
	"io"
	"os"

	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and a console
// fallback when a structured format fails.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"output.format",
			config,
			err,
		).WithSuggestion("Use one of console, json or csv")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely prints summary, falling back to the console format
// when the configured one fails.
func (srg *SafeReportGenerator) GenerateReportSafely(summary *reconciler.JobSummary, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Printing job summary")

	if summary == nil {
		return errors.ValidationError(errors.CodeMissingField, "summary", nil, nil)
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}

	err := srg.GenerateReport(summary, writer)
	if err == nil {
		return nil
	}
	srg.logger.WithError(err).Warn("Summary output failed, attempting fallback")

	if srg.config.Format == FormatConsole {
		return srg.wrapGenerationError(err)
	}
	return srg.generateWithFormatFallback(summary, writer, err)
}

func (srg *SafeReportGenerator) generateWithFormatFallback(summary *reconciler.JobSummary, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	fallback, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Summary printed as text after an error with the %s format\n", srg.config.Format)
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallback.GenerateReport(summary, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"summary_fallback",
			fmt.Errorf("both primary and fallback output failed: primary=%v, fallback=%v", originalErr, err),
		)
	}

	srg.logger.WithField("fallback_format", FormatConsole).Info("Summary printed using format fallback")
	return nil
}

func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if ce, ok := errors.AsCommissionError(err); ok {
		return ce
	}
	return errors.InternalError(
		errors.CodeProcessingError,
		"summary_output",
		err,
	).WithSuggestion("Check the output destination and format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}
