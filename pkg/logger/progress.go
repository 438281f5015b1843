package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker counts work items of a job (files ingested, rows merged)
// and logs each step with the running count.
type ProgressTracker struct {
	logger    Logger
	operation string
	total     int64
	current   int64
	startTime time.Time
	mutex     sync.Mutex
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(operation string, total int64, log Logger) *ProgressTracker {
	if log == nil {
		log = GetGlobalLogger()
	}

	tracker := &ProgressTracker{
		logger:    log.WithComponent("progress"),
		operation: operation,
		total:     total,
		startTime: time.Now(),
	}

	tracker.logger.WithFields(Fields{
		"operation": operation,
		"total":     total,
	}).Debug("Starting operation")

	return tracker
}

// Step advances the counter and logs the item that was just handled.
func (p *ProgressTracker) Step(item string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current++
	fields := Fields{
		"operation": p.operation,
		"item":      item,
		"processed": p.current,
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(p.current)/float64(p.total)*100)
	}
	p.logger.WithFields(fields).Info("Progress update")
}

// Complete marks the operation as complete and logs final statistics
func (p *ProgressTracker) Complete() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithFields(Fields{
		"operation": p.operation,
		"processed": p.current,
		"duration":  time.Since(p.startTime).String(),
	}).Info("Operation completed")
}

// Current returns the number of items processed so far
func (p *ProgressTracker) Current() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.current
}

// OperationLogger provides structured logging for a pipeline job with timing
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    logger.WithComponent("job"),
		operation: operation,
		fields:    make(Fields),
		startTime: time.Now(),
	}

	ol.logger.WithField("operation", operation).Info("Starting job")
	return ol
}

// WithField adds a field to the operation context
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

func (ol *OperationLogger) merged(extra Fields) Fields {
	fields := Fields{"operation": ol.operation}
	for k, v := range ol.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string) {
	ol.logger.WithFields(ol.merged(Fields{"step": step})).Info("Job step")
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string) {
	ol.logger.WithFields(ol.merged(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "success",
	})).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).WithFields(ol.merged(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "error",
	})).Error(message)
}

// TimedOperation executes a function and logs timing information
func TimedOperation(operation string, logger Logger, fn func() error) error {
	ol := NewOperationLogger(operation, logger)

	err := fn()
	if err != nil {
		ol.Error(err, "Job failed")
	} else {
		ol.Success("Job completed successfully")
	}

	return err
}
