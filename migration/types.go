package migration

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/arthur-debert/refshift/formats"
)

// MessageLevel represents the severity of a message
type MessageLevel int

const (
	LevelDebug MessageLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

// Message represents a single output message from a run
type Message struct {
	Level   MessageLevel
	Text    string
	Details map[string]interface{} // Optional structured data
}

// Result encapsulates the outcome of a run
type Result struct {
	Success  bool
	Code     int // 0 = success, >0 = specific error codes
	RunID    string
	DryRun   bool
	Messages []Message
	Stats    Stats
	// Summaries hold per-collection counters for the output formats
	Summaries []formats.Summary
	// Err is the error that stopped the run, if any
	Err error
}

// Stats provides run statistics
type Stats struct {
	// TotalDocs is the number of root documents considered
	TotalDocs int
	// ModifiedDocs counts dependent documents written plus root documents moved or deleted
	ModifiedDocs int
	// SkippedDocs counts root documents dropped on a collision or entities skipped while matching
	SkippedDocs int
	Duration    time.Duration
}

// Options configures run behavior
type Options struct {
	DryRun  bool
	Verbose bool
	// BatchSize bounds bulk submissions; 0 submits each dependent once
	BatchSize int
	// Output names the dry-run preview format, text by default
	Output string
	// Out receives dry-run previews
	Out    io.Writer
	Logger *zap.SugaredLogger
}

// Error codes
const (
	CodeSuccess = iota
	CodeValidationError
	CodeExecutionError
	CodePartialFailure
)

func newResult(runID string, dryRun bool) *Result {
	return &Result{
		Success:  true,
		Code:     CodeSuccess,
		RunID:    runID,
		DryRun:   dryRun,
		Messages: []Message{},
	}
}

func (r *Result) info(format string, args ...interface{}) {
	r.Messages = append(r.Messages, Message{Level: LevelInfo, Text: fmt.Sprintf(format, args...)})
}

func (r *Result) debug(format string, args ...interface{}) {
	r.Messages = append(r.Messages, Message{Level: LevelDebug, Text: fmt.Sprintf(format, args...)})
}

func (r *Result) warn(details map[string]interface{}, format string, args ...interface{}) {
	r.Messages = append(r.Messages, Message{Level: LevelWarning, Text: fmt.Sprintf(format, args...), Details: details})
}

// fail records err and marks the result failed with code
func (r *Result) fail(code int, err error) *Result {
	r.Success = false
	r.Code = code
	r.Err = err
	r.Messages = append(r.Messages, Message{Level: LevelError, Text: err.Error()})
	return r
}

// HasErrors reports whether any error message was recorded
func (r *Result) HasErrors() bool {
	for _, msg := range r.Messages {
		if msg.Level == LevelError {
			return true
		}
	}
	return false
}
