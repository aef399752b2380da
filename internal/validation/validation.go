package validation

import (
	"encoding/json"
	"fmt"
)

// Severity levels for validation messages.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Result is a structured, severity-leveled collection of messages backing a
// Run's Logs field: the model builder and solver driver accumulate one
// message per classified IIS conflict / downshift warning / backend error
// rather than concatenating ad hoc strings.
type Result struct {
	Messages []Message `json:"messages"`
}

// Message is a single structured log entry.
type Message struct {
	Severity Severity               `json:"severity"`
	Code     string                 `json:"code"`
	Text     string                 `json:"text"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// NewResult creates a new empty validation result.
func NewResult() *Result {
	return &Result{
		Messages: []Message{},
	}
}

// Add appends a message at the given severity and returns r for chaining.
func (r *Result) Add(severity Severity, code, text string, context map[string]interface{}) *Result {
	r.Messages = append(r.Messages, Message{
		Severity: severity,
		Code:     code,
		Text:     text,
		Context:  context,
	})
	return r
}

// AddWarning adds a warning message, e.g. a min_shifts_per_employee
// downshift (spec §4.4 item 8).
func (r *Result) AddWarning(code, text string) *Result {
	return r.Add(SeverityWarning, code, text, nil)
}

// AddErrorWithContext adds an error message carrying structured context,
// e.g. one classified IIS constraint family per call (spec §4.5, §7).
func (r *Result) AddErrorWithContext(code, text string, context map[string]interface{}) *Result {
	return r.Add(SeverityError, code, text, context)
}

// ToJSON marshals the result to JSON for storage in a Run's Logs field.
func (r *Result) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Summary renders a human-readable fallback used only when ToJSON fails.
func (r *Result) Summary() string {
	if len(r.Messages) == 0 {
		return "Validation passed: no errors"
	}

	var errorCount, warningCount, infoCount int
	for _, msg := range r.Messages {
		switch msg.Severity {
		case SeverityError:
			errorCount++
		case SeverityWarning:
			warningCount++
		case SeverityInfo:
			infoCount++
		}
	}

	summary := fmt.Sprintf("Validation result: %d errors, %d warnings, %d info messages",
		errorCount, warningCount, infoCount)

	for _, msg := range r.Messages {
		if msg.Severity == SeverityError {
			summary += fmt.Sprintf("\n  - %s: %s", msg.Code, msg.Text)
		}
	}
	for _, msg := range r.Messages {
		if msg.Severity == SeverityWarning {
			summary += fmt.Sprintf("\n  - %s: %s", msg.Code, msg.Text)
		}
	}

	return summary
}

// KnownCodes for run-log messages produced by the model builder and solver
// driver (downshifted constraints, classified IIS conflicts).
const (
	CodeMinShiftsDownshifted = "MIN_SHIFTS_DOWNSHIFTED"
	CodeInsufficientStaffing = "INSUFFICIENT_STAFFING_CAPACITY"
	CodeRestHoursConflict    = "REST_HOURS_CONFLICT"
	CodeSeniorityImbalance   = "SENIORITY_IMBALANCE"
	CodeInfeasibleGeneric    = "INFEASIBLE_CONSTRAINT"
	CodeRoundingMismatch     = "ROUNDING_MISMATCH"
	CodeBackendError         = "BACKEND_ERROR"
	CodeCancelled            = "CANCELLED"
	CodeNotStarted           = "NOT_STARTED"
)

// Log builds a single-message Result and serializes it for a Run's Logs
// field: the solver driver and orchestrator use it for single-message logs
// (backend errors, cancellation, not started, the hard-ceiling timeout);
// classified IIS conflicts and min_shifts downshift warnings go through
// LogResult instead. Either way the log is a structured, parseable Result
// rather than an ad hoc string. Falls back to
// the human-readable Summary if marshaling ever fails.
func Log(severity Severity, code, text string, context map[string]interface{}) string {
	return LogResult(NewResult().Add(severity, code, text, context))
}

// LogResult serializes an existing Result the same way Log does, for call
// sites that accumulate multiple messages (e.g. one per classified IIS
// constraint family) before producing the final log string.
func LogResult(r *Result) string {
	if s, err := r.ToJSON(); err == nil {
		return s
	}
	return r.Summary()
}
