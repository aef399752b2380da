package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationResultCreation(t *testing.T) {
	result := NewResult()

	assert.NotNil(t, result)
	assert.Empty(t, result.Messages)
}

func TestAddWarning(t *testing.T) {
	result := NewResult()

	result.AddWarning(CodeMinShiftsDownshifted, "min_shifts_per_employee downshifted for E3 from 5 to 3")

	assert.Len(t, result.Messages, 1)
	assert.Equal(t, SeverityWarning, result.Messages[0].Severity)
	assert.Equal(t, CodeMinShiftsDownshifted, result.Messages[0].Code)
}

func TestAddErrorWithContext(t *testing.T) {
	result := NewResult()

	result.AddErrorWithContext(CodeInsufficientStaffing, "insufficient staffing capacity on [(2025-12-01, S1, RN)]",
		map[string]interface{}{"family": "cover"})

	assert.Len(t, result.Messages, 1)
	msg := result.Messages[0]
	assert.Equal(t, SeverityError, msg.Severity)
	assert.Equal(t, CodeInsufficientStaffing, msg.Code)
	assert.Equal(t, "cover", msg.Context["family"])
}

func TestMultipleMessagesChain(t *testing.T) {
	result := NewResult()
	result.AddErrorWithContext(CodeRestHoursConflict, "rest/hours conflict", nil).
		AddWarning(CodeMinShiftsDownshifted, "downshifted")

	assert.Len(t, result.Messages, 2)
	assert.Equal(t, SeverityError, result.Messages[0].Severity)
	assert.Equal(t, SeverityWarning, result.Messages[1].Severity)
}

func TestToJSONRoundTrips(t *testing.T) {
	result := NewResult()
	result.AddErrorWithContext(CodeInsufficientStaffing, "insufficient staffing", map[string]interface{}{
		"date": "2025-12-01", "shift_id": "S1", "skill": "RN",
	})

	js, err := result.ToJSON()
	assert.NoError(t, err)

	var round Result
	assert.NoError(t, json.Unmarshal([]byte(js), &round))
	assert.Len(t, round.Messages, 1)
	assert.Equal(t, CodeInsufficientStaffing, round.Messages[0].Code)
}

func TestSummary(t *testing.T) {
	result := NewResult()
	assert.Equal(t, "Validation passed: no errors", result.Summary())

	result.AddErrorWithContext(CodeBackendError, "solver unavailable", nil)
	assert.Contains(t, result.Summary(), "1 errors")
	assert.Contains(t, result.Summary(), CodeBackendError)
}

func TestLogAndLogResult(t *testing.T) {
	s := Log(SeverityError, CodeCancelled, "cancelled", nil)

	var round Result
	assert.NoError(t, json.Unmarshal([]byte(s), &round))
	assert.Len(t, round.Messages, 1)
	assert.Equal(t, CodeCancelled, round.Messages[0].Code)

	r := NewResult().AddWarning(CodeMinShiftsDownshifted, "downshifted")
	s2 := LogResult(r)
	assert.Contains(t, s2, CodeMinShiftsDownshifted)
}
