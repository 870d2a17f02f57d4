// internal/common/validation/schema_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAdvance(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		valid   bool
	}{
		{
			name: "valid initial turn",
			payload: map[string]interface{}{
				"userId":  "user-1",
				"phase":   "initial",
				"message": "Should I move?",
			},
			valid: true,
		},
		{
			name: "valid followup turn",
			payload: map[string]interface{}{
				"sessionId":  "sess-1",
				"userId":     "user-1",
				"phase":      "followup",
				"message":    "an answer",
				"stepNumber": 2,
			},
			valid: true,
		},
		{
			name: "initial without message",
			payload: map[string]interface{}{
				"userId": "user-1",
				"phase":  "initial",
			},
			valid: false,
		},
		{
			name: "followup without sessionId",
			payload: map[string]interface{}{
				"userId":  "user-1",
				"phase":   "followup",
				"message": "an answer",
			},
			valid: false,
		},
		{
			name: "recommendation without sessionId",
			payload: map[string]interface{}{
				"userId": "user-1",
				"phase":  "recommendation",
			},
			valid: false,
		},
		{
			name: "go deeper with sessionId",
			payload: map[string]interface{}{
				"sessionId": "sess-1",
				"userId":    "user-1",
				"phase":     "go_deeper",
			},
			valid: true,
		},
		{
			name: "unknown phase",
			payload: map[string]interface{}{
				"userId": "user-1",
				"phase":  "meditate",
			},
			valid: false,
		},
		{
			name: "missing userId",
			payload: map[string]interface{}{
				"phase":   "initial",
				"message": "q",
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAdvance(tt.payload)
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				assert.NotEmpty(t, result.Errors)
			}
		})
	}
}
