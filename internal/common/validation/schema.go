// internal/common/validation/schema.go
package validation

import (
	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult carries schema validation output for a turn request.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// advanceSchema is the shared shape of every inbound turn request. Phase
// specific requirements (message mandatory on initial/followup) are layered
// on top in ValidateAdvance.
var advanceSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"sessionId": map[string]interface{}{"type": "string"},
		"userId":    map[string]interface{}{"type": "string", "minLength": 1},
		"phase": map[string]interface{}{
			"type": "string",
			"enum": []string{"initial", "followup", "recommendation", "go_deeper"},
		},
		"message":    map[string]interface{}{"type": "string"},
		"stepNumber": map[string]interface{}{"type": "integer", "minimum": 0},
	},
	"required": []string{"userId", "phase"},
}

// ValidateAdvance validates an inbound advance payload against the turn
// request schema plus per-phase field requirements.
func ValidateAdvance(payload map[string]interface{}) *ValidationResult {
	result := &ValidationResult{Valid: true}

	schemaLoader := gojsonschema.NewGoLoader(advanceSchema)
	documentLoader := gojsonschema.NewGoLoader(payload)

	res, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Field:   "",
			Message: err.Error(),
		})
		return result
	}

	if !res.Valid() {
		result.Valid = false
		for _, desc := range res.Errors() {
			result.Errors = append(result.Errors, ValidationError{
				Field:   desc.Field(),
				Message: desc.Description(),
			})
		}
		return result
	}

	phase, _ := payload["phase"].(string)
	message, _ := payload["message"].(string)
	sessionID, _ := payload["sessionId"].(string)

	switch phase {
	case "initial":
		if message == "" {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   "message",
				Message: "message is required on the initial turn",
			})
		}
	case "followup":
		if message == "" {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   "message",
				Message: "message is required on followup turns",
			})
		}
		if sessionID == "" {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   "sessionId",
				Message: "sessionId is required on followup turns",
			})
		}
	case "recommendation", "go_deeper":
		if sessionID == "" {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   "sessionId",
				Message: "sessionId is required for this phase",
			})
		}
	}

	return result
}
