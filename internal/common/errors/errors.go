// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Turn processing
	ErrCodeInvalidTurn       ErrorCode = "INVALID_TURN"
	ErrCodeInvalidPayload    ErrorCode = "INVALID_PAYLOAD"
	ErrCodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionSaveFailed ErrorCode = "SESSION_SAVE_FAILED"
	ErrCodeSessionLoadFailed ErrorCode = "SESSION_LOAD_FAILED"

	// Model providers
	ErrCodeProviderUnavailable    ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderTimeout        ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeMalformedModelOutput   ErrorCode = "MALFORMED_MODEL_OUTPUT"
	ErrCodeAllProvidersExhausted  ErrorCode = "ALL_PROVIDERS_EXHAUSTED"

	// Entitlements
	ErrCodeEntitlementDenied      ErrorCode = "ENTITLEMENT_DENIED"
	ErrCodeEntitlementCheckFailed ErrorCode = "ENTITLEMENT_CHECK_FAILED"

	// Notifications
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewInvalidTurnError creates a non-retryable state machine rejection.
// This is the only failure the engine surfaces to callers; provider failures
// are absorbed by the fallback tiers.
func NewInvalidTurnError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTurn,
		Message:   "Requested phase transition is not allowed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidPayloadError creates a non-retryable request validation error.
func NewInvalidPayloadError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPayload,
		Message:   "Turn request failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a non-retryable missing-session error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Decision session not found",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionSaveFailedError creates a retryable persistence error.
func NewSessionSaveFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionSaveFailed,
		Message:   "Failed to persist decision session",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionLoadFailedError creates a retryable persistence error.
func NewSessionLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionLoadFailed,
		Message:   "Failed to load decision session",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderUnavailableError creates a transient provider error. It is
// resolved by the single cross-provider retry inside the gateway and never
// crosses the synthesizer or generator boundary.
func NewProviderUnavailableError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderUnavailable,
		Message:   "Model provider call failed",
		Details:   fmt.Sprintf("provider: %s, error: %s", provider, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedModelOutputError creates an error for unparseable model replies.
// Resolved by response repair tiers, never surfaced.
func NewMalformedModelOutputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedModelOutput,
		Message:   "Model reply did not carry a parseable payload",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAllProvidersExhaustedError marks the condition that forces a fallback
// value instead of raising.
func NewAllProvidersExhaustedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAllProvidersExhausted,
		Message:   "Every configured model provider failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEntitlementDeniedError creates a non-retryable permission rejection.
func NewEntitlementDeniedError(reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEntitlementDenied,
		Message:   "User is not entitled to this action",
		Details:   reason,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEntitlementCheckFailedError creates a retryable entitlement lookup error.
func NewEntitlementCheckFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEntitlementCheckFailed,
		Message:   "Database error during entitlement check",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Policy Tables
// ==========================

// GetRetryCount returns how many BPMN-level retries a code deserves.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSessionSaveFailed, ErrCodeSessionLoadFailed, ErrCodeEntitlementCheckFailed:
		return 3
	case ErrCodeProviderUnavailable, ErrCodeProviderTimeout:
		return 1
	default:
		return 0
	}
}

// GetErrorCategory buckets codes for logging and metrics.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidTurn, ErrCodeInvalidPayload:
		return "client"
	case ErrCodeProviderUnavailable, ErrCodeProviderTimeout,
		ErrCodeMalformedModelOutput, ErrCodeAllProvidersExhausted:
		return "provider"
	case ErrCodeSessionNotFound, ErrCodeSessionSaveFailed, ErrCodeSessionLoadFailed:
		return "persistence"
	case ErrCodeEntitlementDenied, ErrCodeEntitlementCheckFailed:
		return "entitlement"
	default:
		return "internal"
	}
}

// ConvertToBPMNError maps a StandardError onto the Camunda boundary.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   GetRetryCount(stdErr.Code),
		ErrorVariables: map[string]interface{}{
			"errorCategory": GetErrorCategory(stdErr.Code),
		},
	}
}
