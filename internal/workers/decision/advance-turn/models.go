// internal/workers/decision/advance-turn/models.go
package advanceturn

type Input struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	Phase      string `json:"phase"`
	Message    string `json:"message"`
	StepNumber int    `json:"stepNumber"`
}
