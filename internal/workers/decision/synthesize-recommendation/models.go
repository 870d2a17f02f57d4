// internal/workers/decision/synthesize-recommendation/models.go
package synthesizerecommendation

type Input struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}
