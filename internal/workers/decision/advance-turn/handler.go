// internal/workers/decision/advance-turn/handler.go
package advanceturn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	errs "decision-advisor/internal/common/errors"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/common/validation"
	"decision-advisor/internal/engine/conversation"
	"decision-advisor/internal/entitlement"
	"decision-advisor/internal/models"
)

const (
	TaskType = "advance-turn"
)

// Engine drives one conversation turn.
type Engine interface {
	Advance(ctx context.Context, req *conversation.TurnRequest) (*models.TurnResult, error)
}

// Entitlements gates a turn before any model or storage work happens.
type Entitlements interface {
	MayProceed(ctx context.Context, userID, action string) (*entitlement.Decision, error)
}

// Notifier is told when a turn produced the final recommendation.
type Notifier interface {
	RecommendationReady(ctx context.Context, session *models.DecisionSession, rec *models.Recommendation)
}

type Handler struct {
	config       *Config
	engine       Engine
	entitlements Entitlements
	store        models.SessionStore
	notifier     Notifier
	errorHandler *errs.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, engine Engine, entitlements Entitlements, store models.SessionStore, notifier Notifier, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		engine:       engine,
		entitlements: entitlements,
		store:        store,
		notifier:     notifier,
		errorHandler: errs.NewErrorHandler(scoped),
		logger:       scoped,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(job.Variables), &payload); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job,
			errs.NewInvalidPayloadError(fmt.Sprintf("parse variables: %v", err)))
		return
	}
	if vr := validation.ValidateAdvance(payload); !vr.Valid {
		h.errorHandler.HandleJobError(ctx, client, job,
			errs.NewInvalidPayloadError(joinValidationErrors(vr)))
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job,
			errs.NewInvalidPayloadError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	result, err := h.execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, result)

	if result.IsComplete && result.Recommendation != nil {
		go h.notifyAsync(result)
	}
}

// Execute runs the turn without the Camunda plumbing.
func (h *Handler) Execute(ctx context.Context, input *Input) (*models.TurnResult, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*models.TurnResult, error) {
	decision, err := h.entitlements.MayProceed(ctx, input.UserID, input.Phase)
	if err != nil {
		return nil, errs.NewEntitlementCheckFailedError(err)
	}
	if !decision.Allowed {
		return nil, errs.NewEntitlementDeniedError(decision.Reason)
	}

	return h.engine.Advance(ctx, &conversation.TurnRequest{
		SessionID:  input.SessionID,
		UserID:     input.UserID,
		Phase:      input.Phase,
		Message:    input.Message,
		StepNumber: input.StepNumber,
	})
}

// notifyAsync reloads the session for notification context and fires the
// notifier with a fresh context, so a slow channel never holds the job open.
func (h *Handler) notifyAsync(result *models.TurnResult) {
	ctx := context.Background()
	session, err := h.store.Load(ctx, result.SessionID)
	if err != nil {
		h.logger.Warn("notification skipped, session reload failed", map[string]interface{}{
			"sessionId": result.SessionID,
			"error":     err.Error(),
		})
		return
	}
	h.notifier.RecommendationReady(ctx, session, result.Recommendation)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, result *models.TurnResult) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(result)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if _, err = cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":    job.Key,
		"sessionId": result.SessionID,
		"phase":     string(result.Phase),
	})
}

func joinValidationErrors(vr *validation.ValidationResult) string {
	parts := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		if e.Field != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
			continue
		}
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, "; ")
}
