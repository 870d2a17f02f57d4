// internal/workers/decision/synthesize-recommendation/handler.go
package synthesizerecommendation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	errs "decision-advisor/internal/common/errors"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/engine/conversation"
	"decision-advisor/internal/entitlement"
	"decision-advisor/internal/models"
)

const (
	TaskType = "synthesize-recommendation"
)

// Engine drives one conversation turn.
type Engine interface {
	Advance(ctx context.Context, req *conversation.TurnRequest) (*models.TurnResult, error)
}

// Entitlements gates the turn before any model or storage work happens.
type Entitlements interface {
	MayProceed(ctx context.Context, userID, action string) (*entitlement.Decision, error)
}

// Notifier is told when the recommendation is ready.
type Notifier interface {
	RecommendationReady(ctx context.Context, session *models.DecisionSession, rec *models.Recommendation)
}

// Handler forces a session straight to its recommendation. Process models
// use it for the timeout path: when a user walks away mid-conversation, the
// workflow can still close the session out with whatever was collected.
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

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(ctx, client, job,
			errs.NewInvalidPayloadError(fmt.Sprintf("parse input: %v", err)))
		return
	}
	if input.SessionID == "" {
		h.errorHandler.HandleJobError(ctx, client, job,
			errs.NewInvalidPayloadError("sessionId is required"))
		return
	}

	result, err := h.execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, result)

	if result.Recommendation != nil {
		go h.notifyAsync(result)
	}
}

// Execute runs the synthesis turn without the Camunda plumbing.
func (h *Handler) Execute(ctx context.Context, input *Input) (*models.TurnResult, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*models.TurnResult, error) {
	decision, err := h.entitlements.MayProceed(ctx, input.UserID, conversation.PhaseRecommendation)
	if err != nil {
		return nil, errs.NewEntitlementCheckFailedError(err)
	}
	if !decision.Allowed {
		return nil, errs.NewEntitlementDeniedError(decision.Reason)
	}

	return h.engine.Advance(ctx, &conversation.TurnRequest{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Phase:     conversation.PhaseRecommendation,
	})
}

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
	})
}
