// internal/notify/notifier.go
package notify

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"

	"decision-advisor/internal/common/config"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/models"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput) (*sns.PublishOutput, error)
}

// AuditIndexer writes one audit document per delivered recommendation.
type AuditIndexer interface {
	Index(ctx context.Context, index, documentID string, body io.Reader) error
}

// ESIndexer is the Elasticsearch-backed AuditIndexer.
type ESIndexer struct {
	client *elasticsearch.Client
}

func NewESIndexer(client *elasticsearch.Client) *ESIndexer {
	return &ESIndexer{client: client}
}

func (e *ESIndexer) Index(ctx context.Context, index, documentID string, body io.Reader) error {
	res, err := e.client.Index(index, body,
		e.client.Index.WithDocumentID(documentID),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index audit document: %s", res.Status())
	}
	return nil
}

// Notifier tells the user their recommendation is ready. Every channel is
// best effort: a failed send is logged, never surfaced, and never blocks the
// turn that produced the recommendation.
type Notifier struct {
	cfg        config.NotificationConfig
	db         *sql.DB
	sesClient  SESService
	snsClient  SNSService
	audit      AuditIndexer
	auditIndex string
	logger     logger.Logger
}

func New(cfg config.NotificationConfig, db *sql.DB, sesClient SESService, snsClient SNSService, audit AuditIndexer, auditIndex string, log logger.Logger) *Notifier {
	return &Notifier{
		cfg:        cfg,
		db:         db,
		sesClient:  sesClient,
		snsClient:  snsClient,
		audit:      audit,
		auditIndex: auditIndex,
		logger:     log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// RecommendationReady fans the notification out to every enabled channel.
// Callers usually run it in a goroutine with a fresh context; an internal
// deadline keeps a stuck channel from leaking the goroutine.
func (n *Notifier) RecommendationReady(ctx context.Context, session *models.DecisionSession, rec *models.Recommendation) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if n.cfg.Email.Enabled && n.sesClient != nil {
		n.sendEmail(ctx, session, rec)
	}
	if n.cfg.SMS.Enabled && n.snsClient != nil {
		n.publish(ctx, session, rec)
	}
	if n.cfg.Audit.Enabled && n.audit != nil {
		n.writeAudit(ctx, session, rec)
	}
}

func (n *Notifier) sendEmail(ctx context.Context, session *models.DecisionSession, rec *models.Recommendation) {
	email, err := n.recipientEmail(ctx, session.UserID)
	if err != nil || email == "" {
		n.logger.Warn("recipient email unavailable", map[string]interface{}{
			"userId": session.UserID,
		})
		return
	}

	subject := "Your decision recommendation is ready"
	body := n.emailBody(session, rec)

	_, err = n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.cfg.Email.FromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		n.logger.Error("email send failed", map[string]interface{}{
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	}
}

func (n *Notifier) publish(ctx context.Context, session *models.DecisionSession, rec *models.Recommendation) {
	message, _ := json.Marshal(map[string]interface{}{
		"sessionId":  session.ID,
		"userId":     session.UserID,
		"confidence": rec.ConfidenceScore,
		"fallback":   rec.Trace.Fallback,
	})

	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.cfg.SMS.TopicARN),
		Message:  aws.String(string(message)),
		Subject:  aws.String("recommendation-ready"),
	})
	if err != nil {
		n.logger.Error("SNS publish failed", map[string]interface{}{
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	}
}

func (n *Notifier) writeAudit(ctx context.Context, session *models.DecisionSession, rec *models.Recommendation) {
	doc, _ := json.Marshal(map[string]interface{}{
		"sessionId":      session.ID,
		"userId":         session.UserID,
		"question":       session.Question,
		"decisionType":   session.DecisionType,
		"recommendation": rec,
		"deliveredAt":    time.Now().UTC().Format(time.RFC3339),
	})

	if err := n.audit.Index(ctx, n.auditIndex, uuid.New().String(), bytes.NewReader(doc)); err != nil {
		n.logger.Error("audit write failed", map[string]interface{}{
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	}
}

func (n *Notifier) recipientEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := n.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	return email, err
}

func (n *Notifier) emailBody(session *models.DecisionSession, rec *models.Recommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You asked: %s\n\n", session.Question)
	fmt.Fprintf(&b, "Recommendation: %s\n\n", rec.FinalRecommendation)
	if len(rec.NextSteps) > 0 {
		b.WriteString("Next steps:\n")
		for _, step := range rec.NextSteps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Confidence: %d/100\n", rec.ConfidenceScore)
	return b.String()
}
