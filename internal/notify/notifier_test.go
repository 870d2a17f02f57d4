// internal/notify/notifier_test.go
package notify

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decision-advisor/internal/common/config"
	"decision-advisor/internal/common/logger"
	"decision-advisor/internal/models"
)

type fakeSES struct {
	calls int
	err   error
	last  *ses.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	f.calls++
	f.last = params
	return &ses.SendEmailOutput{}, f.err
}

type fakeSNS struct {
	calls int
	err   error
	last  *sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput) (*sns.PublishOutput, error) {
	f.calls++
	f.last = params
	return &sns.PublishOutput{}, f.err
}

type fakeAudit struct {
	calls int
	err   error
	index string
}

func (f *fakeAudit) Index(_ context.Context, index, _ string, _ io.Reader) error {
	f.calls++
	f.index = index
	return f.err
}

func allEnabled() config.NotificationConfig {
	cfg := config.NotificationConfig{}
	cfg.Email.Enabled = true
	cfg.Email.FromEmail = "advisor@example.com"
	cfg.SMS.Enabled = true
	cfg.SMS.TopicARN = "arn:aws:sns:us-east-1:123:recommendations"
	cfg.Audit.Enabled = true
	return cfg
}

func testSession() *models.DecisionSession {
	s := models.NewDecisionSession("user-1", "Should I move?")
	s.DecisionType = models.DecisionMixed
	return s
}

func testRecommendation() *models.Recommendation {
	return &models.Recommendation{
		FinalRecommendation: "move",
		NextSteps:           []string{"pack"},
		ConfidenceScore:     70,
		Trace:               models.Trace{ModelsUsed: []string{"analytical"}},
	}
}

func newNotifier(t *testing.T, cfg config.NotificationConfig, sesClient *fakeSES, snsClient *fakeSNS, audit *fakeAudit) (*Notifier, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(cfg, db, sesClient, snsClient, audit, "decision-recommendations", logger.NewTestLogger(t)), mock
}

func expectEmailLookup(mock sqlmock.Sqlmock, email string) {
	mock.ExpectQuery("SELECT email FROM users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow(email))
}

func TestRecommendationReadyAllChannels(t *testing.T) {
	sesClient, snsClient, audit := &fakeSES{}, &fakeSNS{}, &fakeAudit{}
	n, mock := newNotifier(t, allEnabled(), sesClient, snsClient, audit)
	expectEmailLookup(mock, "user@example.com")

	n.RecommendationReady(context.Background(), testSession(), testRecommendation())

	assert.Equal(t, 1, sesClient.calls)
	assert.Equal(t, []string{"user@example.com"}, sesClient.last.Destination.ToAddresses)
	assert.Equal(t, 1, snsClient.calls)
	assert.Equal(t, 1, audit.calls)
	assert.Equal(t, "decision-recommendations", audit.index)
}

func TestRecommendationReadyChannelFailureDoesNotStopOthers(t *testing.T) {
	sesClient := &fakeSES{err: errors.New("ses throttled")}
	snsClient, audit := &fakeSNS{}, &fakeAudit{}
	n, mock := newNotifier(t, allEnabled(), sesClient, snsClient, audit)
	expectEmailLookup(mock, "user@example.com")

	n.RecommendationReady(context.Background(), testSession(), testRecommendation())

	assert.Equal(t, 1, snsClient.calls, "SNS still fires after email failure")
	assert.Equal(t, 1, audit.calls, "audit still fires after email failure")
}

func TestRecommendationReadyDisabledChannelsSkipped(t *testing.T) {
	sesClient, snsClient, audit := &fakeSES{}, &fakeSNS{}, &fakeAudit{}
	cfg := config.NotificationConfig{}
	cfg.Audit.Enabled = true
	n, _ := newNotifier(t, cfg, sesClient, snsClient, audit)

	n.RecommendationReady(context.Background(), testSession(), testRecommendation())

	assert.Zero(t, sesClient.calls)
	assert.Zero(t, snsClient.calls)
	assert.Equal(t, 1, audit.calls)
}

func TestRecommendationReadyMissingRecipient(t *testing.T) {
	sesClient, snsClient, audit := &fakeSES{}, &fakeSNS{}, &fakeAudit{}
	n, mock := newNotifier(t, allEnabled(), sesClient, snsClient, audit)
	mock.ExpectQuery("SELECT email FROM users").
		WithArgs("user-1").
		WillReturnError(sql.ErrNoRows)

	n.RecommendationReady(context.Background(), testSession(), testRecommendation())

	assert.Zero(t, sesClient.calls, "no email without a recipient")
	assert.Equal(t, 1, snsClient.calls)
}
