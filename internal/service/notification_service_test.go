package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/parc-api/internal/models"
	"github.com/noah-isme/parc-api/pkg/jobs"
	"github.com/noah-isme/parc-api/pkg/mailer"
)

func TestTrainerCredentialsMessage(t *testing.T) {
	svc := newTestNotifier(nil)
	account := &models.Account{Email: "tara@x.io", FullName: "Tara Trainer"}
	expiry := time.Date(2026, 5, 1, 17, 30, 0, 0, time.FixedZone("WIB", 7*3600))

	msg := svc.TrainerCredentials(account, "s3cret", expiry)
	assert.Equal(t, []string{"tara@x.io"}, msg.To)
	assert.Equal(t, "Your Parc Platform Login Credentials & Schedule Update", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Tara,")
	assert.Contains(t, msg.Body, "Username: tara@x.io\nPassword: s3cret")
	assert.Contains(t, msg.Body, "Your access will be valid until: 2026-05-01 10:30")
	assert.Contains(t, msg.Body, "Login URL: https://parc.test/login")
	assert.Equal(t, "s3cret", secretFrom(msg.Body))
}

func TestAccountCredentialsSubjectByRole(t *testing.T) {
	svc := newTestNotifier(nil)
	employee := svc.AccountCredentials(&models.Account{Email: "e@x.io", FullName: "Eve", Role: models.RoleEmployee, MustChangePassword: true}, "pw")
	assert.Equal(t, "Your Parc Platform Employee Account Credentials", employee.Subject)
	assert.Contains(t, employee.Body, "You will be required to change your password upon your first login.")

	admin := svc.AccountCredentials(&models.Account{Email: "a@x.io", FullName: "Ada", Role: models.RoleAdmin}, "pw")
	assert.Equal(t, "Your Parc Platform Account Credentials", admin.Subject)
	assert.NotContains(t, admin.Body, "required to change")
}

func TestDeliverCountsEnqueueFailures(t *testing.T) {
	metrics := NewMetricsService()
	queue := &recordingQueue{err: errBoom}
	svc := NewNotificationService(queue, "", metrics, nil)

	outbox := &Outbox{}
	outbox.Add(mailer.Message{To: []string{"a@x.io"}, Subject: "one"})
	outbox.Add(mailer.Message{To: []string{"b@x.io"}, Subject: "two"})
	svc.Deliver(outbox)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.notificationsFailed))
}

func TestDeliverNilSafe(t *testing.T) {
	var svc *NotificationService
	svc.Deliver(&Outbox{})
	NewNotificationService(nil, "", nil, nil).Deliver(nil)

	var outbox *Outbox
	assert.Zero(t, outbox.Len())
	assert.Nil(t, outbox.Messages())
}

type recordingSender struct {
	sent []mailer.Message
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg mailer.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestMailHandler(t *testing.T) {
	metrics := NewMetricsService()
	sender := &recordingSender{}
	handler := MailHandler(sender, metrics)

	msg := mailer.Message{To: []string{"a@x.io"}, Subject: "hello"}
	require.NoError(t, handler(context.Background(), jobs.Job{Payload: msg}))
	assert.Equal(t, []mailer.Message{msg}, sender.sent)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notificationsSent))

	assert.Error(t, handler(context.Background(), jobs.Job{Payload: "not a message"}))

	sender.err = errBoom
	assert.ErrorIs(t, handler(context.Background(), jobs.Job{Payload: msg}), errBoom)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notificationsSent))
}

func TestMailGiveUpCountsFailure(t *testing.T) {
	metrics := NewMetricsService()
	giveUp := MailGiveUp(nil, metrics)
	giveUp(jobs.Job{ID: "job-1", Payload: mailer.Message{To: []string{"a@x.io"}}}, errBoom)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notificationsFailed))
}
