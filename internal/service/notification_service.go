package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/parc-api/internal/models"
	"github.com/noah-isme/parc-api/pkg/jobs"
	"github.com/noah-isme/parc-api/pkg/mailer"
)

const (
	notificationJobType = "email"
	mailSignature       = "Best regards,\nThe Parc Platform Team"
	expiryLayout        = "2006-01-02 15:04"
)

// Outbox collects messages produced inside a unit of work. It is delivered only after commit.
type Outbox struct {
	messages []mailer.Message
}

// Add queues a message.
func (o *Outbox) Add(msg mailer.Message) {
	o.messages = append(o.messages, msg)
}

// Messages returns the queued messages in insertion order.
func (o *Outbox) Messages() []mailer.Message {
	if o == nil {
		return nil
	}
	return o.messages
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	if o == nil {
		return 0
	}
	return len(o.messages)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type mailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// NotificationService renders account emails and hands them to the delivery queue.
type NotificationService struct {
	queue    jobEnqueuer
	loginURL string
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(queue jobEnqueuer, loginURL string, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, loginURL: loginURL, metrics: metrics, logger: logger}
}

// Deliver enqueues every outbox message. Failures are logged and counted, never returned.
func (s *NotificationService) Deliver(outbox *Outbox) {
	if s == nil || s.queue == nil {
		return
	}
	for _, msg := range outbox.Messages() {
		job := jobs.Job{ID: uuid.NewString(), Type: notificationJobType, Payload: msg}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Error("failed to enqueue notification", zap.Strings("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
			s.metrics.NotificationFailed()
		}
	}
}

// TrainerCredentials is sent whenever the lifecycle resets a trainer secret.
func (s *NotificationService) TrainerCredentials(account *models.Account, secret string, expiry time.Time) mailer.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", account.FirstName())
	b.WriteString("You have been assigned to a new schedule or your access needed reactivation. ")
	b.WriteString("Please use the following temporary credentials to log in. You may change your password after logging in if you wish.\n\n")
	fmt.Fprintf(&b, "Username: %s\nPassword: %s\n\n", account.Email, secret)
	fmt.Fprintf(&b, "Your access will be valid until: %s\n\n", expiry.UTC().Format(expiryLayout))
	s.writeFooter(&b)
	return mailer.Message{
		To:      []string{account.Email},
		Subject: "Your Parc Platform Login Credentials & Schedule Update",
		Body:    b.String(),
	}
}

// AccountCredentials announces a newly created non-trainer account.
func (s *NotificationService) AccountCredentials(account *models.Account, secret string) mailer.Message {
	subject := "Your Parc Platform Account Credentials"
	intro := "An account has been created for you on the Parc Platform."
	if account.Role == models.RoleEmployee {
		subject = "Your Parc Platform Employee Account Credentials"
		intro = "An employee account has been created for you on the Parc Platform."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", account.FirstName())
	fmt.Fprintf(&b, "%s Please use the following temporary credentials to log in. ", intro)
	if account.MustChangePassword {
		b.WriteString("You will be required to change your password upon your first login.")
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Username: %s\nPassword: %s\n\n", account.Email, secret)
	s.writeFooter(&b)
	return mailer.Message{To: []string{account.Email}, Subject: subject, Body: b.String()}
}

// ApplicationApproved confirms an approval. Trainers are told credentials follow their first schedule.
func (s *NotificationService) ApplicationApproved(kind models.ApplicationKind, account *models.Account) mailer.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", account.FirstName())
	subject := "Your Employee Application has been Approved!"
	if kind == models.ApplicationKindTrainer {
		subject = "Your Trainer Application has been Approved!"
		b.WriteString("Congratulations! Your application to become a trainer at Parc Platform has been approved. ")
		b.WriteString("You will receive another email with your login credentials once you have been assigned to your first schedule.\n\n")
	} else {
		b.WriteString("Congratulations! Your application to become an employee at Parc Platform has been approved. ")
		b.WriteString("You should receive another email shortly with your temporary login credentials.\n\n")
	}
	b.WriteString(mailSignature)
	return mailer.Message{To: []string{account.Email}, Subject: subject, Body: b.String()}
}

// ApplicationDeclined informs the applicant before the application is removed.
func (s *NotificationService) ApplicationDeclined(app *models.Application) mailer.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", app.Name)
	subject := "Update on Your Parc Platform Employee Application"
	if app.Kind == models.ApplicationKindTrainer {
		subject = "Update on Your Parc Platform Trainer Application"
		b.WriteString("Thank you for your interest in becoming a trainer. ")
	} else {
		b.WriteString("Thank you for your interest in joining Parc Platform. ")
	}
	b.WriteString("After careful consideration, we have decided not to move forward with your application at this time.\n\n")
	b.WriteString("We wish you the best in your future endeavors.\n\n")
	b.WriteString(mailSignature)
	return mailer.Message{To: []string{app.Email}, Subject: subject, Body: b.String()}
}

func (s *NotificationService) writeFooter(b *strings.Builder) {
	if s.loginURL != "" {
		fmt.Fprintf(b, "Login URL: %s\n\n", s.loginURL)
	}
	b.WriteString(mailSignature)
}

// MailHandler builds the queue handler that pushes messages to the relay.
func MailHandler(sender mailSender, metrics *MetricsService) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(mailer.Message)
		if !ok {
			return fmt.Errorf("unexpected notification payload %T", job.Payload)
		}
		if err := sender.Send(ctx, msg); err != nil {
			return err
		}
		metrics.NotificationSent()
		return nil
	}
}

// MailGiveUp records a message dropped after retries.
func MailGiveUp(logger *zap.Logger, metrics *MetricsService) jobs.GiveUpFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(job jobs.Job, err error) {
		fields := []zap.Field{zap.String("job_id", job.ID), zap.Error(err)}
		if msg, ok := job.Payload.(mailer.Message); ok {
			fields = append(fields, zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
		}
		logger.Error("notification delivery failed", fields...)
		metrics.NotificationFailed()
	}
}
