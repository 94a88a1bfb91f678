package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/havenhomes/haven-backend/internal/config"
	"github.com/havenhomes/haven-backend/internal/utils"
)

// NotificationSender delivers one password-reset notification. Delivery is
// best-effort: a failure must never fail the request that triggered it.
type NotificationSender interface {
	SendPasswordReset(ctx context.Context, toEmail, toName, token string) error
}

// LogSender is a development fallback used when no delivery provider is
// configured. It logs that a reset was issued without the token itself.
type LogSender struct{}

// SendPasswordReset implements NotificationSender.
func (LogSender) SendPasswordReset(_ context.Context, toEmail, _, _ string) error {
	log.Info().
		Str("email", utils.MaskEmail(toEmail)).
		Msg("Password reset notification (no delivery provider configured)")
	return nil
}

// SendGridSender sends password reset emails through SendGrid.
type SendGridSender struct {
	apiKey      string
	fromAddress string
	fromName    string
	resetURL    string // format string with one %s for the token
}

// NewSendGridSender creates a SendGridSender from notification settings.
func NewSendGridSender(cfg *config.NotificationSettings) (*SendGridSender, error) {
	if cfg.SendGridAPIKey == "" {
		return nil, fmt.Errorf("sendgrid API key not configured")
	}
	return &SendGridSender{
		apiKey:      cfg.SendGridAPIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		resetURL:    cfg.ResetURL,
	}, nil
}

// SendPasswordReset implements NotificationSender.
func (s *SendGridSender) SendPasswordReset(_ context.Context, toEmail, toName, token string) error {
	from := mail.NewEmail(s.fromName, s.fromAddress)
	to := mail.NewEmail(toName, toEmail)
	subject := "Password Reset Request"
	link := fmt.Sprintf(s.resetURL, token)
	plainTextContent := fmt.Sprintf("Please use the following link to reset your password: %s", link)
	htmlContent := fmt.Sprintf("<strong>Please use the following link to reset your password:</strong> <a href=%q>Reset Password</a>", link)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}
	return nil
}

// notificationJob is one queued delivery.
type notificationJob struct {
	ID      string
	Email   string
	Name    string
	Token   string
	Queued  time.Time
	Retries int
}

// NotificationOutbox decouples the request path from delivery: the request
// enqueues a job and returns, a worker attempts delivery with bounded retry
// and logs failures. This makes delivery failures observable instead of
// silently dropped.
type NotificationOutbox struct {
	sender     NotificationSender
	jobs       chan notificationJob
	maxRetries int

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewNotificationOutbox creates an outbox over the given sender.
func NewNotificationOutbox(sender NotificationSender, queueSize, maxRetries int) *NotificationOutbox {
	return &NotificationOutbox{
		sender:     sender,
		jobs:       make(chan notificationJob, queueSize),
		maxRetries: maxRetries,
		stop:       make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (o *NotificationOutbox) Start() {
	o.wg.Add(1)
	go o.worker()
}

// Stop drains the worker. Jobs still queued are abandoned with a log entry.
func (o *NotificationOutbox) Stop() {
	o.once.Do(func() {
		close(o.stop)
	})
	o.wg.Wait()

	abandoned := len(o.jobs)
	if abandoned > 0 {
		log.Warn().Int("abandoned_jobs", abandoned).Msg("Notification outbox stopped with queued jobs")
	}
}

// EnqueuePasswordReset queues a reset notification. It never blocks: if the
// queue is full the job is dropped and logged, and the calling request
// still succeeds.
func (o *NotificationOutbox) EnqueuePasswordReset(email, name, token string) {
	job := notificationJob{
		ID:     uuid.NewString(),
		Email:  email,
		Name:   name,
		Token:  token,
		Queued: time.Now(),
	}

	select {
	case o.jobs <- job:
	default:
		log.Error().
			Str("job_id", job.ID).
			Str("email", utils.MaskEmail(email)).
			Msg("Notification queue full, dropping delivery job")
	}
}

func (o *NotificationOutbox) worker() {
	defer o.wg.Done()

	for {
		select {
		case <-o.stop:
			return
		case job := <-o.jobs:
			o.deliver(job)
		}
	}
}

func (o *NotificationOutbox) deliver(job notificationJob) {
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			// Linear spacing is enough here; the token stays valid for
			// the whole TTL.
			select {
			case <-o.stop:
				return
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := o.sender.SendPasswordReset(ctx, job.Email, job.Name, job.Token)
		cancel()

		if err == nil {
			log.Info().
				Str("job_id", job.ID).
				Str("email", utils.MaskEmail(job.Email)).
				Int("attempt", attempt+1).
				Msg("Password reset notification delivered")
			return
		}

		log.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("email", utils.MaskEmail(job.Email)).
			Int("attempt", attempt+1).
			Msg("Password reset notification delivery failed")
	}

	log.Error().
		Str("job_id", job.ID).
		Str("email", utils.MaskEmail(job.Email)).
		Int("max_retries", o.maxRetries).
		Msg("Password reset notification delivery abandoned")
}
