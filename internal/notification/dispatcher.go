package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/pkg/jobs"
)

const jobTypeEmail = "email"

// ErrNoRecipient is returned when the user has no email address on file.
var ErrNoRecipient = errors.New("user has no email address")

var otpTemplate = template.Must(template.New("otp").Parse(`Hello {{.Name}},

Your password reset code is {{.Code}}.
It expires in {{.Minutes}} minutes, at {{.ExpiresAt}}.

If you did not ask to reset your password you can ignore this email.
`))

// DispatcherConfig configures the delivery worker pool.
type DispatcherConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// Dispatcher renders notifications and hands them to a background queue so callers never wait on SMTP.
type Dispatcher struct {
	sender Sender
	queue  *jobs.Queue[Message]
	logger *zap.Logger
	clock  func() time.Time
}

// NewDispatcher constructs a Dispatcher. Start must be called before notifications are accepted.
func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{sender: sender, logger: logger, clock: time.Now}
	d.queue = jobs.NewQueue("mail", d.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return d
}

// Start launches the delivery workers.
func (d *Dispatcher) Start(ctx context.Context) { d.queue.Start(ctx) }

// Stop halts the workers; undelivered messages are dropped.
func (d *Dispatcher) Stop() { d.queue.Stop() }

// NotifyOTP queues the password reset code for user.
func (d *Dispatcher) NotifyOTP(_ context.Context, user *models.User, code string, expiresAt time.Time) error {
	if user == nil || user.Email == "" {
		return ErrNoRecipient
	}

	name := user.FirstName
	if name == "" {
		name = user.Username
	}
	minutes := int(expiresAt.Sub(d.clock()).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	var body bytes.Buffer
	if err := otpTemplate.Execute(&body, map[string]interface{}{
		"Name":      name,
		"Code":      code,
		"Minutes":   minutes,
		"ExpiresAt": expiresAt.UTC().Format(time.RFC1123),
	}); err != nil {
		return fmt.Errorf("render otp email: %w", err)
	}

	return d.queue.Enqueue(jobs.Job[Message]{
		ID:   uuid.NewString(),
		Type: jobTypeEmail,
		Payload: Message{
			To:      user.Email,
			Subject: "Your password reset code",
			Body:    body.String(),
		},
	})
}

func (d *Dispatcher) deliver(ctx context.Context, job jobs.Job[Message]) error {
	return d.sender.Send(ctx, job.Payload)
}
