package notification

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/pkg/config"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []Message
	failures int
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("smtp unavailable")
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) delivered() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func TestDispatcherDeliversOTP(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1}, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.clock = func() time.Time { return now }
	d.Start(context.Background())
	defer d.Stop()

	user := &models.User{Username: "alice", FirstName: "Alice", Email: "alice@example.com"}
	require.NoError(t, d.NotifyOTP(context.Background(), user, "482913", now.Add(5*time.Minute)))

	require.Eventually(t, func() bool { return len(sender.delivered()) == 1 }, time.Second, 5*time.Millisecond)
	msg := sender.delivered()[0]
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Your password reset code", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Alice,")
	assert.Contains(t, msg.Body, "482913")
	assert.Contains(t, msg.Body, "5 minutes")
}

func TestDispatcherRetriesFailedDelivery(t *testing.T) {
	sender := &recordingSender{failures: 1}
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond}, nil)
	d.Start(context.Background())
	defer d.Stop()

	user := &models.User{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, d.NotifyOTP(context.Background(), user, "123456", time.Now().Add(time.Minute)))
	require.Eventually(t, func() bool { return len(sender.delivered()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, sender.delivered()[0].Body, "Hello alice,")
}

func TestDispatcherRejectsMissingEmail(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, DispatcherConfig{}, nil)
	d.Start(context.Background())
	defer d.Stop()

	err := d.NotifyOTP(context.Background(), &models.User{Username: "alice"}, "123456", time.Now())
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestDispatcherNotStarted(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, DispatcherConfig{}, nil)
	err := d.NotifyOTP(context.Background(), &models.User{Username: "alice", Email: "a@example.com"}, "123456", time.Now())
	assert.Error(t, err)
}

func TestLogSenderOmitsBody(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))
	require.NoError(t, s.Send(context.Background(), Message{To: "a@example.com", Subject: "hi", Body: "code 482913"}))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "a@example.com", fields["to"])
	assert.NotContains(t, fields, "body")
}

func TestBuildMessage(t *testing.T) {
	m, err := buildMessage("no-reply@identity.local", Message{To: "alice@example.com", Subject: "Reset", Body: "code 482913"})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Reset")
	assert.Contains(t, raw, "alice@example.com")
	assert.Contains(t, raw, "482913")

	_, err = buildMessage("not an address", Message{To: "alice@example.com"})
	assert.Error(t, err)
}

func TestNewSMTPSender(t *testing.T) {
	s, err := NewSMTPSender(config.MailConfig{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p", From: "no-reply@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "no-reply@example.com", s.from)

	_, err = NewSMTPSender(config.MailConfig{Port: 2525})
	assert.Error(t, err)
}
