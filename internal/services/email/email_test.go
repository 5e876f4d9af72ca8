// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/i18n"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/services/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func validSMTPConfig() *config.SMTPConfig {
	return &config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "testuser",
		Password: "testpass",
		From:     "noreply@example.com",
		FromName: "Test App",
		TLS:      true,
	}
}

func TestNewSMTPSender(t *testing.T) {
	sender, err := email.NewSMTPSender(validSMTPConfig())

	require.NoError(t, err)
	assert.NotNil(t, sender)
}

func TestNewSMTPSender_MissingHost(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.Host = ""

	_, err := email.NewSMTPSender(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP host is required")
}

func TestNewSMTPSender_MissingFrom(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.From = ""

	_, err := email.NewSMTPSender(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP from address is required")
}

func TestSMTPSender_InvalidRecipient(t *testing.T) {
	sender, err := email.NewSMTPSender(validSMTPConfig())
	require.NoError(t, err)

	err = sender.Send(context.Background(), email.Message{To: "not an address", Subject: "x", Text: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "setting to address")
}

func TestSMTPSender_Unreachable(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.TLS = false
	sender, err := email.NewSMTPSender(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = sender.Send(ctx, email.Message{To: "a@x.io", Subject: "x", Text: "x"})

	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	err := email.LogSender{}.Send(context.Background(), email.Message{To: "a@x.io", Subject: "Hi"})

	assert.NoError(t, err)
}

func captureLog(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogSender_BodyOnlyAtDebug(t *testing.T) {
	link := "http://localhost:1573/reset-password/abc/def/"
	msg := email.Message{To: "a@x.io", Subject: "Reset", Text: "Follow " + link}

	t.Run("info", func(t *testing.T) {
		buf := captureLog(t, slog.LevelInfo)

		require.NoError(t, email.LogSender{}.Send(context.Background(), msg))

		assert.Contains(t, buf.String(), "email_not_sent")
		assert.Contains(t, buf.String(), "a@x.io")
		assert.NotContains(t, buf.String(), link)
	})

	t.Run("debug", func(t *testing.T) {
		buf := captureLog(t, slog.LevelDebug)

		require.NoError(t, email.LogSender{}.Send(context.Background(), msg))

		assert.Contains(t, buf.String(), link)
	})
}

func TestRenderer(t *testing.T) {
	require.NoError(t, i18n.Init())
	r, err := email.NewRenderer()
	require.NoError(t, err)

	ctx := i18n.WithLocale(context.Background(), language.English)
	link := "http://localhost:1573/verify-email/abc/def/"

	htmlBody, textBody, err := r.Render(ctx, email.TemplateVerification, email.Data{
		Subject:     "Verify your email",
		Name:        "Alice & Bob",
		Link:        link,
		ExpiryHours: 72,
	})

	require.NoError(t, err)
	assert.Contains(t, htmlBody, `href="`+link+`"`)
	assert.Contains(t, htmlBody, "Hi Alice &amp; Bob,")
	assert.Contains(t, htmlBody, `lang="en"`)

	assert.NotContains(t, textBody, "<")
	assert.Contains(t, textBody, "Hi Alice & Bob,")
	assert.Contains(t, textBody, link)
	assert.Contains(t, textBody, "This link expires in 72 hours.")
	assert.Equal(t, 1, strings.Count(textBody, "Verify your email"), "title is not repeated in text")
}

func TestRenderer_German(t *testing.T) {
	require.NoError(t, i18n.Init())
	r, err := email.NewRenderer()
	require.NoError(t, err)

	ctx := i18n.WithLocale(context.Background(), language.German)

	htmlBody, textBody, err := r.Render(ctx, email.TemplatePasswordChanged, email.Data{Name: "Alice"})

	require.NoError(t, err)
	assert.Contains(t, htmlBody, `lang="de"`)
	assert.Contains(t, textBody, "Hallo Alice,")
	assert.Contains(t, textBody, "Vielen Dank!")
}

func TestRenderer_AllTemplates(t *testing.T) {
	r, err := email.NewRenderer()
	require.NoError(t, err)

	for _, tmpl := range []email.Template{
		email.TemplateVerification,
		email.TemplatePasswordReset,
		email.TemplateWelcome,
		email.TemplatePasswordChanged,
	} {
		t.Run(string(tmpl), func(t *testing.T) {
			htmlBody, textBody, err := r.Render(context.Background(), tmpl, email.Data{
				Subject: "S", Name: "N", Link: "http://x/", ExpiryHours: 1,
			})
			require.NoError(t, err)
			assert.NotEmpty(t, htmlBody)
			assert.NotEmpty(t, textBody)
		})
	}

	_, _, err = r.Render(context.Background(), "missing", email.Data{})
	assert.Error(t, err)
}

type recordingSender struct {
	mu       sync.Mutex
	messages []email.Message
	started  chan struct{}
	release  chan struct{}
	err      error
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.err
}

func (s *recordingSender) sent() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.messages...)
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *countingRecorder) RecordMail(_, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[outcome]++
}

func (r *countingRecorder) count(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[outcome]
}

func TestQueue_DeliversAndDrains(t *testing.T) {
	sender := &recordingSender{}
	rec := &countingRecorder{}
	q := email.NewQueue(sender, 2, 10, rec)

	for i := range 5 {
		assert.True(t, q.Enqueue(email.Message{To: "a@x.io", Subject: string(rune('a' + i))}))
	}

	require.NoError(t, q.Shutdown(context.Background()))
	assert.Len(t, sender.sent(), 5)
	assert.Equal(t, 5, rec.count(email.OutcomeSent))
}

func TestQueue_DropsWhenFull(t *testing.T) {
	sender := &recordingSender{started: make(chan struct{}, 1), release: make(chan struct{})}
	rec := &countingRecorder{}
	q := email.NewQueue(sender, 1, 1, rec)

	require.True(t, q.Enqueue(email.Message{To: "first@x.io"}))
	<-sender.started // the worker holds the first message

	assert.True(t, q.Enqueue(email.Message{To: "second@x.io"}), "fills the buffer")
	assert.False(t, q.Enqueue(email.Message{To: "third@x.io"}), "never blocks the caller")
	assert.Equal(t, 1, rec.count(email.OutcomeDropped))

	close(sender.release)
	go func() {
		for range sender.started {
		}
	}()
	require.NoError(t, q.Shutdown(context.Background()))
	close(sender.started)

	assert.Len(t, sender.sent(), 2)
}

func TestQueue_SendFailureIsCounted(t *testing.T) {
	sender := &recordingSender{err: errors.New("relay down")}
	rec := &countingRecorder{}
	q := email.NewQueue(sender, 1, 1, rec)

	q.Enqueue(email.Message{To: "a@x.io"})
	require.NoError(t, q.Shutdown(context.Background()))

	assert.Equal(t, 1, rec.count(email.OutcomeFailed))
}

func TestQueue_ClosedQueueRejects(t *testing.T) {
	q := email.NewQueue(&recordingSender{}, 1, 1, nil)
	require.NoError(t, q.Shutdown(context.Background()))

	assert.False(t, q.Enqueue(email.Message{To: "a@x.io"}))
	assert.ErrorIs(t, q.Shutdown(context.Background()), email.ErrQueueClosed)
}

func TestQueue_ShutdownDeadline(t *testing.T) {
	sender := &recordingSender{started: make(chan struct{}, 1), release: make(chan struct{})}
	q := email.NewQueue(sender, 1, 1, nil)
	defer close(sender.release)

	q.Enqueue(email.Message{To: "a@x.io"})
	<-sender.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, q.Shutdown(ctx), context.DeadlineExceeded)
}

type captureQueue struct {
	messages []email.Message
}

func (q *captureQueue) Enqueue(msg email.Message) bool {
	q.messages = append(q.messages, msg)
	return true
}

func TestNotifier(t *testing.T) {
	require.NoError(t, i18n.Init())
	r, err := email.NewRenderer()
	require.NoError(t, err)
	q := &captureQueue{}
	n := email.NewNotifier(r, q, 72*time.Hour)
	user := &models.User{ID: "u1", Email: "a@x.io", Name: "Alice"}
	ctx := i18n.WithLocale(context.Background(), language.English)

	n.NotifyVerification(ctx, user, "http://f/verify-email/u/t/")
	n.NotifyWelcome(ctx, user)
	n.NotifyPasswordReset(ctx, user, "http://f/reset-password/u/t/")
	n.NotifyPasswordChanged(ctx, user)

	require.Len(t, q.messages, 4)
	assert.Equal(t, email.TemplateVerification, q.messages[0].Template)
	assert.Equal(t, "Verify your email", q.messages[0].Subject)
	assert.Contains(t, q.messages[0].Text, "http://f/verify-email/u/t/")
	assert.Equal(t, email.TemplateWelcome, q.messages[1].Template)
	assert.Equal(t, email.TemplatePasswordReset, q.messages[2].Template)
	assert.Contains(t, q.messages[2].HTML, "http://f/reset-password/u/t/")
	assert.Equal(t, email.TemplatePasswordChanged, q.messages[3].Template)
	for _, m := range q.messages {
		assert.Equal(t, "a@x.io", m.To)
		assert.NotEmpty(t, m.HTML)
		assert.NotEmpty(t, m.Text)
	}
}
