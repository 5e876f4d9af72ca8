// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/i18n"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
)

// Enqueuer accepts rendered messages for asynchronous delivery.
type Enqueuer interface {
	Enqueue(msg Message) bool
}

// Notifier renders account emails in the caller's locale and hands them to
// the queue. Delivery happens after the request has been answered.
type Notifier struct {
	renderer *Renderer
	queue    Enqueuer
	linkTTL  time.Duration
}

// NewNotifier creates a Notifier. linkTTL is mentioned in emails carrying a link.
func NewNotifier(renderer *Renderer, queue Enqueuer, linkTTL time.Duration) *Notifier {
	return &Notifier{renderer: renderer, queue: queue, linkTTL: linkTTL}
}

func (n *Notifier) NotifyVerification(ctx context.Context, user *models.User, link string) {
	n.notify(ctx, user, TemplateVerification, "email_verification_subject", link)
}

func (n *Notifier) NotifyWelcome(ctx context.Context, user *models.User) {
	n.notify(ctx, user, TemplateWelcome, "email_welcome_subject", "")
}

func (n *Notifier) NotifyPasswordReset(ctx context.Context, user *models.User, link string) {
	n.notify(ctx, user, TemplatePasswordReset, "email_password_reset_subject", link)
}

func (n *Notifier) NotifyPasswordChanged(ctx context.Context, user *models.User) {
	n.notify(ctx, user, TemplatePasswordChanged, "email_password_changed_subject", "")
}

func (n *Notifier) notify(ctx context.Context, user *models.User, tmpl Template, subjectID, link string) {
	data := Data{
		Subject:     i18n.T(ctx, subjectID),
		Name:        user.Name,
		Link:        link,
		ExpiryHours: int(n.linkTTL / time.Hour),
	}

	htmlBody, textBody, err := n.renderer.Render(ctx, tmpl, data)
	if err != nil {
		slog.ErrorContext(ctx, "email_render_failed", "template", string(tmpl), "user_id", user.ID, "error", err)
		return
	}

	n.queue.Enqueue(Message{
		To:       user.Email,
		Subject:  data.Subject,
		HTML:     htmlBody,
		Text:     textBody,
		Template: tmpl,
	})
}
