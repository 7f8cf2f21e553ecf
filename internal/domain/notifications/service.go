package notifications

import (
	"context"
	"log/slog"
	"strings"
)

type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type Service struct {
	store       StoreAPI
	Mailer      Mailer
	DefaultFrom string
}

func New(store StoreAPI, mailer Mailer, from string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{store: store, Mailer: mailer, DefaultFrom: from}
}

// Deliver stores the in-app notification for the event target and mails it
// when a mailer is configured. Mail problems are logged only.
func (s *Service) Deliver(ctx context.Context, e Event) error {
	if strings.TrimSpace(e.TargetUserID) == "" {
		return nil
	}
	title, body := render(e)
	if err := s.store.CreateNotification(ctx, Notification{
		UserID:    e.TargetUserID,
		Type:      e.Type,
		RequestID: e.RequestID,
		Title:     title,
		Body:      body,
		CreatedAt: e.OccurredAt,
	}); err != nil {
		return err
	}

	if s.Mailer == nil {
		return nil
	}
	email, err := s.store.UserEmail(ctx, e.TargetUserID)
	if err != nil {
		slog.Warn("notification email lookup failed", "err", err)
		return nil
	}
	if email == "" {
		return nil
	}
	if err := s.Mailer.Send(ctx, Message{From: s.DefaultFrom, To: email, Subject: title, Body: body}); err != nil {
		slog.Warn("notification email send failed", "err", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Notification, error) {
	return s.store.ListNotifications(ctx, userID, limit, offset)
}

func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	return s.store.CountNotifications(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.store.MarkRead(ctx, userID, notificationID)
}
