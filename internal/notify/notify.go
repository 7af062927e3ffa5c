// Package notify delivers user-facing fetch notifications: terminal errors,
// errors owned by another layer, and recoveries.
package notify

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/registrydash/internal/logfields"
)

// Kind says why a notification was raised.
type Kind string

const (
	KindError       Kind = "error"
	KindCommonState Kind = "common_state"
	KindRecovered   Kind = "recovered"
)

// Notification carries only user-presentable text.
type Notification struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Resource string    `json:"resource"`
	Category string    `json:"category,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// New fills in the id and timestamp.
func New(kind Kind, resource, category, message string) Notification {
	return Notification{
		ID:       uuid.NewString(),
		Kind:     kind,
		Resource: resource,
		Category: category,
		Message:  message,
		At:       time.Now().UTC(),
	}
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	level := slog.LevelInfo
	if n.Kind != KindRecovered {
		level = slog.LevelWarn
	}
	log.LogAttrs(ctx, level, "Notification",
		slog.String("kind", string(n.Kind)),
		logfields.Resource(n.Resource),
		slog.String("category", n.Category),
		slog.String("message", n.Message))
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
