// Package notifier delivers fired alarms to the user.
package notifier

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/logging"
	"github.com/sandeepkv93/remindd/internal/model"
)

type Notification struct {
	ReminderID  string
	Title       string
	Body        string
	At          time.Time
	PreReminder bool
}

func FromCandidate(c model.Candidate, at time.Time) Notification {
	return Notification{
		ReminderID:  c.ReminderID,
		Title:       c.Title,
		Body:        c.Body,
		At:          at,
		PreReminder: c.IsPreReminder,
	}
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

type Nop struct{}

func (Nop) Send(context.Context, Notification) error { return nil }

// Log writes each notification to a zap logger.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: logging.OrNop(log)}
}

func (l *Log) Send(_ context.Context, n Notification) error {
	l.log.Info("reminder notification",
		zap.String("reminder_id", n.ReminderID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.Bool("pre_reminder", n.PreReminder),
		zap.Time("at", n.At),
	)
	return nil
}

// Multi sends to every notifier, even after one fails.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, target := range m {
		if err := target.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
