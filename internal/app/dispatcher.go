package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/logging"
	"github.com/sandeepkv93/remindd/internal/notifier"
	"github.com/sandeepkv93/remindd/internal/scheduler"
)

// DeliveryHandler is told about every alarm after it reached the user.
type DeliveryHandler interface {
	HandleNotificationDelivered(ctx context.Context, id string, isPreReminder bool) error
}

// Dispatcher turns fired alarms into notifications.
type Dispatcher struct {
	fired    <-chan scheduler.Fired
	notifier notifier.Notifier
	handler  DeliveryHandler
	log      *zap.Logger
}

func NewDispatcher(fired <-chan scheduler.Fired, n notifier.Notifier, h DeliveryHandler, log *zap.Logger) *Dispatcher {
	return &Dispatcher{fired: fired, notifier: n, handler: h, log: logging.OrNop(log)}
}

// Run consumes alarms until ctx is done or the engine stops.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-d.fired:
			if !ok {
				return
			}
			d.deliver(ctx, f)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, f scheduler.Fired) {
	c := f.Candidate
	log := d.log.With(zap.String("reminder_id", c.ReminderID), zap.Bool("pre_reminder", c.IsPreReminder))
	if err := d.notifier.Send(ctx, notifier.FromCandidate(c, f.FiredAt)); err != nil {
		log.Warn("notification delivery failed", zap.Error(err))
	}
	if err := d.handler.HandleNotificationDelivered(ctx, c.ReminderID, c.IsPreReminder); err != nil {
		log.Error("handle delivered notification", zap.Error(err))
	}
}
