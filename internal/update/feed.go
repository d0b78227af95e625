package update

import (
	"context"

	"github.com/sandeepkv93/remindd/internal/notifier"
)

// Feed is a notifier that hands delivered alarms to the watch screen. A
// full buffer drops the notification rather than stall delivery.
type Feed struct {
	ch chan notifier.Notification
}

func NewFeed(buffer int) *Feed {
	if buffer < 1 {
		buffer = 1
	}
	return &Feed{ch: make(chan notifier.Notification, buffer)}
}

func (f *Feed) Send(_ context.Context, n notifier.Notification) error {
	select {
	case f.ch <- n:
	default:
	}
	return nil
}

func (f *Feed) C() <-chan notifier.Notification { return f.ch }
