package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/selector"
)

// Source lists the reminders that may still notify.
type Source func(ctx context.Context) ([]model.Reminder, error)

type request struct {
	rearm    bool
	cancelID string
	done     chan struct{}
}

// Rearmer serializes every "cancel, recompute, arm one" pass through a
// single goroutine. Requests queued while a pass runs are folded into the
// next pass.
type Rearmer struct {
	sink    Sink
	source  Source
	sel     selector.Selector
	now     func() time.Time
	timeout time.Duration
	log     *zap.Logger

	reqs   chan request
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	current *model.Candidate
	passes  int
	started bool
	stopped bool
}

type RearmerOption func(*Rearmer)

func WithClock(now func() time.Time) RearmerOption {
	return func(r *Rearmer) { r.now = now }
}

func WithLogger(log *zap.Logger) RearmerOption {
	return func(r *Rearmer) {
		if log != nil {
			r.log = log
		}
	}
}

func WithPassTimeout(d time.Duration) RearmerOption {
	return func(r *Rearmer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewRearmer(sink Sink, source Source, sel selector.Selector, opts ...RearmerOption) *Rearmer {
	r := &Rearmer{
		sink:    sink,
		source:  source,
		sel:     sel,
		now:     time.Now,
		timeout: 10 * time.Second,
		log:     zap.NewNop(),
		reqs:    make(chan request, 16),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Rearmer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	go r.loop()
}

func (r *Rearmer) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()
	<-r.doneCh
}

// Rearm blocks until a pass that started after the call has finished, or
// ctx is done.
func (r *Rearmer) Rearm(ctx context.Context) {
	r.submit(ctx, request{rearm: true})
}

// CancelFor cancels the armed alarm if it belongs to reminderID.
func (r *Rearmer) CancelFor(ctx context.Context, reminderID string) {
	r.submit(ctx, request{cancelID: reminderID})
}

// Current is the candidate armed by the last pass.
func (r *Rearmer) Current() (model.Candidate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return model.Candidate{}, false
	}
	return *r.current, true
}

// Passes counts completed rearm passes.
func (r *Rearmer) Passes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passes
}

func (r *Rearmer) submit(ctx context.Context, req request) {
	req.done = make(chan struct{})
	select {
	case r.reqs <- req:
	case <-ctx.Done():
		return
	case <-r.stopCh:
		return
	}
	select {
	case <-req.done:
	case <-ctx.Done():
	case <-r.stopCh:
	}
}

func (r *Rearmer) loop() {
	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			return
		case req := <-r.reqs:
			batch := []request{req}
		drain:
			for {
				select {
				case more := <-r.reqs:
					batch = append(batch, more)
				default:
					break drain
				}
			}
			r.process(batch)
			for _, b := range batch {
				close(b.done)
			}
		}
	}
}

func (r *Rearmer) process(batch []request) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("rearm pass panicked", zap.Any("panic", p))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	rearm := false
	for _, req := range batch {
		if req.cancelID != "" {
			r.cancelFor(ctx, req.cancelID)
		}
		rearm = rearm || req.rearm
	}
	if rearm {
		r.rearm(ctx)
	}
}

func (r *Rearmer) cancelFor(ctx context.Context, id string) {
	r.mu.Lock()
	current := r.current
	r.mu.Unlock()
	if current == nil || current.ReminderID != id {
		return
	}
	if err := r.sink.CancelAll(ctx); err != nil {
		r.log.Warn("cancel alarm failed", zap.String("reminder_id", id), zap.Error(err))
		return
	}
	r.setCurrent(nil)
	r.log.Debug("alarm cancelled", zap.String("reminder_id", id))
}

func (r *Rearmer) rearm(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.passes++
		r.mu.Unlock()
	}()

	// The old alarm goes first: a failed load leaves nothing armed rather
	// than an alarm for a reminder that may have just closed.
	if err := r.sink.CancelAll(ctx); err != nil {
		r.log.Warn("rearm: cancel alarm", zap.Error(err))
	}
	r.setCurrent(nil)

	reminders, err := r.source(ctx)
	if err != nil {
		r.log.Error("rearm: load reminders", zap.Error(err))
		return
	}

	c, ok := r.sel.Next(reminders, r.now())
	if !ok {
		r.log.Debug("rearm: nothing to arm", zap.Int("reminders", len(reminders)))
		return
	}
	if err := r.sink.Arm(ctx, c); err != nil {
		r.log.Error("rearm: arm alarm", zap.String("reminder_id", c.ReminderID), zap.Error(err))
		return
	}
	r.setCurrent(&c)
	r.log.Debug("alarm armed",
		zap.String("reminder_id", c.ReminderID),
		zap.Time("trigger_time", c.TriggerTime),
		zap.Bool("pre_reminder", c.IsPreReminder),
	)
}

func (r *Rearmer) setCurrent(c *model.Candidate) {
	r.mu.Lock()
	r.current = c
	r.mu.Unlock()
}
