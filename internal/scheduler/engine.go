package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

var (
	ErrInvalidTriggerTime = errors.New("scheduler: invalid trigger time")
	ErrStopped            = errors.New("scheduler: engine stopped")
)

// Sink arms or cancels the one pending alarm.
type Sink interface {
	Arm(ctx context.Context, c model.Candidate) error
	CancelAll(ctx context.Context) error
}

// Fired is emitted when an armed alarm goes off.
type Fired struct {
	Candidate model.Candidate
	FiredAt   time.Time
}

// Engine is the in-process alarm. It holds a single armed slot; arming
// replaces whatever was armed before.
type Engine struct {
	mu      sync.Mutex
	armed   *model.Candidate
	out     chan Fired
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	dropped uint64
}

var _ Sink = (*Engine)(nil)

func NewEngine(bufferSize int) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Engine{
		out:    make(chan Fired, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// C delivers fired alarms. It is closed when the engine stops.
func (e *Engine) C() <-chan Fired {
	return e.out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	go e.loop()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

func (e *Engine) Arm(_ context.Context, c model.Candidate) error {
	if c.TriggerTime.IsZero() {
		return ErrInvalidTriggerTime
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	e.armed = &c
	e.signalWakeup()
	return nil
}

func (e *Engine) CancelAll(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.armed = nil
	e.signalWakeup()
	return nil
}

// Armed returns the pending alarm, if any.
func (e *Engine) Armed() (model.Candidate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed == nil {
		return model.Candidate{}, false
	}
	return *e.armed, true
}

func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		next, hasNext := e.Armed()
		if !hasNext {
			select {
			case <-e.wakeup:
				continue
			case <-e.stopCh:
				return
			}
		}

		wait := time.Until(next.TriggerTime)
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			now := time.Now()
			if c, ok := e.popDue(now); ok {
				select {
				case e.out <- Fired{Candidate: c, FiredAt: now}:
				default:
					atomic.AddUint64(&e.dropped, 1)
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			stopTimer(timer)
			return
		}
	}
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) popDue(now time.Time) (model.Candidate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed == nil || e.armed.TriggerTime.After(now) {
		return model.Candidate{}, false
	}
	c := *e.armed
	e.armed = nil
	return c, true
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
