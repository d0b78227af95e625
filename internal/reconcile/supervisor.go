package reconcile

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/remindd/internal/logging"
)

// Runner is a long-lived per-owner sync loop.
type Runner interface {
	Run(ctx context.Context, ownerID string) error
}

// Supervisor owns the one sync session. Starting a session for a new
// owner stops the previous one first.
type Supervisor struct {
	runners []Runner
	log     *zap.Logger

	mu     sync.Mutex
	owner  string
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(log *zap.Logger, runners ...Runner) *Supervisor {
	return &Supervisor{runners: runners, log: logging.OrNop(log)}
}

// Start begins syncing for ownerID. It is a no-op if that owner is
// already running.
func (s *Supervisor) Start(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil && s.owner == ownerID {
		return
	}
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range s.runners {
		g.Go(func() error { return r.Run(gctx, ownerID) })
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := g.Wait(); err != nil {
			s.log.Error("sync session ended", zap.String("owner_id", ownerID), zap.Error(err))
		}
	}()

	s.owner = ownerID
	s.cancel = cancel
	s.done = done
	s.log.Info("sync session started", zap.String("owner_id", ownerID), zap.Int("collections", len(s.runners)))
}

// Stop cancels the running session and waits for it to wind down.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Owner is the owner of the running session, or "".
func (s *Supervisor) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Follow drives the session from auth transitions: a non-empty owner id
// signs in, "" signs out. It returns when ctx is done or states closes,
// leaving no session running.
func (s *Supervisor) Follow(ctx context.Context, states <-chan string) {
	defer s.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case owner, ok := <-states:
			if !ok {
				return
			}
			if owner == "" {
				s.Stop()
				continue
			}
			s.Start(owner)
		}
	}
}

func (s *Supervisor) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info("sync session stopped", zap.String("owner_id", s.owner))
	s.owner = ""
	s.cancel = nil
	s.done = nil
}
