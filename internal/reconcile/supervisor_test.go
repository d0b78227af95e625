package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/remote"
)

type blockingRunner struct {
	mu      sync.Mutex
	started []string
	running map[string]bool
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{running: make(map[string]bool)}
}

func (b *blockingRunner) Run(ctx context.Context, ownerID string) error {
	b.mu.Lock()
	b.started = append(b.started, ownerID)
	b.running[ownerID] = true
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	b.running[ownerID] = false
	b.mu.Unlock()
	return nil
}

func (b *blockingRunner) snapshot() ([]string, map[string]bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	running := make(map[string]bool, len(b.running))
	for k, v := range b.running {
		running[k] = v
	}
	return append([]string(nil), b.started...), running
}

func TestSupervisorSwitchesOwners(t *testing.T) {
	runner := newBlockingRunner()
	sup := NewSupervisor(nil, runner)

	sup.Start("alice")
	sup.Start("alice")
	require.Eventually(t, func() bool {
		started, _ := runner.snapshot()
		return len(started) == 1
	}, time.Second, 5*time.Millisecond)

	sup.Start("bob")
	assert.Equal(t, "bob", sup.Owner())
	require.Eventually(t, func() bool {
		_, running := runner.snapshot()
		return running["bob"] && !running["alice"]
	}, time.Second, 5*time.Millisecond)

	sup.Stop()
	assert.Empty(t, sup.Owner())
	_, running := runner.snapshot()
	assert.False(t, running["bob"])
}

func TestSupervisorFollowsAuthState(t *testing.T) {
	runner := newBlockingRunner()
	sup := NewSupervisor(nil, runner)
	states := make(chan string)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Follow(ctx, states)
	}()

	states <- "alice"
	require.Eventually(t, func() bool { return sup.Owner() == "alice" }, time.Second, 5*time.Millisecond)

	states <- ""
	require.Eventually(t, func() bool { return sup.Owner() == "" }, time.Second, 5*time.Millisecond)

	states <- "bob"
	require.Eventually(t, func() bool { return sup.Owner() == "bob" }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Empty(t, sup.Owner())
}

func TestRunAppliesRemoteChanges(t *testing.T) {
	local := newMemLocal[model.Reminder]()
	mem := remote.NewMemory()
	rec := newReminderReconciler(local, mem, Hooks[model.Reminder]{})
	sup := NewSupervisor(nil, rec)
	ctx := context.Background()

	sup.Start(owner)
	defer sup.Stop()

	require.NoError(t, mem.Put(ctx, doc(t, reminderAt("remote-1", base))))
	require.Eventually(t, func() bool {
		_, err := local.Get(ctx, "remote-1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunRetriesAfterSubscribeFailure(t *testing.T) {
	local := newMemLocal[model.Reminder]()
	mem := remote.NewMemory()
	mem.Seed(doc(t, reminderAt("seeded", base)))
	mem.SetFailure(remote.ErrUnavailable)
	rec := newReminderReconciler(local, mem, Hooks[model.Reminder]{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- rec.Run(ctx, owner) }()

	time.Sleep(30 * time.Millisecond)
	mem.SetFailure(nil)
	require.Eventually(t, func() bool {
		_, err := local.Get(ctx, "seeded")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-errc)
}
