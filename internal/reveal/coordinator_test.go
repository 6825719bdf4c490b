package reveal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/hub"
	"github.com/lzmrd/EthXlmAtomic/internal/model"
	"github.com/lzmrd/EthXlmAtomic/internal/registry"
	"github.com/lzmrd/EthXlmAtomic/internal/scheduler"
	"github.com/lzmrd/EthXlmAtomic/internal/secret"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type captureBroadcaster struct {
	mu   sync.Mutex
	msgs []hub.Envelope
}

func (c *captureBroadcaster) Broadcast(msg hub.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *captureBroadcaster) all() []hub.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]hub.Envelope(nil), c.msgs...)
}

type countMetrics struct {
	reveals atomic.Int64
}

func (c *countMetrics) ObserveReveal() { c.reveals.Add(1) }

// flakyJournal fails the first failures inserts, then delegates.
type flakyJournal struct {
	*MemoryJournal
	failures atomic.Int64
}

func (j *flakyJournal) Insert(ctx context.Context, rec Record) error {
	if j.failures.Add(-1) >= 0 {
		return errors.New("connection refused")
	}
	return j.MemoryJournal.Insert(ctx, rec)
}

type fixture struct {
	coord   *Coordinator
	reg     *registry.Registry
	sched   *scheduler.Manager
	vault   *secret.Vault
	bcast   *captureBroadcaster
	metrics *countMetrics
	journal Journal
}

func newFixture(t *testing.T, journal Journal) *fixture {
	t.Helper()

	f := &fixture{
		reg:     registry.New(),
		sched:   scheduler.NewManager(zap.NewNop()),
		vault:   secret.NewVault(),
		bcast:   &captureBroadcaster{},
		metrics: &countMetrics{},
		journal: journal,
	}
	t.Cleanup(f.sched.Shutdown)
	f.coord = NewCoordinator(
		zap.NewNop(),
		clock.NewManual(baseTime),
		f.reg,
		f.sched,
		f.vault,
		f.bcast,
		journal,
		f.metrics,
		Config{
			SrcChain:          "ethereum",
			SrcEscrowContract: "0xescrow",
			DstChain:          "stellar",
			DstEscrowAccount:  "GESCROW",
			CompletionGrace:   time.Minute,
		},
	)
	return f
}

func (f *fixture) addReadyOrder(t *testing.T, orderID, plaintext string) {
	t.Helper()
	require.NoError(t, f.vault.Store(orderID, plaintext))
	pub := &model.PublicOrder{
		ID:           orderID,
		CurrentPrice: model.NewAmount(1_000_000_000),
		TakenBy:      "0xresolver",
		Status:       model.StatusEscrowsReady,
	}
	require.NoError(t, f.reg.Add(pub, &model.EscrowStatus{
		SrcExists: true, DstExists: true, SrcFinal: true, DstFinal: true,
	}))
}

func TestCoordinator_RevealBroadcastsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewMemoryJournal())
	f.addReadyOrder(t, "o1", "supersecret")

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.coord.Reveal(context.Background(), "o1"))
		}()
	}
	wg.Wait()

	msgs := f.bcast.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, hub.TypeSecretRevealed, msgs[0].Type)
	assert.Equal(t, "supersecret", msgs[0].Secret)
	require.NotNil(t, msgs[0].Instructions)
	assert.Equal(t, "stellar", msgs[0].Instructions.DstChain)

	ids, err := f.journal.OrderIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, ids)

	pub, _, _ := f.reg.Snapshot("o1")
	assert.Equal(t, model.StatusSecretRevealed, pub.Status)
	assert.Equal(t, int64(1), f.metrics.reveals.Load())
}

func TestCoordinator_JournalFailureIsRetriable(t *testing.T) {
	t.Parallel()

	journal := &flakyJournal{MemoryJournal: NewMemoryJournal()}
	journal.failures.Store(1)
	f := newFixture(t, journal)
	f.addReadyOrder(t, "o1", "supersecret")

	require.Error(t, f.coord.Reveal(context.Background(), "o1"))
	assert.Empty(t, f.bcast.all(), "failed journal write must not leak the secret")

	pub, _, _ := f.reg.Snapshot("o1")
	assert.Equal(t, model.StatusEscrowsReady, pub.Status)

	require.NoError(t, f.coord.Reveal(context.Background(), "o1"))
	assert.Len(t, f.bcast.all(), 1)
}

func TestCoordinator_DuplicateJournalEntrySuppressesBroadcast(t *testing.T) {
	t.Parallel()

	journal := NewMemoryJournal()
	require.NoError(t, journal.Insert(context.Background(), Record{OrderID: "o1", RevealedAt: baseTime}))

	f := newFixture(t, journal)
	f.addReadyOrder(t, "o1", "supersecret")

	require.NoError(t, f.coord.Reveal(context.Background(), "o1"))
	assert.Empty(t, f.bcast.all())
	assert.Equal(t, int64(0), f.metrics.reveals.Load())
}

func TestCoordinator_RestorePreloadsGuard(t *testing.T) {
	t.Parallel()

	journal := NewMemoryJournal()
	require.NoError(t, journal.Insert(context.Background(), Record{OrderID: "o1", RevealedAt: baseTime}))

	f := newFixture(t, journal)
	f.addReadyOrder(t, "o1", "supersecret")
	require.NoError(t, f.coord.Restore(context.Background()))

	require.NoError(t, f.coord.Reveal(context.Background(), "o1"))
	// guard hit before the vault or journal are even consulted
	assert.Empty(t, f.bcast.all())
}

func TestCoordinator_UnknownOrderOrMissingSecret(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewMemoryJournal())

	require.Error(t, f.coord.Reveal(context.Background(), "ghost"))

	pub := &model.PublicOrder{ID: "o2", Status: model.StatusEscrowsReady}
	require.NoError(t, f.reg.Add(pub, &model.EscrowStatus{}))
	err := f.coord.Reveal(context.Background(), "o2")
	require.ErrorIs(t, err, secret.ErrNotFound)
	assert.Empty(t, f.bcast.all())
}

func TestCoordinator_RevealRetiresFeederTimers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewMemoryJournal())
	f.addReadyOrder(t, "o1", "supersecret")

	ctx := context.Background()
	require.True(t, f.sched.Start(ctx, "o1", scheduler.KindAuction, func(c context.Context) { <-c.Done() }))
	require.True(t, f.sched.Start(ctx, "o1", scheduler.KindMonitor, func(c context.Context) { <-c.Done() }))

	require.NoError(t, f.coord.Reveal(ctx, "o1"))

	require.Eventually(t, func() bool {
		return !f.sched.Has("o1", scheduler.KindAuction) && !f.sched.Has("o1", scheduler.KindMonitor)
	}, time.Second, 5*time.Millisecond, "feeder timers still live after the reveal")
	assert.True(t, f.sched.Has("o1", scheduler.KindCompletion), "completion grace timer should be armed")
}

func TestCoordinator_CompletionGraceFlipsStatusAndWipes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewMemoryJournal())
	f.addReadyOrder(t, "o1", "supersecret")
	f.coord.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	require.NoError(t, f.coord.Reveal(context.Background(), "o1"))

	require.Eventually(t, func() bool {
		pub, _, ok := f.reg.Snapshot("o1")
		return ok && pub.Status == model.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	_, err := f.vault.Reveal("o1")
	assert.ErrorIs(t, err, secret.ErrNotFound)
}
