// Package reveal owns the single most sensitive transition of a swap:
// handing the plaintext secret to resolvers. The journal write comes before
// the broadcast, so a crash can lose a broadcast but never double one.
package reveal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/hub"
	"github.com/lzmrd/EthXlmAtomic/internal/model"
	"github.com/lzmrd/EthXlmAtomic/internal/registry"
	"github.com/lzmrd/EthXlmAtomic/internal/scheduler"
	"github.com/lzmrd/EthXlmAtomic/internal/secret"
)

// Broadcaster fans envelopes out to resolvers.
type Broadcaster interface {
	Broadcast(msg hub.Envelope)
}

// Metrics counts successful reveals.
type Metrics interface {
	ObserveReveal()
}

// Config carries the chain facts stamped into claim instructions, plus how
// long a revealed order lingers before it is marked completed.
type Config struct {
	SrcChain          string
	SrcEscrowContract string
	DstChain          string
	DstEscrowAccount  string
	CompletionGrace   time.Duration
}

// Coordinator performs the at-most-once secret reveal. All reveals go
// through a single mutex; they are rare enough that serializing them is
// cheaper than reasoning about a per-order guard racing the journal.
type Coordinator struct {
	logger  *zap.Logger
	clk     clock.Clock
	sleep   func(context.Context, time.Duration) error
	reg     *registry.Registry
	sched   *scheduler.Manager
	vault   *secret.Vault
	bcast   Broadcaster
	journal Journal
	metrics Metrics
	cfg     Config

	mu   sync.Mutex
	done map[string]struct{}
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(
	logger *zap.Logger,
	clk clock.Clock,
	reg *registry.Registry,
	sched *scheduler.Manager,
	vault *secret.Vault,
	bcast Broadcaster,
	journal Journal,
	metrics Metrics,
	cfg Config,
) *Coordinator {
	return &Coordinator{
		logger:  logger.Named("reveal"),
		clk:     clk,
		sleep:   clock.SleepWithContext,
		reg:     reg,
		sched:   sched,
		vault:   vault,
		bcast:   bcast,
		journal: journal,
		metrics: metrics,
		cfg:     cfg,
		done:    make(map[string]struct{}),
	}
}

// Restore preloads the in-process guard from the journal so a restarted
// relayer never re-reveals an order journaled by a previous run.
func (c *Coordinator) Restore(ctx context.Context) error {
	ids, err := c.journal.OrderIDs(ctx)
	if err != nil {
		return fmt.Errorf("load reveal journal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.done[id] = struct{}{}
	}
	if len(ids) > 0 {
		c.logger.Info("restored reveal guard", zap.Int("orders", len(ids)))
	}
	return nil
}

// Reveal journals and broadcasts the order's secret. Safe to call any number
// of times, from any number of goroutines: the secret goes out at most once.
// A non-nil error means nothing was journaled and the caller may retry.
func (c *Coordinator) Reveal(ctx context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.done[orderID]; ok {
		return nil
	}

	pub, _, ok := c.reg.Snapshot(orderID)
	if !ok {
		return fmt.Errorf("reveal: unknown order %s", orderID)
	}
	plaintext, err := c.vault.Reveal(orderID)
	if err != nil {
		return fmt.Errorf("reveal order %s: %w", orderID, err)
	}

	rec := Record{
		OrderID:    orderID,
		Hashlock:   secret.Hashlock(plaintext),
		FinalPrice: pub.CurrentPrice,
		TakenBy:    pub.TakenBy,
		RevealedAt: c.clk.Now(),
	}
	if err := c.journal.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateReveal) {
			// another run already journaled it; swallow without a broadcast
			c.done[orderID] = struct{}{}
			return nil
		}
		return fmt.Errorf("journal reveal for order %s: %w", orderID, err)
	}
	c.done[orderID] = struct{}{}

	// the reveal retires both feeder timers. The monitor also stops itself
	// after handing the order over and the auction timer is normally long
	// gone, but the scheduler ledger must not depend on that.
	c.sched.Cancel(orderID, scheduler.KindAuction)
	c.sched.Cancel(orderID, scheduler.KindMonitor)

	instructions := &hub.ClaimInstructions{
		OrderID:           orderID,
		SrcChain:          c.cfg.SrcChain,
		SrcEscrowContract: c.cfg.SrcEscrowContract,
		SrcEscrowID:       orderID,
		DstChain:          c.cfg.DstChain,
		DstEscrowAccount:  c.cfg.DstEscrowAccount,
		Note:              "claim destination escrow first, then source",
	}
	c.reg.Update(orderID, func(st *registry.State) {
		if !st.Public.Status.CanAdvance(model.StatusSecretRevealed) {
			return
		}
		st.Public.Status = model.StatusSecretRevealed
		c.bcast.Broadcast(hub.SecretRevealed(orderID, plaintext, instructions))
	})

	c.metrics.ObserveReveal()
	c.logger.Info("secret revealed",
		zap.String("orderId", orderID),
		zap.String("hashlock", rec.Hashlock),
		zap.String("finalPrice", rec.FinalPrice.Dec()))

	c.scheduleCompletion(orderID)
	return nil
}

// scheduleCompletion arms the grace timer that flips the order to completed.
// The timer root is Background on purpose: the reveal already happened, so
// the transition should survive the caller's context. Shutdown still cancels
// it through the scheduler.
func (c *Coordinator) scheduleCompletion(orderID string) {
	c.sched.Start(context.Background(), orderID, scheduler.KindCompletion, func(timerCtx context.Context) {
		if err := c.sleep(timerCtx, c.cfg.CompletionGrace); err != nil {
			return
		}
		c.complete(orderID)
	})
}

func (c *Coordinator) complete(orderID string) {
	c.reg.Update(orderID, func(st *registry.State) {
		if st.Public.Status != model.StatusSecretRevealed {
			return
		}
		st.Public.Status = model.StatusCompleted
	})
	c.vault.Wipe(orderID)
	c.logger.Info("order completed", zap.String("orderId", orderID))
}
