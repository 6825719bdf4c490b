// Package auction runs the per-order Dutch auction: a waiting period, then a
// linearly decaying price published on a fixed tick until the source escrow
// is observed, a resolver takes the order, or the window runs out.
package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/hub"
	"github.com/lzmrd/EthXlmAtomic/internal/model"
	"github.com/lzmrd/EthXlmAtomic/internal/registry"
	"github.com/lzmrd/EthXlmAtomic/internal/scheduler"
	"github.com/lzmrd/EthXlmAtomic/internal/secret"
)

// Take rejections.
var (
	ErrUnknownOrder    = errors.New("unknown order")
	ErrNotTakeable     = errors.New("order is not takeable")
	ErrResolverMissing = errors.New("resolver address is required")
)

type (
	// Broadcaster fans envelopes out to resolvers. Must not block.
	Broadcaster interface {
		Broadcast(msg hub.Envelope)
	}

	// Metrics records tick outcomes.
	Metrics interface {
		ObserveTick(outcome string)
	}
)

// Engine drives the auction state machine for every order. One timer
// goroutine per order, owned by the scheduler.
type Engine struct {
	logger  *zap.Logger
	clk     clock.Clock
	sleep   func(context.Context, time.Duration) error
	reg     *registry.Registry
	sched   *scheduler.Manager
	bcast   Broadcaster
	metrics Metrics
	vault   *secret.Vault

	tickInterval time.Duration
}

// NewEngine builds an Engine.
func NewEngine(
	logger *zap.Logger,
	clk clock.Clock,
	reg *registry.Registry,
	sched *scheduler.Manager,
	bcast Broadcaster,
	metrics Metrics,
	vault *secret.Vault,
	tickInterval time.Duration,
) *Engine {
	return &Engine{
		logger:       logger.Named("auction"),
		clk:          clk,
		sleep:        clock.SleepWithContext,
		reg:          reg,
		sched:        sched,
		bcast:        bcast,
		metrics:      metrics,
		vault:        vault,
		tickInterval: tickInterval,
	}
}

// Schedule starts the order's auction timer: it waits out the waiting period
// and then ticks until a terminal auction outcome. Returns false if the timer
// already exists.
func (e *Engine) Schedule(ctx context.Context, orderID string) bool {
	return e.sched.Start(ctx, orderID, scheduler.KindAuction, func(timerCtx context.Context) {
		e.run(timerCtx, orderID)
	})
}

// Take is the explicit resolver path to filled, routed in from the hub.
// First transition wins: if escrow detection or expiry got there first, the
// take is rejected.
func (e *Engine) Take(orderID, resolverAddress string) error {
	if resolverAddress == "" {
		return ErrResolverMissing
	}

	var reject error
	ok := e.reg.Update(orderID, func(st *registry.State) {
		status := st.Public.Status
		if status != model.StatusWaiting && status != model.StatusAuction {
			reject = fmt.Errorf("order %s in status %s: %w", orderID, status, ErrNotTakeable)
			return
		}
		st.Public.Status = model.StatusFilled
		st.Public.TakenBy = resolverAddress
		e.bcast.Broadcast(hub.OrderTaken(orderID, resolverAddress))
	})
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrUnknownOrder)
	}
	if reject != nil {
		return reject
	}

	e.sched.Cancel(orderID, scheduler.KindAuction)
	e.logger.Info("order taken",
		zap.String("orderId", orderID), zap.String("resolver", resolverAddress))
	return nil
}

func (e *Engine) run(ctx context.Context, orderID string) {
	pub, _, ok := e.reg.Snapshot(orderID)
	if !ok {
		return
	}

	if wait := pub.AuctionStart.Sub(e.clk.Now()); wait > 0 {
		if err := e.sleep(ctx, wait); err != nil {
			return
		}
	}

	if !e.open(orderID) {
		return
	}

	for {
		if err := e.sleep(ctx, e.tickInterval); err != nil {
			return
		}
		if !e.tick(orderID) {
			return
		}
	}
}

// open transitions waiting → auction and announces the order. Returns false
// if the order moved on during the waiting period (taken, or escrow observed
// before the auction even opened).
func (e *Engine) open(orderID string) bool {
	opened := false
	e.reg.Update(orderID, func(st *registry.State) {
		if st.Public.Status != model.StatusWaiting || st.Escrow.SrcExists {
			return
		}
		st.Public.Status = model.StatusAuction
		opened = true
		e.bcast.Broadcast(hub.NewOrder(st.Public.Clone()))
	})
	if opened {
		e.logger.Info("auction opened", zap.String("orderId", orderID))
	}
	return opened
}

// tick applies one price step. Returns false when the auction is over and the
// timer should stop. The whole decision runs under the order lock so a
// concurrent escrow detection can never interleave with a price write.
func (e *Engine) tick(orderID string) bool {
	keepTicking := false
	outcome := "noop"
	expired := false

	e.reg.Update(orderID, func(st *registry.State) {
		if st.Escrow.SrcExists || st.Public.Status != model.StatusAuction {
			// price fixed by escrow detection, take, or another terminal move
			outcome = "fixed"
			return
		}

		now := e.clk.Now()
		if now.After(st.Public.AuctionEnd) {
			st.Public.Status = model.StatusExpired
			outcome = "expired"
			expired = true
			e.bcast.Broadcast(hub.OrderExpired(orderID))
			return
		}

		price := DecayedPrice(st.Public.StartPrice, st.Public.FloorPrice, st.Public.AuctionStart, st.Public.AuctionEnd, now)
		st.Public.CurrentPrice = price
		outcome = "price_update"
		keepTicking = true
		remaining := int64(st.Public.AuctionEnd.Sub(now) / time.Second)
		e.bcast.Broadcast(hub.PriceUpdate(orderID, price, remaining))
	})

	e.metrics.ObserveTick(outcome)

	if expired {
		e.sched.CancelAll(orderID)
		e.vault.Wipe(orderID)
		e.logger.Info("auction expired", zap.String("orderId", orderID))
	}
	return keepTicking
}

// DecayedPrice interpolates linearly from start to floor across the auction
// window. Outside the window it clamps; the floor is a hard lower bound.
func DecayedPrice(start, floor model.Amount, windowStart, windowEnd, now time.Time) model.Amount {
	window := windowEnd.Sub(windowStart)
	if window <= 0 {
		return floor
	}
	elapsed := now.Sub(windowStart)
	if elapsed <= 0 {
		return start
	}
	if elapsed >= window {
		return floor
	}

	span := start.Sub(floor)
	drop := span.MulDiv(uint64(elapsed/time.Millisecond), uint64(window/time.Millisecond))
	price := start.Sub(drop)
	if price.Cmp(floor) < 0 {
		return floor
	}
	return price
}
