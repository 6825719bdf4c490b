// Package escrow watches both chains for escrow creation and finality. The
// monitor is the component that freezes the auction price the instant the
// source escrow appears, and the one that opens the gate to the reveal.
package escrow

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/hub"
	"github.com/lzmrd/EthXlmAtomic/internal/model"
	"github.com/lzmrd/EthXlmAtomic/internal/registry"
	"github.com/lzmrd/EthXlmAtomic/internal/scheduler"
	"github.com/lzmrd/EthXlmAtomic/pkg/workerpool"
)

// Broadcaster fans envelopes out to resolvers.
type Broadcaster interface {
	Broadcast(msg hub.Envelope)
}

// Config sets the poll cadence and the claim-window layout stamped into each
// order's timelock mirror at detection. Source windows are block counts,
// destination windows are ledger-time durations.
type Config struct {
	Interval time.Duration

	SrcFinalityBlocks     uint64
	SrcExclusiveBlocks    uint64
	SrcCancellationBlocks uint64

	DstFinalityWindow     time.Duration
	DstExclusiveWindow    time.Duration
	DstCancellationWindow time.Duration
}

// Monitor polls both chains per order on a coarse interval, applies what it
// observed under the order lock, and hands finalized orders to the revealer.
type Monitor struct {
	logger   *zap.Logger
	clk      clock.Clock
	sleep    func(context.Context, time.Duration) error
	reg      *registry.Registry
	sched    *scheduler.Manager
	bcast    Broadcaster
	src      SourceClient
	dst      DestinationClient
	revealer Revealer
	metrics  Metrics
	cfg      Config
}

// NewMonitor builds a Monitor.
func NewMonitor(
	logger *zap.Logger,
	clk clock.Clock,
	reg *registry.Registry,
	sched *scheduler.Manager,
	bcast Broadcaster,
	src SourceClient,
	dst DestinationClient,
	revealer Revealer,
	metrics Metrics,
	cfg Config,
) *Monitor {
	return &Monitor{
		logger:   logger.Named("monitor"),
		clk:      clk,
		sleep:    clock.SleepWithContext,
		reg:      reg,
		sched:    sched,
		bcast:    bcast,
		src:      src,
		dst:      dst,
		revealer: revealer,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Start launches the order's monitor timer. It runs from acceptance,
// independent of the auction phase. Returns false if already running.
func (m *Monitor) Start(ctx context.Context, orderID string) bool {
	return m.sched.Start(ctx, orderID, scheduler.KindMonitor, func(timerCtx context.Context) {
		m.run(timerCtx, orderID)
	})
}

func (m *Monitor) run(ctx context.Context, orderID string) {
	for {
		if err := m.sleep(ctx, m.cfg.Interval); err != nil {
			return
		}
		if m.tick(ctx, orderID) {
			return
		}
	}
}

// observation is what one tick learned from the chains. Nil pointers mean
// the query was skipped or failed; failures degrade to "not observed yet".
type observation struct {
	srcExists  *bool
	dstExists  *bool
	head       *uint64
	ledgerTime *time.Time
}

// tick performs one poll cycle. Returns true when the monitor should stop:
// order gone, terminal, or handed to the revealer.
func (m *Monitor) tick(ctx context.Context, orderID string) bool {
	pub, es, ok := m.reg.Snapshot(orderID)
	if !ok {
		return true
	}
	// a tick that fires after a terminal transition is a silent no-op
	if pub.Status.Terminal() || pub.Status == model.StatusSecretRevealed {
		return true
	}
	// an earlier reveal attempt failed; retry without re-querying the chains
	if pub.Status == model.StatusEscrowsReady && es.BothFinal() {
		if err := m.revealer.Reveal(ctx, orderID); err != nil {
			m.logger.Error("reveal failed", zap.String("orderId", orderID), zap.Error(err))
			return false
		}
		return true
	}

	obs, queryErr := m.probe(ctx, orderID, es)
	if ctx.Err() != nil {
		return true
	}

	outcome := m.apply(orderID, obs)
	if queryErr {
		m.metrics.ObserveTick("query_error")
	} else {
		m.metrics.ObserveTick(outcome)
	}

	if outcome == "finalized" {
		if err := m.revealer.Reveal(ctx, orderID); err != nil {
			// reveal is retried next tick; the journal guard makes retries safe
			m.logger.Error("reveal failed", zap.String("orderId", orderID), zap.Error(err))
			return false
		}
		return true
	}
	return false
}

// probe runs the chain queries this tick needs, concurrently and strictly
// outside the order lock. Individual query failures are logged and left as
// nil observations.
func (m *Monitor) probe(ctx context.Context, orderID string, es *model.EscrowStatus) (observation, bool) {
	var obs observation
	var failed atomic.Bool

	type query struct {
		name string
		run  func(context.Context) error
	}
	var queries []query

	if !es.SrcExists {
		queries = append(queries, query{name: "src_escrow", run: func(qctx context.Context) error {
			exists, err := m.src.EscrowExists(qctx, orderID)
			if err != nil {
				return err
			}
			obs.srcExists = &exists
			return nil
		}})
	}
	if !es.DstExists {
		queries = append(queries, query{name: "dst_escrow", run: func(qctx context.Context) error {
			exists, err := m.dst.EscrowExists(qctx, orderID)
			if err != nil {
				return err
			}
			obs.dstExists = &exists
			return nil
		}})
	}
	if !es.SrcFinal {
		queries = append(queries, query{name: "src_head", run: func(qctx context.Context) error {
			head, err := m.src.CurrentHead(qctx)
			if err != nil {
				return err
			}
			obs.head = &head
			return nil
		}})
	}
	if !es.DstFinal {
		queries = append(queries, query{name: "dst_ledger_time", run: func(qctx context.Context) error {
			lt, err := m.dst.CurrentLedgerTime(qctx)
			if err != nil {
				return err
			}
			obs.ledgerTime = &lt
			return nil
		}})
	}

	// each query swallows its own error so one slow or failing chain never
	// hides what the other reported
	_ = workerpool.Process(ctx, len(queries), queries, func(qctx context.Context, q query) error {
		if err := q.run(qctx); err != nil {
			failed.Store(true)
			m.logger.Warn("chain query failed, retrying next tick",
				zap.String("orderId", orderID), zap.String("query", q.name), zap.Error(err))
		}
		return nil
	}, nil)

	return obs, failed.Load()
}

// apply folds the observations into the order under its lock. Every
// detection-driven status transition happens here, synchronously, which is
// why escrow detection always wins over a concurrently expiring price tick.
func (m *Monitor) apply(orderID string, obs observation) string {
	outcome := "noop"

	m.reg.Update(orderID, func(st *registry.State) {
		pub, es := st.Public, st.Escrow
		if pub.Status.Terminal() || pub.Status == model.StatusSecretRevealed {
			return
		}
		if obs.head != nil {
			es.SrcHead = *obs.head
		}

		// source detection: capture threshold, timelock mirror and freeze
		// the price in the same critical section
		if obs.srcExists != nil && *obs.srcExists && !es.SrcExists && obs.head != nil {
			es.SrcExists = true
			locks := model.NewEscrowTimelocks(*obs.head,
				m.cfg.SrcFinalityBlocks, m.cfg.SrcExclusiveBlocks, m.cfg.SrcCancellationBlocks)
			es.SrcTimelocks = &locks
			es.SrcFinalityHeight = locks.FinalityLock
			outcome = "detected_src"

			if pub.Status == model.StatusWaiting || pub.Status == model.StatusAuction {
				pub.Status = model.StatusFilled
				m.bcast.Broadcast(hub.OrderFilled(orderID, pub.CurrentPrice))
				m.logger.Info("source escrow detected, price fixed",
					zap.String("orderId", orderID),
					zap.String("finalPrice", pub.CurrentPrice.Dec()),
					zap.Uint64("finalityHeight", es.SrcFinalityHeight))
			}
		}

		if obs.dstExists != nil && *obs.dstExists && !es.DstExists && obs.ledgerTime != nil {
			es.DstExists = true
			locks := model.NewEscrowTimelocks(uint64(obs.ledgerTime.Unix()),
				uint64(m.cfg.DstFinalityWindow/time.Second),
				uint64(m.cfg.DstExclusiveWindow/time.Second),
				uint64(m.cfg.DstCancellationWindow/time.Second))
			es.DstTimelocks = &locks
			es.DstFinalityTime = obs.ledgerTime.Add(m.cfg.DstFinalityWindow)
			if outcome == "noop" {
				outcome = "detected_dst"
			}
			m.logger.Info("destination escrow detected",
				zap.String("orderId", orderID),
				zap.Time("finalityTime", es.DstFinalityTime))
		}

		if es.BothExist() && pub.Status == model.StatusFilled {
			pub.Status = model.StatusEscrowsPending
		}

		// finality flags only ever go false→true
		if es.SrcExists && !es.SrcFinal && obs.head != nil && SourceFinal(es, *obs.head) {
			es.SrcFinal = true
		}
		if es.DstExists && !es.DstFinal && obs.ledgerTime != nil && DestinationFinal(es, *obs.ledgerTime) {
			es.DstFinal = true
		}

		if es.BothFinal() && pub.Status == model.StatusEscrowsPending {
			pub.Status = model.StatusEscrowsReady
			outcome = "finalized"
		}
	})

	if outcome == "detected_src" {
		// the auction tick must never fire again for this order
		m.sched.Cancel(orderID, scheduler.KindAuction)
	}
	return outcome
}
