// Package relayer is the composition root of the swap pipeline: it accepts
// maker orders and fans the accepted ones out to the auction engine and the
// escrow monitor.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/model"
	"github.com/lzmrd/EthXlmAtomic/internal/order"
	"github.com/lzmrd/EthXlmAtomic/internal/registry"
	"github.com/lzmrd/EthXlmAtomic/internal/secret"
	"github.com/lzmrd/EthXlmAtomic/internal/signer"
)

// ErrOrderNotFound is returned by Order for an unknown id.
var ErrOrderNotFound = errors.New("order not found")

type (
	// Auctioneer schedules and resolves Dutch auctions.
	Auctioneer interface {
		Schedule(ctx context.Context, orderID string) bool
		Take(orderID, resolverAddress string) error
	}

	// EscrowWatcher starts per-order chain monitoring.
	EscrowWatcher interface {
		Start(ctx context.Context, orderID string) bool
	}

	// Metrics records submission outcomes.
	Metrics interface {
		ObserveAccepted()
		ObserveRejected(reason string)
	}
)

// Receipt is the synchronous answer to an accepted submission.
type Receipt struct {
	OrderID           string    `json:"orderId"`
	AuctionStart      time.Time `json:"auctionStartTime"`
	EstimatedDuration int64     `json:"estimatedDuration"`
}

// Detail is the full view of one order served on the detail endpoint. The
// claim phases are derived from the timelock mirrors once the corresponding
// escrow has been detected; before that they are omitted.
type Detail struct {
	Order        *model.PublicOrder  `json:"order"`
	EscrowStatus *model.EscrowStatus `json:"escrowStatus"`
	Phase        int                 `json:"phase"`
	SrcPhase     model.EscrowPhase   `json:"srcPhase,omitempty"`
	DstPhase     model.EscrowPhase   `json:"dstPhase,omitempty"`
}

// Service wires validation, the secret vault, the registry and the two
// per-order workers behind a small synchronous API.
type Service struct {
	logger    *zap.Logger
	clk       clock.Clock
	validator *order.Validator
	projector *order.Projector
	vault     *secret.Vault
	reg       *registry.Registry
	auction   Auctioneer
	monitor   EscrowWatcher
	metrics   Metrics
}

// NewService builds a Service.
func NewService(
	logger *zap.Logger,
	clk clock.Clock,
	validator *order.Validator,
	projector *order.Projector,
	vault *secret.Vault,
	reg *registry.Registry,
	auction Auctioneer,
	monitor EscrowWatcher,
	metrics Metrics,
) *Service {
	return &Service{
		logger:    logger.Named("relayer"),
		clk:       clk,
		validator: validator,
		projector: projector,
		vault:     vault,
		reg:       reg,
		auction:   auction,
		monitor:   monitor,
		metrics:   metrics,
	}
}

// Submit validates a maker order, moves its secret into the vault, registers
// the public projection and arms both per-order workers. The submitted order
// is scrubbed of its secret before Submit returns.
func (s *Service) Submit(ctx context.Context, o *model.Order) (*Receipt, error) {
	if err := s.validator.Validate(o); err != nil {
		s.metrics.ObserveRejected(rejectionReason(err))
		s.logger.Info("order rejected",
			zap.String("orderId", o.ID), zap.Error(err))
		return nil, err
	}

	pub, es := s.projector.Project(o)
	if err := s.reg.Add(pub, es); err != nil {
		s.metrics.ObserveRejected("duplicate")
		return nil, fmt.Errorf("register order %s: %w", o.ID, err)
	}
	if err := s.vault.Store(o.ID, o.Secret); err != nil {
		return nil, fmt.Errorf("store secret for order %s: %w", o.ID, err)
	}
	o.Secret = ""

	s.metrics.ObserveAccepted()
	s.logger.Info("order accepted",
		zap.String("orderId", o.ID),
		zap.Time("auctionStart", pub.AuctionStart),
		zap.String("startPrice", pub.StartPrice.Dec()),
		zap.String("floorPrice", pub.FloorPrice.Dec()))

	s.monitor.Start(ctx, o.ID)
	s.auction.Schedule(ctx, o.ID)

	return &Receipt{
		OrderID:           o.ID,
		AuctionStart:      pub.AuctionStart,
		EstimatedDuration: int64(pub.AuctionEnd.Sub(pub.AuctionStart) / time.Second),
	}, nil
}

// Take routes an explicit resolver take to the auction engine.
func (s *Service) Take(orderID, resolverAddress string) error {
	return s.auction.Take(orderID, resolverAddress)
}

// Orders returns snapshots of every order, terminal ones included.
func (s *Service) Orders() []*model.PublicOrder {
	return s.reg.List()
}

// Active returns snapshots of the non-terminal orders.
func (s *Service) Active() []*model.PublicOrder {
	return s.reg.Active()
}

// Snapshot exposes the raw registry view, used by the resolver hub.
func (s *Service) Snapshot(orderID string) (*model.PublicOrder, *model.EscrowStatus, bool) {
	return s.reg.Snapshot(orderID)
}

// Order returns the detail view for one order.
func (s *Service) Order(orderID string) (*Detail, error) {
	pub, es, ok := s.reg.Snapshot(orderID)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}
	d := &Detail{
		Order:        pub,
		EscrowStatus: es,
		Phase:        pub.Status.Phase(),
	}
	if es.SrcTimelocks != nil {
		d.SrcPhase = es.SrcTimelocks.PhaseAt(es.SrcHead)
	}
	if es.DstTimelocks != nil {
		// destination positions are ledger close times; wall clock tracks
		// them closely enough for a claim-window hint
		d.DstPhase = es.DstTimelocks.PhaseAt(uint64(s.clk.Now().Unix()))
	}
	return d, nil
}

// Counts returns per-status order counts for the health endpoint.
func (s *Service) Counts() map[model.OrderStatus]int {
	return s.reg.Counts()
}

// rejectionReason buckets a validation error into a bounded metric label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, order.ErrMissingField):
		return "missing_field"
	case errors.Is(err, order.ErrHashlockMismatch):
		return "hashlock_mismatch"
	case errors.Is(err, order.ErrOrderExpired):
		return "expired"
	case errors.Is(err, order.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, signer.ErrBadSignature):
		return "bad_signature"
	default:
		return "internal"
	}
}
