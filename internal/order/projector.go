package order

import (
	"time"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/model"
)

// Projector derives the resolver-visible PublicOrder and initial EscrowStatus
// from an accepted order. It never schedules timers; the relayer service owns
// that.
type Projector struct {
	clk             clock.Clock
	waitingPeriod   time.Duration
	auctionDuration time.Duration
}

// NewProjector builds a Projector with the auction window configuration.
func NewProjector(clk clock.Clock, waitingPeriod, auctionDuration time.Duration) *Projector {
	return &Projector{
		clk:             clk,
		waitingPeriod:   waitingPeriod,
		auctionDuration: auctionDuration,
	}
}

// Project builds the PublicOrder in the waiting state. The secret never
// crosses this boundary: PublicOrder has no field to put it in.
func (p *Projector) Project(o *model.Order) (*model.PublicOrder, *model.EscrowStatus) {
	now := p.clk.Now()
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	start := now.Add(p.waitingPeriod)

	pub := &model.PublicOrder{
		ID:              o.ID,
		MakerSrcAddress: o.MakerSrcAddress,
		MakerDstAddress: o.MakerDstAddress,
		SrcToken:        o.SrcToken,
		DstToken:        o.DstToken,
		SrcAmount:       o.SrcAmount,
		DstAmount:       o.DstAmount,
		StartPrice:      o.StartPrice,
		FloorPrice:      o.FloorPrice,
		Hashlock:        o.Hashlock,
		CurrentPrice:    o.StartPrice,
		Status:          model.StatusWaiting,
		CreatedAt:       createdAt,
		AuctionStart:    start,
		AuctionEnd:      start.Add(p.auctionDuration),
	}
	return pub, &model.EscrowStatus{}
}
