package model

import "time"

// OrderStatus is the resolver-visible lifecycle state of a swap order.
type OrderStatus string

const (
	StatusWaiting        OrderStatus = "waiting"
	StatusAuction        OrderStatus = "auction"
	StatusFilled         OrderStatus = "filled"
	StatusEscrowsPending OrderStatus = "escrows_pending"
	StatusEscrowsReady   OrderStatus = "escrows_ready"
	StatusSecretRevealed OrderStatus = "secret_revealed"
	StatusCompleted      OrderStatus = "completed"
	StatusExpired        OrderStatus = "expired"
)

// statusRank encodes the total forward order of transitions within one order.
// Expired is terminal and shares the rank of filled: an order either fills or
// expires, never both.
var statusRank = map[OrderStatus]int{
	StatusWaiting:        0,
	StatusAuction:        1,
	StatusFilled:         2,
	StatusExpired:        2,
	StatusEscrowsPending: 3,
	StatusEscrowsReady:   4,
	StatusSecretRevealed: 5,
	StatusCompleted:      6,
}

// Terminal reports whether no further transitions may occur.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// CanAdvance reports whether moving from s to next is a strictly forward
// transition. Terminal states never advance.
func (s OrderStatus) CanAdvance(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Phase buckets statuses into the three coarse swap phases reported on the
// order detail endpoint: 1 = announcement/auction, 2 = escrow funding,
// 3 = finalized/claim.
func (s OrderStatus) Phase() int {
	switch s {
	case StatusFilled, StatusEscrowsPending:
		return 2
	case StatusEscrowsReady, StatusSecretRevealed, StatusCompleted:
		return 3
	default:
		return 1
	}
}

// Order is the maker-submitted private order. It carries the plaintext secret
// and only exists on the submission path; once accepted the secret moves into
// the vault and everything downstream sees PublicOrder.
type Order struct {
	ID              string    `json:"orderId"`
	MakerSrcAddress string    `json:"makerSrcAddress"`
	MakerDstAddress string    `json:"makerDstAddress"`
	SrcToken        string    `json:"srcToken"`
	DstToken        string    `json:"dstToken"`
	SrcAmount       Amount    `json:"srcAmount"`
	DstAmount       Amount    `json:"dstAmount"`
	StartPrice      Amount    `json:"startPrice"`
	FloorPrice      Amount    `json:"minPrice"`
	Hashlock        string    `json:"hashlock"`
	Secret          string    `json:"secret"`
	Signature       string    `json:"signature"`
	CreatedAt       time.Time `json:"createdAt"`
	Deadline        time.Time `json:"deadline,omitzero"`
}

// PublicOrder is the secret-free projection broadcast to resolvers. There is
// deliberately no secret field on this type; the only path to the plaintext
// secret is the vault, at reveal time.
type PublicOrder struct {
	ID              string      `json:"orderId"`
	MakerSrcAddress string      `json:"makerSrcAddress"`
	MakerDstAddress string      `json:"makerDstAddress"`
	SrcToken        string      `json:"srcToken"`
	DstToken        string      `json:"dstToken"`
	SrcAmount       Amount      `json:"srcAmount"`
	DstAmount       Amount      `json:"dstAmount"`
	StartPrice      Amount      `json:"startPrice"`
	FloorPrice      Amount      `json:"minPrice"`
	Hashlock        string      `json:"hashlock"`
	CurrentPrice    Amount      `json:"currentPrice"`
	Status          OrderStatus `json:"status"`
	TakenBy         string      `json:"takenBy,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	AuctionStart    time.Time   `json:"auctionStartTime"`
	AuctionEnd      time.Time   `json:"auctionEndTime"`
}

// Clone returns an independent copy safe to hand to other goroutines.
func (p *PublicOrder) Clone() *PublicOrder {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
