package model

import "time"

// EscrowStatus tracks what the relayer has observed about the two escrows of
// one order. All booleans are monotonic: once set they never clear, even if a
// later chain query disagrees. Thresholds are captured exactly once, the tick
// existence is first observed.
type EscrowStatus struct {
	SrcExists bool `json:"srcEscrowExists"`
	DstExists bool `json:"dstEscrowExists"`
	SrcFinal  bool `json:"srcEscrowFinal"`
	DstFinal  bool `json:"dstEscrowFinal"`

	// SrcFinalityHeight is the Ethereum block number the source head must
	// exceed before the source escrow counts as final.
	SrcFinalityHeight uint64 `json:"srcFinalityHeight,omitempty"`
	// DstFinalityTime is the Stellar ledger close time at or after which the
	// destination escrow counts as final.
	DstFinalityTime time.Time `json:"dstFinalityTime,omitzero"`

	// SrcHead is the last source chain head the monitor observed, the
	// position SrcTimelocks phases are evaluated against.
	SrcHead uint64 `json:"srcHead,omitempty"`

	// Timelock mirrors, captured together with the finality thresholds when
	// each escrow is first observed. Never mutated afterwards.
	SrcTimelocks *EscrowTimelocks `json:"srcTimelocks,omitempty"`
	DstTimelocks *EscrowTimelocks `json:"dstTimelocks,omitempty"`
}

// BothExist reports whether both escrows have been observed on chain.
func (e *EscrowStatus) BothExist() bool {
	return e.SrcExists && e.DstExists
}

// BothFinal reports whether both escrows have passed their finality locks.
func (e *EscrowStatus) BothFinal() bool {
	return e.SrcFinal && e.DstFinal
}

// Clone returns an independent copy.
func (e *EscrowStatus) Clone() *EscrowStatus {
	if e == nil {
		return nil
	}
	cp := *e
	if e.SrcTimelocks != nil {
		t := *e.SrcTimelocks
		cp.SrcTimelocks = &t
	}
	if e.DstTimelocks != nil {
		t := *e.DstTimelocks
		cp.DstTimelocks = &t
	}
	return &cp
}

// EscrowPhase names the window the on-chain escrow contract is currently in.
type EscrowPhase string

const (
	PhaseDeposit        EscrowPhase = "deposit"
	PhaseExclusiveClaim EscrowPhase = "exclusive_claim"
	PhasePublicClaim    EscrowPhase = "public_claim"
	PhaseCancellation   EscrowPhase = "cancellation"
)

// EscrowTimelocks mirrors the escrow contract's three successive deadlines,
// expressed in the chain's own clock (block number on Ethereum, ledger close
// time as unix seconds on Stellar). The contract computes them as
// finality = now + finalityDuration, exclusive = finality + exclusiveDuration,
// cancellation = exclusive + cancellationDuration; the relayer replicates that
// layout so it can reason about claim windows without another chain query.
type EscrowTimelocks struct {
	FinalityLock     uint64 `json:"finalityLock"`
	ExclusiveLock    uint64 `json:"exclusiveLock"`
	CancellationLock uint64 `json:"cancellationLock"`
}

// NewEscrowTimelocks lays out the three locks from a chain position and the
// three window durations.
func NewEscrowTimelocks(current, finalityDur, exclusiveDur, cancellationDur uint64) EscrowTimelocks {
	finality := current + finalityDur
	exclusive := finality + exclusiveDur
	return EscrowTimelocks{
		FinalityLock:     finality,
		ExclusiveLock:    exclusive,
		CancellationLock: exclusive + cancellationDur,
	}
}

// PhaseAt returns which claim window is open at the given chain position.
func (t EscrowTimelocks) PhaseAt(position uint64) EscrowPhase {
	switch {
	case position < t.FinalityLock:
		return PhaseDeposit
	case position < t.ExclusiveLock:
		return PhaseExclusiveClaim
	case position < t.CancellationLock:
		return PhasePublicClaim
	default:
		return PhaseCancellation
	}
}
