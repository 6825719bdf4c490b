package escrow

import (
	"time"

	"github.com/lzmrd/EthXlmAtomic/internal/model"
)

// SourceFinal reports whether the source escrow has passed its finality
// threshold: the chain head must be strictly beyond the captured block.
func SourceFinal(es *model.EscrowStatus, head uint64) bool {
	return es.SrcExists && head > es.SrcFinalityHeight
}

// DestinationFinal reports whether the destination escrow has passed its
// finality threshold: ledger close time at or after the captured instant.
func DestinationFinal(es *model.EscrowStatus, ledgerTime time.Time) bool {
	return es.DstExists && !ledgerTime.Before(es.DstFinalityTime)
}

// Finalized is the reveal gate: both escrows exist and both finality
// predicates hold simultaneously. There is no partial finality. Pure
// function; recording the flip is the monitor's job.
func Finalized(es *model.EscrowStatus, head uint64, ledgerTime time.Time) bool {
	return SourceFinal(es, head) && DestinationFinal(es, ledgerTime)
}
