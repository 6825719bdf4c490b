// Package chain defines the query boundary to the two ledgers. The relayer
// only ever asks two questions per chain: does the escrow for an order exist,
// and where is the chain's clock right now.
package chain

import (
	"context"
	"time"
)

type (
	// SourceClient queries the Ethereum side.
	SourceClient interface {
		// EscrowExists reports whether the source escrow for the order is on chain.
		EscrowExists(ctx context.Context, orderID string) (bool, error)
		// CurrentHead returns the latest block number.
		CurrentHead(ctx context.Context) (uint64, error)
	}

	// DestinationClient queries the Stellar side.
	DestinationClient interface {
		// EscrowExists reports whether the destination escrow for the order is on chain.
		EscrowExists(ctx context.Context, orderID string) (bool, error)
		// CurrentLedgerTime returns the close time of the latest ledger.
		CurrentLedgerTime(ctx context.Context) (time.Time, error)
	}

	// Metrics records chain query outcomes.
	Metrics interface {
		Observe(chainName, operation string, err error, started time.Time)
	}
)
