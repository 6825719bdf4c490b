package escrow

import (
	"context"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// SourceClient queries the Ethereum side for escrow presence and head.
	SourceClient interface {
		EscrowExists(ctx context.Context, orderID string) (bool, error)
		CurrentHead(ctx context.Context) (uint64, error)
	}

	// DestinationClient queries the Stellar side for escrow presence and
	// ledger time.
	DestinationClient interface {
		EscrowExists(ctx context.Context, orderID string) (bool, error)
		CurrentLedgerTime(ctx context.Context) (time.Time, error)
	}

	// Revealer is invoked exactly when both escrows are final.
	Revealer interface {
		Reveal(ctx context.Context, orderID string) error
	}

	// Metrics records monitor tick outcomes.
	Metrics interface {
		ObserveTick(outcome string)
	}
)
