// Package stellar implements the destination-chain query client against
// Horizon. Escrow presence is published by the escrow contract as a data
// entry on its admin account, keyed by order id.
package stellar

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"go.uber.org/ratelimit"

	"github.com/lzmrd/EthXlmAtomic/internal/chain"
	"github.com/lzmrd/EthXlmAtomic/pkg/safe"
)

const chainName = "stellar"

type (
	// Horizon is the narrow slice of horizonclient.Client the relayer needs.
	Horizon interface {
		AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
		Root() (hProtocol.Root, error)
		LedgerDetail(sequence uint32) (hProtocol.Ledger, error)
	}
)

// Client queries escrow presence and ledger time, rate limited and
// instrumented. Horizon's client API is not context-aware; cancellation is
// honored between calls by the polling loops that own this client.
type Client struct {
	horizon       Horizon
	escrowAccount string
	rl            ratelimit.Limiter
	metrics       chain.Metrics
}

// NewClient builds a Client. escrowAccount is the contract admin account
// carrying the escrow data entries.
func NewClient(horizon Horizon, escrowAccount string, rps int, metrics chain.Metrics) *Client {
	return &Client{
		horizon:       horizon,
		escrowAccount: escrowAccount,
		rl:            ratelimit.New(rps),
		metrics:       metrics,
	}
}

// DataKey is the account data entry name marking an order's escrow.
func DataKey(orderID string) string {
	return "escrow:" + orderID
}

// EscrowExists checks the escrow account's data entries for the order.
func (c *Client) EscrowExists(ctx context.Context, orderID string) (exists bool, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe(chainName, "escrow_exists", err, started)
	}()
	if err = ctx.Err(); err != nil {
		return false, err
	}
	c.rl.Take()

	account, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: c.escrowAccount})
	if err != nil {
		return false, fmt.Errorf("fetch escrow account: %w", err)
	}
	_, ok := account.Data[DataKey(orderID)]
	return ok, nil
}

// CurrentLedgerTime returns the close time of the latest known ledger.
func (c *Client) CurrentLedgerTime(ctx context.Context) (closed time.Time, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe(chainName, "ledger_time", err, started)
	}()
	if err = ctx.Err(); err != nil {
		return time.Time{}, err
	}
	c.rl.Take()

	root, err := c.horizon.Root()
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch horizon root: %w", err)
	}
	sequence, err := safe.Uint32(root.HorizonSequence)
	if err != nil {
		return time.Time{}, fmt.Errorf("ledger sequence out of range: %w", err)
	}
	ledger, err := c.horizon.LedgerDetail(sequence)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch ledger %d: %w", sequence, err)
	}
	return ledger.ClosedAt, nil
}
