// Package ethereum implements the source-chain query client against an EVM
// escrow contract.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/ratelimit"

	"github.com/lzmrd/EthXlmAtomic/internal/chain"
)

const chainName = "ethereum"

// escrowExistsSelector is the 4-byte selector of escrowExists(bytes32).
var escrowExistsSelector = crypto.Keccak256([]byte("escrowExists(bytes32)"))[:4]

type (
	// RPC is the narrow slice of ethclient.Client the relayer needs.
	RPC interface {
		BlockNumber(ctx context.Context) (uint64, error)
		CallContract(ctx context.Context, msg goethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	}
)

// Client queries the escrow contract and chain head, rate limited and
// instrumented.
type Client struct {
	rpc      RPC
	contract common.Address
	rl       ratelimit.Limiter
	metrics  chain.Metrics
}

// NewClient builds a Client. rps bounds outgoing RPC calls per second.
func NewClient(rpc RPC, contract common.Address, rps int, metrics chain.Metrics) *Client {
	return &Client{
		rpc:      rpc,
		contract: contract,
		rl:       ratelimit.New(rps),
		metrics:  metrics,
	}
}

// EscrowID derives the bytes32 escrow identifier the contract is keyed by.
func EscrowID(orderID string) [32]byte {
	var id [32]byte
	copy(id[:], crypto.Keccak256([]byte(orderID)))
	return id
}

// EscrowExists calls escrowExists(bytes32) on the escrow contract.
func (c *Client) EscrowExists(ctx context.Context, orderID string) (exists bool, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe(chainName, "escrow_exists", err, started)
	}()
	c.rl.Take()

	id := EscrowID(orderID)
	data := make([]byte, 0, 4+32)
	data = append(data, escrowExistsSelector...)
	data = append(data, id[:]...)

	out, err := c.rpc.CallContract(ctx, goethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("call escrowExists: %w", err)
	}
	if len(out) != 32 {
		return false, fmt.Errorf("escrowExists returned %d bytes, want 32", len(out))
	}
	return out[31] == 1, nil
}

// CurrentHead returns the latest block number.
func (c *Client) CurrentHead(ctx context.Context) (head uint64, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe(chainName, "block_number", err, started)
	}()
	c.rl.Take()

	head, err = c.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch block number: %w", err)
	}
	return head, nil
}
