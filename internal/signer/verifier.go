// Package signer verifies maker order signatures.
package signer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lzmrd/EthXlmAtomic/internal/model"
)

// ErrBadSignature is returned when a signature does not recover to the
// maker's source-chain address.
var ErrBadSignature = errors.New("bad maker signature")

// Verifier checks that an order was authorized by its maker.
type Verifier interface {
	Verify(order *model.Order) error
}

// EVMVerifier validates EIP-191 personal-sign signatures against the maker's
// Ethereum address.
type EVMVerifier struct{}

// NewEVMVerifier returns an EVMVerifier.
func NewEVMVerifier() *EVMVerifier {
	return &EVMVerifier{}
}

// Digest computes the keccak256 commitment a maker signs: the order's
// identity, parties, assets, amounts and hashlock. The secret is deliberately
// not part of the digest.
func Digest(order *model.Order) []byte {
	fields := strings.Join([]string{
		order.ID,
		strings.ToLower(order.MakerSrcAddress),
		order.MakerDstAddress,
		order.SrcToken,
		order.DstToken,
		order.SrcAmount.Dec(),
		order.DstAmount.Dec(),
		strings.ToLower(strings.TrimPrefix(order.Hashlock, "0x")),
	}, "|")
	return crypto.Keccak256([]byte(fields))
}

// Verify recovers the signer from the order signature and compares it with
// the maker's source-chain address.
func (v *EVMVerifier) Verify(order *model.Order) error {
	if !common.IsHexAddress(order.MakerSrcAddress) {
		return fmt.Errorf("maker address %q is not an ethereum address: %w", order.MakerSrcAddress, ErrBadSignature)
	}

	sig, err := hexutil.Decode(ensureHexPrefix(order.Signature))
	if err != nil {
		return fmt.Errorf("decode signature: %w: %w", err, ErrBadSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature length %d: %w", len(sig), ErrBadSignature)
	}

	// personal_sign produces V in {27,28}; SigToPub wants {0,1}
	recovery := make([]byte, crypto.SignatureLength)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}

	digest := Digest(order)
	prefixed := crypto.Keccak256(
		[]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(digest))),
		digest,
	)

	pub, err := crypto.SigToPub(prefixed, recovery)
	if err != nil {
		return fmt.Errorf("recover signer: %w: %w", err, ErrBadSignature)
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(order.MakerSrcAddress) {
		return fmt.Errorf("signer %s does not match maker %s: %w", recovered.Hex(), order.MakerSrcAddress, ErrBadSignature)
	}
	return nil
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
