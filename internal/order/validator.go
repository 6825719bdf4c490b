// Package order validates maker submissions and projects accepted orders
// into their resolver-visible form.
package order

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lzmrd/EthXlmAtomic/internal/clock"
	"github.com/lzmrd/EthXlmAtomic/internal/model"
	"github.com/lzmrd/EthXlmAtomic/internal/secret"
	"github.com/lzmrd/EthXlmAtomic/internal/signer"
)

// Validation failures. Each maps to a 400 on the submission endpoint.
var (
	ErrMissingField     = errors.New("missing required field")
	ErrHashlockMismatch = errors.New("hashlock does not match secret")
	ErrOrderExpired     = errors.New("order deadline has passed")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrBadSignature     = signer.ErrBadSignature
)

// IsValidationError reports whether err belongs to the submission-rejection
// taxonomy, as opposed to an internal failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrHashlockMismatch) ||
		errors.Is(err, ErrOrderExpired) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrBadSignature)
}

// Validator runs the submission checks in a fixed order, short-circuiting on
// the first failure. It has no side effects.
type Validator struct {
	verifier signer.Verifier
	clk      clock.Clock
	logger   *zap.Logger
}

// NewValidator builds a Validator.
func NewValidator(verifier signer.Verifier, clk clock.Clock, logger *zap.Logger) *Validator {
	return &Validator{
		verifier: verifier,
		clk:      clk,
		logger:   logger.Named("validator"),
	}
}

// Validate checks structural integrity, hashlock consistency, deadline,
// amount sanity and maker signature, in that order.
func (v *Validator) Validate(o *model.Order) error {
	if err := requireFields(o); err != nil {
		return err
	}

	if !secret.Matches(o.Secret, o.Hashlock) {
		return fmt.Errorf("order %s: %w", o.ID, ErrHashlockMismatch)
	}

	if !o.Deadline.IsZero() && v.clk.Now().After(o.Deadline) {
		return fmt.Errorf("order %s deadline %s: %w", o.ID, o.Deadline, ErrOrderExpired)
	}

	if o.SrcAmount.IsZero() || o.DstAmount.IsZero() {
		return fmt.Errorf("order %s amounts must be positive: %w", o.ID, ErrInvalidAmount)
	}
	if o.StartPrice.IsZero() || o.FloorPrice.IsZero() {
		return fmt.Errorf("order %s prices must be positive: %w", o.ID, ErrInvalidAmount)
	}
	if o.FloorPrice.Cmp(o.StartPrice) > 0 {
		return fmt.Errorf("order %s floor price above start price: %w", o.ID, ErrInvalidAmount)
	}

	if err := v.verifier.Verify(o); err != nil {
		v.logger.Debug("signature verification failed", zap.String("orderId", o.ID), zap.Error(err))
		return err
	}
	return nil
}

func requireFields(o *model.Order) error {
	required := []struct {
		name  string
		value string
	}{
		{"orderId", o.ID},
		{"makerSrcAddress", o.MakerSrcAddress},
		{"makerDstAddress", o.MakerDstAddress},
		{"srcToken", o.SrcToken},
		{"dstToken", o.DstToken},
		{"hashlock", o.Hashlock},
		{"secret", o.Secret},
		{"signature", o.Signature},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%s: %w", f.name, ErrMissingField)
		}
	}
	return nil
}
