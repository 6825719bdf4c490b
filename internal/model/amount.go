package model

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Amount is an unsigned 256-bit token quantity in the asset's smallest unit.
// It marshals as a decimal string so chain-sized values survive JSON clients.
type Amount struct {
	u uint256.Int
}

// NewAmount builds an Amount from a uint64.
func NewAmount(v uint64) Amount {
	var a Amount
	a.u.SetUint64(v)
	return a
}

// AmountFromDecimal parses a base-10 amount string.
func AmountFromDecimal(s string) (Amount, error) {
	var a Amount
	if s == "" {
		return a, errors.New("empty amount")
	}
	if err := a.u.SetFromDecimal(s); err != nil {
		return a, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return a, nil
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.u.IsZero()
}

// Cmp compares a and b, returning -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	return a.u.Cmp(&b.u)
}

// Sub returns a-b, clamped to zero on underflow.
func (a Amount) Sub(b Amount) Amount {
	var out Amount
	if a.u.Lt(&b.u) {
		return out
	}
	out.u.Sub(&a.u, &b.u)
	return out
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.u.Add(&a.u, &b.u)
	return out
}

// MulDiv returns a*num/den, the building block for linear price interpolation.
// A zero denominator returns a unchanged.
func (a Amount) MulDiv(num, den uint64) Amount {
	var out Amount
	if den == 0 {
		return a
	}
	var n, d uint256.Int
	n.SetUint64(num)
	d.SetUint64(den)
	out.u.Mul(&a.u, &n)
	out.u.Div(&out.u, &d)
	return out
}

// Dec renders the amount as a base-10 string.
func (a Amount) Dec() string {
	return a.u.Dec()
}

// String implements fmt.Stringer.
func (a Amount) String() string {
	return a.Dec()
}

// MarshalJSON renders the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.u.Dec() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := AmountFromDecimal(s)
	if err != nil {
		return err
	}
	a.u = parsed.u
	return nil
}
