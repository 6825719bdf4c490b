// Package secret is the only home of plaintext swap secrets. Nothing outside
// this package stores a pre-image, and the only read path is Reveal.
package secret

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned when no secret is stored for an order.
	ErrNotFound = errors.New("secret not found")
	// ErrAlreadyStored is returned when a secret for the order already exists.
	ErrAlreadyStored = errors.New("secret already stored")
)

// Vault holds maker-supplied pre-images keyed by order id.
type Vault struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewVault returns an empty vault.
func NewVault() *Vault {
	return &Vault{secrets: make(map[string]string)}
}

// Store keeps the secret for an order. Secrets are immutable once stored.
func (v *Vault) Store(orderID, plaintext string) error {
	if orderID == "" {
		return errors.New("order id is required")
	}
	if plaintext == "" {
		return errors.New("secret is required")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.secrets[orderID]; ok {
		return fmt.Errorf("order %s: %w", orderID, ErrAlreadyStored)
	}
	v.secrets[orderID] = plaintext
	return nil
}

// Reveal hands out the plaintext secret. Callers other than the reveal
// coordinator have no business invoking this.
func (v *Vault) Reveal(orderID string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.secrets[orderID]
	if !ok {
		return "", fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return s, nil
}

// Wipe drops the secret for an order that reached a terminal state.
// Wiping an unknown order is a no-op.
func (v *Vault) Wipe(orderID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.secrets, orderID)
}

// Hashlock computes the sha256 hashlock of a secret. The secret may be hex
// (with or without 0x prefix), in which case the raw bytes are hashed, or an
// arbitrary string hashed verbatim.
func Hashlock(plaintext string) string {
	raw := []byte(plaintext)
	if decoded, err := hex.DecodeString(strings.TrimPrefix(plaintext, "0x")); err == nil {
		raw = decoded
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Matches reports whether sha256(plaintext) equals the declared hashlock.
// Comparison is constant-time; hashlock hex is case-insensitive and may carry
// a 0x prefix.
func Matches(plaintext, hashlock string) bool {
	want := strings.ToLower(strings.TrimPrefix(hashlock, "0x"))
	got := Hashlock(plaintext)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
