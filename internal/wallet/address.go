// Package wallet validates Solana wallet addresses and holds lamport units.
package wallet

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Lamport units.
const (
	LamportsPerSOL = int64(1_000_000_000)
)

// PubkeyLen is the byte length of a Solana public key.
const PubkeyLen = 32

// Validate checks that an address is well-formed: base58 with a 32-byte
// payload. It does not require the key to be on-curve, since program-derived
// addresses are deliberately off-curve.
func Validate(address string) error {
	if address == "" {
		return fmt.Errorf("empty address")
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != PubkeyLen {
		return fmt.Errorf("address payload is %d bytes, want %d", len(raw), PubkeyLen)
	}
	return nil
}

// IsOnCurve reports whether the address decodes to a valid ed25519 point,
// i.e. whether a private key can exist for it. Returns false for malformed
// addresses.
func IsOnCurve(address string) bool {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != PubkeyLen {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// SOL renders lamports as a SOL string for log and error messages.
func SOL(lamports int64) string {
	whole := lamports / LamportsPerSOL
	frac := lamports % LamportsPerSOL
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%09d", whole, frac)
}
