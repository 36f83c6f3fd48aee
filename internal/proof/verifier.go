// Package proof verifies that a claimed on-chain payment actually happened
// before any bid or offer is accepted.
package proof

import (
	"context"
	"errors"
	"fmt"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/solana"
)

// toleranceBps allows the payer's observed spend to exceed the claimed
// amount by up to 1%, covering the network fee.
const toleranceBps = 100

// Verifier checks payment proofs against confirmed transactions.
type Verifier struct {
	chain solana.Client
}

// NewVerifier creates a proof verifier backed by the given chain client.
func NewVerifier(chain solana.Client) *Verifier {
	return &Verifier{chain: chain}
}

// VerifyPayment confirms that the transaction behind signature exists,
// succeeded, and debited payerWallet by the claimed amount within the fee
// tolerance. A proof that cannot be fetched due to RPC trouble surfaces as
// a TransientInfraError so the caller can retry; every other failure is an
// ExternalVerificationError and the claim must be rejected.
func (v *Verifier) VerifyPayment(ctx context.Context, signature, payerWallet string, amount int64) error {
	if signature == "" {
		return domain.Validationf("payment proof signature is required")
	}
	if amount <= 0 {
		return domain.Validationf("claimed amount must be positive, got %d", amount)
	}

	tx, err := v.chain.GetTransaction(ctx, signature)
	if err != nil {
		if errors.Is(err, solana.ErrTxNotFound) {
			return &domain.ExternalVerificationError{
				Reason: fmt.Sprintf("transaction %s not found on chain", signature),
			}
		}
		return &domain.TransientInfraError{Op: "getTransaction", Err: err}
	}

	if !tx.Succeeded() {
		return &domain.ExternalVerificationError{
			Reason: fmt.Sprintf("transaction %s failed on chain", signature),
		}
	}

	delta, ok := tx.BalanceDelta(payerWallet)
	if !ok {
		return &domain.ExternalVerificationError{
			Reason: fmt.Sprintf("payer %s does not appear in transaction %s", payerWallet, signature),
		}
	}

	spent := -delta
	if spent <= 0 {
		return &domain.ExternalVerificationError{
			Reason: fmt.Sprintf("payer %s was not debited in transaction %s", payerWallet, signature),
		}
	}

	tolerance := amount * toleranceBps / domain.TotalBps
	diff := spent - amount
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return &domain.ExternalVerificationError{
			Reason: fmt.Sprintf("payer spent %d lamports, claimed %d (tolerance %d)", spent, amount, tolerance),
		}
	}

	return nil
}
