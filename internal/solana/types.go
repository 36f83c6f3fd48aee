// Package solana provides the minimal chain contract the settlement engine
// needs: transaction lookup, balance queries, value transfers, and
// confirmation. It is not a general-purpose RPC client.
package solana

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by client implementations.
var (
	// ErrTxNotFound is returned when a signature does not resolve to a
	// transaction on the cluster.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrRateLimited is returned when the RPC endpoint throttled the caller
	// past the retry budget.
	ErrRateLimited = errors.New("rpc rate limited")

	// ErrUnknownOutcome is returned when a confirmation window elapsed
	// without a definitive result. The transfer may or may not have landed;
	// callers must reconcile, not retry.
	ErrUnknownOutcome = errors.New("confirmation outcome unknown")
)

// Client is the chain surface consumed by the engines.
type Client interface {
	// GetTransaction retrieves a confirmed transaction with its balance
	// movements. Returns ErrTxNotFound if the signature is unknown.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetBalance retrieves the lamport balance of an address.
	GetBalance(ctx context.Context, address string) (int64, error)

	// SendTransfer signs and submits a value transfer, returning its
	// signature. Submission is not confirmation.
	SendTransfer(ctx context.Context, t Transfer) (string, error)

	// ConfirmTransaction waits up to timeout for the signature to reach
	// confirmed commitment. Returns (true, nil) on success, (false, nil)
	// when the cluster reports the transaction failed, and
	// ErrUnknownOutcome when the window elapses without an answer.
	ConfirmTransaction(ctx context.Context, signature string, timeout time.Duration) (bool, error)
}

// Transfer describes a lamport movement between two system accounts.
type Transfer struct {
	From     string
	To       string
	Lamports int64
}

// Signer produces a signed, base64-encoded transfer transaction. Key custody
// lives outside this engine.
type Signer interface {
	SignTransfer(ctx context.Context, t Transfer) (string, error)
}

// Transaction is a confirmed transaction with the fields the engine needs.
type Transaction struct {
	Signature    string
	Slot         int64
	BlockTime    int64
	Err          interface{} // non-nil when the transaction failed on chain
	AccountKeys  []string
	PreBalances  []int64
	PostBalances []int64
}

// Succeeded reports whether the transaction executed without error.
func (t *Transaction) Succeeded() bool {
	return t.Err == nil
}

// BalanceDelta returns post-pre lamports for the given account, and whether
// the account appears in the transaction at all.
func (t *Transaction) BalanceDelta(address string) (int64, bool) {
	for i, key := range t.AccountKeys {
		if key != address {
			continue
		}
		if i >= len(t.PreBalances) || i >= len(t.PostBalances) {
			return 0, false
		}
		return t.PostBalances[i] - t.PreBalances[i], true
	}
	return 0, false
}
