// Package stub provides an in-memory chain client for tests.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"solana-fraction-market/internal/solana"
)

// Client is a deterministic in-memory solana.Client. Transactions are
// registered by hand; transfers confirm instantly unless a failure is
// scripted.
type Client struct {
	mu sync.Mutex

	txs      map[string]*solana.Transaction
	balances map[string]int64

	// sendErr, when set, fails the next SendTransfer and resets.
	sendErr error
	// confirmResult scripts ConfirmTransaction per signature.
	confirmResult map[string]confirmOutcome

	sent    []solana.Transfer
	nextSeq int
}

type confirmOutcome struct {
	ok  bool
	err error
}

// New creates an empty stub client.
func New() *Client {
	return &Client{
		txs:           make(map[string]*solana.Transaction),
		balances:      make(map[string]int64),
		confirmResult: make(map[string]confirmOutcome),
	}
}

// AddTransaction registers a transaction for GetTransaction lookups.
func (c *Client) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[tx.Signature] = tx
}

// AddTransferTx registers a successful transfer transaction where the payer
// spent exactly amount lamports plus fee.
func (c *Client) AddTransferTx(signature, from, to string, amount, fee int64) {
	c.AddTransaction(&solana.Transaction{
		Signature:    signature,
		Slot:         1,
		BlockTime:    time.Now().Unix(),
		AccountKeys:  []string{from, to},
		PreBalances:  []int64{amount + fee + 1_000_000, 0},
		PostBalances: []int64{1_000_000, amount},
	})
}

// SetBalance sets the lamport balance returned for an address.
func (c *Client) SetBalance(address string, lamports int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[address] = lamports
}

// FailNextSend makes the next SendTransfer return err.
func (c *Client) FailNextSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// SetConfirmResult scripts the outcome of ConfirmTransaction for a signature.
func (c *Client) SetConfirmResult(signature string, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmResult[signature] = confirmOutcome{ok: ok, err: err}
}

// Sent returns all transfers submitted so far.
func (c *Client) Sent() []solana.Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]solana.Transfer, len(c.sent))
	copy(out, c.sent)
	return out
}

// GetTransaction implements solana.Client.
func (c *Client) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txs[signature]
	if !ok {
		return nil, solana.ErrTxNotFound
	}
	return tx, nil
}

// GetBalance implements solana.Client.
func (c *Client) GetBalance(_ context.Context, address string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[address], nil
}

// SendTransfer implements solana.Client. Signatures are sequential
// ("stub-sig-1", "stub-sig-2", ...) and the resulting transaction is
// registered as successful.
func (c *Client) SendTransfer(_ context.Context, t solana.Transfer) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		err := c.sendErr
		c.sendErr = nil
		return "", err
	}

	c.nextSeq++
	sig := fmt.Sprintf("stub-sig-%d", c.nextSeq)
	c.sent = append(c.sent, t)
	c.txs[sig] = &solana.Transaction{
		Signature:    sig,
		Slot:         int64(c.nextSeq),
		BlockTime:    time.Now().Unix(),
		AccountKeys:  []string{t.From, t.To},
		PreBalances:  []int64{t.Lamports, 0},
		PostBalances: []int64{0, t.Lamports},
	}
	return sig, nil
}

// ConfirmTransaction implements solana.Client. Unscripted signatures confirm
// when a matching transaction exists and report ErrTxNotFound otherwise.
func (c *Client) ConfirmTransaction(_ context.Context, signature string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if outcome, ok := c.confirmResult[signature]; ok {
		return outcome.ok, outcome.err
	}
	if _, ok := c.txs[signature]; ok {
		return true, nil
	}
	return false, solana.ErrTxNotFound
}
