// Package payout moves owed earner balances on chain. Every attempt writes a
// pending row before any lamport moves, and an uncertain confirmation leaves
// the row pending for reconciliation instead of guessing.
package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/ledger"
	"solana-fraction-market/internal/solana"
	"solana-fraction-market/internal/storage"
	"solana-fraction-market/internal/wallet"
)

// DefaultConfirmTimeout bounds how long a payout waits for confirmation
// before its outcome is treated as unknown.
const DefaultConfirmTimeout = 60 * time.Second

// Publisher is the outbound notification surface.
type Publisher interface {
	Publish(n domain.Notification)
}

// Processor executes payout requests against the treasury wallet.
type Processor struct {
	payouts        storage.PayoutStore
	ledger         *ledger.Service
	chain          solana.Client
	dispatcher     Publisher
	logger         *zap.Logger
	treasuryWallet string
	confirmTimeout time.Duration
	now            func() int64 // unix ms
}

// NewProcessor creates a payout processor. dispatcher may be nil.
func NewProcessor(
	payouts storage.PayoutStore,
	ledgerSvc *ledger.Service,
	chain solana.Client,
	dispatcher Publisher,
	treasuryWallet string,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		payouts:        payouts,
		ledger:         ledgerSvc,
		chain:          chain,
		dispatcher:     dispatcher,
		logger:         logger,
		treasuryWallet: treasuryWallet,
		confirmTimeout: DefaultConfirmTimeout,
		now:            func() int64 { return time.Now().UnixMilli() },
	}
}

// RequestPayout recomputes the owed balance for an earner wallet on a token
// and transfers it from the treasury. The pending row is written before the
// transfer is submitted. A confirmation timeout returns the payout still
// pending; ReconcilePending settles it later. Failed payouts are never
// retried automatically.
func (p *Processor) RequestPayout(ctx context.Context, tokenID, earnerWallet string) (*domain.Payout, error) {
	if tokenID == "" {
		return nil, domain.Validationf("token id is required")
	}
	if err := wallet.Validate(earnerWallet); err != nil {
		return nil, domain.Validationf("invalid earner wallet: %v", err)
	}

	owed, err := p.ledger.Owed(ctx, tokenID, earnerWallet)
	if err != nil {
		return nil, err
	}
	if owed <= 0 {
		return nil, &domain.InsufficientFundsError{Owed: owed, Available: 0}
	}

	// One in-flight payout per (token, wallet) pair. A pending row either
	// has an unresolved transfer or a reconciliation backlog; paying again
	// would risk double-sending the same owed balance.
	pending, err := p.payouts.GetPendingFor(ctx, tokenID, earnerWallet)
	if err != nil {
		return nil, fmt.Errorf("check pending payouts for %s/%s: %w", tokenID, earnerWallet, err)
	}
	if len(pending) > 0 {
		return nil, &domain.StateConflictError{Entity: "payout", ID: pending[0].PayoutID}
	}

	available, err := p.chain.GetBalance(ctx, p.treasuryWallet)
	if err != nil {
		return nil, &domain.TransientInfraError{Op: "getBalance", Err: err}
	}
	if owed > available {
		return nil, &domain.InsufficientFundsError{Owed: owed, Available: available}
	}

	payout := &domain.Payout{
		PayoutID:     uuid.NewString(),
		TokenID:      tokenID,
		EarnerWallet: earnerWallet,
		Amount:       owed,
		Status:       domain.PayoutStatusPending,
		CreatedAt:    p.now(),
	}
	if err := p.payouts.Insert(ctx, payout); err != nil {
		return nil, fmt.Errorf("insert payout for %s/%s: %w", tokenID, earnerWallet, err)
	}

	sig, err := p.chain.SendTransfer(ctx, solana.Transfer{
		From:     p.treasuryWallet,
		To:       earnerWallet,
		Lamports: owed,
	})
	if err != nil {
		reason := classifyFailure(err)
		if markErr := p.payouts.MarkFailed(ctx, payout.PayoutID, reason); markErr != nil {
			p.logger.Error("payout not marked failed",
				zap.String("payout_id", payout.PayoutID), zap.Error(markErr))
		}
		payout.Status = domain.PayoutStatusFailed
		payout.FailReason = reason
		return payout, &domain.TransientInfraError{Op: "sendTransfer", Err: err}
	}

	payout.TxSig = sig
	if err := p.payouts.SetTxSig(ctx, payout.PayoutID, sig); err != nil {
		// The transfer is in flight; losing the signature would strand the
		// row, so this is the one storage write we insist on surfacing.
		p.logger.Error("payout signature not recorded",
			zap.String("payout_id", payout.PayoutID), zap.String("tx_sig", sig), zap.Error(err))
		return payout, fmt.Errorf("record payout signature %s: %w", sig, err)
	}

	ok, err := p.chain.ConfirmTransaction(ctx, sig, p.confirmTimeout)
	switch {
	case errors.Is(err, solana.ErrUnknownOutcome):
		p.logger.Warn("payout confirmation outcome unknown",
			zap.String("payout_id", payout.PayoutID), zap.String("tx_sig", sig))
		return payout, nil
	case err != nil:
		p.logger.Warn("payout confirmation errored, leaving pending",
			zap.String("payout_id", payout.PayoutID), zap.String("tx_sig", sig), zap.Error(err))
		return payout, nil
	case !ok:
		// Confirmed but unsuccessful: the transaction itself failed.
		reason := domain.PayoutFailOnChain
		if markErr := p.payouts.MarkFailed(ctx, payout.PayoutID, reason); markErr != nil {
			p.logger.Error("payout not marked failed",
				zap.String("payout_id", payout.PayoutID), zap.Error(markErr))
		}
		payout.Status = domain.PayoutStatusFailed
		payout.FailReason = reason
		return payout, domain.Validationf("payout transfer %s failed on chain", sig)
	}

	if err := p.finalize(ctx, payout); err != nil {
		return payout, err
	}
	payout.Status = domain.PayoutStatusConfirmed
	return payout, nil
}

// ReconcilePending re-checks every pending payout. Rows with a signature are
// resolved from the chain; rows without one never submitted a transfer and
// are failed. Returns the number of payouts moved to a terminal status.
func (p *Processor) ReconcilePending(ctx context.Context) (int, error) {
	pending, err := p.payouts.GetPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending payouts: %w", err)
	}

	resolved := 0
	for _, payout := range pending {
		if payout.TxSig == "" {
			if err := p.payouts.MarkFailed(ctx, payout.PayoutID, domain.PayoutFailNetwork); err != nil {
				p.logger.Error("unsubmitted payout not marked failed",
					zap.String("payout_id", payout.PayoutID), zap.Error(err))
				continue
			}
			resolved++
			continue
		}

		tx, err := p.chain.GetTransaction(ctx, payout.TxSig)
		switch {
		case errors.Is(err, solana.ErrTxNotFound):
			// The transfer never landed. Blockhash expiry makes this final.
			if err := p.payouts.MarkFailed(ctx, payout.PayoutID, domain.PayoutFailNetwork); err != nil {
				p.logger.Error("lost payout not marked failed",
					zap.String("payout_id", payout.PayoutID), zap.Error(err))
				continue
			}
			resolved++
		case err != nil:
			p.logger.Warn("payout reconciliation lookup failed",
				zap.String("payout_id", payout.PayoutID), zap.String("tx_sig", payout.TxSig), zap.Error(err))
		case tx.Succeeded():
			if err := p.finalize(ctx, payout); err != nil {
				p.logger.Error("confirmed payout not finalized",
					zap.String("payout_id", payout.PayoutID), zap.Error(err))
				continue
			}
			resolved++
		default:
			if err := p.payouts.MarkFailed(ctx, payout.PayoutID, domain.PayoutFailOnChain); err != nil {
				p.logger.Error("failed payout not marked failed",
					zap.String("payout_id", payout.PayoutID), zap.Error(err))
				continue
			}
			resolved++
		}
	}

	if resolved > 0 {
		p.logger.Info("reconciled pending payouts", zap.Int("resolved", resolved))
	}
	return resolved, nil
}

// finalize records the ledger debit and confirms the payout row. The ledger
// append is keyed on the transfer signature so that a reconciliation rerun
// after a partial finalize never debits twice.
func (p *Processor) finalize(ctx context.Context, payout *domain.Payout) error {
	entries, err := p.ledger.History(ctx, payout.TokenID)
	if err != nil {
		return fmt.Errorf("load ledger for %s: %w", payout.TokenID, err)
	}
	recorded := false
	for _, e := range entries {
		if e.EntryType == domain.LedgerEntryPayoutToEarner && e.ExternalTxSig == payout.TxSig {
			recorded = true
			break
		}
	}

	if !recorded {
		entry := &domain.FeeLedgerEntry{
			EntryID:           uuid.NewString(),
			TokenID:           payout.TokenID,
			EntryType:         domain.LedgerEntryPayoutToEarner,
			BeneficiaryKind:   domain.BeneficiaryEarner,
			BeneficiaryWallet: payout.EarnerWallet,
			Amount:            payout.Amount,
			ExternalTxSig:     payout.TxSig,
			CreatedAt:         p.now(),
		}
		if err := p.ledger.Append(ctx, entry); err != nil {
			return fmt.Errorf("append payout ledger entry: %w", err)
		}
	}

	if err := p.payouts.MarkConfirmed(ctx, payout.PayoutID); err != nil && !errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("confirm payout %s: %w", payout.PayoutID, err)
	}

	if p.dispatcher != nil {
		p.dispatcher.Publish(domain.Notification{
			Type:        domain.NotifyPayoutSent,
			RecipientID: payout.EarnerWallet,
			TokenID:     payout.TokenID,
			EntityID:    payout.PayoutID,
			Amount:      payout.Amount,
		})
	}

	p.logger.Info("payout confirmed",
		zap.String("payout_id", payout.PayoutID),
		zap.String("token_id", payout.TokenID),
		zap.String("wallet", payout.EarnerWallet),
		zap.Int64("amount", payout.Amount),
		zap.String("tx_sig", payout.TxSig))
	return nil
}

func classifyFailure(err error) string {
	var insufficient *domain.InsufficientFundsError
	switch {
	case errors.Is(err, solana.ErrRateLimited):
		return domain.PayoutFailRateLimited
	case errors.As(err, &insufficient):
		return domain.PayoutFailInsufficientBalance
	default:
		return domain.PayoutFailNetwork
	}
}
