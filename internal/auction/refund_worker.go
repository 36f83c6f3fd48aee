package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/solana"
	"solana-fraction-market/internal/storage"
)

// DefaultRefundConfirmTimeout bounds the wait for a refund transfer.
const DefaultRefundConfirmTimeout = 60 * time.Second

// RefundWorker drains queued refunds by submitting escrow transfers back to
// displaced bidders. Delivery is at-least-once: a refund whose confirmation
// outcome is unknown stays submitted for a later reconciliation run.
type RefundWorker struct {
	refunds storage.RefundStore
	bids    storage.BidStore
	chain   solana.Client
	logger  *zap.Logger

	escrowWallet   string
	confirmTimeout time.Duration
}

// NewRefundWorker creates a refund worker paying out of escrowWallet.
func NewRefundWorker(refunds storage.RefundStore, bids storage.BidStore, chain solana.Client, escrowWallet string, logger *zap.Logger) *RefundWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefundWorker{
		refunds:        refunds,
		bids:           bids,
		chain:          chain,
		logger:         logger,
		escrowWallet:   escrowWallet,
		confirmTimeout: DefaultRefundConfirmTimeout,
	}
}

// RefundStats summarizes one drain pass.
type RefundStats struct {
	Submitted int
	Confirmed int
	Failed    int
	Unknown   int
}

// ProcessQueued submits every queued refund and waits for confirmation.
func (w *RefundWorker) ProcessQueued(ctx context.Context) (RefundStats, error) {
	var stats RefundStats

	queued, err := w.refunds.GetQueued(ctx)
	if err != nil {
		return stats, fmt.Errorf("list queued refunds: %w", err)
	}

	for _, r := range queued {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		w.process(ctx, r, &stats)
	}
	return stats, nil
}

func (w *RefundWorker) process(ctx context.Context, r *domain.Refund, stats *RefundStats) {
	sig, err := w.chain.SendTransfer(ctx, solana.Transfer{
		From:     w.escrowWallet,
		To:       r.Wallet,
		Lamports: r.Amount,
	})
	if err != nil {
		stats.Failed++
		w.logger.Error("refund transfer submission failed",
			zap.String("refund_id", r.RefundID),
			zap.String("bidder", r.BidderID),
			zap.Int64("amount", r.Amount),
			zap.Error(err))
		if markErr := w.refunds.MarkFailed(ctx, r.RefundID); markErr != nil {
			w.logger.Error("refund fail mark lost", zap.String("refund_id", r.RefundID), zap.Error(markErr))
		}
		return
	}

	if err := w.refunds.MarkSubmitted(ctx, r.RefundID, sig); err != nil {
		w.logger.Error("refund submit mark lost",
			zap.String("refund_id", r.RefundID),
			zap.String("tx_sig", sig),
			zap.Error(err))
		return
	}
	stats.Submitted++

	ok, err := w.chain.ConfirmTransaction(ctx, sig, w.confirmTimeout)
	switch {
	case errors.Is(err, solana.ErrUnknownOutcome):
		// Leave it submitted; the transfer may still land.
		stats.Unknown++
		w.logger.Warn("refund confirmation outcome unknown",
			zap.String("refund_id", r.RefundID),
			zap.String("tx_sig", sig))
		return
	case err != nil:
		stats.Unknown++
		w.logger.Error("refund confirmation errored",
			zap.String("refund_id", r.RefundID),
			zap.String("tx_sig", sig),
			zap.Error(err))
		return
	case !ok:
		stats.Failed++
		if markErr := w.refunds.MarkFailed(ctx, r.RefundID); markErr != nil {
			w.logger.Error("refund fail mark lost", zap.String("refund_id", r.RefundID), zap.Error(markErr))
		}
		return
	}

	if err := w.refunds.MarkConfirmed(ctx, r.RefundID); err != nil {
		w.logger.Error("refund confirm mark lost", zap.String("refund_id", r.RefundID), zap.Error(err))
		return
	}
	stats.Confirmed++

	// The displaced bid is fully unwound once its money went back.
	if err := w.bids.UpdateStatus(ctx, r.BidID, domain.BidStatusOutbid, domain.BidStatusRefunded); errors.Is(err, storage.ErrConflict) {
		// Ended bids (auction closed without sale) unwind the same way.
		if err := w.bids.UpdateStatus(ctx, r.BidID, domain.BidStatusEnded, domain.BidStatusRefunded); err != nil && !errors.Is(err, storage.ErrConflict) {
			w.logger.Error("refunded bid transition failed",
				zap.String("bid_id", r.BidID), zap.Error(err))
		}
	} else if err != nil {
		w.logger.Error("refunded bid transition failed",
			zap.String("bid_id", r.BidID), zap.Error(err))
	}

	w.logger.Info("refund confirmed",
		zap.String("refund_id", r.RefundID),
		zap.String("bidder", r.BidderID),
		zap.Int64("amount", r.Amount),
		zap.String("tx_sig", sig))
}
