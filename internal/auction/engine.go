// Package auction implements the bid acceptance state machine and the expiry
// sweep that converts finished auctions into settlements.
package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/settlement"
	"solana-fraction-market/internal/storage"
	"solana-fraction-market/internal/wallet"
)

// MinIncrement is the amount a new bid must exceed the current bid by.
const MinIncrement int64 = 1_000_000 // 0.001 SOL

// Settler settles a won auction into a sale.
type Settler interface {
	Settle(ctx context.Context, req settlement.Request) (*domain.Sale, error)
}

// ProofVerifier checks an on-chain payment proof.
type ProofVerifier interface {
	VerifyPayment(ctx context.Context, signature, payerWallet string, amount int64) error
}

// Engine drives the auction lifecycle.
type Engine struct {
	auctions   storage.AuctionStore
	bids       storage.BidStore
	refunds    storage.RefundStore
	settler    Settler
	verifier   ProofVerifier
	dispatcher Publisher
	logger     *zap.Logger
	now        func() int64 // unix ms
}

// Publisher is the outbound notification surface.
type Publisher interface {
	Publish(n domain.Notification)
}

// NewEngine creates an auction engine. verifier and dispatcher may be nil;
// a nil verifier skips proof checks entirely.
func NewEngine(
	auctions storage.AuctionStore,
	bids storage.BidStore,
	refunds storage.RefundStore,
	settler Settler,
	verifier ProofVerifier,
	dispatcher Publisher,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		auctions:   auctions,
		bids:       bids,
		refunds:    refunds,
		settler:    settler,
		verifier:   verifier,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// PlaceBid validates and accepts a bid. Acceptance is a conditional update
// keyed on the previous (current_bid, current_bidder) pair; a concurrent
// bidder who committed first turns this call into a StateConflictError with
// no side effects.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID string, amount int64, walletAddr, proofSig string) (*domain.Auction, *domain.Bid, error) {
	if err := wallet.Validate(walletAddr); err != nil {
		return nil, nil, domain.Validationf("invalid wallet address: %v", err)
	}
	if amount <= 0 {
		return nil, nil, domain.Validationf("bid amount must be positive, got %d", amount)
	}

	a, err := e.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load auction %s: %w", auctionID, err)
	}

	nowMS := e.now()
	if a.IsTerminal() || nowMS >= a.AuctionEnd {
		return nil, nil, domain.Validationf("auction %s is not accepting bids", auctionID)
	}
	if bidderID == a.SellerID {
		return nil, nil, domain.Validationf("seller cannot bid on their own auction")
	}

	if a.CurrentBidder == "" {
		if amount < a.StartingBid {
			return nil, nil, domain.Validationf("bid must be at least the starting bid of %s", wallet.SOL(a.StartingBid))
		}
	} else if amount <= a.CurrentBid+MinIncrement {
		return nil, nil, domain.Validationf("bid must exceed %s", wallet.SOL(a.CurrentBid+MinIncrement))
	}
	if a.ReservePrice != nil && amount < *a.ReservePrice {
		return nil, nil, domain.Validationf("bid is below the reserve price of %s", wallet.SOL(*a.ReservePrice))
	}

	if proofSig != "" && e.verifier != nil {
		if err := e.verifier.VerifyPayment(ctx, proofSig, walletAddr, amount); err != nil {
			return nil, nil, err
		}
	}

	if err := e.auctions.UpdateBid(ctx, auctionID, a.CurrentBid, a.CurrentBidder, amount, bidderID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, nil, &domain.StateConflictError{Entity: "auction", ID: auctionID}
		}
		return nil, nil, fmt.Errorf("update current bid on %s: %w", auctionID, err)
	}

	// The previous bid must leave active status before the new row can be
	// inserted; one active bid per auction is enforced by the store.
	prev := e.markPreviousOutbid(ctx, a)

	bid := &domain.Bid{
		BidID:     uuid.NewString(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Wallet:    walletAddr,
		Amount:    amount,
		Status:    domain.BidStatusActive,
		ProofSig:  proofSig,
		CreatedAt: nowMS,
	}
	if err := e.bids.Insert(ctx, bid); err != nil {
		e.revertAcceptance(ctx, a, prev, amount, bidderID)
		return nil, nil, fmt.Errorf("record accepted bid on %s: %w", auctionID, err)
	}

	// Refund and outbid notification complete at-least-once from here;
	// AuditClose repairs any gap.
	if prev != nil {
		e.queueRefund(ctx, auctionID, prev)
		e.publish(domain.Notification{
			Type:        domain.NotifyOutbid,
			RecipientID: prev.BidderID,
			TokenID:     a.TokenID,
			EntityID:    auctionID,
			Amount:      prev.Amount,
		})
	}

	e.publish(domain.Notification{
		Type:        domain.NotifyNewBid,
		RecipientID: a.SellerID,
		TokenID:     a.TokenID,
		EntityID:    auctionID,
		Amount:      amount,
	})

	e.logger.Info("bid accepted",
		zap.String("auction_id", auctionID),
		zap.String("bidder", bidderID),
		zap.Int64("amount", amount),
		zap.Int64("previous", a.CurrentBid))

	updated, err := e.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return nil, bid, fmt.Errorf("reload auction %s: %w", auctionID, err)
	}
	return updated, bid, nil
}

// markPreviousOutbid moves the previously active bid to outbid and returns
// it, or nil when the auction had none.
func (e *Engine) markPreviousOutbid(ctx context.Context, a *domain.Auction) *domain.Bid {
	prev, err := e.bids.GetActiveByAuction(ctx, a.AuctionID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Error("previous active bid lookup failed",
				zap.String("auction_id", a.AuctionID), zap.Error(err))
		}
		return nil
	}

	if err := e.bids.UpdateStatus(ctx, prev.BidID, domain.BidStatusActive, domain.BidStatusOutbid); err != nil {
		e.logger.Error("outbid transition failed",
			zap.String("bid_id", prev.BidID), zap.Error(err))
	}
	return prev
}

// revertAcceptance undoes a bid acceptance whose bid row could not be
// written: the current-bid pair rolls back and the displaced bid, if any,
// returns to active.
func (e *Engine) revertAcceptance(ctx context.Context, a *domain.Auction, prev *domain.Bid, amount int64, bidderID string) {
	if err := e.auctions.UpdateBid(ctx, a.AuctionID, amount, bidderID, a.CurrentBid, a.CurrentBidder); err != nil {
		e.logger.Error("bid acceptance not reverted",
			zap.String("auction_id", a.AuctionID),
			zap.String("bidder", bidderID),
			zap.Error(err))
		return
	}
	if prev != nil {
		if err := e.bids.UpdateStatus(ctx, prev.BidID, domain.BidStatusOutbid, domain.BidStatusActive); err != nil {
			e.logger.Error("displaced bid not restored",
				zap.String("bid_id", prev.BidID), zap.Error(err))
		}
	}
}

// queueRefund inserts a queued refund for a displaced bid unless one exists.
func (e *Engine) queueRefund(ctx context.Context, auctionID string, bid *domain.Bid) {
	if _, err := e.refunds.GetByBid(ctx, bid.BidID); err == nil {
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("refund lookup failed", zap.String("bid_id", bid.BidID), zap.Error(err))
		return
	}

	refund := &domain.Refund{
		RefundID:  uuid.NewString(),
		AuctionID: auctionID,
		BidID:     bid.BidID,
		BidderID:  bid.BidderID,
		Wallet:    bid.Wallet,
		Amount:    bid.Amount,
		Status:    domain.RefundStatusQueued,
		CreatedAt: e.now(),
	}
	if err := e.refunds.Insert(ctx, refund); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		e.logger.Error("refund not queued",
			zap.String("bid_id", bid.BidID),
			zap.Int64("amount", bid.Amount),
			zap.Error(err))
	}
}

func (e *Engine) publish(n domain.Notification) {
	if e.dispatcher != nil {
		e.dispatcher.Publish(n)
	}
}
