package auction

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/settlement"
	"solana-fraction-market/internal/storage"
)

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	Processed int
	Sold      int
	Ended     int
	Failed    int
}

// SweepExpired closes every active auction past its end time. The
// active-to-terminal transition is the only concurrency gate: a racing sweep
// observes the conflict and skips the auction. When dryRun is set the sweep
// only counts what it would do.
func (e *Engine) SweepExpired(ctx context.Context, dryRun bool) (SweepResult, error) {
	var res SweepResult

	expired, err := e.auctions.GetExpiredActive(ctx, e.now())
	if err != nil {
		return res, fmt.Errorf("list expired auctions: %w", err)
	}

	for _, a := range expired {
		res.Processed++

		target := terminalStatus(a)
		if dryRun {
			if target == domain.AuctionStatusSold {
				res.Sold++
			} else {
				res.Ended++
			}
			continue
		}

		switch target {
		case domain.AuctionStatusSold:
			if e.closeAsSold(ctx, a) {
				res.Sold++
			} else {
				res.Failed++
			}
		default:
			if e.closeWithoutSale(ctx, a, target) {
				res.Ended++
			} else {
				res.Failed++
			}
		}
	}

	if !dryRun && res.Processed > 0 {
		e.logger.Info("expiry sweep finished",
			zap.Int("processed", res.Processed),
			zap.Int("sold", res.Sold),
			zap.Int("ended", res.Ended),
			zap.Int("failed", res.Failed))
	}
	return res, nil
}

func terminalStatus(a *domain.Auction) string {
	switch {
	case a.ReserveMet():
		return domain.AuctionStatusSold
	case a.CurrentBidder != "":
		return domain.AuctionStatusEndedNoRes
	default:
		return domain.AuctionStatusEnded
	}
}

// closeAsSold transitions the auction to sold and settles it. A settlement
// failure compensates by reverting the auction to active so a later sweep can
// retry; the failure is reported, never retried here.
func (e *Engine) closeAsSold(ctx context.Context, a *domain.Auction) bool {
	err := e.auctions.TransitionStatus(ctx, a.AuctionID,
		domain.AuctionStatusActive, domain.AuctionStatusSold, a.CurrentBidder, a.CurrentBid)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Another sweep already closed it.
			return true
		}
		e.logger.Error("sold transition failed",
			zap.String("auction_id", a.AuctionID), zap.Error(err))
		return false
	}

	_, settleErr := e.settler.Settle(ctx, settlement.Request{
		TokenID:  a.TokenID,
		SellerID: a.SellerID,
		BuyerID:  a.CurrentBidder,
		Price:    a.CurrentBid,
		Source:   domain.SaleSourceAuction,
		SourceID: a.AuctionID,
	})
	if settleErr != nil {
		e.logger.Error("settlement failed, reverting auction to active",
			zap.String("auction_id", a.AuctionID),
			zap.String("winner", a.CurrentBidder),
			zap.Error(settleErr))
		if revertErr := e.auctions.TransitionStatus(ctx, a.AuctionID,
			domain.AuctionStatusSold, domain.AuctionStatusActive, "", 0); revertErr != nil {
			e.logger.Error("compensating revert failed, auction stuck sold without sale",
				zap.String("auction_id", a.AuctionID), zap.Error(revertErr))
		}
		return false
	}

	if winning, err := e.bids.GetActiveByAuction(ctx, a.AuctionID); err == nil {
		if err := e.bids.UpdateStatus(ctx, winning.BidID, domain.BidStatusActive, domain.BidStatusWon); err != nil {
			e.logger.Error("winning bid transition failed",
				zap.String("bid_id", winning.BidID), zap.Error(err))
		}
	}

	e.publish(domain.Notification{
		Type:        domain.NotifyAuctionWon,
		RecipientID: a.CurrentBidder,
		TokenID:     a.TokenID,
		EntityID:    a.AuctionID,
		Amount:      a.CurrentBid,
	})
	return true
}

// closeWithoutSale transitions the auction to a non-sold terminal status and
// releases the standing bid, if any, back to its bidder.
func (e *Engine) closeWithoutSale(ctx context.Context, a *domain.Auction, target string) bool {
	err := e.auctions.TransitionStatus(ctx, a.AuctionID,
		domain.AuctionStatusActive, target, "", 0)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return true
		}
		e.logger.Error("terminal transition failed",
			zap.String("auction_id", a.AuctionID),
			zap.String("target", target),
			zap.Error(err))
		return false
	}

	if standing, err := e.bids.GetActiveByAuction(ctx, a.AuctionID); err == nil {
		if err := e.bids.UpdateStatus(ctx, standing.BidID, domain.BidStatusActive, domain.BidStatusEnded); err != nil {
			e.logger.Error("standing bid transition failed",
				zap.String("bid_id", standing.BidID), zap.Error(err))
		}
		e.queueRefund(ctx, a.AuctionID, standing)
	}

	e.publish(domain.Notification{
		Type:        domain.NotifyAuctionEnded,
		RecipientID: a.SellerID,
		TokenID:     a.TokenID,
		EntityID:    a.AuctionID,
	})
	return true
}

// AuditClose repairs the asynchronous tail of a closed auction: every
// displaced bid must be out of active status and every non-winning bid must
// have a refund row. Returns the number of repairs applied.
func (e *Engine) AuditClose(ctx context.Context, auctionID string) (int, error) {
	a, err := e.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return 0, fmt.Errorf("load auction %s: %w", auctionID, err)
	}
	if !a.IsTerminal() {
		return 0, domain.Validationf("auction %s is still active", auctionID)
	}

	bids, err := e.bids.GetByAuction(ctx, auctionID)
	if err != nil {
		return 0, fmt.Errorf("load bids for %s: %w", auctionID, err)
	}

	repairs := 0
	for _, b := range bids {
		won := a.Status == domain.AuctionStatusSold && b.BidderID == a.WinnerID && b.Amount == a.WinningBid

		if b.Status == domain.BidStatusActive {
			target := domain.BidStatusOutbid
			if won {
				target = domain.BidStatusWon
			} else if b.BidderID == a.CurrentBidder {
				target = domain.BidStatusEnded
			}
			if err := e.bids.UpdateStatus(ctx, b.BidID, domain.BidStatusActive, target); err == nil {
				repairs++
			}
		}

		if won {
			continue
		}
		if _, err := e.refunds.GetByBid(ctx, b.BidID); errors.Is(err, storage.ErrNotFound) {
			e.queueRefund(ctx, auctionID, b)
			repairs++
		}
	}

	if repairs > 0 {
		e.logger.Warn("close audit repaired bids",
			zap.String("auction_id", auctionID),
			zap.Int("repairs", repairs))
	}
	return repairs, nil
}
