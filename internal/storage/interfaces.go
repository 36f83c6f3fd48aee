package storage

import (
	"context"

	"solana-fraction-market/internal/domain"
)

// AuctionStore provides access to auctions storage. The current-bid triple
// and the status column only change through the conditional methods.
type AuctionStore interface {
	// Insert adds a new auction. Returns ErrDuplicateKey if auction_id exists.
	Insert(ctx context.Context, a *domain.Auction) error

	// GetByID retrieves an auction. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, auctionID string) (*domain.Auction, error)

	// UpdateBid replaces (current_bid, current_bidder) only if the stored
	// values still equal (prevBid, prevBidder) and the auction is active.
	// Returns ErrConflict when a concurrent bidder won the race.
	UpdateBid(ctx context.Context, auctionID string, prevBid int64, prevBidder string, newBid int64, newBidder string) error

	// TransitionStatus moves the auction from one status to another,
	// recording the winner fields when the target status is sold. Returns
	// ErrConflict if the auction is not in the from status. This transition
	// is the sweep's concurrency gate.
	TransitionStatus(ctx context.Context, auctionID, from, to, winnerID string, winningBid int64) error

	// GetExpiredActive retrieves active auctions whose end time has passed.
	GetExpiredActive(ctx context.Context, nowMS int64) ([]*domain.Auction, error)
}

// BidStore provides access to bids storage.
type BidStore interface {
	// Insert adds a new bid. Returns ErrDuplicateKey if bid_id exists.
	Insert(ctx context.Context, b *domain.Bid) error

	// GetByID retrieves a bid. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, bidID string) (*domain.Bid, error)

	// GetActiveByAuction retrieves the single active bid for an auction.
	// Returns ErrNotFound when no bid is active.
	GetActiveByAuction(ctx context.Context, auctionID string) (*domain.Bid, error)

	// GetByAuction retrieves all bids for an auction, newest first.
	GetByAuction(ctx context.Context, auctionID string) ([]*domain.Bid, error)

	// UpdateStatus moves a bid between statuses. Returns ErrConflict if the
	// bid is not in the from status.
	UpdateStatus(ctx context.Context, bidID, from, to string) error
}

// ListingStore provides access to listings storage.
type ListingStore interface {
	// Insert adds a new listing. Returns ErrDuplicateKey if listing_id exists.
	Insert(ctx context.Context, l *domain.Listing) error

	// GetByID retrieves a listing. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, listingID string) (*domain.Listing, error)

	// Deactivate flips is_active from true to false exactly once, marking the
	// listing sold when settlement succeeded. Returns ErrConflict if the
	// listing was already deactivated, which guards against double accepts.
	Deactivate(ctx context.Context, listingID string, sold bool) error

	// Reactivate reverts is_active false to true, compensating a claim whose
	// settlement failed. Returns ErrConflict if the listing is active.
	Reactivate(ctx context.Context, listingID string) error
}

// OfferStore provides access to offers storage.
type OfferStore interface {
	// Insert adds a new offer. Returns ErrDuplicateKey if offer_id exists.
	Insert(ctx context.Context, o *domain.Offer) error

	// GetByID retrieves an offer. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, offerID string) (*domain.Offer, error)

	// UpdateStatus moves an offer between statuses, recording the counter
	// amount when countering. Returns ErrConflict if the offer is not in the
	// from status.
	UpdateStatus(ctx context.Context, offerID, from, to string, counterAmount *int64) error

	// GetPendingByListing retrieves all pending offers on a listing.
	GetPendingByListing(ctx context.Context, listingID string) ([]*domain.Offer, error)

	// GetExpiredPending retrieves pending offers past their expiry.
	GetExpiredPending(ctx context.Context, nowMS int64) ([]*domain.Offer, error)
}

// OfferResponseStore provides access to offer response history. Append-only.
type OfferResponseStore interface {
	// Insert adds a response. Returns ErrDuplicateKey if response_id exists.
	Insert(ctx context.Context, r *domain.OfferResponse) error

	// GetByOffer retrieves all responses to an offer, oldest first.
	GetByOffer(ctx context.Context, offerID string) ([]*domain.OfferResponse, error)
}

// SaleStore provides access to sales storage.
type SaleStore interface {
	// Insert adds a sale. Returns ErrDuplicateKey if sale_id exists.
	Insert(ctx context.Context, s *domain.Sale) error

	// GetByID retrieves a sale. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, saleID string) (*domain.Sale, error)

	// GetByToken retrieves all sales for a token, newest first.
	GetByToken(ctx context.Context, tokenID string) ([]*domain.Sale, error)

	// GetUncollected retrieves completed sales whose platform fee has not
	// been collected yet.
	GetUncollected(ctx context.Context) ([]*domain.Sale, error)

	// MarkFeeCollected flips fee_collected from false to true. Returns
	// ErrConflict if already collected, which keeps the revenue collection
	// job idempotent.
	MarkFeeCollected(ctx context.Context, saleID string) error
}

// LedgerStore provides access to the fee accrual ledger. Entries are
// append-only; no amount is ever updated or deleted.
type LedgerStore interface {
	// Append adds a ledger entry. Returns ErrDuplicateKey if entry_id exists.
	Append(ctx context.Context, e *domain.FeeLedgerEntry) error

	// GetByToken retrieves all entries for a token, oldest first.
	GetByToken(ctx context.Context, tokenID string) ([]*domain.FeeLedgerEntry, error)

	// GetByBeneficiary retrieves all entries for one (token, wallet) pair,
	// oldest first.
	GetByBeneficiary(ctx context.Context, tokenID, wallet string) ([]*domain.FeeLedgerEntry, error)
}

// AgreementStore provides access to royalty agreement versions, shares, and
// change history. Exactly one open version may exist per token.
type AgreementStore interface {
	// GetOpenVersion retrieves the token's open version. Returns ErrNotFound
	// when the token has no agreement yet.
	GetOpenVersion(ctx context.Context, tokenID string) (*domain.RoyaltyAgreementVersion, error)

	// GetVersions retrieves all versions for a token, oldest first.
	GetVersions(ctx context.Context, tokenID string) ([]*domain.RoyaltyAgreementVersion, error)

	// GetSharesByVersion retrieves the share rows of one version.
	GetSharesByVersion(ctx context.Context, versionID string) ([]*domain.RoyaltyShare, error)

	// RotateVersion atomically closes the currently open version (if any,
	// setting effective_to to the new version's effective_from), inserts the
	// new version with its share rows, appends the change history entry, and
	// re-links ledger entries lacking a version reference to the new one.
	// Returns ErrConflict when a concurrent rotation for the same token beat
	// this one.
	RotateVersion(ctx context.Context, v *domain.RoyaltyAgreementVersion, shares []*domain.RoyaltyShare, change *domain.AgreementChange) error

	// GetChanges retrieves the change history for a token, oldest first.
	GetChanges(ctx context.Context, tokenID string) ([]*domain.AgreementChange, error)
}

// PayoutStore provides access to payouts storage.
type PayoutStore interface {
	// Insert adds a payout row, normally in pending status before the
	// transfer is submitted. Returns ErrDuplicateKey if payout_id exists.
	Insert(ctx context.Context, p *domain.Payout) error

	// GetByID retrieves a payout. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, payoutID string) (*domain.Payout, error)

	// GetPendingFor retrieves pending payouts for a (token, wallet) pair.
	// A non-empty result blocks a fresh payout for the same pair.
	GetPendingFor(ctx context.Context, tokenID, wallet string) ([]*domain.Payout, error)

	// GetPending retrieves all pending payouts, oldest first.
	GetPending(ctx context.Context) ([]*domain.Payout, error)

	// SetTxSig records the submitted transfer signature on a pending payout.
	SetTxSig(ctx context.Context, payoutID, txSig string) error

	// MarkConfirmed moves a payout from pending to confirmed. Returns
	// ErrConflict if not pending.
	MarkConfirmed(ctx context.Context, payoutID string) error

	// MarkFailed moves a payout from pending to failed with a classified
	// reason. Returns ErrConflict if not pending.
	MarkFailed(ctx context.Context, payoutID, reason string) error
}

// RevenueStore provides access to platform revenue rows outside the
// settlement transaction (settlement writes its row through SettlementStore).
type RevenueStore interface {
	// Insert adds a revenue row. Returns ErrDuplicateKey if revenue_id exists.
	Insert(ctx context.Context, r *domain.PlatformRevenue) error

	// GetByToken retrieves revenue rows for a token, newest first.
	GetByToken(ctx context.Context, tokenID string) ([]*domain.PlatformRevenue, error)

	// GetBySource retrieves revenue rows for a source id.
	GetBySource(ctx context.Context, sourceID string) ([]*domain.PlatformRevenue, error)
}

// FeePeriodStore provides access to trading-fee periods.
type FeePeriodStore interface {
	// Insert adds a fee period. Returns ErrDuplicateKey if period_id exists.
	Insert(ctx context.Context, p *domain.FeePeriod) error

	// GetByID retrieves a period. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, periodID string) (*domain.FeePeriod, error)

	// GetOpen retrieves all open periods, oldest first.
	GetOpen(ctx context.Context) ([]*domain.FeePeriod, error)

	// CollectDelta advances last_recorded_fees from prevRecorded to
	// newRecorded and writes the accrual and revenue rows produced from the
	// delta, all in one atomic unit. Returns ErrConflict when the snapshot
	// moved concurrently, so the same delta is never applied twice.
	CollectDelta(ctx context.Context, periodID string, prevRecorded, newRecorded int64, accrual *domain.FeeLedgerEntry, revenue *domain.PlatformRevenue) error

	// Close moves a period from open to closed. Returns ErrConflict if
	// already closed.
	Close(ctx context.Context, periodID string) error
}

// OwnershipStore provides access to the logical ownership pointer per token.
// Settlement updates it only through SettlementStore.
type OwnershipStore interface {
	// GetOwner retrieves the current owner. Returns ErrNotFound if the token
	// has no recorded owner.
	GetOwner(ctx context.Context, tokenID string) (*domain.TokenOwnership, error)

	// Set records an owner outside settlement (seeding, imports).
	Set(ctx context.Context, o *domain.TokenOwnership) error
}

// RefundStore provides access to refund obligations for displaced bidders.
type RefundStore interface {
	// Insert adds a refund in queued status. Returns ErrDuplicateKey if
	// refund_id exists.
	Insert(ctx context.Context, r *domain.Refund) error

	// GetByBid retrieves the refund for a bid. Returns ErrNotFound if none.
	GetByBid(ctx context.Context, bidID string) (*domain.Refund, error)

	// GetByAuction retrieves all refunds for an auction, oldest first.
	GetByAuction(ctx context.Context, auctionID string) ([]*domain.Refund, error)

	// GetQueued retrieves all queued refunds, oldest first.
	GetQueued(ctx context.Context) ([]*domain.Refund, error)

	// MarkSubmitted moves a refund from queued to submitted with the
	// transfer signature. Returns ErrConflict if not queued.
	MarkSubmitted(ctx context.Context, refundID, txSig string) error

	// MarkConfirmed moves a refund from submitted to confirmed. Returns
	// ErrConflict if not submitted.
	MarkConfirmed(ctx context.Context, refundID string) error

	// MarkFailed moves a refund from queued or submitted to failed. Returns
	// ErrConflict if terminal.
	MarkFailed(ctx context.Context, refundID string) error
}

// SettlementStore commits a settlement as one atomic unit: the sale row, the
// platform revenue row, the platform accrual ledger entry, and the ownership
// update. Partial application is a correctness violation; implementations
// roll back everything on any failure.
type SettlementStore interface {
	Record(ctx context.Context, sale *domain.Sale, revenue *domain.PlatformRevenue, accrual *domain.FeeLedgerEntry, owner *domain.TokenOwnership) error

	// CollectSaleFee flips a sale's fee_collected flag from false to true and
	// writes the accrual ledger entry and revenue row in the same unit.
	// Returns ErrNotFound when the sale does not exist and ErrConflict when
	// its fee was already collected.
	CollectSaleFee(ctx context.Context, saleID string, accrual *domain.FeeLedgerEntry, revenue *domain.PlatformRevenue) error
}
