// Package offer implements the fixed-price negotiation lifecycle: placing
// offers on listings, the seller's accept/reject/counter responses, and
// expiry of stale offers.
package offer

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

// DefaultOfferTTL applies when an offer is placed without an expiry.
const DefaultOfferTTL = 7 * 24 * time.Hour

// Settler settles an accepted offer into a sale.
type Settler interface {
	Settle(ctx context.Context, req settlement.Request) (*domain.Sale, error)
}

// ProofVerifier checks an on-chain payment proof.
type ProofVerifier interface {
	VerifyPayment(ctx context.Context, signature, payerWallet string, amount int64) error
}

// Publisher is the outbound notification surface.
type Publisher interface {
	Publish(n domain.Notification)
}

// Engine drives the offer lifecycle.
type Engine struct {
	listings   storage.ListingStore
	offers     storage.OfferStore
	responses  storage.OfferResponseStore
	settler    Settler
	verifier   ProofVerifier
	dispatcher Publisher
	logger     *zap.Logger
	now        func() int64 // unix ms
}

// NewEngine creates an offer engine. verifier and dispatcher may be nil.
func NewEngine(
	listings storage.ListingStore,
	offers storage.OfferStore,
	responses storage.OfferResponseStore,
	settler Settler,
	verifier ProofVerifier,
	dispatcher Publisher,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		listings:   listings,
		offers:     offers,
		responses:  responses,
		settler:    settler,
		verifier:   verifier,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// PlaceOffer creates a pending offer on an active listing.
func (e *Engine) PlaceOffer(ctx context.Context, listingID, buyerID string, amount int64, walletAddr, proofSig string, expiresAt int64) (*domain.Offer, error) {
	if err := wallet.Validate(walletAddr); err != nil {
		return nil, domain.Validationf("invalid wallet address: %v", err)
	}
	if amount <= 0 {
		return nil, domain.Validationf("offer amount must be positive, got %d", amount)
	}

	listing, err := e.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("load listing %s: %w", listingID, err)
	}
	if !listing.IsActive {
		return nil, domain.Validationf("listing %s is no longer active", listingID)
	}
	if buyerID == listing.SellerID {
		return nil, domain.Validationf("seller cannot make an offer on their own listing")
	}

	nowMS := e.now()
	if expiresAt == 0 {
		expiresAt = nowMS + DefaultOfferTTL.Milliseconds()
	}
	if expiresAt <= nowMS {
		return nil, domain.Validationf("offer expiry must be in the future")
	}

	o := &domain.Offer{
		OfferID:   uuid.NewString(),
		ListingID: listingID,
		BuyerID:   buyerID,
		Wallet:    walletAddr,
		Amount:    amount,
		Status:    domain.OfferStatusPending,
		ProofSig:  proofSig,
		ExpiresAt: expiresAt,
		CreatedAt: nowMS,
	}
	if err := e.offers.Insert(ctx, o); err != nil {
		return nil, fmt.Errorf("insert offer on %s: %w", listingID, err)
	}

	e.publish(domain.Notification{
		Type:        domain.NotifyOfferReceived,
		RecipientID: listing.SellerID,
		TokenID:     listing.TokenID,
		EntityID:    o.OfferID,
		Amount:      amount,
	})

	e.logger.Info("offer placed",
		zap.String("offer_id", o.OfferID),
		zap.String("listing_id", listingID),
		zap.String("buyer", buyerID),
		zap.Int64("amount", amount))
	return o, nil
}

// RespondToOffer applies the seller's response. Accepting settles the sale,
// deactivates the listing exactly once, and cascades every other pending
// offer on the listing to rejected; a concurrent accept on the same listing
// fails with StateConflictError instead of producing a second sale.
func (e *Engine) RespondToOffer(ctx context.Context, offerID, responderID, kind string, counterAmount *int64) (*domain.Offer, *domain.Sale, error) {
	o, err := e.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, nil, fmt.Errorf("load offer %s: %w", offerID, err)
	}
	listing, err := e.listings.GetByID(ctx, o.ListingID)
	if err != nil {
		return nil, nil, fmt.Errorf("load listing %s: %w", o.ListingID, err)
	}

	if responderID != listing.SellerID {
		return nil, nil, domain.Validationf("only the listing seller can respond to offers")
	}
	if o.Status != domain.OfferStatusPending {
		return nil, nil, domain.Validationf("offer %s is %s, not pending", offerID, o.Status)
	}
	if o.Expired(e.now()) {
		return nil, nil, domain.Validationf("offer %s has expired", offerID)
	}
	if !listing.IsActive {
		return nil, nil, domain.Validationf("listing %s is no longer active", o.ListingID)
	}

	var sale *domain.Sale
	switch kind {
	case domain.OfferResponseAccept:
		sale, err = e.accept(ctx, listing, o)
	case domain.OfferResponseReject:
		err = e.transition(ctx, o, domain.OfferStatusRejected, nil)
		if err == nil {
			e.publish(domain.Notification{
				Type:        domain.NotifyOfferRejected,
				RecipientID: o.BuyerID,
				TokenID:     listing.TokenID,
				EntityID:    o.OfferID,
			})
		}
	case domain.OfferResponseCounter:
		if counterAmount == nil || *counterAmount <= o.Amount {
			return nil, nil, domain.Validationf("counter must exceed the offer of %s", wallet.SOL(o.Amount))
		}
		err = e.transition(ctx, o, domain.OfferStatusCountered, counterAmount)
		if err == nil {
			e.publish(domain.Notification{
				Type:        domain.NotifyOfferCountered,
				RecipientID: o.BuyerID,
				TokenID:     listing.TokenID,
				EntityID:    o.OfferID,
				Amount:      *counterAmount,
			})
		}
	default:
		return nil, nil, domain.Validationf("unknown response type %q", kind)
	}
	if err != nil {
		return nil, nil, err
	}

	e.recordResponse(ctx, offerID, responderID, kind, counterAmount)

	updated, err := e.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, sale, fmt.Errorf("reload offer %s: %w", offerID, err)
	}
	return updated, sale, nil
}

// accept claims the listing, settles the sale, and cascades rejections. The
// is_active flip is the exclusive section for the whole sequence.
func (e *Engine) accept(ctx context.Context, listing *domain.Listing, o *domain.Offer) (*domain.Sale, error) {
	if o.ProofSig != "" && e.verifier != nil {
		if err := e.verifier.VerifyPayment(ctx, o.ProofSig, o.Wallet, o.Amount); err != nil {
			return nil, err
		}
	}

	// Claim the listing before settling: the is_active true->false flip is
	// the exclusive section. A concurrent accept loses here, before any
	// sale exists.
	if err := e.listings.Deactivate(ctx, listing.ListingID, true); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, &domain.StateConflictError{Entity: "listing", ID: listing.ListingID}
		}
		return nil, fmt.Errorf("deactivate listing %s: %w", listing.ListingID, err)
	}

	sale, err := e.settler.Settle(ctx, settlement.Request{
		TokenID:  listing.TokenID,
		SellerID: listing.SellerID,
		BuyerID:  o.BuyerID,
		Price:    o.Amount,
		Source:   domain.SaleSourceOffer,
		SourceID: o.OfferID,
	})
	if err != nil {
		// Compensate: release the listing so the offer can be re-accepted.
		if reactivateErr := e.listings.Reactivate(ctx, listing.ListingID); reactivateErr != nil {
			e.logger.Error("listing stuck inactive after failed settlement",
				zap.String("listing_id", listing.ListingID), zap.Error(reactivateErr))
		}
		return nil, fmt.Errorf("settle accepted offer %s: %w", o.OfferID, err)
	}

	if err := e.transition(ctx, o, domain.OfferStatusAccepted, nil); err != nil {
		e.logger.Error("accepted offer status transition failed",
			zap.String("offer_id", o.OfferID), zap.Error(err))
	}

	e.cascadeReject(ctx, listing, o.OfferID)

	e.publish(domain.Notification{
		Type:        domain.NotifyOfferAccepted,
		RecipientID: o.BuyerID,
		TokenID:     listing.TokenID,
		EntityID:    o.OfferID,
		Amount:      o.Amount,
	})

	e.logger.Info("offer accepted",
		zap.String("offer_id", o.OfferID),
		zap.String("listing_id", listing.ListingID),
		zap.String("sale_id", sale.SaleID),
		zap.Int64("amount", o.Amount))
	return sale, nil
}

// cascadeReject moves every other pending offer on the listing to rejected.
func (e *Engine) cascadeReject(ctx context.Context, listing *domain.Listing, acceptedID string) {
	pending, err := e.offers.GetPendingByListing(ctx, listing.ListingID)
	if err != nil {
		e.logger.Error("cascade reject listing scan failed",
			zap.String("listing_id", listing.ListingID), zap.Error(err))
		return
	}
	for _, other := range pending {
		if other.OfferID == acceptedID {
			continue
		}
		if err := e.offers.UpdateStatus(ctx, other.OfferID, domain.OfferStatusPending, domain.OfferStatusRejected, nil); err != nil {
			if !errors.Is(err, storage.ErrConflict) {
				e.logger.Error("cascade reject failed",
					zap.String("offer_id", other.OfferID), zap.Error(err))
			}
			continue
		}
		e.publish(domain.Notification{
			Type:        domain.NotifyOfferRejected,
			RecipientID: other.BuyerID,
			TokenID:     listing.TokenID,
			EntityID:    other.OfferID,
		})
	}
}

// ExpireOffers moves every pending offer past its expiry to expired.
func (e *Engine) ExpireOffers(ctx context.Context) (int, error) {
	stale, err := e.offers.GetExpiredPending(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("list expired offers: %w", err)
	}

	expired := 0
	for _, o := range stale {
		if err := e.offers.UpdateStatus(ctx, o.OfferID, domain.OfferStatusPending, domain.OfferStatusExpired, nil); err != nil {
			if !errors.Is(err, storage.ErrConflict) {
				e.logger.Error("offer expiry failed",
					zap.String("offer_id", o.OfferID), zap.Error(err))
			}
			continue
		}
		expired++
	}

	if expired > 0 {
		e.logger.Info("expired stale offers", zap.Int("count", expired))
	}
	return expired, nil
}

func (e *Engine) transition(ctx context.Context, o *domain.Offer, to string, counterAmount *int64) error {
	err := e.offers.UpdateStatus(ctx, o.OfferID, domain.OfferStatusPending, to, counterAmount)
	if errors.Is(err, storage.ErrConflict) {
		return &domain.StateConflictError{Entity: "offer", ID: o.OfferID}
	}
	return err
}

func (e *Engine) recordResponse(ctx context.Context, offerID, responderID, kind string, counterAmount *int64) {
	r := &domain.OfferResponse{
		ResponseID:    uuid.NewString(),
		OfferID:       offerID,
		ResponderID:   responderID,
		Type:          kind,
		CounterAmount: counterAmount,
		CreatedAt:     e.now(),
	}
	if err := e.responses.Insert(ctx, r); err != nil {
		e.logger.Error("offer response history lost",
			zap.String("offer_id", offerID), zap.Error(err))
	}
}

func (e *Engine) publish(n domain.Notification) {
	if e.dispatcher != nil {
		e.dispatcher.Publish(n)
	}
}
