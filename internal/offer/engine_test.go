package offer

import (
	"context"
	"errors"
	"testing"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/notify"
	"solana-fraction-market/internal/settlement"
	"solana-fraction-market/internal/storage/memory"
)

const (
	buyerWallet = "11111111111111111111111111111111"
	otherWallet = "SysvarRent111111111111111111111111111111111"
)

type offerEnv struct {
	listings   *memory.ListingStore
	offers     *memory.OfferStore
	responses  *memory.OfferResponseStore
	sales      *memory.SaleStore
	dispatcher *notify.Dispatcher
	engine     *Engine
}

type settlerFunc func(ctx context.Context, req settlement.Request) (*domain.Sale, error)

func (f settlerFunc) Settle(ctx context.Context, req settlement.Request) (*domain.Sale, error) {
	return f(ctx, req)
}

func newOfferEnv(nowMS int64) *offerEnv {
	listings := memory.NewListingStore()
	offers := memory.NewOfferStore()
	responses := memory.NewOfferResponseStore()
	sales := memory.NewSaleStore()
	revenue := memory.NewRevenueStore()
	ledger := memory.NewLedgerStore()
	ownership := memory.NewOwnershipStore()
	dispatcher := notify.NewDispatcher(64, nil)

	settler := settlement.NewProcessor(
		memory.NewAgreementStore(ledger),
		memory.NewSettlementStore(sales, revenue, ledger, ownership),
		memory.NewFeePeriodStore(ledger, revenue),
		dispatcher,
		"platform-wallet",
		nil,
	)

	engine := NewEngine(listings, offers, responses, settler, nil, dispatcher, nil)
	engine.now = func() int64 { return nowMS }

	return &offerEnv{
		listings:   listings,
		offers:     offers,
		responses:  responses,
		sales:      sales,
		dispatcher: dispatcher,
		engine:     engine,
	}
}

func (e *offerEnv) seedListing(t *testing.T, id string, price int64) {
	t.Helper()
	l := &domain.Listing{
		ListingID: id,
		TokenID:   "tok1",
		SellerID:  "seller1",
		Price:     price,
		IsActive:  true,
		CreatedAt: 0,
	}
	if err := e.listings.Insert(context.Background(), l); err != nil {
		t.Fatalf("seed listing failed: %v", err)
	}
}

func (e *offerEnv) placeOffer(t *testing.T, buyer string, amount int64) *domain.Offer {
	t.Helper()
	o, err := e.engine.PlaceOffer(context.Background(), "l1", buyer, amount, buyerWallet, "", 0)
	if err != nil {
		t.Fatalf("PlaceOffer failed: %v", err)
	}
	return o
}

func TestEngine_PlaceOffer(t *testing.T) {
	env := newOfferEnv(1_000)
	env.seedListing(t, "l1", 2_000_000_000)

	o := env.placeOffer(t, "buyer1", 1_800_000_000)
	if o.Status != domain.OfferStatusPending {
		t.Errorf("status = %q, want pending", o.Status)
	}
	if o.ExpiresAt <= 1_000 {
		t.Error("default expiry not applied")
	}

	n := <-env.dispatcher.Events()
	if n.Type != domain.NotifyOfferReceived || n.RecipientID != "seller1" {
		t.Errorf("notification = (%q, %q), want (offer_received, seller1)", n.Type, n.RecipientID)
	}
}

func TestEngine_PlaceOffer_Validation(t *testing.T) {
	env := newOfferEnv(1_000)
	env.seedListing(t, "l1", 2_000_000_000)
	ctx := context.Background()

	var verr *domain.ValidationError

	if _, err := env.engine.PlaceOffer(ctx, "l1", "seller1", 100, buyerWallet, "", 0); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for seller self-offer, got %v", err)
	}
	if _, err := env.engine.PlaceOffer(ctx, "l1", "buyer1", 0, buyerWallet, "", 0); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for zero amount, got %v", err)
	}
	if _, err := env.engine.PlaceOffer(ctx, "l1", "buyer1", 100, "bad!wallet", "", 0); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for bad wallet, got %v", err)
	}
	if _, err := env.engine.PlaceOffer(ctx, "l1", "buyer1", 100, buyerWallet, "", 500); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for past expiry, got %v", err)
	}
}

func TestEngine_RespondToOffer_Accept(t *testing.T) {
	env := newOfferEnv(1_000)
	env.seedListing(t, "l1", 2_000_000_000)
	ctx := context.Background()

	accepted := env.placeOffer(t, "buyer1", 1_800_000_000)
	other := env.placeOffer(t, "buyer2", 1_700_000_000)

	o, sale, err := env.engine.RespondToOffer(ctx, accepted.OfferID, "seller1", domain.OfferResponseAccept, nil)
	if err != nil {
		t.Fatalf("RespondToOffer failed: %v", err)
	}
	if o.Status != domain.OfferStatusAccepted {
		t.Errorf("offer status = %q, want accepted", o.Status)
	}
	if sale == nil || sale.SalePrice != 1_800_000_000 || sale.Source != domain.SaleSourceOffer {
		t.Fatalf("sale = %+v, want offer sale at 1800000000", sale)
	}

	// The listing is sold and inactive.
	l, _ := env.listings.GetByID(ctx, "l1")
	if l.IsActive || !l.IsSold {
		t.Errorf("listing = (active=%v, sold=%v), want (false, true)", l.IsActive, l.IsSold)
	}

	// The competing offer was cascade-rejected.
	got, _ := env.offers.GetByID(ctx, other.OfferID)
	if got.Status != domain.OfferStatusRejected {
		t.Errorf("competing offer status = %q, want rejected", got.Status)
	}

	// Response history recorded.
	responses, err := env.responses.GetByOffer(ctx, accepted.OfferID)
	if err != nil || len(responses) != 1 || responses[0].Type != domain.OfferResponseAccept {
		t.Errorf("expected one accept response, got %v (%v)", responses, err)
	}
}

func TestEngine_RespondToOffer_DoubleAcceptConflicts(t *testing.T) {
	env := newOfferEnv(1_000)
	env.seedListing(t, "l1", 2_000_000_000)
	ctx := context.Background()

	first := env.placeOffer(t, "buyer1", 1_800_000_000)
	second := env.placeOffer(t, "buyer2", 1_900_000_000)

	if _, _, err := env.engine.RespondToOffer(ctx, first.OfferID, "seller1", domain.OfferResponseAccept, nil); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}

	// The cascade already rejected the second offer; bypass that by forcing
	// it back to pending to imitate a true race on the listing claim.
	if err := env.offers.UpdateStatus(ctx, second.OfferID, domain.OfferStatusRejected, domain.OfferStatusPending, nil); err != nil {
		t.Fatalf("reset offer failed: %v", err)
	}

	_, _, err := env.engine.RespondToOffer(ctx, second.OfferID, "seller1", domain.OfferResponseAccept, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected rejection of second accept, got %v", err)
	}

	// Exactly one sale exists.
	sales, _ := env.sales.GetByToken(ctx, "tok1")
	if len(sales) != 1 {
		t.Errorf("expected 1 sale, got %d", len(sales))
	}
}

func TestEngine_RespondToOffer_Counter(t *testing.T) {
	env := newOfferEnv(1_000)
	env.seedListing(t, "l1", 2_000_000_000)
	ctx := context.Background()

	o := env.placeOffer(t, "buyer1", 1_500_000_000)

	// Counter at or below the offer is invalid.
	low := int64(1_500_000_000)
	_, _, err := env.engine.RespondToOffer(ctx, o.OfferID, "seller1", domain.OfferResponseCounter, &low)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for low counter, got %v", err)
	}

	counter := int64(1_750_000_000)
	updated, sale, err := env.engine.RespondToOffer(ctx, o.OfferID, "seller1", domain.OfferResponseCounter, &counter)
	if err != nil {
		t.Fatalf("counter failed: %v", err)
	}
	if sale != nil {
		t.Error("counter must not produce a sale")
	}
	if updated.Status != domain.OfferStatusCountered || updated.CounterAmount == nil || *updated.CounterAmount != counter {
		t.Errorf("offer = (%q, %v), want countered at 1750000000", updated.Status, updated.CounterAmount)
	}
}

func TestEngine_RespondToOffer_RequiresSeller(t *testing.T) {
	env := newOfferEnv(1_000)
	env.seedListing(t, "l1", 2_000_000_000)

	o := env.placeOffer(t, "buyer1", 1_500_000_000)

	_, _, err := env.engine.RespondToOffer(context.Background(), o.OfferID, "buyer2", domain.OfferResponseAccept, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for non-seller, got %v", err)
	}
}

func TestEngine_RespondToOffer_Expired(t *testing.T) {
	env := newOfferEnv(1_000)
	env.seedListing(t, "l1", 2_000_000_000)

	o := env.placeOffer(t, "buyer1", 1_500_000_000)

	env.engine.now = func() int64 { return o.ExpiresAt + 1 }
	_, _, err := env.engine.RespondToOffer(context.Background(), o.OfferID, "seller1", domain.OfferResponseAccept, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for expired offer, got %v", err)
	}
}

func TestEngine_RespondToOffer_SettlementFailureReleasesListing(t *testing.T) {
	env := newOfferEnv(1_000)
	env.seedListing(t, "l1", 2_000_000_000)
	ctx := context.Background()

	o := env.placeOffer(t, "buyer1", 1_800_000_000)

	env.engine.settler = settlerFunc(func(ctx context.Context, req settlement.Request) (*domain.Sale, error) {
		return nil, errors.New("settlement store down")
	})

	if _, _, err := env.engine.RespondToOffer(ctx, o.OfferID, "seller1", domain.OfferResponseAccept, nil); err == nil {
		t.Fatal("expected settlement failure to surface")
	}

	// The listing was released and the offer is still pending.
	l, _ := env.listings.GetByID(ctx, "l1")
	if !l.IsActive || l.IsSold {
		t.Errorf("listing = (active=%v, sold=%v), want (true, false)", l.IsActive, l.IsSold)
	}
	got, _ := env.offers.GetByID(ctx, o.OfferID)
	if got.Status != domain.OfferStatusPending {
		t.Errorf("offer status = %q, want pending", got.Status)
	}
}

func TestEngine_ExpireOffers(t *testing.T) {
	env := newOfferEnv(1_000)
	env.seedListing(t, "l1", 2_000_000_000)
	ctx := context.Background()

	short, err := env.engine.PlaceOffer(ctx, "l1", "buyer1", 1_500_000_000, buyerWallet, "", 2_000)
	if err != nil {
		t.Fatalf("PlaceOffer failed: %v", err)
	}
	long, err := env.engine.PlaceOffer(ctx, "l1", "buyer2", 1_600_000_000, otherWallet, "", 60_000)
	if err != nil {
		t.Fatalf("PlaceOffer failed: %v", err)
	}

	env.engine.now = func() int64 { return 5_000 }
	expired, err := env.engine.ExpireOffers(ctx)
	if err != nil {
		t.Fatalf("ExpireOffers failed: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	gotShort, _ := env.offers.GetByID(ctx, short.OfferID)
	if gotShort.Status != domain.OfferStatusExpired {
		t.Errorf("short offer status = %q, want expired", gotShort.Status)
	}
	gotLong, _ := env.offers.GetByID(ctx, long.OfferID)
	if gotLong.Status != domain.OfferStatusPending {
		t.Errorf("long offer status = %q, want pending", gotLong.Status)
	}
}
