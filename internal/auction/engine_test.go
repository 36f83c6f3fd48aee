package auction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/notify"
	"solana-fraction-market/internal/proof"
	"solana-fraction-market/internal/settlement"
	"solana-fraction-market/internal/solana/stub"
	"solana-fraction-market/internal/storage"
	"solana-fraction-market/internal/storage/memory"
)

// Well-formed base58 addresses (32-byte payloads).
const (
	walletA = "11111111111111111111111111111111"
	walletB = "SysvarRent111111111111111111111111111111111"
	walletC = "SysvarC1ock11111111111111111111111111111111"
)

type auctionEnv struct {
	auctions   *memory.AuctionStore
	bids       *memory.BidStore
	refunds    *memory.RefundStore
	sales      *memory.SaleStore
	ledger     *memory.LedgerStore
	ownership  *memory.OwnershipStore
	dispatcher *notify.Dispatcher
	engine     *Engine
}

type settlerFunc func(ctx context.Context, req settlement.Request) (*domain.Sale, error)

func (f settlerFunc) Settle(ctx context.Context, req settlement.Request) (*domain.Sale, error) {
	return f(ctx, req)
}

func newAuctionEnv(nowMS int64) *auctionEnv {
	auctions := memory.NewAuctionStore()
	bids := memory.NewBidStore()
	refunds := memory.NewRefundStore()
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

	engine := NewEngine(auctions, bids, refunds, settler, nil, dispatcher, nil)
	engine.now = func() int64 { return nowMS }

	return &auctionEnv{
		auctions:   auctions,
		bids:       bids,
		refunds:    refunds,
		sales:      sales,
		ledger:     ledger,
		ownership:  ownership,
		dispatcher: dispatcher,
		engine:     engine,
	}
}

func (e *auctionEnv) seedAuction(t *testing.T, id string, starting int64, reserve *int64, endMS int64) {
	t.Helper()
	a := &domain.Auction{
		AuctionID:    id,
		TokenID:      "tok1",
		SellerID:     "seller1",
		StartingBid:  starting,
		ReservePrice: reserve,
		Status:       domain.AuctionStatusActive,
		AuctionStart: 0,
		AuctionEnd:   endMS,
		CreatedAt:    0,
	}
	if err := e.auctions.Insert(context.Background(), a); err != nil {
		t.Fatalf("seed auction failed: %v", err)
	}
}

func TestEngine_PlaceBid_Scenario(t *testing.T) {
	env := newAuctionEnv(1_000)
	// Starting bid 1.0 SOL, no reserve.
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)
	ctx := context.Background()

	// A bids 1.2 SOL and is accepted.
	a, bidA, err := env.engine.PlaceBid(ctx, "a1", "alice", 1_200_000_000, walletA, "")
	if err != nil {
		t.Fatalf("bid A failed: %v", err)
	}
	if a.CurrentBid != 1_200_000_000 || a.CurrentBidder != "alice" {
		t.Errorf("auction = (%d, %q), want (1200000000, alice)", a.CurrentBid, a.CurrentBidder)
	}
	if bidA.Status != domain.BidStatusActive {
		t.Errorf("bid A status = %q, want active", bidA.Status)
	}

	// B bids 1.1 SOL and must be rejected against 1.2 + 0.001.
	_, _, err = env.engine.PlaceBid(ctx, "a1", "bob", 1_100_000_000, walletB, "")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for bid B, got %v", err)
	}
	if !strings.Contains(verr.Reason, "1.201000000") {
		t.Errorf("Reason = %q, want the exact minimum", verr.Reason)
	}

	// C bids 1.25 SOL and displaces A.
	a, _, err = env.engine.PlaceBid(ctx, "a1", "carol", 1_250_000_000, walletC, "")
	if err != nil {
		t.Fatalf("bid C failed: %v", err)
	}
	if a.CurrentBid != 1_250_000_000 || a.CurrentBidder != "carol" {
		t.Errorf("auction = (%d, %q), want (1250000000, carol)", a.CurrentBid, a.CurrentBidder)
	}

	gotA, err := env.bids.GetByID(ctx, bidA.BidID)
	if err != nil {
		t.Fatalf("reload bid A failed: %v", err)
	}
	if gotA.Status != domain.BidStatusOutbid {
		t.Errorf("bid A status = %q, want outbid", gotA.Status)
	}

	refund, err := env.refunds.GetByBid(ctx, bidA.BidID)
	if err != nil {
		t.Fatalf("refund for bid A missing: %v", err)
	}
	if refund.Amount != 1_200_000_000 || refund.BidderID != "alice" {
		t.Errorf("refund = (%d, %q), want (1200000000, alice)", refund.Amount, refund.BidderID)
	}
	if refund.Status != domain.RefundStatusQueued {
		t.Errorf("refund status = %q, want queued", refund.Status)
	}

	// Exactly one active bid remains.
	active, err := env.bids.GetActiveByAuction(ctx, "a1")
	if err != nil {
		t.Fatalf("GetActiveByAuction failed: %v", err)
	}
	if active.BidderID != "carol" {
		t.Errorf("active bidder = %q, want carol", active.BidderID)
	}
}

func TestEngine_PlaceBid_Validation(t *testing.T) {
	env := newAuctionEnv(1_000)
	reserve := int64(5_000_000_000)
	env.seedAuction(t, "a1", 1_000_000_000, &reserve, 10_000)
	ctx := context.Background()

	var verr *domain.ValidationError

	_, _, err := env.engine.PlaceBid(ctx, "a1", "alice", 1_000_000_000, "not-base58-0OIl", "")
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for bad wallet, got %v", err)
	}

	_, _, err = env.engine.PlaceBid(ctx, "a1", "seller1", 6_000_000_000, walletA, "")
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for seller self-bid, got %v", err)
	}

	_, _, err = env.engine.PlaceBid(ctx, "a1", "alice", 2_000_000_000, walletA, "")
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError below reserve, got %v", err)
	}

	// Past the end time.
	env.engine.now = func() int64 { return 20_000 }
	_, _, err = env.engine.PlaceBid(ctx, "a1", "alice", 6_000_000_000, walletA, "")
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError after end, got %v", err)
	}

	// No bids were recorded by any rejected attempt.
	all, err := env.bids.GetByAuction(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByAuction failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no bids, got %d", len(all))
	}
}

func TestEngine_PlaceBid_FirstBidBelowStarting(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)

	_, _, err := env.engine.PlaceBid(context.Background(), "a1", "alice", 500_000_000, walletA, "")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError below starting bid, got %v", err)
	}
}

// conflictingAuctionStore fails the first conditional bid update, imitating a
// concurrent bidder winning the race between read and write.
type conflictingAuctionStore struct {
	*memory.AuctionStore
	fired bool
}

func (s *conflictingAuctionStore) UpdateBid(ctx context.Context, auctionID string, prevBid int64, prevBidder string, newBid int64, newBidder string) error {
	if !s.fired {
		s.fired = true
		return storage.ErrConflict
	}
	return s.AuctionStore.UpdateBid(ctx, auctionID, prevBid, prevBidder, newBid, newBidder)
}

func TestEngine_PlaceBid_ConcurrentConflict(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)

	conflicting := &conflictingAuctionStore{AuctionStore: env.auctions}
	env.engine.auctions = conflicting

	_, _, err := env.engine.PlaceBid(context.Background(), "a1", "alice", 1_200_000_000, walletA, "")
	var cerr *domain.StateConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected StateConflictError, got %v", err)
	}

	// The rejected attempt left no bid rows behind.
	all, err := env.bids.GetByAuction(context.Background(), "a1")
	if err != nil {
		t.Fatalf("GetByAuction failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no bids after conflict, got %d", len(all))
	}

	// A retry sees the fresh state and succeeds.
	if _, _, err := env.engine.PlaceBid(context.Background(), "a1", "alice", 1_200_000_000, walletA, ""); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

// insertFailBidStore fails bid row inserts on demand.
type insertFailBidStore struct {
	*memory.BidStore
	fail bool
}

func (s *insertFailBidStore) Insert(ctx context.Context, bid *domain.Bid) error {
	if s.fail {
		return errors.New("connection reset")
	}
	return s.BidStore.Insert(ctx, bid)
}

func TestEngine_PlaceBid_InsertFailureRevertsAcceptance(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)
	ctx := context.Background()

	failing := &insertFailBidStore{BidStore: env.bids}
	env.engine.bids = failing

	_, bidA, err := env.engine.PlaceBid(ctx, "a1", "alice", 1_200_000_000, walletA, "")
	if err != nil {
		t.Fatalf("bid A failed: %v", err)
	}

	failing.fail = true
	_, _, err = env.engine.PlaceBid(ctx, "a1", "bob", 1_300_000_000, walletB, "")
	if err == nil {
		t.Fatal("expected an error when the bid row cannot be written")
	}

	// The acceptance rolled back: the auction still points at alice and her
	// bid is active again.
	a, err := env.auctions.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("reload auction failed: %v", err)
	}
	if a.CurrentBid != 1_200_000_000 || a.CurrentBidder != "alice" {
		t.Errorf("auction = (%d, %q), want (1200000000, alice)", a.CurrentBid, a.CurrentBidder)
	}
	gotA, err := env.bids.GetByID(ctx, bidA.BidID)
	if err != nil {
		t.Fatalf("reload bid A failed: %v", err)
	}
	if gotA.Status != domain.BidStatusActive {
		t.Errorf("bid A status = %q, want active", gotA.Status)
	}

	// No refund was queued for a displacement that did not stick.
	if _, err := env.refunds.GetByBid(ctx, bidA.BidID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected no refund for bid A, got %v", err)
	}

	// A retry against the healthy store succeeds.
	failing.fail = false
	a, _, err = env.engine.PlaceBid(ctx, "a1", "bob", 1_300_000_000, walletB, "")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if a.CurrentBidder != "bob" {
		t.Errorf("current bidder = %q, want bob", a.CurrentBidder)
	}
}

func TestEngine_PlaceBid_ProofVerification(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)

	chain := stub.New()
	chain.AddTransferTx("goodsig", walletA, "escrow", 1_200_000_000, 5000)
	env.engine.verifier = proof.NewVerifier(chain)
	ctx := context.Background()

	_, _, err := env.engine.PlaceBid(ctx, "a1", "alice", 1_200_000_000, walletA, "missingsig")
	var everr *domain.ExternalVerificationError
	if !errors.As(err, &everr) {
		t.Fatalf("expected ExternalVerificationError, got %v", err)
	}

	if _, _, err := env.engine.PlaceBid(ctx, "a1", "alice", 1_200_000_000, walletA, "goodsig"); err != nil {
		t.Fatalf("verified bid failed: %v", err)
	}
}

func TestEngine_PlaceBid_NotifiesSeller(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)

	if _, _, err := env.engine.PlaceBid(context.Background(), "a1", "alice", 1_200_000_000, walletA, ""); err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	n := <-env.dispatcher.Events()
	if n.Type != domain.NotifyNewBid || n.RecipientID != "seller1" {
		t.Errorf("notification = (%q, %q), want (new_bid, seller1)", n.Type, n.RecipientID)
	}
}
