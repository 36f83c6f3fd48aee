package auction

import (
	"context"
	"errors"
	"testing"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/settlement"
)

func TestEngine_SweepExpired_Sold(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)
	ctx := context.Background()

	_, bid, err := env.engine.PlaceBid(ctx, "a1", "alice", 1_200_000_000, walletA, "")
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	env.engine.now = func() int64 { return 20_000 }
	res, err := env.engine.SweepExpired(ctx, false)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if res.Processed != 1 || res.Sold != 1 || res.Failed != 0 {
		t.Fatalf("res = %+v, want 1 processed 1 sold", res)
	}

	a, err := env.auctions.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if a.Status != domain.AuctionStatusSold || a.WinnerID != "alice" || a.WinningBid != 1_200_000_000 {
		t.Errorf("auction = (%q, %q, %d), want (sold, alice, 1200000000)", a.Status, a.WinnerID, a.WinningBid)
	}

	sales, err := env.sales.GetByToken(ctx, "tok1")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if len(sales) != 1 || sales[0].SalePrice != 1_200_000_000 || sales[0].Source != domain.SaleSourceAuction {
		t.Fatalf("expected one auction sale at 1200000000, got %d", len(sales))
	}

	won, err := env.bids.GetByID(ctx, bid.BidID)
	if err != nil {
		t.Fatalf("reload bid failed: %v", err)
	}
	if won.Status != domain.BidStatusWon {
		t.Errorf("bid status = %q, want won", won.Status)
	}

	owner, err := env.ownership.GetOwner(ctx, "tok1")
	if err != nil {
		t.Fatalf("GetOwner failed: %v", err)
	}
	if owner.OwnerID != "alice" {
		t.Errorf("owner = %q, want alice", owner.OwnerID)
	}
}

func TestEngine_SweepExpired_ReserveNotMet(t *testing.T) {
	env := newAuctionEnv(1_000)
	reserve := int64(5_000_000_000)
	env.seedAuction(t, "a1", 1_000_000_000, &reserve, 10_000)
	ctx := context.Background()

	// Reserve rejects low bids at placement, so seed the standing bid
	// directly the way a reserve lowered mid-auction would leave it.
	if err := env.auctions.UpdateBid(ctx, "a1", 0, "", 1_200_000_000, "alice"); err != nil {
		t.Fatalf("UpdateBid failed: %v", err)
	}
	standing := &domain.Bid{
		BidID:     "b1",
		AuctionID: "a1",
		BidderID:  "alice",
		Wallet:    walletA,
		Amount:    1_200_000_000,
		Status:    domain.BidStatusActive,
		CreatedAt: 1_000,
	}
	if err := env.bids.Insert(ctx, standing); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	env.engine.now = func() int64 { return 20_000 }
	res, err := env.engine.SweepExpired(ctx, false)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if res.Ended != 1 {
		t.Fatalf("res = %+v, want 1 ended", res)
	}

	a, _ := env.auctions.GetByID(ctx, "a1")
	if a.Status != domain.AuctionStatusEndedNoRes {
		t.Errorf("status = %q, want ended_no_reserve", a.Status)
	}

	// The standing bidder gets their money back.
	got, _ := env.bids.GetByID(ctx, "b1")
	if got.Status != domain.BidStatusEnded {
		t.Errorf("bid status = %q, want ended", got.Status)
	}
	if _, err := env.refunds.GetByBid(ctx, "b1"); err != nil {
		t.Errorf("expected refund for the standing bid: %v", err)
	}

	// No sale was produced.
	sales, _ := env.sales.GetByToken(ctx, "tok1")
	if len(sales) != 0 {
		t.Errorf("expected no sales, got %d", len(sales))
	}
}

func TestEngine_SweepExpired_NoBids(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)

	env.engine.now = func() int64 { return 20_000 }
	res, err := env.engine.SweepExpired(context.Background(), false)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if res.Ended != 1 {
		t.Fatalf("res = %+v, want 1 ended", res)
	}

	a, _ := env.auctions.GetByID(context.Background(), "a1")
	if a.Status != domain.AuctionStatusEnded {
		t.Errorf("status = %q, want ended", a.Status)
	}
}

func TestEngine_SweepExpired_DryRun(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)
	ctx := context.Background()

	if _, _, err := env.engine.PlaceBid(ctx, "a1", "alice", 1_200_000_000, walletA, ""); err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	env.engine.now = func() int64 { return 20_000 }
	res, err := env.engine.SweepExpired(ctx, true)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if res.Processed != 1 || res.Sold != 1 {
		t.Fatalf("res = %+v, want 1 processed 1 sold", res)
	}

	// Nothing actually closed.
	a, _ := env.auctions.GetByID(ctx, "a1")
	if a.Status != domain.AuctionStatusActive {
		t.Errorf("status = %q, want active after dry run", a.Status)
	}
}

func TestEngine_SweepExpired_SecondRunIsNoop(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)
	ctx := context.Background()

	if _, _, err := env.engine.PlaceBid(ctx, "a1", "alice", 1_200_000_000, walletA, ""); err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	env.engine.now = func() int64 { return 20_000 }
	if _, err := env.engine.SweepExpired(ctx, false); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}

	res, err := env.engine.SweepExpired(ctx, false)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if res.Processed != 0 {
		t.Errorf("second sweep processed %d, want 0", res.Processed)
	}

	// Still exactly one sale.
	sales, _ := env.sales.GetByToken(ctx, "tok1")
	if len(sales) != 1 {
		t.Errorf("expected 1 sale, got %d", len(sales))
	}
}

func TestEngine_SweepExpired_SettlementFailureReverts(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)
	ctx := context.Background()

	if _, _, err := env.engine.PlaceBid(ctx, "a1", "alice", 1_200_000_000, walletA, ""); err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	env.engine.settler = settlerFunc(func(ctx context.Context, req settlement.Request) (*domain.Sale, error) {
		return nil, errors.New("settlement store down")
	})

	env.engine.now = func() int64 { return 20_000 }
	res, err := env.engine.SweepExpired(ctx, false)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if res.Failed != 1 || res.Sold != 0 {
		t.Fatalf("res = %+v, want 1 failed", res)
	}

	// The auction is active again so a later sweep can retry.
	a, _ := env.auctions.GetByID(ctx, "a1")
	if a.Status != domain.AuctionStatusActive {
		t.Errorf("status = %q, want active after revert", a.Status)
	}
	if a.WinnerID != "" || a.WinningBid != 0 {
		t.Errorf("winner fields = (%q, %d), want cleared", a.WinnerID, a.WinningBid)
	}
	if a.CurrentBid != 1_200_000_000 || a.CurrentBidder != "alice" {
		t.Errorf("current bid = (%d, %q), want preserved", a.CurrentBid, a.CurrentBidder)
	}
}

func TestEngine_AuditClose_RepairsMissingWrites(t *testing.T) {
	env := newAuctionEnv(1_000)
	ctx := context.Background()

	// A closed auction whose displaced bid never got its outbid status or
	// refund, as if the process died mid-placement.
	a := &domain.Auction{
		AuctionID:     "a1",
		TokenID:       "tok1",
		SellerID:      "seller1",
		StartingBid:   1_000_000_000,
		CurrentBid:    1_250_000_000,
		CurrentBidder: "carol",
		Status:        domain.AuctionStatusSold,
		AuctionEnd:    10_000,
		WinnerID:      "carol",
		WinningBid:    1_250_000_000,
	}
	if err := env.auctions.Insert(ctx, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	stale := &domain.Bid{
		BidID: "b1", AuctionID: "a1", BidderID: "alice", Wallet: walletA,
		Amount: 1_200_000_000, Status: domain.BidStatusActive, CreatedAt: 1,
	}
	winner := &domain.Bid{
		BidID: "b2", AuctionID: "a1", BidderID: "carol", Wallet: walletC,
		Amount: 1_250_000_000, Status: domain.BidStatusWon, CreatedAt: 2,
	}
	for _, b := range []*domain.Bid{stale, winner} {
		if err := env.bids.Insert(ctx, b); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	repairs, err := env.engine.AuditClose(ctx, "a1")
	if err != nil {
		t.Fatalf("AuditClose failed: %v", err)
	}
	if repairs != 2 {
		t.Errorf("repairs = %d, want 2 (status + refund)", repairs)
	}

	got, _ := env.bids.GetByID(ctx, "b1")
	if got.Status != domain.BidStatusOutbid {
		t.Errorf("stale bid status = %q, want outbid", got.Status)
	}
	if _, err := env.refunds.GetByBid(ctx, "b1"); err != nil {
		t.Errorf("expected refund for stale bid: %v", err)
	}

	// The winner never gets a refund.
	if _, err := env.refunds.GetByBid(ctx, "b2"); err == nil {
		t.Error("winner must not be refunded")
	}

	// Audit is idempotent.
	repairs, err = env.engine.AuditClose(ctx, "a1")
	if err != nil {
		t.Fatalf("second AuditClose failed: %v", err)
	}
	if repairs != 0 {
		t.Errorf("second audit repairs = %d, want 0", repairs)
	}
}

func TestEngine_AuditClose_RejectsActiveAuction(t *testing.T) {
	env := newAuctionEnv(1_000)
	env.seedAuction(t, "a1", 1_000_000_000, nil, 10_000)

	_, err := env.engine.AuditClose(context.Background(), "a1")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
