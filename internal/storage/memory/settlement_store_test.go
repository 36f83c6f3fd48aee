package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

func settlementFixtures(saleID string) (*domain.Sale, *domain.PlatformRevenue, *domain.FeeLedgerEntry, *domain.TokenOwnership) {
	sale := &domain.Sale{
		SaleID:       saleID,
		TokenID:      "tok1",
		SellerID:     "seller1",
		BuyerID:      "buyer1",
		SalePrice:    10_000_000_000,
		PlatformFee:  1_000_000_000,
		SellerAmount: 9_000_000_000,
		Source:       domain.SaleSourceAuction,
		SourceID:     "a1",
		Status:       domain.SaleStatusCompleted,
		FeeCollected: true,
		CreatedAt:    1,
	}
	revenue := &domain.PlatformRevenue{
		RevenueID:   "rev-" + saleID,
		RevenueType: domain.RevenueTypeSaleFee,
		Amount:      1_000_000_000,
		SourceID:    saleID,
		TokenID:     "tok1",
		Status:      domain.RevenueStatusCollected,
		CreatedAt:   1,
	}
	accrual := &domain.FeeLedgerEntry{
		EntryID:           "led-" + saleID,
		TokenID:           "tok1",
		EntryType:         domain.LedgerEntryAccrual,
		BeneficiaryKind:   domain.BeneficiaryPlatform,
		BeneficiaryWallet: "treasury",
		Amount:            1_000_000_000,
		CreatedAt:         1,
	}
	owner := &domain.TokenOwnership{TokenID: "tok1", OwnerID: "buyer1", UpdatedAt: 1}
	return sale, revenue, accrual, owner
}

func TestSettlementStore_Record(t *testing.T) {
	sales := NewSaleStore()
	revenue := NewRevenueStore()
	ledger := NewLedgerStore()
	ownership := NewOwnershipStore()
	store := NewSettlementStore(sales, revenue, ledger, ownership)
	ctx := context.Background()

	sale, rev, accrual, owner := settlementFixtures("sale1")
	if err := store.Record(ctx, sale, rev, accrual, owner); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if _, err := sales.GetByID(ctx, "sale1"); err != nil {
		t.Errorf("Sale missing after settlement: %v", err)
	}
	entries, _ := ledger.GetByToken(ctx, "tok1")
	if len(entries) != 1 || entries[0].Amount != 1_000_000_000 {
		t.Errorf("Expected one platform accrual of 1 SOL")
	}
	owner, err := ownership.GetOwner(ctx, "tok1")
	if err != nil || owner.OwnerID != "buyer1" {
		t.Errorf("Ownership not transferred to buyer1: %v", err)
	}
}

func TestSettlementStore_RejectsBrokenFeeSplit(t *testing.T) {
	store := NewSettlementStore(NewSaleStore(), NewRevenueStore(), NewLedgerStore(), NewOwnershipStore())
	ctx := context.Background()

	sale, revenue, accrual, owner := settlementFixtures("sale1")
	sale.PlatformFee = 999 // fee + seller != price

	if err := store.Record(ctx, sale, revenue, accrual, owner); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for broken split, got %v", err)
	}
}

func TestSettlementStore_NoPartialApplication(t *testing.T) {
	sales := NewSaleStore()
	revenue := NewRevenueStore()
	ledger := NewLedgerStore()
	ownership := NewOwnershipStore()
	store := NewSettlementStore(sales, revenue, ledger, ownership)
	ctx := context.Background()

	// Pre-existing ledger entry forces the third write to fail.
	sale, rev, accrual, owner := settlementFixtures("sale1")
	if err := ledger.Append(ctx, accrual); err != nil {
		t.Fatalf("Seed append failed: %v", err)
	}

	if err := store.Record(ctx, sale, rev, accrual, owner); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	// Everything the settlement wrote must have been unwound.
	if _, err := sales.GetByID(ctx, "sale1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Sale was left behind after failed settlement")
	}
	if rows, _ := revenue.GetBySource(ctx, "sale1"); len(rows) != 0 {
		t.Errorf("Revenue row was left behind after failed settlement")
	}
	if _, err := ownership.GetOwner(ctx, "tok1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Ownership was updated despite failed settlement")
	}
}

func TestSettlementStore_CollectSaleFee(t *testing.T) {
	sales := NewSaleStore()
	revenue := NewRevenueStore()
	ledger := NewLedgerStore()
	store := NewSettlementStore(sales, revenue, ledger, NewOwnershipStore())
	ctx := context.Background()

	sale, _, _, _ := settlementFixtures("sale1")
	sale.FeeCollected = false
	if err := sales.Insert(ctx, sale); err != nil {
		t.Fatalf("seed sale failed: %v", err)
	}

	accrual := accrualEntry("led1", "tok1", "treasury", 1_000_000_000)
	rev := &domain.PlatformRevenue{
		RevenueID:   "rev1",
		RevenueType: domain.RevenueTypeSaleFee,
		Amount:      1_000_000_000,
		SourceID:    "sale1",
		TokenID:     "tok1",
		Status:      domain.RevenueStatusCollected,
		CreatedAt:   1,
	}
	if err := store.CollectSaleFee(ctx, "sale1", accrual, rev); err != nil {
		t.Fatalf("CollectSaleFee failed: %v", err)
	}

	got, _ := sales.GetByID(ctx, "sale1")
	if !got.FeeCollected {
		t.Error("sale not marked collected")
	}
	entries, _ := ledger.GetByToken(ctx, "tok1")
	if len(entries) != 1 || entries[0].Amount != 1_000_000_000 {
		t.Errorf("expected one accrual of 1 SOL, got %v", entries)
	}

	// Replay is a conflict with nothing written.
	replay := accrualEntry("led2", "tok1", "treasury", 1_000_000_000)
	if err := store.CollectSaleFee(ctx, "sale1", replay, rev); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("Expected ErrConflict on replay, got %v", err)
	}

	if err := store.CollectSaleFee(ctx, "missing", accrual, rev); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing sale, got %v", err)
	}
}

func TestSettlementStore_CollectSaleFee_NoPartialApplication(t *testing.T) {
	sales := NewSaleStore()
	revenue := NewRevenueStore()
	ledger := NewLedgerStore()
	store := NewSettlementStore(sales, revenue, ledger, NewOwnershipStore())
	ctx := context.Background()

	sale, _, _, _ := settlementFixtures("sale1")
	sale.FeeCollected = false
	if err := sales.Insert(ctx, sale); err != nil {
		t.Fatalf("seed sale failed: %v", err)
	}

	// Pre-existing revenue row forces the second write to fail.
	rev := &domain.PlatformRevenue{
		RevenueID:   "rev1",
		RevenueType: domain.RevenueTypeSaleFee,
		Amount:      1_000_000_000,
		SourceID:    "sale1",
		TokenID:     "tok1",
		Status:      domain.RevenueStatusCollected,
		CreatedAt:   1,
	}
	if err := revenue.Insert(ctx, rev); err != nil {
		t.Fatalf("seed revenue failed: %v", err)
	}

	accrual := accrualEntry("led1", "tok1", "treasury", 1_000_000_000)
	if err := store.CollectSaleFee(ctx, "sale1", accrual, rev); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	// The sale stays collectable and the ledger stays empty.
	got, _ := sales.GetByID(ctx, "sale1")
	if got.FeeCollected {
		t.Error("sale marked collected despite failed collection")
	}
	if entries, _ := ledger.GetByToken(ctx, "tok1"); len(entries) != 0 {
		t.Errorf("expected no ledger entries, got %d", len(entries))
	}
}

func TestSettlementStore_ConcurrentWithFeeCollection(t *testing.T) {
	sales := NewSaleStore()
	revenue := NewRevenueStore()
	ledger := NewLedgerStore()
	ownership := NewOwnershipStore()
	settlements := NewSettlementStore(sales, revenue, ledger, ownership)
	periods := NewFeePeriodStore(ledger, revenue)
	ctx := context.Background()

	if err := periods.Insert(ctx, &domain.FeePeriod{
		PeriodID:    "p1",
		TokenID:     "tok1",
		WindowStart: 1,
		WindowEnd:   1 << 40,
		Status:      domain.FeePeriodOpen,
	}); err != nil {
		t.Fatalf("Seed period failed: %v", err)
	}

	const iterations = 200
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			sale, rev, accrual, owner := settlementFixtures(fmt.Sprintf("sale%d", i))
			if err := settlements.Record(ctx, sale, rev, accrual, owner); err != nil {
				t.Errorf("Record %d failed: %v", i, err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			accrual := accrualEntry(fmt.Sprintf("delta-led%d", i), "tok1", "treasury", 100)
			rev := &domain.PlatformRevenue{
				RevenueID:   fmt.Sprintf("delta-rev%d", i),
				RevenueType: domain.RevenueTypeTokenFee,
				Amount:      100,
				SourceID:    "p1",
				TokenID:     "tok1",
				Status:      domain.RevenueStatusCollected,
				CreatedAt:   1,
			}
			if err := periods.CollectDelta(ctx, "p1", int64(i)*100, int64(i+1)*100, accrual, rev); err != nil {
				t.Errorf("CollectDelta %d failed: %v", i, err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("settlement and fee collection deadlocked")
	}
}

func TestSettlementStore_DuplicateSale(t *testing.T) {
	store := NewSettlementStore(NewSaleStore(), NewRevenueStore(), NewLedgerStore(), NewOwnershipStore())
	ctx := context.Background()

	record := func() error {
		sale, rev, accrual, owner := settlementFixtures("sale1")
		return store.Record(ctx, sale, rev, accrual, owner)
	}
	if err := record(); err != nil {
		t.Fatalf("First record failed: %v", err)
	}
	if err := record(); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey on replay, got %v", err)
	}
}
