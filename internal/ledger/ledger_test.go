package ledger

import (
	"context"
	"testing"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage/memory"
)

func entry(id, entryType string, amount int64) *domain.FeeLedgerEntry {
	return &domain.FeeLedgerEntry{
		EntryID:           id,
		TokenID:           "tok1",
		EntryType:         entryType,
		BeneficiaryKind:   domain.BeneficiaryEarner,
		BeneficiaryWallet: "walletX",
		Amount:            amount,
		CreatedAt:         1,
	}
}

func TestService_Owed(t *testing.T) {
	store := memory.NewLedgerStore()
	svc := NewService(store)
	ctx := context.Background()

	entries := []*domain.FeeLedgerEntry{
		entry("e1", domain.LedgerEntryAccrual, 1_000_000),
		entry("e2", domain.LedgerEntryAccrual, 500_000),
		entry("e3", domain.LedgerEntryPayoutToEarner, 600_000),
	}
	for _, e := range entries {
		if err := svc.Append(ctx, e); err != nil {
			t.Fatalf("Append %s failed: %v", e.EntryID, err)
		}
	}

	owed, err := svc.Owed(ctx, "tok1", "walletX")
	if err != nil {
		t.Fatalf("Owed failed: %v", err)
	}
	if owed != 900_000 {
		t.Errorf("Owed = %d, want 900000", owed)
	}
}

func TestService_Owed_EmptyHistory(t *testing.T) {
	svc := NewService(memory.NewLedgerStore())

	owed, err := svc.Owed(context.Background(), "tok1", "walletX")
	if err != nil {
		t.Fatalf("Owed failed: %v", err)
	}
	if owed != 0 {
		t.Errorf("Owed = %d, want 0", owed)
	}
}

func TestService_Owed_IgnoresOtherBeneficiaries(t *testing.T) {
	store := memory.NewLedgerStore()
	svc := NewService(store)
	ctx := context.Background()

	mine := entry("e1", domain.LedgerEntryAccrual, 700_000)
	theirs := entry("e2", domain.LedgerEntryAccrual, 300_000)
	theirs.BeneficiaryWallet = "walletY"

	if err := svc.Append(ctx, mine); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := svc.Append(ctx, theirs); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	owed, err := svc.Owed(ctx, "tok1", "walletX")
	if err != nil {
		t.Fatalf("Owed failed: %v", err)
	}
	if owed != 700_000 {
		t.Errorf("Owed = %d, want 700000", owed)
	}
}

func TestBalance_NeverCountsUnknownTypes(t *testing.T) {
	entries := []*domain.FeeLedgerEntry{
		entry("e1", domain.LedgerEntryAccrual, 100),
		entry("e2", "SOMETHING_ELSE", 50),
	}

	if got := Balance(entries); got != 100 {
		t.Errorf("Balance = %d, want 100", got)
	}
}
