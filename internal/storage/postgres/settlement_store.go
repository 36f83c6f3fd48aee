package postgres

import (
	"context"
	"fmt"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// SettlementStore implements storage.SettlementStore using PostgreSQL. The
// four settlement writes commit in one transaction; any failure rolls back
// all of them.
type SettlementStore struct {
	pool *Pool
}

// NewSettlementStore creates a new SettlementStore.
func NewSettlementStore(pool *Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettlementStore = (*SettlementStore)(nil)

// Record commits the sale row, the platform revenue row, the platform accrual
// ledger entry, and the ownership update as one atomic unit.
func (s *SettlementStore) Record(ctx context.Context, sale *domain.Sale, revenue *domain.PlatformRevenue, accrual *domain.FeeLedgerEntry, owner *domain.TokenOwnership) error {
	if sale == nil || revenue == nil || accrual == nil || owner == nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO sales (
			sale_id, token_id, seller_id, buyer_id, sale_price, platform_fee, seller_amount,
			source, source_id, status, agreement_version_id, fee_collected, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		saleArgs(sale)...,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert settlement sale: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO platform_revenue (revenue_id, revenue_type, amount, source_id, token_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		revenue.RevenueID, revenue.RevenueType, revenue.Amount, revenue.SourceID,
		revenue.TokenID, revenue.Status, revenue.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert settlement revenue: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO fee_ledger_entries (entry_id, token_id, entry_type, beneficiary_kind, beneficiary_wallet, amount, version_id, external_tx_sig, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		accrual.EntryID, accrual.TokenID, accrual.EntryType, accrual.BeneficiaryKind,
		accrual.BeneficiaryWallet, accrual.Amount, accrual.VersionID, accrual.ExternalTxSig, accrual.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append settlement accrual: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO token_ownership (token_id, owner_id, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (token_id) DO UPDATE SET owner_id = EXCLUDED.owner_id, updated_at = EXCLUDED.updated_at`,
		owner.TokenID, owner.OwnerID, owner.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update settlement ownership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CollectSaleFee marks the sale's fee collected and writes the accrual and
// revenue rows in one transaction. The conditional update on fee_collected is
// the idempotency gate; a sale already collected returns ErrConflict with
// nothing written.
func (s *SettlementStore) CollectSaleFee(ctx context.Context, saleID string, accrual *domain.FeeLedgerEntry, revenue *domain.PlatformRevenue) error {
	if accrual == nil || revenue == nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE sales SET fee_collected = TRUE WHERE sale_id = $1 AND fee_collected = FALSE`,
		saleID,
	)
	if err != nil {
		return fmt.Errorf("mark sale fee collected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sales WHERE sale_id = $1)`, saleID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check sale exists: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO fee_ledger_entries (entry_id, token_id, entry_type, beneficiary_kind, beneficiary_wallet, amount, version_id, external_tx_sig, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		accrual.EntryID, accrual.TokenID, accrual.EntryType, accrual.BeneficiaryKind,
		accrual.BeneficiaryWallet, accrual.Amount, accrual.VersionID, accrual.ExternalTxSig, accrual.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append collection accrual: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO platform_revenue (revenue_id, revenue_type, amount, source_id, token_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		revenue.RevenueID, revenue.RevenueType, revenue.Amount, revenue.SourceID,
		revenue.TokenID, revenue.Status, revenue.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert collection revenue: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
