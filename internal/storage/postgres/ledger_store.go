package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL. The table is
// append-only; no statement here updates an amount or deletes a row.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

const ledgerColumns = `entry_id, token_id, entry_type, beneficiary_kind, beneficiary_wallet, amount, version_id, external_tx_sig, created_at`

// Append adds a ledger entry. Returns ErrDuplicateKey if entry_id exists.
func (s *LedgerStore) Append(ctx context.Context, e *domain.FeeLedgerEntry) error {
	query := `
		INSERT INTO fee_ledger_entries (entry_id, token_id, entry_type, beneficiary_kind, beneficiary_wallet, amount, version_id, external_tx_sig, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		e.EntryID,
		e.TokenID,
		e.EntryType,
		e.BeneficiaryKind,
		e.BeneficiaryWallet,
		e.Amount,
		e.VersionID,
		e.ExternalTxSig,
		e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// GetByToken retrieves all entries for a token, oldest first.
func (s *LedgerStore) GetByToken(ctx context.Context, tokenID string) ([]*domain.FeeLedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM fee_ledger_entries
		WHERE token_id = $1
		ORDER BY created_at ASC, entry_id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get ledger entries by token: %w", err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// GetByBeneficiary retrieves all entries for one (token, wallet) pair,
// oldest first.
func (s *LedgerStore) GetByBeneficiary(ctx context.Context, tokenID, wallet string) ([]*domain.FeeLedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM fee_ledger_entries
		WHERE token_id = $1 AND beneficiary_wallet = $2
		ORDER BY created_at ASC, entry_id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID, wallet)
	if err != nil {
		return nil, fmt.Errorf("get ledger entries by beneficiary: %w", err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows pgx.Rows) ([]*domain.FeeLedgerEntry, error) {
	var entries []*domain.FeeLedgerEntry

	for rows.Next() {
		var e domain.FeeLedgerEntry

		err := rows.Scan(
			&e.EntryID,
			&e.TokenID,
			&e.EntryType,
			&e.BeneficiaryKind,
			&e.BeneficiaryWallet,
			&e.Amount,
			&e.VersionID,
			&e.ExternalTxSig,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry row: %w", err)
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entry rows: %w", err)
	}

	return entries, nil
}
