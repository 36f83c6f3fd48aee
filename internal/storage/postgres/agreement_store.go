package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// AgreementStore implements storage.AgreementStore using PostgreSQL. The
// partial unique index on (token_id) WHERE effective_to IS NULL enforces the
// single-open-version invariant; RotateVersion leans on it to detect races.
type AgreementStore struct {
	pool *Pool
}

// NewAgreementStore creates a new AgreementStore.
func NewAgreementStore(pool *Pool) *AgreementStore {
	return &AgreementStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AgreementStore = (*AgreementStore)(nil)

const versionColumns = `version_id, token_id, platform_fee_bps, effective_from, effective_to`

// GetOpenVersion retrieves the token's open version.
func (s *AgreementStore) GetOpenVersion(ctx context.Context, tokenID string) (*domain.RoyaltyAgreementVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM agreement_versions WHERE token_id = $1 AND effective_to IS NULL`

	var v domain.RoyaltyAgreementVersion
	err := s.pool.QueryRow(ctx, query, tokenID).Scan(
		&v.VersionID,
		&v.TokenID,
		&v.PlatformFeeBps,
		&v.EffectiveFrom,
		&v.EffectiveTo,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get open agreement version: %w", err)
	}
	return &v, nil
}

// GetVersions retrieves all versions for a token, oldest first.
func (s *AgreementStore) GetVersions(ctx context.Context, tokenID string) ([]*domain.RoyaltyAgreementVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM agreement_versions
		WHERE token_id = $1
		ORDER BY effective_from ASC, version_id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get agreement versions: %w", err)
	}
	defer rows.Close()

	var versions []*domain.RoyaltyAgreementVersion
	for rows.Next() {
		var v domain.RoyaltyAgreementVersion
		err := rows.Scan(&v.VersionID, &v.TokenID, &v.PlatformFeeBps, &v.EffectiveFrom, &v.EffectiveTo)
		if err != nil {
			return nil, fmt.Errorf("scan agreement version row: %w", err)
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agreement version rows: %w", err)
	}

	return versions, nil
}

// GetSharesByVersion retrieves the share rows of one version.
func (s *AgreementStore) GetSharesByVersion(ctx context.Context, versionID string) ([]*domain.RoyaltyShare, error) {
	query := `
		SELECT share_id, version_id, earner_wallet, bps
		FROM royalty_shares
		WHERE version_id = $1
		ORDER BY bps DESC, earner_wallet ASC
	`

	rows, err := s.pool.Query(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("get shares by version: %w", err)
	}
	defer rows.Close()

	var shares []*domain.RoyaltyShare
	for rows.Next() {
		var share domain.RoyaltyShare
		if err := rows.Scan(&share.ShareID, &share.VersionID, &share.EarnerWallet, &share.Bps); err != nil {
			return nil, fmt.Errorf("scan share row: %w", err)
		}
		shares = append(shares, &share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share rows: %w", err)
	}

	return shares, nil
}

// RotateVersion closes the open version, inserts the new one with its shares
// and change entry, and re-links versionless ledger entries, all in one
// transaction. If a concurrent rotation slips
// between the close and the insert, the partial unique index rejects the
// second open version and the whole transaction rolls back with ErrConflict.
func (s *AgreementStore) RotateVersion(ctx context.Context, v *domain.RoyaltyAgreementVersion, shares []*domain.RoyaltyShare, change *domain.AgreementChange) error {
	if v == nil || v.VersionID == "" || v.TokenID == "" || change == nil || change.ChangeID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE agreement_versions SET effective_to = $2 WHERE token_id = $1 AND effective_to IS NULL`,
		v.TokenID, v.EffectiveFrom,
	)
	if err != nil {
		return fmt.Errorf("close open agreement version: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO agreement_versions (version_id, token_id, platform_fee_bps, effective_from, effective_to)
		 VALUES ($1, $2, $3, $4, $5)`,
		v.VersionID, v.TokenID, v.PlatformFeeBps, v.EffectiveFrom, v.EffectiveTo,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert agreement version: %w", err)
	}

	for _, share := range shares {
		_, err = tx.Exec(ctx,
			`INSERT INTO royalty_shares (share_id, version_id, earner_wallet, bps) VALUES ($1, $2, $3, $4)`,
			share.ShareID, share.VersionID, share.EarnerWallet, share.Bps,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("insert royalty share: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO agreement_changes (change_id, token_id, version_id, actor_id, reason, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		change.ChangeID, change.TokenID, change.VersionID, change.ActorID, change.Reason, change.Summary, change.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert agreement change: %w", err)
	}

	// Entries accrued before the token had an agreement pick up the new
	// version in the same transaction.
	_, err = tx.Exec(ctx,
		`UPDATE fee_ledger_entries SET version_id = $2 WHERE token_id = $1 AND version_id = ''`,
		v.TokenID, v.VersionID,
	)
	if err != nil {
		return fmt.Errorf("relink unversioned ledger entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetChanges retrieves the change history for a token, oldest first.
func (s *AgreementStore) GetChanges(ctx context.Context, tokenID string) ([]*domain.AgreementChange, error) {
	query := `
		SELECT change_id, token_id, version_id, actor_id, reason, summary, created_at
		FROM agreement_changes
		WHERE token_id = $1
		ORDER BY created_at ASC, change_id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get agreement changes: %w", err)
	}
	defer rows.Close()

	return scanChanges(rows)
}

func scanChanges(rows pgx.Rows) ([]*domain.AgreementChange, error) {
	var changes []*domain.AgreementChange

	for rows.Next() {
		var c domain.AgreementChange
		err := rows.Scan(&c.ChangeID, &c.TokenID, &c.VersionID, &c.ActorID, &c.Reason, &c.Summary, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan agreement change row: %w", err)
		}
		changes = append(changes, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agreement change rows: %w", err)
	}

	return changes, nil
}
