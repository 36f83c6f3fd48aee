package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/storage"
)

// SaleStore implements storage.SaleStore using PostgreSQL.
type SaleStore struct {
	pool *Pool
}

// NewSaleStore creates a new SaleStore.
func NewSaleStore(pool *Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SaleStore = (*SaleStore)(nil)

const saleColumns = `
	sale_id, token_id, seller_id, buyer_id, sale_price, platform_fee, seller_amount,
	source, source_id, status, agreement_version_id, fee_collected, created_at
`

// Insert adds a sale. Returns ErrDuplicateKey if sale_id exists.
func (s *SaleStore) Insert(ctx context.Context, sale *domain.Sale) error {
	query := `
		INSERT INTO sales (
			sale_id, token_id, seller_id, buyer_id, sale_price, platform_fee, seller_amount,
			source, source_id, status, agreement_version_id, fee_collected, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query, saleArgs(sale)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// GetByID retrieves a sale. Returns ErrNotFound if not exists.
func (s *SaleStore) GetByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE sale_id = $1`

	sale, err := scanSale(s.pool.QueryRow(ctx, query, saleID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sale by id: %w", err)
	}
	return sale, nil
}

// GetByToken retrieves all sales for a token, newest first.
func (s *SaleStore) GetByToken(ctx context.Context, tokenID string) ([]*domain.Sale, error) {
	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE token_id = $1
		ORDER BY created_at DESC, sale_id DESC
	`

	rows, err := s.pool.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get sales by token: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// GetUncollected retrieves completed sales with fee_collected = false.
func (s *SaleStore) GetUncollected(ctx context.Context) ([]*domain.Sale, error) {
	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE status = 'completed' AND fee_collected = FALSE
		ORDER BY created_at ASC, sale_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get uncollected sales: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// MarkFeeCollected flips fee_collected exactly once. Returns ErrConflict if
// already collected.
func (s *SaleStore) MarkFeeCollected(ctx context.Context, saleID string) error {
	query := `UPDATE sales SET fee_collected = TRUE WHERE sale_id = $1 AND fee_collected = FALSE`

	tag, err := s.pool.Exec(ctx, query, saleID)
	if err != nil {
		return fmt.Errorf("mark sale fee collected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE sale_id = $1)`, saleID).Scan(&exists); err != nil {
			return fmt.Errorf("check sale existence: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

func saleArgs(sale *domain.Sale) []any {
	return []any{
		sale.SaleID,
		sale.TokenID,
		sale.SellerID,
		sale.BuyerID,
		sale.SalePrice,
		sale.PlatformFee,
		sale.SellerAmount,
		sale.Source,
		sale.SourceID,
		sale.Status,
		sale.AgreementVersionID,
		sale.FeeCollected,
		sale.CreatedAt,
	}
}

func scanSale(row pgx.Row) (*domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(
		&sale.SaleID,
		&sale.TokenID,
		&sale.SellerID,
		&sale.BuyerID,
		&sale.SalePrice,
		&sale.PlatformFee,
		&sale.SellerAmount,
		&sale.Source,
		&sale.SourceID,
		&sale.Status,
		&sale.AgreementVersionID,
		&sale.FeeCollected,
		&sale.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func scanSales(rows pgx.Rows) ([]*domain.Sale, error) {
	var sales []*domain.Sale

	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale row: %w", err)
		}
		sales = append(sales, sale)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale rows: %w", err)
	}

	return sales, nil
}
