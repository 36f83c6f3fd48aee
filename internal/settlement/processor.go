// Package settlement turns a winning bid or accepted offer into a recorded
// sale, fee split, and ownership change in one atomic unit.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/notify"
	"solana-fraction-market/internal/storage"
)

// DefaultFeeWindow is how long a sale's trading-fee period stays open.
const DefaultFeeWindow = 30 * 24 * time.Hour

// Request carries everything the processor needs to settle one sale.
type Request struct {
	TokenID  string
	SellerID string
	BuyerID  string
	Price    int64  // lamports
	Source   string // auction | offer | direct
	SourceID string
}

// Processor performs sale settlement.
type Processor struct {
	agreements  storage.AgreementStore
	settlements storage.SettlementStore
	periods     storage.FeePeriodStore
	dispatcher  *notify.Dispatcher
	logger      *zap.Logger

	platformWallet string
	feeWindow      time.Duration
	now            func() int64 // unix ms
}

// NewProcessor creates a settlement processor. platformWallet receives the
// platform side of every fee accrual.
func NewProcessor(
	agreements storage.AgreementStore,
	settlements storage.SettlementStore,
	periods storage.FeePeriodStore,
	dispatcher *notify.Dispatcher,
	platformWallet string,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		agreements:     agreements,
		settlements:    settlements,
		periods:        periods,
		dispatcher:     dispatcher,
		logger:         logger,
		platformWallet: platformWallet,
		feeWindow:      DefaultFeeWindow,
		now:            func() int64 { return time.Now().UnixMilli() },
	}
}

// SplitFee computes the platform fee and seller amount for a price under the
// given bps. The fee is floored; the seller receives the exact remainder, so
// any sub-lamport dust lands on the platform side of the comparison and
// fee + sellerAmount == price always holds.
func SplitFee(price int64, platformFeeBps int) (fee, sellerAmount int64) {
	fee = price * int64(platformFeeBps) / domain.TotalBps
	return fee, price - fee
}

// Settle resolves the token's open agreement version, computes the fee split,
// and commits the sale, revenue row, platform accrual, and ownership pointer
// as one unit. The sale is written with its fee already collected; the
// revenue collection job only picks up sales recorded outside this path.
func (p *Processor) Settle(ctx context.Context, req Request) (*domain.Sale, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	platformBps := domain.DefaultPlatformFeeBps
	versionID := ""
	version, err := p.agreements.GetOpenVersion(ctx, req.TokenID)
	switch {
	case err == nil:
		platformBps = version.PlatformFeeBps
		versionID = version.VersionID
	case errors.Is(err, storage.ErrNotFound):
		// No agreement yet, default platform fee applies.
	default:
		return nil, fmt.Errorf("resolve agreement version for %s: %w", req.TokenID, err)
	}

	fee, sellerAmount := SplitFee(req.Price, platformBps)
	nowMS := p.now()

	sale := &domain.Sale{
		SaleID:             uuid.NewString(),
		TokenID:            req.TokenID,
		SellerID:           req.SellerID,
		BuyerID:            req.BuyerID,
		SalePrice:          req.Price,
		PlatformFee:        fee,
		SellerAmount:       sellerAmount,
		Source:             req.Source,
		SourceID:           req.SourceID,
		Status:             domain.SaleStatusCompleted,
		AgreementVersionID: versionID,
		FeeCollected:       true,
		CreatedAt:          nowMS,
	}
	revenue := &domain.PlatformRevenue{
		RevenueID:   uuid.NewString(),
		RevenueType: domain.RevenueTypeSaleFee,
		Amount:      fee,
		SourceID:    sale.SaleID,
		TokenID:     req.TokenID,
		Status:      domain.RevenueStatusCollected,
		CreatedAt:   nowMS,
	}
	accrual := &domain.FeeLedgerEntry{
		EntryID:           uuid.NewString(),
		TokenID:           req.TokenID,
		EntryType:         domain.LedgerEntryAccrual,
		BeneficiaryKind:   domain.BeneficiaryPlatform,
		BeneficiaryWallet: p.platformWallet,
		Amount:            fee,
		VersionID:         versionID,
		CreatedAt:         nowMS,
	}
	owner := &domain.TokenOwnership{
		TokenID:   req.TokenID,
		OwnerID:   req.BuyerID,
		UpdatedAt: nowMS,
	}

	if err := p.settlements.Record(ctx, sale, revenue, accrual, owner); err != nil {
		return nil, fmt.Errorf("record settlement for %s: %w", req.TokenID, err)
	}

	p.logger.Info("sale settled",
		zap.String("sale_id", sale.SaleID),
		zap.String("token_id", req.TokenID),
		zap.String("source", req.Source),
		zap.Int64("price", req.Price),
		zap.Int64("platform_fee", fee))

	p.openFeePeriod(ctx, sale, nowMS)
	p.notifyParties(sale)

	return sale, nil
}

func (p *Processor) validate(req Request) error {
	if req.TokenID == "" || req.SellerID == "" || req.BuyerID == "" {
		return domain.Validationf("token, seller, and buyer are required")
	}
	if req.Price <= 0 {
		return domain.Validationf("sale price must be positive, got %d", req.Price)
	}
	switch req.Source {
	case domain.SaleSourceAuction, domain.SaleSourceOffer, domain.SaleSourceDirect:
	default:
		return domain.Validationf("unknown sale source %q", req.Source)
	}
	if req.BuyerID == req.SellerID {
		return domain.Validationf("buyer and seller cannot be the same participant")
	}
	return nil
}

// openFeePeriod starts the sale's trading-fee window. The settlement itself
// already committed; a failure here loses future trading-fee collection for
// this sale and is logged loudly, but does not unwind the sale.
func (p *Processor) openFeePeriod(ctx context.Context, sale *domain.Sale, nowMS int64) {
	if p.periods == nil {
		return
	}

	period := &domain.FeePeriod{
		PeriodID:         uuid.NewString(),
		SaleID:           sale.SaleID,
		TokenID:          sale.TokenID,
		LastRecordedFees: 0,
		WindowStart:      nowMS,
		WindowEnd:        nowMS + p.feeWindow.Milliseconds(),
		Status:           domain.FeePeriodOpen,
		CreatedAt:        nowMS,
	}
	if err := p.periods.Insert(ctx, period); err != nil {
		p.logger.Error("fee period not opened for settled sale",
			zap.String("sale_id", sale.SaleID),
			zap.String("token_id", sale.TokenID),
			zap.Error(err))
	}
}

func (p *Processor) notifyParties(sale *domain.Sale) {
	if p.dispatcher == nil {
		return
	}
	for _, recipient := range []string{sale.SellerID, sale.BuyerID} {
		p.dispatcher.Publish(domain.Notification{
			Type:        domain.NotifySaleSettled,
			RecipientID: recipient,
			TokenID:     sale.TokenID,
			EntityID:    sale.SaleID,
			Amount:      sale.SalePrice,
		})
	}
}
