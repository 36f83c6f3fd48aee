// Package revenue runs the two platform fee collection passes: sale fees on
// completed sales that settlement did not collect, and the platform's share
// of observed on-chain trading fees per open fee period. Both passes are
// safely re-runnable; a second run with no new activity collects nothing.
package revenue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/settlement"
	"solana-fraction-market/internal/storage"
)

// Collection kinds accepted by Collect.
const (
	KindSaleFees    = "sale_fees"
	KindTradingFees = "trading_fees"
	KindAll         = "all"
)

// FeeSource observes a token's lifetime trading fees on chain.
type FeeSource interface {
	LifetimeFees(ctx context.Context, tokenID string) (int64, error)
}

// SnapshotSink mirrors trading-fee observations to an analytics store.
type SnapshotSink interface {
	InsertSnapshot(ctx context.Context, s *domain.FeeSnapshot) error
}

// Result summarizes one collection run.
type Result struct {
	AmountCollected int64 // lamports accrued to the platform
	Count           int   // sales or periods that produced an accrual
	PeriodsClosed   int
}

// Collector executes the fee collection passes.
type Collector struct {
	sales       storage.SaleStore
	settlements storage.SettlementStore
	periods     storage.FeePeriodStore
	agreements  storage.AgreementStore
	feeSource   FeeSource
	snapshots   SnapshotSink
	logger      *zap.Logger

	platformWallet string
	now            func() int64 // unix ms
}

// NewCollector creates a collector. snapshots may be nil to skip the
// analytics mirror; feeSource may be nil when trading-fee collection is not
// configured.
func NewCollector(
	sales storage.SaleStore,
	settlements storage.SettlementStore,
	periods storage.FeePeriodStore,
	agreements storage.AgreementStore,
	feeSource FeeSource,
	snapshots SnapshotSink,
	platformWallet string,
	logger *zap.Logger,
) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		sales:          sales,
		settlements:    settlements,
		periods:        periods,
		agreements:     agreements,
		feeSource:      feeSource,
		snapshots:      snapshots,
		logger:         logger,
		platformWallet: platformWallet,
		now:            func() int64 { return time.Now().UnixMilli() },
	}
}

// Collect runs the pass selected by kind and merges the results. An empty
// tokenID collects across all tokens; otherwise only that token's sales and
// periods are touched.
func (c *Collector) Collect(ctx context.Context, kind, tokenID string) (Result, error) {
	switch kind {
	case KindSaleFees:
		return c.CollectSaleFees(ctx, tokenID)
	case KindTradingFees:
		return c.CollectTradingFees(ctx, tokenID)
	case KindAll:
		saleRes, err := c.CollectSaleFees(ctx, tokenID)
		if err != nil {
			return saleRes, err
		}
		tradeRes, err := c.CollectTradingFees(ctx, tokenID)
		saleRes.AmountCollected += tradeRes.AmountCollected
		saleRes.Count += tradeRes.Count
		saleRes.PeriodsClosed = tradeRes.PeriodsClosed
		return saleRes, err
	default:
		return Result{}, domain.Validationf("unknown collection kind %q", kind)
	}
}

// CollectSaleFees scans completed sales whose fee was never collected and
// collects each one through the settlement store, which flips the
// fee_collected flag and writes the accrual plus the sale_fee revenue row in
// one unit. The flip is conditional, so a sale is collected at most once no
// matter how many passes race over it.
func (c *Collector) CollectSaleFees(ctx context.Context, tokenID string) (Result, error) {
	uncollected, err := c.sales.GetUncollected(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list uncollected sales: %w", err)
	}

	var res Result
	for _, sale := range uncollected {
		if tokenID != "" && sale.TokenID != tokenID {
			continue
		}
		fee := sale.PlatformFee
		if fee <= 0 {
			fee = c.resolveFee(ctx, sale)
		}
		if fee <= 0 {
			continue
		}

		nowMS := c.now()
		err := c.settlements.CollectSaleFee(ctx, sale.SaleID,
			&domain.FeeLedgerEntry{
				EntryID:           uuid.NewString(),
				TokenID:           sale.TokenID,
				EntryType:         domain.LedgerEntryAccrual,
				BeneficiaryKind:   domain.BeneficiaryPlatform,
				BeneficiaryWallet: c.platformWallet,
				Amount:            fee,
				VersionID:         sale.AgreementVersionID,
				CreatedAt:         nowMS,
			},
			&domain.PlatformRevenue{
				RevenueID:   uuid.NewString(),
				RevenueType: domain.RevenueTypeSaleFee,
				Amount:      fee,
				SourceID:    sale.SaleID,
				TokenID:     sale.TokenID,
				Status:      domain.RevenueStatusCollected,
				CreatedAt:   nowMS,
			})
		switch {
		case errors.Is(err, storage.ErrConflict):
			// A concurrent pass already collected this sale.
			continue
		case err != nil:
			return res, fmt.Errorf("collect sale fee for %s: %w", sale.SaleID, err)
		}

		res.AmountCollected += fee
		res.Count++
	}

	if res.Count > 0 {
		c.logger.Info("sale fees collected",
			zap.Int("sales", res.Count), zap.Int64("amount", res.AmountCollected))
	}
	return res, nil
}

// CollectTradingFees observes lifetime trading fees for every open fee
// period, accrues the platform's bps share of the delta since the last pass,
// and closes periods whose window has elapsed. The snapshot advance and the
// accrual it produced commit together, so the same delta is never applied
// twice. An empty tokenID covers every open period.
func (c *Collector) CollectTradingFees(ctx context.Context, tokenID string) (Result, error) {
	if c.feeSource == nil {
		return Result{}, nil
	}

	open, err := c.periods.GetOpen(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list open fee periods: %w", err)
	}

	var res Result
	nowMS := c.now()
	for _, period := range open {
		if tokenID != "" && period.TokenID != tokenID {
			continue
		}
		lifetime, err := c.feeSource.LifetimeFees(ctx, period.TokenID)
		if err != nil {
			c.logger.Warn("trading fee observation failed",
				zap.String("token_id", period.TokenID), zap.Error(err))
			continue
		}
		if lifetime < period.LastRecordedFees {
			c.logger.Warn("lifetime fees regressed, skipping period",
				zap.String("period_id", period.PeriodID),
				zap.Int64("observed", lifetime),
				zap.Int64("last_recorded", period.LastRecordedFees))
			continue
		}

		delta := lifetime - period.LastRecordedFees
		if delta > 0 {
			share := c.platformShare(ctx, period.TokenID, delta)
			if share > 0 {
				err := c.periods.CollectDelta(ctx, period.PeriodID, period.LastRecordedFees, lifetime,
					&domain.FeeLedgerEntry{
						EntryID:           uuid.NewString(),
						TokenID:           period.TokenID,
						EntryType:         domain.LedgerEntryAccrual,
						BeneficiaryKind:   domain.BeneficiaryPlatform,
						BeneficiaryWallet: c.platformWallet,
						Amount:            share,
						CreatedAt:         nowMS,
					},
					&domain.PlatformRevenue{
						RevenueID:   uuid.NewString(),
						RevenueType: domain.RevenueTypeTokenFee,
						Amount:      share,
						SourceID:    period.PeriodID,
						TokenID:     period.TokenID,
						Status:      domain.RevenueStatusCollected,
						CreatedAt:   nowMS,
					})
				switch {
				case errors.Is(err, storage.ErrConflict):
					// A concurrent pass already applied this delta.
					continue
				case err != nil:
					c.logger.Error("trading fee delta not collected",
						zap.String("period_id", period.PeriodID), zap.Error(err))
					continue
				}
				res.AmountCollected += share
				res.Count++
			}
			c.mirrorSnapshot(ctx, period, lifetime, delta, nowMS)
		}

		if nowMS >= period.WindowEnd {
			if err := c.periods.Close(ctx, period.PeriodID); err != nil {
				if !errors.Is(err, storage.ErrConflict) {
					c.logger.Error("fee period not closed",
						zap.String("period_id", period.PeriodID), zap.Error(err))
				}
				continue
			}
			res.PeriodsClosed++
		}
	}

	if res.Count > 0 || res.PeriodsClosed > 0 {
		c.logger.Info("trading fees collected",
			zap.Int("periods", res.Count),
			zap.Int64("amount", res.AmountCollected),
			zap.Int("closed", res.PeriodsClosed))
	}
	return res, nil
}

// resolveFee derives the platform fee for a sale recorded without one, using
// the agreement version in force now.
func (c *Collector) resolveFee(ctx context.Context, sale *domain.Sale) int64 {
	platformBps := domain.DefaultPlatformFeeBps
	version, err := c.agreements.GetOpenVersion(ctx, sale.TokenID)
	switch {
	case err == nil:
		platformBps = version.PlatformFeeBps
	case errors.Is(err, storage.ErrNotFound):
	default:
		c.logger.Warn("agreement lookup failed, using default fee",
			zap.String("token_id", sale.TokenID), zap.Error(err))
	}
	fee, _ := settlement.SplitFee(sale.SalePrice, platformBps)
	return fee
}

func (c *Collector) platformShare(ctx context.Context, tokenID string, delta int64) int64 {
	platformBps := domain.DefaultPlatformFeeBps
	version, err := c.agreements.GetOpenVersion(ctx, tokenID)
	switch {
	case err == nil:
		platformBps = version.PlatformFeeBps
	case errors.Is(err, storage.ErrNotFound):
	default:
		c.logger.Warn("agreement lookup failed, using default share",
			zap.String("token_id", tokenID), zap.Error(err))
	}
	return delta * int64(platformBps) / domain.TotalBps
}

func (c *Collector) mirrorSnapshot(ctx context.Context, period *domain.FeePeriod, lifetime, delta, nowMS int64) {
	if c.snapshots == nil {
		return
	}
	err := c.snapshots.InsertSnapshot(ctx, &domain.FeeSnapshot{
		TokenID:      period.TokenID,
		PeriodID:     period.PeriodID,
		LifetimeFees: lifetime,
		Delta:        delta,
		ObservedAt:   nowMS,
	})
	if err != nil {
		c.logger.Warn("fee snapshot mirror failed",
			zap.String("period_id", period.PeriodID), zap.Error(err))
	}
}
