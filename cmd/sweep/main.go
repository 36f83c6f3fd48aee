// Package main runs one auction expiry sweep and exits. With -dry-run it
// only reports what the sweep would do.
package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	"solana-fraction-market/internal/auction"
	"solana-fraction-market/internal/config"
	"solana-fraction-market/internal/logging"
	"solana-fraction-market/internal/settlement"
	"solana-fraction-market/internal/storage/migrations"
	pgstore "solana-fraction-market/internal/storage/postgres"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "count expired auctions without closing them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatal("run postgres migrations", zap.Error(err))
	}

	auctionStore := pgstore.NewAuctionStore(pool)
	bidStore := pgstore.NewBidStore(pool)
	refundStore := pgstore.NewRefundStore(pool)

	settler := settlement.NewProcessor(
		pgstore.NewAgreementStore(pool),
		pgstore.NewSettlementStore(pool),
		pgstore.NewFeePeriodStore(pool),
		nil, cfg.PlatformWallet, logger,
	)

	engine := auction.NewEngine(auctionStore, bidStore, refundStore, settler, nil, nil, logger)

	res, err := engine.SweepExpired(ctx, *dryRun)
	if err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}

	logger.Info("sweep finished",
		zap.Bool("dry_run", *dryRun),
		zap.Int("processed", res.Processed),
		zap.Int("sold", res.Sold),
		zap.Int("ended", res.Ended),
		zap.Int("failed", res.Failed))
}
