// Package main runs one revenue collection pass and exits. -kind selects
// sale fees, trading fees, or both.
package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	"solana-fraction-market/internal/config"
	"solana-fraction-market/internal/logging"
	"solana-fraction-market/internal/revenue"
	"solana-fraction-market/internal/solana"
	"solana-fraction-market/internal/storage/migrations"
	pgstore "solana-fraction-market/internal/storage/postgres"

	chstore "solana-fraction-market/internal/storage/clickhouse"
)

func main() {
	kind := flag.String("kind", revenue.KindAll, "collection kind: sale_fees, trading_fees, or all")
	token := flag.String("token", "", "restrict collection to one token id")
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

	var snapshots revenue.SnapshotSink
	if cfg.ClickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			logger.Fatal("run clickhouse migrations", zap.Error(err))
		}
		defer chConn.Close()
		snapshots = chstore.NewFeeSnapshotStore(chConn)
	}

	chain := solana.NewHTTPClient(cfg.SolanaRPCURL)

	collector := revenue.NewCollector(
		pgstore.NewSaleStore(pool),
		pgstore.NewSettlementStore(pool),
		pgstore.NewFeePeriodStore(pool),
		pgstore.NewAgreementStore(pool),
		revenue.NewChainFeeSource(chain, nil),
		snapshots,
		cfg.PlatformWallet,
		logger,
	)

	res, err := collector.Collect(ctx, *kind, *token)
	if err != nil {
		logger.Fatal("collection failed", zap.Error(err))
	}

	logger.Info("collection finished",
		zap.String("kind", *kind),
		zap.String("token", *token),
		zap.Int64("amount_collected", res.AmountCollected),
		zap.Int("count", res.Count),
		zap.Int("periods_closed", res.PeriodsClosed))
}
