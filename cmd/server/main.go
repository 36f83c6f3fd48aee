// Package main runs the marketplace settlement service: auction and offer
// engines behind an admin HTTP surface, plus the background loops that sweep
// expired auctions, expire stale offers, process refunds, collect platform
// revenue, and reconcile pending payouts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-fraction-market/internal/auction"
	"solana-fraction-market/internal/config"
	"solana-fraction-market/internal/domain"
	"solana-fraction-market/internal/ledger"
	"solana-fraction-market/internal/logging"
	"solana-fraction-market/internal/notify"
	"solana-fraction-market/internal/observability"
	"solana-fraction-market/internal/offer"
	"solana-fraction-market/internal/payout"
	"solana-fraction-market/internal/proof"
	"solana-fraction-market/internal/revenue"
	"solana-fraction-market/internal/royalty"
	"solana-fraction-market/internal/settlement"
	"solana-fraction-market/internal/solana"
	"solana-fraction-market/internal/storage/migrations"
	pgstore "solana-fraction-market/internal/storage/postgres"

	chstore "solana-fraction-market/internal/storage/clickhouse"
)

// Server bundles the engines and loops behind one lifecycle.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	auctions  *auction.Engine
	offers    *offer.Engine
	refunds   *auction.RefundWorker
	payouts   *payout.Processor
	collector *revenue.Collector
	royalties *royalty.Service
	ledger    *ledger.Service
}

func main() {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatal("run postgres migrations", zap.Error(err))
	}

	// The analytics mirror is optional; without it trading-fee snapshots
	// stay in Postgres only.
	var snapshots revenue.SnapshotSink
	if cfg.ClickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			logger.Fatal("run clickhouse migrations", zap.Error(err))
		}
		defer chConn.Close()
		snapshots = chstore.NewFeeSnapshotStore(chConn)
	}

	chain, closeChain, err := buildChainClient(ctx, cfg)
	if err != nil {
		logger.Fatal("connect solana", zap.Error(err))
	}
	defer closeChain()

	dispatcher := notify.NewDispatcher(cfg.NotifyBufferSize, logger)
	defer dispatcher.Close()

	srv := buildServer(cfg, logger, pool, chain, dispatcher, snapshots)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	go srv.serveHTTP(ctx)
	srv.runLoops(ctx)

	logger.Info("shutdown complete")
}

// buildChainClient returns an RPC client, confirmed over WebSocket when a WS
// endpoint is configured.
func buildChainClient(ctx context.Context, cfg *config.Config) (solana.Client, func(), error) {
	httpClient := solana.NewHTTPClient(cfg.SolanaRPCURL)
	if cfg.SolanaWSURL == "" {
		return httpClient, func() {}, nil
	}

	ws, err := solana.NewWSConfirmer(ctx, cfg.SolanaWSURL, nil)
	if err != nil {
		return nil, nil, err
	}
	return solana.NewConfirmingClient(httpClient, ws), func() { ws.Close() }, nil
}

func buildServer(cfg *config.Config, logger *zap.Logger, pool *pgstore.Pool, chain solana.Client, dispatcher *notify.Dispatcher, snapshots revenue.SnapshotSink) *Server {
	auctionStore := pgstore.NewAuctionStore(pool)
	bidStore := pgstore.NewBidStore(pool)
	listingStore := pgstore.NewListingStore(pool)
	offerStore := pgstore.NewOfferStore(pool)
	responseStore := pgstore.NewOfferResponseStore(pool)
	saleStore := pgstore.NewSaleStore(pool)
	ledgerStore := pgstore.NewLedgerStore(pool)
	agreementStore := pgstore.NewAgreementStore(pool)
	payoutStore := pgstore.NewPayoutStore(pool)
	periodStore := pgstore.NewFeePeriodStore(pool)
	refundStore := pgstore.NewRefundStore(pool)
	settlementStore := pgstore.NewSettlementStore(pool)

	settler := settlement.NewProcessor(agreementStore, settlementStore, periodStore, dispatcher, cfg.PlatformWallet, logger)
	verifier := proof.NewVerifier(chain)
	ledgerSvc := ledger.NewService(ledgerStore)

	return &Server{
		cfg:    cfg,
		logger: logger,
		auctions: auction.NewEngine(
			auctionStore, bidStore, refundStore, settler, verifier, dispatcher, logger,
		),
		offers: offer.NewEngine(
			listingStore, offerStore, responseStore, settler, verifier, dispatcher, logger,
		),
		refunds: auction.NewRefundWorker(refundStore, bidStore, chain, cfg.EscrowWallet, logger),
		payouts: payout.NewProcessor(payoutStore, ledgerSvc, chain, dispatcher, cfg.TreasuryWallet, logger),
		collector: revenue.NewCollector(
			saleStore, settlementStore, periodStore, agreementStore,
			revenue.NewChainFeeSource(chain, nil), snapshots, cfg.PlatformWallet, logger,
		),
		royalties: royalty.NewService(agreementStore, logger),
		ledger:    ledgerSvc,
	}
}

// runLoops drives the background tickers until the context is canceled.
func (s *Server) runLoops(ctx context.Context) {
	loops := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"auction sweep", s.cfg.SweepInterval, s.sweepAuctions},
		{"offer expiry", s.cfg.OfferExpireInterval, s.expireOffers},
		{"refund processing", s.cfg.RefundInterval, s.processRefunds},
		{"revenue collection", s.cfg.CollectInterval, s.collectRevenue},
		{"payout reconcile", s.cfg.ReconcileInterval, s.reconcilePayouts},
	}

	for _, loop := range loops {
		loop := loop
		go func() {
			s.logger.Info("loop started",
				zap.String("loop", loop.name),
				zap.Duration("interval", loop.interval))

			ticker := time.NewTicker(loop.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					loop.run(ctx)
				}
			}
		}()
	}

	<-ctx.Done()
}

func (s *Server) sweepAuctions(ctx context.Context) {
	res, err := s.auctions.SweepExpired(ctx, false)
	if err != nil {
		s.logger.Error("auction sweep failed", zap.Error(err))
		return
	}
	for i := 0; i < res.Sold; i++ {
		observability.RecordSweep("sold")
	}
	for i := 0; i < res.Ended; i++ {
		observability.RecordSweep("ended")
	}
}

func (s *Server) expireOffers(ctx context.Context) {
	n, err := s.offers.ExpireOffers(ctx)
	if err != nil {
		s.logger.Error("offer expiry failed", zap.Error(err))
		return
	}
	for i := 0; i < n; i++ {
		observability.DefaultMetrics.OffersExpired.Inc()
	}
}

func (s *Server) processRefunds(ctx context.Context) {
	stats, err := s.refunds.ProcessQueued(ctx)
	if err != nil {
		s.logger.Error("refund processing failed", zap.Error(err))
		return
	}
	for i := 0; i < stats.Confirmed; i++ {
		observability.RecordRefund("confirmed")
	}
	for i := 0; i < stats.Failed; i++ {
		observability.RecordRefund("failed")
	}
}

func (s *Server) collectRevenue(ctx context.Context) {
	res, err := s.collector.Collect(ctx, revenue.KindAll, "")
	if err != nil {
		s.logger.Error("revenue collection failed", zap.Error(err))
		return
	}
	observability.DefaultMetrics.LamportsCollected.
		WithLabelValues(revenue.KindAll).Add(float64(res.AmountCollected))
	observability.DefaultMetrics.FeePeriodsClosed.Add(float64(res.PeriodsClosed))
}

func (s *Server) reconcilePayouts(ctx context.Context) {
	resolved, err := s.payouts.ReconcilePending(ctx)
	if err != nil {
		s.logger.Error("payout reconcile failed", zap.Error(err))
		return
	}
	if resolved > 0 {
		s.logger.Info("payouts reconciled", zap.Int("resolved", resolved))
	}
}

// serveHTTP exposes health, metrics, and the admin JSON surface.
func (s *Server) serveHTTP(ctx context.Context) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/payouts", s.handleRequestPayout)
	mux.HandleFunc("/royalties/rotate", s.handleRotateAgreement)
	mux.HandleFunc("/royalties/owed", s.handleOwed)

	server := &http.Server{Addr: s.cfg.HTTPAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("http server error", zap.Error(err))
	}
}

func (s *Server) handleRequestPayout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		TokenID      string `json:"token_id"`
		EarnerWallet string `json:"earner_wallet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	p, err := s.payouts.RequestPayout(r.Context(), req.TokenID, req.EarnerWallet)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	observability.RecordPayout(p.Status)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRotateAgreement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		TokenID        string              `json:"token_id"`
		Shares         []domain.ShareInput `json:"shares"`
		PlatformFeeBps int                 `json:"platform_fee_bps"`
		ActorID        string              `json:"actor_id"`
		Reason         string              `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	version, err := s.royalties.UpdateShares(r.Context(), req.TokenID, req.Shares, req.PlatformFeeBps, req.ActorID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (s *Server) handleOwed(w http.ResponseWriter, r *http.Request) {
	tokenID := r.URL.Query().Get("token_id")
	walletAddr := r.URL.Query().Get("wallet")

	owed, err := s.ledger.Owed(r.Context(), tokenID, walletAddr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": tokenID,
		"wallet":   walletAddr,
		"owed":     owed,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validation   *domain.ValidationError
		conflict     *domain.StateConflictError
		verification *domain.ExternalVerificationError
		funds        *domain.InsufficientFundsError
		infra        *domain.TransientInfraError
	)
	switch {
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &conflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &verification):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.As(err, &funds):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &infra):
		http.Error(w, "service temporarily unavailable, try again later", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
