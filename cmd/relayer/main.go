package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/sidebet/relayer/cmd/relayer/server"
	"github.com/sidebet/relayer/core"
	"github.com/sidebet/relayer/pkg/config"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	zapLogger, err := buildZapLogger(cfg.IsDevelopment())
	if err != nil {
		log.WithError(err).Fatal("failed to build structured logger")
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := core.NewPgStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("failed to apply schema")
	}

	chain, err := core.NewChainGateway(ctx, cfg.RPCURL, cfg.RelayerPrivateKey, cfg.ChainID, cfg.ChainReadTimeout, cfg.ChainFinalizeTimeout)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize chain gateway")
	}

	metrics := core.NewMetrics()
	syncSvc := core.NewSyncService(store, chain, cfg.FactoryAddress, sugar)
	sigSvc := core.NewSignatureService(store, chain, syncSvc, cfg.MinGlobalThreshold, sugar)
	finSvc := core.NewFinalizationService(store, chain, cfg.MinGlobalThreshold, cfg.MaxProposalAge, sugar)

	scheduler := core.NewScheduler(core.SchedulerConfig{
		MarketSyncInterval:    cfg.MarketSyncInterval,
		DisputeWindowInterval: cfg.DisputeWindowInterval,
		FinalizationInterval:  cfg.FinalizationInterval,
		StaleProposalInterval: cfg.StaleProposalInterval,
		LogCleanupInterval:    cfg.LogCleanupInterval,
		StaleMarketAfter:      cfg.StaleMarketAfter,
		SyncLogRetention:      cfg.SyncLogRetention,
	}, store, syncSvc, finSvc, metrics, sugar)
	scheduler.Start(ctx)

	srv := server.New(cfg, store, chain, sigSvc, syncSvc, finSvc, metrics, sugar)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Router(),
	}

	go func() {
		log.WithField("port", cfg.Port).Info("relayer listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining in-flight requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server did not shut down cleanly within the grace period")
	}
}

func buildZapLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
