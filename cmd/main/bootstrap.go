package main

import (
	"portfolio-dashboard/src/cache"
	"portfolio-dashboard/src/config"
	"portfolio-dashboard/src/coordinator"
	"portfolio-dashboard/src/currency"
	datasource "portfolio-dashboard/src/data_source"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/orchestrator"
	"portfolio-dashboard/src/portfolio"
	"portfolio-dashboard/src/tracker"
	"portfolio-dashboard/src/utils"
)

// app is the dependency root of the binary.
type app struct {
	config *config.Config
	logger *logger.Logger

	store     interfaces.IStore
	providers *datasource.ProviderChain
	calendar  *utils.TradingCalendar
	fx        *currency.Service

	prices  *cache.PriceCache
	history *cache.HistoricalCache
	tracker *tracker.FileChangeTracker

	snapshots   *portfolio.SnapshotStore
	orch        *orchestrator.BatchFetchOrchestrator
	coordinator *coordinator.RefreshCoordinator
	pipeline    *coordinator.LedgerPipeline
	pricer      *coordinator.Pricer
}

// -----------------------------------------------------------------------------

// buildApp wires every component and loads the persisted cache state.
func buildApp(conf *config.Config, appLogger *logger.Logger) (*app, error) {
	cfg := conf.MConfig

	store, err := setupStore(cfg)
	if err != nil {
		return nil, err
	}
	cal, err := setupCalendar(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	providers, err := setupProviders(cfg, appLogger, setupNetwork(cfg))
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{config: conf, logger: appLogger, store: store, providers: providers, calendar: cal}

	a.prices = cache.NewPriceCache(cfg, store, logger.NewLogger(cfg, "PriceCache"))
	a.prices.Load()
	a.history = cache.NewHistoricalCache(store, cal, logger.NewLogger(cfg, "HistoricalCache"))
	a.history.Load()
	a.tracker = tracker.NewFileChangeTracker(cfg.Ledgers, store, logger.NewLogger(cfg, "FileChangeTracker"))
	a.tracker.Load()

	a.fx = currency.NewService(cfg, providers, logger.NewLogger(cfg, "CurrencyService"))
	a.snapshots = portfolio.NewSnapshotStore(cfg.Portfolio.HoldingsPath, logger.NewLogger(cfg, "SnapshotStore"))
	scanner := portfolio.NewLedgerSymbolScanner(a.snapshots, a.tracker, logger.NewLogger(cfg, "LedgerSymbolScanner"))
	processor := portfolio.NewPassthroughProcessor(a.snapshots, logger.NewLogger(cfg, "TradeProcessor"))

	a.orch = orchestrator.NewBatchFetchOrchestrator(cfg, providers, scanner, a.history, cal, logger.NewLogger(cfg, "BatchFetchOrchestrator"))
	a.coordinator = coordinator.NewRefreshCoordinator(cfg, a.snapshots, a.prices, a.orch, providers, a.fx, logger.NewLogger(cfg, "RefreshCoordinator"))
	a.pipeline = coordinator.NewLedgerPipeline(a.tracker, processor, a.snapshots, a.coordinator, utils.NewRequestQueue(), logger.NewLogger(cfg, "LedgerPipeline"))
	a.pricer = coordinator.NewPricer(a.prices, a.fx, a.snapshots)

	appLogger.Info("Loaded %d cached prices, %d cached series, %d tracked ledgers",
		len(a.prices.GetAllSymbols()), a.history.GetStats().Entries, len(a.tracker.Tracked()))
	return a, nil
}

// -----------------------------------------------------------------------------

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warning("Closing store: %v", err)
	}
}
