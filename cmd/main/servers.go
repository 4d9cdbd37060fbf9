package main

import (
	"context"
	"time"

	"portfolio-dashboard/src/grpc_control"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/scheduler"
	"portfolio-dashboard/src/server"
)

const shutdownTimeout = 10 * time.Second

// -----------------------------------------------------------------------------

// serve starts the servers and the scheduler, bootstraps the caches in the
// background and blocks until ctx ends.
func (a *app) serve(ctx context.Context) error {
	cfg := a.config.MConfig

	srv := server.NewAPIServer(cfg, server.Services{
		Prices:    a.prices,
		History:   a.history,
		Refresher: a.coordinator,
		Pipeline:  a.pipeline,
		Changes:   a.tracker,
		Valuator:  a.pricer,
	}, logger.NewLogger(cfg, "APIServer"))
	a.coordinator.Events = srv.Hub

	control := grpc_control.NewControlService(cfg, logger.NewLogger(cfg, "ControlService"))
	sched := scheduler.NewScheduler(cfg, a.prices, a.history, a.coordinator, logger.NewLogger(cfg, "Scheduler"))
	if err := sched.RegisterAll(); err != nil {
		return err
	}

	errs := make(chan error, 2)
	go func() { errs <- srv.Start(ctx) }()
	go func() { errs <- control.ListenAndServe(ctx) }()

	sched.Start(ctx)
	control.SetRefreshServing(cfg.Refresh.RefreshCron != "")

	go a.bootstrap(ctx, control)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down")
	case runErr = <-errs:
		a.logger.Error("Server stopped: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	sched.Stop()
	control.Stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		a.logger.Warning("HTTP shutdown: %v", err)
	}
	return runErr
}

// -----------------------------------------------------------------------------

// bootstrap seeds the historical cache from the current snapshot, picks up
// ledger changes made while the process was down and, when configured, runs
// a first refresh. The cache is served from whatever is loaded meanwhile.
func (a *app) bootstrap(ctx context.Context, control *grpc_control.ControlService) {
	a.coordinator.Bootstrap(ctx)

	if res := a.pipeline.Reprocess(ctx, false); res.Processed {
		a.logger.Info("Processed ledger changes into snapshot %s", res.SnapshotID)
	} else if a.config.Refresh.RefreshOnStart {
		a.coordinator.RefreshPortfolioCache(ctx)
	}

	control.SetCacheServing(true)
}
