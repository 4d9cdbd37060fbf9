package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
	"portfolio-dashboard/src/utils"

	"github.com/robfig/cron/v3"
)

type PriceSweeper interface {
	Sweep() (int, error)
}

type HistoryJanitor interface {
	ClearOldEntries(days int) (int, error)
}

type PortfolioRefresher interface {
	RefreshPortfolioCache(ctx context.Context) models.MCoordinatorSummary
}

// Scheduler runs the cache maintenance jobs: the periodic price sweep, the
// one-shot retention pass after start and the optional scheduled refresh.
type Scheduler struct {
	Cron      *cron.Cron
	Prices    PriceSweeper
	History   HistoryJanitor
	Refresher PortfolioRefresher
	Config    models.MCacheConfig
	Refresh   models.MRefreshConfig
	Logger    *logger.Logger

	mu          sync.Mutex
	ctx         context.Context
	housekeeper *time.Timer
}

// -----------------------------------------------------------------------------

func NewScheduler(cfg *models.MConfig, prices PriceSweeper, history HistoryJanitor, refresher PortfolioRefresher, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewLogger(cfg, "Scheduler")
	}
	cl := cronLogger{log}
	return &Scheduler{
		Cron:      cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		Prices:    prices,
		History:   history,
		Refresher: refresher,
		Config:    cfg.Cache,
		Refresh:   cfg.Refresh,
		Logger:    log,
		ctx:       context.Background(),
	}
}

// -----------------------------------------------------------------------------

// RegisterAll adds the sweep job and, when configured, the refresh job.
func (s *Scheduler) RegisterAll() error {
	minutes := s.Config.SweepIntervalMinutes
	if minutes <= 0 {
		minutes = utils.DefaultSweepIntervalMinutes
	}
	if _, err := s.Cron.AddFunc(fmt.Sprintf("@every %dm", minutes), s.RunSweepNow); err != nil {
		return fmt.Errorf("register price sweep: %w", err)
	}

	if s.Refresh.RefreshCron != "" && s.Refresher != nil {
		if _, err := s.Cron.AddFunc(s.Refresh.RefreshCron, s.RunRefreshNow); err != nil {
			return fmt.Errorf("register refresh %q: %w", s.Refresh.RefreshCron, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Start starts the cron jobs and arms the housekeeping timer.
func (s *Scheduler) Start(ctx context.Context) {
	delay := time.Duration(s.Config.HousekeepingDelaySeconds) * time.Second
	if s.Config.HousekeepingDelaySeconds <= 0 {
		delay = utils.DefaultHousekeepingDelaySeconds * time.Second
	}

	s.mu.Lock()
	s.ctx = ctx
	s.housekeeper = time.AfterFunc(delay, s.RunHousekeepingNow)
	s.mu.Unlock()

	s.Cron.Start()
	s.Logger.Info("Scheduler started (housekeeping in %s)", delay)
}

// -----------------------------------------------------------------------------

// Stop halts the jobs and waits for a running one to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.housekeeper != nil {
		s.housekeeper.Stop()
	}
	s.mu.Unlock()

	<-s.Cron.Stop().Done()
	s.Logger.Info("Scheduler stopped")
}

// -----------------------------------------------------------------------------

func (s *Scheduler) RunSweepNow() {
	if s.Prices == nil {
		return
	}
	evicted, err := s.Prices.Sweep()
	if err != nil {
		s.Logger.Error("Price sweep: %v", err)
		return
	}
	if evicted > 0 {
		s.Logger.Info("Price sweep evicted %d entries", evicted)
	}
}

// -----------------------------------------------------------------------------

func (s *Scheduler) RunHousekeepingNow() {
	if s.History == nil {
		return
	}
	days := s.Config.HistoryRetentionDays
	if days <= 0 {
		days = utils.DefaultRetentionDays
	}
	removed, err := s.History.ClearOldEntries(days)
	if err != nil {
		s.Logger.Error("Historical housekeeping: %v", err)
		return
	}
	s.Logger.Info("Historical housekeeping removed %d entries older than %d days", removed, days)
}

// -----------------------------------------------------------------------------

func (s *Scheduler) RunRefreshNow() {
	if s.Refresher == nil {
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	summary := s.Refresher.RefreshPortfolioCache(ctx)
	if summary.InProgress {
		s.Logger.Info("Scheduled refresh skipped, one is already running")
	}
}

// -----------------------------------------------------------------------------

// cronLogger routes cron's structured messages to the component logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron %s: %v %v", msg, err, keysAndValues)
}
