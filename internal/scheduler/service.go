package scheduler

import (
	"context"

	"github.com/brandlens/visibility-bot/internal/analysis"
	"github.com/brandlens/visibility-bot/internal/config"
	"github.com/brandlens/visibility-bot/internal/health"
	"github.com/brandlens/visibility-bot/internal/stats"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Service wires the pipeline to the clock: scheduled batch analyses,
// statistics recalculation after each batch, and periodic provider health
// checks.
type Service struct {
	config       *config.Config
	orchestrator *analysis.Orchestrator
	aggregator   *stats.Aggregator
	monitor      *health.Monitor
	cron         *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, orchestrator *analysis.Orchestrator, aggregator *stats.Aggregator, monitor *health.Monitor) *Service {
	return &Service{
		config:       cfg,
		orchestrator: orchestrator,
		aggregator:   aggregator,
		monitor:      monitor,
		cron:         cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled runs
func (s *Service) Start() error {
	var cronExpression string

	switch s.config.BatchSchedule {
	case "daily":
		// Run daily at 6 AM UTC
		cronExpression = "0 0 6 * * *"
	case "weekly":
		// Run weekly on Monday at 6 AM UTC
		cronExpression = "0 0 6 * * MON"
	default:
		cronExpression = "0 0 6 * * *"
	}

	_, err := s.cron.AddFunc(cronExpression, func() {
		logrus.Info("Starting scheduled batch analysis")
		s.runPipeline()
	})

	if err != nil {
		return err
	}

	// Probe providers every 4 hours so a broken provider is disabled long
	// before the next batch picks it up.
	_, err = s.cron.AddFunc("0 0 */4 * * *", func() {
		logrus.Info("Starting scheduled provider health check")
		if _, err := s.monitor.CheckAll(context.Background()); err != nil {
			logrus.Errorf("Scheduled health check failed: %v", err)
		}
	})

	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s batch schedule (plus health checks every 4 hours)", s.config.BatchSchedule)
	return nil
}

// runPipeline analyzes every brand, then recalculates stats and sends the
// digests.
func (s *Service) runPipeline() {
	ctx := context.Background()

	results, err := s.orchestrator.RunAll(ctx, false)
	if err != nil {
		logrus.Errorf("Scheduled batch analysis failed: %v", err)
		return
	}

	for _, result := range results {
		if _, err := s.aggregator.RecalculateWindow(ctx, result.BrandID, s.config.StatsWindowDays, ""); err != nil {
			logrus.Errorf("Recalculation for brand %s failed: %v", result.BrandID, err)
			continue
		}

		if s.config.EnableVisibilityReports {
			if err := s.aggregator.SendDigest(ctx, result.BrandID, s.config.StatsWindowDays); err != nil {
				logrus.Errorf("Digest for brand %s failed: %v", result.BrandID, err)
			}
		}
	}
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
