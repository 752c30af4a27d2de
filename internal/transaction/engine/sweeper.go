package engine

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/repository"
)

type SweeperConfig struct {
	Schedule  string
	StaleAge  time.Duration
	BatchSize int
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Schedule:  "@every 1m",
		StaleAge:  2 * time.Minute,
		BatchSize: 50,
	}
}

// Sweeper periodically picks up transactions stranded in a non-terminal state
// by a crash or client disconnect and replays them through the orchestrator.
// Deterministic operation ids make the replay safe no matter where the first
// run stopped.
type Sweeper struct {
	transactions repository.TransactionRepository
	orchestrator Orchestrator
	cfg          SweeperConfig
	cron         *cron.Cron
}

func NewSweeper(transactions repository.TransactionRepository, orchestrator Orchestrator, cfg SweeperConfig) *Sweeper {
	if cfg.Schedule == "" {
		cfg = DefaultSweeperConfig()
	}
	return &Sweeper{
		transactions: transactions,
		orchestrator: orchestrator,
		cfg:          cfg,
		cron:         cron.New(),
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.WithField("schedule", s.cfg.Schedule).Info("Recovery sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	logrus.Info("Recovery sweeper stopped")
}

// Sweep runs one pass: find stale in-flight transactions and drive each one
// to a terminal state. Individual failures are logged and retried on the next
// pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	olderThan := time.Now().UTC().Add(-s.cfg.StaleAge)

	stale, err := s.transactions.FindStale(ctx, olderThan, s.cfg.BatchSize)
	if err != nil {
		logrus.WithError(err).Error("Sweeper failed to list stale transactions")
		return
	}
	if len(stale) == 0 {
		return
	}

	logrus.WithField("count", len(stale)).Info("Resuming stale transactions")

	for _, tx := range stale {
		s.resume(ctx, tx)
	}
}

func (s *Sweeper) resume(ctx context.Context, tx *models.Transaction) {
	log := logrus.WithFields(logrus.Fields{
		"transaction_id":   tx.TransactionID,
		"processing_state": tx.ProcessingState,
	})

	if err := s.orchestrator.Resume(ctx, tx); err != nil {
		log.WithError(err).Warn("Stale transaction resumed to a failure state")
		return
	}

	log.WithField("status", tx.Status).Info("Stale transaction resumed")
}
