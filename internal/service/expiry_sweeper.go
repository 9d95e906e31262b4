package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/parc-api/internal/models"
)

type expiredTrainerLister interface {
	ListExpiredTrainers(ctx context.Context, now time.Time) ([]string, error)
}

type trainerRecomputer interface {
	ComputeTrainerLifecycle(ctx context.Context, trainerID string) (*models.LifecycleOutcome, error)
}

// ExpirySweeper periodically recomputes trainers whose access deadline has passed.
type ExpirySweeper struct {
	accounts  expiredTrainerLister
	lifecycle trainerRecomputer
	expr      string
	cron      *cron.Cron
	logger    *zap.Logger
	now       func() time.Time
}

// NewExpirySweeper builds a sweeper for the given cron expression.
func NewExpirySweeper(accounts expiredTrainerLister, lifecycle trainerRecomputer, expr string, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweeper{
		accounts:  accounts,
		lifecycle: lifecycle,
		expr:      expr,
		cron:      cron.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the sweep and starts the scheduler.
func (s *ExpirySweeper) Start() error {
	if _, err := s.cron.AddFunc(s.expr, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("expiry sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", s.expr, err)
	}
	s.cron.Start()
	s.logger.Info("expiry sweep scheduled", zap.String("cron", s.expr))
	return nil
}

// Stop halts the scheduler and waits for a running sweep.
func (s *ExpirySweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep recomputes every expired active trainer and returns how many changed.
// A failing trainer is logged and skipped.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.accounts.ListExpiredTrainers(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, id := range ids {
		outcome, err := s.lifecycle.ComputeTrainerLifecycle(ctx, id)
		if err != nil {
			s.logger.Warn("expiry sweep skipped trainer", zap.String("trainer_id", id), zap.Error(err))
			continue
		}
		if outcome.Changed {
			changed++
		}
	}
	if len(ids) > 0 {
		s.logger.Info("expiry sweep finished", zap.Int("candidates", len(ids)), zap.Int("changed", changed))
	}
	return changed, nil
}
