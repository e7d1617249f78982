package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/typeers/backend/internal/audit"
	"github.com/typeers/backend/internal/campaigns"
	"github.com/typeers/backend/internal/keys"
	"github.com/typeers/backend/internal/locks"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/models"
)

const (
	sweepLockTTL  = 5 * time.Minute
	pruneSchedule = "@daily"
)

// Scheduler runs periodic maintenance. Listings already filter unavailable
// campaigns on read; the sweep only keeps the active indices from growing.
type Scheduler struct {
	store    *campaigns.Store
	locks    *locks.LockManager
	cron     *cron.Cron
	schedule string
	now      func() time.Time

	audit         *audit.Logger
	retentionDays int
}

func NewScheduler(store *campaigns.Store, lockManager *locks.LockManager, schedule string) *Scheduler {
	if schedule == "" {
		schedule = "@every 10m"
	}
	return &Scheduler{
		store:    store,
		locks:    lockManager,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		schedule: schedule,
		now:      time.Now,
	}
}

// WithAuditRetention also prunes audit entries older than days, once a day.
func (s *Scheduler) WithAuditRetention(auditLogger *audit.Logger, days int) *Scheduler {
	s.audit = auditLogger
	s.retentionDays = days
	return s
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepLockTTL)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, locks.ErrLockNotAcquired) {
			logger.Error().Err(err).Msg("index sweep failed")
		}
	})
	if err != nil {
		return err
	}

	if s.audit != nil && s.retentionDays > 0 {
		_, err = s.cron.AddFunc(pruneSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), sweepLockTTL)
			defer cancel()
			if _, err := s.PruneAudit(ctx); err != nil && !errors.Is(err, locks.ErrLockNotAcquired) {
				logger.Error().Err(err).Msg("audit prune failed")
			}
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	logger.Info().Str("schedule", s.schedule).Msg("scheduler started")
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep drops expired, exhausted and vanished campaigns from the active
// indices. Only one instance sweeps at a time.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	removed := 0
	err := locks.WithLock(ctx, s.locks, locks.ResourceSweep, "active", sweepLockTTL, func() error {
		ids, err := s.store.IDs(ctx, keys.ActiveIndex(), 0)
		if err != nil {
			return err
		}

		now := s.now()
		for _, id := range ids {
			c, err := s.store.Get(ctx, id)
			switch {
			case errors.Is(err, models.ErrNotFound):
				if err := s.store.DropFromActive(ctx, id); err != nil {
					return err
				}
				removed++
				continue
			case err != nil:
				logger.Warn().Err(err).Str("campaign_id", id).Msg("sweep skipped campaign")
				continue
			}

			if c.IsAvailable(now) {
				continue
			}
			if err := s.store.Unindex(ctx, c); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		logger.Info().Int("removed", removed).Msg("index sweep complete")
	}
	return removed, nil
}

// PruneAudit deletes audit entries past the retention window.
func (s *Scheduler) PruneAudit(ctx context.Context) (int64, error) {
	var deleted int64
	err := locks.WithLock(ctx, s.locks, locks.ResourceSweep, "audit", sweepLockTTL, func() error {
		var err error
		deleted, err = s.audit.Cleanup(ctx, s.retentionDays)
		return err
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Int("retention_days", s.retentionDays).Msg("audit entries pruned")
	}
	return deleted, nil
}
