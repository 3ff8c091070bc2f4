// Package jobs runs the server's periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/taskhub/pkg/observability"
)

// TokenPurger deletes expired one-time and refresh tokens
type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// JobTokenJanitor is the metrics label of the token janitor
const JobTokenJanitor = "token_janitor"

// Scheduler owns the cron runner and the registered jobs
type Scheduler struct {
	cron    *cron.Cron
	logger  *logrus.Logger
	metrics *observability.Metrics
	timeout time.Duration
}

// NewScheduler creates a Scheduler. Jobs never overlap with themselves.
func NewScheduler(logger *logrus.Logger, metrics *observability.Metrics) *Scheduler {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	return &Scheduler{
		cron:    c,
		logger:  logger,
		metrics: metrics,
		timeout: 5 * time.Minute,
	}
}

// AddTokenJanitor schedules the expired token purge
func (s *Scheduler) AddTokenJanitor(schedule string, purger TokenPurger) error {
	janitor := &TokenJanitor{purger: purger, logger: s.logger, metrics: s.metrics}
	return s.add(schedule, JobTokenJanitor, janitor.Run)
}

func (s *Scheduler) add(schedule, name string, fn func(context.Context) error) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.WithError(err).WithField("job", name).Error("job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, name, err)
	}
	s.logger.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("job scheduled")
	return nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TokenJanitor removes expired tokens. Users are never deleted.
type TokenJanitor struct {
	purger  TokenPurger
	logger  *logrus.Logger
	metrics *observability.Metrics
}

// NewTokenJanitor creates a TokenJanitor for one-off runs
func NewTokenJanitor(purger TokenPurger, logger *logrus.Logger, metrics *observability.Metrics) *TokenJanitor {
	return &TokenJanitor{purger: purger, logger: logger, metrics: metrics}
}

// Run purges once
func (j *TokenJanitor) Run(ctx context.Context) error {
	start := time.Now()
	n, err := j.purger.PurgeExpiredTokens(ctx)
	if err != nil {
		j.metrics.RecordJobRun(JobTokenJanitor, "failure")
		return fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	j.metrics.RecordJobRun(JobTokenJanitor, "success")
	if j.metrics != nil {
		j.metrics.TokensPurgedTotal.Add(float64(n))
	}
	j.logger.WithFields(logrus.Fields{
		"purged":   n,
		"duration": time.Since(start).String(),
	}).Info("expired tokens purged")
	return nil
}
