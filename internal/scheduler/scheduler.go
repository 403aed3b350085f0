// Package scheduler runs background maintenance: keeping the price cache
// warm and pruning expired client data. Jobs only touch the price side; the
// sync engine is never driven from here, so the one-writer rule holds.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of background work.
type Job interface {
	Name() string
	Run() error
}

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates an empty scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Register schedules job on the given cron spec (e.g. "@every 60s").
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
			return
		}
		s.log.Debug().
			Str("job", job.Name()).
			Dur("took", time.Since(start)).
			Msg("Job completed")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("Job registered")
	return nil
}

// Start begins running scheduled jobs in their own goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// PriceRefreshJob forces a feed fetch so the cache stays inside its TTL
// window while the app is open.
type PriceRefreshJob struct {
	prices  Pricer
	timeout time.Duration
}

// Pricer is the price cache. Satisfied by *market.Repo.
type Pricer interface {
	GetPrices(ctx context.Context, force bool) map[string]float64
}

// NewPriceRefreshJob creates the refresh job.
func NewPriceRefreshJob(prices Pricer) *PriceRefreshJob {
	return &PriceRefreshJob{prices: prices, timeout: 30 * time.Second}
}

// Run forces one refresh. The price repo never fails outward, so neither
// does the job.
func (j *PriceRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	j.prices.GetPrices(ctx, true)
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *PriceRefreshJob) Name() string {
	return "price_refresh"
}
