// Package sweeper runs the background deadline sweep.
//
// Expired, unclaimed card offers are resolved to the vault on two paths:
// lazily, when a late claim touches the card, and periodically, by this
// sweeper. The sweep fans defaulting out over a bounded worker pool; the
// storage layer's single-active-owner constraint makes concurrent
// resolution of the same card harmless.
package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/repo"
	"github.com/tbourn/go-cards-backend/internal/services"
)

var sweepCycles = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "card_sweep_cycles_total",
		Help: "Deadline sweep cycles, by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(sweepCycles)
}

// Config holds the deadline sweeper's tunables.
type Config struct {
	Interval  time.Duration // time between sweep cycles
	BatchSize int           // expired cards to resolve per cycle
	Workers   int           // concurrent defaulting workers
}

// DeadlineSweeper periodically resolves expired offers to the vault.
type DeadlineSweeper struct {
	cfg       Config
	db        *gorm.DB
	ownership *services.OwnershipService
	log       zerolog.Logger

	pool      pond.Pool
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// New creates a deadline sweeper. Start must be called to begin periodic
// sweeping; Sweep works standalone for out-of-cycle runs.
func New(cfg Config, db *gorm.DB, ownership *services.OwnershipService, log zerolog.Logger) *DeadlineSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &DeadlineSweeper{
		cfg:       cfg,
		db:        db,
		ownership: ownership,
		log:       log.With().Str("component", "deadline_sweeper").Logger(),
		pool:      pond.NewPool(cfg.Workers, pond.WithQueueSize(cfg.BatchSize)),
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start runs the sweep loop until the context is canceled or Stop is
// called. It blocks; run it on its own goroutine.
func (s *DeadlineSweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("deadline sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh)
	}()

	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Int("batch_size", s.cfg.BatchSize).
		Int("workers", s.cfg.Workers).
		Msg("starting deadline sweeper")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cleanup()
			return nil
		case <-s.stopChan:
			s.cleanup()
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				sweepCycles.WithLabelValues("error").Inc()
				s.log.Error().Err(err).Msg("deadline sweep cycle failed")
				continue
			}
			sweepCycles.WithLabelValues("ok").Inc()
		}
	}
}

// Sweep resolves one batch of expired offers. Exported so callers can force
// an out-of-cycle sweep (tests, admin tooling).
func (s *DeadlineSweeper) Sweep(ctx context.Context) error {
	cards, err := repo.ListExpiredUnowned(ctx, s.db, time.Now().UTC(), s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		return nil
	}

	group := s.pool.NewGroup()
	var defaulted atomic.Int64
	for i := range cards {
		card := cards[i]
		group.SubmitErr(func() error {
			if _, err := s.ownership.Default(ctx, &card); err != nil {
				s.log.Error().Err(err).Str("card_id", card.ID).Msg("failed to default expired card")
				return err
			}
			defaulted.Add(1)
			return nil
		})
	}
	// Individual failures are logged per card; the cycle itself succeeds so
	// the remaining batch is not abandoned.
	_ = group.Wait()

	s.log.Info().
		Int("expired", len(cards)).
		Int64("defaulted", defaulted.Load()).
		Msg("deadline sweep cycle complete")
	return nil
}

// Stop gracefully stops the sweeper, waiting for in-flight defaulting to
// finish or the context to expire.
func (s *DeadlineSweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.log.Info().Msg("stopping deadline sweeper")
	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for deadline sweeper to stop: %w", ctx.Err())
	}
}

func (s *DeadlineSweeper) cleanup() {
	if s.pool != nil {
		s.pool.StopAndWait()
	}
}
