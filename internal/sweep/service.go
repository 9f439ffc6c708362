// Package sweep runs the periodic full-corpus cache population job: every
// recipient's goal set is matched against itself and each pair's score is
// persisted once, idempotently.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thebtf/goalmatch/internal/config"
	gormdb "github.com/thebtf/goalmatch/internal/db/gorm"
	"github.com/thebtf/goalmatch/internal/similarity"
)

// sweepAdvisoryLockKey identifies the Postgres advisory lock that keeps at
// most one sweep running across all worker processes.
const sweepAdvisoryLockKey int64 = 0x676d5f7377656570 // "gm_sweep"

// GoalLister is the sweep's read path over the whole corpus.
type GoalLister interface {
	FetchAllRecipientGoals(ctx context.Context) ([]gormdb.RecipientGoals, error)
}

// ScoreSink is the sweep's write path into the score cache.
type ScoreSink interface {
	InsertScoreIfAbsent(ctx context.Context, recipientID, goal1ID, goal2ID int64, score float64, now time.Time) (bool, error)
	CountScores(ctx context.Context, recipientID int64) (int64, error)
}

// Locker provides cross-process mutual exclusion for a sweep run.
type Locker interface {
	AcquireAdvisoryLock(ctx context.Context, key int64) (release func(), ok bool, err error)
}

// Service schedules and executes cache sweeps.
type Service struct {
	log             zerolog.Logger
	goals           GoalLister
	scores          ScoreSink
	locker          Locker
	engine          *similarity.Engine
	config          *config.Config
	stopCh          chan struct{}
	doneCh          chan struct{}
	lastRunTime     time.Time
	lastRunDuration time.Duration
	totalInserted   int64
	totalFailed     int64
	mu              sync.Mutex
	running         bool
}

// NewService creates a new sweep service.
func NewService(
	goals GoalLister,
	scores ScoreSink,
	locker Locker,
	engine *similarity.Engine,
	cfg *config.Config,
	log zerolog.Logger,
) *Service {
	return &Service{
		goals:  goals,
		scores: scores,
		locker: locker,
		engine: engine,
		config: cfg,
		log:    log.With().Str("component", "sweep").Logger(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the sweep loop. Blocks until Stop is called or the context
// is cancelled; run it in its own goroutine.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.doneCh)
	}()

	if !s.config.SweepEnabled {
		s.log.Info().Msg("Cache sweep disabled, not starting scheduler")
		return
	}

	interval := max(time.Duration(s.config.SweepIntervalHours)*time.Hour, time.Hour)

	s.log.Info().
		Dur("interval", interval).
		Int("batch_size", s.config.BatchSize).
		Msg("Starting cache sweep scheduler")

	// Initial run after a short delay so the service finishes coming up.
	select {
	case <-ctx.Done():
		return
	case <-s.stopCh:
		return
	case <-time.After(time.Minute):
	}
	s.runSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Sweep shutting down due to context cancellation")
			return
		case <-s.stopCh:
			s.log.Info().Msg("Sweep shutting down due to stop signal")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// Stop signals the sweep service to stop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopCh)
}

// Wait waits for the sweep service to finish.
func (s *Service) Wait() {
	<-s.doneCh
}

// RunNow triggers an immediate sweep run.
func (s *Service) RunNow(ctx context.Context) {
	go s.runSweep(ctx)
}

// runSweep executes one full sweep under the advisory lock. Each recipient's
// goal set is computed once per run at threshold 0 so every positive pair is
// captured; recipients whose cache already holds every expected pair are
// skipped. Insert failures are logged and the sweep continues, so one failed
// write never loses the other computed scores.
func (s *Service) runSweep(ctx context.Context) {
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()

	release, ok, err := s.locker.AcquireAdvisoryLock(ctx, sweepAdvisoryLockKey)
	if err != nil {
		log.Error().Err(err).Msg("Failed to acquire sweep lock")
		return
	}
	if !ok {
		log.Info().Msg("Another sweep is running, skipping this run")
		return
	}
	defer release()

	start := time.Now()
	log.Info().Msg("Starting cache sweep")

	recipients, err := s.goals.FetchAllRecipientGoals(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch corpus for sweep")
		return
	}

	var inserted, failed, skipped int64

	for _, rec := range recipients {
		select {
		case <-ctx.Done():
			log.Info().Msg("Sweep cancelled mid-run")
			return
		case <-s.stopCh:
			log.Info().Msg("Sweep stopped mid-run")
			return
		default:
		}

		expected := expectedPairs(len(rec.Goals), s.config.BatchSize)
		if expected == 0 {
			continue
		}

		cached, err := s.scores.CountScores(ctx, rec.RecipientID)
		if err != nil {
			log.Error().Err(err).Int64("recipient_id", rec.RecipientID).Msg("Failed to count cached scores")
			continue
		}
		if cached >= expected {
			skipped++
			continue
		}

		res, err := s.engine.MatchCorpus(ctx, rec.Goals, similarity.Options{
			Alpha:     0,
			BatchSize: s.config.BatchSize,
			AllPairs:  true,
		})
		if err != nil {
			log.Error().Err(err).Int64("recipient_id", rec.RecipientID).Msg("Failed to compute similarities")
			continue
		}

		now := time.Now()
		for _, m := range res.Matches {
			wasNew, err := s.scores.InsertScoreIfAbsent(ctx, rec.RecipientID, m.Goal1.ID, m.Goal2.ID, m.Similarity, now)
			if err != nil {
				failed++
				log.Error().Err(err).
					Int64("recipient_id", rec.RecipientID).
					Int64("goal1_id", m.Goal1.ID).
					Int64("goal2_id", m.Goal2.ID).
					Msg("Failed to cache score")
				continue
			}
			if wasNew {
				inserted++
			}
		}
	}

	s.mu.Lock()
	s.lastRunTime = time.Now()
	s.lastRunDuration = time.Since(start)
	s.totalInserted += inserted
	s.totalFailed += failed
	s.mu.Unlock()

	log.Info().
		Dur("duration", time.Since(start)).
		Int("recipients", len(recipients)).
		Int64("skipped_recipients", skipped).
		Int64("inserted", inserted).
		Int64("failed", failed).
		Msg("Cache sweep completed")
}

// expectedPairs returns how many within-batch pairs exist for n goals
// partitioned into consecutive batches of batchSize. Matching never crosses
// batch boundaries, so this is the ceiling on cacheable pairs per recipient.
func expectedPairs(n, batchSize int) int64 {
	if batchSize <= 0 {
		batchSize = similarity.DefaultBatchSize
	}
	var total int64
	for n > 0 {
		b := min(n, batchSize)
		total += int64(b) * int64(b-1) / 2
		n -= b
	}
	return total
}

// Stats returns sweep statistics.
func (s *Service) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"enabled":          s.config.SweepEnabled,
		"interval_hours":   s.config.SweepIntervalHours,
		"last_run":         s.lastRunTime,
		"last_duration_ms": s.lastRunDuration.Milliseconds(),
		"total_inserted":   s.totalInserted,
		"total_failed":     s.totalFailed,
		"running":          s.running,
	}
}
