// Package matcher exposes the public matching operations: corpus-wide goal
// matching, nearest-neighbor lookup for a draft goal, and plain string
// comparison. It orchestrates the persistence read path, the embedding
// provider, and the similarity engine.
package matcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/goalmatch/internal/config"
	gormdb "github.com/thebtf/goalmatch/internal/db/gorm"
	"github.com/thebtf/goalmatch/internal/embedding"
	"github.com/thebtf/goalmatch/internal/similarity"
	"github.com/thebtf/goalmatch/pkg/models"
)

// ErrRecipientNotFound signals the recipient does not exist. A recipient
// that exists but has no eligible goals is not an error; those calls return
// an empty result.
var ErrRecipientNotFound = gormdb.ErrRecipientNotFound

// ErrEmbeddingUnavailable marks failures of the embedding collaborator.
// Fatal for the current request; not retried automatically.
var ErrEmbeddingUnavailable = embedding.ErrUnavailable

// GoalSource is the persistence read path the matcher depends on.
type GoalSource interface {
	// FetchGoals returns a recipient's eligible goals in corpus order, an
	// empty slice when the recipient has no goals, or a not-found error
	// when the recipient itself does not exist.
	FetchGoals(ctx context.Context, recipientID int64) ([]models.Goal, error)

	// FetchCuratedTemplates returns the curated template pool.
	FetchCuratedTemplates(ctx context.Context) ([]models.Goal, error)
}

// MatchOptions control one MatchGoals call.
type MatchOptions struct {
	// Alpha overrides the configured similarity threshold. Nil means the
	// configured default; an explicit 0 matches every positive pair.
	Alpha *float64

	// Cluster switches output from flat matches to greedy clusters.
	Cluster bool

	// IncludeCuratedTemplates extends the corpus with the template pool.
	IncludeCuratedTemplates bool
}

// SimilarOptions control one FindSimilar call.
type SimilarOptions struct {
	Alpha                   *float64
	IncludeCuratedTemplates bool
}

// Service implements the public matching operations.
type Service struct {
	goals        GoalSource
	engine       *similarity.Engine
	log          zerolog.Logger
	similarGroup singleflight.Group
	defaultAlpha float64
	batchSize    int
}

// NewService creates a matcher service.
func NewService(goals GoalSource, engine *similarity.Engine, log zerolog.Logger) *Service {
	cfg := config.Get()

	alpha := cfg.Alpha
	if alpha <= 0 || alpha > 1 {
		alpha = config.DefaultAlpha
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}

	return &Service{
		goals:        goals,
		engine:       engine,
		log:          log.With().Str("component", "matcher").Logger(),
		defaultAlpha: alpha,
		batchSize:    batchSize,
	}
}

// loadCorpus fetches a recipient's goals, optionally unioned with the
// curated template pool. Not-found errors from the source are mapped to
// ErrRecipientNotFound.
func (s *Service) loadCorpus(ctx context.Context, recipientID int64, includeTemplates bool) ([]models.Goal, error) {
	goals, err := s.goals.FetchGoals(ctx, recipientID)
	if err != nil {
		if errors.Is(err, ErrRecipientNotFound) {
			return nil, fmt.Errorf("recipient %d: %w", recipientID, ErrRecipientNotFound)
		}
		return nil, fmt.Errorf("fetch goals for recipient %d: %w", recipientID, err)
	}

	if includeTemplates {
		templates, err := s.goals.FetchCuratedTemplates(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch curated templates: %w", err)
		}
		goals = append(goals, templates...)
	}
	return goals, nil
}

// MatchGoals compares every goal in the recipient's scope against the
// others and returns pairs (or clusters) above the threshold. An existing
// recipient with no goals yields an empty, non-nil result.
func (s *Service) MatchGoals(ctx context.Context, recipientID int64, opts MatchOptions) (*similarity.Result, error) {
	alpha := s.defaultAlpha
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}

	corpus, err := s.loadCorpus(ctx, recipientID, opts.IncludeCuratedTemplates)
	if err != nil {
		return nil, err
	}
	if len(corpus) == 0 {
		return &similarity.Result{}, nil
	}

	res, err := s.engine.MatchCorpus(ctx, corpus, similarity.Options{
		Alpha:     alpha,
		Cluster:   opts.Cluster,
		BatchSize: s.batchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("match goals for recipient %d: %w", recipientID, err)
	}

	s.log.Info().
		Int64("recipient_id", recipientID).
		Int("goals", len(corpus)).
		Int("matches", len(res.Matches)).
		Int("clusters", len(res.Clusters)).
		Float64("alpha", alpha).
		Bool("cluster", opts.Cluster).
		Msg("Goal matching complete")

	return res, nil
}

// FindSimilar compares one draft goal text against the recipient's corpus
// (plus curated templates when requested) and returns every goal above the
// threshold in corpus order. Identical concurrent queries are coalesced
// into a single computation.
func (s *Service) FindSimilar(ctx context.Context, recipientID int64, text string, opts SimilarOptions) ([]models.SimilarGoal, error) {
	alpha := s.defaultAlpha
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}

	key := fmt.Sprintf("%d|%.6f|%t|%s", recipientID, alpha, opts.IncludeCuratedTemplates, text)
	v, err, _ := s.similarGroup.Do(key, func() (any, error) {
		// The computation is shared across coalesced callers; detach it
		// from the first caller's cancellation so one cancelled request
		// does not fail the rest.
		ctx := context.WithoutCancel(ctx)

		corpus, err := s.loadCorpus(ctx, recipientID, opts.IncludeCuratedTemplates)
		if err != nil {
			return nil, err
		}
		if len(corpus) == 0 {
			return []models.SimilarGoal{}, nil
		}
		return s.engine.FindNearest(ctx, text, corpus, alpha)
	})
	if err != nil {
		return nil, err
	}

	similar, _ := v.([]models.SimilarGoal)
	if similar == nil {
		similar = []models.SimilarGoal{}
	}
	return similar, nil
}

// CompareStrings returns the cosine similarity of two strings.
func (s *Service) CompareStrings(ctx context.Context, string1, string2 string) (float64, error) {
	return s.engine.Compare(ctx, string1, string2)
}
