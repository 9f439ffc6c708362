package similarity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/thebtf/goalmatch/pkg/models"
)

// Default tuning values, overridable per call.
const (
	// DefaultAlpha is the minimum similarity for two goals to match.
	DefaultAlpha = 0.9

	// DefaultBatchSize bounds the N×N matrix and the per-batch embedding
	// calls for one request.
	DefaultBatchSize = 500
)

// Embedder produces fixed-length dense vectors for texts. Embedding failures
// abort the whole batch; there are no partial results.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options control one corpus matching run.
type Options struct {
	// Alpha is the similarity threshold. A pair matches only when its
	// similarity is strictly greater than Alpha.
	Alpha float64

	// Cluster switches output from flat matches to greedy clusters.
	Cluster bool

	// BatchSize caps how many goals are compared against each other at
	// once. Zero means DefaultBatchSize.
	BatchSize int

	// AllPairs emits every within-batch pair above Alpha instead of
	// claiming each matched goal for a single pair. Flat mode only; the
	// cache sweep uses it because a complete pair set matters more there
	// than deduplicated output.
	AllPairs bool
}

// Result holds the outcome of one corpus matching run. Exactly one of
// Matches or Clusters is populated, depending on Options.Cluster.
type Result struct {
	Matches  []models.Match
	Clusters []models.Cluster
}

// Engine computes similarity matches over goal corpora.
type Engine struct {
	embedder Embedder
	log      zerolog.Logger
}

// NewEngine creates a matching engine on top of the given embedder.
func NewEngine(embedder Embedder, log zerolog.Logger) *Engine {
	return &Engine{
		embedder: embedder,
		log:      log.With().Str("component", "similarity").Logger(),
	}
}

// batchMatrix embeds one batch of texts, L2-normalizes the vectors and
// returns the pairwise similarity matrix with a zeroed diagonal.
func (e *Engine) batchMatrix(ctx context.Context, texts []string) (Matrix, error) {
	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch of %d: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return BuildMatrix(NormalizeRows(vecs)), nil
}

// MatchCorpus compares every goal in the list against the others and returns
// all pairs above opts.Alpha.
//
// Goals are partitioned into consecutive batches of opts.BatchSize and
// similarity is computed only within a batch; goals in different batches are
// never compared. This bounds the work to O(n·batch) embedding calls and
// O(n·batch²) matrix entries.
//
// Each unordered pair is emitted exactly once, from the lower-indexed side.
// In clustering mode a goal id joins at most one cluster as a member; the
// matched set also spans batches, so a goal claimed by an earlier anchor is
// never re-matched. With opts.AllPairs the claiming is disabled and every
// within-batch pair above the threshold is emitted.
func (e *Engine) MatchCorpus(ctx context.Context, goals []models.Goal, opts Options) (*Result, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	res := &Result{}
	matched := make(map[int64]bool)

	for start := 0; start < len(goals); start += batchSize {
		end := min(start+batchSize, len(goals))
		batch := goals[start:end]

		texts := make([]string, len(batch))
		for i, g := range batch {
			texts[i] = g.Name
		}

		m, err := e.batchMatrix(ctx, texts)
		if err != nil {
			return nil, err
		}

		for j := range batch {
			candidates := extractCandidates(m[j], j, opts.Alpha, batch, matched)
			if len(candidates) == 0 {
				continue
			}

			if opts.Cluster {
				cluster := models.Cluster{
					ID:      batch[j].ID,
					Name:    batch[j].Name,
					GrantID: batch[j].GrantID,
				}
				for _, k := range candidates {
					cluster.Matches = append(cluster.Matches, models.ClusterMember{
						ID:         batch[k].ID,
						Name:       batch[k].Name,
						GrantID:    batch[k].GrantID,
						Similarity: m[j][k],
					})
					matched[batch[k].ID] = true
				}
				res.Clusters = append(res.Clusters, cluster)
				continue
			}

			for _, k := range candidates {
				res.Matches = append(res.Matches, models.Match{
					Goal1:      batch[j],
					Goal2:      batch[k],
					Similarity: m[j][k],
				})
				if !opts.AllPairs {
					matched[batch[k].ID] = true
				}
			}
		}
	}

	e.log.Debug().
		Int("goals", len(goals)).
		Int("matches", len(res.Matches)).
		Int("clusters", len(res.Clusters)).
		Float64("alpha", opts.Alpha).
		Msg("Corpus matching complete")

	return res, nil
}

// extractCandidates returns the batch positions matching item j in its
// similarity row. A candidate k survives only when:
//   - row[k] is strictly greater than alpha (equal-to-threshold never
//     matches),
//   - k > j, so the pair is emitted once from the lower-indexed side,
//   - its goal id is not already in the matched set.
func extractCandidates(row []float64, j int, alpha float64, batch []models.Goal, matched map[int64]bool) []int {
	var out []int
	for k := j + 1; k < len(row); k++ {
		if row[k] <= alpha {
			continue
		}
		if matched[batch[k].ID] {
			continue
		}
		out = append(out, k)
	}
	return out
}

// FindNearest compares one query text against a corpus and returns every
// corpus goal whose similarity strictly exceeds alpha, in corpus order.
// A corpus goal whose text equals the query is still eligible; only the
// query itself is excluded (it is not a corpus member).
func (e *Engine) FindNearest(ctx context.Context, query string, corpus []models.Goal, alpha float64) ([]models.SimilarGoal, error) {
	if len(corpus) == 0 {
		return nil, nil
	}

	// Embed the query plus the whole corpus in one call: N+1 embeddings,
	// a 1×N similarity row, no N×N matrix.
	texts := make([]string, 0, len(corpus)+1)
	texts = append(texts, query)
	for _, g := range corpus {
		texts = append(texts, g.Name)
	}

	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed query corpus of %d: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	normalized := NormalizeRows(vecs)
	target := normalized[0]

	var out []models.SimilarGoal
	for i, g := range corpus {
		score := Dot(target, normalized[i+1])
		if score > alpha {
			out = append(out, models.SimilarGoal{Goal: g, Similarity: score})
		}
	}
	return out, nil
}

// Compare returns the cosine similarity of two strings.
func (e *Engine) Compare(ctx context.Context, a, b string) (float64, error) {
	vecs, err := e.embedder.EmbedBatch(ctx, []string{a, b})
	if err != nil {
		return 0, fmt.Errorf("embed string pair: %w", err)
	}
	if len(vecs) != 2 {
		return 0, fmt.Errorf("embedder returned %d vectors for 2 texts", len(vecs))
	}
	normalized := NormalizeRows(vecs)
	return Dot(normalized[0], normalized[1]), nil
}
