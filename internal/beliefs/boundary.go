package beliefs

import (
	"context"
	"strings"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/memory"
	"github.com/animus-hq/animus/internal/storage"
	"github.com/animus-hq/animus/internal/vectors"
)

// semanticThreshold is the minimum cosine similarity for a semantic
// boundary match.
const semanticThreshold = 0.75

// Match is one boundary hit against checked content.
type Match struct {
	Belief     *core.Belief          `json:"belief"`
	Response   core.BoundaryResponse `json:"response"`
	Similarity float64               `json:"similarity"`
	Pattern    string                `json:"pattern,omitempty"`
	Lexical    bool                  `json:"lexical"`
}

// Guard checks outbound content against the boundary catalog.
type Guard struct {
	beliefs *storage.BeliefStore
	embed   memory.Embedder
	index   memory.VectorIndex
	logger  *logging.Logger
}

// NewGuard creates a boundary guard.
func NewGuard(beliefs *storage.BeliefStore, embed memory.Embedder, index memory.VectorIndex) *Guard {
	return &Guard{
		beliefs: beliefs,
		embed:   embed,
		index:   index,
		logger:  logging.Component("boundary"),
	}
}

// Check unions semantic matches (cosine >= 0.75 against the catalog) with
// lexical trigger-pattern matches, keeping the strongest hit per boundary.
// A failed embedding degrades to lexical-only; the lexical path has no
// external dependencies.
func (g *Guard) Check(ctx context.Context, content string) ([]Match, error) {
	catalog, err := g.beliefs.ListByCategory(core.BeliefBoundary)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return nil, nil
	}
	byID := make(map[core.BeliefID]*core.Belief, len(catalog))
	for _, b := range catalog {
		byID[b.ID] = b
	}

	best := make(map[core.BeliefID]Match)

	// Lexical pass: case-insensitive substring against trigger patterns.
	lowered := strings.ToLower(content)
	for _, b := range catalog {
		for _, pattern := range b.TriggerPatterns {
			if pattern == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(pattern)) {
				keepStronger(best, Match{
					Belief:   b,
					Response: b.ResponseType,
					Pattern:  pattern,
					Lexical:  true,
				})
				break
			}
		}
	}

	// Semantic pass. Without a vector store the check stays lexical-only.
	if g.index == nil {
		return collect(best), nil
	}
	vec, err := g.embed.Embed(ctx, content)
	if err != nil {
		g.logger.Warn("boundary embed failed, lexical-only check: %v", err)
	} else {
		hits, err := g.index.Search(ctx, vectors.CollectionBoundaries, vec, uint64(len(catalog)), nil)
		if err != nil {
			g.logger.Warn("boundary search failed, lexical-only check: %v", err)
		} else {
			for _, hit := range hits {
				if float64(hit.Score) < semanticThreshold {
					continue
				}
				b, ok := byID[core.BeliefID(hit.ID)]
				if !ok {
					continue
				}
				keepStronger(best, Match{
					Belief:     b,
					Response:   b.ResponseType,
					Similarity: float64(hit.Score),
				})
			}
		}
	}

	return collect(best), nil
}

func collect(best map[core.BeliefID]Match) []Match {
	matches := make([]Match, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	return matches
}

// keepStronger deduplicates per boundary: higher importance wins, then
// higher similarity.
func keepStronger(best map[core.BeliefID]Match, candidate Match) {
	existing, ok := best[candidate.Belief.ID]
	if !ok {
		best[candidate.Belief.ID] = candidate
		return
	}
	if candidate.Belief.Importance > existing.Belief.Importance ||
		candidate.Similarity > existing.Similarity {
		best[candidate.Belief.ID] = candidate
	}
}

// Refusal returns the first refuse-typed match, if any.
func Refusal(matches []Match) *Match {
	for i := range matches {
		if matches[i].Response == core.BoundaryRefuse {
			return &matches[i]
		}
	}
	return nil
}

// IndexBoundary embeds and indexes one boundary belief's statement.
// Called at seeding and after transformation.
func (g *Guard) IndexBoundary(ctx context.Context, b *core.Belief) error {
	if b.Category != core.BeliefBoundary {
		return core.ErrInvalidInput
	}
	if g.index == nil {
		return g.beliefs.Update(b)
	}
	vec, err := g.embed.Embed(ctx, b.Content)
	if err != nil {
		return err
	}
	point := vectors.Point{
		ID:     string(b.ID),
		Vector: vec,
		Payload: map[string]interface{}{
			"response_type": string(b.ResponseType),
			"importance":    b.Importance,
		},
	}
	if err := g.index.Upsert(ctx, vectors.CollectionBoundaries, []vectors.Point{point}); err != nil {
		return err
	}
	b.EmbeddingID = string(b.ID)
	return g.beliefs.Update(b)
}
