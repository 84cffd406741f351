// Package memory implements the agent's memory service: a factory with
// category-specific defaults, episode assignment for episodic records, the
// fast_recall ranking blend, and the background decay pass.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/graph"
	"github.com/animus-hq/animus/internal/locks"
	"github.com/animus-hq/animus/internal/logging"
	"github.com/animus-hq/animus/internal/storage"
	"github.com/animus-hq/animus/internal/vectors"
)

// Embedder turns text into a vector. Satisfied by embeddings.Service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the similarity-search surface the service needs.
// Satisfied by vectors.Store.
type VectorIndex interface {
	Upsert(ctx context.Context, collection string, points []vectors.Point) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64, filter map[string]interface{}) ([]vectors.SearchResult, error)
	Delete(ctx context.Context, collection string, ids []string) error
}

// episodeLock names the mutex that serializes append-or-open decisions.
const episodeLock = "episode-assign"

// episodeGap is the idle window after which a new episodic memory opens a
// fresh episode instead of extending the last one.
const episodeGap = 30 * time.Minute

// trustFloor filters low-trust memories out of recall results.
const trustFloor = 0.2

// relevanceFloor is the lowest value decay can drive relevance to.
const relevanceFloor = 0.1

// decayGrace exempts freshly touched memories from the decay pass, so an
// access immediately before the pass keeps relevance at exactly 1.0.
const decayGrace = time.Minute

// Recall blend weights. They sum to 1.
const (
	wSimilarity  = 0.50
	wAssociation = 0.20
	wTemporal    = 0.15
	wImportance  = 0.05
	wTrust       = 0.10
	wCongruence  = 0.05
)

// Service is the memory subsystem facade.
type Service struct {
	store  *storage.MemoryStore
	graph  *graph.Store
	embed  Embedder
	index  VectorIndex
	locks  *locks.Registry
	logger *logging.Logger

	// assocMu guards the cached neighbor map keyed by memory id.
	assocMu sync.RWMutex
	assoc   map[core.MemoryID]map[core.MemoryID]float64
}

// NewService creates a memory service.
func NewService(store *storage.MemoryStore, g *graph.Store, embed Embedder, index VectorIndex, lr *locks.Registry) *Service {
	return &Service{
		store:  store,
		graph:  g,
		embed:  embed,
		index:  index,
		locks:  lr,
		logger: logging.Component("memory"),
		assoc:  make(map[core.MemoryID]map[core.MemoryID]float64),
	}
}

// categoryDefaults returns baseline importance for a category. Callers can
// override by setting a non-zero importance before Create.
func categoryDefaults(cat core.MemoryCategory) float64 {
	switch cat {
	case core.MemoryWorldview:
		return 0.8
	case core.MemoryStrategic:
		return 0.7
	case core.MemorySemantic, core.MemoryGoal:
		return 0.6
	default:
		return 0.5
	}
}

// Create persists a new memory with category defaults, assigns it to an
// episode when episodic, and indexes its content for recall. Vector and
// graph writes are best-effort; the sqlite record is the source of truth.
func (s *Service) Create(ctx context.Context, m *core.Memory) (*core.Memory, error) {
	if m.Content == "" {
		return nil, core.ErrInvalidInput
	}
	if m.ID == "" {
		m.ID = core.MemoryID(uuid.New().String())
	}
	if m.Category == "" {
		m.Category = core.MemoryEpisodic
	}
	if m.Importance == 0 {
		m.Importance = categoryDefaults(m.Category)
	}
	if m.Trust == 0 {
		m.Trust = 1.0
	}
	if m.Source == "" {
		m.Source = "self"
	}
	m.Relevance = 1.0

	if m.Category == core.MemoryEpisodic && m.EpisodeID == "" {
		s.assignEpisode(m)
	}

	// Without a vector store the record is kept unindexed and recall
	// degrades to recency.
	if s.index != nil {
		vec, err := s.embed.Embed(ctx, m.Content)
		if err != nil {
			s.logger.Warn("embedding failed for %s, storing without index: %v", m.ID, err)
		} else {
			m.EmbeddingID = string(m.ID)
			point := vectors.Point{
				ID:     string(m.ID),
				Vector: vec,
				Payload: map[string]interface{}{
					"category": string(m.Category),
					"source":   m.Source,
				},
			}
			if err := s.index.Upsert(ctx, vectors.CollectionMemories, []vectors.Point{point}); err != nil {
				s.logger.Warn("vector upsert failed for %s: %v", m.ID, err)
				m.EmbeddingID = ""
			}
		}
	}

	if err := s.store.Create(m); err != nil {
		return nil, err
	}

	if m.EpisodeID != "" && m.SequenceNum > 1 {
		s.linkEpisode(m)
	}
	return m, nil
}

// assignEpisode decides whether the record extends the latest episode or
// opens a new one. The decision runs under a non-blocking named lock; if
// another writer holds it, we open a fresh episode rather than wait, which
// can never produce a duplicate sequence number.
func (s *Service) assignEpisode(m *core.Memory) {
	if !s.locks.TryAcquire(episodeLock) {
		m.EpisodeID = uuid.New().String()
		m.SequenceNum = 1
		return
	}
	defer s.locks.Release(episodeLock)

	episodeID, lastSeq, lastAt, err := s.store.LatestEpisode()
	if err != nil || episodeID == "" || time.Since(lastAt) > episodeGap {
		m.EpisodeID = uuid.New().String()
		m.SequenceNum = 1
		return
	}
	m.EpisodeID = episodeID
	m.SequenceNum = lastSeq + 1
}

// linkEpisode records a sequence edge to the previous record in the episode.
func (s *Service) linkEpisode(m *core.Memory) {
	err := s.graph.Upsert(&core.Edge{
		Kind:   core.EdgeEpisodeLink,
		FromID: m.EpisodeID,
		ToID:   string(m.ID),
		Label:  "contains",
		Weight: 1.0,
	})
	if err != nil {
		s.logger.Debug("episode link skipped for %s: %v", m.ID, err)
	}
}

// Get returns one memory and records the access.
func (s *Service) Get(id core.MemoryID) (*core.Memory, error) {
	m, err := s.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.store.RecordAccess(id); err != nil {
		s.logger.Debug("access bump failed for %s: %v", id, err)
	}
	return m, nil
}

// Recalled is one ranked recall result.
type Recalled struct {
	Memory *core.Memory `json:"memory"`
	Score  float64      `json:"score"`
}

// FastRecall ranks memories against a query. The score blends vector
// similarity, cached association strength, temporal proximity to the
// current episode, decayed importance, trust, and emotional congruence
// with the supplied affect. Results below the trust floor are dropped.
func (s *Service) FastRecall(ctx context.Context, query string, limit int, affect *core.AffectiveState) ([]Recalled, error) {
	if limit <= 0 {
		limit = 5
	}

	if s.index == nil {
		return s.recencyRecall(limit)
	}

	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, core.ErrRetrievalFailed
	}

	// Over-fetch so post-filtering still fills the requested limit.
	hits, err := s.index.Search(ctx, vectors.CollectionMemories, vec, uint64(limit*3), nil)
	if err != nil {
		return nil, core.ErrRetrievalFailed
	}
	if len(hits) == 0 {
		return nil, nil
	}

	anchors := s.recentAnchors(5)
	episodeID, _, lastAt, _ := s.store.LatestEpisode()
	now := time.Now().UTC()

	var results []Recalled
	for _, hit := range hits {
		m, err := s.store.GetByID(core.MemoryID(hit.ID))
		if err != nil {
			continue
		}
		if m.Trust < trustFloor {
			continue
		}

		temporal := temporalScore(m, episodeID, lastAt, now)
		congruence := 1.0
		if affect != nil {
			congruence = 1.0 - math.Abs(m.EmotionalValence-affect.Valence)/2.0
		}

		score := wSimilarity*float64(hit.Score) +
			wAssociation*s.associationScore(m.ID, anchors) +
			wTemporal*temporal +
			wImportance*(m.Importance*m.Relevance) +
			wTrust*m.Trust +
			wCongruence*congruence

		results = append(results, Recalled{Memory: m, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}

	for _, r := range results {
		if err := s.store.RecordAccess(r.Memory.ID); err != nil {
			s.logger.Debug("access bump failed for %s: %v", r.Memory.ID, err)
		}
	}
	s.strengthenCoRetrieval(results)

	return results, nil
}

// recencyRecall is the degraded path when no vector store is configured:
// most recent first, importance as the score.
func (s *Service) recencyRecall(limit int) ([]Recalled, error) {
	recent, err := s.store.GetRecent(limit)
	if err != nil {
		return nil, core.ErrRetrievalFailed
	}
	results := make([]Recalled, 0, len(recent))
	for _, m := range recent {
		if m.Trust < trustFloor {
			continue
		}
		results = append(results, Recalled{Memory: m, Score: m.Importance * m.Relevance})
	}
	return results, nil
}

// recentAnchors returns ids of the most recently written memories; they
// anchor the association component of the recall blend.
func (s *Service) recentAnchors(n int) []core.MemoryID {
	recent, err := s.store.GetRecent(n)
	if err != nil {
		return nil
	}
	ids := make([]core.MemoryID, 0, len(recent))
	for _, m := range recent {
		ids = append(ids, m.ID)
	}
	return ids
}

// associationScore reads the cached neighbor map: the strongest edge between
// the candidate and any anchor.
func (s *Service) associationScore(id core.MemoryID, anchors []core.MemoryID) float64 {
	s.assocMu.RLock()
	defer s.assocMu.RUnlock()

	neighbors, ok := s.assoc[id]
	if !ok {
		return 0
	}
	best := 0.0
	for _, a := range anchors {
		if w, ok := neighbors[a]; ok && w > best {
			best = w
		}
	}
	return best
}

// temporalScore scores proximity to the open episode: members of the latest
// episode score 1.0, everything else decays with age on a six-hour half-life.
func temporalScore(m *core.Memory, episodeID string, lastAt time.Time, now time.Time) float64 {
	if episodeID != "" && m.EpisodeID == episodeID {
		return 1.0
	}
	ref := lastAt
	if ref.IsZero() {
		ref = now
	}
	age := ref.Sub(m.CreatedAt)
	if age < 0 {
		age = 0
	}
	const halfLife = 6 * time.Hour
	return math.Pow(0.5, age.Hours()/halfLife.Hours())
}

// strengthenCoRetrieval writes association edges between memories retrieved
// together and feeds the increments into the cache immediately.
func (s *Service) strengthenCoRetrieval(results []Recalled) {
	const increment = 0.1
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			a, b := results[i].Memory.ID, results[j].Memory.ID
			weight := math.Min(1.0, s.cachedWeight(a, b)+increment)
			err := s.graph.Upsert(&core.Edge{
				Kind:   core.EdgeAssociation,
				FromID: string(a),
				ToID:   string(b),
				Label:  "co_retrieved",
				Weight: weight,
			})
			if err != nil {
				s.logger.Debug("association write skipped: %v", err)
				continue
			}
			s.cacheSet(a, b, weight)
		}
	}
}

func (s *Service) cachedWeight(a, b core.MemoryID) float64 {
	s.assocMu.RLock()
	defer s.assocMu.RUnlock()
	if n, ok := s.assoc[a]; ok {
		return n[b]
	}
	return 0
}

func (s *Service) cacheSet(a, b core.MemoryID, weight float64) {
	s.assocMu.Lock()
	defer s.assocMu.Unlock()
	if s.assoc[a] == nil {
		s.assoc[a] = make(map[core.MemoryID]float64)
	}
	if s.assoc[b] == nil {
		s.assoc[b] = make(map[core.MemoryID]float64)
	}
	s.assoc[a][b] = weight
	s.assoc[b][a] = weight
}

// RecomputeAssociations rebuilds the neighbor cache from the graph store.
// Called by the maintenance pass.
func (s *Service) RecomputeAssociations() error {
	edges, err := s.graph.ListByKind(core.EdgeAssociation)
	if err != nil {
		return err
	}

	fresh := make(map[core.MemoryID]map[core.MemoryID]float64)
	for _, e := range edges {
		from, to := core.MemoryID(e.FromID), core.MemoryID(e.ToID)
		if fresh[from] == nil {
			fresh[from] = make(map[core.MemoryID]float64)
		}
		if fresh[to] == nil {
			fresh[to] = make(map[core.MemoryID]float64)
		}
		fresh[from][to] = e.Weight
		fresh[to][from] = e.Weight
	}

	s.assocMu.Lock()
	s.assoc = fresh
	s.assocMu.Unlock()

	s.logger.Debug("association cache rebuilt: %d nodes, %d edges", len(fresh), len(edges))
	return nil
}

// Decay lowers relevance for memories that have not been accessed, on an
// exponential half-life, flooring at relevanceFloor. Returns the number of
// records updated.
func (s *Service) Decay(halfLife time.Duration) (int, error) {
	if halfLife <= 0 {
		return 0, nil
	}
	all, err := s.store.ListForDecay()
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	updated := 0
	for _, m := range all {
		ref := m.CreatedAt
		if m.LastAccess != nil {
			ref = *m.LastAccess
		}
		age := now.Sub(ref)
		if age <= decayGrace {
			continue
		}
		target := math.Pow(0.5, age.Hours()/halfLife.Hours())
		if target < relevanceFloor {
			target = relevanceFloor
		}
		if target >= m.Relevance {
			continue
		}
		if err := s.store.UpdateRelevance(m.ID, target); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// Count reports how many memories exist.
func (s *Service) Count() (int, error) {
	return s.store.Count()
}

// Recent returns the newest memories without bumping access stats.
func (s *Service) Recent(limit int) ([]*core.Memory, error) {
	return s.store.GetRecent(limit)
}

// PurgeExcept wipes memory except the listed ids, dropping vectors with
// it. Used by termination, which purges the edge graph separately.
func (s *Service) PurgeExcept(ctx context.Context, keep []core.MemoryID) error {
	s.purgeVectors(ctx, keep)
	if err := s.store.PurgeExcept(keep); err != nil {
		return err
	}
	s.assocMu.Lock()
	s.assoc = make(map[core.MemoryID]map[core.MemoryID]float64)
	s.assocMu.Unlock()
	return nil
}

// purgeVectors removes the indexed vectors of every memory not kept.
// Best-effort: the sqlite purge is the source of truth and a leftover
// vector can no longer be resolved to a record.
func (s *Service) purgeVectors(ctx context.Context, keep []core.MemoryID) {
	if s.index == nil {
		return
	}
	ids, err := s.store.ListEmbeddedIDs()
	if err != nil {
		s.logger.Warn("vector purge skipped, id listing failed: %v", err)
		return
	}
	kept := make(map[core.MemoryID]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var drop []string
	for _, id := range ids {
		if !kept[id] {
			drop = append(drop, string(id))
		}
	}
	if len(drop) == 0 {
		return
	}
	if err := s.index.Delete(ctx, vectors.CollectionMemories, drop); err != nil {
		s.logger.Warn("vector purge failed for %d ids: %v", len(drop), err)
	}
}
