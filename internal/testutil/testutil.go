// Package testutil provides in-memory fakes for the external collaborators
// (embedding service, vector index) so engine tests run hermetically.
package testutil

import (
	"context"
	"crypto/sha256"
	"math"
	"sort"
	"sync"

	"github.com/animus-hq/animus/internal/vectors"
)

// FakeEmbedder returns deterministic vectors derived from the text's hash,
// with optional fixed vectors per input. Safe for concurrent use.
type FakeEmbedder struct {
	mu      sync.Mutex
	fixed   map[string][]float32
	Calls   int
	FailAll bool
	Err     error
}

// NewFakeEmbedder creates an embedder fake.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{fixed: make(map[string][]float32)}
}

// SetVector pins the vector returned for an exact input text.
func (f *FakeEmbedder) SetVector(text string, vec []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixed[text] = vec
}

// Embed returns the pinned or derived vector for text.
func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.FailAll {
		return nil, f.Err
	}
	if v, ok := f.fixed[text]; ok {
		return v, nil
	}
	return deriveVector(text), nil
}

// Dimension matches the derived vector size.
func (f *FakeEmbedder) Dimension() uint64 { return 8 }

// deriveVector hashes text into a stable unit vector.
func deriveVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	var norm float64
	for i := range vec {
		vec[i] = float32(sum[i]) / 255.0
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// FakeVectorIndex is an in-memory cosine-similarity index keyed by
// collection name.
type FakeVectorIndex struct {
	mu      sync.Mutex
	points  map[string]map[string]vectors.Point
	FailAll bool
	Err     error
}

// NewFakeVectorIndex creates an index fake.
func NewFakeVectorIndex() *FakeVectorIndex {
	return &FakeVectorIndex{points: make(map[string]map[string]vectors.Point)}
}

// Upsert stores points in a collection.
func (f *FakeVectorIndex) Upsert(ctx context.Context, collection string, pts []vectors.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAll {
		return f.Err
	}
	if f.points[collection] == nil {
		f.points[collection] = make(map[string]vectors.Point)
	}
	for _, p := range pts {
		f.points[collection][p.ID] = p
	}
	return nil
}

// Search ranks stored points by cosine similarity to the query vector.
func (f *FakeVectorIndex) Search(ctx context.Context, collection string, vector []float32, limit uint64, filter map[string]interface{}) ([]vectors.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAll {
		return nil, f.Err
	}

	var results []vectors.SearchResult
	for _, p := range f.points[collection] {
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		results = append(results, vectors.SearchResult{
			ID:      p.ID,
			Score:   cosine(vector, p.Vector),
			Payload: p.Payload,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if uint64(len(results)) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes points by id.
func (f *FakeVectorIndex) Delete(ctx context.Context, collection string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.points[collection], id)
	}
	return nil
}

// Count reports how many points a collection holds.
func (f *FakeVectorIndex) Count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points[collection])
}

func matchesFilter(payload, filter map[string]interface{}) bool {
	for k, want := range filter {
		if payload[k] != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
