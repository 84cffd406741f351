package beliefs

import (
	"context"
	"testing"

	"github.com/animus-hq/animus/internal/core"
)

func seedBoundary(t *testing.T, f gateFixture, content string, patterns []string, response core.BoundaryResponse, importance float64) *core.Belief {
	t.Helper()
	b := &core.Belief{
		Content:         content,
		Category:        core.BeliefBoundary,
		ChangeRequires:  core.ChangeDeliberate,
		Origin:          core.OriginSeeded,
		Importance:      importance,
		TriggerPatterns: patterns,
		ResponseType:    response,
	}
	if err := f.beliefs.Create(b); err != nil {
		t.Fatalf("create boundary: %v", err)
	}
	if err := f.guard.IndexBoundary(context.Background(), b); err != nil {
		t.Fatalf("index boundary: %v", err)
	}
	return b
}

func TestCheckLexicalMatch(t *testing.T) {
	f := testGate(t)
	ctx := context.Background()
	seedBoundary(t, f, "never share private keys", []string{"private key"}, core.BoundaryRefuse, 0.9)

	matches, err := f.guard.Check(ctx, "Here is my PRIVATE KEY for the wallet")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if !matches[0].Lexical || matches[0].Pattern != "private key" {
		t.Errorf("match = %+v, want lexical on pattern", matches[0])
	}
	if Refusal(matches) == nil {
		t.Error("expected refusal")
	}
}

func TestCheckSemanticMatch(t *testing.T) {
	f := testGate(t)
	ctx := context.Background()

	// Pin both the boundary statement and the checked content onto nearly
	// identical vectors so cosine clears the threshold.
	f.embed.SetVector("no discussing internal finances", []float32{1, 0, 0, 0})
	f.embed.SetVector("let me tell you about our revenue", []float32{0.98, 0.2, 0, 0})
	seedBoundary(t, f, "no discussing internal finances", nil, core.BoundaryNegotiate, 0.7)

	matches, err := f.guard.Check(ctx, "let me tell you about our revenue")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0].Lexical {
		t.Error("expected semantic match")
	}
	if matches[0].Similarity < semanticThreshold {
		t.Errorf("similarity = %v, want >= %v", matches[0].Similarity, semanticThreshold)
	}
	if Refusal(matches) != nil {
		t.Error("negotiate response must not refuse")
	}
}

func TestCheckBelowThresholdNoMatch(t *testing.T) {
	f := testGate(t)
	ctx := context.Background()

	f.embed.SetVector("never discuss politics", []float32{1, 0, 0, 0})
	f.embed.SetVector("the weather is nice", []float32{0, 1, 0, 0})
	seedBoundary(t, f, "never discuss politics", nil, core.BoundaryRefuse, 0.9)

	matches, err := f.guard.Check(ctx, "the weather is nice")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %d, want 0", len(matches))
	}
}

func TestCheckDeduplicatesPerBoundary(t *testing.T) {
	f := testGate(t)
	ctx := context.Background()

	// Both the pattern and the embedding match the same boundary; only one
	// hit survives.
	f.embed.SetVector("never reveal passwords", []float32{1, 0, 0, 0})
	f.embed.SetVector("the password is hunter2", []float32{0.99, 0.1, 0, 0})
	seedBoundary(t, f, "never reveal passwords", []string{"password"}, core.BoundaryRefuse, 0.9)

	matches, err := f.guard.Check(ctx, "the password is hunter2")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("matches = %d, want 1 deduplicated", len(matches))
	}
}

func TestCheckDegradesToLexicalOnEmbedFailure(t *testing.T) {
	f := testGate(t)
	ctx := context.Background()
	seedBoundary(t, f, "never share private keys", []string{"private key"}, core.BoundaryRefuse, 0.9)

	f.embed.FailAll = true
	f.embed.Err = core.ErrEmbeddingFailed

	matches, err := f.guard.Check(ctx, "here is the private key")
	if err != nil {
		t.Fatalf("check should degrade, not fail: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("matches = %d, want lexical hit", len(matches))
	}
}

func TestCheckEmptyCatalog(t *testing.T) {
	f := testGate(t)
	matches, err := f.guard.Check(context.Background(), "anything at all")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if matches != nil {
		t.Errorf("matches = %v, want nil", matches)
	}
}
