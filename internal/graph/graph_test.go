package graph

import (
	"testing"

	"github.com/animus-hq/animus/internal/core"
	"github.com/animus-hq/animus/internal/storage"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(storage.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db)
}

func TestUpsertAndGet(t *testing.T) {
	s := testStore(t)

	e := &core.Edge{
		Kind:   core.EdgeAssociation,
		FromID: "mem-a",
		ToID:   "mem-b",
		Label:  "co_retrieved",
		Weight: 0.4,
	}
	if err := s.Upsert(e); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated id")
	}

	got, err := s.Get(core.EdgeAssociation, "mem-a", "mem-b", "co_retrieved")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Weight != 0.4 {
		t.Errorf("weight = %v, want 0.4", got.Weight)
	}

	// Second upsert on the same tuple updates in place.
	e2 := &core.Edge{
		Kind:   core.EdgeAssociation,
		FromID: "mem-a",
		ToID:   "mem-b",
		Label:  "co_retrieved",
		Weight: 0.6,
	}
	if err := s.Upsert(e2); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err = s.Get(core.EdgeAssociation, "mem-a", "mem-b", "co_retrieved")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Weight != 0.6 {
		t.Errorf("weight after update = %v, want 0.6", got.Weight)
	}
	if got.ID != e.ID {
		t.Errorf("id changed on upsert: %s -> %s", e.ID, got.ID)
	}
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)
	_, err := s.Get(core.EdgeAssociation, "x", "y", "z")
	if err != core.ErrRecordNotFound {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestNeighborsBothDirections(t *testing.T) {
	s := testStore(t)

	edges := []*core.Edge{
		{Kind: core.EdgeAssociation, FromID: "a", ToID: "b", Label: "assoc", Weight: 0.9},
		{Kind: core.EdgeAssociation, FromID: "c", ToID: "a", Label: "assoc", Weight: 0.5},
		{Kind: core.EdgeAssociation, FromID: "b", ToID: "c", Label: "assoc", Weight: 0.7},
	}
	for _, e := range edges {
		if err := s.Upsert(e); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	got, err := s.Neighbors("a", 10)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Ordered by weight descending.
	if got[0].Weight < got[1].Weight {
		t.Error("neighbors not sorted by weight desc")
	}
}

func TestDeleteAndPurge(t *testing.T) {
	s := testStore(t)

	e := &core.Edge{Kind: core.EdgeContradiction, FromID: "m1", ToID: "m2", Label: "conflicts"}
	if err := s.Upsert(e); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Delete(core.EdgeContradiction, "m1", "m2", "conflicts"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(core.EdgeContradiction, "m1", "m2", "conflicts"); err != core.ErrRecordNotFound {
		t.Errorf("expected not found after delete, got %v", err)
	}
	// Deleting again is fine.
	if err := s.Delete(core.EdgeContradiction, "m1", "m2", "conflicts"); err != nil {
		t.Errorf("double delete: %v", err)
	}

	if err := s.Upsert(&core.Edge{Kind: core.EdgeGoalLink, FromID: "g", ToID: "m", Label: "evidence"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.PurgeAll(); err != nil {
		t.Fatalf("purge: %v", err)
	}
	list, err := s.ListByKind(core.EdgeGoalLink)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty after purge, got %d", len(list))
	}
}
