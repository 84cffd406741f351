package locks

import "testing"

func TestTryAcquireAndRelease(t *testing.T) {
	r := NewRegistry()

	if !r.TryAcquire("episode") {
		t.Fatal("first acquire should succeed")
	}
	if r.TryAcquire("episode") {
		t.Fatal("second acquire of held lock should fail")
	}
	if !r.Held("episode") {
		t.Error("expected lock to be held")
	}

	// A different name is independent.
	if !r.TryAcquire("maintenance") {
		t.Fatal("independent lock should acquire")
	}
	r.Release("maintenance")

	r.Release("episode")
	if r.Held("episode") {
		t.Error("expected lock released")
	}
	if !r.TryAcquire("episode") {
		t.Fatal("re-acquire after release should succeed")
	}
	r.Release("episode")
}

func TestReleaseUnheldIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Release("never-taken")
	if !r.TryAcquire("never-taken") {
		t.Fatal("acquire after spurious release should succeed")
	}
}
