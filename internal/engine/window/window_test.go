package window

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"CyberGuard/internal/model"
)

func packets(from, n int) []model.Packet {
	out := make([]model.Packet, n)
	for i := range out {
		out[i] = model.Packet{ID: fmt.Sprintf("p%d", from+i)}
	}
	return out
}

func TestPushKeepsMostRecentFirst(t *testing.T) {
	w := New(5)
	got := w.Push(packets(0, 3))
	want := []string{"p2", "p1", "p0"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestPushEvictsOldest(t *testing.T) {
	w := New(4)
	w.Push(packets(0, 3))
	got := w.Push(packets(3, 3))

	want := []string{"p5", "p4", "p3", "p2"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
	if w.Len() != 4 {
		t.Errorf("Len() = %d, want 4", w.Len())
	}
}

func TestPushOversizedBatch(t *testing.T) {
	w := New(3)
	got := w.Push(packets(0, 10))
	want := []string{"p9", "p8", "p7"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestEmptyPushIsNoop(t *testing.T) {
	w := New(3)
	w.Push(packets(0, 2))
	got := w.Push(nil)
	if len(got) != 2 || got[0].ID != "p1" {
		t.Errorf("empty push changed the window: %+v", got)
	}
}

func TestSnapshotLimit(t *testing.T) {
	w := New(10)
	w.Push(packets(0, 6))

	if got := w.Snapshot(2); len(got) != 2 || got[0].ID != "p5" || got[1].ID != "p4" {
		t.Errorf("Snapshot(2) = %+v", got)
	}
	if got := w.Snapshot(100); len(got) != 6 {
		t.Errorf("Snapshot(100) returned %d packets, want 6", len(got))
	}
	if got := w.Snapshot(0); len(got) != 0 {
		t.Errorf("Snapshot(0) returned %d packets", len(got))
	}
}

// The window must hold exactly the W most recently pushed packets no matter
// how batch sizes are interleaved.
func TestWindowBoundProperty(t *testing.T) {
	const capacity = 50
	rng := rand.New(rand.NewPCG(1, 2))
	w := New(capacity)

	var all []model.Packet
	next := 0
	for round := 0; round < 200; round++ {
		batch := packets(next, rng.IntN(30))
		next += len(batch)
		all = append(all, batch...)
		got := w.Push(batch)

		if len(got) > capacity {
			t.Fatalf("round %d: window holds %d packets, cap %d", round, len(got), capacity)
		}
		wantLen := min(len(all), capacity)
		if len(got) != wantLen {
			t.Fatalf("round %d: len = %d, want %d", round, len(got), wantLen)
		}
		for i := 0; i < wantLen; i++ {
			if got[i].ID != all[len(all)-1-i].ID {
				t.Fatalf("round %d: got[%d] = %s, want %s", round, i, got[i].ID, all[len(all)-1-i].ID)
			}
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	w := New(3)
	snap := w.Push(packets(0, 2))
	snap[0].ID = "mutated"
	if got := w.Snapshot(1); got[0].ID != "p1" {
		t.Errorf("window content changed through a snapshot: %s", got[0].ID)
	}
}
