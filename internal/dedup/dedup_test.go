package dedup

import "testing"

func TestSeenOrAdd(t *testing.T) {
	s := New(MinCapacityPerLeader)

	if s.SeenOrAdd("leaderA", "sig1") {
		t.Fatal("first sighting of sig1 reported as already seen")
	}
	if !s.SeenOrAdd("leaderA", "sig1") {
		t.Fatal("second sighting of sig1 reported as new")
	}
	if s.SeenOrAdd("leaderB", "sig1") {
		t.Fatal("same signature under a different leader should not be deduped")
	}
}

func TestNewEnforcesMinCapacity(t *testing.T) {
	s := New(10)
	if s.capacity != MinCapacityPerLeader {
		t.Errorf("capacity = %d, want %d", s.capacity, MinCapacityPerLeader)
	}
}

func TestReset(t *testing.T) {
	s := New(MinCapacityPerLeader)
	s.SeenOrAdd("leaderA", "sig1")
	s.Reset("leaderA")
	if s.SeenOrAdd("leaderA", "sig1") {
		t.Fatal("Reset should have cleared the cache for leaderA")
	}
}
