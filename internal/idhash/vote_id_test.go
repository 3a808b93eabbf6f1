package idhash

import "testing"

func TestComputeVoteID(t *testing.T) {
	id := ComputeVoteID("creator-1", "0xcurator", "0xtxhash")

	if len(id) != 64 {
		t.Errorf("Expected 64-char hex hash, got %d chars", len(id))
	}

	// Deterministic
	again := ComputeVoteID("creator-1", "0xcurator", "0xtxhash")
	if id != again {
		t.Error("Same inputs must produce the same id")
	}

	// Any input change produces a different id
	variants := []string{
		ComputeVoteID("creator-2", "0xcurator", "0xtxhash"),
		ComputeVoteID("creator-1", "0xother", "0xtxhash"),
		ComputeVoteID("creator-1", "0xcurator", "0xothertx"),
	}
	for i, v := range variants {
		if v == id {
			t.Errorf("Variant %d collided with original id", i)
		}
	}
}

func TestComputeVoteID_DelimiterSafety(t *testing.T) {
	// Field contents must not be able to shift across the delimiter
	a := ComputeVoteID("a|b", "c", "tx")
	b := ComputeVoteID("a", "b|c", "tx")
	if a == b {
		t.Error("Delimiter ambiguity produced colliding ids")
	}
}

func TestComputeOpportunityID_DelimiterSafety(t *testing.T) {
	a := ComputeOpportunityID("Indie|Works", "review", 1700000000)
	b := ComputeOpportunityID("Indie", "Works|review", 1700000000)
	if a == b {
		t.Error("Delimiter ambiguity produced colliding ids")
	}
}

func TestComputeOpportunityID(t *testing.T) {
	id := ComputeOpportunityID("IndieWorks", "A&R review", 1700000000)
	if len(id) != 64 {
		t.Errorf("Expected 64-char hex hash, got %d chars", len(id))
	}
	other := ComputeOpportunityID("IndieWorks", "A&R review", 1700000001)
	if id == other {
		t.Error("Different timestamps must produce different ids")
	}
}
