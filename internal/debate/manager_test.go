package debate

import "testing"

func TestManagerSnapshotsAreCopies(t *testing.T) {
	m := NewManager(5)
	m.Start("chan-1", "topic", "neutral")

	c, ok := m.Get("chan-1")
	if !ok {
		t.Fatalf("context missing")
	}
	c.TurnCount = 99

	fresh, _ := m.Get("chan-1")
	if fresh.TurnCount != 0 {
		t.Fatalf("snapshot mutation leaked into manager: %d", fresh.TurnCount)
	}
}

func TestManagerEndIsIdempotent(t *testing.T) {
	m := NewManager(5)
	m.Start("chan-1", "topic", "neutral")
	m.End("chan-1")
	m.End("chan-1")
	if m.Active("chan-1") {
		t.Fatalf("context survived End")
	}
	if _, ok := m.IncrementTurn("chan-1"); ok {
		t.Fatalf("increment succeeded on ended debate")
	}
}

func TestLookupPersonality(t *testing.T) {
	if p, ok := LookupPersonality("optimist"); !ok || p.Name != "楽観派AI" {
		t.Fatalf("optimist = %+v ok=%v", p, ok)
	}
	if p, ok := LookupPersonality("bogus"); ok || p.Key != "neutral" {
		t.Fatalf("fallback = %+v ok=%v", p, ok)
	}
	keys := PersonalityKeys()
	if len(keys) != 3 || keys[0] != "neutral" {
		t.Fatalf("keys = %v", keys)
	}
}
