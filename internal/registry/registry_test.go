package registry

import (
	"testing"
	"time"
)

func TestAllocateNameGeneratesUniqueNames(t *testing.T) {
	r := New(nil)
	a := r.AllocateName("")
	b := r.AllocateName("")
	if a == b {
		t.Fatalf("AllocateName returned the same name twice: %q", a)
	}
	if got := r.AllocateName("explicit"); got != "explicit" {
		t.Fatalf("AllocateName(explicit) = %q, want explicit", got)
	}
}

func TestCreateListAndKill(t *testing.T) {
	r := New(nil)

	s, err := r.Create("test1", []string{"sleep", "5"}, 0, 0, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Kill()

	if _, err := r.Create("test1", []string{"sleep", "5"}, 0, 0, nil); err == nil {
		t.Fatal("expected error creating a duplicate session name")
	}

	if !r.Has("test1") {
		t.Fatal("Has(test1) = false, want true")
	}

	list := r.List()
	if len(list) != 1 || list[0].Name != "test1" {
		t.Fatalf("List() = %v, want [test1]", list)
	}

	if !r.Kill("test1") {
		t.Fatal("Kill(test1) = false, want true")
	}
	if r.Has("test1") {
		t.Fatal("Has(test1) after Kill = true, want false")
	}
}

func TestReapDeadRemovesExitedSessions(t *testing.T) {
	r := New(nil)

	s, err := r.Create("short", []string{"true"}, 0, 0, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = s

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !s.IsAlive() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	dead := r.ReapDead()
	if len(dead) != 1 || dead[0] != "short" {
		t.Fatalf("ReapDead() = %v, want [short]", dead)
	}
	if r.Has("short") {
		t.Fatal("Has(short) after reap = true, want false")
	}
}

func TestKillAllClearsRegistry(t *testing.T) {
	r := New(nil)
	if _, err := r.Create("a", []string{"sleep", "5"}, 0, 0, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create("b", []string{"sleep", "5"}, 0, 0, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if n := r.KillAll(); n != 2 {
		t.Fatalf("KillAll() = %d, want 2", n)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() after KillAll = %d, want 0", r.Len())
	}
}
