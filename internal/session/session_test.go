package session

import (
	"bytes"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSpawnRunsCommandAndProducesOutput(t *testing.T) {
	s, err := Spawn("t1", []string{"echo", "hello"}, 0, 0, nil, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer s.Kill()

	waitFor(t, 2*time.Second, func() bool {
		return bytes.Contains(s.scrollback.Contents(), []byte("hello"))
	})
}

func TestIsAliveReflectsProcessState(t *testing.T) {
	s, err := Spawn("t2", []string{"sleep", "5"}, 0, 0, nil, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if !s.IsAlive() {
		t.Fatal("IsAlive() = false immediately after spawn")
	}

	s.Kill()
	waitFor(t, 3*time.Second, func() bool { return !s.IsAlive() })
}

func TestDoneClosesAfterKill(t *testing.T) {
	s, err := Spawn("t3", []string{"sleep", "5"}, 0, 0, nil, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	s.Kill()

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("Done() did not close within the kill grace period")
	}
}

func TestSubscribeWithSnapshotReceivesLiveOutput(t *testing.T) {
	s, err := Spawn("t4", []string{"cat"}, 0, 0, nil, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer s.Kill()

	_, sub := s.SubscribeWithSnapshot()

	s.Input <- []byte("ping\n")

	select {
	case data := <-sub.Ch:
		if !bytes.Contains(data, []byte("ping")) {
			t.Fatalf("got %q, want it to contain %q", data, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive echoed input")
	}
}

func TestSessionMetadata(t *testing.T) {
	s, err := Spawn("t5", []string{"sleep", "5"}, 0, 0, nil, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer s.Kill()

	if _, ok := s.GetEnv("missing"); ok {
		t.Fatal("GetEnv(missing) ok = true, want false")
	}

	s.SetEnv("k", "v")
	if v, ok := s.GetEnv("k"); !ok || v != "v" {
		t.Fatalf("GetEnv(k) = (%q, %v), want (v, true)", v, ok)
	}

	all := s.GetAllEnv()
	if all["k"] != "v" {
		t.Fatalf("GetAllEnv()[k] = %q, want v", all["k"])
	}
}
