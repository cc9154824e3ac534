package scrollback

import (
	"bytes"
	"strings"
	"testing"
)

func TestPushAndContents(t *testing.T) {
	b := New()
	b.Push([]byte("hello "))
	b.Push([]byte("world"))

	if got := string(b.Contents()); got != "hello world" {
		t.Fatalf("Contents = %q, want %q", got, "hello world")
	}
}

func TestPushEvictsOldestOnOverflow(t *testing.T) {
	b := New()
	b.Push(bytes.Repeat([]byte("a"), Cap))
	b.Push([]byte("bbb"))

	got := b.Contents()
	if len(got) != Cap {
		t.Fatalf("len(Contents()) = %d, want %d", len(got), Cap)
	}
	if !bytes.HasSuffix(got, []byte("bbb")) {
		t.Fatalf("Contents() does not end with the newest bytes")
	}
}

func TestLastLinesEmpty(t *testing.T) {
	b := New()
	if got := b.LastLines(5); len(got) != 0 {
		t.Fatalf("LastLines on empty buffer = %q, want empty", got)
	}
	b.Push([]byte("one\ntwo\n"))
	if got := b.LastLines(0); len(got) != 0 {
		t.Fatalf("LastLines(0) = %q, want empty", got)
	}
}

func TestLastLinesCountsFromTheEnd(t *testing.T) {
	b := New()
	b.Push([]byte(strings.Join([]string{"one", "two", "three", "four"}, "\n") + "\n"))

	got := string(b.LastLines(2))
	want := "three\nfour\n"
	if got != want {
		t.Fatalf("LastLines(2) = %q, want %q", got, want)
	}
}

func TestLastLinesMoreThanAvailableReturnsAll(t *testing.T) {
	b := New()
	b.Push([]byte("only\n"))

	if got := string(b.LastLines(10)); got != "only\n" {
		t.Fatalf("LastLines(10) = %q, want %q", got, "only\n")
	}
}

func TestLastLinesWithoutTrailingNewline(t *testing.T) {
	b := New()
	b.Push([]byte("one\ntwo"))

	if got := string(b.LastLines(1)); got != "two" {
		t.Fatalf("LastLines(1) = %q, want %q", got, "two")
	}
}

func TestPushAndPublishIsAtomicWithPush(t *testing.T) {
	b := New()
	var published []byte

	b.PushAndPublish([]byte("chunk"), func(data []byte) {
		published = data
		// The buffer's lock is held here, so read b.data directly: calling
		// Contents() would deadlock.
		if !bytes.Equal(b.data, []byte("chunk")) {
			t.Fatalf("buffer inside publish callback = %q, want %q", b.data, "chunk")
		}
	})

	if !bytes.Equal(published, []byte("chunk")) {
		t.Fatalf("published = %q, want %q", published, "chunk")
	}
}

func TestSnapshotAndSubscribeSeesConsistentState(t *testing.T) {
	b := New()
	b.Push([]byte("before"))

	var subscribed bool
	snap := b.SnapshotAndSubscribe(func() { subscribed = true })

	if !subscribed {
		t.Fatal("subscribe callback was not invoked")
	}
	if string(snap) != "before" {
		t.Fatalf("snapshot = %q, want %q", snap, "before")
	}

	b.PushAndPublish([]byte("after"), func([]byte) {})
	if string(snap) != "before" {
		t.Fatalf("snapshot mutated after later push: %q", snap)
	}
}
