package music

import (
	"errors"
	"slices"
	"testing"
)

func reqs(qs ...string) []Request {
	out := make([]Request, 0, len(qs))
	for _, q := range qs {
		out = append(out, Request{Query: q})
	}
	return out
}

func TestEnqueueFIFO(t *testing.T) {
	s := NewSession(testRoom, DefaultSettings())
	s.Enqueue(reqs("a"), false)
	s.Enqueue(reqs("b", "c"), false)
	if pos := s.Enqueue(reqs("d"), false); pos != 4 {
		t.Errorf("expected position 4, got %d", pos)
	}
	if got := queries(s.Queue()); !slices.Equal(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("expected [a b c d], got %v", got)
	}
}

func TestEnqueueFront(t *testing.T) {
	t.Run("each front insert lands first", func(t *testing.T) {
		s := NewSession(testRoom, DefaultSettings())
		s.Enqueue(reqs("x"), false)
		s.Enqueue(reqs("A"), true)
		s.Enqueue(reqs("B"), true)
		if got := queries(s.Queue()); !slices.Equal(got, []string{"B", "A", "x"}) {
			t.Fatalf("expected [B A x], got %v", got)
		}
	})

	t.Run("batch keeps its own order", func(t *testing.T) {
		s := NewSession(testRoom, DefaultSettings())
		s.Enqueue(reqs("x"), false)
		if pos := s.Enqueue(reqs("p", "q"), true); pos != 1 {
			t.Errorf("expected position 1, got %d", pos)
		}
		if got := queries(s.Queue()); !slices.Equal(got, []string{"p", "q", "x"}) {
			t.Fatalf("expected [p q x], got %v", got)
		}
	})
}

func TestReorderBounds(t *testing.T) {
	s := NewSession(testRoom, DefaultSettings())
	s.Enqueue(reqs("a", "b", "c"), false)
	before := queries(s.Queue())

	checks := map[string]error{}
	_, checks["remove 0"] = s.Remove(0)
	_, checks["remove 4"] = s.Remove(4)
	_, checks["move 0 1"] = s.Move(0, 1)
	_, checks["move 1 4"] = s.Move(1, 4)
	checks["swap 1 9"] = s.Swap(1, 9)
	checks["insert 5"] = s.Insert(5, Request{Query: "z"})
	checks["insert 0"] = s.Insert(0, Request{Query: "z"})

	for name, err := range checks {
		if !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("%s: expected ErrInvalidPosition, got %v", name, err)
		}
	}
	if got := queries(s.Queue()); !slices.Equal(got, before) {
		t.Fatalf("expected queue unchanged %v, got %v", before, got)
	}
}

func TestReorder(t *testing.T) {
	s := NewSession(testRoom, DefaultSettings())
	s.Enqueue(reqs("a", "b", "c", "d"), false)

	if r, err := s.Remove(2); err != nil || r.Query != "b" {
		t.Fatalf("expected to remove b, got %v (%v)", r.Query, err)
	}
	if err := s.Swap(1, 3); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if got := queries(s.Queue()); !slices.Equal(got, []string{"d", "c", "a"}) {
		t.Fatalf("expected [d c a], got %v", got)
	}
	if _, err := s.Move(1, 3); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := queries(s.Queue()); !slices.Equal(got, []string{"c", "a", "d"}) {
		t.Fatalf("expected [c a d], got %v", got)
	}
	if err := s.Insert(4, Request{Query: "e"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(1, Request{Query: "f"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got := queries(s.Queue()); !slices.Equal(got, []string{"f", "c", "a", "d", "e"}) {
		t.Fatalf("expected [f c a d e], got %v", got)
	}
}

func TestShuffleAndClear(t *testing.T) {
	s := NewSession(testRoom, DefaultSettings())
	s.Enqueue(reqs("a", "b", "c", "d", "e"), false)
	s.Shuffle()
	got := queries(s.Queue())
	slices.Sort(got)
	if !slices.Equal(got, []string{"a", "b", "c", "d", "e"}) {
		t.Fatalf("expected shuffle to keep entries, got %v", got)
	}
	if n := s.Clear(); n != 5 {
		t.Errorf("expected 5 cleared, got %d", n)
	}
	if len(s.Queue()) != 0 {
		t.Errorf("expected empty queue after clear")
	}
}

func TestLoopMode(t *testing.T) {
	s := NewSession(testRoom, DefaultSettings())
	want := []LoopMode{LoopSong, LoopQueue, LoopOff, LoopSong}
	for i, w := range want {
		if got := s.CycleLoop(); got != w {
			t.Errorf("cycle %d: expected %s, got %s", i, w, got)
		}
	}

	for in, w := range map[string]LoopMode{"off": LoopOff, "song": LoopSong, "Queue": LoopQueue} {
		got, err := ParseLoopMode(in)
		if err != nil || got != w {
			t.Errorf("parse %q: expected %s, got %s (%v)", in, w, got, err)
		}
	}
	if _, err := ParseLoopMode("sideways"); err == nil {
		t.Errorf("expected error for unknown loop mode")
	}
}

func TestSettingsBounds(t *testing.T) {
	s := NewSession(testRoom, DefaultSettings())
	if err := s.SetVolume(2.5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for volume, got %v", err)
	}
	if err := s.SetSpeed(0.25); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for speed, got %v", err)
	}
	if err := s.SetFilter("chipmunk"); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("expected ErrUnknownFilter, got %v", err)
	}
	if err := s.SetFilter("nightcore"); err != nil {
		t.Fatalf("set filter: %v", err)
	}
	got := s.Settings()
	if got.Volume != 1 || got.Speed != 1 || got.Filter != "nightcore" {
		t.Errorf("unexpected settings %+v", got)
	}
}
