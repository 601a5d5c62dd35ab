package chat

import (
	"context"
	"testing"
	"time"
)

func typingFixture(t *testing.T, conf TypingConf) (*TypingTracker, *recSink, *recSink) {
	t.Helper()
	reg := NewSessionRegistry(RegistryConf{})
	rooms := NewRoomDirectory(nil, nil)
	a, b := &recSink{}, &recSink{}
	_, _ = reg.Register("sa", "ua", a)
	_, _ = reg.Register("sb", "ub", b)
	rooms.Join("sa", "c1")
	rooms.Join("sb", "c1")
	return NewTypingTracker(NewLocalBus(reg, rooms, nil), conf, nil), a, b
}

func TestTypingStartStop(t *testing.T) {
	tr, a, b := typingFixture(t, TypingConf{})
	ctx := context.Background()

	if !tr.Start(ctx, "sa", "c1", "ua", "Ann") {
		t.Fatal("first start publishes")
	}
	if tr.Start(ctx, "sa", "c1", "ua", "Ann") {
		t.Fatal("repeated start only refreshes")
	}
	if b.count(t, "typing:start") != 1 || a.count(t, "typing:start") != 0 {
		t.Fatal("typing:start goes to the room except the typist")
	}
	if got := tr.Typing("c1"); len(got) != 1 || got[0] != "ua" {
		t.Fatalf("typing = %v", got)
	}

	if !tr.Stop(ctx, "sa", "c1", "ua") || tr.Stop(ctx, "sa", "c1", "ua") {
		t.Fatal("stop publishes once")
	}
	if b.count(t, "typing:stop") != 1 {
		t.Fatal("typing:stop expected")
	}
}

func TestTypingSweepExpires(t *testing.T) {
	clock := newFakeClock()
	tr, _, b := typingFixture(t, TypingConf{TTL: 5 * time.Second, Clock: clock.Now})
	ctx := context.Background()
	tr.Start(ctx, "sa", "c1", "ua", "Ann")

	if n := tr.Sweep(ctx, clock.Now().Add(4*time.Second)); n != 0 {
		t.Fatalf("expired early: %d", n)
	}
	if n := tr.Sweep(ctx, clock.Now().Add(5*time.Second)); n != 1 {
		t.Fatalf("expired = %d", n)
	}
	if tr.Len() != 0 || b.count(t, "typing:stop") != 1 {
		t.Fatal("sweep should clear and announce")
	}
}

func TestTypingStopAllAndLimit(t *testing.T) {
	tr, _, b := typingFixture(t, TypingConf{MaxEntries: 1})
	ctx := context.Background()
	tr.Start(ctx, "sa", "c1", "ua", "Ann")
	if tr.Start(ctx, "sa", "c2", "ua", "Ann") {
		t.Fatal("tracker is full")
	}
	if n := tr.StopAll(ctx, "sa", "ua", []string{"c1", "c2"}); n != 1 {
		t.Fatalf("cleared %d", n)
	}
	if b.count(t, "typing:stop") != 1 {
		t.Fatal("stop for c1 expected")
	}
	if n := tr.StopAll(ctx, "sa", "", []string{"c1"}); n != 0 {
		t.Fatal("anonymous StopAll is a no-op")
	}
}
