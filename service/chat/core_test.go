package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"
)

func TestCoreOnlineWhileAnySession(t *testing.T) {
	f := newFixture(RegistryConf{}, map[string][]string{"u1": {"c1"}, "u2": {"c1"}})
	ctx := context.Background()

	peer := f.connect(t, "p1", "u2")
	f.connect(t, "a", "u1")
	f.connect(t, "b", "u1")
	if !f.core.IsOnline("u1") {
		t.Fatal("u1 online")
	}
	if n := peer.count(t, "user:online"); n != 1 {
		t.Fatalf("user:online published %d times, want once per user", n)
	}

	f.core.OnDisconnect(ctx, "a")
	if !f.core.IsOnline("u1") || peer.count(t, "user:offline") != 0 {
		t.Fatal("u1 still has session b")
	}
	f.core.OnDisconnect(ctx, "b")
	if f.core.IsOnline("u1") {
		t.Fatal("u1 should be offline")
	}
	if peer.count(t, "user:offline") != 1 {
		t.Fatal("user:offline expected after the last session")
	}
}

func TestCoreDisconnectClearsRoomAndTyping(t *testing.T) {
	f := newFixture(RegistryConf{}, map[string][]string{"u1": {"c1"}})
	ctx := context.Background()
	f.connect(t, "s1", "u1")
	if err := f.core.OnTypingStart(ctx, "s1", "c1", "Ann"); err != nil {
		t.Fatal(err)
	}

	// watcher subscribed directly so it sees the teardown events
	w := &recSink{}
	_, _ = f.sessions.Register("w", "watcher", w)
	f.rooms.Join("w", "c1")

	f.core.OnDisconnect(ctx, "s1")
	f.rooms.Leave("w", "c1")

	if f.core.IsOnline("u1") {
		t.Fatal("u1 offline")
	}
	if f.rooms.HasRoom("c1") {
		t.Fatal("room c1 must be deleted with its last subscriber")
	}
	if f.typing.Len() != 0 {
		t.Fatal("typing entry must be cleared")
	}
	if w.count(t, "typing:stop") != 1 || w.count(t, "user:offline") != 1 {
		t.Fatalf("events = %v", w.events(t))
	}
}

func TestCoreMultiDeviceFanOut(t *testing.T) {
	f := newFixture(RegistryConf{}, map[string][]string{"u1": {"c1"}, "u2": {"c1"}})
	ctx := context.Background()
	a := f.connect(t, "a", "u1")
	b := f.connect(t, "b", "u1")
	f.connect(t, "x", "u2")

	msg := model.Message{ID: "m1", ConversationID: "c1", SenderID: "u2", Content: "hi"}
	f.bus.PublishToRoom(ctx, "c1", MessageReceived{Message: msg}, "x")
	if a.count(t, "message:received") != 1 || b.count(t, "message:received") != 1 {
		t.Fatal("both devices receive the message")
	}

	f.core.OnDisconnect(ctx, "a")
	if !f.core.IsOnline("u1") {
		t.Fatal("u1 still online via b")
	}
	rooms := f.rooms.RoomsOf("b")
	if len(rooms) != 1 || rooms[0] != "c1" {
		t.Fatalf("b rooms = %v", rooms)
	}
}

func TestCoreAnonymousSession(t *testing.T) {
	f := newFixture(RegistryConf{}, map[string][]string{"u1": {"c1"}})
	ctx := context.Background()
	anon := f.connect(t, "s1", "")

	err := f.core.OnJoinRoom(ctx, "s1", "c1")
	if !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("anonymous join: %v", err)
	}
	if err := f.core.OnTypingStart(ctx, "s1", "c1", "x"); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("anonymous typing: %v", err)
	}

	if err := f.core.OnAuthenticate(ctx, "s1", "u1"); err != nil {
		t.Fatal(err)
	}
	if !f.core.IsOnline("u1") {
		t.Fatal("authenticated session makes u1 online")
	}
	if got := f.rooms.RoomsOf("s1"); len(got) != 1 {
		t.Fatalf("auto-join after auth: %v", got)
	}
	f.bus.PublishToRoom(ctx, "c1", UserOnline{UserID: "u9"}, "")
	if anon.count(t, "user:online") != 1 {
		t.Fatal("promoted session now receives fan-out")
	}

	if err := f.core.OnAuthenticate(ctx, "nope", "u1"); !errors.Is(err, errs.ErrSessionNotFound) {
		t.Fatalf("unknown session: %v", err)
	}
	if err := f.core.OnAuthenticate(ctx, "s1", ""); !errors.Is(err, errs.ErrArgs) {
		t.Fatalf("empty user: %v", err)
	}
}

func TestCoreJoinChecksParticipation(t *testing.T) {
	f := newFixture(RegistryConf{}, map[string][]string{"u1": {"c1"}})
	ctx := context.Background()
	f.connect(t, "s1", "u1")
	f.rooms.Leave("s1", "c1")

	if err := f.core.OnJoinRoom(ctx, "s1", "c2"); !errors.Is(err, errs.ErrNotParticipant) {
		t.Fatalf("join c2: %v", err)
	}
	if err := f.core.OnTypingStart(ctx, "s1", "c1", "Ann"); !errors.Is(err, errs.ErrNotParticipant) {
		t.Fatalf("typing outside the room: %v", err)
	}
	if err := f.core.OnJoinRoom(ctx, "s1", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := f.core.OnLeaveRoom(ctx, "s1", "c1"); err != nil {
		t.Fatal(err)
	}
	if f.rooms.HasRoom("c1") {
		t.Fatal("room should be gone")
	}
}

func TestCoreEvictionKeepsUserOnline(t *testing.T) {
	f := newFixture(RegistryConf{MaxPerUser: 1, EvictOldest: true}, map[string][]string{"u1": {"c1"}, "u2": {"c1"}})
	peer := f.connect(t, "p", "u2")
	old := f.connect(t, "a", "u1")
	f.connect(t, "b", "u1")

	if !old.isClosed() {
		t.Fatal("evicted sink must be closed")
	}
	if _, ok := f.sessions.Session("a"); ok {
		t.Fatal("evicted session removed")
	}
	if !f.core.IsOnline("u1") || peer.count(t, "user:offline") != 0 {
		t.Fatal("eviction is not an offline transition")
	}
}

func TestCoreSweepReapsAnonymous(t *testing.T) {
	f := newFixture(RegistryConf{AnonTTL: time.Minute}, nil)
	anon := f.connect(t, "s1", "")
	f.core.Sweep(context.Background(), f.clock.Now().Add(2*time.Minute))
	if _, ok := f.sessions.Session("s1"); ok {
		t.Fatal("anonymous session should be reaped")
	}
	if !anon.isClosed() {
		t.Fatal("reaped sink closed")
	}
}

type fakeMirror struct {
	mu      sync.Mutex
	online  map[string]bool
	remote  []string
	err     error
	refresh [][]string
}

func (m *fakeMirror) SetOnline(ctx context.Context, nodeID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[userID] = true
	return nil
}

func (m *fakeMirror) SetOffline(ctx context.Context, nodeID, userID string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, userID)
	return nil
}

func (m *fakeMirror) OnlineAmong(ctx context.Context, userIDs []string) ([]string, error) {
	return m.remote, m.err
}

func (m *fakeMirror) Refresh(ctx context.Context, nodeID string, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh = append(m.refresh, userIDs)
	return nil
}

func TestCoreMirrorAndOnlineStatus(t *testing.T) {
	f := newFixture(RegistryConf{}, nil)
	mirror := &fakeMirror{online: map[string]bool{}, remote: []string{"u3"}}
	f.core = NewCore(f.sessions, f.rooms, f.bus, f.typing, mirror, CoreConf{NodeID: "n1", Clock: f.clock.Now}, nil)
	ctx := context.Background()

	f.connect(t, "s1", "u1")
	if !mirror.online["u1"] {
		t.Fatal("mirror should see u1 online")
	}

	got := f.core.OnlineStatus(ctx, []string{"u1", "u2", "u3"})
	sort.Strings(got)
	if len(got) != 2 || got[0] != "u1" || got[1] != "u3" {
		t.Fatalf("online = %v", got)
	}

	mirror.err = errors.New("redis down")
	mirror.remote = nil
	if got := f.core.OnlineStatus(ctx, []string{"u1", "u3"}); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("degraded online = %v", got)
	}

	f.core.Sweep(ctx, f.clock.Now())
	if len(mirror.refresh) != 1 || len(mirror.refresh[0]) != 1 {
		t.Fatalf("refresh = %v", mirror.refresh)
	}

	f.core.OnDisconnect(ctx, "s1")
	if mirror.online["u1"] {
		t.Fatal("mirror should see u1 offline")
	}
}
