package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	fail   bool
}

func (s *recSink) Deliver(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink broken")
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// events returns the event names received, in order.
func (s *recSink) events(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		in, err := ParseFrame(f)
		if err != nil {
			t.Fatalf("bad outbound frame %q: %v", f, err)
		}
		out = append(out, in.Event)
	}
	return out
}

func (s *recSink) count(t *testing.T, event string) int {
	n := 0
	for _, e := range s.events(t) {
		if e == event {
			n++
		}
	}
	return n
}

func (s *recSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

// fakeMembers maps users to conversations.
type fakeMembers struct {
	convs map[string][]string
	err   error
}

func (m *fakeMembers) ConversationsOf(ctx context.Context, userID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.convs[userID], nil
}

func (m *fakeMembers) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, c := range m.convs[userID] {
		if c == conversationID {
			return true, nil
		}
	}
	return false, nil
}

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	sessions *SessionRegistry
	rooms    *RoomDirectory
	bus      *LocalBus
	typing   *TypingTracker
	core     *Core
	clock    *fakeClock
	members  *fakeMembers
}

func newFixture(regConf RegistryConf, members map[string][]string) *fixture {
	f := &fixture{clock: newFakeClock(), members: &fakeMembers{convs: members}}
	regConf.Clock = f.clock.Now
	f.sessions = NewSessionRegistry(regConf)
	f.rooms = NewRoomDirectory(f.members, nil)
	f.bus = NewLocalBus(f.sessions, f.rooms, nil)
	f.typing = NewTypingTracker(f.bus, TypingConf{TTL: 5 * time.Second, Clock: f.clock.Now}, nil)
	f.core = NewCore(f.sessions, f.rooms, f.bus, f.typing, nil, CoreConf{NodeID: "n1", Clock: f.clock.Now}, nil)
	return f
}

func (f *fixture) connect(t *testing.T, sid, uid string) *recSink {
	t.Helper()
	s := &recSink{}
	if err := f.core.OnConnect(context.Background(), sid, uid, s); err != nil {
		t.Fatalf("connect %s/%s: %v", sid, uid, err)
	}
	f.clock.Add(time.Millisecond)
	return s
}
