package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type TypingConf struct {
	TTL        time.Duration // entries older than this expire
	MaxEntries int           // new entries beyond this are refused
	Clock      func() time.Time
}

func (c *TypingConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Second
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 100000
	}
}

type typingEntry struct {
	sessionID string
	startedAt time.Time
}

type typingKey struct {
	conversationID string
	userID         string
}

// TypingTracker keeps best-effort typing indicators. Nothing is persisted.
type TypingTracker struct {
	mu      sync.Mutex
	entries map[typingKey]typingEntry
	bus     EventBus
	conf    TypingConf
	log     *zap.Logger
}

func NewTypingTracker(bus EventBus, conf TypingConf, log *zap.Logger) *TypingTracker {
	conf.norm()
	if log == nil {
		log = zap.NewNop()
	}
	return &TypingTracker{
		entries: make(map[typingKey]typingEntry),
		bus:     bus,
		conf:    conf,
		log:     log,
	}
}

// Start records the entry and publishes typing:start to the room except the
// originating session. A repeated start only refreshes the entry.
func (t *TypingTracker) Start(ctx context.Context, sessionID, conversationID, userID, userName string) bool {
	k := typingKey{conversationID, userID}
	now := t.conf.Clock()

	t.mu.Lock()
	_, existed := t.entries[k]
	if !existed && len(t.entries) >= t.conf.MaxEntries {
		t.mu.Unlock()
		t.log.Warn("typing tracker full", zap.Int("max", t.conf.MaxEntries))
		return false
	}
	t.entries[k] = typingEntry{sessionID: sessionID, startedAt: now}
	t.mu.Unlock()

	if existed {
		return false
	}
	t.bus.PublishToRoom(ctx, conversationID, TypingStart{
		ConversationID: conversationID,
		UserID:         userID,
		UserName:       userName,
	}, sessionID)
	return true
}

// Stop removes the entry and publishes typing:stop if it existed.
func (t *TypingTracker) Stop(ctx context.Context, sessionID, conversationID, userID string) bool {
	k := typingKey{conversationID, userID}
	t.mu.Lock()
	_, ok := t.entries[k]
	delete(t.entries, k)
	t.mu.Unlock()

	if !ok {
		return false
	}
	t.bus.PublishToRoom(ctx, conversationID, TypingStop{ConversationID: conversationID, UserID: userID}, sessionID)
	return true
}

// StopAll clears the user's entries in every room the disconnecting session
// belonged to and returns how many typing:stop events were published.
func (t *TypingTracker) StopAll(ctx context.Context, sessionID, userID string, rooms []string) int {
	if userID == "" {
		return 0
	}
	var cleared []string
	t.mu.Lock()
	for _, room := range rooms {
		k := typingKey{room, userID}
		if _, ok := t.entries[k]; ok {
			delete(t.entries, k)
			cleared = append(cleared, room)
		}
	}
	t.mu.Unlock()

	for _, room := range cleared {
		t.bus.PublishToRoom(ctx, room, TypingStop{ConversationID: room, UserID: userID}, sessionID)
	}
	return len(cleared)
}

// Sweep expires stale entries and publishes typing:stop for each.
func (t *TypingTracker) Sweep(ctx context.Context, now time.Time) int {
	var expired []typingKey
	t.mu.Lock()
	for k, e := range t.entries {
		if now.Sub(e.startedAt) >= t.conf.TTL {
			expired = append(expired, k)
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()

	for _, k := range expired {
		t.bus.PublishToRoom(ctx, k.conversationID, TypingStop{ConversationID: k.conversationID, UserID: k.userID}, "")
	}
	return len(expired)
}

// Typing lists users currently typing in the conversation.
func (t *TypingTracker) Typing(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for k := range t.entries {
		if k.conversationID == conversationID {
			out = append(out, k.userID)
		}
	}
	return out
}

func (t *TypingTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
