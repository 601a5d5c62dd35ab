package chat

import (
	"context"
	"sort"
	"time"

	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

// PresenceMirror shares presence with other nodes. A user is online while any
// node lists it. Implemented by service/storage.
type PresenceMirror interface {
	SetOnline(ctx context.Context, nodeID, userID string) error
	SetOffline(ctx context.Context, nodeID, userID string, lastSeen time.Time) error
	OnlineAmong(ctx context.Context, userIDs []string) ([]string, error)
	Refresh(ctx context.Context, nodeID string, userIDs []string) error
}

type CoreConf struct {
	NodeID     string
	SweepEvery time.Duration // housekeeping period, default 5s
	Clock      func() time.Time
}

func (c *CoreConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 5 * time.Second
	}
	if c.NodeID == "" {
		c.NodeID = "local"
	}
}

// Core ties sessions, rooms, typing and the bus together. The transport calls
// it for every connection lifecycle step.
type Core struct {
	sessions *SessionRegistry
	rooms    *RoomDirectory
	bus      EventBus
	typing   *TypingTracker
	mirror   PresenceMirror // optional
	conf     CoreConf
	log      *zap.Logger
}

func NewCore(sessions *SessionRegistry, rooms *RoomDirectory, bus EventBus, typing *TypingTracker, mirror PresenceMirror, conf CoreConf, log *zap.Logger) *Core {
	conf.norm()
	if log == nil {
		log = zap.NewNop()
	}
	return &Core{
		sessions: sessions,
		rooms:    rooms,
		bus:      bus,
		typing:   typing,
		mirror:   mirror,
		conf:     conf,
		log:      log,
	}
}

func (c *Core) Sessions() *SessionRegistry { return c.sessions }
func (c *Core) Rooms() *RoomDirectory      { return c.rooms }
func (c *Core) Bus() EventBus              { return c.bus }

// ===== connection lifecycle =====

// OnConnect registers a new connection. An empty userID keeps it anonymous
// until OnAuthenticate.
func (c *Core) OnConnect(ctx context.Context, sessionID, userID string, sink Sink) error {
	res, err := c.sessions.Register(sessionID, userID, sink)
	if err != nil {
		return err
	}
	c.dropEvicted(ctx, res.Evicted)
	if userID == "" {
		c.log.Debug("anonymous session connected", zap.String("session", sessionID))
		return nil
	}
	c.attach(ctx, sessionID, userID, res.FirstForUser)
	return nil
}

// OnAuthenticate binds an anonymous session to userID.
func (c *Core) OnAuthenticate(ctx context.Context, sessionID, userID string) error {
	if userID == "" {
		return errs.ErrArgs.WrapMsg("empty user id")
	}
	if _, ok := c.sessions.Session(sessionID); !ok {
		return errs.ErrSessionNotFound.WrapMsg("authenticate", "session", sessionID)
	}
	res, err := c.sessions.Register(sessionID, userID, nil)
	if err != nil {
		return err
	}
	c.dropEvicted(ctx, res.Evicted)
	if res.Promoted {
		c.attach(ctx, sessionID, userID, res.FirstForUser)
	}
	return nil
}

func (c *Core) attach(ctx context.Context, sessionID, userID string, first bool) {
	n := c.rooms.AutoJoinAll(ctx, sessionID, userID)

	// the connection may have dropped while membership was loading
	if _, ok := c.sessions.Session(sessionID); !ok {
		c.rooms.LeaveAll(sessionID)
		return
	}
	c.log.Info("session online",
		zap.String("session", sessionID), zap.String("user", userID),
		zap.Int("rooms", n), zap.Bool("first", first))
	if !first {
		return
	}
	c.bus.PublishToRooms(ctx, c.rooms.RoomsOf(sessionID), UserOnline{UserID: userID}, sessionID)
	if c.mirror != nil {
		if err := c.mirror.SetOnline(ctx, c.conf.NodeID, userID); err != nil {
			c.log.Warn("presence mirror online failed", zap.String("user", userID), zap.Error(err))
		}
	}
}

// OnDisconnect removes the session, clears its typing state and announces
// the user offline when no session of the user is left.
func (c *Core) OnDisconnect(ctx context.Context, sessionID string) {
	userID, last := c.sessions.Unregister(sessionID)
	rooms := c.rooms.LeaveAll(sessionID)
	if userID == "" {
		return
	}
	c.typing.StopAll(ctx, sessionID, userID, rooms)
	if !last {
		c.log.Info("session closed", zap.String("session", sessionID), zap.String("user", userID))
		return
	}

	lastSeen := c.conf.Clock()
	c.bus.PublishToRooms(ctx, rooms, UserOffline{UserID: userID, LastSeen: lastSeen}, sessionID)
	if c.mirror != nil {
		if err := c.mirror.SetOffline(ctx, c.conf.NodeID, userID, lastSeen); err != nil {
			c.log.Warn("presence mirror offline failed", zap.String("user", userID), zap.Error(err))
		}
	}
	c.log.Info("user offline", zap.String("session", sessionID), zap.String("user", userID))
}

// dropEvicted tears down sessions pushed out by the per-user limit. The user
// still has the new session, so no offline event is published.
func (c *Core) dropEvicted(ctx context.Context, evicted []Session) {
	for _, s := range evicted {
		rooms := c.rooms.LeaveAll(s.ID)
		c.typing.StopAll(ctx, s.ID, s.UserID, rooms)
		if s.Sink != nil {
			_ = s.Sink.Close()
		}
		c.log.Info("session evicted", zap.String("session", s.ID), zap.String("user", s.UserID))
	}
}

// Heartbeat refreshes the session's activity time.
func (c *Core) Heartbeat(sessionID string) error {
	return c.sessions.Touch(sessionID)
}

// ===== rooms =====

func (c *Core) authed(sessionID string) (Session, error) {
	s, ok := c.sessions.Session(sessionID)
	if !ok {
		return s, errs.ErrSessionNotFound.WrapMsg("session not found", "session", sessionID)
	}
	if !s.Authenticated() {
		return s, errs.ErrUnauthenticated.WrapMsg("session not authenticated", "session", sessionID)
	}
	return s, nil
}

// OnJoinRoom subscribes the session after checking participation.
func (c *Core) OnJoinRoom(ctx context.Context, sessionID, conversationID string) error {
	if conversationID == "" {
		return errs.ErrArgs.WrapMsg("empty conversation id")
	}
	s, err := c.authed(sessionID)
	if err != nil {
		return err
	}
	ok, err := c.rooms.CanJoin(ctx, conversationID, s.UserID)
	if err != nil {
		return errs.WrapMsg(err, "participation lookup", "conversation", conversationID)
	}
	if !ok {
		return errs.ErrNotParticipant.WrapMsg("not a participant", "conversation", conversationID, "user", s.UserID)
	}
	c.rooms.Join(sessionID, conversationID)
	return nil
}

func (c *Core) OnLeaveRoom(ctx context.Context, sessionID, conversationID string) error {
	s, err := c.authed(sessionID)
	if err != nil {
		return err
	}
	if c.rooms.Leave(sessionID, conversationID) {
		c.typing.Stop(ctx, sessionID, conversationID, s.UserID)
	}
	return nil
}

// ===== typing =====

func (c *Core) inRoom(sessionID, conversationID string) bool {
	for _, r := range c.rooms.RoomsOf(sessionID) {
		if r == conversationID {
			return true
		}
	}
	return false
}

func (c *Core) OnTypingStart(ctx context.Context, sessionID, conversationID, userName string) error {
	s, err := c.authed(sessionID)
	if err != nil {
		return err
	}
	if !c.inRoom(sessionID, conversationID) {
		return errs.ErrNotParticipant.WrapMsg("not in room", "conversation", conversationID)
	}
	c.typing.Start(ctx, sessionID, conversationID, s.UserID, userName)
	return nil
}

func (c *Core) OnTypingStop(ctx context.Context, sessionID, conversationID string) error {
	s, err := c.authed(sessionID)
	if err != nil {
		return err
	}
	c.typing.Stop(ctx, sessionID, conversationID, s.UserID)
	return nil
}

// ===== presence =====

func (c *Core) IsOnline(userID string) bool {
	return c.sessions.IsOnline(userID)
}

// OnlineStatus returns the subset of userIDs online on this node or, through
// the mirror, on any other node. Mirror errors degrade to local presence.
func (c *Core) OnlineStatus(ctx context.Context, userIDs []string) []string {
	set := make(map[string]struct{}, len(userIDs))
	for _, u := range c.sessions.OnlineUsers(userIDs) {
		set[u] = struct{}{}
	}
	if c.mirror != nil && len(set) < len(userIDs) {
		remote, err := c.mirror.OnlineAmong(ctx, userIDs)
		if err != nil {
			c.log.Warn("presence mirror lookup failed", zap.Error(err))
		}
		for _, u := range remote {
			set[u] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// ===== housekeeping =====

// Run sweeps until ctx is done.
func (c *Core) Run(ctx context.Context) {
	t := time.NewTicker(c.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Sweep(ctx, c.conf.Clock())
		}
	}
}

// Sweep reaps stale anonymous sessions, expires typing entries and refreshes
// the presence mirror.
func (c *Core) Sweep(ctx context.Context, now time.Time) {
	for _, id := range c.sessions.ExpiredAnonymous(now) {
		s, ok := c.sessions.UnregisterIfAnonymous(id)
		if !ok {
			continue
		}
		c.rooms.LeaveAll(id)
		if s.Sink != nil {
			_ = s.Sink.Close()
		}
		c.log.Info("anonymous session reaped", zap.String("session", id))
	}
	c.typing.Sweep(ctx, now)
	if c.mirror != nil {
		if err := c.mirror.Refresh(ctx, c.conf.NodeID, c.sessions.LocalUsers()); err != nil {
			c.log.Warn("presence mirror refresh failed", zap.Error(err))
		}
	}
}
