package chat

import (
	"sort"
	"sync"
	"time"

	"PPRealtime/tools/errs"
)

// ===== config =====

type RegistryConf struct {
	MaxPerUser  int              // <=0 unlimited
	EvictOldest bool             // over the limit: evict oldest instead of rejecting
	AnonTTL     time.Duration    // anonymous sessions older than this are reaped
	Clock       func() time.Time // nil => time.Now
}

func (c *RegistryConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.AnonTTL <= 0 {
		c.AnonTTL = 5 * time.Minute
	}
}

// Sink is the outbound side of one transport connection.
type Sink interface {
	Deliver(frame []byte) error
	Close() error
}

// Session is a snapshot of one live connection.
type Session struct {
	ID          string
	UserID      string // empty while anonymous
	ConnectedAt time.Time
	UpdatedAt   time.Time
	Sink        Sink
}

func (s Session) Authenticated() bool { return s.UserID != "" }

type RegisterResult struct {
	Promoted     bool      // anonymous -> authenticated
	FirstForUser bool      // the user had no session before
	Evicted      []Session // removed to make room; caller tears them down
}

// SessionRegistry tracks live sessions. All mutations go through mu.
type SessionRegistry struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byUser map[string]map[string]*Session
	conf   RegistryConf
}

func NewSessionRegistry(conf RegistryConf) *SessionRegistry {
	conf.norm()
	return &SessionRegistry{
		byID:   make(map[string]*Session),
		byUser: make(map[string]map[string]*Session),
		conf:   conf,
	}
}

// Register adds sessionID, or promotes it when it is anonymous and userID is
// set. Registering the same (session, user) again is a no-op.
func (r *SessionRegistry) Register(sessionID, userID string, sink Sink) (RegisterResult, error) {
	var res RegisterResult
	if sessionID == "" {
		return res, errs.ErrArgs.WrapMsg("empty session id")
	}
	now := r.conf.Clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.byID[sessionID]
	if exists {
		if userID == "" || s.UserID == userID {
			if sink != nil {
				s.Sink = sink
			}
			return res, nil
		}
		if s.UserID != "" {
			return res, errs.ErrSessionBound.WrapMsg("session already bound", "session", sessionID, "user", s.UserID)
		}
	}

	hadSessions := len(r.byUser[userID]) > 0
	if userID != "" {
		evicted, err := r.ensureRoomForUserLocked(userID)
		if err != nil {
			return res, err
		}
		res.Evicted = evicted
	}

	if !exists {
		s = &Session{ID: sessionID, ConnectedAt: now}
		r.byID[sessionID] = s
	} else {
		res.Promoted = userID != ""
	}
	if sink != nil {
		s.Sink = sink
	}
	s.UpdatedAt = now

	if userID != "" {
		s.UserID = userID
		mm := r.byUser[userID]
		if mm == nil {
			mm = make(map[string]*Session)
			r.byUser[userID] = mm
		}
		res.FirstForUser = !hadSessions
		mm[sessionID] = s
	}
	return res, nil
}

// Unregister removes the session. userID is empty when the session was
// anonymous or unknown; last reports that the user has no session left.
func (r *SessionRegistry) Unregister(sessionID string) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok {
		return "", false
	}
	delete(r.byID, sessionID)
	if s.UserID == "" {
		return "", false
	}
	return s.UserID, r.dropFromUserLocked(s)
}

// UnregisterIfAnonymous removes the session only while it is still
// anonymous. A session promoted in the meantime is left alone.
func (r *SessionRegistry) UnregisterIfAnonymous(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok || s.UserID != "" {
		return Session{}, false
	}
	delete(r.byID, sessionID)
	return *s, true
}

func (r *SessionRegistry) dropFromUserLocked(s *Session) bool {
	mm := r.byUser[s.UserID]
	if mm == nil {
		return true
	}
	delete(mm, s.ID)
	if len(mm) == 0 {
		delete(r.byUser, s.UserID)
		return true
	}
	return false
}

func (r *SessionRegistry) Session(sessionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Touch refreshes the session's activity time.
func (r *SessionRegistry) Touch(sessionID string) error {
	now := r.conf.Clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok {
		return errs.ErrSessionNotFound.WrapMsg("touch", "session", sessionID)
	}
	s.UpdatedAt = now
	return nil
}

// SessionsFor returns a sorted copy of the user's session ids.
func (r *SessionRegistry) SessionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mm := r.byUser[userID]
	out := make([]string, 0, len(mm))
	for id := range mm {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *SessionRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// OnlineUsers filters userIDs down to those with a local session.
func (r *SessionRegistry) OnlineUsers(userIDs []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(userIDs))
	for _, u := range userIDs {
		if len(r.byUser[u]) > 0 {
			out = append(out, u)
		}
	}
	return out
}

// LocalUsers lists every user with at least one session on this node.
func (r *SessionRegistry) LocalUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	return out
}

// ExpiredAnonymous lists anonymous sessions connected before now-AnonTTL.
func (r *SessionRegistry) ExpiredAnonymous(now time.Time) []string {
	deadline := now.Add(-r.conf.AnonTTL)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, s := range r.byID {
		if s.UserID == "" && s.ConnectedAt.Before(deadline) {
			out = append(out, id)
		}
	}
	return out
}

// sinks snapshots the sinks of authenticated sessions among ids.
func (r *SessionRegistry) sinks(ids []string, except string) map[string]Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Sink, len(ids))
	for _, id := range ids {
		if id == except {
			continue
		}
		s, ok := r.byID[id]
		if !ok || s.UserID == "" || s.Sink == nil {
			continue
		}
		out[id] = s.Sink
	}
	return out
}

// All snapshots every session, anonymous ones included.
func (r *SessionRegistry) All() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, *s)
	}
	return out
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// ===== per-user limit / eviction =====

// ensureRoomForUserLocked must be called with mu held.
func (r *SessionRegistry) ensureRoomForUserLocked(userID string) ([]Session, error) {
	if r.conf.MaxPerUser <= 0 {
		return nil, nil
	}
	mm := r.byUser[userID]
	if len(mm) < r.conf.MaxPerUser {
		return nil, nil
	}
	if !r.conf.EvictOldest {
		return nil, errs.ErrTooManySessions.WrapMsg("session limit reached", "user", userID, "max", r.conf.MaxPerUser)
	}

	var evicted []Session
	for len(mm) >= r.conf.MaxPerUser {
		var oldest *Session
		for _, s := range mm {
			if oldest == nil || s.ConnectedAt.Before(oldest.ConnectedAt) {
				oldest = s
			}
		}
		delete(mm, oldest.ID)
		delete(r.byID, oldest.ID)
		evicted = append(evicted, *oldest)
	}
	return evicted, nil
}
