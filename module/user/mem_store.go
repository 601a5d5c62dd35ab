package user

import (
	"context"
	"sync"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"
)

// MemStore is the in-process variant of PgStore.
type MemStore struct {
	mu       sync.RWMutex
	tokens   map[string]model.DeviceToken // token -> device
	order    []string                     // registration order
	settings map[string]model.NotificationSettings
}

func NewMemStore() *MemStore {
	return &MemStore{
		tokens:   make(map[string]model.DeviceToken),
		settings: make(map[string]model.NotificationSettings),
	}
}

func (s *MemStore) RegisterToken(ctx context.Context, t model.DeviceToken) error {
	if t.UserID == "" || t.Token == "" {
		return errs.ErrArgs.WrapMsg("user id and token required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.Token]; !ok {
		s.order = append(s.order, t.Token)
	}
	t.Active = true
	s.tokens[t.Token] = t
	return nil
}

func (s *MemStore) DeactivateToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[token]; ok {
		t.Active = false
		s.tokens[token] = t
	}
	return nil
}

func (s *MemStore) ActiveTokens(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DeviceToken
	for _, tok := range s.order {
		if t := s.tokens[tok]; t.UserID == userID && t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemStore) Settings(ctx context.Context, userID string) (model.NotificationSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.settings[userID]; ok {
		return st, nil
	}
	return model.DefaultNotificationSettings(userID), nil
}

func (s *MemStore) SaveSettings(ctx context.Context, st model.NotificationSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[st.UserID] = st
	return nil
}
