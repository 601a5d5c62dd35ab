package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"
)

// MemStore keeps receipts and participants in process. It backs tests and
// the "memory" store mode.
type MemStore struct {
	mu           sync.RWMutex
	receipts     map[string]map[string]*model.Receipt     // message -> recipient -> receipt
	participants map[string]map[string]*model.Participant // conversation -> user -> participant
}

func NewMemStore() *MemStore {
	return &MemStore{
		receipts:     make(map[string]map[string]*model.Receipt),
		participants: make(map[string]map[string]*model.Participant),
	}
}

// ===== participants =====

// AddParticipant joins (or re-joins) userID to the conversation.
func (s *MemStore) AddParticipant(ctx context.Context, conversationID, userID string) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	mm := s.participants[conversationID]
	if mm == nil {
		mm = make(map[string]*model.Participant)
		s.participants[conversationID] = mm
	}
	if p, ok := mm[userID]; ok {
		p.LeftAt = nil
		p.UpdatedAt = now
		return nil
	}
	mm[userID] = &model.Participant{ConversationID: conversationID, UserID: userID, UpdatedAt: now}
	return nil
}

func (s *MemStore) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[conversationID][userID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("participant", "conversation", conversationID, "user", userID)
	}
	p.LeftAt = &now
	p.UpdatedAt = now
	return nil
}

func (s *MemStore) SetMuted(ctx context.Context, conversationID, userID string, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[conversationID][userID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("participant", "conversation", conversationID, "user", userID)
	}
	p.Muted = muted
	return nil
}

func (s *MemStore) Participant(ctx context.Context, conversationID, userID string) (*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[conversationID][userID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("participant", "conversation", conversationID, "user", userID)
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) ParticipantsOf(ctx context.Context, conversationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for u, p := range s.participants[conversationID] {
		if p.Active() {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemStore) ConversationsOf(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for conv, mm := range s.participants {
		if p, ok := mm[userID]; ok && p.Active() {
			out = append(out, conv)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[conversationID][userID]
	return ok && p.Active(), nil
}

func (s *MemStore) IsMuted(ctx context.Context, conversationID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[conversationID][userID]
	return ok && p.Muted, nil
}

// ===== receipts =====

func (s *MemStore) CreateReceipts(ctx context.Context, msg *model.Message, recipientIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mm := s.receipts[msg.ID]
	if mm == nil {
		mm = make(map[string]*model.Receipt, len(recipientIDs))
		s.receipts[msg.ID] = mm
	}
	for _, u := range recipientIDs {
		if _, ok := mm[u]; ok {
			continue
		}
		mm[u] = &model.Receipt{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			RecipientID:    u,
			Status:         model.StatusSent,
			SentAt:         at,
			CreatedAt:      at,
		}
		if p, ok := s.participants[msg.ConversationID][u]; ok && p.Active() {
			p.UnreadCount++
			p.UpdatedAt = at
		}
	}
	return nil
}

func (s *MemStore) GetReceipt(ctx context.Context, messageID, recipientID string) (*model.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[messageID][recipientID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("receipt", "message", messageID, "user", recipientID)
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) AdvanceReceipt(ctx context.Context, messageID, recipientID string, to model.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[messageID][recipientID]
	if !ok {
		return false, errs.ErrRecordNotFound.WrapMsg("receipt", "message", messageID, "user", recipientID)
	}
	if r.Status >= to {
		return false, nil
	}
	r.Status = to
	r.StampFor(to, at)
	return true, nil
}

func (s *MemStore) PendingReceipts(ctx context.Context, conversationID, recipientID string) ([]model.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Receipt
	for _, mm := range s.receipts {
		r, ok := mm[recipientID]
		if ok && r.ConversationID == conversationID && r.Status < model.StatusRead {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].MessageID < out[j].MessageID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemStore) ReceiptsOf(ctx context.Context, messageID string) ([]model.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mm := s.receipts[messageID]
	out := make([]model.Receipt, 0, len(mm))
	for _, r := range mm {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out, nil
}

func (s *MemStore) ResetUnread(ctx context.Context, conversationID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[conversationID][userID]
	if !ok {
		return nil
	}
	p.UnreadCount = 0
	p.LastReadAt = &at
	p.UpdatedAt = at
	return nil
}
