package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/module/user"
)

type fakeProvider struct {
	mu    sync.Mutex
	fail  map[string]bool
	block map[string]bool
	sent  map[string]Payload
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{fail: map[string]bool{}, block: map[string]bool{}, sent: map[string]Payload{}}
}

func (p *fakeProvider) SendToToken(ctx context.Context, token string, pl Payload) error {
	if p.block[token] {
		<-ctx.Done()
		return ctx.Err()
	}
	if p.fail[token] {
		return errors.New("provider rejected token")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent[token] = pl
	return nil
}

type mutes map[string]bool

func (m mutes) IsMuted(ctx context.Context, conversationID, userID string) (bool, error) {
	return m[conversationID+"/"+userID], nil
}

func register(t *testing.T, us *user.MemStore, userID string, tokens ...string) {
	t.Helper()
	for _, tok := range tokens {
		if err := us.RegisterToken(context.Background(), model.DeviceToken{UserID: userID, Token: tok, Platform: model.PlatformAndroid}); err != nil {
			t.Fatal(err)
		}
	}
}

func message() *model.Message {
	return &model.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", SenderName: "Alice", Type: model.MessageText, Content: "hello there"}
}

func TestDispatchCountsFailedTokens(t *testing.T) {
	us := user.NewMemStore()
	register(t, us, "bob", "tok-1", "tok-2", "tok-3")
	p := newFakeProvider()
	p.fail["tok-2"] = true
	d := NewDispatcher(p, us, nil, Conf{}, nil)

	res := d.Dispatch(context.Background(), message(), []string{"bob"})
	if res.SuccessCount != 2 || res.FailureCount != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.FailedTokens) != 1 || res.FailedTokens[0] != "tok-2" {
		t.Fatalf("failed = %v", res.FailedTokens)
	}
	if got := p.sent["tok-1"]; got.Title != "Alice" || got.Body != "hello there" || got.Data["message_id"] != "m1" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestDispatchSkipsIneligible(t *testing.T) {
	us := user.NewMemStore()
	register(t, us, "bob", "tok-bob")
	register(t, us, "carol", "tok-carol")
	register(t, us, "dave", "tok-dave")
	register(t, us, "alice", "tok-alice")
	off := model.DefaultNotificationSettings("dave")
	off.Enabled = false
	_ = us.SaveSettings(context.Background(), off)

	p := newFakeProvider()
	d := NewDispatcher(p, us, mutes{"c1/carol": true}, Conf{}, nil)
	res := d.Dispatch(context.Background(), message(), []string{"bob", "carol", "dave", "alice", "nobody"})

	if res.SuccessCount != 1 || res.FailureCount != 0 || len(res.FailedTokens) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := p.sent["tok-bob"]; !ok || len(p.sent) != 1 {
		t.Fatalf("sent = %v", p.sent)
	}
}

func TestDispatchGroupAndPreviewSettings(t *testing.T) {
	us := user.NewMemStore()
	register(t, us, "bob", "tok-bob")
	register(t, us, "carol", "tok-carol")
	st := model.DefaultNotificationSettings("bob")
	st.GroupNotifications = false
	_ = us.SaveSettings(context.Background(), st)
	st = model.DefaultNotificationSettings("carol")
	st.ShowPreview = false
	_ = us.SaveSettings(context.Background(), st)

	msg := message()
	msg.ConversationType = model.ConversationGroup
	msg.GroupName = "Team"
	p := newFakeProvider()
	res := NewDispatcher(p, us, nil, Conf{}, nil).Dispatch(context.Background(), msg, []string{"bob", "carol"})

	if res.SuccessCount != 1 {
		t.Fatalf("result = %+v", res)
	}
	got := p.sent["tok-carol"]
	if got.Title != "Alice in Team" || got.Body != "New message" || got.Data["is_group"] != "true" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestDispatchSendTimeout(t *testing.T) {
	us := user.NewMemStore()
	register(t, us, "bob", "slow", "fast")
	p := newFakeProvider()
	p.block["slow"] = true
	d := NewDispatcher(p, us, nil, Conf{SendTimeout: 20 * time.Millisecond}, nil)

	res := d.Dispatch(context.Background(), message(), []string{"bob"})
	sort.Strings(res.FailedTokens)
	if res.SuccessCount != 1 || res.FailureCount != 1 || res.FailedTokens[0] != "slow" {
		t.Fatalf("result = %+v", res)
	}
}

func TestDispatchNoTokens(t *testing.T) {
	d := NewDispatcher(newFakeProvider(), user.NewMemStore(), nil, Conf{}, nil)
	res := d.Dispatch(context.Background(), message(), []string{"bob"})
	if res.SuccessCount != 0 || res.FailureCount != 0 || res.FailedTokens == nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestSendToUser(t *testing.T) {
	us := user.NewMemStore()
	register(t, us, "bob", "a", "b")
	_ = us.DeactivateToken(context.Background(), "b")
	p := newFakeProvider()
	res := NewDispatcher(p, us, nil, Conf{}, nil).SendToUser(context.Background(), "bob", CallPayload("alice", "Alice", true, ""))
	if res.SuccessCount != 1 || p.sent["a"].Data["call_type"] != "video" {
		t.Fatalf("result = %+v sent = %v", res, p.sent)
	}
}
