package user

import (
	"context"
	"os"
	"testing"

	"PPRealtime/module/chat/model"
)

// RT_TEST_POSTGRES=postgres://... runs against a real database.
func TestPgStore(t *testing.T) {
	dsn := os.Getenv("RT_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("RT_TEST_POSTGRES not set")
	}
	ctx := context.Background()
	s, err := NewPgStore(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	uid := "pg-test-user"
	if err := s.RegisterToken(ctx, model.DeviceToken{UserID: uid, Token: "pg-tok-1", Platform: model.PlatformIOS}); err != nil {
		t.Fatal(err)
	}
	got, err := s.ActiveTokens(ctx, uid)
	if err != nil || len(got) == 0 {
		t.Fatalf("tokens = %v %v", got, err)
	}
	_ = s.DeactivateToken(ctx, "pg-tok-1")
	if got, _ := s.ActiveTokens(ctx, uid); len(got) != 0 {
		t.Fatalf("deactivated token still active: %v", got)
	}

	st := model.DefaultNotificationSettings(uid)
	st.GroupNotifications = false
	if err := s.SaveSettings(ctx, st); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Settings(ctx, uid); got.GroupNotifications {
		t.Fatal("settings not persisted")
	}
}
