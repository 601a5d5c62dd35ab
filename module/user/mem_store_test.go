package user

import (
	"context"
	"errors"
	"testing"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"
)

func TestTokens(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	for _, tok := range []string{"t1", "t2"} {
		if err := s.RegisterToken(ctx, model.DeviceToken{UserID: "bob", Token: tok}); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.RegisterToken(ctx, model.DeviceToken{UserID: "carol", Token: "t3"})
	_ = s.DeactivateToken(ctx, "t1")

	got, _ := s.ActiveTokens(ctx, "bob")
	if len(got) != 1 || got[0].Token != "t2" || !got[0].Active {
		t.Fatalf("tokens = %+v", got)
	}

	// re-registering reactivates the token
	_ = s.RegisterToken(ctx, model.DeviceToken{UserID: "bob", Token: "t1"})
	if got, _ := s.ActiveTokens(ctx, "bob"); len(got) != 2 || got[0].Token != "t1" {
		t.Fatalf("tokens = %+v", got)
	}

	if err := s.RegisterToken(ctx, model.DeviceToken{UserID: "bob"}); !errors.Is(err, errs.ErrArgs) {
		t.Fatalf("empty token: %v", err)
	}
}

func TestSettingsDefault(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	st, _ := s.Settings(ctx, "bob")
	if !st.Enabled || !st.ShowPreview || st.UserID != "bob" {
		t.Fatalf("default = %+v", st)
	}
	st.ShowPreview = false
	_ = s.SaveSettings(ctx, st)
	if got, _ := s.Settings(ctx, "bob"); got.ShowPreview {
		t.Fatal("saved settings ignored")
	}
}
