package errs

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestWrapMsgKeepsCode(t *testing.T) {
	err := ErrNotParticipant.WrapMsg("join", "conversation", "c1", "user")
	if !errors.Is(err, ErrNotParticipant) || errors.Is(err, ErrArgs) {
		t.Fatalf("errors.Is mismatch for %v", err)
	}
	ce, ok := Code(err)
	if !ok || ce.Code != NotParticipantError {
		t.Fatalf("code = %v %v", ce, ok)
	}
	if !strings.Contains(ce.Detail, "conversation=c1") || !strings.Contains(ce.Detail, "user=MISSING") {
		t.Fatalf("detail = %q", ce.Detail)
	}
	if ErrNotParticipant.Detail != "" {
		t.Fatal("predefined error mutated")
	}
}

func TestWrapForeign(t *testing.T) {
	base := ErrRecordNotFound.WrapMsg("receipt")
	err := WrapMsg(base, "advance", "message", "m1")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatal("wrapped code lost")
	}
	if WrapMsg(nil, "x") != nil || Wrap(nil) != nil {
		t.Fatal("nil in, nil out")
	}
	if _, ok := Code(errors.New("plain")); ok {
		t.Fatal("plain error has no code")
	}
}

func TestErrPanic(t *testing.T) {
	err := ErrPanic("boom")
	ce, ok := Code(err)
	if !ok || ce.Code != ServerInternalError || ce.Detail != "boom" {
		t.Fatalf("panic error = %v", err)
	}
	if ErrPanic(nil) != nil {
		t.Fatal("nil recover value")
	}
}
