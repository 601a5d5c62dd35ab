package security

import (
	"testing"
	"time"

	"PPRealtime/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier(DefaultOptions([]byte("secret")))
	tok, err := v.Issue("u1")
	if err != nil {
		t.Fatal(err)
	}
	sub, err := v.VerifyToken(" " + tok + " ")
	if err != nil || sub != "u1" {
		t.Fatalf("verify: %q %v", sub, err)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier(DefaultOptions([]byte("secret")))
	if _, err := v.VerifyToken(""); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("empty: %v", err)
	}

	other, _ := NewVerifier(DefaultOptions([]byte("other"))).Issue("u1")
	if _, err := v.VerifyToken(other); !errors.Is(err, errs.ErrTokenInvalid) {
		t.Fatalf("foreign key: %v", err)
	}

	expired, _ := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	if _, err := v.VerifyToken(expired); !errors.Is(err, errs.ErrTokenInvalid) {
		t.Fatalf("expired: %v", err)
	}
	if _, err := v.VerifyToken("not.a.jwt"); !errors.Is(err, errs.ErrTokenInvalid) {
		t.Fatalf("garbage: %v", err)
	}

	if _, _, err := Generate(Options{Secret: []byte("k"), Alg: "RS256"}, "u1", nil); err == nil {
		t.Fatal("unsupported alg accepted")
	}
}
