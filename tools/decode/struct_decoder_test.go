package decode

import (
	"errors"
	"testing"

	"PPRealtime/tools/errs"

	"google.golang.org/protobuf/types/known/structpb"
)

type probe struct {
	ID    string   `json:"id"`
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

func TestDecodeStruct(t *testing.T) {
	st, err := structpb.NewStruct(map[string]any{
		"id":    "m1",
		"count": float64(3),
		"ids":   []any{"u1", float64(42), nil},
		"extra": true,
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := DecodeStruct[probe](st)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "m1" || p.Count != 3 || len(p.IDs) != 2 || p.IDs[1] != "42" {
		t.Fatalf("decoded %+v", p)
	}

	if _, err := DecodeStruct[probe](st, Options{Strict: true}); !errors.Is(err, errs.ErrArgs) {
		t.Fatalf("strict decode: %v", err)
	}
	if _, err := DecodeStruct[probe](nil); !errors.Is(err, errs.ErrArgs) {
		t.Fatalf("nil struct: %v", err)
	}
	if _, err := DecodeMap[probe](map[string]any{"count": 1.5}); !errors.Is(err, errs.ErrArgs) {
		t.Fatalf("fraction: %v", err)
	}
}

func TestReadFields(t *testing.T) {
	st, _ := structpb.NewStruct(map[string]any{
		"event": "typing:start",
		"n":     float64(1),
		"data":  map[string]any{"conversationId": "c1"},
	})
	if v, err := ReadString(st, "event"); err != nil || v != "typing:start" {
		t.Fatalf("event = %q %v", v, err)
	}
	if _, err := ReadString(st, "n"); !errors.Is(err, errs.ErrArgs) {
		t.Fatalf("non-string: %v", err)
	}
	if _, err := ReadString(nil, "event"); !errors.Is(err, errs.ErrArgs) {
		t.Fatalf("nil: %v", err)
	}
	if ReadStruct(st, "data").GetFields()["conversationId"].GetStringValue() != "c1" {
		t.Fatal("nested struct")
	}
	if len(ReadStruct(st, "missing").GetFields()) != 0 || ReadStruct(nil, "data") == nil {
		t.Fatal("missing struct")
	}
}
