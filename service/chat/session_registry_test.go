package chat

import (
	"errors"
	"testing"
	"time"

	"PPRealtime/tools/errs"
)

func TestRegistryOnlineTracksSessions(t *testing.T) {
	clock := newFakeClock()
	r := NewSessionRegistry(RegistryConf{Clock: clock.Now})

	res, err := r.Register("s1", "u1", &recSink{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.FirstForUser {
		t.Fatal("first session should report FirstForUser")
	}
	res, _ = r.Register("s2", "u1", &recSink{})
	if res.FirstForUser {
		t.Fatal("second session is not first")
	}
	if !r.IsOnline("u1") {
		t.Fatal("u1 should be online")
	}
	if got := r.SessionsFor("u1"); len(got) != 2 || got[0] != "s1" || got[1] != "s2" {
		t.Fatalf("sessions = %v", got)
	}

	uid, last := r.Unregister("s1")
	if uid != "u1" || last {
		t.Fatalf("unregister s1 = %q,%v", uid, last)
	}
	if !r.IsOnline("u1") {
		t.Fatal("u1 still has s2")
	}
	uid, last = r.Unregister("s2")
	if uid != "u1" || !last {
		t.Fatalf("unregister s2 = %q,%v", uid, last)
	}
	if r.IsOnline("u1") {
		t.Fatal("u1 should be offline")
	}
	if uid, _ := r.Unregister("s2"); uid != "" {
		t.Fatal("second unregister must be a no-op")
	}
}

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	r := NewSessionRegistry(RegistryConf{})
	if _, err := r.Register("s1", "u1", &recSink{}); err != nil {
		t.Fatal(err)
	}
	res, err := r.Register("s1", "u1", nil)
	if err != nil || res.FirstForUser || res.Promoted {
		t.Fatalf("re-register = %+v, %v", res, err)
	}
	if n := len(r.SessionsFor("u1")); n != 1 {
		t.Fatalf("sessions = %d", n)
	}
}

func TestRegistryPromoteAnonymous(t *testing.T) {
	r := NewSessionRegistry(RegistryConf{})
	if _, err := r.Register("s1", "", &recSink{}); err != nil {
		t.Fatal(err)
	}
	if r.IsOnline("") || len(r.LocalUsers()) != 0 {
		t.Fatal("anonymous session must not count as a user")
	}
	res, err := r.Register("s1", "u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Promoted || !res.FirstForUser {
		t.Fatalf("promotion result = %+v", res)
	}
	s, ok := r.Session("s1")
	if !ok || s.UserID != "u1" || s.Sink == nil {
		t.Fatalf("session = %+v", s)
	}

	_, err = r.Register("s1", "u2", nil)
	if !errors.Is(err, errs.ErrSessionBound) {
		t.Fatalf("rebinding should fail, got %v", err)
	}
}

func TestRegistryPerUserLimit(t *testing.T) {
	clock := newFakeClock()
	r := NewSessionRegistry(RegistryConf{MaxPerUser: 2, Clock: clock.Now})
	for _, id := range []string{"s1", "s2"} {
		if _, err := r.Register(id, "u1", &recSink{}); err != nil {
			t.Fatal(err)
		}
		clock.Add(time.Second)
	}
	_, err := r.Register("s3", "u1", &recSink{})
	if !errors.Is(err, errs.ErrTooManySessions) {
		t.Fatalf("want too many sessions, got %v", err)
	}

	r = NewSessionRegistry(RegistryConf{MaxPerUser: 2, EvictOldest: true, Clock: clock.Now})
	for _, id := range []string{"s1", "s2"} {
		_, _ = r.Register(id, "u1", &recSink{})
		clock.Add(time.Second)
	}
	res, err := r.Register("s3", "u1", &recSink{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Evicted) != 1 || res.Evicted[0].ID != "s1" {
		t.Fatalf("evicted = %+v", res.Evicted)
	}
	if res.FirstForUser {
		t.Fatal("user had sessions before eviction")
	}
	if _, ok := r.Session("s1"); ok {
		t.Fatal("s1 should be gone")
	}
}

func TestRegistryExpiredAnonymous(t *testing.T) {
	clock := newFakeClock()
	r := NewSessionRegistry(RegistryConf{AnonTTL: time.Minute, Clock: clock.Now})
	_, _ = r.Register("anon", "", &recSink{})
	_, _ = r.Register("auth", "u1", &recSink{})

	if got := r.ExpiredAnonymous(clock.Now().Add(30 * time.Second)); len(got) != 0 {
		t.Fatalf("too early: %v", got)
	}
	got := r.ExpiredAnonymous(clock.Now().Add(2 * time.Minute))
	if len(got) != 1 || got[0] != "anon" {
		t.Fatalf("expired = %v", got)
	}
}

func TestRegistryUnregisterIfAnonymous(t *testing.T) {
	clock := newFakeClock()
	r := NewSessionRegistry(RegistryConf{AnonTTL: time.Minute, Clock: clock.Now})
	sink := &recSink{}
	_, _ = r.Register("s1", "", sink)
	_, _ = r.Register("s2", "", &recSink{})

	expired := r.ExpiredAnonymous(clock.Now().Add(2 * time.Minute))
	if len(expired) != 2 {
		t.Fatalf("expired = %v", expired)
	}
	// s1 authenticates after the listing, before the reap
	if res, err := r.Register("s1", "u1", nil); err != nil || !res.Promoted {
		t.Fatalf("promote: %+v %v", res, err)
	}

	if _, ok := r.UnregisterIfAnonymous("s1"); ok {
		t.Fatal("promoted session reaped")
	}
	if !r.IsOnline("u1") || len(r.SessionsFor("u1")) != 1 {
		t.Fatal("u1 lost its session")
	}
	if user, last := r.Unregister("s1"); user != "u1" || !last {
		t.Fatalf("later disconnect = %q %v", user, last)
	}

	s, ok := r.UnregisterIfAnonymous("s2")
	if !ok || s.ID != "s2" || s.Sink == nil {
		t.Fatalf("anonymous reap = %+v %v", s, ok)
	}
	if _, ok := r.UnregisterIfAnonymous("s2"); ok {
		t.Fatal("second reap")
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestRegistrySinksSkipAnonymous(t *testing.T) {
	r := NewSessionRegistry(RegistryConf{})
	_, _ = r.Register("anon", "", &recSink{})
	_, _ = r.Register("s1", "u1", &recSink{})
	_, _ = r.Register("s2", "u2", &recSink{})

	got := r.sinks([]string{"anon", "s1", "s2", "missing"}, "s2")
	if len(got) != 1 {
		t.Fatalf("sinks = %v", got)
	}
	if _, ok := got["s1"]; !ok {
		t.Fatal("s1 expected")
	}
}

func TestRegistryTouch(t *testing.T) {
	clock := newFakeClock()
	r := NewSessionRegistry(RegistryConf{Clock: clock.Now})
	_, _ = r.Register("s1", "u1", &recSink{})
	clock.Add(time.Minute)
	if err := r.Touch("s1"); err != nil {
		t.Fatal(err)
	}
	s, _ := r.Session("s1")
	if !s.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("updatedAt = %v", s.UpdatedAt)
	}
	if err := r.Touch("nope"); !errors.Is(err, errs.ErrSessionNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}
