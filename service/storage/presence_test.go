package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeys(t *testing.T) {
	m := NewPresenceMirror(nil, PresenceConfig{})
	if m.userKey("u1") != "rt:presence:u1" || m.lastSeenKey("u1") != "rt:lastseen:u1" {
		t.Fatal("plain keys")
	}
	m = NewPresenceMirror(nil, PresenceConfig{Prefix: "x", UseClusterTag: true})
	if m.userKey("u1") != "x:presence:{u1}" {
		t.Fatal("tagged key")
	}
	if m.ttlSeconds() != 90 {
		t.Fatalf("ttl = %d", m.ttlSeconds())
	}
}

// RT_TEST_REDIS=127.0.0.1:6379 runs the mirror against a real server.
func newMirror(t *testing.T) *PresenceMirror {
	t.Helper()
	addr := os.Getenv("RT_TEST_REDIS")
	if addr == "" {
		t.Skip("RT_TEST_REDIS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPresenceMirror(rdb, PresenceConfig{Prefix: "rt-test-" + time.Now().Format("150405.000")})
}

func TestMirrorAcrossNodes(t *testing.T) {
	m := newMirror(t)
	ctx := context.Background()

	if err := m.SetOnline(ctx, "n1", "u1"); err != nil {
		t.Fatal(err)
	}
	_ = m.SetOnline(ctx, "n2", "u1")
	got, err := m.OnlineAmong(ctx, []string{"u1", "u2"})
	if err != nil || len(got) != 1 || got[0] != "u1" {
		t.Fatalf("online = %v %v", got, err)
	}

	seen := time.UnixMilli(time.Now().UnixMilli())
	_ = m.SetOffline(ctx, "n1", "u1", seen)
	if got, _ := m.OnlineAmong(ctx, []string{"u1"}); len(got) != 1 {
		t.Fatal("u1 is still on n2")
	}
	if _, ok, _ := m.LastSeen(ctx, "u1"); ok {
		t.Fatal("last seen written while online elsewhere")
	}

	_ = m.SetOffline(ctx, "n2", "u1", seen)
	if got, _ := m.OnlineAmong(ctx, []string{"u1"}); len(got) != 0 {
		t.Fatal("u1 should be offline")
	}
	ls, ok, err := m.LastSeen(ctx, "u1")
	if err != nil || !ok || !ls.Equal(seen) {
		t.Fatalf("last seen = %v %v %v", ls, ok, err)
	}
}

func TestMirrorExpiresWithoutRefresh(t *testing.T) {
	m := newMirror(t)
	ctx := context.Background()
	_ = m.SetOnline(ctx, "n1", "u1")

	m.now = func() time.Time { return time.Now().Add(2 * m.conf.TTL) }
	if got, _ := m.OnlineAmong(ctx, []string{"u1"}); len(got) != 0 {
		t.Fatal("stale node entry counted")
	}
	if err := m.Refresh(ctx, "n1", []string{"u1"}); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.OnlineAmong(ctx, []string{"u1"}); len(got) != 1 {
		t.Fatal("refresh should restore the entry")
	}
}
