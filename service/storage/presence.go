package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	errs "PPRealtime/tools/errs"

	"github.com/redis/go-redis/v9"
)

// ===== config =====

type PresenceConfig struct {
	Prefix        string        // key prefix, default "rt"
	TTL           time.Duration // a node entry expires unless refreshed
	LastSeenTTL   time.Duration
	UseClusterTag bool // wrap the user id in {} so a user's keys share a slot
}

func (c *PresenceConfig) norm() {
	if c.Prefix == "" {
		c.Prefix = "rt"
	}
	if c.TTL <= 0 {
		c.TTL = 90 * time.Second
	}
	if c.LastSeenTTL <= 0 {
		c.LastSeenTTL = 30 * 24 * time.Hour
	}
}

// ===== Lua scripts =====

// node online
// KEYS[1] = user index zset (member=node, score=expireAtUnix)
// ARGV[1] = node
// ARGV[2] = expAt
// ARGV[3] = ttlSeconds (index key TTL)
const luaSetOnline = `
local userZ = KEYS[1]
redis.call("ZADD", userZ, tonumber(ARGV[2]), ARGV[1])
redis.call("EXPIRE", userZ, tonumber(ARGV[3]) * 2)
return 1
`

// node offline; writes lastSeen once no node lists the user
// KEYS[1] = user index zset
// KEYS[2] = last seen key
// ARGV[1] = node
// ARGV[2] = nowUnix
// ARGV[3] = lastSeenUnixMilli
// ARGV[4] = lastSeenTTLSeconds
// returns 1 when the user is offline everywhere, 0 while another node holds it
const luaSetOffline = `
local userZ = KEYS[1]
local kSeen = KEYS[2]
redis.call("ZREM", userZ, ARGV[1])
redis.call("ZREMRANGEBYSCORE", userZ, "-inf", tonumber(ARGV[2]))
if redis.call("ZCARD", userZ) > 0 then
  return 0
end
redis.call("DEL", userZ)
redis.call("SET", kSeen, ARGV[3], "EX", tonumber(ARGV[4]))
return 1
`

// PresenceMirror shares who is online across gateway nodes.
type PresenceMirror struct {
	rdb  redis.UniversalClient
	conf PresenceConfig
	now  func() time.Time

	luaOnline  *redis.Script
	luaOffline *redis.Script
}

func NewPresenceMirror(rdb redis.UniversalClient, conf PresenceConfig) *PresenceMirror {
	conf.norm()
	return &PresenceMirror{
		rdb:        rdb,
		conf:       conf,
		now:        time.Now,
		luaOnline:  redis.NewScript(luaSetOnline),
		luaOffline: redis.NewScript(luaSetOffline),
	}
}

// ===== keys =====

// UseClusterTag=true: <prefix>:presence:{<user>}
// false:              <prefix>:presence:<user>
func (m *PresenceMirror) userKey(userID string) string {
	if m.conf.UseClusterTag {
		return fmt.Sprintf("%s:presence:{%s}", m.conf.Prefix, userID)
	}
	return fmt.Sprintf("%s:presence:%s", m.conf.Prefix, userID)
}

func (m *PresenceMirror) lastSeenKey(userID string) string {
	if m.conf.UseClusterTag {
		return fmt.Sprintf("%s:lastseen:{%s}", m.conf.Prefix, userID)
	}
	return fmt.Sprintf("%s:lastseen:%s", m.conf.Prefix, userID)
}

func (m *PresenceMirror) ttlSeconds() int64 {
	return int64(m.conf.TTL / time.Second)
}

// ===== API =====

func (m *PresenceMirror) SetOnline(ctx context.Context, nodeID, userID string) error {
	expAt := m.now().Add(m.conf.TTL).Unix()
	err := m.luaOnline.Run(ctx, m.rdb, []string{m.userKey(userID)}, nodeID, expAt, m.ttlSeconds()).Err()
	if err != nil {
		return errs.WrapMsg(err, "presence online", "user", userID)
	}
	return nil
}

func (m *PresenceMirror) SetOffline(ctx context.Context, nodeID, userID string, lastSeen time.Time) error {
	err := m.luaOffline.Run(ctx, m.rdb,
		[]string{m.userKey(userID), m.lastSeenKey(userID)},
		nodeID,
		m.now().Unix(),
		lastSeen.UnixMilli(),
		int64(m.conf.LastSeenTTL/time.Second),
	).Err()
	if err != nil {
		return errs.WrapMsg(err, "presence offline", "user", userID)
	}
	return nil
}

// OnlineAmong returns the users that have at least one unexpired node entry.
func (m *PresenceMirror) OnlineAmong(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	min := strconv.FormatInt(m.now().Unix()+1, 10)
	cmds := make([]*redis.IntCmd, len(userIDs))
	_, err := m.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, u := range userIDs {
			cmds[i] = p.ZCount(ctx, m.userKey(u), min, "+inf")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errs.WrapMsg(err, "presence lookup")
	}
	out := make([]string, 0, len(userIDs))
	for i, c := range cmds {
		if n, _ := c.Result(); n > 0 {
			out = append(out, userIDs[i])
		}
	}
	return out, nil
}

// Refresh extends this node's entries for the users it currently holds.
func (m *PresenceMirror) Refresh(ctx context.Context, nodeID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	expAt := float64(m.now().Add(m.conf.TTL).Unix())
	_, err := m.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, u := range userIDs {
			k := m.userKey(u)
			p.ZAdd(ctx, k, redis.Z{Score: expAt, Member: nodeID})
			p.Expire(ctx, k, m.conf.TTL*2)
		}
		return nil
	})
	if err != nil {
		return errs.WrapMsg(err, "presence refresh", "users", len(userIDs))
	}
	return nil
}

// LastSeen reports when the user was last online anywhere.
func (m *PresenceMirror) LastSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	v, err := m.rdb.Get(ctx, m.lastSeenKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errs.WrapMsg(err, "last seen", "user", userID)
	}
	return time.UnixMilli(v), true, nil
}
