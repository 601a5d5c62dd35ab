package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"PPRealtime/tools/errs"
)

const sample = `
node:
  id: gw-7
http:
  addr: ":9000"
  allowedOrigins: "https://a.example, https://b.example"
jwt:
  secret: s3cret
registry:
  max_per_user: 3
  anon_ttl: 90s
typing:
  ttl: 4s
kafka:
  enabled: true
  brokers: [k1:9092, k2:9092]
push:
  provider: KAFKA
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if c.Node.ID != "gw-7" || c.HTTP.Addr != ":9000" || c.Registry.MaxPerUser != 3 {
		t.Fatalf("config = %+v", c)
	}
	if c.Registry.AnonTTL != 90*time.Second || c.Typing.TTL != 4*time.Second {
		t.Fatal("durations")
	}
	if len(c.HTTP.AllowedOrigins) != 2 || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("lists = %v %v", c.HTTP.AllowedOrigins, c.Kafka.Brokers)
	}
	if c.Push.Provider != PushKafka || c.Store.Mode != StoreMemory || c.GRPC.Addr != ":50051" {
		t.Fatal("defaults")
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestApplyEnv(t *testing.T) {
	c, _ := Parse(nil)
	t.Setenv("RT_NODE_ID", "env-node")
	t.Setenv("RT_KAFKA_BROKERS", "x:1,y:2")
	t.Setenv("RT_REDIS_ENABLED", "true")
	t.Setenv("RT_MAX_SESSIONS_PER_USER", "5")
	t.Setenv("RT_INTERNAL_TOKEN", "tok")
	c.ApplyEnv()
	if c.Node.ID != "env-node" || len(c.Kafka.Brokers) != 2 || !c.Redis.Enabled || c.Registry.MaxPerUser != 5 || c.HTTP.InternalToken != "tok" {
		t.Fatalf("config = %+v", c)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"no secret":    "store: {mode: memory}",
		"mongo no uri": "jwt: {secret: x}\nstore: {mode: mongo}",
		"bad store":    "jwt: {secret: x}\nstore: {mode: etcd}",
		"kafka off":    "jwt: {secret: x}\npush: {provider: kafka}",
		"bad provider": "jwt: {secret: x}\npush: {provider: apns}",
	}
	for name, y := range cases {
		c, err := Parse([]byte(y))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := c.Validate(); !errors.Is(err, errs.ErrArgs) {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil || c.JWT.Secret != "s3cret" {
		t.Fatalf("load: %+v %v", c, err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file")
	}
	if _, err := Parse([]byte("node: [unclosed")); err == nil {
		t.Fatal("bad yaml")
	}
}
