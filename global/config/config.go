package config

import (
	"os"
	"strings"
	"time"

	"PPRealtime/tools"
	"PPRealtime/tools/errs"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const envPrefix = "RT_"

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	PushLog   = "log"
	PushKafka = "kafka"
)

type NodeConfig struct {
	ID            string `mapstructure:"id"`
	SnowflakeNode int64  `mapstructure:"snowflake_node"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"` // empty: any origin
	InternalToken  string   `mapstructure:"internalToken"`  // guards /internal/*, empty: JWT only
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RegistryConfig struct {
	MaxPerUser  int           `mapstructure:"max_per_user"`
	EvictOldest bool          `mapstructure:"evict_oldest"`
	AnonTTL     time.Duration `mapstructure:"anon_ttl"`
	SweepEvery  time.Duration `mapstructure:"sweep_every"`
}

type TypingConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type PushConfig struct {
	Provider        string        `mapstructure:"provider"` // log | kafka
	Topic           string        `mapstructure:"topic"`
	PreviewLen      int           `mapstructure:"preview_len"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	Concurrency     int           `mapstructure:"concurrency"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
}

type StoreConfig struct {
	Mode string `mapstructure:"mode"` // memory | mongo
}

type MongoConfig struct {
	URI         string   `mapstructure:"uri"`
	Address     []string `mapstructure:"address"` // used when uri is empty
	Database    string   `mapstructure:"database"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	MaxPoolSize int      `mapstructure:"max_pool_size"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"` // empty => in-memory device store
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
	ClusterTag  bool          `mapstructure:"cluster_tag"`
}

type NATSConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Servers  []string `mapstructure:"servers"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
	Subject  string   `mapstructure:"subject"`
	Mode     string   `mapstructure:"mode"` // core | js_push
}

type KafkaConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	Brokers          []string `mapstructure:"brokers"`
	GroupID          string   `mapstructure:"group_id"`
	Version          string   `mapstructure:"version"`
	MessageTopic     string   `mapstructure:"message_topic"`
	AutoCreateTopics bool     `mapstructure:"auto_create_topics"`
}

type NacosConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      uint64 `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	DataID    string `mapstructure:"data_id"`
	Group     string `mapstructure:"group"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`

	// AdvertiseIP is registered as this node's instance; empty skips registration.
	AdvertiseIP string `mapstructure:"advertise_ip"`
}

type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Log      LogConfig      `mapstructure:"log"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Registry RegistryConfig `mapstructure:"registry"`
	Typing   TypingConfig   `mapstructure:"typing"`
	Push     PushConfig     `mapstructure:"push"`
	Store    StoreConfig    `mapstructure:"store"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Nacos    NacosConfig    `mapstructure:"nacos"`
}

// Load reads path (optional), applies RT_* overrides and fills defaults.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.WrapMsg(err, "read config", "path", path)
		}
		data = b
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes YAML content (file or Nacos) without env overrides.
func Parse(data []byte) (*Config, error) {
	raw := map[string]any{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errs.WrapMsg(err, "parse yaml")
		}
	}
	var c Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &c,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, errs.Wrap(err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, errs.WrapMsg(err, "decode config")
	}
	c.norm()
	return &c, nil
}

// ApplyEnv overrides selected keys from RT_* variables.
func (c *Config) ApplyEnv() {
	e := func(k string) string { return envPrefix + k }

	c.Node.ID = tools.GetEnv(e("NODE_ID"), c.Node.ID)
	c.HTTP.Addr = tools.GetEnv(e("HTTP_ADDR"), c.HTTP.Addr)
	c.HTTP.InternalToken = tools.GetEnv(e("INTERNAL_TOKEN"), c.HTTP.InternalToken)
	c.GRPC.Addr = tools.GetEnv(e("GRPC_ADDR"), c.GRPC.Addr)
	c.Log.Level = tools.GetEnv(e("LOG_LEVEL"), c.Log.Level)
	c.JWT.Secret = tools.GetEnv(e("JWT_SECRET"), c.JWT.Secret)
	c.Store.Mode = tools.GetEnv(e("STORE_MODE"), c.Store.Mode)
	c.Mongo.URI = tools.GetEnv(e("MONGO_URI"), c.Mongo.URI)
	c.Postgres.DSN = tools.GetEnv(e("POSTGRES_DSN"), c.Postgres.DSN)
	c.Push.Provider = tools.GetEnv(e("PUSH_PROVIDER"), c.Push.Provider)

	c.Redis.Enabled = tools.GetEnvBool(e("REDIS_ENABLED"), c.Redis.Enabled)
	c.Redis.Addr = tools.GetEnv(e("REDIS_ADDR"), c.Redis.Addr)
	c.Redis.Password = tools.GetEnv(e("REDIS_PASSWORD"), c.Redis.Password)

	c.NATS.Enabled = tools.GetEnvBool(e("NATS_ENABLED"), c.NATS.Enabled)
	if v := os.Getenv(e("NATS_SERVERS")); v != "" {
		c.NATS.Servers = tools.SplitCSV(v)
	}

	c.Kafka.Enabled = tools.GetEnvBool(e("KAFKA_ENABLED"), c.Kafka.Enabled)
	if v := os.Getenv(e("KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = tools.SplitCSV(v)
	}

	c.Nacos.Enabled = tools.GetEnvBool(e("NACOS_ENABLED"), c.Nacos.Enabled)
	c.Nacos.Host = tools.GetEnv(e("NACOS_HOST"), c.Nacos.Host)

	c.Registry.MaxPerUser = tools.GetEnvInt(e("MAX_SESSIONS_PER_USER"), c.Registry.MaxPerUser)
	c.Typing.TTL = tools.GetEnvDuration(e("TYPING_TTL"), c.Typing.TTL)
	c.norm()
}

func (c *Config) norm() {
	if c.Node.ID == "" {
		if h, err := os.Hostname(); err == nil && h != "" {
			c.Node.ID = h
		} else {
			c.Node.ID = "gateway_01"
		}
	}
	if c.Node.SnowflakeNode <= 0 {
		c.Node.SnowflakeNode = 1
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":50051"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 24 * time.Hour
	}
	c.Store.Mode = strings.ToLower(c.Store.Mode)
	if c.Store.Mode == "" {
		c.Store.Mode = StoreMemory
	}
	c.Push.Provider = strings.ToLower(c.Push.Provider)
	if c.Push.Provider == "" {
		c.Push.Provider = PushLog
	}
	if c.Push.Topic == "" {
		c.Push.Topic = "chat.push.jobs"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "chat"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if len(c.NATS.Servers) == 0 {
		c.NATS.Servers = []string{"nats://127.0.0.1:4222"}
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "rt.cluster.events"
	}
	if c.Kafka.MessageTopic == "" {
		c.Kafka.MessageTopic = "chat.message.created"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "pp-realtime"
	}
	if c.Nacos.Port == 0 {
		c.Nacos.Port = 8848
	}
	if c.Nacos.Namespace == "" {
		c.Nacos.Namespace = "public"
	}
	if c.Nacos.Group == "" {
		c.Nacos.Group = "DEFAULT_GROUP"
	}
	if c.Nacos.DataID == "" {
		c.Nacos.DataID = "pp-realtime.yaml"
	}
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errs.ErrArgs.WrapMsg("jwt.secret is required")
	}
	switch c.Store.Mode {
	case StoreMemory:
	case StoreMongo:
		if c.Mongo.URI == "" && len(c.Mongo.Address) == 0 {
			return errs.ErrArgs.WrapMsg("mongo.uri or mongo.address is required in mongo store mode")
		}
	default:
		return errs.ErrArgs.WrapMsg("unknown store mode", "mode", c.Store.Mode)
	}
	switch c.Push.Provider {
	case PushLog:
	case PushKafka:
		if !c.Kafka.Enabled {
			return errs.ErrArgs.WrapMsg("push.provider=kafka needs kafka.enabled")
		}
	default:
		return errs.ErrArgs.WrapMsg("unknown push provider", "provider", c.Push.Provider)
	}
	return nil
}
