package global

import (
	"context"
	"net"
	"strconv"
	"time"

	"PPRealtime/data/database/mgo/mongoutil"
	"PPRealtime/global/config"
	"PPRealtime/logger"
	chatsvc "PPRealtime/module/chat/service"
	"PPRealtime/module/chat/store"
	"PPRealtime/module/delivery"
	"PPRealtime/module/notify"
	"PPRealtime/module/user"
	"PPRealtime/service/chat"
	"PPRealtime/service/gateway"
	"PPRealtime/service/kafka"
	"PPRealtime/service/nacos"
	"PPRealtime/service/natsx"
	"PPRealtime/service/rpc"
	"PPRealtime/service/storage"
	redisx "PPRealtime/service/storage/redis"
	"PPRealtime/tools"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/ids"
	"PPRealtime/tools/security"

	"go.uber.org/zap"
)

const (
	ServiceName = "pp-realtime"
	HealthName  = "pp.realtime.Gateway"

	clusterBiz = "cluster"
	idemTTL    = 10 * time.Minute
)

// chatStore is what the core needs from the conversation store.
type chatStore interface {
	delivery.Store
	chat.MembershipSource
	notify.MuteChecker
	chatsvc.Participants
}

type userStore interface {
	notify.RecipientStore
	gateway.Devices
}

// App owns every long-lived component of one node.
type App struct {
	Conf     *config.Config
	Core     *chat.Core
	Messages *chatsvc.MessageService
	Gateway  *gateway.Server
	Health   *rpc.HealthServer

	consumer *kafka.ConsumerGroup
	registry *nacos.Registry
	closers  []func(ctx context.Context) error
}

func (a *App) onClose(f func(ctx context.Context) error) {
	a.closers = append(a.closers, f)
}

// Boot builds the node from cfg. On error everything opened so far is closed.
func Boot(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	app := &App{Conf: cfg}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		logger.Warn("bad log level, keeping current", zap.String("level", cfg.Log.Level))
	}
	ConfigIds(cfg)

	// ===== stores =====
	cs, err := app.configChatStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	us, err := app.configUserStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	mirror, err := app.configPresence(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// ===== realtime core =====
	sessions := chat.NewSessionRegistry(chat.RegistryConf{
		MaxPerUser:  cfg.Registry.MaxPerUser,
		EvictOldest: cfg.Registry.EvictOldest,
		AnonTTL:     cfg.Registry.AnonTTL,
	})
	rooms := chat.NewRoomDirectory(cs, logger.Named("rooms"))
	local := chat.NewLocalBus(sessions, rooms, logger.Named("bus"))
	bus, err := app.configBus(ctx, cfg, local)
	if err != nil {
		return nil, err
	}
	typing := chat.NewTypingTracker(bus, chat.TypingConf{TTL: cfg.Typing.TTL, MaxEntries: cfg.Typing.MaxEntries}, logger.Named("typing"))

	var pm chat.PresenceMirror
	if mirror != nil {
		pm = mirror
	}
	app.Core = chat.NewCore(sessions, rooms, bus, typing, pm,
		chat.CoreConf{NodeID: cfg.Node.ID, SweepEvery: cfg.Registry.SweepEvery}, logger.Named("core"))

	// ===== delivery + offline push =====
	sm := delivery.NewStateMachine(cs, app.Core, bus, delivery.Conf{}, logger.Named("delivery"))
	provider, err := app.configPushProvider(cfg)
	if err != nil {
		return nil, err
	}
	dispatcher := notify.NewDispatcher(provider, us, cs, notify.Conf{
		PreviewLen:  cfg.Push.PreviewLen,
		SendTimeout: cfg.Push.SendTimeout,
		Concurrency: cfg.Push.Concurrency,
	}, logger.Named("notify"))
	app.Messages = chatsvc.NewMessageService(sm, bus, dispatcher, cs,
		chatsvc.Conf{DispatchTimeout: cfg.Push.DispatchTimeout}, logger.Named("message"))

	// ===== boundary =====
	verifier := security.NewVerifier(security.Options{
		Secret: []byte(cfg.JWT.Secret),
		Alg:    "HS256",
		TTL:    cfg.JWT.TTL,
	})
	app.Gateway = gateway.NewServer(app.Core, app.Messages, us, verifier, gateway.Conf{
		Addr:           cfg.HTTP.Addr,
		NodeID:         cfg.Node.ID,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		InternalToken:  cfg.HTTP.InternalToken,
	}, logger.Named("gateway"))
	app.Health = rpc.NewHealthServer(HealthName, logger.Named("grpc"))

	if err := app.configIntake(cfg); err != nil {
		return nil, err
	}
	return app, nil
}

func ConfigIds(cfg *config.Config) {
	ids.SetNodeID(cfg.Node.SnowflakeNode)
}

func (a *App) configChatStore(ctx context.Context, cfg *config.Config) (chatStore, error) {
	if cfg.Store.Mode != config.StoreMongo {
		logger.Info("chat store: memory")
		return store.NewMemStore(), nil
	}
	cli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{
		Uri:         cfg.Mongo.URI,
		Address:     cfg.Mongo.Address,
		Database:    cfg.Mongo.Database,
		Username:    cfg.Mongo.Username,
		Password:    cfg.Mongo.Password,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
		MaxRetry:    3,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(cli.Close)

	ms := store.NewMongoStore(cli.GetDB())
	if err := ms.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	logger.Info("chat store: mongo", zap.String("database", cfg.Mongo.Database))
	return ms, nil
}

func (a *App) configUserStore(ctx context.Context, cfg *config.Config) (userStore, error) {
	if cfg.Postgres.DSN == "" {
		logger.Info("user store: memory")
		return user.NewMemStore(), nil
	}
	ps, err := user.NewPgStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { ps.Close(); return nil })
	logger.Info("user store: postgres")
	return ps, nil
}

func (a *App) configPresence(ctx context.Context, cfg *config.Config) (*storage.PresenceMirror, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rdb, err := redisx.NewClient(ctx, redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return rdb.Close() })
	logger.Info("presence mirror: redis", zap.String("addr", cfg.Redis.Addr))
	return storage.NewPresenceMirror(rdb, storage.PresenceConfig{
		TTL:           cfg.Redis.PresenceTTL,
		UseClusterTag: cfg.Redis.ClusterTag,
	}), nil
}

// configBus returns the local bus, or a NATS-backed cluster bus when enabled.
func (a *App) configBus(ctx context.Context, cfg *config.Config, local *chat.LocalBus) (chat.EventBus, error) {
	if !cfg.NATS.Enabled {
		return local, nil
	}
	mgr, err := natsx.NewNatsManager(natsx.NatsxConfig{
		Servers:  cfg.NATS.Servers,
		Name:     ServiceName + "-" + cfg.Node.ID,
		User:     cfg.NATS.User,
		Password: cfg.NATS.Password,
	},
		natsx.NatsxLogMiddleware(200*time.Millisecond),
		natsx.NatsxIdemMiddleware(natsx.NewMemIdem(ctx, idemTTL), idemTTL),
	)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return mgr.Close() })

	// no queue group: every node needs every envelope
	route := natsx.NatsxRoute{
		Biz:     clusterBiz,
		Subject: cfg.NATS.Subject,
		Mode:    tools.ParseMode(cfg.NATS.Mode),
		Durable: "rt-" + cfg.Node.ID,
	}
	if err := mgr.RegisterRoute(route); err != nil {
		return nil, err
	}
	cb := chat.NewClusterBus(local, mgr, clusterBiz, cfg.Node.ID, logger.Named("cluster"))
	if err := cb.Start(); err != nil {
		return nil, err
	}
	logger.Info("cluster bus: nats", zap.Strings("servers", cfg.NATS.Servers), zap.String("subject", cfg.NATS.Subject))
	return cb, nil
}

func (a *App) kafkaConfig(cfg *config.Config) kafka.Config {
	return kafka.Config{
		Brokers:          cfg.Kafka.Brokers,
		ClientID:         ServiceName + "-" + cfg.Node.ID,
		GroupID:          cfg.Kafka.GroupID,
		Version:          cfg.Kafka.Version,
		AutoCreateTopics: cfg.Kafka.AutoCreateTopics,
	}
}

func (a *App) configPushProvider(cfg *config.Config) (notify.PushProvider, error) {
	if cfg.Push.Provider != config.PushKafka {
		return notify.NewLogProvider(logger.Named("push")), nil
	}
	cli, err := kafka.NewClient(a.kafkaConfig(cfg))
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return cli.Close() })
	if cfg.Kafka.AutoCreateTopics {
		if err := cli.EnsureTopics(cfg.Push.Topic); err != nil {
			return nil, err
		}
	}
	logger.Info("push provider: kafka", zap.String("topic", cfg.Push.Topic))
	return notify.NewKafkaProvider(cli.Producer(), cfg.Push.Topic), nil
}

// configIntake subscribes to message-created records when Kafka is on.
func (a *App) configIntake(cfg *config.Config) error {
	if !cfg.Kafka.Enabled {
		return nil
	}
	kc := a.kafkaConfig(cfg)
	if cfg.Kafka.AutoCreateTopics {
		cli, err := kafka.NewClient(kc)
		if err != nil {
			return err
		}
		err = cli.EnsureTopics(cfg.Kafka.MessageTopic)
		_ = cli.Close()
		if err != nil {
			return err
		}
	}
	router := kafka.NewRouter()
	router.Register(cfg.Kafka.MessageTopic, a.Gateway.Intake().KafkaHandler())
	cg, err := kafka.NewConsumerGroup(kc, router)
	if err != nil {
		return err
	}
	a.consumer = cg
	a.onClose(func(context.Context) error { return cg.Close() })
	return nil
}

// ===== run =====

// Run starts the servers and blocks until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 3)

	go a.Core.Run(ctx)
	go func() { errc <- a.Health.ListenAndServe(a.Conf.GRPC.Addr) }()
	go func() { errc <- a.Gateway.Run() }()
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(ctx); err != nil {
				errc <- err
			}
		}()
	}
	if err := a.register(); err != nil {
		logger.Warn("nacos registration failed", zap.Error(err))
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

func (a *App) register() error {
	nc := a.Conf.Nacos
	if !nc.Enabled || nc.AdvertiseIP == "" {
		return nil
	}
	_, portStr, err := net.SplitHostPort(a.Conf.HTTP.Addr)
	if err != nil {
		return errs.WrapMsg(err, "http addr", "addr", a.Conf.HTTP.Addr)
	}
	port, err := strconv.ParseUint(portStr, 10, 64)
	if err != nil {
		return errs.WrapMsg(err, "http port", "addr", a.Conf.HTTP.Addr)
	}
	naming, err := nacos.NewNamingClient(NacosOptions(a.Conf))
	if err != nil {
		return err
	}
	a.registry = nacos.NewRegistry(naming, ServiceName, nc.AdvertiseIP, port, map[string]string{
		"node": a.Conf.Node.ID,
		"grpc": a.Conf.GRPC.Addr,
	})
	a.registry.Group = nc.Group
	return a.registry.Register()
}

// Shutdown drains the node: health first, then sockets, then pending pushes.
func (a *App) Shutdown(ctx context.Context) error {
	if a.registry != nil {
		if err := a.registry.Deregister(); err != nil {
			logger.Warn("nacos deregister failed", zap.Error(err))
		}
	}
	if a.Health != nil {
		a.Health.SetServing(false)
	}
	var err error
	if a.Gateway != nil {
		err = a.Gateway.Shutdown(ctx)
	}
	if a.Messages != nil {
		done := make(chan struct{})
		go func() { a.Messages.Drain(); close(done) }()
		select {
		case <-done:
		case <-ctx.Done():
			logger.Warn("offline dispatch still running at shutdown")
		}
	}
	if a.Health != nil {
		a.Health.Stop()
	}
	if cerr := a.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// Close releases backends in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("close failed", zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}
