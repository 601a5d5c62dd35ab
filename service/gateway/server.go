package gateway

import (
	"context"
	"net/http"
	"time"

	"PPRealtime/middleware"
	"PPRealtime/middleware/security"
	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const headerInternalToken = "X-Internal-Token"

// ===== config =====

type Conf struct {
	Addr           string
	NodeID         string
	WSPath         string        // default /ws
	AllowedOrigins []string      // empty: any origin
	InternalToken  string        // guards /internal/*; empty falls back to JWT
	SendQueue      int           // per-connection outbound frames, default 256
	WriteWait      time.Duration // default 10s
	PongWait       time.Duration // default 60s
	PingPeriod     time.Duration // default 9/10 of PongWait
	MaxMessageSize int64         // default 64KB
}

func (c *Conf) norm() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.WSPath == "" {
		c.WSPath = "/ws"
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
}

// Server is the websocket and REST boundary in front of the core.
type Server struct {
	core     *chat.Core
	messages Pipeline
	devices  Devices // optional
	intake   *Intake
	verifier security.TokenVerifier
	conf     Conf
	log      *zap.Logger

	engine   *gin.Engine
	mids     *middleware.MiddlewareManager
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func NewServer(core *chat.Core, messages Pipeline, devices Devices, verifier security.TokenVerifier, conf Conf, log *zap.Logger) *Server {
	conf.norm()
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		core:     core,
		messages: messages,
		devices:  devices,
		intake:   NewIntake(messages, log),
		verifier: verifier,
		conf:     conf,
		log:      log,
		mids:     middleware.NewManager(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// origins are checked by the Origin middleware
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery(), middleware.AccessLog(s.log))

	s.mids.Add(middleware.Origin(s.conf.WSPath, s.conf.AllowedOrigins))
	e.Use(s.mids.Use())

	e.GET(s.conf.WSPath, s.handleWS)
	e.GET("/healthz", s.healthz)

	api := middleware.Router{R: e, Auth: security.Middleware(s.verifier)}
	auth := middleware.RouteOpt{IsAuth: true}
	api.POST("/api/messages/:id/status", s.handle(s.advanceStatus), auth)
	api.POST("/api/conversations/:id/read", s.handle(s.markConversationRead), auth)
	api.POST("/api/messages/read", s.handle(s.markRead), auth)
	api.GET("/api/presence", s.handle(s.presence), auth)
	api.GET("/api/messages/:id/summary", s.handle(s.summary), auth)
	if s.devices != nil {
		api.POST("/api/devices", s.handle(s.registerDevice), auth)
		api.DELETE("/api/devices/:token", s.handle(s.deactivateDevice), auth)
		api.GET("/api/notification-settings", s.handle(s.getSettings), auth)
		api.PUT("/api/notification-settings", s.handle(s.saveSettings), auth)
	}

	internal := middleware.Router{R: e, Auth: s.internalAuth()}
	internal.POST("/internal/messages", s.handle(s.messageCreated), auth)
	return e
}

// internalAuth accepts the shared internal token when one is configured,
// a user JWT otherwise.
func (s *Server) internalAuth() gin.HandlerFunc {
	if s.conf.InternalToken == "" {
		return security.Middleware(s.verifier)
	}
	return func(c *gin.Context) {
		if c.GetHeader(headerInternalToken) != s.conf.InternalToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthenticated)
			return
		}
		c.Next()
	}
}

// Handler exposes the engine, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Middlewares lets callers add pre-checks at runtime.
func (s *Server) Middlewares() *middleware.MiddlewareManager { return s.mids }

// Intake is the shared message-created entry point (HTTP and Kafka).
func (s *Server) Intake() *Intake { return s.intake }

// Run blocks until Shutdown.
func (s *Server) Run() error {
	s.httpSrv = &http.Server{Addr: s.conf.Addr, Handler: s.engine}
	s.log.Info("gateway listening", zap.String("addr", s.conf.Addr), zap.String("ws", s.conf.WSPath))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errs.WrapMsg(err, "http serve", "addr", s.conf.Addr)
	}
	return nil
}

// Shutdown stops accepting requests and closes every websocket.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	for _, sess := range s.core.Sessions().All() {
		if sess.Sink != nil {
			_ = sess.Sink.Close()
		}
	}
	return err
}

// ===== WebSocket =====

func (s *Server) handleWS(c *gin.Context) {
	userID := ""
	if tok := security.BearerToken(c); tok != "" {
		uid, err := s.verifier.VerifyToken(tok)
		if err != nil {
			s.log.Info("ws token rejected, connecting anonymous", zap.String("remote", c.ClientIP()), zap.Error(err))
		} else {
			userID = uid
		}
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Info("ws upgrade failed", zap.Error(err))
		return
	}

	sid := ids.GenerateString()
	cl := newClient(sid, conn, s.conf.SendQueue)
	ctx := context.Background()

	if err := s.core.OnConnect(ctx, sid, userID, cl); err != nil {
		s.log.Info("ws connect rejected", zap.String("session", sid), zap.String("user", userID), zap.Error(err))
		reason := "rejected"
		if ce, ok := errs.Code(err); ok {
			reason = ce.Msg
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
			time.Now().Add(s.conf.WriteWait))
		_ = conn.Close()
		return
	}

	go cl.writePump(s.conf, s.log)
	cl.readPump(s.conf, s.log,
		func() { _ = s.core.Heartbeat(sid) },
		func(raw []byte) { s.handleFrame(ctx, cl, raw) },
	)

	_ = cl.Close()
	s.core.OnDisconnect(ctx, sid)
}
