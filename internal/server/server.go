package server

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"drawboard/internal/auth"
	"drawboard/internal/cache"
	"drawboard/internal/collab"
	"drawboard/internal/config"
	"drawboard/internal/database"
	"drawboard/internal/handler"
	"drawboard/internal/middleware"
	"drawboard/internal/presence"
	"drawboard/internal/repository"
)

// Deps 서버 외부 의존성 (DB, Redis는 선택)
type Deps struct {
	Drawings repository.DrawingRepository
	DB       *gorm.DB
	Redis    *cache.RedisClient
	Logger   *zap.Logger
}

// Server Fiber 서버 래퍼
type Server struct {
	app *fiber.App
	cfg *config.Config
	log *zap.SugaredLogger

	registry   *collab.Registry
	jwtManager *auth.JWTManager
	relay      *cache.RoomRelay
	mirror     *presence.Mirror

	drawingHandler  *handler.DrawingHandler
	collabWSHandler *handler.CollabWSHandler
	healthHandler   *handler.HealthHandler

	bgCtx  context.Context
	cancel context.CancelFunc
	bgOnce sync.Once
	done   chan struct{}
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, deps Deps) *Server {
	log := deps.Logger.Sugar()

	app := fiber.New(fiber.Config{
		AppName:               "Drawboard Collaboration Server",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384, // 16KB - 큰 헤더 허용
		WriteBufferSize:       16384,
		BodyLimit:             cfg.Server.BodyLimit,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})

	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.ShareTokenExpiry,
	)
	gate := auth.NewDrawingGate(deps.Drawings, jwtManager)

	s := &Server{
		app:        app,
		cfg:        cfg,
		log:        log,
		jwtManager: jwtManager,
		done:       make(chan struct{}),
	}
	s.bgCtx, s.cancel = context.WithCancel(context.Background())

	checks := map[string]handler.CheckFunc{}
	if deps.DB != nil {
		checks["database"] = func(ctx context.Context) error { return database.Ping(ctx, deps.DB) }
	}

	var sink collab.RosterSink
	var relay collab.Relay
	var roster handler.RosterReader
	if deps.Redis != nil {
		s.relay = cache.NewRoomRelay(deps.Redis.Client(), cfg.Collab.InstanceID, log)
		s.mirror = presence.NewMirror(deps.Redis.Client(), cfg.Collab.InstanceID, cfg.Redis.PresenceTTL, log)
		sink, relay, roster = s.mirror, s.relay, s.mirror
		checks["redis"] = deps.Redis.Health
	} else {
		log.Info("ℹ️ Redis not configured (single-instance rooms, local presence)")
	}

	s.registry = collab.NewRegistry(collab.Options{
		InboxSize: cfg.Collab.InboxSize,
		Sink:      sink,
		Relay:     relay,
		Logger:    log,
	})
	s.drawingHandler = handler.NewDrawingHandler(deps.Drawings, middleware.NewDrawingMiddleware(gate, deps.Drawings), jwtManager, s.registry, roster, log)
	s.collabWSHandler = handler.NewCollabWSHandler(s.registry, gate, jwtManager, cfg.WebSocket, log)
	s.healthHandler = handler.NewHealthHandler(checks)

	return s
}

// App 내부 Fiber 앱
func (s *Server) App() *fiber.App {
	return s.app
}

// Registry 협업 룸 레지스트리
func (s *Server) Registry() *collab.Registry {
	return s.registry
}

// JWT 토큰 관리자
func (s *Server) JWT() *auth.JWTManager {
	return s.jwtManager
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORS.AllowOrigins,
		AllowHeaders: s.cfg.CORS.AllowHeaders,
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	s.healthHandler.Register(s.app)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.drawingHandler.Register(s.app)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.collabWSHandler.Register(s.app)
}

// StartBackground runs the Redis relay subscriber and the presence mirror.
// Calls after the first are no-ops.
func (s *Server) StartBackground() {
	s.bgOnce.Do(func() { go s.runBackground(s.bgCtx) })
}

func (s *Server) runBackground(ctx context.Context) {
	defer close(s.done)
	if s.relay == nil {
		<-ctx.Done()
		return
	}

	mirrorDone := make(chan struct{})
	go func() {
		defer close(mirrorDone)
		s.mirror.Run(ctx)
	}()
	defer func() { <-mirrorDone }()

	for ctx.Err() == nil {
		if err := s.relay.Run(ctx, s.registry.DeliverRemote); err != nil {
			s.log.Warnf("[Relay] Subscription lost: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Listener 주어진 리스너로 서빙 (테스트, 소켓 활성화)
func (s *Server) Listener(ln net.Listener) error {
	s.StartBackground()
	return s.app.Listener(ln)
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	s.StartBackground()

	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.log.Info("🛑 Shutting down server...")
		if err := s.Shutdown(); err != nil {
			s.log.Errorf("Server shutdown error: %v", err)
		}
	}()

	s.log.Infof("🚀 Drawboard collaboration server starting on %s", s.cfg.Server.Port)
	s.log.Infof("📡 WebSocket endpoint: ws://localhost%s/ws/collab/:drawingId", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	err := s.app.ShutdownWithTimeout(s.cfg.Server.ShutdownTimeout)
	s.registry.Close()
	s.cancel()
	// 백그라운드가 시작되지 않았으면 여기서 done을 닫는다
	s.bgOnce.Do(func() { close(s.done) })
	<-s.done
	return err
}
