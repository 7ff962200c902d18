package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reaction_timer_backend/internal/config"
	"reaction_timer_backend/internal/controller"
	"reaction_timer_backend/internal/repository"
	"reaction_timer_backend/internal/service"
	"reaction_timer_backend/pkg/configwatcher"
	"reaction_timer_backend/pkg/database"
	"reaction_timer_backend/pkg/logger"
	"reaction_timer_backend/pkg/messaging"
	"reaction_timer_backend/pkg/monitoring"
	"reaction_timer_backend/pkg/security"
	"reaction_timer_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	expireSweepInterval   = time.Minute
	cooldownSweepInterval = 5 * time.Minute
	shutdownTimeout       = 5 * time.Second
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	publisher       *messaging.NATSPublisher
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
	cancel          context.CancelFunc

	// clock and delays default to the wall clock and uniform random delays.
	clock  clockwork.Clock
	delays service.DelaySource
}

type repositories struct {
	user     *repository.UserRepository
	session  *repository.ChallengeSessionRepository
	score    *repository.ScoreRepository
	audit    *repository.AuditRepository
	clock    clockwork.Clock
	cooldown *service.MemoryCooldownStore
}

type services struct {
	audit     *service.AuditService
	auth      *service.AuthService
	limiter   *service.CooldownLimiter
	runs      *service.RunAggregator
	ranking   *service.RankingService
	challenge *service.ChallengeService
	hub       *service.LeaderboardHub
}

type controllers struct {
	auth      *controller.AuthController
	challenge *controller.ChallengeController
	score     *controller.ScoreController
	health    *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}
	return &repositories{
		user:    repository.NewUserRepository(db),
		session: repository.NewChallengeSessionRepository(db),
		score:   repository.NewScoreRepository(db),
		audit:   repository.NewAuditRepository(db),
		clock:   a.clock,
	}
}

// cooldownStore picks the limiter backend. Redis shares cooldowns across
// instances; memory is enough for a single process.
func (a *App) cooldownStore(repos *repositories, cfg *config.Config, rdb *redis.Client) service.CooldownStore {
	if cfg.Game.LimiterBackend == "redis" && rdb != nil {
		return service.NewRedisCooldownStore(rdb)
	}
	repos.cooldown = service.NewMemoryCooldownStore()
	return repos.cooldown
}

func (a *App) delaySource() service.DelaySource {
	if a.delays == nil {
		return service.UniformDelaySource{}
	}
	return a.delays
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	sinks := []service.AuditSink{service.NewDBAuditSink(repos.audit)}
	if a.publisher != nil {
		sinks = append(sinks, service.NewPublisherAuditSink(a.publisher))
	}
	s.audit = service.NewAuditService(repos.clock, 0, sinks...)
	s.audit.Start()

	s.auth = service.NewAuthService(repos.user, cfg, s.audit, repos.clock)
	s.limiter = service.NewCooldownLimiter(a.cooldownStore(repos, cfg, rdb), repos.clock, cfg.Game.Cooldown())
	s.runs = service.NewRunAggregator(repos.score)
	s.ranking = service.NewRankingService(repos.score, repos.user, cfg.Game.LeaderboardLimit, cfg.Game.HistoryLimit)

	s.challenge = service.NewChallengeService(
		db,
		repos.session,
		repos.score,
		s.runs,
		s.ranking,
		s.limiter,
		s.audit,
		a.delaySource(),
		repos.clock,
		service.BoundsFromConfig(cfg.Game),
	)

	s.hub = service.NewLeaderboardHub(s.ranking, cfg.CORS.AllowedOrigins)
	go s.hub.Run()
	s.challenge.SetNotifier(s.hub)

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		if newCfg.Game.Cooldown() != s.limiter.Window() {
			logger.Log.Info("cooldown window reloaded",
				zap.Duration("old", s.limiter.Window()),
				zap.Duration("new", newCfg.Game.Cooldown()),
			)
			s.limiter.SetWindow(newCfg.Game.Cooldown())
		}
	})

	return s
}

func (a *App) initControllers(s *services, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth, cfg.Server.Mode == gin.ReleaseMode, int(cfg.JWT.ExpireTime.Seconds())),
		challenge: controller.NewChallengeController(s.challenge),
		score:     controller.NewScoreController(s.ranking, s.hub),
		health:    controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(ctx context.Context, repos *repositories, s *services) {
	go func() {
		ticker := a.clock.NewTicker(expireSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				n, err := s.challenge.ExpireStale(ctx)
				if err != nil {
					logger.Log.Error("expire stale sessions failed", zap.Error(err))
				} else if n > 0 {
					logger.Log.Info("expired stale sessions", zap.Int64("count", n))
				}
			}
		}
	}()

	if repos.cooldown != nil {
		go func() {
			ticker := a.clock.NewTicker(cooldownSweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.Chan():
					repos.cooldown.Sweep(repos.clock.Now(), s.limiter.Window())
				}
			}
		}()
	}

	if a.Config.Path != "" {
		go func() {
			err := configwatcher.WatchConfig(ctx, a.Config.Path, func(newCfg *config.Config) {
				for _, cb := range a.configCallbacks {
					cb(newCfg)
				}
			})
			if err != nil {
				logger.Log.Warn("config watcher stopped", zap.Error(err))
			}
		}()
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
		app.Redis = rdb
	}

	if cfg.Audit.NATSEnabled {
		publisher, err := messaging.NewNATSPublisher(cfg.Audit.NATSURL, cfg.Audit.NATSSubject)
		if err != nil {
			// The audit stream is best effort; the database sink still records.
			logger.Log.Error("Failed to connect audit publisher", zap.Error(err))
		} else {
			app.publisher = publisher
		}
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, app.Redis)
	app.services = services
	controllers := app.initControllers(services, cfg, db, app.Redis)

	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.startBackgroundTasks(ctx, repos, services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(ctx)
	logger.Log.Info("Server exiting")
}

// Close stops background work and flushes pending audit records.
func (a *App) Close(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.services != nil {
		a.services.hub.Stop()
		a.services.audit.Close()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
