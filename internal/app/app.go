package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"skillpath_backend/internal/config"
	"skillpath_backend/internal/controller"
	"skillpath_backend/internal/repository"
	"skillpath_backend/internal/service"
	"skillpath_backend/internal/util"
	"skillpath_backend/pkg/configwatcher"
	"skillpath_backend/pkg/database"
	"skillpath_backend/pkg/monitoring"
	"skillpath_backend/pkg/security"
	"skillpath_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	Log      *zap.Logger
	Services *Services

	// ConfigFile 非空时监听该文件并热更新
	ConfigFile string

	mu              sync.RWMutex
	config          *config.Config
	configCallbacks []func(*config.Config)
	limiter         *security.Limiter
	tracer          *sdktrace.TracerProvider
}

type repositories struct {
	user        *repository.UserRepository
	track       *repository.TrackRepository
	quiz        *repository.QuizRepository
	progress    *repository.ProgressRepository
	xp          *repository.XPRepository
	credential  *repository.CredentialRepository
	credentialT *repository.CredentialTaskRepository
}

// Services 供 HTTP 层和命令行共用
type Services struct {
	User        *service.UserService
	XP          *service.XPService
	Progress    *service.ProgressService
	Content     *service.ContentService
	Credentials *service.CredentialService
	Outbox      *service.CredentialOutboxService
	Completion  *service.CompletionService
	Importer    *service.Importer
	Storage     *service.StorageService
}

type controllers struct {
	health      *controller.HealthController
	progression *controller.ProgressionController
	xp          *controller.XPController
	credential  *controller.CredentialController
	user        *controller.UserController
	content     *controller.ContentController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.mu.Lock()
	a.configCallbacks = append(a.configCallbacks, callback)
	a.mu.Unlock()
}

// Config 返回当前生效的配置
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	a.config = cfg
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
	a.Log.Info("configuration reloaded")
}

func (a *App) jwtSecret() string {
	return a.Config().JWT.Secret
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		track:       repository.NewTrackRepository(db),
		quiz:        repository.NewQuizRepository(db),
		progress:    repository.NewProgressRepository(db),
		xp:          repository.NewXPRepository(db),
		credential:  repository.NewCredentialRepository(db),
		credentialT: repository.NewCredentialTaskRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Services, error) {
	storage, err := service.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}
	renderer, err := service.NewPNGRenderer(storage, cfg.Credentials.IssuerName)
	if err != nil {
		return nil, err
	}

	s := &Services{Storage: storage}
	s.User = service.NewUserService(repos.user, a.Log)
	s.XP = service.NewXPService(repos.xp, a.Log)
	s.Progress = service.NewProgressService(db, repos.track, repos.progress, a.Log)
	s.Content = service.NewContentService(repos.track, repos.quiz, repos.progress, a.Log)
	s.Credentials = service.NewCredentialService(repos.credential, rdb, &cfg.Credentials, a.Log)
	s.Outbox = service.NewCredentialOutboxService(repos.credentialT, repos.progress, repos.user, repos.track, s.Credentials, renderer, &cfg.Credentials, a.Log)
	s.Completion = service.NewCompletionService(db, repos.track, repos.quiz, repos.progress, repos.xp, repos.credentialT, s.Outbox, &cfg.Progression, a.Log)
	s.Importer = service.NewImporter(s.Content, repos.user, a.Log)
	return s, nil
}

func (a *App) initControllers(s *Services, repos *repositories) *controllers {
	return &controllers{
		health:      controller.NewHealthController(a.DB, a.Redis, repos.credentialT),
		progression: controller.NewProgressionController(s.Content, s.Progress, s.Completion),
		xp:          controller.NewXPController(s.XP),
		credential:  controller.NewCredentialController(s.Credentials, s.Outbox),
		user:        controller.NewUserController(s.User),
		content:     controller.NewContentController(s.Content),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(a.limiter))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// NewApp 打开数据库与缓存并完成依赖装配；调用方负责 Close
func NewApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == gin.DebugMode, log)
	if err != nil {
		return nil, err
	}
	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.AutoMigrate(db, log); err != nil {
			database.Close(db)
			return nil, err
		}
	}

	rdb, err := database.InitRedis(&cfg.Redis, log)
	if err != nil {
		database.Close(db)
		return nil, err
	}

	app := &App{
		DB:     db,
		Redis:  rdb,
		Log:    log,
		config: cfg,
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.tracer = tp
	}

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, db, rdb)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Services = services
	app.RegisterConfigCallback(services.Outbox.UpdateConfig)

	// 监控初始化
	monitoring.Init()

	app.limiter = security.NewLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, app.initControllers(services, repos))

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app, nil
}

// StartBackground 启动限流清理、证书任务轮询和配置监听，ctx 取消后全部退出
func (a *App) StartBackground(ctx context.Context) {
	go a.limiter.Run(ctx)
	go a.Services.Outbox.Run(ctx)

	if a.ConfigFile != "" {
		go func() {
			if err := configwatcher.WatchConfig(ctx, a.ConfigFile, a.Log, a.applyConfig); err != nil {
				a.Log.Error("config watcher stopped", zap.Error(err))
			}
		}()
	}
}

// Run 阻塞直到 ctx 取消，然后优雅关闭 HTTP 服务
func (a *App) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.StartBackground(bgCtx)

	srv := &http.Server{
		Addr:              ":" + a.Config().Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("Server running", zap.String("port", a.Config().Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Log.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.Log.Info("Server exiting")
	return nil
}

func (a *App) Close() {
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
		cancel()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn("redis close", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			a.Log.Warn("database close", zap.Error(err))
		}
	}
}
