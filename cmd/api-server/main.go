package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codequest/internal/common/cache"
	"codequest/internal/common/db"
	commonmw "codequest/internal/common/http/middleware"
	"codequest/internal/common/mq"
	"codequest/internal/common/storage"
	executioncontroller "codequest/internal/execution/controller"
	"codequest/internal/execution/event"
	"codequest/internal/execution/ratelimit"
	"codequest/internal/execution/sandbox"
	executionservice "codequest/internal/execution/service"
	"codequest/internal/lesson/assetcache"
	lessoncontroller "codequest/internal/lesson/controller"
	lessonrepository "codequest/internal/lesson/repository"
	lessonservice "codequest/internal/lesson/service"
	progresscontroller "codequest/internal/progress/controller"
	progressrepository "codequest/internal/progress/repository"
	progressservice "codequest/internal/progress/service"
	usercontroller "codequest/internal/user/controller"
	userrepository "codequest/internal/user/repository"
	userservice "codequest/internal/user/service"
	"codequest/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/api_server.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	var mqClient mq.MessageQueue
	if appCfg.Events.Enabled {
		mqClient, err = mq.NewKafkaQueue(appCfg.Kafka)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mqClient.Close()
		}()
	}

	// Lessons.
	lessonRepo := lessonrepository.NewLessonRepository(mysqlDB, redisCache)
	lessonService := lessonservice.NewLessonService(lessonRepo)

	assetCache := assetcache.NewAssetCache(
		appCfg.Assets.CacheDir,
		appCfg.Assets.CacheTTL,
		appCfg.Assets.CacheLockWait,
		appCfg.Assets.CacheMaxEntries,
		appCfg.Assets.CacheMaxBytes,
		appCfg.MinIO.Bucket,
		objStorage,
		redisCache,
	)
	assetService := lessonservice.NewAssetService(objStorage, assetCache, appCfg.MinIO.Bucket, appCfg.Assets.MaxUploadBytes)

	// Progress.
	progressRepo := progressrepository.NewProgressRepository(mysqlDB)
	progressService := progressservice.NewProgressService(progressRepo, lessonService)
	lessonService.SetProgressCleaner(progressService)

	// Users and auth.
	userRepo := userrepository.NewUserRepository(mysqlDB, redisCache)
	authService := userservice.NewAuthService(userRepo, redisCache, appCfg.JWT.toTokenConfig(), appCfg.LoginLimit.toServiceConfig())
	var oauthService *userservice.GitHubOAuthService
	if appCfg.GitHub.ClientID != "" {
		oauthService = userservice.NewGitHubOAuthService(appCfg.GitHub.toServiceConfig(), userRepo, authService, redisCache)
	}

	// Execution pipeline.
	sandboxClient := sandbox.NewClient(appCfg.Sandbox.toClientConfig())
	var eventPublisher executionservice.EventSink
	if mqClient != nil {
		eventPublisher = event.NewPublisher(mqClient, appCfg.Events.Topic)
	}
	executionService := executionservice.NewExecutionService(
		lessonService,
		sandboxClient,
		progressService,
		eventPublisher,
		appCfg.Execution.toLimits(),
	)
	executionLimiter := ratelimit.NewLimiter(appCfg.Execution.RateLimitRequests, appCfg.Execution.RateLimitWindow)

	httpServer := buildHTTPServer(appCfg.Server,
		usercontroller.NewAuthController(authService, oauthService),
		lessoncontroller.NewLessonController(lessonService),
		lessoncontroller.NewAssetController(assetService),
		progresscontroller.NewProgressController(progressService),
		executioncontroller.NewExecutionController(executionService),
		executionLimiter,
	)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "api server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(
	cfg ServerConfig,
	authController *usercontroller.AuthController,
	lessonController *lessoncontroller.LessonController,
	assetController *lessoncontroller.AssetController,
	progressController *progresscontroller.ProgressController,
	executionController *executioncontroller.ExecutionController,
	executionLimiter *ratelimit.Limiter,
) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	api := router.Group("/api/v1")

	// Public endpoints.
	authController.RegisterRoutes(api)
	lessonController.RegisterRoutes(api)
	assetController.RegisterRoutes(api)

	// Runs work anonymously but record progress for signed-in users.
	runs := api.Group("")
	runs.Use(authController.OptionalAuthMiddleware())
	executionController.RegisterRoutes(runs, executionLimiter)

	// Authenticated endpoints.
	authed := api.Group("")
	authed.Use(authController.AuthMiddleware())
	authController.RegisterAuthedRoutes(authed)
	progressController.RegisterRoutes(authed)

	// Admin endpoints.
	admin := api.Group("/admin")
	admin.Use(authController.AuthMiddleware(), usercontroller.RequireRole(userrepository.UserRoleAdmin))
	lessonController.RegisterAdminRoutes(admin)
	assetController.RegisterAdminRoutes(admin)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
