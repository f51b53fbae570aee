package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camwatch/internal/core/ports"
	"camwatch/internal/core/services"
	"camwatch/internal/core/session"
	httphandlers "camwatch/internal/handlers/http"
	"camwatch/internal/infrastructure/decoder"
	"camwatch/internal/infrastructure/detector"
	"camwatch/internal/infrastructure/messaging"
	"camwatch/internal/infrastructure/middleware"
	"camwatch/internal/infrastructure/monitoring"
	"camwatch/internal/infrastructure/probe"
	"camwatch/internal/infrastructure/repositories"
	wsserver "camwatch/internal/infrastructure/signal"
	"camwatch/internal/infrastructure/storage"
	"camwatch/pkg/config"
	"camwatch/pkg/logger"
	"camwatch/pkg/optimize"
	"camwatch/pkg/retry"
	"camwatch/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func loadConfig() (*config.Config, error) {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/camwatch/config.yaml",
		"config.yaml",
	}
	if path := os.Getenv("CAMWATCH_CONFIG"); path != "" {
		configPaths = []string{path}
	}

	var lastErr error
	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := config.Load(path)
		if err == nil {
			return cfg, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}

	// No file found: defaults plus environment overrides
	return config.Load("")
}

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	instanceID := uuid.NewString()
	log = log.With("instance_id", instanceID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "camwatch",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	if err := decoder.CheckInstallation(ctx, cfg.Decoder.Binary); err != nil {
		log.Warnw("decoder binary not usable, streams will fail to start",
			"binary", cfg.Decoder.Binary,
			"error", err,
		)
	}

	// Repositories and services
	repoFactory := repositories.NewRepositoryFactory(ctx, cfg, log)
	streamRepo := repoFactory.CreateStreamRepository()
	detectionRepo := repoFactory.CreateDetectionRepository()

	streamService := services.NewStreamService(streamRepo)
	detectionService := services.NewDetectionService(streamRepo, detectionRepo)
	alertService := services.NewAlertService(streamRepo, detectionRepo, repoFactory.CreateAlertRepository())
	authService := services.NewAuthService(
		repoFactory.CreateUserRepository(),
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	snapshots, err := storage.NewSnapshotStore(cfg.Storage.SnapshotsDir, cfg.Storage.MediaURL, cfg.Stream.JPEGQuality, log)
	if err != nil {
		log.Fatalw("failed to prepare snapshot directory", "dir", cfg.Storage.SnapshotsDir, "error", err)
	}

	// Face model shared by every session
	var model ports.FaceModel = detector.NoopModel{}
	var worker *detector.WorkerModel
	if cfg.Detection.WorkerCommand != "" {
		worker = detector.NewWorkerModel(detector.WorkerConfig{
			Command:         cfg.Detection.WorkerCommand,
			Args:            cfg.Detection.WorkerArgs,
			Timeout:         cfg.Detection.Timeout,
			BreakerFailures: cfg.Detection.BreakerFailures,
			BreakerCooldown: cfg.Detection.BreakerCooldown,
		}, log.Named("detector"))
		if err := worker.Start(ctx); err != nil {
			log.Warnw("detection worker failed to start, will retry on first frame", "error", err)
		}
		model = worker
	} else if cfg.Detection.Enabled {
		log.Warn("no detection worker configured, face detection disabled")
	}

	health := monitoring.NewHealthChecker(log.Named("health"))
	health.AddPingCheck("database", monitoring.PingFunc(repoFactory.HealthCheck), 30*time.Second, 5*time.Second)
	if worker != nil {
		health.AddPingCheck("detector", worker, 30*time.Second, time.Second)
	}

	// Alert fan-out
	publishers := messaging.NewMultiPublisher()
	var (
		mqttPublisher  *messaging.MQTTPublisher
		redisPublisher *messaging.RedisPublisher
	)
	if cfg.MQTT.Enabled {
		mqttPublisher = messaging.NewMQTTPublisher(messaging.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		}, instanceID, log.Named("mqtt"))
		err := retry.Do(ctx, retry.DefaultConfig(), mqttPublisher.Connect)
		if err != nil {
			log.Warnw("MQTT broker unreachable, alerts will not be published there",
				"broker", cfg.MQTT.Broker,
				"error", err,
			)
		}
		publishers.Add(mqttPublisher)
		health.AddPingCheck("mqtt", mqttPublisher, 30*time.Second, 5*time.Second)
	}
	if cfg.Redis.Enabled {
		err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
			c, err := messaging.NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
			if err != nil {
				return err
			}
			redisPublisher = messaging.NewRedisPublisher(c, cfg.Redis.Channel, instanceID, log.Named("redis"))
			return nil
		})
		if err != nil {
			log.Warnw("Redis unreachable, alerts will not be published there",
				"address", cfg.Redis.Address,
				"error", err,
			)
		} else {
			publishers.Add(redisPublisher)
			health.AddPingCheck("redis", redisPublisher, 30*time.Second, 5*time.Second)
		}
	}
	var publisher ports.AlertPublisher
	if publishers.Len() > 0 {
		publisher = publishers
	}

	// Monitoring
	var metrics ports.SessionMetrics
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	// Sessions
	sessionCfg := session.ConfigFrom(cfg)
	decoderCfg := decoder.Config{
		Binary:    cfg.Decoder.Binary,
		Width:     cfg.Decoder.Width,
		Height:    cfg.Decoder.Height,
		StopGrace: cfg.Decoder.StopGrace,
	}
	buffers := optimize.NewBufferPool(cfg.FrameSize() / 8)
	newSession := func(transport ports.SessionTransport) *session.StreamSession {
		return session.New(sessionCfg, session.Deps{
			Transport: transport,
			NewDecoder: func() ports.FrameDecoder {
				return decoder.New(decoderCfg, log.Named("decoder"))
			},
			Model:     model,
			Streams:   streamService,
			Alerts:    alertService,
			Snapshots: snapshots,
			Publisher: publisher,
			Metrics:   metrics,
			Buffers:   buffers,
			Logger:    log.Named("session"),
		})
	}
	wsServer := wsserver.NewWebSocketServer(cfg, newSession, log.Named("ws"))

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService)
	streamHandler := httphandlers.NewStreamHandler(streamService, probe.NewProber(cfg.Probe.Timeout, log.Named("probe")), cfg.Stream.WSBaseURL)
	alertHandler := httphandlers.NewAlertHandler(alertService, snapshots)
	detectionHandler := httphandlers.NewDetectionHandler(detectionService, snapshots)
	healthHandler := httphandlers.NewHealthHandler(health, wsServer)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLogger(logger.NewContextLogger(zapLogger)),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	healthHandler.SetupRoutes(router)
	router.Static(cfg.Storage.MediaURL, snapshots.Dir())
	router.GET("/ws/stream/", middleware.NewWebSocketRateLimitMiddleware(cfg), gin.WrapF(wsServer.HandleWebSocket))

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	api := router.Group("/api/v1")
	authHandler.SetupRoutes(api)

	admin := api.Group("")
	admin.Use(middleware.AuthMiddleware(authService))
	streamHandler.SetupRoutes(admin)
	alertHandler.SetupRoutes(admin)
	detectionHandler.SetupRoutes(admin)
	healthHandler.SetupAdminRoutes(admin)

	health.StartBackgroundChecks(ctx)

	// Create HTTP server with timeouts. WriteTimeout stays off: relay
	// connections are hijacked and manage their own deadlines.
	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting camwatch server",
			"address", cfg.Server.Address,
			"database", cfg.Database.Driver,
			"detection", cfg.Detection.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	}

	log.Info("Shutting down camwatch server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error stopping stream sessions", "error", err)
	}

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if worker != nil {
		if err := worker.Close(); err != nil {
			log.Warnw("Error stopping detection worker", "error", err)
		}
	}
	if mqttPublisher != nil {
		mqttPublisher.Disconnect()
	}
	if redisPublisher != nil {
		if err := redisPublisher.Close(); err != nil {
			log.Warnw("Error closing Redis publisher", "error", err)
		}
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("Error flushing traces", "error", err)
	}

	log.Info("camwatch server stopped")
}
