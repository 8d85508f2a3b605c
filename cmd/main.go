package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"underwriting-service/internal/config"
	"underwriting-service/internal/database/postgres"
	"underwriting-service/internal/database/redis"
	"underwriting-service/internal/engine"
	"underwriting-service/internal/event"
	"underwriting-service/internal/handlers"
	"underwriting-service/internal/oracle"
	"underwriting-service/internal/repository"
	"underwriting-service/internal/services"
	"underwriting-service/internal/worker"

	"github.com/gofiber/fiber/v3"
)

func setupLogging() (*os.File, error) {
	logDir := filepath.Join("/agrisa", "log", "underwriting_service")
	err := os.MkdirAll(logDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, file), nil)))

	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	cfg := config.New()

	db, err := postgres.ConnectAndCreateDB(cfg.PostgresCfg)
	if err != nil {
		slog.Error("error connecting to database", "error", err)
		go postgres.RetryConnectOnFailed(30*time.Second, &db, cfg.PostgresCfg)
	}

	redisClient, err := redis.NewRedisClient(cfg.RedisCfg)
	if err != nil {
		slog.Error("error connecting to redis, oracle readings will not be cached", "error", err)
	} else {
		defer redisClient.Close()
	}

	var emitter engine.Emitter = engine.NopEmitter{}
	var publisher *event.TransitionPublisher
	rabbitConn, err := event.ConnectRabbitMQ(cfg.RabbitMQCfg)
	if err != nil {
		slog.Error("error connecting to RabbitMQ, transitions will not be published", "error", err)
	} else {
		defer rabbitConn.Close()
		publisher, err = event.NewTransitionPublisher(rabbitConn)
		if err != nil {
			slog.Error("error creating transition publisher", "error", err)
		} else {
			emitter = publisher
		}
	}

	var oracleCache *oracle.Client
	if redisClient != nil {
		oracleCache = oracle.NewClient(cfg.OracleCfg, redisClient.GetClient())
	} else {
		oracleCache = oracle.NewClient(cfg.OracleCfg, nil)
	}

	engineCfg := engine.DefaultConfig()
	engineCfg.MaxUtilizationBps = cfg.EngineCfg.MaxUtilizationBps
	engineCfg.Treasury.PlatformFeeBps = cfg.EngineCfg.PlatformFeeBps
	engineCfg.Treasury.MinRatioBps = cfg.EngineCfg.MinReserveBps
	engineCfg.Treasury.TargetRatioBps = cfg.EngineCfg.TargetReserveBps
	engineCfg.Treasury.RebalanceThresholdBps = cfg.EngineCfg.RebalanceThresholdBps
	engineCfg.Lifecycle.CancelRefundBps = cfg.EngineCfg.CancelRefundBps
	engineCfg.Lifecycle.MaxActivePerOwner = cfg.EngineCfg.MaxActivePerOwner
	engineCfg.Lifecycle.MaxTrailingClaims = cfg.EngineCfg.MaxTrailingClaims

	eng, err := engine.New(engineCfg, oracleCache, emitter)
	if err != nil {
		log.Fatalf("Failed to build accounting engine: %v", err)
	}

	var policyRepo *repository.PolicyRepository
	var payoutRepo *repository.PayoutRepository
	var ledgerRepo *repository.LedgerRepository
	if db != nil {
		policyRepo = repository.NewPolicyRepository(db)
		payoutRepo = repository.NewPayoutRepository(db)
		ledgerRepo = repository.NewLedgerRepository(db)
	}

	service := services.NewUnderwritingService(eng, policyRepo, payoutRepo, ledgerRepo)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	scheduler := worker.NewExpirationScheduler(service, time.Hour)
	go scheduler.Run(workerCtx)

	app := fiber.New()

	handlers.NewPoolHandler(service).Register(app)
	handlers.NewPolicyHandler(service).Register(app)
	handlers.NewPayoutHandler(service).Register(app)
	handlers.NewTreasuryHandler(service).Register(app)
	var publisherStatus handlers.PublisherStatus
	if publisher != nil {
		publisherStatus = publisher
	}
	var cachePinger handlers.CachePinger
	if redisClient != nil {
		cachePinger = redisClient
	}
	handlers.NewAdminHandler(service, publisherStatus, cachePinger).Register(app)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("fiber server stopped", "error", err)
		}
	}()

	slog.Info("underwriting service started", "port", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down underwriting service")
	workerCancel()
	if err := app.Shutdown(); err != nil {
		slog.Error("error during server shutdown", "error", err)
	}
}
