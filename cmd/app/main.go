package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/config"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dispatcher"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/gateway"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/handler"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/idempotency"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/push"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/rabbitmq"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository/memory"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/repository/postgres"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := config.LoadEnv(".env"); err != nil {
		log.Fatalf("failed to load environment variables: %s", err.Error())
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("failed to initialize config: %s", err.Error())
	}

	logger, err := newLogger(cfg.LogOutputPaths)
	if err != nil {
		log.Fatalf("failed to create zap logger: %s", err.Error())
	}
	defer logger.Sync()

	repo, closeRepo := newRepository(ctx, logger, cfg)
	defer closeRepo()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		pong, err := rdb.Ping(ctx).Result()
		if err != nil {
			logger.Sugar().Fatalf("failed to ping redis: %s", err.Error())
		}
		logger.Sugar().Infof("Successfully connected to Redis: %s", pong)
		defer rdb.Close()
	} else {
		logger.Warn("REDIS_ADDR is not set, running without cache and idempotency keys")
	}

	var mq *rabbitmq.MQConn
	if cfg.RabbitMQURL != "" {
		mq, err = rabbitmq.New(cfg.RabbitMQURL)
		if err != nil {
			logger.Sugar().Fatalf("failed to connect to rabbitmq: %s", err.Error())
		}
		defer mq.Close()
	} else {
		logger.Warn("RABBITMQ_CONN_STRING is not set, push delivery runs in process")
	}

	transport := newPushTransport(ctx, logger, cfg.Push)

	services := service.New(logger, cfg, repo, rdb, mq, transport)
	gw := gateway.New(logger, services.Notification, gateway.Config{
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		WriteTimeout:      cfg.Stream.WriteTimeout,
		Buffer:            cfg.Stream.Buffer,
	})
	guard := idempotency.New(logger, rdb, cfg.IdempotencyTTL)
	handlers := handler.New(logger, cfg, services, gw, guard)

	if mq != nil {
		dispatcher.New(logger, mq, services.Push).StartProcessing(ctx)
		go services.Notification.StartProcessingDomainEvents(ctx)
	}

	if err := services.Notification.StartJobs(); err != nil {
		logger.Sugar().Fatalf("failed to start retention jobs: %s", err.Error())
	}

	// no WriteTimeout: live streams stay open; each stream write has its own deadline
	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           handlers.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar().Fatalf("http server failed: %s", err.Error())
		}
	}()

	logger.Sugar().Infof("Notification service started on %s", cfg.Port)

	<-ctx.Done()

	logger.Info("Notification service shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("failed to shut down http server: %s", err.Error())
	}
	if err := services.Notification.StopJobs(); err != nil {
		logger.Sugar().Errorf("failed to stop retention jobs: %s", err.Error())
	}
}

func newRepository(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*repository.Repository, func()) {
	if cfg.StorageDriver == "memory" {
		logger.Warn("using in-memory storage, notifications are lost on restart")
		return memory.NewRepository(), func() {}
	}

	db, err := postgres.Connect(ctx, cfg.DB)
	if err != nil {
		logger.Sugar().Fatalf("db connection error: %s", err.Error())
	}
	if err := db.Ping(ctx); err != nil {
		logger.Sugar().Fatalf("couldn't ping postgres db: %s", err.Error())
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		logger.Sugar().Fatalf("failed to apply schema: %s", err.Error())
	}
	logger.Info("Successfully connected to PostgreSQL")

	return postgres.NewRepository(db), db.Close
}

func newPushTransport(ctx context.Context, logger *zap.Logger, cfg config.PushConfig) push.Transport {
	router := &push.Router{}

	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		router.WebPush = push.NewWebPush(push.WebPushConfig{
			Subscriber:      cfg.VAPIDSubscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             cfg.TTL,
		})
	} else {
		logger.Warn("VAPID keys are not set, web push is disabled")
	}

	if cfg.FirebaseCreds != "" {
		fcm, err := push.NewFCMFromCredentials(ctx, cfg.FirebaseProject, cfg.FirebaseCreds)
		if err != nil {
			logger.Sugar().Fatalf("failed to initialize firebase messaging: %s", err.Error())
		}
		router.FCM = fcm
	}

	return router
}

func newLogger(outputPaths []string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = outputPaths
	return cfg.Build()
}
