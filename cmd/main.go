package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/safesite-vision/ppe-sentinel/internal/config"
	"github.com/safesite-vision/ppe-sentinel/internal/database"
	"github.com/safesite-vision/ppe-sentinel/internal/engine"
	"github.com/safesite-vision/ppe-sentinel/internal/events"
	"github.com/safesite-vision/ppe-sentinel/internal/heartbeat"
	"github.com/safesite-vision/ppe-sentinel/internal/kafka"
	"github.com/safesite-vision/ppe-sentinel/internal/pipeline"
	"github.com/safesite-vision/ppe-sentinel/internal/s3"
	"github.com/safesite-vision/ppe-sentinel/internal/services/recognition"
	"github.com/safesite-vision/ppe-sentinel/internal/strikes"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalw("database connection failed", "error", err)
	}
	defer db.Close()
	if err := db.Init(); err != nil {
		logger.Fatalw("database init failed", "error", err)
	}

	s3Client, err := s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket)
	if err != nil {
		logger.Fatalw("minio connection failed", "error", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		logger.Fatalw("evidence bucket init failed", "error", err)
	}

	frameConsumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.FrameTopic, logger)
	if err != nil {
		logger.Fatalw("frame consumer init failed", "error", err)
	}
	defer frameConsumer.Close()

	heartbeatConsumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID+"-hb", cfg.Kafka.HeartbeatTopic, logger)
	if err != nil {
		logger.Fatalw("heartbeat consumer init failed", "error", err)
	}
	defer heartbeatConsumer.Close()

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.StatusTopic, cfg.Kafka.EscalationTopic)
	if err != nil {
		logger.Fatalw("producer init failed", "error", err)
	}
	defer producer.Close()

	var recognizer pipeline.Recognizer
	if endpoint := os.Getenv("RECOGNITION_ENDPOINT"); endpoint != "" {
		recognizer = recognition.NewClient(endpoint)
	}

	strikeEngine := strikes.New(db, logger)
	if err := strikeEngine.Rehydrate(ctx); err != nil {
		logger.Fatalw("strike rehydration failed", "error", err)
	}

	monitor := heartbeat.New(cfg.Engine.HeartbeatTimeout(), cfg.Engine.SweepInterval(), logger)
	pipe := pipeline.New(db, s3Client, recognizer, cfg.Engine.CaptureTimeout(), logger)
	hub := events.NewHub(logger)

	eng := engine.New(cfg.Engine, cfg.SiteName, db, monitor, pipe, strikeEngine, producer, hub, logger)

	frameConsumer.StartListening(ctx)
	heartbeatConsumer.StartListening(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(gctx, frameConsumer.Messages(), heartbeatConsumer.Messages())
	})

	eventsServer := &http.Server{Addr: cfg.Events.ListenAddr, Handler: hub}
	g.Go(func() error {
		logger.Infow("events endpoint listening", "addr", cfg.Events.ListenAddr)
		if err := eventsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return eventsServer.Close()
	})

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case <-gctx.Done():
	}
	cancel()

	if err := g.Wait(); err != nil {
		logger.Errorw("shutdown error", "error", err)
	}
	logger.Info("engine stopped")
}
