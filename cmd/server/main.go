package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sgp-service/config"
	"sgp-service/internal/api"
	"sgp-service/internal/broker"
	"sgp-service/internal/models"
	"sgp-service/internal/redisclient"
	"sgp-service/internal/service"
	"sgp-service/internal/store"
	"sgp-service/internal/util"
	"sgp-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting SGP service")

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer("sgp-service", cfg.Observ.JaegerEndpoint)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Printf("Error shutting down tracer: %v", err)
			}
		}()
	}

	rs, err := store.New(cfg.Store.Backend, store.Options{
		BaseURL:     cfg.Store.BaseURL,
		Token:       cfg.Store.Token,
		DatabaseURL: cfg.Store.DatabaseURL,
		HTTPClient:  &http.Client{Timeout: cfg.Store.Timeout},
	})
	if err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}
	defer rs.Close()
	logger.Info("Record store ready", zap.String("backend", cfg.Store.Backend))

	repo := store.NewRepository(rs, cfg.Store.PageSize)

	var (
		redisClient *redisclient.Client
		guard       service.IdempotencyGuard
		locker      worker.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		guard, locker = redisClient, redisClient
		log.Println("Redis connected")
	}

	var publisher service.EventPublisher = broker.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		log.Println("Kafka producer initialized")
	}

	alertService := service.NewAlertService(repo, guard, publisher, service.AlertOptions{
		ExpiringSoonDays: cfg.Business.ExpiringSoonDays,
		DedupTTL:         cfg.Business.AlertDedupTTL,
	})
	proposalService := service.NewProposalService(repo, alertService, publisher, service.ProposalOptions{
		ValidityMonths:   cfg.Business.DefaultValidityMonths,
		ExpiringSoonDays: cfg.Business.ExpiringSoonDays,
	})
	inbox := service.NewInbox(repo)
	statsService := service.NewStatsService(repo)

	scheduler := worker.NewScheduler(proposalService, alertService, inbox, locker, worker.SchedulerConfig{
		Interval: cfg.Business.PollInterval,
		LockTTL:  cfg.Business.TickLockTTL,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	scheduler.Start(workerCtx)

	var eventWorker *worker.ProposalEventWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		eventWorker = worker.NewProposalEventWorker(consumer, scheduler, guard)
		go func() {
			if err := eventWorker.Start(workerCtx); err != nil && err != context.Canceled {
				log.Printf("Proposal event worker error: %v", err)
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Proposals: proposalService,
		Alerts:    alertService,
		Inbox:     inbox,
		Stats:     statsService,
		Catalog:   repo,
		Scheduler: scheduler,
		Ready: func(ctx context.Context) error {
			if _, err := rs.List(ctx, models.CollectionProposals, store.ListParams{Page: 1, Limit: 1}); err != nil {
				return fmt.Errorf("record store: %w", err)
			}
			if redisClient != nil {
				if err := redisClient.Ping(ctx); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	scheduler.Stop()
	if eventWorker != nil {
		if err := eventWorker.Stop(); err != nil {
			log.Printf("Error stopping proposal event worker: %v", err)
		}
	}

	log.Println("Server exited")
}
