package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/adapter"
	"github.com/fitpulse/service-billing/internal/application"
	"github.com/fitpulse/service-billing/internal/config"
	billingEvents "github.com/fitpulse/service-billing/internal/events"
	"github.com/fitpulse/service-billing/internal/handler"
	"github.com/fitpulse/service-billing/internal/platform/auth"
	"github.com/fitpulse/service-billing/internal/platform/database"
	"github.com/fitpulse/service-billing/internal/platform/health"
	"github.com/fitpulse/service-billing/internal/platform/kafka"
	"github.com/fitpulse/service-billing/internal/platform/logger"
	"github.com/fitpulse/service-billing/internal/platform/middleware"
	"github.com/fitpulse/service-billing/internal/repository"
	"github.com/fitpulse/service-billing/internal/revenue"
	"github.com/fitpulse/service-billing/internal/saga"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, "service-billing")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting service-billing",
		zap.String("port", cfg.Port),
		zap.Bool("revenue_server_side", cfg.RevenueConfig.ServerSideSummary),
		zap.String("revenue_timezone", cfg.RevenueConfig.Location.String()),
	)

	// Connect to database
	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}

	db, err := database.Connect(dbConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.PaymentModel{}, &repository.UserModel{}); err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(dbConfig.DatabaseURL(), "migrations", zapLogger); err != nil {
			zapLogger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		cfg.JWTConfig.AccessTokenTTL,
		cfg.JWTConfig.RefreshTokenTTL,
	)

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
	defer kafkaProducer.Close()

	// Simulated payment gateway
	gateway := adapter.NewSimulatedGateway(cfg.GatewayConfig.DeclineAbove, zapLogger)

	// Initialize repositories
	paymentRepo := repository.NewPaymentRepository(db)
	userRepo := repository.NewGormUserRepository(db, cfg.UserSearchServerSide)

	// Revenue aggregation over the payment store, guarded by a breaker
	paymentQuery := revenue.NewBreakerQuery(paymentRepo, revenue.BreakerConfig{
		Name:             "payment-query",
		FailureThreshold: cfg.RevenueConfig.BreakerFailures,
		Timeout:          cfg.RevenueConfig.BreakerTimeout,
	}, zapLogger)
	aggregator := revenue.NewAggregator(paymentQuery, zapLogger,
		revenue.WithServerSideSummary(cfg.RevenueConfig.ServerSideSummary),
	)

	// Initialize saga service
	sagaService := saga.NewCheckoutSagaService(paymentRepo, gateway, kafkaProducer, zapLogger)

	// Initialize application services
	paymentService := application.NewPaymentService(paymentRepo, sagaService, zapLogger)
	userService := application.NewUserService(userRepo, zapLogger)
	reportService := application.NewReportService(aggregator, cfg.RevenueConfig.Location, zapLogger)

	// Initialize Kafka consumer for billing events
	consumerGroupID := cfg.KafkaConfig.GroupPrefix + "billing-service"
	billingConsumer := billingEvents.NewBillingEventConsumer(
		cfg.KafkaConfig.Brokers,
		consumerGroupID,
		paymentService,
		zapLogger,
	)
	defer billingConsumer.Close()

	// Start Kafka consumer in a goroutine
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	go func() {
		zapLogger.Info("starting billing event consumer")
		if err := billingConsumer.Start(consumerCtx); err != nil {
			if consumerCtx.Err() == nil {
				zapLogger.Error("billing event consumer failed", zap.Error(err))
			}
		}
	}()

	// Initialize HTTP handlers
	paymentHandler := handler.NewPaymentHandler(paymentService)
	adminHandler := handler.NewAdminHandler(paymentService, userService, reportService)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check and metrics routes
	healthHandler := health.NewHandler(db, "service-billing")
	healthHandler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Register API routes
	apiV1 := router.Group("/api/v1")
	paymentHandler.RegisterRoutes(apiV1, jwtManager)
	adminHandler.RegisterRoutes(apiV1, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down service-billing...")

	// Cancel Kafka consumer
	consumerCancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("service-billing stopped")
}
