package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"merchantpay/internal/app/payments"
	"merchantpay/internal/config"
	payments_http "merchantpay/internal/handler/http/payments"
	kafka_handler "merchantpay/internal/handler/kafka"
	"merchantpay/internal/infrastructure/database"
	kafka_infra "merchantpay/internal/infrastructure/kafka"
	"merchantpay/internal/merchant"
	"merchantpay/internal/outbox"
	"merchantpay/internal/repository/inbox_repo"
	"merchantpay/internal/repository/orders_repo"
	"merchantpay/internal/repository/outbox_repo"
	"merchantpay/internal/repository/store"
)

func ensureKafkaTopics(ctx context.Context, brokerURLs []string, topics []string, logger *zap.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", brokerURLs[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker for admin operations: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfigs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}

	err = controllerConn.CreateTopics(topicConfigs...)
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create Kafka topics: %w", err)
	}
	logger.Info("Kafka topics ensured.", zap.Strings("topics", topics))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	return zapConfig.Build()
}

func connectDB(cfg database.DBConfig, logger *zap.Logger) (*sql.DB, error) {
	const maxRetries = 10
	retryDelay := 5 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := database.NewPostgresDB(cfg)
		if err == nil {
			logger.Info("Successfully connected to PostgreSQL database!")
			return db, nil
		}
		lastErr = err
		logger.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_in", retryDelay),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, lastErr
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := newLogger(cfg.EffectiveLogLevel())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("Merchant payments service starting...")

	if cfg.Gateway.AutoSell {
		appLogger.Warn("Auto-sell is enabled: received bitcoin will be converted to the order currency automatically")
	}

	db, err := connectDB(database.DBConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}, appLogger)
	if err != nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...", zap.String("source", cfg.MigrationsPath))
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	kafkaBrokers := cfg.GetKafkaBrokers()
	topicsCtx, cancelTopics := context.WithTimeout(context.Background(), 10*time.Second)
	err = ensureKafkaTopics(topicsCtx, kafkaBrokers, []string{
		cfg.KafkaPaymentEventsTopic,
		cfg.KafkaCheckoutRequestsTopic,
	}, appLogger)
	cancelTopics()
	if err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	signer, err := merchant.NewSignerFromBase64(cfg.Gateway.APISecret)
	if err != nil {
		appLogger.Fatal("Invalid merchant API secret", zap.Error(err))
	}
	merchantClient := merchant.NewClient(merchant.ClientConfig{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout,
	}, signer, appLogger.With(zap.String("component", "MerchantClient")))

	outboxRepository := outbox_repo.NewOutboxRepository()
	paymentStore := store.New(
		db,
		orders_repo.NewOrderRepository(),
		inbox_repo.NewInboxRepository(),
		outboxRepository,
		appLogger.With(zap.String("component", "Store")),
	)

	checkoutService := payments.NewCheckoutService(paymentStore, merchantClient, signer, payments.Options{
		CallbackURL:      cfg.Gateway.IPNURL,
		ReturnSuccessURL: cfg.Gateway.ReturnSuccessURL,
		ReturnFailureURL: cfg.Gateway.ReturnFailureURL,
		Description:      cfg.Gateway.PaymentDescription,
		Email:            cfg.Gateway.Email,
		AutoSell:         cfg.Gateway.AutoSell,
		InstantOnly:      cfg.Gateway.InstantOnly,
		EventsTopic:      cfg.KafkaPaymentEventsTopic,
	}, appLogger.With(zap.String("component", "CheckoutService")))
	appLogger.Info("Checkout Service initialized.")

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	payments_http.RegisterRoutes(router, checkoutService, payments_http.RouteOptions{
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, appLogger.With(zap.String("component", "HTTPHandler")))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	kafkaProducer := kafka_infra.NewProducer(
		kafkaBrokers,
		cfg.KafkaPaymentEventsTopic,
		appLogger.With(zap.String("component", "KafkaProducer")),
	)
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}()

	outboxProcessor := outbox.NewProcessor(
		db,
		outboxRepository,
		kafkaProducer,
		cfg.OutboxPollInterval,
		cfg.OutboxPollTimeout,
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)

	checkoutRequestsConsumer := kafka_infra.NewConsumer(
		kafkaBrokers,
		cfg.KafkaConsumerGroup,
		cfg.KafkaCheckoutRequestsTopic,
		appLogger.With(zap.String("component", "CheckoutRequestsConsumer")),
	)
	checkoutRequestedHandler := kafka_handler.CheckoutRequestedMessageHandler(
		checkoutService,
		appLogger.With(zap.String("component", "CheckoutRequestedHandler")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return outboxProcessor.Start(gCtx)
	})

	g.Go(func() error {
		return checkoutRequestsConsumer.Start(gCtx, checkoutRequestedHandler)
	})

	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutting down application...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		appLogger.Info("HTTP server gracefully shut down.")
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Application stopped with error", zap.Error(err))
		return
	}
	appLogger.Info("Application gracefully shut down.")
}
