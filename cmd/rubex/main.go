package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rubex-exchange/rubex/api"
	"github.com/rubex-exchange/rubex/internal/commission"
	"github.com/rubex-exchange/rubex/internal/config"
	"github.com/rubex-exchange/rubex/internal/database"
	"github.com/rubex-exchange/rubex/internal/events"
	"github.com/rubex-exchange/rubex/internal/identities"
	"github.com/rubex-exchange/rubex/internal/orders"
	"github.com/rubex-exchange/rubex/internal/partner"
	"github.com/rubex-exchange/rubex/internal/quote"
	"github.com/rubex-exchange/rubex/internal/rates"
	"github.com/rubex-exchange/rubex/internal/requisites"
	"github.com/rubex-exchange/rubex/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(zapLogger, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			zapLogger.Fatal("Failed to create kafka publisher", zap.Error(err))
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	// Create services
	identitiesSvc, err := identities.NewService(zapLogger, db, cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	if err != nil {
		zapLogger.Fatal("Failed to create identities service", zap.Error(err))
	}

	commissionsSvc, err := commission.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create commission service", zap.Error(err))
	}
	if err := commissionsSvc.Ensure(context.Background()); err != nil {
		zapLogger.Fatal("Failed to bootstrap commission schedule", zap.Error(err))
	}

	rateStore := rates.NewStore()
	ratesSvc, err := rates.NewService(zapLogger, db, rateStore, redisClient, rates.Config{
		URL:        cfg.Rates.URL,
		APIKey:     cfg.Rates.APIKey,
		Interval:   cfg.Rates.Interval,
		Currencies: cfg.Rates.Currencies,
	})
	if err != nil {
		zapLogger.Fatal("Failed to create rates service", zap.Error(err))
	}

	quotesSvc, err := quote.NewService(zapLogger, rateStore, commissionsSvc)
	if err != nil {
		zapLogger.Fatal("Failed to create quote service", zap.Error(err))
	}

	ordersSvc, err := orders.NewService(zapLogger, db, publisher)
	if err != nil {
		zapLogger.Fatal("Failed to create orders service", zap.Error(err))
	}

	partnersSvc, err := partner.NewService(zapLogger, db, publisher, decimal.NewFromInt(cfg.Withdrawals.MinAmount))
	if err != nil {
		zapLogger.Fatal("Failed to create partner service", zap.Error(err))
	}

	requisitesSvc, err := requisites.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create requisites service", zap.Error(err))
	}

	apiServer := api.NewServer(
		zapLogger,
		identitiesSvc,
		quotesSvc,
		ordersSvc,
		partnersSvc,
		requisitesSvc,
		commissionsSvc,
		rateStore,
	)

	if err := ratesSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start rates service", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := apiServer.Start(addr); err != nil {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	if err := ratesSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop rates service", zap.Error(err))
	}

	zapLogger.Info("Server exited properly")
}
