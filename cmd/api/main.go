package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/knockdown-io/knockdown/internal/adapters/api"
	"github.com/knockdown-io/knockdown/internal/adapters/database"
	"github.com/knockdown-io/knockdown/internal/domain/auctions"
	"github.com/knockdown-io/knockdown/internal/domain/bids"
	"github.com/knockdown-io/knockdown/internal/domain/wallet"
	"github.com/knockdown-io/knockdown/pkg/auth"
	pkgdb "github.com/knockdown-io/knockdown/pkg/database"
	pkgevents "github.com/knockdown-io/knockdown/pkg/events"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx := context.Background()

	// 1. Initialize Postgres Connection Pool
	dbURL := os.Getenv("KNOCKDOWN_DB_URL")
	if dbURL == "" {
		logger.Error("KNOCKDOWN_DB_URL is not set")
		os.Exit(1)
	}

	dbConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		logger.Error("Unable to parse database config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Connect RabbitMQ
	rabbitURL := os.Getenv("RABBITMQ_URL")
	if rabbitURL == "" {
		logger.Error("RABBITMQ_URL is not set")
		os.Exit(1)
	}

	amqpConn, err := amqp091.Dial(rabbitURL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()
	logger.Info("RabbitMQ Connected")

	rabbitPublisher, err := pkgevents.NewRabbitMQPublisher(amqpConn, "auction.events")
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer rabbitPublisher.Close()

	// 3. Redis for idempotency keys (optional: bids degrade gracefully without it)
	var rdb *redis.Client
	redisURL := os.Getenv("REDIS_URL")
	if redisURL != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisURL})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis connection failed (idempotency keys disabled)", "error", err)
		} else {
			logger.Info("Redis Connected")
		}
	}

	// 4. Token verification keys
	publicKeyPath := os.Getenv("JWT_PUBLIC_KEY_PATH")
	if publicKeyPath == "" {
		logger.Error("JWT_PUBLIC_KEY_PATH is not set")
		os.Exit(1)
	}
	publicKeyPEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		logger.Error("Unable to read JWT public key", "error", err)
		os.Exit(1)
	}
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "knockdown"
	}
	signer, err := auth.NewSignerFromPublicKey(publicKeyPEM, issuer)
	if err != nil {
		logger.Error("Unable to initialize token verifier", "error", err)
		os.Exit(1)
	}

	// 5. Initialize Repositories (Infrastructure Layer)
	// Lock timeout bounds how long a bid waits on a contended auction row
	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	auctionRepo := database.NewPostgresAuctionRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	walletRepo := database.NewPostgresWalletRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	// 6. Initialize Services (Domain Layer)
	auctionService := auctions.NewService(txManager, auctionRepo, bidRepo, walletRepo, outboxRepo, logger)
	coordinator := bids.NewCoordinator(txManager, bidRepo, auctionRepo, walletRepo, outboxRepo, auctionService, logger)
	walletService := wallet.NewService(txManager, walletRepo, outboxRepo, logger)

	// 7. Start Outbox Relay in background
	outboxRelay := pkgevents.NewOutboxRelay(
		outboxRepo,
		rabbitPublisher,
		txManager,
		10,               // batch size
		1*time.Second,    // interval
		"auction.events", // exchange
		logger,
	)

	go func() {
		logger.Info("Starting Outbox Relay...")
		if err := outboxRelay.Run(ctx); err != nil {
			logger.Error("Outbox Relay stopped", "error", err)
		}
	}()

	// 8. Assemble HTTP surface
	router := api.NewRouter(api.RouterConfig{
		Handler:       api.NewHandler(auctionService, coordinator, logger),
		AdminHandler:  api.NewAdminHandler(auctionService, logger),
		WalletHandler: api.NewWalletHandler(walletService, logger),
		Signer:        signer,
		Redis:         rdb,
		RateLimit:     rate.Limit(20),
		RateBurst:     40,
	})

	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("Starting Auction API", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
