package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/knockdown-io/knockdown/internal/adapters/database"
	"github.com/knockdown-io/knockdown/internal/domain/auctions"
	pkgdb "github.com/knockdown-io/knockdown/pkg/database"
	pkgevents "github.com/knockdown-io/knockdown/pkg/events"
)

const (
	lifecycleInterval = 1 * time.Second
	lifecycleBatch    = 50
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down worker...")
		cancel()
	}()

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

	// 2. Initialize RabbitMQ Publisher
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

	// 3. Initialize Repositories and Services
	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	auctionRepo := database.NewPostgresAuctionRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	walletRepo := database.NewPostgresWalletRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	auctionService := auctions.NewService(txManager, auctionRepo, bidRepo, walletRepo, outboxRepo, logger)

	relay := pkgevents.NewOutboxRelay(
		outboxRepo,
		rabbitPublisher,
		txManager,
		10,                   // Batch size
		500*time.Millisecond, // Polling interval
		"auction.events",     // Exchange
		logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting Outbox Relay...")
		return relay.Run(ctx)
	})

	g.Go(func() error {
		logger.Info("Starting Lifecycle Poller...")
		return runLifecycle(ctx, auctionService, logger)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker stopped")
}

// runLifecycle polls for auctions whose start or end time has passed and
// transitions them. Closing also settles funds, so a failed pass is just
// retried on the next tick.
func runLifecycle(ctx context.Context, service *auctions.Service, logger *slog.Logger) error {
	ticker := time.NewTicker(lifecycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			opened, err := service.OpenDue(ctx, lifecycleBatch)
			if err != nil {
				logger.Error("Error opening due auctions", "error", err)
			} else if opened > 0 {
				logger.Info("Opened auctions", "count", opened)
			}

			closed, err := service.CloseDue(ctx, lifecycleBatch)
			if err != nil {
				logger.Error("Error closing due auctions", "error", err)
			} else if closed > 0 {
				logger.Info("Closed auctions", "count", closed)
			}
		}
	}
}
