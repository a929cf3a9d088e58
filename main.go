package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"attendify/internal/attendify_api"
	"attendify/internal/claim"
	"attendify/internal/config"
	"attendify/internal/content"
	"attendify/internal/events"
	"attendify/internal/kafka"
	"attendify/internal/ledger"
	"attendify/internal/logger"
	"attendify/internal/mint"
	"attendify/internal/offer"
	"attendify/internal/ownership"
	"attendify/internal/qr"
	"attendify/internal/sse"
)

type publisher interface {
	mint.EventPublisher
	claim.ClaimPublisher
	Close() error
}

func connectLedger(ctx context.Context, cfg config.LedgerConfig, log *logger.Logger) *ledger.Client {
	var transport ledger.Transport
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("LEDGER", fmt.Sprintf("Connecting to %s (attempt %d/%d)", cfg.URL, i+1, maxRetries))
		transport, err = ledger.Dial(ctx, cfg.URL, cfg.RequestTimeout, cfg.MaxRetries)
		if err == nil {
			break
		}
		log.Error("LEDGER", fmt.Sprintf("Failed to connect: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("LEDGER", fmt.Sprintf("Failed to connect to ledger after %d attempts: %v", maxRetries, err))
	}

	log.Info("LEDGER", fmt.Sprintf("✅ Ledger transport ready for %s", cfg.URL))
	return ledger.NewClient(transport, ledger.NewFaucet(cfg.FaucetURL, cfg.RequestTimeout), log,
		ledger.WithPollInterval(cfg.PollInterval),
		ledger.WithValidationTimeout(cfg.ValidationTimeout),
		ledger.WithMaxPages(cfg.MaxPages),
		ledger.WithPageLimit(cfg.PageLimit),
	)
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, redisClient.Options().DB))
	return redisClient
}

func setupKafka(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) publisher {
	if !cfg.Enabled {
		log.Info("KAFKA", "Kafka disabled, events will not be published")
		return kafka.NoopPublisher{}
	}

	log.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Brokers))
	requiredTopics := []string{cfg.Topics.EventCreated, cfg.Topics.ClaimTransferred}
	if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, requiredTopics, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}

	producer := kafka.NewProducer(cfg.Brokers, kafka.Topics{
		EventCreated:     cfg.Topics.EventCreated,
		ClaimTransferred: cfg.Topics.ClaimTransferred,
	}, log)
	log.Info("KAFKA", "Kafka producer initialized successfully")
	return producer
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	logger := logger.NewLogger(cfg.Log.Dir, cfg.Log.Level)
	defer logger.Close()

	logger.Info("APP", "Starting Attendify initialization")
	if envErr != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx, stopWatchers := context.WithCancel(context.Background())
	defer stopWatchers()

	// --- Ledger ---
	ledgerClient := connectLedger(ctx, cfg.Ledger, logger)
	defer ledgerClient.Close()

	// --- Registry & vault ---
	vault, err := events.NewVault()
	if err != nil {
		logger.Fatal("APP", fmt.Sprintf("Failed to create credential vault: %v", err))
	}
	registry := events.NewRegistry(vault)

	// --- Token locks ---
	var locks claim.TokenLocker
	if cfg.Redis.Enabled {
		redisClient := connectRedis(ctx, cfg.Redis, logger)
		defer redisClient.Close()
		redisLocks := claim.NewRedisLocker(redisClient, cfg.Claim.TokenLockTTL, logger)
		go func() {
			err := redisLocks.WatchExpiry(ctx, func(tokenID string) {
				logger.Info("CLAIM", fmt.Sprintf("Token %s is offerable again", tokenID))
			})
			if err != nil {
				logger.Warn("REDIS", fmt.Sprintf("Token lock expiry watch stopped: %v", err))
			}
		}()
		locks = redisLocks
	} else {
		logger.Info("CLAIM", "Redis disabled, using in-process token locks")
		locks = claim.NewMemoryLocker()
	}

	// --- Kafka ---
	bus := setupKafka(ctx, cfg.Kafka, logger)
	defer bus.Close()

	// --- Services ---
	minter := mint.NewMinter(ledgerClient, registry, bus, logger)
	handshake := offer.NewHandshake(ledgerClient, logger)
	claimStream := sse.NewClaimEmitter()
	coordinator := claim.NewCoordinator(registry, vault, ledgerClient, handshake, locks, claim.Fanout{bus, claimStream}, logger)
	verifier := ownership.NewVerifier(ownership.EnvelopeVerifier{}, ledgerClient, logger)

	handler := &attendify_api.Handler{
		Minter:    minter,
		Claims:    coordinator,
		Ownership: verifier,
		Ledger:    ledgerClient,
		Events:    registry,
		QR:        qr.NewGenerator(cfg.Claim.PublicURL),
		Stream:    claimStream,
		Logger:    logger,

		MintWriteTimeout: cfg.Server.MintWriteTimeout,
	}
	if cfg.IPFS.Enabled {
		handler.Content = content.NewIPFSStore(cfg.IPFS.APIURL, cfg.IPFS.GatewayURL, cfg.IPFS.ProjectID, cfg.IPFS.ProjectSecret, logger)
		logger.Info("IPFS", fmt.Sprintf("Event metadata will be uploaded to %s", cfg.IPFS.APIURL))
	}

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(attendify_api.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(attendify_api.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	handler.RegisterRoutes(r)
	logger.Info("ROUTER", "Attendify routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Attendify running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopWatchers()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Attendify shutdown complete")
	}
}
