package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/forj-go/pkg/config"
	"github.com/Layr-Labs/forj-go/pkg/issuance"
	"github.com/Layr-Labs/forj-go/pkg/ledger"
	"github.com/Layr-Labs/forj-go/pkg/logger"
	"github.com/Layr-Labs/forj-go/pkg/merkle"
	"github.com/Layr-Labs/forj-go/pkg/persistence"
	"github.com/Layr-Labs/forj-go/pkg/persistence/badger"
	"github.com/Layr-Labs/forj-go/pkg/persistence/memory"
	"github.com/Layr-Labs/forj-go/pkg/persistence/redis"
	"github.com/Layr-Labs/forj-go/pkg/server"
	"github.com/Layr-Labs/forj-go/pkg/verification"
)

func main() {
	app := &cli.App{
		Name:  "forj-server",
		Usage: "Batch credential issuance and verification server",
		Description: `Commits batches of credential records to a single Merkle root and
verifies individual credentials against it.

This server implements:
- Batch upload: CSV or JSON records are committed and their artifacts pinned
- Claiming: holders look up their credential, which is marked as claimed
- Verification: a credential is folded through its proof and compared with
  the anchored root`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvForjPort},
			},
			&cli.StringFlag{
				Name:    "store-type",
				Value:   config.StoreTypeMemory.String(),
				Usage:   fmt.Sprintf("Storage backend: %s", config.GetSupportedStoreTypesString()),
				EnvVars: []string{config.EnvForjStoreType},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Value:   config.DefaultDataPath,
				Usage:   "Badger data directory",
				EnvVars: []string{config.EnvForjDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis server address (host:port)",
				EnvVars: []string{config.EnvForjRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvForjRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Value:   config.DefaultRedisDB,
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvForjRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every redis key",
				EnvVars: []string{config.EnvForjRedisPrefix},
			},
			&cli.StringFlag{
				Name:    "content-base-url",
				Value:   config.DefaultContentURL,
				Usage:   "Public URL prefix of pinned artifacts",
				EnvVars: []string{config.EnvForjContentURL},
			},
			&cli.StringFlag{
				Name:    "verify-base-url",
				Value:   config.DefaultVerifyURL,
				Usage:   "Public URL prefix of credential verification links",
				EnvVars: []string{config.EnvForjVerifyURL},
			},
			&cli.StringFlag{
				Name:    "hash-scheme",
				Value:   string(config.HashSchemeLegacy),
				Usage:   "Leaf and node hashing for new batches: legacy, domain-separated",
				EnvVars: []string{config.EnvForjHashScheme},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Value:   config.DefaultRateLimit,
				Usage:   "Accepted requests per second, 0 disables limiting",
				EnvVars: []string{config.EnvForjRateLimit},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Write logs to this file with rotation instead of stdout",
				EnvVars: []string{config.EnvForjLogFile},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvForjVerbose},
			},
		},
		Action: runForjServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func parseForjConfig(c *cli.Context) *config.ForjServerConfig {
	cfg := &config.ForjServerConfig{
		Port:           c.Int("port"),
		StoreType:      config.StoreType(c.String("store-type")),
		DataPath:       c.String("data-path"),
		ContentBaseURL: c.String("content-base-url"),
		VerifyBaseURL:  c.String("verify-base-url"),
		HashScheme:     config.HashSchemeName(c.String("hash-scheme")),
		RateLimit:      c.Float64("rate-limit"),
		LogFile:        c.String("log-file"),
		Debug:          c.Bool("verbose"),
		Verbose:        c.Bool("verbose"),
	}
	if cfg.StoreType == config.StoreTypeRedis {
		cfg.Redis = &config.RedisConfig{
			Address:   c.String("redis-address"),
			Password:  c.String("redis-password"),
			DB:        c.Int("redis-db"),
			KeyPrefix: c.String("redis-key-prefix"),
		}
	}
	return cfg
}

func openStore(cfg *config.ForjServerConfig, l *zap.Logger) (persistence.IForjPersistence, error) {
	switch cfg.StoreType {
	case config.StoreTypeBadger:
		return badger.NewBadgerPersistence(cfg.DataPath, l)
	case config.StoreTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
	default:
		l.Sugar().Warn("Using in-memory storage, batches are lost on restart")
		return memory.NewMemoryPersistence(), nil
	}
}

func runForjServer(c *cli.Context) error {
	forjConfig := parseForjConfig(c)
	if err := forjConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{
		Debug:      forjConfig.Debug,
		OutputPath: forjConfig.LogFile,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	scheme, err := merkle.SchemeByName(string(forjConfig.HashScheme))
	if err != nil {
		return err
	}

	store, err := openStore(forjConfig, l)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", forjConfig.StoreType, err)
	}
	defer func() { _ = store.Close() }()

	if err := store.HealthCheck(); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}

	lgr := ledger.NewLedger(store, l)
	issuer := issuance.NewIssuer(store, lgr, issuance.Config{
		ContentBaseURL: forjConfig.ContentBaseURL,
		Scheme:         scheme,
		Parallelism:    4,
	}, l)
	verifier := verification.NewVerifier(lgr, store, verification.Config{
		VerifyBaseURL: forjConfig.VerifyBaseURL,
	}, l)

	srv := server.NewServer(server.Config{
		Port:          forjConfig.Port,
		RateLimit:     forjConfig.RateLimit,
		MaxUploadSize: forjConfig.MaxUploadSize,
	}, issuer, verifier, lgr, store, l)

	if forjConfig.Verbose {
		l.Sugar().Infow("Forj Server Configuration",
			"port", forjConfig.Port,
			"store_type", forjConfig.StoreType,
			"hash_scheme", forjConfig.HashScheme,
			"content_base_url", forjConfig.ContentBaseURL,
			"verify_base_url", forjConfig.VerifyBaseURL,
			"rate_limit", forjConfig.RateLimit)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Forj Server running", "port", forjConfig.Port)
	l.Sugar().Infow("Available endpoints",
		"upload", "POST /api/upload",
		"claim", "POST /api/claim",
		"verify", "POST /api/verify",
		"content", "GET /content/<cid>")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Sugar().Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
