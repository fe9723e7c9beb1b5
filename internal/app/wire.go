package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/polydesk/internal/blob/s3"
	"github.com/alanyoungcy/polydesk/internal/cache/memory"
	"github.com/alanyoungcy/polydesk/internal/cache/redis"
	"github.com/alanyoungcy/polydesk/internal/chain"
	"github.com/alanyoungcy/polydesk/internal/config"
	"github.com/alanyoungcy/polydesk/internal/crypto"
	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/notify"
	"github.com/alanyoungcy/polydesk/internal/platform/backend"
	"github.com/alanyoungcy/polydesk/internal/server/handler"
	"github.com/alanyoungcy/polydesk/internal/service"
	"github.com/alanyoungcy/polydesk/internal/store/postgres"
	"github.com/alanyoungcy/polydesk/internal/store/sqlite"
	"github.com/alanyoungcy/polydesk/internal/uistate"
)

// Dependencies bundles every service and adapter the commands use. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	API *backend.Client

	// Caches and messaging
	Cache       domain.QueryCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Stores
	AuditStore domain.AuditStore
	PrefsStore domain.PrefsStore

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	Notifier *notify.Notifier
	Wallet   *crypto.Wallet

	// Services
	Gas      *service.GasEstimator
	Funds    *service.FundsGate
	Orders   *service.OrderService
	Markets  *service.MarketService
	Tracker  *service.Tracker
	Exporter *service.Exporter
	State    *uistate.Store
	View     *service.ViewLoader

	// Checks are the dependency probes reported by /api/health.
	Checks map[string]handler.Check
}

// needsJournal returns true for commands that write the submission journal.
func needsJournal(command string) bool {
	switch command {
	case "serve", "submit", "cancel", "approve":
		return true
	default:
		return false
	}
}

// needsS3 returns true for commands that use object storage.
func needsS3(command string) bool {
	switch command {
	case "export":
		return true
	default:
		return false
	}
}

// Wire constructs the dependencies command needs from cfg and returns them
// together with a cleanup function that should be called on shutdown to
// release resources.
func Wire(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Backend API ---
	deps.API = backend.NewClient(cfg.API.BaseURL,
		backend.WithTimeout(cfg.API.Timeout.Duration),
		backend.WithRateLimit(cfg.API.RatePerSec, cfg.API.Burst),
		backend.WithReadRetries(cfg.API.ReadRetries),
		backend.WithLogger(logger),
	)
	deps.Checks["backend"] = func(ctx context.Context) error {
		_, err := deps.API.USDCInfo(ctx)
		return err
	}

	// --- Redis, or in-process fallbacks ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  "polydesk:",
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewQueryCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		deps.Cache = memory.NewQueryCache()
		deps.RateLimiter = memory.NewRateLimiter()
		deps.SignalBus = memory.NewSignalBus()
	}

	// --- PostgreSQL submission journal ---
	if cfg.Postgres.Enabled && needsJournal(command) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Pool().Ping
	}

	// --- Local preferences ---
	prefs, err := sqlite.Open(cfg.Prefs.Path)
	if err != nil {
		return fail("prefs", err)
	}
	closers = append(closers, func() { _ = prefs.Close() })
	deps.PrefsStore = prefs

	// --- S3 order exports ---
	if cfg.S3.Enabled && (needsS3(command) || command == "serve") {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Wallet ---
	wallet, err := crypto.LoadWallet(crypto.KeySource{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	switch {
	case errors.Is(err, crypto.ErrNoKeySource):
		logger.InfoContext(ctx, "wire: no wallet configured, signing and approvals disabled")
	case err != nil:
		return fail("wallet", err)
	default:
		deps.Wallet = wallet
	}

	// --- Chain: direct token reads and approvals ---
	var (
		reader   service.FundsReader = deps.API
		approver service.Approver
	)
	if cfg.Chain.FundsSource == "chain" || deps.Wallet != nil {
		eth, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fail("chain rpc", err)
		}
		closers = append(closers, eth.Close)

		token := chain.NewERC20(eth, common.HexToAddress(cfg.Chain.USDCAddress), cfg.Chain.ChainID,
			chain.WithApprovalGasLimit(uint64(cfg.Chain.ApprovalGasLimit)),
			chain.WithReadRetries(cfg.API.ReadRetries, 0),
			chain.WithLogger(logger),
		)
		if cfg.Chain.FundsSource == "chain" {
			reader = newChainFunds(token, deps.API)
		}
		if deps.Wallet != nil {
			approver = chain.NewWalletApprover(token, deps.Wallet)
		}
	}

	// --- Services ---
	deps.Gas = service.NewGasEstimator(deps.API, cfg.Funds.GasRefresh.Duration,
		decimal.NewFromFloat(cfg.Funds.GasFallbackUSD), logger)

	deps.Funds = service.NewFundsGate(reader, deps.API, approver, deps.Gas,
		deps.Cache, deps.SignalBus, deps.AuditStore,
		service.FundsGateConfig{
			BufferRate:       decimal.NewFromFloat(cfg.Funds.BufferRate),
			ApprovalHeadroom: decimal.NewFromFloat(cfg.Funds.ApprovalHeadroom),
			SettleDelay:      cfg.Funds.SettleDelay.Duration,
			CacheTTL:         cfg.API.CacheTTL.Duration,
		},
		logger,
	)
	if deps.LockManager != nil {
		deps.Funds.WithLocker(deps.LockManager)
	}

	deps.Orders = service.NewOrderService(deps.API, deps.Funds,
		deps.Cache, deps.SignalBus, deps.AuditStore,
		service.OrderServiceConfig{
			SubmitRetries: cfg.API.SubmitRetries,
			CacheTTL:      cfg.API.CacheTTL.Duration,
		},
		logger,
	)
	if deps.Wallet != nil {
		deps.Orders.WithSigner(deps.Wallet)
	}

	deps.Markets = service.NewMarketService(deps.API, deps.Cache, cfg.API.CacheTTL.Duration, logger)

	deps.Tracker = service.NewTracker(deps.API, deps.Cache, deps.SignalBus, deps.Notifier,
		cfg.Tracker.Interval.Duration, cfg.Tracker.MaxPages, logger)

	deps.Exporter = service.NewExporter(deps.API, deps.BlobWriter, cfg.S3.Prefix, logger).
		WithReader(deps.BlobReader)

	deps.State = uistate.NewStore(ctx, deps.PrefsStore, logger)
	deps.View = service.NewViewLoader(deps.State, deps.Markets, deps.Orders, deps.SignalBus, logger)

	return deps, cleanup, nil
}
