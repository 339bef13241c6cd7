package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/walletlink/internal/allowance"
	"github.com/alanyoungcy/walletlink/internal/backend"
	s3blob "github.com/alanyoungcy/walletlink/internal/blob/s3"
	"github.com/alanyoungcy/walletlink/internal/cache/redis"
	"github.com/alanyoungcy/walletlink/internal/chain"
	"github.com/alanyoungcy/walletlink/internal/config"
	"github.com/alanyoungcy/walletlink/internal/crypto"
	"github.com/alanyoungcy/walletlink/internal/domain"
	"github.com/alanyoungcy/walletlink/internal/escrow"
	"github.com/alanyoungcy/walletlink/internal/linker"
	"github.com/alanyoungcy/walletlink/internal/notify"
	"github.com/alanyoungcy/walletlink/internal/order"
	"github.com/alanyoungcy/walletlink/internal/platform/polymarket"
	"github.com/alanyoungcy/walletlink/internal/server/handler"
	"github.com/alanyoungcy/walletlink/internal/service"
	"github.com/alanyoungcy/walletlink/internal/signer"
	"github.com/alanyoungcy/walletlink/internal/store/memory"
	"github.com/alanyoungcy/walletlink/internal/store/pebble"
	"github.com/alanyoungcy/walletlink/internal/store/postgres"
	"github.com/alanyoungcy/walletlink/internal/store/tiered"
)

// Dependencies bundles everything the operating modes need. It is built by
// Wire and torn down by the cleanup function Wire returns.
type Dependencies struct {
	Contracts polymarket.Contracts
	Local     *signer.PrivateKeySigner

	// Stores
	Credentials domain.CredentialStore
	Audit       domain.AuditStore

	// Coordination
	Locks   domain.LockManager
	Limiter domain.RateLimiter
	Bus     domain.SignalBus

	Archiver service.Archiver
	Notifier *notify.Notifier

	// Services. Trades and Claims are nil without an execution backend.
	Links  *service.LinkService
	Trades *service.TradeService
	Claims *service.ClaimService

	// HealthChecks cover every external system that was wired.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from cfg and returns
// them together with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.HealthCheck)}

	contracts, err := polymarket.ContractsFor(cfg.Polymarket.ChainID)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Contracts = contracts

	// --- Local signing key ---
	if cfg.Wallet.HasKey() {
		local, err := signer.FromKeyConfig(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: signer: %w", err))
		}
		deps.Local = local
	}

	var sealer *crypto.Sealer
	if cfg.Store.SecretKey != "" {
		sealer, err = crypto.NewSealer(cfg.Store.SecretKey)
		if err != nil {
			return fail(fmt.Errorf("wire: sealer: %w", err))
		}
	}

	// --- Redis (optional) ---
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.HealthChecks["redis"] = redisClient.Ping

		deps.Locks = redis.NewLockManager(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
	} else {
		logger.InfoContext(ctx, "redis not configured, using in-process locks, limits and progress bus")
		deps.Locks = memory.NewLockManager()
		deps.Limiter = memory.NewRateLimiter()
		deps.Bus = memory.NewSignalBus()
	}

	// --- Credential and audit stores ---
	switch cfg.Store.Backend {
	case config.StorePostgres:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		deps.HealthChecks["postgres"] = pgClient.Pool().Ping

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		var creds domain.CredentialStore = postgres.NewCredentialStore(pgClient.Pool(), sealer)
		if redisClient != nil && cfg.Store.CacheTTL.Duration > 0 {
			cache := redis.NewCredentialStore(redisClient, sealer, cfg.Store.CacheTTL.Duration)
			creds = tiered.NewCredentialStore(cache, creds, logger)
		}
		deps.Credentials = creds
		deps.Audit = postgres.NewAuditStore(pgClient.Pool())

	case config.StoreRedis:
		if redisClient == nil {
			return fail(fmt.Errorf("wire: %w: store backend redis needs redis.addr", domain.ErrConfiguration))
		}
		deps.Credentials = redis.NewCredentialStore(redisClient, sealer, 0)
		deps.Audit = memory.NewAuditStore()

	case config.StorePebble:
		db, err := pebble.Open(cfg.Store.PebblePath)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Credentials = pebble.NewCredentialStore(db, sealer)
		deps.Audit = pebble.NewAuditStore(db)

	default:
		logger.WarnContext(ctx, "using in-memory credential store; linked accounts are lost on restart")
		deps.Credentials = memory.NewCredentialStore()
		deps.Audit = memory.NewAuditStore()
	}

	// --- S3 archive (optional) ---
	if cfg.S3.Bucket != "" {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.HealthChecks["s3"] = s3Client.Health
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Chain ---
	rpc, err := chain.Dial(ctx, cfg.Polymarket.RPCURL)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	closers = append(closers, rpc.Close)
	deps.HealthChecks["rpc"] = func(ctx context.Context) error {
		_, err := rpc.BlockNumber(ctx)
		return err
	}

	if err := wireServices(cfg, deps, rpc, logger); err != nil {
		return fail(err)
	}
	return deps, cleanup, nil
}

// wireServices builds the exchange clients, the linker and the services on
// top of the stores already present in deps.
func wireServices(cfg *config.Config, deps *Dependencies, rpc *ethclient.Client, logger *slog.Logger) error {
	var builder *crypto.HMACAuth
	if cfg.Builder.Enabled() {
		builder = &crypto.HMACAuth{
			Key:        cfg.Builder.ApiKey,
			Secret:     cfg.Builder.ApiSecret,
			Passphrase: cfg.Builder.ApiPassphrase,
		}
	}
	relayer := polymarket.NewRelayerClient(polymarket.RelayerConfig{
		BaseURL:      cfg.Polymarket.RelayerHost,
		Builder:      builder,
		PollInterval: cfg.Link.PollInterval.Duration,
	}, deps.Contracts)
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, cfg.Polymarket.ChainID, cfg.Polymarket.AuthNonce, 0)

	allowances, err := allowance.NewManager(rpc, logger)
	if err != nil {
		return fmt.Errorf("wire: allowance manager: %w", err)
	}
	l, err := linker.New(linker.Config{
		Contracts:     deps.Contracts,
		Issuer:        clob,
		Allowances:    allowances,
		SmartAccounts: relayer,
		SafeExecutor: func(s signer.Signer) allowance.Executor {
			return polymarket.NewSafeExecutor(relayer, s)
		},
		Store:  deps.Credentials,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("wire: linker: %w", err)
	}

	var custody *signer.CustodyConfig
	if cfg.Custody.Enabled() {
		custody = &signer.CustodyConfig{
			BaseURL:   cfg.Custody.BaseURL,
			AppID:     cfg.Custody.AppID,
			AppSecret: cfg.Custody.AppSecret,
			Timeout:   cfg.Custody.Timeout.Duration,
		}
	}
	wallets := service.NewWalletPool(service.WalletPoolConfig{
		Local:        deps.Local,
		Custody:      custody,
		Chain:        rpc,
		ChainID:      cfg.Polymarket.ChainID,
		PollInterval: cfg.Link.PollInterval.Duration,
		Logger:       logger,
	})

	svcDeps := service.Deps{
		Audit:    deps.Audit,
		Archiver: deps.Archiver,
		Notifier: deps.Notifier,
		Bus:      deps.Bus,
		Logger:   logger,
	}

	deps.Links = service.NewLinkService(l, wallets, deps.Credentials, deps.Locks, service.LinkDefaults{
		AllowDeploy: cfg.Link.AllowDeploy,
		AutoApprove: cfg.Link.AutoApprove,
		SponsorGas:  cfg.Link.SponsorGas,
		LockTTL:     cfg.Link.LockTTL.Duration,
	}, svcDeps)

	if cfg.Backend.BaseURL == "" {
		logger.Info("execution backend not configured, order and claim flows disabled")
		return nil
	}
	be, err := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout.Duration,
	}, logger)
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}

	var authorizer *escrow.Authorizer
	if cfg.Escrow.Contract != "" {
		authorizer, err = escrow.NewAuthorizer(cfg.Polymarket.ChainID, common.HexToAddress(cfg.Escrow.Contract), cfg.Escrow.DeadlineTTL.Duration)
		if err != nil {
			return fmt.Errorf("wire: %w", err)
		}
	} else if cfg.Escrow.FeeBps > 0 || cfg.Escrow.PerformanceBps > 0 {
		logger.Warn("escrow.contract is empty, fee authorizations are disabled")
	}

	deps.Trades = service.NewTradeService(
		order.NewBuilder(deps.Contracts),
		be,
		deps.Credentials,
		wallets,
		deps.Limiter,
		authorizer,
		service.TradeConfig{
			Fees: escrow.FeeSchedule{
				FeeBps:           cfg.Escrow.FeeBps,
				ReferrerShareBps: cfg.Escrow.ReferrerShareBps,
			},
			OrdersPerWindow: cfg.Backend.OrdersPerMinute,
			Window:          time.Minute,
		},
		svcDeps,
	)
	deps.Claims = service.NewClaimService(be, deps.Credentials, wallets, deps.Contracts, authorizer, cfg.Escrow.PerformanceBps, svcDeps)
	return nil
}
