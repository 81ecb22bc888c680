package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	s3blob "github.com/alanyoungcy/polyarb/internal/blob/s3"
	"github.com/alanyoungcy/polyarb/internal/cache/redis"
	"github.com/alanyoungcy/polyarb/internal/chain"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/financing"
	"github.com/alanyoungcy/polyarb/internal/notify"
	"github.com/alanyoungcy/polyarb/internal/oracle"
	"github.com/alanyoungcy/polyarb/internal/service"
	"github.com/alanyoungcy/polyarb/internal/store/postgres"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Chain    *chain.Manager
	Registry *arbitrage.Registry
	Oracle   *oracle.Adapter
	Premium  arbitrage.PremiumSource
	Status   *service.StatusTracker
	Notify   *notify.Queue

	// Optional infrastructure; nil when disabled.
	QuoteCache    domain.QuoteCache
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus
	RateLimiter   domain.RateLimiter
	DispatchStore domain.DispatchStore
	AuditStore    domain.AuditStore
	Archiver      domain.ReportArchiver
}

// Wire constructs every dependency from cfg and returns them together with a
// cleanup function that releases resources in reverse order of creation. The
// chain manager is created first and therefore closed last.
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

	deps := &Dependencies{}

	// --- Chain ---
	endpoints := make([]domain.Endpoint, len(cfg.Chain.RPCURLs))
	for i, u := range cfg.Chain.RPCURLs {
		endpoints[i] = domain.Endpoint{URL: u, Priority: i}
	}
	mgr, err := chain.NewManager(chain.Config{
		Endpoints:     endpoints,
		ChainID:       cfg.Chain.ChainID,
		DialTimeout:   cfg.Chain.DialTimeout.Duration,
		CallTimeout:   cfg.Chain.CallTimeout.Duration,
		FailoverDelay: cfg.Chain.FailoverDelay.Duration,
		RatePerSec:    cfg.Chain.RPCRatePerSec,
	}, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: chain: %w", err))
	}
	closers = append(closers, mgr.Close)
	deps.Chain = mgr

	// --- Registry ---
	reg, err := buildRegistry(cfg)
	if err != nil {
		return fail(fmt.Errorf("wire: registry: %w", err))
	}
	deps.Registry = reg

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		if err := pgClient.VerifySchema(ctx); err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		deps.DispatchStore = pgClient.DispatchStore()
		deps.AuditStore = pgClient.AuditStore()
	}

	// --- S3 ---
	if cfg.S3.Enabled {
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
		if err := s3Client.CheckBucket(ctx); err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		deps.Archiver = s3blob.NewReportArchiver(s3Client, deps.AuditStore)
	}

	// --- Pricing and financing ---
	adapter, err := oracle.NewAdapter(mgr, deps.QuoteCache, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: oracle: %w", err))
	}
	deps.Oracle = adapter

	defaultRate := decimal.NewFromFloat(cfg.Financing.DefaultPremiumRate)
	if cfg.Financing.Enabled {
		pool, err := financing.NewPool(financing.PoolConfig{
			Address:     common.HexToAddress(cfg.Financing.PoolAddress),
			DefaultRate: defaultRate,
			CacheTTL:    cfg.Financing.PremiumCacheTTL.Duration,
		}, mgr, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: financing pool: %w", err))
		}
		deps.Premium = pool
	} else {
		deps.Premium = arbitrage.StaticPremium{Rate: defaultRate}
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
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Notify = notify.NewQueue(notifier, cfg.Notify.QueueSize, logger)

	// --- Status ---
	deps.Status = service.NewStatusTracker(service.StatusConfig{
		Mode:         cfg.Mode,
		VenueCount:   len(reg.Venues()),
		TokenCount:   len(reg.Tokens()),
		MinProfit:    decimal.NewFromFloat(cfg.Profit.MinProfit),
		MaxFlashLoan: decimal.NewFromFloat(cfg.Financing.MaxFlashLoan),
		Accelerated:  cfg.Scan.Accelerated,
	})
	deps.Status.SetConnectionSource(mgr.State)
	deps.Status.SetDropCounter(deps.Notify.Dropped)

	queue := deps.Notify
	mgr.OnSwitch(func(from, to domain.EndpointStatus) {
		title, body := notify.EndpointSwitchMessage(from, to, time.Now())
		queue.Enqueue(notify.EventEndpointSwitch, title, body)
	})

	return deps, cleanup, nil
}

// buildRegistry registers the configured tokens and venues in order.
func buildRegistry(cfg *config.Config) (*arbitrage.Registry, error) {
	reg := arbitrage.NewRegistry()
	for _, t := range cfg.Tokens {
		if err := reg.RegisterToken(domain.TokenAsset{
			Symbol:   t.Symbol,
			Address:  common.HexToAddress(t.Address),
			Decimals: t.Decimals,
		}); err != nil {
			return nil, err
		}
	}
	for _, v := range cfg.Venues {
		if err := reg.RegisterVenue(domain.ExchangeVenue{
			Name:   v.Name,
			Router: common.HexToAddress(v.Router),
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
