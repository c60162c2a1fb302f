// Package engine wires the full arbitrage pipeline into one static,
// always-the-same-shape object: structure index, trio detector, cash
// ledger, executor, mint worker, and position reconciliation manager. It
// replaces per-mode dynamic dependency selection with one fixed graph,
// since every engine component is always needed together.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/common"
	s3blob "github.com/nvh2205/poly-ab-sub001/internal/blob/s3"
	"github.com/nvh2205/poly-ab-sub001/internal/cache/redis"
	"github.com/nvh2205/poly-ab-sub001/internal/config"
	"github.com/nvh2205/poly-ab-sub001/internal/crypto"
	"github.com/nvh2205/poly-ab-sub001/internal/domain"
	"github.com/nvh2205/poly-ab-sub001/internal/exec"
	"github.com/nvh2205/poly-ab-sub001/internal/feed"
	"github.com/nvh2205/poly-ab-sub001/internal/ledger"
	"github.com/nvh2205/poly-ab-sub001/internal/mint"
	"github.com/nvh2205/poly-ab-sub001/internal/platform/chain"
	"github.com/nvh2205/poly-ab-sub001/internal/platform/polymarket"
	"github.com/nvh2205/poly-ab-sub001/internal/reconcile"
	"github.com/nvh2205/poly-ab-sub001/internal/sizer"
	"github.com/nvh2205/poly-ab-sub001/internal/store/postgres"
	"github.com/nvh2205/poly-ab-sub001/internal/trio"
)

// Engine is the root object for both the detector/executor process and the
// background worker process: cmd/engine runs Run in full, cmd/worker runs
// only RunWorkers.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	marketStore domain.MarketStore
	execStore   domain.ArbExecutionStore
	auditStore  domain.AuditStore
	archiver    domain.Archiver
	bus         domain.SignalBus

	index   *trio.Index
	detector *trio.Engine
	feeder   *feed.TrioFeeder

	cash      *ledger.CashLedger
	inventory domain.InventoryLedger
	executor  *exec.Executor
	clob      *polymarket.ClobClient
	minter    *mint.Minter
	recon     *reconcile.Manager

	closers []func()
}

// New performs the full static wire: Postgres market store, Redis caches
// and locks/streams, the EIP-712 signer, the CLOB client, the chain RPC
// client, and every domain component built on top of them. The returned
// Engine's Close tears everything down in reverse order.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	var closers []func()
	fail := func(err error) (*Engine, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

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
		return fail(fmt.Errorf("engine: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)
	marketStore := postgres.NewMarketStore(pgClient.Pool())
	execStore := postgres.NewArbExecutionStore(pgClient.Pool())
	auditStore := postgres.NewAuditStore(pgClient.Pool())

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
		return fail(fmt.Errorf("engine: s3: %w", err))
	}
	closers = append(closers, func() { _ = s3Client.Close() })
	archiver := s3blob.NewArchiver(s3blob.NewWriter(s3Client), execStore, auditStore)

	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail(fmt.Errorf("engine: redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	marketCache := redis.NewMarketCache(redisClient)
	locks := redis.NewLockManager(redisClient)
	bus := redis.NewSignalBus(redisClient)
	inventory := redis.NewInventoryLedger(redisClient)

	signer, err := crypto.NewSigner(cfg.Wallet.PrivateKey, cfg.Polymarket.ChainID)
	if err != nil {
		return fail(fmt.Errorf("engine: signer: %w", err))
	}
	hmacAuth := &crypto.HMACAuth{
		Key:        cfg.Builder.ApiKey,
		Secret:     cfg.Builder.ApiSecret,
		Passphrase: cfg.Builder.ApiPassphrase,
	}
	clobClient := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, hmacAuth)

	chainClient, err := chain.New(ctx, chain.Config{
		RPCURL:          cfg.Polymarket.RPCURL,
		ChainID:         int64(cfg.Polymarket.ChainID),
		CollateralToken: common.HexToAddress(cfg.Polymarket.CollateralTokenAddress),
	}, signer)
	if err != nil {
		return fail(fmt.Errorf("engine: chain rpc: %w", err))
	}
	closers = append(closers, chainClient.Close)

	markets, err := marketStore.ListActive(ctx, domain.ListOpts{Limit: 10000})
	if err != nil {
		return fail(fmt.Errorf("engine: load markets: %w", err))
	}
	groups := trio.BuildGroups(markets)
	index := trio.NewIndex(groups)

	detector := trio.NewEngine(index, trio.Thresholds{
		MinProfitAbs:   cfg.Engine.MinProfitAbs,
		MinProfitBps:   cfg.Engine.MinProfitBps,
		CooldownMs:     cfg.Engine.CooldownMs,
		StalenessMs:    cfg.Engine.StalenessMs,
		SellArbEnabled: cfg.Engine.SellArbEnabled,
	})

	cash := ledger.NewCashLedger(0)

	execCfg := exec.Config{
		ProxyAddress:           cfg.Wallet.SafeAddress,
		ExchangeAddress:        common.HexToAddress(cfg.Polymarket.ExchangeAddress),
		NegRiskExchangeAddress: common.HexToAddress(cfg.Polymarket.NegRiskExchangeAddress),
		APIKey:                 cfg.Builder.ApiKey,
		OpportunityTimeoutMs:   cfg.Engine.OpportunityTimeoutMs,
		DispatchTimeout:        time.Duration(cfg.Engine.DispatchTimeoutSec) * time.Second,
	}
	executor := exec.New(execCfg, cash, inventory, signer, clobClient, logger)
	executor.SetExecutionStore(execStore)

	mintCfg := mint.DefaultConfig()
	mintCfg.SafeAddress = common.HexToAddress(cfg.Wallet.SafeAddress)
	mintCfg.CTFAddress = common.HexToAddress(cfg.Polymarket.CTFAddress)
	mintCfg.NegRiskAdapterAddress = common.HexToAddress(cfg.Polymarket.NegRiskAdapterAddress)
	mintCfg.CollateralTokenAddress = common.HexToAddress(cfg.Polymarket.CollateralTokenAddress)
	mintCfg.LiquidityReserveMultiple = cfg.Engine.LiquidityReserveMultiple
	mintCfg.DedupWindow = time.Duration(cfg.Engine.MintDedupWindowSec) * time.Second
	mintCfg.JobTimeout = time.Duration(cfg.Engine.MintTimeoutSec) * time.Second
	minter := mint.New(mintCfg, bus, locks, marketCache, inventory, chainClient, chainClient, signer, logger)

	recon := reconcile.New(clobClient, executor, clobClient, locks, logger)
	executor.OnDispatched = func(groupKey string, orders []exec.DispatchedOrder) {
		batch := make([]reconcile.SubmittedOrder, len(orders))
		for i, o := range orders {
			batch[i] = reconcile.SubmittedOrder{OrderID: o.OrderID, Leg: o.Leg, Size: o.Size}
		}
		go recon.ScheduleBatch(context.Background(), batch)
	}

	e := &Engine{
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "engine")),
		marketStore: marketStore,
		execStore:   execStore,
		auditStore:  auditStore,
		archiver:    archiver,
		bus:         bus,
		index:       index,
		detector:    detector,
		cash:        cash,
		inventory:   inventory,
		executor:    executor,
		clob:        clobClient,
		minter:      minter,
		recon:       recon,
		closers:     closers,
	}
	e.feeder = feed.NewTrioFeeder(bus, detector, e.handleOpportunity, logger)
	return e, nil
}

// handleOpportunity sizes and submits a detected opportunity, then schedules
// position reconciliation a few seconds out.
func (e *Engine) handleOpportunity(ctx context.Context, opp domain.Opportunity) {
	nowMs := time.Now().UnixMilli()
	size := sizer.Size(opp.Legs, e.cash.Balance(), e.inventorySizer(ctx, opp.GroupKey), e.cfg.Engine.DefaultSize)
	if size < 1 {
		return
	}
	accepted := e.executor.Submit(ctx, opp, size, nowMs)
	e.logOpportunity(ctx, opp, size, accepted)
}

// logOpportunity records every detected opportunity in the audit log,
// accepted or not, so the detector's hit rate can be reconstructed after
// the fact without replaying the book feed.
func (e *Engine) logOpportunity(ctx context.Context, opp domain.Opportunity, size float64, accepted bool) {
	if e.auditStore == nil {
		return
	}
	if err := e.auditStore.Log(ctx, "opportunity.detected", map[string]any{
		"group_key":  opp.GroupKey,
		"strategy":   string(opp.Strategy),
		"profit_bps": opp.ProfitBps,
		"profit_abs": opp.ProfitAbs,
		"size":       size,
		"accepted":   accepted,
	}); err != nil {
		e.logger.Warn("audit log failed", slog.String("group", opp.GroupKey), slog.String("error", err.Error()))
	}
}

func (e *Engine) inventorySizer(ctx context.Context, groupKey string) sizer.Inventory {
	return func(tokenID string) float64 {
		bal, err := e.inventory.Available(ctx, groupKey, e.cfg.Wallet.SafeAddress, tokenID)
		if err != nil {
			return 0
		}
		return bal
	}
}

// Run starts the detector feed, mint worker, the archival loop, and
// everything the full engine process needs, blocking until ctx is
// cancelled or any component returns a fatal error.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.feeder.Run(ctx) })
	g.Go(func() error { return e.minter.Run(ctx) })
	g.Go(func() error { e.runArchiveLoop(ctx); return nil })

	return g.Wait()
}

// runArchiveLoop wakes up once a day and moves every settled ArbExecution
// older than the configured retention window out of Postgres and into cold
// storage. A daily tick is coarse enough that a precise cron schedule isn't
// worth a dependency; cfg.Archive.Cron is carried for operator documentation
// of the intended cadence rather than parsed here.
func (e *Engine) runArchiveLoop(ctx context.Context) {
	if e.archiver == nil || e.cfg.Archive.RetentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := time.Now().AddDate(0, 0, -e.cfg.Archive.RetentionDays)
			n, err := e.archiver.ArchiveArbHistory(ctx, before)
			if err != nil {
				e.logger.Warn("archive: arb history archival failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				e.logger.Info("archive: arb history archived", slog.Int64("count", n))
			}
		}
	}
}

// RunWorkers starts only the background workers (mint + reconciliation
// dependencies) with no detector feed or HTTP surface, for the
// worker-only process.
func (e *Engine) RunWorkers(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return e.minter.Run(ctx) })
	return g.Wait()
}

// Close tears down every resource Wire acquired, in reverse order.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}
