// Package mint converts collateral into YES+NO token inventory ahead of a
// SELL-leg order, executing the split through a Gnosis Safe smart-contract
// wallet.
package mint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nvh2205/poly-ab-sub001/internal/crypto"
	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

const jobStream = "mint:jobs"

// Job describes one pending split of collateral into token inventory.
type Job struct {
	AssetID      string    `json:"assetId"`
	GroupKey     string    `json:"groupKey"`
	ProxyAddress string    `json:"proxyAddress"`
	Size         float64   `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BalanceReader reads the proxy wallet's on-chain collateral balance.
type BalanceReader interface {
	CollateralBalance(ctx context.Context, proxyAddress string) (float64, error)
}

// ChainSubmitter broadcasts a transaction to the chain and returns its hash
// once accepted by the node; confirmation is out of this package's scope.
type ChainSubmitter interface {
	Submit(ctx context.Context, to common.Address, data []byte) (txHash string, err error)
}

// SafeSigner is the subset of *crypto.Signer the minter depends on.
type SafeSigner interface {
	SignSafeTx(tx crypto.SafeTx, safeAddress common.Address) (string, error)
}

// Config bundles the minter's contract addressing and retry policy.
type Config struct {
	SafeAddress              common.Address
	CTFAddress               common.Address
	NegRiskAdapterAddress    common.Address
	CollateralTokenAddress   common.Address
	LiquidityReserveMultiple float64       // default 6
	DedupWindow              time.Duration // default 30s
	RetryDelays              []time.Duration
	JobTimeout               time.Duration // default 120s
}

// DefaultConfig returns the spec's default retry/reserve policy with the
// given contract addresses filled in.
func DefaultConfig() Config {
	return Config{
		LiquidityReserveMultiple: 6,
		DedupWindow:              30 * time.Second,
		RetryDelays:              []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second},
		JobTimeout:               120 * time.Second,
	}
}

// Minter runs the durable mint job queue: Schedule enqueues jobs (with
// dedup), Run drains the queue and executes each job through a Safe.
type Minter struct {
	cfg       Config
	bus       domain.SignalBus
	locks     domain.LockManager
	markets   domain.MarketCache
	inventory domain.InventoryLedger
	balances  BalanceReader
	chain     ChainSubmitter
	signer    SafeSigner
	logger    *slog.Logger
}

// New constructs a Minter.
func New(cfg Config, bus domain.SignalBus, locks domain.LockManager, markets domain.MarketCache, inventory domain.InventoryLedger, balances BalanceReader, chain ChainSubmitter, signer SafeSigner, logger *slog.Logger) *Minter {
	return &Minter{
		cfg:       cfg,
		bus:       bus,
		locks:     locks,
		markets:   markets,
		inventory: inventory,
		balances:  balances,
		chain:     chain,
		signer:    signer,
		logger:    logger.With(slog.String("component", "minter")),
	}
}

// Schedule enqueues a mint job for assetID, sized to produce `size` YES+NO
// tokens. Deduplicated within cfg.DedupWindow: a job already scheduled for
// the same assetID within the window is silently dropped.
func (m *Minter) Schedule(ctx context.Context, groupKey, proxyAddress, assetID string, size float64) error {
	unlock, err := m.locks.Acquire(ctx, "mint:dedup:"+assetID, m.cfg.DedupWindow)
	if err != nil {
		if err == domain.ErrLockHeld {
			m.logger.Debug("mint: job deduplicated", slog.String("asset_id", assetID))
			return nil
		}
		return fmt.Errorf("mint: dedup lock: %w", err)
	}
	_ = unlock // intentionally not released: the TTL itself enforces the dedup window

	job := Job{
		AssetID:      assetID,
		GroupKey:     groupKey,
		ProxyAddress: proxyAddress,
		Size:         size,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("mint: marshal job: %w", err)
	}
	if err := m.bus.StreamAppend(ctx, jobStream, data); err != nil {
		return fmt.Errorf("mint: enqueue job: %w", err)
	}
	return nil
}

// Run drains the mint job stream until ctx is cancelled, processing jobs
// one at a time in arrival order.
func (m *Minter) Run(ctx context.Context) error {
	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messages, err := m.bus.StreamRead(ctx, jobStream, lastID, 10)
		if err != nil {
			m.logger.Warn("mint: stream read failed, backing off", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if len(messages) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		for _, msg := range messages {
			lastID = msg.ID
			var job Job
			if err := json.Unmarshal(msg.Payload, &job); err != nil {
				m.logger.Error("mint: malformed job payload dropped", slog.String("error", err.Error()))
				continue
			}
			m.process(ctx, job)
		}
	}
}

// process runs one job through the retry schedule until it succeeds or the
// job's total timeout elapses.
func (m *Minter) process(ctx context.Context, job Job) {
	deadline := job.CreatedAt.Add(m.cfg.JobTimeout)
	jobCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var lastErr error
	delays := m.cfg.RetryDelays
	for attempt := 0; attempt <= len(delays); attempt++ {
		if jobCtx.Err() != nil {
			lastErr = jobCtx.Err()
			break
		}
		if err := m.attempt(jobCtx, job); err != nil {
			lastErr = err
			m.logger.Warn("mint: attempt failed",
				slog.String("asset_id", job.AssetID), slog.Int("attempt", attempt), slog.String("error", err.Error()))
			if attempt == len(delays) {
				break
			}
			select {
			case <-jobCtx.Done():
				lastErr = jobCtx.Err()
			case <-time.After(delays[attempt]):
			}
			continue
		}
		return
	}

	m.logger.Error("mint: job dead-lettered after exhausting retries",
		slog.String("asset_id", job.AssetID), slog.String("error", fmt.Sprint(lastErr)))
	m.recordFailure(context.Background(), job, lastErr)
}

// attempt executes one end-to-end mint: liquidity check, market resolution,
// calldata construction, Safe signing, and on-chain submission.
func (m *Minter) attempt(ctx context.Context, job Job) error {
	balance, err := m.balances.CollateralBalance(ctx, job.ProxyAddress)
	if err != nil {
		return fmt.Errorf("%w: read collateral balance: %v", domain.ErrMintFailure, err)
	}
	if balance < job.Size*m.cfg.LiquidityReserveMultiple {
		return fmt.Errorf("%w: collateral balance %.4f below reserve requirement (size %.4f x %.0f)",
			domain.ErrMintFailure, balance, job.Size, m.cfg.LiquidityReserveMultiple)
	}

	market, err := m.markets.GetByToken(ctx, job.AssetID)
	if err != nil {
		return fmt.Errorf("%w: resolve market: %v", domain.ErrMintFailure, err)
	}

	conditionID, err := conditionIDBytes32(market.ConditionID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMintFailure, err)
	}

	amountWei := toWei(job.Size)

	var splitTarget common.Address
	var splitData []byte
	if market.NegRisk {
		splitTarget = m.cfg.NegRiskAdapterAddress
		splitData, err = packNegRiskSplitPosition(conditionID, amountWei)
	} else {
		splitTarget = m.cfg.CTFAddress
		splitData, err = packSplitPosition(m.cfg.CollateralTokenAddress, conditionID, amountWei)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMintFailure, err)
	}

	safeTx := crypto.SafeTx{
		To:        splitTarget,
		Value:     big.NewInt(0),
		Data:      splitData,
		Operation: 0,
	}
	signature, err := m.signer.SignSafeTx(safeTx, m.cfg.SafeAddress)
	if err != nil {
		return fmt.Errorf("%w: sign SafeTx: %v", domain.ErrMintFailure, err)
	}

	sigBytes := common.FromHex(signature)
	execData, err := packExecTransaction(splitTarget, splitData, sigBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMintFailure, err)
	}

	txHash, err := m.chain.Submit(ctx, m.cfg.SafeAddress, execData)
	if err != nil {
		return fmt.Errorf("%w: broadcast: %v", domain.ErrMintFailure, err)
	}

	event := domain.MintEvent{
		Type:      domain.MintEventMinted,
		TokenID:   job.AssetID,
		Amount:    job.Size,
		TxHash:    txHash,
		Timestamp: time.Now().UTC(),
	}
	if err := m.inventory.Credit(ctx, job.GroupKey, job.ProxyAddress, market.YesTokenID(), job.Size, event); err != nil {
		return fmt.Errorf("%w: credit YES inventory: %v", domain.ErrMintFailure, err)
	}
	if err := m.inventory.Credit(ctx, job.GroupKey, job.ProxyAddress, market.NoTokenID(), job.Size, event); err != nil {
		return fmt.Errorf("%w: credit NO inventory: %v", domain.ErrMintFailure, err)
	}

	m.logger.Info("mint: split executed",
		slog.String("asset_id", job.AssetID), slog.Float64("size", job.Size), slog.String("tx_hash", txHash))
	return nil
}

func (m *Minter) recordFailure(ctx context.Context, job Job, cause error) {
	event := domain.MintEvent{
		Type:      domain.MintEventFailed,
		TokenID:   job.AssetID,
		Amount:    0,
		Timestamp: time.Now().UTC(),
	}
	if cause != nil {
		event.TxHash = cause.Error()
	}
	_ = m.inventory.Credit(ctx, job.GroupKey, job.ProxyAddress, job.AssetID, 0, event)
}

// toWei scales a display-precision collateral/share amount (up to 6
// decimals) into the 18-decimal integer representation on-chain contracts
// expect.
func toWei(amount float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e18))
	out, _ := scaled.Int(nil)
	return out
}
