package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

const historyCap = 200

// debitLua atomically checks and decrements a balance hash field, refusing
// the decrement if it would go negative. Returns 1 on success, 0 if the
// balance was insufficient.
const debitLua = `
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local amt = tonumber(ARGV[2])
if cur < amt then
    return 0
end
redis.call('HSET', KEYS[1], ARGV[1], tostring(cur - amt))
return 1
`

// InventoryLedger implements domain.InventoryLedger using a Redis hash per
// (groupKey, proxyAddress) keyed by token ID, plus a capped list holding the
// JSON-encoded audit trail.
//
// Key schema:
//
//	mint:inventory:{groupKey}:{proxyAddress}  - hash tokenID -> balance string
//	mint:history:{groupKey}:{proxyAddress}    - list of JSON MintEvent, newest first
type InventoryLedger struct {
	rdb      *redis.Client
	debitSc  *redis.Script
}

// NewInventoryLedger creates an InventoryLedger backed by the given Client.
func NewInventoryLedger(c *Client) *InventoryLedger {
	return &InventoryLedger{
		rdb:     c.Underlying(),
		debitSc: redis.NewScript(debitLua),
	}
}

func inventoryKey(groupKey, proxyAddress string) string {
	return fmt.Sprintf("mint:inventory:%s:%s", groupKey, proxyAddress)
}

func historyKey(groupKey, proxyAddress string) string {
	return fmt.Sprintf("mint:history:%s:%s", groupKey, proxyAddress)
}

// Available returns the currently available balance of tokenID.
func (l *InventoryLedger) Available(ctx context.Context, groupKey, proxyAddress, tokenID string) (float64, error) {
	v, err := l.rdb.HGet(ctx, inventoryKey(groupKey, proxyAddress), tokenID).Float64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: available %s/%s/%s: %w", groupKey, proxyAddress, tokenID, err)
	}
	return v, nil
}

// Credit increases the available balance and appends a mint event to the
// audit log.
func (l *InventoryLedger) Credit(ctx context.Context, groupKey, proxyAddress, tokenID string, amount float64, event domain.MintEvent) error {
	pipe := l.rdb.TxPipeline()
	pipe.HIncrByFloat(ctx, inventoryKey(groupKey, proxyAddress), tokenID, amount)
	if data, err := json.Marshal(event); err == nil {
		hk := historyKey(groupKey, proxyAddress)
		pipe.LPush(ctx, hk, data)
		pipe.LTrim(ctx, hk, 0, historyCap-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: credit %s/%s/%s: %w", groupKey, proxyAddress, tokenID, err)
	}
	return nil
}

// Debit atomically decrements the available balance by amount. Returns
// domain.ErrInsufficientInventory if the balance is below amount.
func (l *InventoryLedger) Debit(ctx context.Context, groupKey, proxyAddress, tokenID string, amount float64) error {
	res, err := l.debitSc.Run(ctx, l.rdb, []string{inventoryKey(groupKey, proxyAddress)}, tokenID, amount).Int()
	if err != nil {
		return fmt.Errorf("redis: debit %s/%s/%s: %w", groupKey, proxyAddress, tokenID, err)
	}
	if res == 0 {
		return domain.ErrInsufficientInventory
	}
	return nil
}

// Refund reverses an optimistic Debit.
func (l *InventoryLedger) Refund(ctx context.Context, groupKey, proxyAddress, tokenID string, amount float64) error {
	if err := l.rdb.HIncrByFloat(ctx, inventoryKey(groupKey, proxyAddress), tokenID, amount).Err(); err != nil {
		return fmt.Errorf("redis: refund %s/%s/%s: %w", groupKey, proxyAddress, tokenID, err)
	}
	return nil
}

// Reconcile overwrites the cached balance with an authoritative value.
func (l *InventoryLedger) Reconcile(ctx context.Context, groupKey, proxyAddress, tokenID string, onChainBalance float64) error {
	if err := l.rdb.HSet(ctx, inventoryKey(groupKey, proxyAddress), tokenID, onChainBalance).Err(); err != nil {
		return fmt.Errorf("redis: reconcile %s/%s/%s: %w", groupKey, proxyAddress, tokenID, err)
	}
	return nil
}

// History returns up to limit most-recent mint events.
func (l *InventoryLedger) History(ctx context.Context, groupKey, proxyAddress string, limit int) ([]domain.MintEvent, error) {
	raw, err := l.rdb.LRange(ctx, historyKey(groupKey, proxyAddress), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: history %s/%s: %w", groupKey, proxyAddress, err)
	}
	out := make([]domain.MintEvent, 0, len(raw))
	for _, s := range raw {
		var ev domain.MintEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

var _ domain.InventoryLedger = (*InventoryLedger)(nil)
