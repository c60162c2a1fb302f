package domain

import (
	"context"
	"time"
)

// MintEventType names the kind of event appended to a mint audit log.
type MintEventType string

const (
	MintEventMinted MintEventType = "MINT"
	MintEventFailed MintEventType = "MINT_FAILED"
)

// MintEvent is one entry in a group/proxy's mint audit log.
type MintEvent struct {
	Type      MintEventType
	TokenID   string
	Amount    float64
	TxHash    string
	Timestamp time.Time
}

// InventoryLedger is the durable record of minted, sellable token balances
// per (groupKey, proxyAddress), backed by an external store so balances
// survive process restart. Updated on successful mint and optimistically
// decremented on successful sell submission; back-populated periodically
// from an on-chain balance read.
type InventoryLedger interface {
	// Available returns the currently available balance of tokenID within
	// groupKey/proxyAddress.
	Available(ctx context.Context, groupKey, proxyAddress, tokenID string) (float64, error)

	// Credit increases the available balance, called after a successful
	// mint. It also appends event to the audit log.
	Credit(ctx context.Context, groupKey, proxyAddress, tokenID string, amount float64, event MintEvent) error

	// Debit optimistically decreases the available balance by amount,
	// called right before a SELL order is dispatched. Returns
	// ErrInsufficientInventory without mutating state if amount exceeds the
	// cached balance.
	Debit(ctx context.Context, groupKey, proxyAddress, tokenID string, amount float64) error

	// Refund reverses an optimistic Debit after a failed dispatch.
	Refund(ctx context.Context, groupKey, proxyAddress, tokenID string, amount float64) error

	// Reconcile overwrites the cached balance with an authoritative
	// on-chain read.
	Reconcile(ctx context.Context, groupKey, proxyAddress, tokenID string, onChainBalance float64) error

	// History returns the audit log for groupKey/proxyAddress, most recent
	// first, capped at limit entries.
	History(ctx context.Context, groupKey, proxyAddress string, limit int) ([]MintEvent, error)
}
