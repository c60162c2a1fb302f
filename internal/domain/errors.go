package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")

	// Error kinds named by the arbitrage core's error handling design.
	ErrTransientNetwork     = errors.New("transient network error")
	ErrValidationRejected   = errors.New("order validation rejected by exchange")
	ErrInsufficientCash     = errors.New("insufficient local cash balance")
	ErrInsufficientInventory = errors.New("insufficient minted inventory")
	ErrStaleOpportunity     = errors.New("opportunity exceeded timeout")
	ErrOrderInFlight        = errors.New("another order batch is already in flight")
	ErrMintFailure          = errors.New("mint job failed")
	ErrCatalogueDrift       = errors.New("catalogue no longer returns this market")
)
