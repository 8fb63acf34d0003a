package engine

import (
	"errors"

	"github.com/smell-of-curry/pokebedrock-kits/openkits/economy"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
)

var (
	// ErrUnknownKit is returned for kit identifiers not in the catalog.
	ErrUnknownKit = errors.New("unknown kit")
	// ErrKitDisabled is returned for kits that exist but are disabled.
	ErrKitDisabled = errors.New("kit is disabled")
	// ErrUnauthorized is returned if the claimant lacks the permission of the kit.
	ErrUnauthorized = errors.New("missing kit permission")
	// ErrTransactionInFlight is returned if a mutation of the same player and kit is already pending.
	ErrTransactionInFlight = errors.New("kit transaction already in flight")
	// ErrPersistenceFailed is returned if the durable write of a transaction failed.
	ErrPersistenceFailed = errors.New("kit record could not be saved")
	// ErrTimeout is returned if a transaction did not complete within its deadline.
	ErrTimeout = errors.New("kit transaction timed out")
	// ErrReconciliationRequired is returned if a charge could not be refunded, and for claims of
	// players blocked because of such a failure.
	ErrReconciliationRequired = errors.New("kit transaction requires reconciliation")
	// ErrShuttingDown is returned for transactions started while the engine is closing.
	ErrShuttingDown = errors.New("kit engine is shutting down")
	// ErrAlreadyClaimed is returned by ClaimFirstJoin if the player claimed the kit before.
	ErrAlreadyClaimed = errors.New("kit was already claimed")
	// ErrInternal is returned for transactions aborted by an unexpected panic.
	ErrInternal = errors.New("internal kit engine error")

	// ErrInsufficientFunds is returned if the player cannot pay for the kit.
	ErrInsufficientFunds = economy.ErrInsufficientFunds
	// ErrEconomyUnavailable is returned if the economy could not be charged.
	ErrEconomyUnavailable = economy.ErrUnavailable
)

// messages maps errors to locale keys, in the order they are matched.
var messages = []struct {
	err error
	key string
}{
	{ErrReconciliationRequired, "kit.error.reconciliation"},
	{ErrUnknownKit, "kit.error.unknown"},
	{ErrKitDisabled, "kit.error.disabled"},
	{ErrUnauthorized, "kit.error.permission"},
	{ErrTransactionInFlight, "kit.error.in_flight"},
	{ErrShuttingDown, "kit.error.shutting_down"},
	{ErrAlreadyClaimed, "kit.error.uses_exceeded"},
	{ledger.ErrNotAvailable, "kit.error.cooldown"},
	{ledger.ErrNotUnlocked, "kit.error.locked"},
	{ledger.ErrUsesExceeded, "kit.error.uses_exceeded"},
	{ErrInsufficientFunds, "kit.error.insufficient_funds"},
	{ErrEconomyUnavailable, "kit.error.economy_unavailable"},
	{ErrTimeout, "kit.error.timeout"},
	{ErrPersistenceFailed, "kit.error.persistence"},
}

// Message returns the locale key of the message shown to a player for an error returned by the engine.
func Message(err error) string {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.key
		}
	}
	return "kit.error.internal"
}
