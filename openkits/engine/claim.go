package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage"
)

// Claim starts a claim of a kit by a player. If it returns an error, nothing happened and notify is
// never called. Otherwise notify is called exactly once on the event loop with the outcome. The items of
// the kit are not given by the engine: the caller gives them from notify once the outcome is applied.
func (e *Engine) Claim(c Claimant, kitID string, notify func(Outcome)) error {
	def, err := e.claimable(kitID)
	if err != nil {
		return err
	}
	if e.Blocked(c.UUID()) {
		return ErrReconciliationRequired
	}
	if def.Permission != "" && !c.HasPermission(def.Permission) {
		return ErrUnauthorized
	}
	return e.start(request{action: ActionClaim, claimant: c, def: def, cost: def.Cost, notify: notify})
}

// ClaimFirstJoin grants the configured first join kit to a player that never claimed it. The kit is
// free and its permission is not checked.
func (e *Engine) ClaimFirstJoin(c Claimant, notify func(Outcome)) error {
	if e.conf.FirstJoinKit == "" {
		return ErrUnknownKit
	}
	def, err := e.claimable(e.conf.FirstJoinKit)
	if err != nil {
		return err
	}
	return e.start(request{action: ActionFirstJoin, claimant: c, def: def, cost: decimal.Zero, notify: notify})
}

// Unlock marks a kit as unlocked for a player. The player does not need to be online.
func (e *Engine) Unlock(player uuid.UUID, kitID string, notify func(Outcome)) error {
	def, err := e.Kit(kitID)
	if err != nil {
		return err
	}
	return e.startFor(player, request{action: ActionUnlock, def: def, notify: notify})
}

// Lock revokes the unlock of a kit for a player.
func (e *Engine) Lock(player uuid.UUID, kitID string, notify func(Outcome)) error {
	def, err := e.Kit(kitID)
	if err != nil {
		return err
	}
	return e.startFor(player, request{action: ActionLock, def: def, notify: notify})
}

// claimable returns the definition of a kit that may be claimed.
func (e *Engine) claimable(kitID string) (kit.Definition, error) {
	if e.closing.Load() {
		return kit.Definition{}, ErrShuttingDown
	}
	def, err := e.Kit(kitID)
	if err != nil {
		return kit.Definition{}, err
	}
	if !def.Enabled {
		return kit.Definition{}, ErrKitDisabled
	}
	return def, nil
}

// start takes the token of the claimant's key and runs the transaction.
func (e *Engine) start(req request) error {
	return e.startFor(req.claimant.UUID(), req)
}

// startFor takes the token of the player's key and runs the transaction. If the records of the player
// are in the ledger, the transaction is checked against them first so that the caller learns
// synchronously why it cannot go ahead.
func (e *Engine) startFor(player uuid.UUID, req request) error {
	k := ledger.Key{Player: player, Kit: req.def.ID}
	t, err := e.acquire(req.action, k)
	if err != nil {
		return err
	}
	if e.ledger.Loaded(player) || e.ledger.Has(k) {
		if err := e.validate(req, e.ledger.Get(player, req.def.ID)); err != nil {
			e.release(t)
			return err
		}
	}
	go e.run(t, req)
	return nil
}

// Reset deletes the record of a player for a kit, or all of the player's records if kitID is empty.
// Every key touched must be free: if any of them is in flight, nothing is reset.
func (e *Engine) Reset(player uuid.UUID, kitID string, notify func(Outcome)) error {
	var (
		def  kit.Definition
		kits []string
	)
	if kitID != "" {
		d, err := e.Kit(kitID)
		if err != nil {
			return err
		}
		def, kits = d, []string{d.ID}
	}

	keys := []ledger.Key{{Player: player, Kit: def.ID}}
	if kitID == "" {
		ids := append(e.kits.Catalog().IDs(), lo.Map(e.ledger.Records(player), func(r ledger.Record, _ int) string {
			return r.Kit
		})...)
		keys = append(keys, lo.Map(lo.Uniq(ids), func(id string, _ int) ledger.Key {
			return ledger.Key{Player: player, Kit: id}
		})...)
	}

	t, err := e.acquire(ActionReset, keys...)
	if err != nil {
		return err
	}
	go e.reset(t, def, kits, notify)
	return nil
}

// reset deletes records durably and then removes them from the ledger.
func (e *Engine) reset(t *transaction, def kit.Definition, kits []string, notify func(Outcome)) {
	player := t.key().Player
	e.setState(t, Persisting)

	ctx, cancel := context.WithTimeout(context.Background(), e.conf.TransactionTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= e.conf.MaxAttempts; attempt++ {
		if _, err = e.gateway.Delete(player, kits...).Wait(ctx); err == nil || !storage.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		time.Sleep(e.conf.RetryBackoff * time.Duration(attempt))
	}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		err = ErrTimeout
	default:
		err = fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	out := Outcome{TxID: t.id, Action: ActionReset, Key: t.key(), Kit: def, State: Applied, Err: err}
	if err != nil {
		out.State = Failed
	}
	e.setState(t, out.State)

	e.loop.Exec(func() {
		func() {
			defer e.release(t)
			if err != nil {
				return
			}
			e.markReset(t)
			if len(kits) == 0 {
				e.ledger.Remove(lo.Map(e.ledger.Records(player), func(r ledger.Record, _ int) ledger.Key {
					return r.Key()
				})...)
			} else {
				e.ledger.Remove(t.keys...)
			}
			e.log.Info("Reset kit records", "player", player, "kits", kits)
		}()
		out.Record = e.ledger.Get(out.Key.Player, out.Key.Kit)
		e.deliver(notify, out)
	})
}

// isExpected reports whether err is a normal reason for a claim not to go ahead, as opposed to a
// failure worth logging.
func isExpected(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrTransactionInFlight) ||
		errors.Is(err, ledger.ErrNotAvailable) ||
		errors.Is(err, ledger.ErrNotUnlocked) ||
		errors.Is(err, ledger.ErrUsesExceeded)
}
