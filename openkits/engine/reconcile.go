package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Reconciliation records a charge that could not be refunded after its transaction failed. The player
// paid for a kit they did not receive and an operator has to settle it.
type Reconciliation struct {
	TxID   string
	Player uuid.UUID
	Name   string
	Kit    string
	Amount decimal.Decimal
	// Cause is the failure of the transaction and RefundErr the failure of its refund.
	Cause     error
	RefundErr error
	At        time.Time
}

// Reporter escalates reconciliations to operators.
type Reporter interface {
	Report(r Reconciliation)
}

// LogReporter reports reconciliations to a logger.
type LogReporter struct {
	Log *slog.Logger
}

// Report ...
func (r LogReporter) Report(rec Reconciliation) {
	r.Log.Error("kit charge could not be refunded",
		"tx", rec.TxID,
		"player", rec.Player,
		"name", rec.Name,
		"kit", rec.Kit,
		"amount", rec.Amount.String(),
		"cause", rec.Cause,
		"refund_error", rec.RefundErr,
	)
}

// addReconciliation stores a pending reconciliation.
func (e *Engine) addReconciliation(r Reconciliation) {
	e.mu.Lock()
	e.reconciliations[r.Player] = append(e.reconciliations[r.Player], r)
	e.mu.Unlock()
}

// Blocked reports whether claims of a player are blocked until their pending reconciliations are
// cleared.
func (e *Engine) Blocked(player uuid.UUID) bool {
	if !e.conf.BlockOnReconciliation {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reconciliations[player]) > 0
}

// Reconciliations returns the pending reconciliations of a player, or of all players if player is
// uuid.Nil, oldest first.
func (e *Engine) Reconciliations(player uuid.UUID) []Reconciliation {
	e.mu.Lock()
	var list []Reconciliation
	if player == uuid.Nil {
		list = lo.Flatten(lo.Values(e.reconciliations))
	} else {
		list = append(list, e.reconciliations[player]...)
	}
	e.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].At.Before(list[j].At)
	})
	return list
}

// ClearReconciliation removes the pending reconciliations of a player, which unblocks their claims. It
// returns the number removed.
func (e *Engine) ClearReconciliation(player uuid.UUID) int {
	e.mu.Lock()
	n := len(e.reconciliations[player])
	delete(e.reconciliations, player)
	e.mu.Unlock()

	if n > 0 {
		e.log.Info("Cleared kit reconciliations", "player", player, "count", n)
	}
	return n
}

// remind logs the pending reconciliations so that they are not forgotten.
func (e *Engine) remind() {
	pending := e.Reconciliations(uuid.Nil)
	if len(pending) == 0 {
		return
	}
	players := lo.Uniq(lo.Map(pending, func(r Reconciliation, _ int) uuid.UUID {
		return r.Player
	}))
	e.log.Warn("kit reconciliations pending", "count", len(pending), "players", len(players), "oldest", pending[0].At)
}
