package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage"
)

// State is the stage a transaction is in.
type State uint8

const (
	Idle State = iota
	Checking
	Charging
	Persisting
	Applied
	Failed
)

// String ...
func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Charging:
		return "charging"
	case Persisting:
		return "persisting"
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Action is the kind of mutation a transaction makes.
type Action uint8

const (
	ActionClaim Action = iota
	ActionFirstJoin
	ActionUnlock
	ActionLock
	ActionReset
)

// String ...
func (a Action) String() string {
	switch a {
	case ActionFirstJoin:
		return "first join"
	case ActionUnlock:
		return "unlock"
	case ActionLock:
		return "lock"
	case ActionReset:
		return "reset"
	default:
		return "claim"
	}
}

// Outcome is passed to the callback of a transaction once it completed. It is always delivered on the
// event loop.
type Outcome struct {
	TxID   string
	Action Action
	Key    ledger.Key
	Kit    kit.Definition
	// Record is the ledger record of the key after the transaction.
	Record ledger.Record
	State  State
	Err    error
}

// transaction is the token held for the keys a mutation touches. While a transaction holds a key no
// other transaction may start on it.
type transaction struct {
	id      string
	action  Action
	keys    []ledger.Key
	state   State
	started time.Time
	done    bool
	// seq orders transactions by the time they took their tokens.
	seq uint64
}

// request is everything a transaction needs to run.
type request struct {
	action   Action
	claimant Claimant
	def      kit.Definition
	cost     decimal.Decimal
	notify   func(Outcome)
}

// key returns the primary key of the transaction.
func (t *transaction) key() ledger.Key {
	return t.keys[0]
}

// acquire takes the tokens of all keys passed, or none if any of them is held.
func (e *Engine) acquire(action Action, keys ...ledger.Key) (*transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing.Load() {
		return nil, ErrShuttingDown
	}
	for _, k := range keys {
		if _, ok := e.tokens[k]; ok {
			return nil, ErrTransactionInFlight
		}
	}
	e.seq++
	t := &transaction{id: uuid.NewString(), action: action, keys: keys, state: Idle, started: e.now(), seq: e.seq}
	for _, k := range keys {
		e.tokens[k] = t
	}
	e.wg.Add(1)
	return t, nil
}

// release gives up the tokens of a transaction. Releasing more than once has no effect.
func (e *Engine) release(t *transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	for _, k := range t.keys {
		if e.tokens[k] == t {
			delete(e.tokens, k)
		}
	}
	e.wg.Done()
}

// setState ...
func (e *Engine) setState(t *transaction, s State) {
	e.mu.Lock()
	t.state = s
	e.mu.Unlock()
}

// hold takes the token of a key for the correction of a transaction that already completed. Unlike
// acquire it succeeds while closing, as Close waits for corrections. It returns nil if a transaction
// other than t holds the key, and a nil token with ok set if t itself still holds it.
func (e *Engine) hold(k ledger.Key, t *transaction) (c *transaction, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, held := e.tokens[k]; held {
		return nil, cur == t
	}
	c = &transaction{id: t.id, action: t.action, keys: []ledger.Key{k}, state: Persisting, started: e.now(), seq: t.seq}
	e.tokens[k] = c
	e.wg.Add(1)
	return c, true
}

// markReset records that the keys of a reset transaction were deleted. A key with an empty kit stands
// for every kit of the player.
func (e *Engine) markReset(t *transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range t.keys {
		e.resets[k] = t.seq
	}
}

// resetSince reports whether the record of the key was reset by a transaction that started after seq.
func (e *Engine) resetSince(k ledger.Key, seq uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets[k] > seq || e.resets[ledger.Key{Player: k.Player}] > seq
}

// nextVersion returns a version newer than both the current version of a record and any version
// issued for its key before.
func (e *Engine) nextVersion(k ledger.Key, current int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := max(e.issued[k], current) + 1
	e.issued[k] = v
	return v
}

// run drives a record transaction from CHECKING to its outcome. It runs on its own goroutine.
func (e *Engine) run(t *transaction, req request) {
	ctx, cancel := context.WithTimeout(context.Background(), e.conf.TransactionTimeout)
	defer cancel()

	var charged bool
	base, rec, err := e.execute(ctx, t, req, &charged)
	if err != nil && charged {
		err = e.compensate(t, req, err)
	}
	// The correction is registered while the transaction still holds its tokens, so Close cannot stop
	// waiting in between.
	maybeWritten := err != nil && errors.Is(err, errMaybeWritten)
	if maybeWritten {
		e.wg.Add(1)
	}
	e.finish(t, req, rec, err)

	if maybeWritten {
		go func() {
			defer e.wg.Done()
			e.correct(t, base)
		}()
	}
}

// errMaybeWritten marks persistence failures after which the record may still have been written.
var errMaybeWritten = errors.New("record may have been written")

// execute runs the stages of a transaction and returns the record it started from and the record to
// apply. Panics are recovered and returned as ErrInternal.
func (e *Engine) execute(ctx context.Context, t *transaction, req request, charged *bool) (base, rec ledger.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("kit transaction panicked", "tx", t.id, "panic", r, "stack", string(debug.Stack()))
			rec, err = ledger.Record{}, fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	e.setState(t, Checking)
	base, err = e.check(ctx, t, req)
	if err != nil {
		return base, ledger.Record{}, err
	}

	if req.cost.IsPositive() {
		e.setState(t, Charging)
		if err := e.charge(ctx, t, req, charged); err != nil {
			return base, ledger.Record{}, err
		}
	}

	e.setState(t, Persisting)
	rec = mutate(req, base, e.now())
	rec.Version = e.nextVersion(t.key(), base.Version)
	if err := e.persist(ctx, t, rec); err != nil {
		return base, ledger.Record{}, err
	}
	return base, rec, nil
}

// check loads the record of the key if the ledger does not hold it yet and validates the transaction
// against it on the event loop.
func (e *Engine) check(ctx context.Context, t *transaction, req request) (ledger.Record, error) {
	k := t.key()

	var loaded *ledger.Record
	if !e.ledger.Loaded(k.Player) && !e.ledger.Has(k) {
		lookup, err := e.gateway.Load(k).Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ledger.Record{}, ErrTimeout
			}
			return ledger.Record{}, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
		}
		if lookup.Found {
			loaded = &lookup.Record
		}
	}

	type result struct {
		rec ledger.Record
		err error
	}
	res := make(chan result, 1)
	e.loop.Exec(func() {
		if loaded != nil && !e.ledger.Has(k) {
			e.ledger.Apply(*loaded)
		}
		rec := e.ledger.Get(k.Player, k.Kit)
		res <- result{rec: rec, err: e.validate(req, rec)}
	})
	select {
	case r := <-res:
		return r.rec, r.err
	case <-ctx.Done():
		return ledger.Record{}, ErrTimeout
	}
}

// validate returns the reason a transaction may not be applied to a record. It runs on the event loop.
func (e *Engine) validate(req request, rec ledger.Record) error {
	switch req.action {
	case ActionClaim, ActionFirstJoin:
		if req.action == ActionClaim {
			if e.Blocked(rec.Player) {
				return ErrReconciliationRequired
			}
			if req.def.Permission != "" && !req.claimant.HasPermission(req.def.Permission) {
				return ErrUnauthorized
			}
		} else if rec.Claimed() {
			return ErrAlreadyClaimed
		}
		return rec.Check(req.def.Rules(), e.now())
	}
	return nil
}

// mutate returns the record resulting from applying a transaction to base.
func mutate(req request, base ledger.Record, now time.Time) ledger.Record {
	rec := base
	switch req.action {
	case ActionClaim, ActionFirstJoin:
		rec.NextAvailableAt = ledger.Instant(now.Add(req.def.Cooldown))
		rec.TimesClaimed++
	case ActionUnlock:
		rec.Unlocked = true
	case ActionLock:
		rec.Unlocked = false
	}
	return rec
}

// charge takes the cost of the kit from the player.
func (e *Engine) charge(ctx context.Context, t *transaction, req request, charged *bool) error {
	cctx, cancel := context.WithTimeout(ctx, e.conf.EconomyTimeout)
	defer cancel()

	err := e.economy.Charge(cctx, t.id, t.key().Player, req.cost)
	switch {
	case err == nil:
		*charged = true
		return nil
	case errors.Is(err, ErrInsufficientFunds):
		return err
	case errors.Is(err, context.DeadlineExceeded) || cctx.Err() != nil:
		// The provider may have applied the charge before the deadline hit.
		*charged = true
		if ctx.Err() != nil {
			return ErrTimeout
		}
		return fmt.Errorf("%w: %w", ErrEconomyUnavailable, err)
	case errors.Is(err, ErrEconomyUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrEconomyUnavailable, err)
	}
}

// persist writes a record durably, retrying retryable failures.
func (e *Engine) persist(ctx context.Context, t *transaction, rec ledger.Record) error {
	var (
		last         error
		maybeWritten bool
	)
	for attempt := 1; attempt <= e.conf.MaxAttempts; attempt++ {
		fut := e.gateway.Save(rec)
		_, err := fut.Wait(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			e.watchLate(t, fut)
			return ErrTimeout
		}
		last = err
		if storage.KindOf(err) == storage.Timeout {
			maybeWritten = true
		}
		if !storage.IsRetryable(err) || attempt == e.conf.MaxAttempts {
			break
		}
		e.log.Debug("retrying kit record write", "tx", t.id, "attempt", attempt, "error", err)

		select {
		case <-time.After(e.conf.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			if maybeWritten {
				return fmt.Errorf("%w: %w", ErrTimeout, errMaybeWritten)
			}
			return ErrTimeout
		}
	}
	if maybeWritten {
		return fmt.Errorf("%w: %w: %w", ErrPersistenceFailed, errMaybeWritten, last)
	}
	return fmt.Errorf("%w: %w", ErrPersistenceFailed, last)
}

// compensate refunds the charge of a failed transaction. If the refund fails, the failure is reported
// and the returned error wraps ErrReconciliationRequired.
func (e *Engine) compensate(t *transaction, req request, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.conf.EconomyTimeout)
	defer cancel()

	k := t.key()
	err := e.economy.Refund(ctx, t.id, k.Player, req.cost)
	if err == nil {
		e.log.Info("Refunded failed kit transaction", "tx", t.id, "player", k.Player, "kit", k.Kit, "amount", req.cost.String(), "cause", cause)
		return cause
	}

	r := Reconciliation{
		TxID:      t.id,
		Player:    k.Player,
		Kit:       k.Kit,
		Amount:    req.cost,
		Cause:     cause,
		RefundErr: err,
		At:        e.now(),
	}
	if req.claimant != nil {
		r.Name = req.claimant.Name()
	}
	e.addReconciliation(r)
	e.reporter.Report(r)
	return fmt.Errorf("%w: %w", ErrReconciliationRequired, cause)
}

// finish applies the result of a transaction on the event loop, releases its tokens and delivers the
// outcome.
func (e *Engine) finish(t *transaction, req request, rec ledger.Record, err error) {
	k := t.key()
	out := Outcome{TxID: t.id, Action: req.action, Key: k, Kit: req.def, State: Applied, Err: err}
	if err != nil {
		out.State = Failed
		e.log.Debug("kit transaction failed", "tx", t.id, "action", req.action, "player", k.Player, "kit", k.Kit, "error", err)
	}
	e.setState(t, out.State)

	e.loop.Exec(func() {
		func() {
			defer e.release(t)
			if err == nil {
				e.ledger.Apply(rec)
			}
			out.Record = e.ledger.Get(k.Player, k.Kit)
		}()
		e.deliver(req.notify, out)
	})
}

// deliver calls the outcome callback of a transaction, recovering from panics.
func (e *Engine) deliver(notify func(Outcome), out Outcome) {
	if notify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("kit outcome callback panicked", "tx", out.TxID, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	notify(out)
}

// watchLate waits for the result of a write the transaction stopped waiting for. If it succeeds, the
// durable record no longer matches the ledger and is corrected.
func (e *Engine) watchLate(t *transaction, fut storage.Future[struct{}]) {
	k := t.key()
	base := e.ledger.Get(k.Player, k.Kit)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		// Gateway operations are bounded by their own timeouts, so the future always completes.
		if _, err := fut.Wait(context.Background()); err != nil {
			e.log.Debug("dropped late kit record write", "tx", t.id, "error", err)
			return
		}
		e.log.Warn("kit record written after its transaction timed out", "tx", t.id, "player", k.Player, "kit", k.Kit)
		e.correct(t, base)
	}()
}

// correct writes the ledger record of the key of a failed transaction with a new version, so that
// storage matches the ledger after a write of that transaction may have landed. If the ledger no longer
// holds the key, base is written instead, unless the key was reset after the transaction started, in
// which case the record is deleted again. Keys taken by another transaction are skipped as it writes a
// newer version anyway. The key is held until the correction completed.
func (e *Engine) correct(t *transaction, base ledger.Record) {
	k := t.key()
	ctx, cancel := context.WithTimeout(context.Background(), e.conf.TransactionTimeout)
	defer cancel()

	type correction struct {
		rec    ledger.Record
		remove bool
		token  *transaction
	}
	res := make(chan correction, 1)
	e.loop.Exec(func() {
		c, ok := e.hold(k, t)
		if !ok {
			close(res)
			return
		}
		switch {
		case e.ledger.Has(k):
			rec := e.ledger.Get(k.Player, k.Kit)
			rec.Version = e.nextVersion(k, rec.Version)
			res <- correction{rec: rec, token: c}
		case e.resetSince(k, t.seq):
			res <- correction{remove: true, token: c}
		default:
			rec := base
			rec.Version = e.nextVersion(k, rec.Version)
			res <- correction{rec: rec, token: c}
		}
	})

	var cor correction
	select {
	case r, ok := <-res:
		if !ok {
			return
		}
		cor = r
	case <-ctx.Done():
		// The loop may still take the key after this point.
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if r, ok := <-res; ok && r.token != nil {
				e.release(r.token)
			}
		}()
		return
	}
	if cor.token != nil {
		defer e.release(cor.token)
	}

	if cor.remove {
		if _, err := e.gateway.Delete(k.Player, k.Kit).Wait(ctx); err != nil {
			e.log.Error("failed to delete reset kit record", "player", k.Player, "kit", k.Kit, "error", err)
			return
		}
		e.log.Info("Deleted kit record written after its reset", "player", k.Player, "kit", k.Kit)
		return
	}
	if _, err := e.gateway.Save(cor.rec).Wait(ctx); err != nil {
		e.log.Error("failed to correct kit record", "player", k.Player, "kit", k.Kit, "error", err)
		return
	}
	e.log.Info("Corrected kit record", "player", k.Player, "kit", k.Kit, "version", cor.rec.Version)
}
