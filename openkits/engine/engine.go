// Package engine implements the kit claim state machine. It answers availability queries from the
// in-memory ledger and runs every mutation as a transaction that charges the player, writes the record
// durably and only then applies it to the ledger on the host event loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/df-mc/atomic"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/economy"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/loop"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage"
)

// Claimant is a player claiming a kit.
type Claimant interface {
	UUID() uuid.UUID
	Name() string
	HasPermission(node string) bool
}

// Config configures an Engine.
type Config struct {
	// TransactionTimeout bounds a transaction from its start to the end of its durable write.
	TransactionTimeout time.Duration
	// MaxAttempts is the number of times a retryable storage failure is attempted.
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number to get the delay before the next attempt.
	RetryBackoff time.Duration
	// EconomyTimeout bounds a single charge or refund.
	EconomyTimeout time.Duration
	// LoadTimeout bounds the load of a player's records on join.
	LoadTimeout time.Duration
	// BlockOnReconciliation blocks all claims of a player whose refund failed until the failure is
	// cleared by an operator.
	BlockOnReconciliation bool
	// FirstJoinKit is granted once to players that never claimed it. Empty disables it.
	FirstJoinKit string
	// EvictSchedule is the cron schedule of the eviction of players that left.
	EvictSchedule string
	// EvictAfter is how long a player's records stay cached after they left.
	EvictAfter time.Duration
	// ReminderSchedule is the cron schedule of the reminder of pending reconciliations.
	ReminderSchedule string
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		TransactionTimeout:    10 * time.Second,
		MaxAttempts:           3,
		RetryBackoff:          250 * time.Millisecond,
		EconomyTimeout:        3 * time.Second,
		LoadTimeout:           5 * time.Second,
		BlockOnReconciliation: true,
		EvictSchedule:         "@every 5m",
		EvictAfter:            10 * time.Minute,
		ReminderSchedule:      "@every 30m",
	}
}

// Engine is the kit claim state machine.
type Engine struct {
	log      *slog.Logger
	conf     Config
	loop     loop.Loop
	kits     *kit.Registry
	ledger   *ledger.Ledger
	gateway  *storage.Gateway
	economy  economy.Provider
	reporter Reporter
	now      func() time.Time

	cron *cron.Cron

	mu              sync.Mutex
	tokens          map[ledger.Key]*transaction
	issued          map[ledger.Key]int64
	resets          map[ledger.Key]uint64
	seq             uint64
	reconciliations map[uuid.UUID][]Reconciliation

	closing atomic.Bool
	wg      sync.WaitGroup
}

// New returns an Engine. Start must be called to run its periodic jobs.
func New(log *slog.Logger, conf Config, l loop.Loop, kits *kit.Registry, g *storage.Gateway, eco economy.Provider, rep Reporter) *Engine {
	def := DefaultConfig()
	if conf.TransactionTimeout <= 0 {
		conf.TransactionTimeout = def.TransactionTimeout
	}
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = def.MaxAttempts
	}
	if conf.RetryBackoff < 0 {
		conf.RetryBackoff = 0
	}
	if conf.EconomyTimeout <= 0 {
		conf.EconomyTimeout = def.EconomyTimeout
	}
	if conf.LoadTimeout <= 0 {
		conf.LoadTimeout = def.LoadTimeout
	}
	if conf.EvictAfter <= 0 {
		conf.EvictAfter = def.EvictAfter
	}
	if eco == nil {
		eco = economy.None{}
	}
	if rep == nil {
		rep = LogReporter{Log: log}
	}
	return &Engine{
		log:             log,
		conf:            conf,
		loop:            l,
		kits:            kits,
		ledger:          ledger.New(),
		gateway:         g,
		economy:         eco,
		reporter:        rep,
		now:             time.Now,
		tokens:          make(map[ledger.Key]*transaction),
		issued:          make(map[ledger.Key]int64),
		resets:          make(map[ledger.Key]uint64),
		reconciliations: make(map[uuid.UUID][]Reconciliation),
	}
}

// Start schedules the periodic jobs of the engine.
func (e *Engine) Start() error {
	logger := cronLogger{log: e.log}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger)))
	if e.conf.EvictSchedule != "" {
		if _, err := c.AddFunc(e.conf.EvictSchedule, e.evict); err != nil {
			return fmt.Errorf("schedule eviction: %w", err)
		}
	}
	if e.conf.ReminderSchedule != "" {
		if _, err := c.AddFunc(e.conf.ReminderSchedule, e.remind); err != nil {
			return fmt.Errorf("schedule reconciliation reminder: %w", err)
		}
	}
	c.Start()
	e.cron = c
	return nil
}

// Close stops accepting transactions and waits for the in-flight ones to complete, or for ctx to be
// done, before closing the storage gateway.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closing.Load() {
		e.mu.Unlock()
		return nil
	}
	e.closing.Store(true)
	e.mu.Unlock()

	if e.cron != nil {
		<-e.cron.Stop().Done()
	}

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
		e.log.Info("Drained kit transactions")
	case <-ctx.Done():
		e.log.Warn("kit transactions still pending at shutdown", "pending", len(e.InFlight()))
		err = fmt.Errorf("drain kit transactions: %w", ctx.Err())
	}
	if cerr := e.gateway.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close storage: %w", cerr))
	}
	return err
}

// Closing reports whether Close was called.
func (e *Engine) Closing() bool {
	return e.closing.Load()
}

// Kits returns the current kit catalog.
func (e *Engine) Kits() *kit.Catalog {
	return e.kits.Catalog()
}

// Kit returns the definition of a kit in the current catalog.
func (e *Engine) Kit(id string) (kit.Definition, error) {
	def, ok := e.kits.Catalog().Get(id)
	if !ok {
		return kit.Definition{}, ErrUnknownKit
	}
	return def, nil
}

// Reload replaces the kit catalog on the event loop. Transactions already started keep the definition
// they started with. The returned channel is closed once the catalog was replaced.
func (e *Engine) Reload(c *kit.Catalog) <-chan struct{} {
	return e.loop.Exec(func() {
		prev := e.kits.Swap(c)
		e.log.Info("Reloaded kit catalog", "kits", c.Len(), "previous", prev.Len())
	})
}

// Snapshot returns the ledger record of a player for a kit. It does no I/O.
func (e *Engine) Snapshot(player uuid.UUID, kitID string) ledger.Record {
	return e.ledger.Get(player, kit.NormaliseID(kitID))
}

// Records returns the ledger records of a player.
func (e *Engine) Records(player uuid.UUID) []ledger.Record {
	return e.ledger.Records(player)
}

// Status returns the reason the player may not claim the kit right now, or nil if they may. Permission
// is not considered.
func (e *Engine) Status(player uuid.UUID, def kit.Definition) error {
	if !def.Enabled {
		return ErrKitDisabled
	}
	if e.Blocked(player) {
		return ErrReconciliationRequired
	}
	return e.ledger.Check(player, def.ID, def.Rules(), e.now())
}

// Available reports whether the claimant may claim the kit right now.
func (e *Engine) Available(c Claimant, kitID string) bool {
	def, err := e.Kit(kitID)
	if err != nil {
		return false
	}
	if def.Permission != "" && !c.HasPermission(def.Permission) {
		return false
	}
	return e.Status(c.UUID(), def) == nil
}

// Remaining returns the cooldown a player has left on a kit.
func (e *Engine) Remaining(player uuid.UUID, kitID string) time.Duration {
	return e.ledger.Remaining(player, kit.NormaliseID(kitID), e.now())
}

// Loaded reports whether the records of a player were loaded from storage.
func (e *Engine) Loaded(player uuid.UUID) bool {
	return e.ledger.Loaded(player)
}

// Pending describes an in-flight transaction.
type Pending struct {
	TxID    string
	Action  Action
	Keys    []ledger.Key
	State   State
	Started time.Time
}

// InFlight returns the transactions currently in flight, oldest first.
func (e *Engine) InFlight() []Pending {
	e.mu.Lock()
	seen := make(map[*transaction]struct{}, len(e.tokens))
	var pending []Pending
	for _, t := range e.tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		pending = append(pending, Pending{TxID: t.id, Action: t.action, Keys: t.keys, State: t.state, Started: t.started})
	}
	e.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Started.Before(pending[j].Started)
	})
	return pending
}

// OnPlayerJoin loads the records of a player into the ledger and then grants the first join kit, if
// one is configured. The outcome of that grant is passed to notify. It never blocks.
func (e *Engine) OnPlayerJoin(c Claimant, notify func(Outcome)) {
	id := c.UUID()
	e.ledger.Unmark(id)
	if e.ledger.Loaded(id) {
		e.grantFirstJoin(c, notify)
		return
	}
	if !e.track() {
		return
	}
	fut := e.gateway.LoadAll(id)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.conf.LoadTimeout)
		defer cancel()

		records, err := fut.Wait(ctx)
		if err != nil {
			e.log.Warn("failed to load kit records on join", "player", c.Name(), "error", err)
			return
		}
		e.loop.Exec(func() {
			e.ledger.Warm(id, records)
			e.log.Debug("Loaded kit records", "player", c.Name(), "records", len(records))
			e.grantFirstJoin(c, notify)
		})
	}()
}

// OnPlayerQuit marks the records of a player for eviction.
func (e *Engine) OnPlayerQuit(player uuid.UUID) {
	e.ledger.MarkLeft(player, e.now())
}

// grantFirstJoin claims the first join kit for a player, logging failures other than the kit having
// been claimed before.
func (e *Engine) grantFirstJoin(c Claimant, notify func(Outcome)) {
	if e.conf.FirstJoinKit == "" {
		return
	}
	switch err := e.ClaimFirstJoin(c, notify); {
	case err == nil:
	case isExpected(err):
		e.log.Debug("First join kit not granted", "player", c.Name(), "reason", err)
	default:
		e.log.Warn("failed to grant first join kit", "player", c.Name(), "kit", e.conf.FirstJoinKit, "error", err)
	}
}

// track registers a background task the engine must wait for when closing. It returns false if the
// engine is closing.
func (e *Engine) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing.Load() {
		return false
	}
	e.wg.Add(1)
	return true
}

// evict removes the cached records of players that left long enough ago.
func (e *Engine) evict() {
	e.loop.Exec(func() {
		evicted := e.ledger.EvictLeft(e.now().Add(-e.conf.EvictAfter), e.hasTokens)
		if len(evicted) == 0 {
			return
		}
		e.mu.Lock()
		for k := range e.issued {
			if _, ok := e.tokens[k]; !ok && lo.Contains(evicted, k.Player) {
				delete(e.issued, k)
			}
		}
		for k := range e.resets {
			if _, ok := e.tokens[k]; !ok && lo.Contains(evicted, k.Player) {
				delete(e.resets, k)
			}
		}
		e.mu.Unlock()
		e.log.Debug("Evicted kit records of players that left", "players", len(evicted))
	})
}

// hasTokens reports whether a transaction is in flight for the player.
func (e *Engine) hasTokens(player uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.tokens {
		if k.Player == player {
			return true
		}
	}
	return false
}

// cronLogger adapts slog to the cron logger.
type cronLogger struct {
	log *slog.Logger
}

// Info ...
func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

// Error ...
func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
