package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/economy"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/loop"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// claimant is a Claimant with a fixed set of permissions.
type claimant struct {
	id    uuid.UUID
	perms map[string]bool
}

func newClaimant(perms ...string) claimant {
	c := claimant{id: uuid.New(), perms: make(map[string]bool)}
	for _, p := range perms {
		c.perms[p] = true
	}
	return c
}

func (c claimant) UUID() uuid.UUID                { return c.id }
func (c claimant) Name() string                   { return "Steve" }
func (c claimant) HasPermission(node string) bool { return c.perms[node] }

// faultyStore wraps a Memory store. Saves fail with saveErr if set and wait for release if it is set.
type faultyStore struct {
	*storage.Memory
	saves   atomic.Int32
	saveErr error
	release chan struct{}
}

func (s *faultyStore) SaveRecord(ctx context.Context, r ledger.Record) error {
	s.saves.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Memory.SaveRecord(ctx, r)
}

// spyEconomy wraps a Memory economy and counts calls. Refunds fail with refundErr if set.
type spyEconomy struct {
	*economy.Memory
	charges   atomic.Int32
	refunds   atomic.Int32
	refundErr error
}

func (s *spyEconomy) Charge(ctx context.Context, txID string, p uuid.UUID, amount decimal.Decimal) error {
	s.charges.Add(1)
	return s.Memory.Charge(ctx, txID, p, amount)
}

func (s *spyEconomy) Refund(ctx context.Context, txID string, p uuid.UUID, amount decimal.Decimal) error {
	s.refunds.Add(1)
	if s.refundErr != nil {
		return s.refundErr
	}
	return s.Memory.Refund(ctx, txID, p, amount)
}

// reporter collects reported reconciliations.
type reporter struct {
	mu      sync.Mutex
	reports []Reconciliation
}

func (r *reporter) Report(rec Reconciliation) {
	r.mu.Lock()
	r.reports = append(r.reports, rec)
	r.mu.Unlock()
}

func (r *reporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// harness is an Engine wired to in-memory fakes.
type harness struct {
	*Engine
	loop  *loop.Serial
	store *faultyStore
	eco   *spyEconomy
	rep   *reporter
	clock *clock
}

var (
	starter = kit.Definition{ID: "starter", Name: "Starter", Cooldown: time.Hour, Enabled: true,
		Items: []kit.ItemSpec{{Item: "minecraft:stone_sword", Count: 1}}}
	pvp = kit.Definition{ID: "pvp", Name: "PvP", Cooldown: 24 * time.Hour, Cost: decimal.NewFromInt(100), Enabled: true,
		Permission: "openkits.kit.pvp", Items: []kit.ItemSpec{{Item: "minecraft:iron_sword", Count: 1}}}
	founder = kit.Definition{ID: "founder", Cooldown: time.Hour, RequiresUnlock: true, Enabled: true,
		Items: []kit.ItemSpec{{Item: "minecraft:diamond", Count: 1}}}
	once = kit.Definition{ID: "once", MaxUses: 1, Enabled: true,
		Items: []kit.ItemSpec{{Item: "minecraft:apple", Count: 1}}}
	disabled = kit.Definition{ID: "disabled", Items: []kit.ItemSpec{{Item: "minecraft:apple", Count: 1}}}
)

func newHarness(t *testing.T, mutate func(*Config, *faultyStore)) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	conf := DefaultConfig()
	conf.TransactionTimeout = 2 * time.Second
	conf.RetryBackoff = time.Millisecond
	conf.EconomyTimeout = time.Second
	conf.EvictSchedule, conf.ReminderSchedule = "", ""

	store := &faultyStore{Memory: storage.NewMemory()}
	if mutate != nil {
		mutate(&conf, store)
	}

	l := loop.NewSerial(log)
	t.Cleanup(l.Close)

	h := &harness{
		loop:  l,
		store: store,
		eco:   &spyEconomy{Memory: economy.NewMemory()},
		rep:   &reporter{},
		clock: &clock{now: t0},
	}
	gw := storage.NewGateway(log, store, storage.GatewayConfig{Workers: 4, OperationTimeout: 5 * time.Second})
	reg := kit.NewRegistry(kit.NewCatalog(starter, pvp, founder, once, disabled))
	h.Engine = New(log, conf, l, reg, gw, h.eco, h.rep)
	h.Engine.now = h.clock.Now

	t.Cleanup(func() {
		if store.release != nil {
			select {
			case <-store.release:
			default:
				close(store.release)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Close(ctx)
	})
	return h
}

// flush waits until every function queued on the loop so far has run.
func (h *harness) flush() {
	<-h.loop.Exec(func() {})
}

// collector returns a callback sending outcomes on the returned channel.
func collector() (func(Outcome), chan Outcome) {
	ch := make(chan Outcome, 64)
	return func(o Outcome) { ch <- o }, ch
}

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

// join warms the ledger for a claimant and waits for it.
func (h *harness) join(t *testing.T, c claimant) {
	t.Helper()
	h.OnPlayerJoin(c, nil)
	require.Eventually(t, func() bool { return h.Loaded(c.UUID()) }, 5*time.Second, time.Millisecond)
}

func TestStarterScenario(t *testing.T) {
	h := newHarness(t, nil)
	c := newClaimant()
	h.join(t, c)
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "starter", notify))
	out := waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.Equal(t, Applied, out.State)
	want := ledger.Record{Player: c.UUID(), Kit: "starter", NextAvailableAt: t0.Add(time.Hour), TimesClaimed: 1, Version: 1}
	if diff := cmp.Diff(want, out.Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	stored, ok, err := h.store.LoadRecord(context.Background(), want.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, stored)

	h.clock.Set(t0.Add(time.Second))
	assert.ErrorIs(t, h.Claim(c, "starter", notify), ledger.ErrNotAvailable)
	assert.Equal(t, 3599*time.Second, h.Remaining(c.UUID(), "STARTER"))

	h.clock.Set(t0.Add(3601 * time.Second))
	require.NoError(t, h.Claim(c, "starter", notify))
	out = waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.Equal(t, 2, out.Record.TimesClaimed)
	assert.Equal(t, t0.Add(3601*time.Second+time.Hour), out.Record.NextAvailableAt)

	assert.Zero(t, h.eco.charges.Load(), "free kits never touch the economy")
}

func TestPaidClaim(t *testing.T) {
	h := newHarness(t, nil)
	c := newClaimant("openkits.kit.pvp")
	h.join(t, c)
	h.eco.SetBalance(c.UUID(), decimal.NewFromInt(150))
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "pvp", notify))
	out := waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Record.TimesClaimed)

	bal, err := h.eco.Balance(context.Background(), c.UUID())
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(50)), "unexpected balance %s", bal)
}

func TestInsufficientFunds(t *testing.T) {
	h := newHarness(t, nil)
	c := newClaimant("openkits.kit.pvp")
	h.join(t, c)
	h.eco.SetBalance(c.UUID(), decimal.NewFromInt(50))
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "pvp", notify))
	out := waitOutcome(t, outcomes)
	assert.ErrorIs(t, out.Err, ErrInsufficientFunds)
	assert.Equal(t, Failed, out.State)
	assert.Equal(t, ledger.NewRecord(out.Key), out.Record)

	_, ok, err := h.store.LoadRecord(context.Background(), out.Key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, h.store.saves.Load())
	assert.Zero(t, h.eco.refunds.Load())
}

func TestSynchronousRejections(t *testing.T) {
	h := newHarness(t, nil)
	c := newClaimant()
	h.join(t, c)

	notified := false
	notify := func(Outcome) { notified = true }

	assert.ErrorIs(t, h.Claim(c, "unknown", notify), ErrUnknownKit)
	assert.ErrorIs(t, h.Claim(c, "disabled", notify), ErrKitDisabled)
	assert.ErrorIs(t, h.Claim(c, "pvp", notify), ErrUnauthorized)
	assert.ErrorIs(t, h.Claim(c, "founder", notify), ledger.ErrNotUnlocked)

	h.flush()
	assert.False(t, notified)
	assert.Empty(t, h.InFlight())
}

func TestConcurrentClaimsSingleTransaction(t *testing.T) {
	h := newHarness(t, func(_ *Config, s *faultyStore) {
		s.release = make(chan struct{})
	})
	c := newClaimant()
	h.join(t, c)
	notify, outcomes := collector()

	var (
		wg       sync.WaitGroup
		started  atomic.Int32
		inFlight atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := h.Claim(c, "starter", notify); {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrTransactionInFlight):
				inFlight.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, started.Load())
	assert.EqualValues(t, 19, inFlight.Load())
	require.Len(t, h.InFlight(), 1)

	close(h.store.release)
	out := waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	h.flush()
	assert.Empty(t, outcomes)
	assert.Empty(t, h.InFlight())
}

func TestTimeoutRefundsAndCorrectsLateWrite(t *testing.T) {
	h := newHarness(t, func(conf *Config, s *faultyStore) {
		conf.TransactionTimeout = 100 * time.Millisecond
		s.release = make(chan struct{})
	})
	c := newClaimant("openkits.kit.pvp")
	h.join(t, c)
	h.eco.SetBalance(c.UUID(), decimal.NewFromInt(150))
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "pvp", notify))
	out := waitOutcome(t, outcomes)
	assert.ErrorIs(t, out.Err, ErrTimeout)
	assert.Equal(t, 0, out.Record.TimesClaimed)

	bal, _ := h.eco.Balance(context.Background(), c.UUID())
	assert.True(t, bal.Equal(decimal.NewFromInt(150)), "charge was not refunded: %s", bal)

	close(h.store.release)
	require.Eventually(t, func() bool {
		r, ok, _ := h.store.LoadRecord(context.Background(), out.Key)
		return ok && r.Version == 2
	}, 5*time.Second, 5*time.Millisecond)

	r, _, _ := h.store.LoadRecord(context.Background(), out.Key)
	assert.Equal(t, 0, r.TimesClaimed, "late write was not corrected")
	assert.Equal(t, 0, h.Snapshot(c.UUID(), "pvp").TimesClaimed)
}

func TestCloseWaitsForLateWriteCorrection(t *testing.T) {
	h := newHarness(t, func(conf *Config, s *faultyStore) {
		conf.TransactionTimeout = 100 * time.Millisecond
		s.release = make(chan struct{})
	})
	c := newClaimant("openkits.kit.pvp")
	h.join(t, c)
	h.eco.SetBalance(c.UUID(), decimal.NewFromInt(150))
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "pvp", notify))
	out := waitOutcome(t, outcomes)
	require.ErrorIs(t, out.Err, ErrTimeout)

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closed <- h.Close(ctx)
	}()
	require.Eventually(t, h.Closing, 5*time.Second, time.Millisecond)

	select {
	case err := <-closed:
		t.Fatalf("close returned before the late write completed: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(h.store.release)

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for close")
	}

	r, ok, err := h.store.LoadRecord(context.Background(), out.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, r.TimesClaimed, "late write was not corrected before close")
	assert.EqualValues(t, 2, r.Version)
	assert.Equal(t, 0, h.Snapshot(c.UUID(), "pvp").TimesClaimed)
}

func TestLateWriteAfterResetIsDeleted(t *testing.T) {
	h := newHarness(t, func(conf *Config, _ *faultyStore) {
		conf.TransactionTimeout = 100 * time.Millisecond
	})
	c := newClaimant()
	h.join(t, c)
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "starter", notify))
	require.NoError(t, waitOutcome(t, outcomes).Err)

	h.store.release = make(chan struct{})
	h.clock.Set(t0.Add(2 * time.Hour))
	require.NoError(t, h.Claim(c, "starter", notify))
	out := waitOutcome(t, outcomes)
	require.ErrorIs(t, out.Err, ErrTimeout)

	require.NoError(t, h.Reset(c.UUID(), "starter", notify))
	require.NoError(t, waitOutcome(t, outcomes).Err)
	_, ok, err := h.store.LoadRecord(context.Background(), out.Key)
	require.NoError(t, err)
	require.False(t, ok)

	close(h.store.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Close(ctx))

	assert.EqualValues(t, 2, h.store.saves.Load())
	_, ok, err = h.store.LoadRecord(context.Background(), out.Key)
	require.NoError(t, err)
	assert.False(t, ok, "reset record came back after a late write")
	assert.False(t, h.Snapshot(c.UUID(), "starter").Claimed())
}

func TestPersistenceFailureRefunds(t *testing.T) {
	h := newHarness(t, func(_ *Config, s *faultyStore) {
		s.saveErr = storage.Wrap(storage.Fatal, "save", errors.New("disk full"))
	})
	c := newClaimant("openkits.kit.pvp")
	h.join(t, c)
	h.eco.SetBalance(c.UUID(), decimal.NewFromInt(100))
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "pvp", notify))
	out := waitOutcome(t, outcomes)
	assert.ErrorIs(t, out.Err, ErrPersistenceFailed)
	assert.EqualValues(t, 1, h.store.saves.Load(), "fatal errors are not retried")
	assert.EqualValues(t, 1, h.eco.refunds.Load())

	bal, _ := h.eco.Balance(context.Background(), c.UUID())
	assert.True(t, bal.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, ledger.NewRecord(out.Key), h.Snapshot(c.UUID(), "pvp"))
	assert.Zero(t, h.rep.count())
}

func TestRetryableFailuresAreRetried(t *testing.T) {
	h := newHarness(t, func(conf *Config, s *faultyStore) {
		conf.MaxAttempts = 3
		s.saveErr = storage.Wrap(storage.Busy, "save", errors.New("database is locked"))
	})
	c := newClaimant()
	h.join(t, c)
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "starter", notify))
	out := waitOutcome(t, outcomes)
	assert.ErrorIs(t, out.Err, ErrPersistenceFailed)
	assert.EqualValues(t, 3, h.store.saves.Load())
}

func TestRefundFailureRequiresReconciliation(t *testing.T) {
	h := newHarness(t, func(_ *Config, s *faultyStore) {
		s.saveErr = storage.Wrap(storage.Fatal, "save", errors.New("disk full"))
	})
	h.eco.refundErr = economy.ErrUnavailable
	c := newClaimant("openkits.kit.pvp")
	h.join(t, c)
	h.eco.SetBalance(c.UUID(), decimal.NewFromInt(100))
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "pvp", notify))
	out := waitOutcome(t, outcomes)
	assert.ErrorIs(t, out.Err, ErrReconciliationRequired)
	assert.ErrorIs(t, out.Err, ErrPersistenceFailed)
	assert.Equal(t, 1, h.rep.count())

	pending := h.Reconciliations(c.UUID())
	require.Len(t, pending, 1)
	assert.Equal(t, out.TxID, pending[0].TxID)
	assert.True(t, h.Blocked(c.UUID()))
	assert.ErrorIs(t, h.Claim(c, "starter", notify), ErrReconciliationRequired)

	assert.Equal(t, 1, h.ClearReconciliation(c.UUID()))
	assert.False(t, h.Blocked(c.UUID()))
	assert.Empty(t, h.Reconciliations(uuid.Nil))
}

func TestLazyLoadOfUnwarmedPlayer(t *testing.T) {
	h := newHarness(t, nil)
	c := newClaimant()
	require.NoError(t, h.store.Memory.SaveRecord(context.Background(), ledger.Record{
		Player: c.UUID(), Kit: "starter", NextAvailableAt: t0.Add(time.Minute), TimesClaimed: 4, Version: 7,
	}))
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "starter", notify))
	out := waitOutcome(t, outcomes)
	assert.ErrorIs(t, out.Err, ledger.ErrNotAvailable)
	assert.Equal(t, 4, out.Record.TimesClaimed)

	assert.ErrorIs(t, h.Claim(c, "starter", notify), ledger.ErrNotAvailable)

	h.clock.Set(t0.Add(2 * time.Minute))
	require.NoError(t, h.Claim(c, "starter", notify))
	out = waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.Equal(t, 5, out.Record.TimesClaimed)
	assert.EqualValues(t, 8, out.Record.Version)
}

func TestFirstJoinKit(t *testing.T) {
	h := newHarness(t, func(conf *Config, _ *faultyStore) {
		conf.FirstJoinKit = "starter"
	})
	c := newClaimant()
	notify, outcomes := collector()

	h.OnPlayerJoin(c, notify)
	out := waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.Equal(t, ActionFirstJoin, out.Action)
	assert.Equal(t, 1, out.Record.TimesClaimed)

	h.OnPlayerQuit(c.UUID())
	h.clock.Set(t0.Add(48 * time.Hour))
	h.OnPlayerJoin(c, notify)
	h.flush()
	assert.Empty(t, outcomes)
	assert.ErrorIs(t, h.ClaimFirstJoin(c, notify), ErrAlreadyClaimed)
}

func TestUnlockLockAndReset(t *testing.T) {
	h := newHarness(t, nil)
	c := newClaimant()
	h.join(t, c)
	notify, outcomes := collector()

	require.NoError(t, h.Unlock(c.UUID(), "founder", notify))
	out := waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.True(t, out.Record.Unlocked)

	require.NoError(t, h.Claim(c, "founder", notify))
	out = waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.True(t, out.Record.Unlocked)
	assert.EqualValues(t, 2, out.Record.Version)

	require.NoError(t, h.Lock(c.UUID(), "founder", notify))
	out = waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.False(t, out.Record.Unlocked)

	require.NoError(t, h.Claim(c, "starter", notify))
	require.NoError(t, waitOutcome(t, outcomes).Err)

	require.NoError(t, h.Reset(c.UUID(), "", notify))
	out = waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.Equal(t, ActionReset, out.Action)
	assert.Empty(t, h.Records(c.UUID()))

	stored, err := h.store.LoadAllForPlayer(context.Background(), c.UUID())
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.NoError(t, h.Claim(c, "starter", notify))
	out = waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Record.TimesClaimed)
	assert.Greater(t, out.Record.Version, int64(1), "versions stay monotonic across resets")
}

func TestOneTimeKit(t *testing.T) {
	h := newHarness(t, nil)
	c := newClaimant()
	h.join(t, c)
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "once", notify))
	require.NoError(t, waitOutcome(t, outcomes).Err)
	assert.ErrorIs(t, h.Claim(c, "once", notify), ledger.ErrUsesExceeded)
}

func TestPanickingCallbackReleasesToken(t *testing.T) {
	h := newHarness(t, nil)
	c := newClaimant()
	h.join(t, c)

	require.NoError(t, h.Claim(c, "starter", func(Outcome) { panic("boom") }))
	require.Eventually(t, func() bool { return len(h.InFlight()) == 0 }, 5*time.Second, time.Millisecond)

	h.clock.Set(t0.Add(2 * time.Hour))
	notify, outcomes := collector()
	require.NoError(t, h.Claim(c, "starter", notify))
	assert.NoError(t, waitOutcome(t, outcomes).Err)
}

func TestCloseDrainsTransactions(t *testing.T) {
	h := newHarness(t, func(_ *Config, s *faultyStore) {
		s.release = make(chan struct{})
	})
	c := newClaimant()
	h.join(t, c)
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "starter", notify))
	time.AfterFunc(50*time.Millisecond, func() { close(h.store.release) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Close(ctx))
	assert.NoError(t, waitOutcome(t, outcomes).Err)

	assert.ErrorIs(t, h.Claim(c, "starter", notify), ErrShuttingDown)
}

func TestEvictPlayersThatLeft(t *testing.T) {
	h := newHarness(t, nil)
	c := newClaimant()
	h.join(t, c)

	h.OnPlayerQuit(c.UUID())
	h.evict()
	h.flush()
	assert.True(t, h.Loaded(c.UUID()), "player evicted before EvictAfter passed")

	h.clock.Set(t0.Add(h.conf.EvictAfter + time.Second))
	h.evict()
	h.flush()
	assert.False(t, h.Loaded(c.UUID()))
}

func TestReloadKeepsInFlightDefinition(t *testing.T) {
	h := newHarness(t, func(_ *Config, s *faultyStore) {
		s.release = make(chan struct{})
	})
	c := newClaimant()
	h.join(t, c)
	notify, outcomes := collector()

	require.NoError(t, h.Claim(c, "starter", notify))
	changed := starter
	changed.Cooldown = time.Minute
	<-h.Reload(kit.NewCatalog(changed))
	close(h.store.release)

	out := waitOutcome(t, outcomes)
	require.NoError(t, out.Err)
	assert.Equal(t, time.Hour, out.Kit.Cooldown)
	assert.Equal(t, t0.Add(time.Hour), out.Record.NextAvailableAt)
	assert.Equal(t, 1, h.Kits().Len())
}

func TestMessage(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want string
	}{
		{ledger.ErrNotAvailable, "kit.error.cooldown"},
		{ErrInsufficientFunds, "kit.error.insufficient_funds"},
		{economy.ErrInsufficientFunds, "kit.error.insufficient_funds"},
		{errors.Join(ErrReconciliationRequired, ErrPersistenceFailed), "kit.error.reconciliation"},
		{errors.New("other"), "kit.error.internal"},
	} {
		assert.Equal(t, tc.want, Message(tc.err), tc.err.Error())
	}
}
