package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by operations submitted after the Gateway was closed.
var ErrClosed = errors.New("storage gateway closed")

// Result is the outcome of an asynchronous storage operation.
type Result[T any] struct {
	Value T
	Err   error
}

// Future delivers the Result of an asynchronous storage operation exactly once. Futures are buffered,
// so a Future that is never read does not leak the worker that completes it.
type Future[T any] <-chan Result[T]

// Wait blocks until the operation completes or the context is done.
func (f Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case r := <-f:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Lookup is the result of loading a single record.
type Lookup struct {
	Record ledger.Record
	Found  bool
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// Workers is the maximum number of concurrent store calls. It should match the size of the
	// store's connection pool.
	Workers int
	// AcquireTimeout bounds how long an operation waits for a free worker before failing as Busy.
	AcquireTimeout time.Duration
	// OperationTimeout bounds a single store call.
	OperationTimeout time.Duration
}

// DefaultGatewayConfig ...
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Workers:          8,
		AcquireTimeout:   2 * time.Second,
		OperationTimeout: 5 * time.Second,
	}
}

// Gateway runs store operations off the caller's goroutine. Every method returns immediately with a
// Future that is completed by a worker.
type Gateway struct {
	log   *slog.Logger
	store Store
	conf  GatewayConfig

	sem   *semaphore.Weighted
	loads singleflight.Group

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewGateway returns a Gateway running operations against the store passed.
func NewGateway(log *slog.Logger, store Store, conf GatewayConfig) *Gateway {
	def := DefaultGatewayConfig()
	if conf.Workers <= 0 {
		conf.Workers = def.Workers
	}
	if conf.AcquireTimeout <= 0 {
		conf.AcquireTimeout = def.AcquireTimeout
	}
	if conf.OperationTimeout <= 0 {
		conf.OperationTimeout = def.OperationTimeout
	}
	return &Gateway{
		log:   log,
		store: store,
		conf:  conf,
		sem:   semaphore.NewWeighted(int64(conf.Workers)),
	}
}

// Save durably writes a record.
func (g *Gateway) Save(r ledger.Record) Future[struct{}] {
	return submit(g, "save", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.store.SaveRecord(ctx, r)
	})
}

// Load reads the record stored for a key.
func (g *Gateway) Load(k ledger.Key) Future[Lookup] {
	return submit(g, "load", func(ctx context.Context) (Lookup, error) {
		r, ok, err := g.store.LoadRecord(ctx, k)
		return Lookup{Record: r, Found: ok}, err
	})
}

// LoadAll reads every record stored for a player. Concurrent loads for the same player share a
// single store call.
func (g *Gateway) LoadAll(player uuid.UUID) Future[[]ledger.Record] {
	return submit(g, "load all", func(ctx context.Context) ([]ledger.Record, error) {
		v, err, _ := g.loads.Do(player.String(), func() (any, error) {
			return g.store.LoadAllForPlayer(ctx, player)
		})
		if err != nil {
			return nil, err
		}
		return v.([]ledger.Record), nil
	})
}

// Delete removes the records of a player for the kits passed, or all of them if none are passed.
func (g *Gateway) Delete(player uuid.UUID, kits ...string) Future[struct{}] {
	return submit(g, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.store.DeleteRecords(ctx, player, kits...)
	})
}

// Close waits for submitted operations to complete and closes the store. Operations submitted after
// Close fail with ErrClosed.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	g.wg.Wait()
	return g.store.Close()
}

// submit runs fn on a worker and returns a Future for its result.
func submit[T any](g *Gateway, op string, fn func(ctx context.Context) (T, error)) Future[T] {
	ch := make(chan Result[T], 1)

	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		ch <- Result[T]{Err: Wrap(Fatal, op, ErrClosed)}
		return ch
	}
	g.wg.Add(1)
	g.mu.RUnlock()

	go func() {
		defer g.wg.Done()
		ch <- run(g, op, fn)
	}()
	return ch
}

// run acquires a worker slot and calls fn with the operation timeout applied.
func run[T any](g *Gateway, op string, fn func(ctx context.Context) (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("storage operation panicked", "op", op, "panic", r)
			res = Result[T]{Err: Wrap(Fatal, op, fmt.Errorf("panic: %v", r))}
		}
	}()

	actx, cancel := context.WithTimeout(context.Background(), g.conf.AcquireTimeout)
	err := g.sem.Acquire(actx, 1)
	cancel()
	if err != nil {
		return Result[T]{Err: Wrap(Busy, op, fmt.Errorf("no free worker: %w", err))}
	}
	defer g.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), g.conf.OperationTimeout)
	defer cancel()

	start := time.Now()
	v, err := fn(ctx)
	if err != nil {
		err = Classify(op, err)
		g.log.Debug("storage operation failed", "op", op, "kind", KindOf(err), "duration", time.Since(start), "error", err)
		return Result[T]{Err: err}
	}
	return Result[T]{Value: v}
}
