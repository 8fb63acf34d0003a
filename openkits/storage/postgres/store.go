// Package postgres implements a kit record store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage/migrations"
)

// Config configures a Store.
type Config struct {
	DSN string
	// MaxConns is the hard limit of open connections.
	MaxConns int32
	// AcquireTimeout bounds how long a call waits for a free connection.
	AcquireTimeout time.Duration
}

// Store is a storage.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	conf Config
}

// Open connects to PostgreSQL, applies pending migrations and returns a Store.
func Open(ctx context.Context, log *slog.Logger, conf Config) (*Store, error) {
	pc, err := pgxpool.ParseConfig(conf.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if conf.MaxConns > 0 {
		pc.MaxConns = conf.MaxConns
	}
	conf.MaxConns = pc.MaxConns
	if conf.AcquireTimeout <= 0 {
		conf.AcquireTimeout = 2 * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = migrations.Up(ctx, log, db, goose.DialectPostgres)
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, conf: conf}, nil
}

// MaxConns returns the size of the connection pool.
func (s *Store) MaxConns() int {
	return int(s.conf.MaxConns)
}

// LoadRecord ...
func (s *Store) LoadRecord(ctx context.Context, k ledger.Key) (ledger.Record, bool, error) {
	conn, err := s.acquire(ctx, "load")
	if err != nil {
		return ledger.Record{}, false, err
	}
	defer conn.Release()

	var (
		next int64
		rec  = ledger.Record{Player: k.Player, Kit: k.Kit}
	)
	err = conn.QueryRow(ctx,
		`SELECT next_available_at, times_claimed, unlocked, version
		 FROM openkits_records WHERE player_id = $1 AND kit_id = $2`,
		k.Player.String(), k.Kit,
	).Scan(&next, &rec.TimesClaimed, &rec.Unlocked, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Record{}, false, nil
	}
	if err != nil {
		return ledger.Record{}, false, classify("load", fmt.Errorf("querying record: %w", err))
	}
	rec.NextAvailableAt = ledger.FromMillis(next)
	return rec, true, nil
}

// SaveRecord ...
func (s *Store) SaveRecord(ctx context.Context, r ledger.Record) error {
	conn, err := s.acquire(ctx, "save")
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`INSERT INTO openkits_records (player_id, kit_id, next_available_at, times_claimed, unlocked, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (player_id, kit_id) DO UPDATE SET
		     next_available_at = EXCLUDED.next_available_at,
		     times_claimed = EXCLUDED.times_claimed,
		     unlocked = EXCLUDED.unlocked,
		     version = EXCLUDED.version,
		     updated_at = EXCLUDED.updated_at
		 WHERE openkits_records.version < EXCLUDED.version`,
		r.Player.String(), r.Kit, ledger.Millis(r.NextAvailableAt), r.TimesClaimed, r.Unlocked, r.Version,
	)
	if err != nil {
		return classify("save", fmt.Errorf("upserting record: %w", err))
	}
	return nil
}

// LoadAllForPlayer ...
func (s *Store) LoadAllForPlayer(ctx context.Context, player uuid.UUID) ([]ledger.Record, error) {
	conn, err := s.acquire(ctx, "load all")
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx,
		`SELECT kit_id, next_available_at, times_claimed, unlocked, version
		 FROM openkits_records WHERE player_id = $1 ORDER BY kit_id`,
		player.String(),
	)
	if err != nil {
		return nil, classify("load all", fmt.Errorf("querying records: %w", err))
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		var (
			next int64
			rec  = ledger.Record{Player: player}
		)
		if err := rows.Scan(&rec.Kit, &next, &rec.TimesClaimed, &rec.Unlocked, &rec.Version); err != nil {
			return nil, classify("load all", fmt.Errorf("scanning record: %w", err))
		}
		rec.NextAvailableAt = ledger.FromMillis(next)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load all", fmt.Errorf("iterating records: %w", err))
	}
	return records, nil
}

// DeleteRecords ...
func (s *Store) DeleteRecords(ctx context.Context, player uuid.UUID, kits ...string) error {
	conn, err := s.acquire(ctx, "delete")
	if err != nil {
		return err
	}
	defer conn.Release()

	if len(kits) == 0 {
		_, err = conn.Exec(ctx, `DELETE FROM openkits_records WHERE player_id = $1`, player.String())
	} else {
		_, err = conn.Exec(ctx, `DELETE FROM openkits_records WHERE player_id = $1 AND kit_id = ANY($2)`, player.String(), kits)
	}
	if err != nil {
		return classify("delete", fmt.Errorf("deleting records: %w", err))
	}
	return nil
}

// Close ...
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// acquire takes a connection from the pool, failing as Busy if none frees up within the acquire
// timeout.
func (s *Store) acquire(ctx context.Context, op string) (*pgxpool.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, s.conf.AcquireTimeout)
	defer cancel()

	conn, err := s.pool.Acquire(actx)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, storage.Wrap(storage.Busy, op, fmt.Errorf("acquiring connection: %w", err))
	}
	return nil, classify(op, fmt.Errorf("acquiring connection: %w", err))
}

// busyCodes are the SQLSTATE codes of errors caused by contention.
var busyCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"53300": {}, // too_many_connections
}

// classify maps a pgx error to a storage error kind.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := busyCodes[pgErr.Code]; ok {
			return storage.Wrap(storage.Busy, op, err)
		}
		if pgErr.Code == "57014" { // query_canceled, raised by statement_timeout
			return storage.Wrap(storage.Timeout, op, err)
		}
	}
	if pgconn.Timeout(err) {
		return storage.Wrap(storage.Timeout, op, err)
	}
	return storage.Classify(op, err)
}
