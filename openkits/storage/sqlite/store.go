// Package sqlite implements a kit record store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Config configures a Store.
type Config struct {
	Path string
	// MaxConns is the number of connections kept open. SQLite serialises writers, so a small pool
	// is enough.
	MaxConns int
	// BusyTimeoutMillis is how long SQLite itself retries a locked database before failing.
	BusyTimeoutMillis int
}

// Store is a storage.Store backed by SQLite.
type Store struct {
	db   *sql.DB
	conf Config
}

// Open opens or creates the database file, applies pending migrations and returns a Store.
func Open(ctx context.Context, log *slog.Logger, conf Config) (*Store, error) {
	if strings.TrimSpace(conf.Path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if conf.MaxConns <= 0 {
		conf.MaxConns = 4
	}
	if conf.BusyTimeoutMillis <= 0 {
		conf.BusyTimeoutMillis = 1000
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		filepath.Clean(conf.Path), conf.BusyTimeoutMillis)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(conf.MaxConns)
	db.SetMaxIdleConns(conf.MaxConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrations.Up(ctx, log, db, goose.DialectSQLite3); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, conf: conf}, nil
}

// MaxConns returns the size of the connection pool.
func (s *Store) MaxConns() int {
	return s.conf.MaxConns
}

// LoadRecord ...
func (s *Store) LoadRecord(ctx context.Context, k ledger.Key) (ledger.Record, bool, error) {
	var (
		next int64
		rec  = ledger.Record{Player: k.Player, Kit: k.Kit}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT next_available_at, times_claimed, unlocked, version
		 FROM openkits_records WHERE player_id = ? AND kit_id = ?`,
		k.Player.String(), k.Kit,
	).Scan(&next, &rec.TimesClaimed, &rec.Unlocked, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, false, nil
	}
	if err != nil {
		return ledger.Record{}, false, classify("load", fmt.Errorf("query record: %w", err))
	}
	rec.NextAvailableAt = ledger.FromMillis(next)
	return rec, true, nil
}

// SaveRecord ...
func (s *Store) SaveRecord(ctx context.Context, r ledger.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO openkits_records (player_id, kit_id, next_available_at, times_claimed, unlocked, version, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CAST(unixepoch('subsec') * 1000 AS INTEGER))
		 ON CONFLICT (player_id, kit_id) DO UPDATE SET
		     next_available_at = excluded.next_available_at,
		     times_claimed = excluded.times_claimed,
		     unlocked = excluded.unlocked,
		     version = excluded.version,
		     updated_at = excluded.updated_at
		 WHERE openkits_records.version < excluded.version`,
		r.Player.String(), r.Kit, ledger.Millis(r.NextAvailableAt), r.TimesClaimed, r.Unlocked, r.Version,
	)
	if err != nil {
		return classify("save", fmt.Errorf("upsert record: %w", err))
	}
	return nil
}

// LoadAllForPlayer ...
func (s *Store) LoadAllForPlayer(ctx context.Context, player uuid.UUID) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kit_id, next_available_at, times_claimed, unlocked, version
		 FROM openkits_records WHERE player_id = ? ORDER BY kit_id`,
		player.String(),
	)
	if err != nil {
		return nil, classify("load all", fmt.Errorf("query records: %w", err))
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		var (
			next int64
			rec  = ledger.Record{Player: player}
		)
		if err := rows.Scan(&rec.Kit, &next, &rec.TimesClaimed, &rec.Unlocked, &rec.Version); err != nil {
			return nil, classify("load all", fmt.Errorf("scan record: %w", err))
		}
		rec.NextAvailableAt = ledger.FromMillis(next)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load all", fmt.Errorf("iterate records: %w", err))
	}
	return records, nil
}

// DeleteRecords ...
func (s *Store) DeleteRecords(ctx context.Context, player uuid.UUID, kits ...string) error {
	query := `DELETE FROM openkits_records WHERE player_id = ?`
	args := []any{player.String()}
	if len(kits) > 0 {
		query += ` AND kit_id IN (?` + strings.Repeat(", ?", len(kits)-1) + `)`
		for _, k := range kits {
			args = append(args, k)
		}
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return classify("delete", fmt.Errorf("delete records: %w", err))
	}
	return nil
}

// Close ...
func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps a SQLite error to a storage error kind.
func classify(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return storage.Wrap(storage.Busy, op, err)
		}
	}
	return storage.Classify(op, err)
}
