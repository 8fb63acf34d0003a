// Package storage provides durable persistence of kit claim records.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
)

// Store persists claim records. Implementations must be safe for concurrent use; the Gateway bounds
// the number of concurrent calls to the size of the connection pool.
type Store interface {
	// LoadRecord returns the record stored for the key. The bool is false if there is none.
	LoadRecord(ctx context.Context, k ledger.Key) (ledger.Record, bool, error)
	// SaveRecord inserts or updates a record. A stored record with a version equal to or newer than
	// the one passed is left untouched.
	SaveRecord(ctx context.Context, r ledger.Record) error
	// LoadAllForPlayer returns every record stored for a player.
	LoadAllForPlayer(ctx context.Context, player uuid.UUID) ([]ledger.Record, error)
	// DeleteRecords removes the records of a player for the kits passed, or all of the player's
	// records if no kits are passed.
	DeleteRecords(ctx context.Context, player uuid.UUID, kits ...string) error
	// Close releases the connection pool.
	Close() error
}

// Kind classifies a StorageError.
type Kind int

const (
	// Fatal errors are not expected to go away by retrying.
	Fatal Kind = iota
	// Busy means no connection was available or the database was locked.
	Busy
	// Timeout means the operation did not finish in time.
	Timeout
)

// String ...
func (k Kind) String() string {
	switch k {
	case Busy:
		return "busy"
	case Timeout:
		return "timeout"
	default:
		return "fatal"
	}
}

// StorageError is returned by every storage operation that fails.
type StorageError struct {
	Kind Kind
	Op   string
	Err  error
}

// Error ...
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap ...
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a StorageError of the given kind. A nil error stays nil and an error that already
// is a StorageError is returned as is.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a storage error, or Fatal if err is not a StorageError.
func KindOf(err error) Kind {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return Fatal
}

// IsRetryable reports whether an operation that failed with err may succeed when retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	return k == Busy || k == Timeout
}

// Classify maps context errors to Timeout and everything else to Fatal. Store implementations use it
// for errors that have no more specific classification.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(Timeout, op, err)
	}
	return Wrap(Fatal, op, err)
}
