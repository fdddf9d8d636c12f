package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Sentinel errors shared by the transactional repositories.
var (
	// ErrStaleState means a compare-and-set found the row in a different state.
	ErrStaleState = errors.New("repository: row state changed")
	// ErrSlotUnavailable means the slot increment matched no row.
	ErrSlotUnavailable = errors.New("repository: time slot full or inactive")
	// ErrDuplicateRegistration means (event_id, user_id) already exists.
	ErrDuplicateRegistration = errors.New("repository: duplicate registration")
	// ErrDuplicateOrderNumber means the generated order number collided.
	ErrDuplicateOrderNumber = errors.New("repository: duplicate order number")
	// ErrEventFull means the event reached max_participants.
	ErrEventFull = errors.New("repository: event full")
	// ErrInUse means other rows still reference the row being deleted.
	ErrInUse = errors.New("repository: row still referenced")
	// ErrAlreadyCheckedIn means the registration already has an attendance row.
	ErrAlreadyCheckedIn = errors.New("repository: already checked in")
)

var errNotFound = sql.ErrNoRows

// withTx runs fn inside a transaction, rolling back when fn fails.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func checkAffected(res interface{ RowsAffected() (int64, error) }, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
