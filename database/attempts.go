package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paytr-payment-api/models"
)

var (
	ErrAttemptNotFound = errors.New("payment attempt not found")
	// ErrStaleTransition is returned when a stored attempt is already past
	// the reported state.
	ErrStaleTransition = errors.New("stale attempt transition")
)

// AttemptJournal persists payment attempt transitions to payment_attempts.
type AttemptJournal struct {
	conn *Connection
}

func NewAttemptJournal(conn *Connection) *AttemptJournal {
	return &AttemptJournal{conn: conn}
}

// RecordTransition stores rec unless the row already sits in a state rec
// cannot follow. Repeating the current state is accepted.
func (j *AttemptJournal) RecordTransition(ctx context.Context, rec models.AttemptRecord) error {
	if rec.MerchantOID == "" {
		return fmt.Errorf("attempt without merchant oid")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	tx, err := j.conn.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, found, err := tx.lockAttemptState(ctx, rec.MerchantOID)
	if err != nil {
		return err
	}
	if found && current != rec.State && !current.CanTransition(rec.State, rec.Simulated) {
		j.conn.log.Warn("ignoring out of order attempt transition",
			zap.String("merchant_oid", rec.MerchantOID),
			zap.Stringer("stored", current),
			zap.Stringer("reported", rec.State),
		)
		return fmt.Errorf("%w: %s is %s, got %s", ErrStaleTransition, rec.MerchantOID, current, rec.State)
	}

	if err := tx.upsertAttempt(ctx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

const attemptColumns = `merchant_oid, operation, state, simulated, amount, currency, error_kind, updated_at`

func (j *AttemptJournal) GetAttempt(ctx context.Context, merchantOID string) (*models.AttemptRecord, error) {
	row := j.conn.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE merchant_oid = ?`, merchantOID)
	rec, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting attempt %s: %v", merchantOID, err)
	}
	return rec, nil
}

// PendingAttempts lists live attempts still waiting in SUBMITTED, oldest first.
func (j *AttemptJournal) PendingAttempts(ctx context.Context, limit int) ([]models.AttemptRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.conn.db.QueryContext(ctx, `
        SELECT `+attemptColumns+`
        FROM payment_attempts
        WHERE state = ? AND simulated = 0
        ORDER BY updated_at ASC
        LIMIT ?
    `, models.AttemptSubmitted.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("error listing pending attempts: %v", err)
	}
	defer rows.Close()

	var out []models.AttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning attempt: %v", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (*models.AttemptRecord, error) {
	var (
		rec   models.AttemptRecord
		state string
	)
	if err := r.Scan(&rec.MerchantOID, &rec.Operation, &state, &rec.Simulated,
		&rec.Amount, &rec.Currency, &rec.ErrorKind, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	s, ok := models.ParseAttemptState(state)
	if !ok {
		return nil, fmt.Errorf("unknown attempt state %q", state)
	}
	rec.State = s
	return &rec, nil
}
