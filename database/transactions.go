package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paytr-payment-api/models"
)

type Transaction struct {
	tx *sql.Tx
}

func (t *Transaction) Commit() error {
	return t.tx.Commit()
}

func (t *Transaction) Rollback() error {
	return t.tx.Rollback()
}

// lockAttemptState returns the stored state of oid and holds its row lock
// until the transaction ends. found is false when no row exists yet.
func (t *Transaction) lockAttemptState(ctx context.Context, oid string) (state models.AttemptState, found bool, err error) {
	var raw string
	err = t.tx.QueryRowContext(ctx,
		`SELECT state FROM payment_attempts WHERE merchant_oid = ? FOR UPDATE`, oid).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("error locking attempt %s: %v", oid, err)
	}
	state, ok := models.ParseAttemptState(raw)
	if !ok {
		return 0, false, fmt.Errorf("attempt %s has unknown state %q", oid, raw)
	}
	return state, true, nil
}

func (t *Transaction) upsertAttempt(ctx context.Context, rec models.AttemptRecord) error {
	_, err := t.tx.ExecContext(ctx, `
        INSERT INTO payment_attempts (
            merchant_oid, operation, state, simulated,
            amount, currency, error_kind, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
            state = VALUES(state),
            error_kind = VALUES(error_kind),
            updated_at = VALUES(updated_at)
    `,
		rec.MerchantOID, rec.Operation, rec.State.String(), rec.Simulated,
		rec.Amount, rec.Currency, rec.ErrorKind, rec.UpdatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving attempt %s: %v", rec.MerchantOID, err)
	}
	return nil
}
