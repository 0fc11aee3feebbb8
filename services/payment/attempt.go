package payment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paytr-payment-api/models"
	"paytr-payment-api/services/payment/paytr"
)

const recordTimeout = 5 * time.Second

// Attempt follows CREATED -> SIGNED -> SUBMITTED -> SUCCEEDED|FAILED for one
// merchant oid. It is owned by a single request.
type Attempt struct {
	record   models.AttemptRecord
	recorder AttemptRecorder
	log      *zap.Logger
	now      func() time.Time
}

func (s *Service) newAttempt(ctx context.Context, op paytr.OperationKind, oid string, amount int64, currency string, simulated bool) *Attempt {
	a := &Attempt{
		record: models.AttemptRecord{
			MerchantOID: oid,
			Operation:   string(op),
			State:       models.AttemptCreated,
			Simulated:   simulated,
			Amount:      amount,
			Currency:    currency,
		},
		recorder: s.recorder,
		log:      s.log,
		now:      s.now,
	}
	a.report(ctx)
	return a
}

func (a *Attempt) State() models.AttemptState {
	return a.record.State
}

// Transition moves the attempt to state. err, when set, is classified into the
// recorded error kind.
func (a *Attempt) Transition(ctx context.Context, to models.AttemptState, err error) error {
	if !a.record.State.CanTransition(to, a.record.Simulated) {
		return fmt.Errorf("attempt %s: illegal transition %s -> %s", a.record.MerchantOID, a.record.State, to)
	}
	a.record.State = to
	if err != nil {
		a.record.ErrorKind = string(paytr.KindOf(err))
	}
	a.report(ctx)
	return nil
}

// fail moves to FAILED unless the attempt already ended.
func (a *Attempt) fail(ctx context.Context, err error) {
	if a.record.State.IsTerminal() {
		return
	}
	if terr := a.Transition(ctx, models.AttemptFailed, err); terr != nil {
		a.log.Warn("attempt transition rejected", zap.Error(terr))
	}
}

// unresolved records err on a SUBMITTED attempt without ending it. Attempts in
// any other state fail.
func (a *Attempt) unresolved(ctx context.Context, err error) {
	if a.record.State != models.AttemptSubmitted {
		a.fail(ctx, err)
		return
	}
	a.record.ErrorKind = string(paytr.KindOf(err))
	a.report(ctx)
}

func (a *Attempt) advance(ctx context.Context, to models.AttemptState) {
	if err := a.Transition(ctx, to, nil); err != nil {
		a.log.Warn("attempt transition rejected", zap.Error(err))
	}
}

func (a *Attempt) report(ctx context.Context) {
	a.record.UpdatedAt = a.now()
	a.log.Debug("payment attempt transition",
		zap.String("merchant_oid", a.record.MerchantOID),
		zap.String("operation", a.record.Operation),
		zap.Stringer("state", a.record.State),
		zap.Bool("simulated", a.record.Simulated),
	)
	if a.recorder == nil {
		return
	}

	// The journal write must survive a cancelled caller.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := a.recorder.RecordTransition(rctx, a.record); err != nil {
		a.log.Warn("failed to record attempt transition",
			zap.String("merchant_oid", a.record.MerchantOID),
			zap.Stringer("state", a.record.State),
			zap.Error(err),
		)
	}
}
