package payment

import (
	"context"

	"paytr-payment-api/models"
	"paytr-payment-api/services/payment/paytr"
)

// Gateway is the caller-facing surface of the payment layer.
type Gateway interface {
	Charge(ctx context.Context, req paytr.ChargeRequest) (*paytr.ChargeResult, error)
	CreateLink(ctx context.Context, req paytr.LinkRequest) (*paytr.LinkResult, error)
	CheckStatus(ctx context.Context, merchantOID string) (*paytr.StatusResult, error)
}

// AttemptRecorder receives every attempt state transition. Failures are logged
// and never fail the payment.
type AttemptRecorder interface {
	RecordTransition(ctx context.Context, rec models.AttemptRecord) error
}
