package paytr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the caller-facing error category. The set is closed.
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindSignature  Kind = "SIGNATURE_ERROR"
	KindEnv        Kind = "ENV_ERROR"
	KindNetwork    Kind = "NETWORK_ERROR"
	KindGateway    Kind = "GATEWAY_ERROR"
)

// ErrUnconfigured is returned (as ENV_ERROR) when a live gateway is required
// but the credentials still hold placeholder values.
var ErrUnconfigured = errors.New("gateway credentials are not configured")

// GatewayError is the only error type the payment layer hands back to callers.
type GatewayError struct {
	Kind Kind
	// RawMessage keeps the remote text for diagnostics. Do not show it to end users.
	RawMessage string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil && e.RawMessage != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.RawMessage, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.RawMessage != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.RawMessage)
	}
	return string(e.Kind)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether a NETWORK_ERROR came from a deadline or a
// cancelled caller context.
func (e *GatewayError) IsTimeout() bool {
	return e.Kind == KindNetwork &&
		(errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, context.Canceled))
}

func newError(kind Kind, raw string, err error) *GatewayError {
	return &GatewayError{Kind: kind, RawMessage: raw, Err: err}
}

func ValidationError(err error) *GatewayError {
	return newError(KindValidation, "", err)
}

func SignatureError(err error) *GatewayError {
	return newError(KindSignature, "", err)
}

func NetworkError(raw string, err error) *GatewayError {
	return newError(KindNetwork, raw, err)
}

func GatewayFailure(raw string) *GatewayError {
	return newError(KindGateway, raw, nil)
}

func EnvError() *GatewayError {
	return newError(KindEnv, "", ErrUnconfigured)
}

// KindOf classifies err. Errors that did not come from this package count as
// gateway failures so callers always get one of the stable kinds.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindGateway
}

// UserMessage is the short text that may be shown to an end user.
func (k Kind) UserMessage() string {
	switch k {
	case KindValidation:
		return "Please check your card details and try again."
	case KindNetwork:
		return "The payment service did not respond in time. Please try again."
	case KindEnv:
		return "Payments are temporarily unavailable."
	case KindSignature:
		return "The payment could not be prepared. Please contact support."
	default:
		return "The payment was declined by the payment provider."
	}
}
