package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"paytr-payment-api/logger"
	"paytr-payment-api/middleware"
	"paytr-payment-api/models"
	"paytr-payment-api/queue"
	"paytr-payment-api/services/payment"
	"paytr-payment-api/services/payment/card"
	"paytr-payment-api/services/payment/paytr"
	"paytr-payment-api/utils"
)

const maxBodyBytes = 64 << 10

// StatusWatcher schedules background status polling for a merchant oid.
type StatusWatcher interface {
	EnqueueStatusCheck(ctx context.Context, merchantOID string) (*queue.Job, error)
}

type PaymentHandler struct {
	gateway payment.Gateway
	watcher StatusWatcher
	log     *zap.Logger
}

// NewPaymentHandler wires the HTTP surface. watcher may be nil, in which case
// the watch endpoint answers 503.
func NewPaymentHandler(gateway payment.Gateway, watcher StatusWatcher) (*PaymentHandler, error) {
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	return &PaymentHandler{
		gateway: gateway,
		watcher: watcher,
		log:     logger.Named("payment_handler"),
	}, nil
}

// Charge handles POST /api/payments/charge.
func (h *PaymentHandler) Charge(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req models.ChargePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log.Info("invalid charge body", zap.String("request_id", requestID), zap.Error(err))
		sendError(w, requestID, http.StatusBadRequest, string(paytr.KindValidation), "Invalid request body")
		return
	}

	h.log.Info("processing charge",
		zap.String("request_id", requestID),
		zap.String("card", card.MaskPAN(req.CardNumber)),
		zap.Int64("amount", req.Amount),
	)

	res, err := h.gateway.Charge(r.Context(), toChargeRequest(req))
	if err != nil {
		h.sendGatewayError(w, requestID, "charge", err)
		return
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status:    "success",
		Message:   "Payment approved",
		RequestID: requestID,
		Data:      res,
	})
}

// CreateLink handles POST /api/payments/link.
func (h *PaymentHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req models.LinkPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log.Info("invalid link body", zap.String("request_id", requestID), zap.Error(err))
		sendError(w, requestID, http.StatusBadRequest, string(paytr.KindValidation), "Invalid request body")
		return
	}

	res, err := h.gateway.CreateLink(r.Context(), toLinkRequest(req))
	if err != nil {
		h.sendGatewayError(w, requestID, "link", err)
		return
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status:    "success",
		Message:   "Payment link created",
		RequestID: requestID,
		Data:      res,
	})
}

// Status handles GET /api/payments/{merchantOid}/status.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	oid := mux.Vars(r)["merchantOid"]

	res, err := h.gateway.CheckStatus(r.Context(), oid)
	if err != nil {
		h.sendGatewayError(w, requestID, "status", err)
		return
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status:    "success",
		Message:   string(res.Status),
		RequestID: requestID,
		Data:      res,
	})
}

// Watch handles POST /api/payments/{merchantOid}/watch.
func (h *PaymentHandler) Watch(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	oid := mux.Vars(r)["merchantOid"]

	if h.watcher == nil {
		sendError(w, requestID, http.StatusServiceUnavailable, "", "Status polling is not available")
		return
	}
	if err := paytr.ValidateMerchantOID(oid); err != nil {
		sendError(w, requestID, http.StatusBadRequest, string(paytr.KindValidation), paytr.KindValidation.UserMessage())
		return
	}

	job, err := h.watcher.EnqueueStatusCheck(r.Context(), oid)
	if err != nil {
		h.log.Error("failed to enqueue status check",
			zap.String("request_id", requestID), zap.String("merchant_oid", oid), zap.Error(err))
		sendError(w, requestID, http.StatusServiceUnavailable, "", "Status polling is not available")
		return
	}

	utils.SendJSON(w, http.StatusAccepted, models.APIResponse{
		Status:    "success",
		Message:   "Status polling scheduled",
		RequestID: requestID,
		Data:      models.WatchResponse{JobID: job.ID, MerchantOID: oid},
	})
}

// StatusForKind maps a gateway error kind to an HTTP status.
func StatusForKind(kind paytr.Kind) int {
	switch kind {
	case paytr.KindValidation:
		return http.StatusBadRequest
	case paytr.KindEnv:
		return http.StatusServiceUnavailable
	case paytr.KindNetwork:
		return http.StatusGatewayTimeout
	case paytr.KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sendGatewayError logs the raw gateway text and answers with the kind's
// user message only.
func (h *PaymentHandler) sendGatewayError(w http.ResponseWriter, requestID, op string, err error) {
	kind := paytr.KindOf(err)
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("operation", op),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	var gerr *paytr.GatewayError
	if errors.As(err, &gerr) && gerr.RawMessage != "" {
		fields = append(fields, zap.String("raw_message", gerr.RawMessage))
	}

	status := StatusForKind(kind)
	if status >= 500 {
		h.log.Error("payment operation failed", fields...)
	} else {
		h.log.Info("payment operation rejected", fields...)
	}
	sendError(w, requestID, status, string(kind), kind.UserMessage())
}

func sendError(w http.ResponseWriter, requestID string, status int, code, message string) {
	utils.SendJSON(w, status, models.APIResponse{
		Status:    "error",
		Message:   message,
		Code:      code,
		RequestID: requestID,
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func toBasket(items []models.BasketItem) paytr.Basket {
	basket := make(paytr.Basket, 0, len(items))
	for _, it := range items {
		basket = append(basket, paytr.BasketItem{
			Name:            it.Name,
			PriceMinorUnits: it.Price,
			Quantity:        it.Quantity,
		})
	}
	return basket
}

func toCustomer(c models.CustomerInfo) paytr.Customer {
	return paytr.Customer{Email: c.Email, Name: c.Name, Address: c.Address, Phone: c.Phone}
}

func toChargeRequest(req models.ChargePaymentRequest) paytr.ChargeRequest {
	return paytr.ChargeRequest{
		Card: card.Info{
			Number:      req.CardNumber,
			Holder:      req.CardHolder,
			ExpiryMonth: req.ExpiryMonth,
			ExpiryYear:  req.ExpiryYear,
			CVV:         req.CVV,
		},
		AmountMinorUnits: req.Amount,
		Currency:         req.Currency,
		Customer:         toCustomer(req.Customer),
		Basket:           toBasket(req.Basket),
		MerchantOID:      req.MerchantOID,
		InstallmentCount: req.InstallmentCount,
		Non3D:            req.Non3D,
	}
}

func toLinkRequest(req models.LinkPaymentRequest) paytr.LinkRequest {
	return paytr.LinkRequest{
		AmountMinorUnits: req.Amount,
		Currency:         req.Currency,
		Customer:         toCustomer(req.Customer),
		Basket:           toBasket(req.Basket),
		MerchantOID:      req.MerchantOID,
		TimeoutSeconds:   req.TimeoutSeconds,
	}
}
