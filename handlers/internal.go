package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"paytr-payment-api/logger"
	"paytr-payment-api/models"
	"paytr-payment-api/queue"
	"paytr-payment-api/utils"
)

type TokenIssuer interface {
	GenerateToken(clientID string, scopes []string, duration time.Duration) (string, error)
}

// JobRetrier puts a job from the failed list back on the queue.
type JobRetrier interface {
	RetryJob(ctx context.Context, jobID string) error
}

// InternalHandler serves endpoints for trusted back-office systems.
type InternalHandler struct {
	issuer         TokenIssuer
	retrier        JobRetrier
	internalSecret string
	log            *zap.Logger
}

// NewInternalHandler builds the handler. retrier may be nil when no queue is
// configured.
func NewInternalHandler(issuer TokenIssuer, retrier JobRetrier, internalSecret string) *InternalHandler {
	return &InternalHandler{
		issuer:         issuer,
		retrier:        retrier,
		internalSecret: internalSecret,
		log:            logger.Named("internal_handler"),
	}
}

// RequireInternalSecret checks X-Internal-Secret. With no secret configured
// every request is refused.
func (h *InternalHandler) RequireInternalSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("X-Internal-Secret")
		if h.internalSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.internalSecret)) != 1 {
			h.log.Warn("invalid or missing internal secret", zap.String("remote", r.RemoteAddr))
			utils.SendErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	}
}

type issueTokenRequest struct {
	ClientID        string   `json:"client_id"`
	Scopes          []string `json:"scopes"`
	DurationSeconds int      `json:"duration_seconds"`
}

// IssueToken mints a bearer token for an API client.
func (h *InternalHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ClientID == "" {
		utils.SendErrorResponse(w, http.StatusBadRequest, "client_id is required")
		return
	}
	for _, scope := range req.Scopes {
		if !models.IsKnownScope(scope) {
			utils.SendErrorResponse(w, http.StatusBadRequest, "unknown scope: "+scope)
			return
		}
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	token, err := h.issuer.GenerateToken(req.ClientID, req.Scopes, duration)
	if err != nil {
		h.log.Error("failed to issue token", zap.String("client_id", req.ClientID), zap.Error(err))
		utils.SendErrorResponse(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	h.log.Info("issued api token", zap.String("client_id", req.ClientID), zap.Strings("scopes", req.Scopes))
	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: "Token issued",
		Data:    map[string]string{"token": token, "token_type": "Bearer"},
	})
}

// RetryFailedJob requeues a status job that exhausted its retries.
func (h *InternalHandler) RetryFailedJob(w http.ResponseWriter, r *http.Request) {
	if h.retrier == nil {
		utils.SendErrorResponse(w, http.StatusServiceUnavailable, "Job queue is not configured")
		return
	}
	jobID := mux.Vars(r)["jobId"]
	if jobID == "" {
		utils.SendErrorResponse(w, http.StatusBadRequest, "job id is required")
		return
	}

	if err := h.retrier.RetryJob(r.Context(), jobID); err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			utils.SendErrorResponse(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error("failed to retry job", zap.String("job_id", jobID), zap.Error(err))
		utils.SendErrorResponse(w, http.StatusInternalServerError, "Failed to retry job")
		return
	}

	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: "Job requeued",
		Data:    map[string]string{"job_id": jobID},
	})
}
