package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paytr-payment-api/logger"
	"paytr-payment-api/models"
	"paytr-payment-api/services/auth"
	"paytr-payment-api/utils"
)

type contextKey string

const (
	PrincipalContextKey contextKey = "principal"
	RequestIDContextKey contextKey = "request_id"
	RequestIDHeader                = "X-Request-ID"
)

type TokenValidator interface {
	ValidateToken(token string) (*models.Principal, error)
}

var _ TokenValidator = (*auth.JWTService)(nil)

// AuthMiddleware requires a valid "Bearer <token>" header.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	log := logger.Named("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Info("missing authorization header", zap.String("remote", r.RemoteAddr))
				utils.SendErrorResponse(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Info("invalid authorization header format", zap.String("remote", r.RemoteAddr))
				utils.SendErrorResponse(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}

			principal, err := validator.ValidateToken(parts[1])
			if err != nil {
				log.Info("token validation failed", zap.String("remote", r.RemoteAddr), zap.Error(err))

				var message string
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					message = "Token expired"
				case errors.Is(err, auth.ErrInvalidToken):
					message = "Invalid token"
				default:
					message = "Authentication failed"
				}

				utils.SendErrorResponse(w, http.StatusUnauthorized, message)
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetPrincipalFromContext(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(PrincipalContextKey).(*models.Principal)
	return p
}

// RequireScope answers 403 unless the authenticated principal holds scope.
// It must run after AuthMiddleware.
func RequireScope(scope string) func(http.Handler) http.Handler {
	log := logger.Named("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipalFromContext(r.Context())
			if !p.HasScope(scope) {
				clientID := ""
				if p != nil {
					clientID = p.ClientID
				}
				log.Info("missing scope", zap.String("client_id", clientID), zap.String("scope", scope))
				utils.SendErrorResponse(w, http.StatusForbidden, "Insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware keeps an incoming X-Request-ID or mints one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), RequestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// LoggingMiddleware logs one line per request at a level chosen by status.
func LoggingMiddleware(next http.Handler) http.Handler {
	log := logger.Named("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := []zap.Field{
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Int("status", rw.statusCode),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("ip", requestIP(r)),
			zap.Duration("latency", time.Since(start)),
		}
		if p := GetPrincipalFromContext(r.Context()); p != nil {
			fields = append(fields, zap.String("client_id", p.ClientID))
		}

		switch {
		case rw.statusCode >= 500:
			log.Error("server error", fields...)
		case rw.statusCode >= 400:
			log.Warn("client error", fields...)
		default:
			log.Info("request completed", fields...)
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
