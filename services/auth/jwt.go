package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"paytr-payment-api/models"
)

const (
	AccessTokenDuration = time.Hour
	tokenTypeAccess     = "access"
)

var (
	ErrTokenExpired  = errors.New("token expired")
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("jwt secret not configured")
)

// JWTService issues and checks HS256 bearer tokens for API clients.
type JWTService struct {
	secretKey []byte
	issuer    string
	now       func() time.Time
}

type Claims struct {
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes,omitempty"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

func NewJWTService(secretKey, issuer string) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		now:       time.Now,
	}
}

// GenerateToken signs an access token for clientID.
func (j *JWTService) GenerateToken(clientID string, scopes []string, duration time.Duration) (string, error) {
	if len(j.secretKey) == 0 {
		return "", ErrMissingSecret
	}
	if duration <= 0 {
		duration = AccessTokenDuration
	}
	now := j.now()
	claims := Claims{
		ClientID:  clientID,
		Scopes:    scopes,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secretKey)
}

// ValidateToken checks signature, expiry, issuer and token type.
func (j *JWTService) ValidateToken(tokenString string) (*models.Principal, error) {
	if len(j.secretKey) == 0 {
		return nil, ErrMissingSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(j.issuer), jwt.WithTimeFunc(j.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenTypeAccess || claims.ClientID == "" {
		return nil, ErrInvalidToken
	}

	return &models.Principal{
		ClientID: claims.ClientID,
		Scopes:   claims.Scopes,
	}, nil
}
