package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paytr-payment-api/models"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("test-secret", "paytr-payment-api")

	token, err := svc.GenerateToken("shop-1", []string{models.ScopePaymentsCharge}, time.Minute)
	require.NoError(t, err)

	p, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "shop-1", p.ClientID)
	assert.Equal(t, []string{models.ScopePaymentsCharge}, p.Scopes)
}

func TestValidateToken_Rejections(t *testing.T) {
	svc := NewJWTService("test-secret", "paytr-payment-api")

	expired := NewJWTService("test-secret", "paytr-payment-api")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateToken("shop-1", nil, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(old)
	assert.ErrorIs(t, err, ErrTokenExpired)

	other, err := NewJWTService("other-secret", "paytr-payment-api").GenerateToken("shop-1", nil, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewJWTService("test-secret", "someone-else").GenerateToken("shop-1", nil, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ClientID: "shop-1", TokenType: "access"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMissingSecret(t *testing.T) {
	svc := NewJWTService("", "paytr-payment-api")
	_, err := svc.GenerateToken("shop-1", nil, time.Minute)
	assert.ErrorIs(t, err, ErrMissingSecret)
	_, err = svc.ValidateToken("x.y.z")
	assert.ErrorIs(t, err, ErrMissingSecret)
}
