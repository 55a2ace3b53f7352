package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/calendar2youtube/internal/models"
	appErrors "github.com/noah-isme/calendar2youtube/pkg/errors"
)

func newTestAuthService() *AuthService {
	return NewAuthService(nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "calendar2youtube",
	})
}

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := newTestAuthService()

	issued, err := svc.IssueToken("ops", models.RoleOperator, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), issued.ExpiresIn)

	claims, err := svc.ValidateToken(issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, models.RoleOperator, claims.Role)
	assert.Equal(t, "calendar2youtube", claims.Issuer)
}

func TestAuthServiceIssueValidation(t *testing.T) {
	svc := newTestAuthService()

	_, err := svc.IssueToken("", models.RoleOperator, 0)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.IssueToken("ops", models.OperatorRole("root"), 0)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	svc := newTestAuthService()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	issued, err := svc.IssueToken("ops", models.RoleViewer, time.Minute)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(issued.AccessToken)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceRejectsForeignSignature(t *testing.T) {
	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other", Issuer: "calendar2youtube"})
	issued, err := other.IssueToken("ops", models.RoleOperator, 0)
	require.NoError(t, err)

	_, err = newTestAuthService().ValidateToken(issued.AccessToken)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceRejectsWrongIssuer(t *testing.T) {
	claims := &models.JWTClaims{
		Role: models.RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = newTestAuthService().ValidateToken(signed)
	assert.Error(t, err)
}
