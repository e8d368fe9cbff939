package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/blinktext/internal/cache"
	"github.com/blinktext/internal/models"
	"github.com/blinktext/internal/store"
)

func newTestService(now *time.Time) *Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts := Options{
		Secret:      "test-secret",
		TokenExpiry: time.Hour,
		BcryptCost:  bcrypt.MinCost,
		Revocations: cache.NewMemory(),
		Logger:      logger,
	}
	if now != nil {
		opts.Now = func() time.Time { return *now }
	}
	return NewService(store.NewMemory().Users(), opts)
}

func register(t *testing.T, s *Service) *models.UserLoginResponse {
	t.Helper()
	res, err := s.Register(context.Background(), models.UserCreateRequest{
		Name:     " Ada Lovelace ",
		Email:    "Ada@Example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	return res
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()

	res := register(t, s)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "Ada Lovelace", res.User.Name)
	assert.Equal(t, "ada@example.com", res.User.Email)

	_, err := s.Register(ctx, models.UserCreateRequest{Name: "Dup", Email: "ada@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, ErrUserExists)

	login, err := s.Login(ctx, models.UserLoginRequest{Email: "ADA@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	_, err = s.Login(ctx, models.UserLoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, models.UserLoginRequest{Email: "nobody@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateToken(t *testing.T) {
	now := time.Now()
	s := newTestService(&now)
	ctx := context.Background()
	res := register(t, s)

	claims, err := s.ValidateToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID.String(), claims.UserID)
	assert.NotEmpty(t, claims.ID)

	user, err := s.GetUserByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, res.User.Email, user.Email)

	_, err = s.ValidateToken(ctx, res.Token+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	now = now.Add(2 * time.Hour)
	_, err = s.ValidateToken(ctx, res.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateToken_RejectsOtherAlgorithms(t *testing.T) {
	s := newTestService(nil)
	claims := Claims{
		UserID: "0b7c7a5e-4b1e-4a49-9f3f-6a8b5d7f0d11",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	s := newTestService(nil)
	ctx := context.Background()
	res := register(t, s)

	claims, err := s.ValidateToken(ctx, res.Token)
	require.NoError(t, err)
	require.NoError(t, s.Revoke(ctx, claims))

	_, err = s.ValidateToken(ctx, res.Token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	other, err := s.Login(ctx, models.UserLoginRequest{Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)
	_, err = s.ValidateToken(ctx, other.Token)
	assert.NoError(t, err, "revocation is per token, not per user")
}
