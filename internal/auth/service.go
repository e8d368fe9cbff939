package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/blinktext/internal/cache"
	"github.com/blinktext/internal/models"
)

const revokedPrefix = "revoked:"

// Claims JWT claims; ID carries the token's jti for revocation.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Options auth service settings
type Options struct {
	Secret      string
	TokenExpiry time.Duration
	BcryptCost  int
	// Revocations stores logged-out token IDs until they expire.
	Revocations cache.Cache
	Now         func() time.Time
	Logger      logrus.FieldLogger
}

// Service handles accounts and bearer tokens.
type Service struct {
	users models.UserRepository
	opts  Options
	log   logrus.FieldLogger
}

func NewService(users models.UserRepository, opts Options) *Service {
	if opts.TokenExpiry <= 0 {
		opts.TokenExpiry = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{users: users, opts: opts, log: opts.Logger}
}

// Register creates an account and signs its first token.
func (s *Service) Register(ctx context.Context, req models.UserCreateRequest) (*models.UserLoginResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		CreatedAt:    s.opts.Now().UTC().Truncate(time.Millisecond),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, models.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, err
	}

	s.log.WithField("user_id", user.ID).Info("user registered")
	return &models.UserLoginResponse{Token: token, User: user}, nil
}

// Login verifies credentials. Unknown emails and wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, req models.UserLoginRequest) (*models.UserLoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, err
	}
	return &models.UserLoginResponse{Token: token, User: user}, nil
}

// GenerateToken signs an HS256 token for user.
func (s *Service) GenerateToken(user *models.User) (string, error) {
	now := s.opts.Now()
	claims := Claims{
		UserID: user.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.opts.Secret))
}

// ValidateToken parses tokenString and rejects expired, forged and revoked tokens.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.opts.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.opts.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, ErrInvalidToken
	}

	if s.opts.Revocations != nil && claims.ID != "" {
		revoked, err := s.opts.Revocations.Exists(ctx, revokedPrefix+claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// Revoke blacklists the token until its natural expiry.
func (s *Service) Revoke(ctx context.Context, claims *Claims) error {
	if s.opts.Revocations == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}

	ttl := claims.ExpiresAt.Time.Sub(s.opts.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.opts.Revocations.SetFlag(ctx, revokedPrefix+claims.ID, ttl); err != nil {
		return err
	}

	s.log.WithField("user_id", claims.UserID).Info("token revoked")
	return nil
}

// GetUserByID returns the account behind a validated token.
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

var (
	ErrInvalidCredentials = Error("invalid email or password")
	ErrUserExists         = Error("user already exists")
	ErrUserNotFound       = Error("user not found")
	ErrInvalidToken       = Error("invalid token")
	ErrTokenExpired       = Error("token has expired")
	ErrTokenRevoked       = Error("token has been revoked")
)

type Error string

func (e Error) Error() string {
	return string(e)
}
