package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and verifies HS256 access tokens. Verification is
// self-contained: it never consults the user store.
type TokenService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

type tokenClaims struct {
	UserID   string `json:"_id"`
	UserName string `json:"userName"`
	jwt.RegisteredClaims
}

// NewTokenService returns a service signing with secret. An expiry of zero
// issues tokens without an exp claim.
func NewTokenService(secret []byte, expiry time.Duration) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	if expiry < 0 {
		return nil, fmt.Errorf("token expiry must not be negative, got %s", expiry)
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &TokenService{
		secret: key,
		expiry: expiry,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the time source. Intended for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}

func (s *TokenService) Issue(identity Identity) (string, error) {
	if identity.ID == "" || identity.UserName == "" {
		return "", errors.New("identity requires id and user name")
	}

	now := s.now()
	claims := tokenClaims{
		UserID:   identity.ID,
		UserName: identity.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, nil
}

func (s *TokenService) Verify(tokenStr string) (Identity, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return Identity{}, ErrMalformed
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, classify(err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidSignature
	}
	if claims.UserID == "" || claims.UserName == "" {
		return Identity{}, ErrMalformed
	}

	return Identity{ID: claims.UserID, UserName: claims.UserName}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// ErrAuth is the parent of every token verification failure.
var ErrAuth = errors.New("authentication failed")

var (
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrAuth)
	ErrExpired          = fmt.Errorf("%w: token expired", ErrAuth)
	ErrMalformed        = fmt.Errorf("%w: malformed token", ErrAuth)
)
