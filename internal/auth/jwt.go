// Package auth provides authentication: JWT token management, password
// hashing, and the login/refresh/reset service.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token expiration durations. The refresh lifetime is one working shift;
// the cookie Max-Age is set to match it.
const (
	AccessTokenExpiry  = 15 * time.Minute
	RefreshTokenExpiry = 8 * time.Hour
)

// DefaultLeeway for token validation.
const DefaultLeeway = 30 * time.Second

// ErrInvalidToken is returned when token validation fails.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned when the token has expired.
var ErrExpiredToken = errors.New("token has expired")

// ErrEmptyUsername is returned when a token is requested for an empty username.
var ErrEmptyUsername = errors.New("username cannot be empty")

// AccessClaims are the claims carried by an access token. They hold the
// full actor identity so request handling never needs a user lookup.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username string   `json:"username"`
	EnName   string   `json:"en_name,omitempty"`
	ArName   string   `json:"ar_name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	UserID   string   `json:"userId,omitempty"`
}

// RefreshClaims are the claims carried by a refresh token: only the
// username, so a refresh always re-validates the account state.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Identity is the input for minting an access token.
type Identity struct {
	UserID   string
	Username string
	EnName   string
	ArName   string
	Roles    []string
}

// TokenService signs and validates access and refresh tokens. The two
// token kinds use separate secrets so either can be rotated alone.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	leeway        time.Duration
	now           func() time.Time
}

// NewTokenService creates a TokenService with the given secrets.
func NewTokenService(accessSecret, refreshSecret string) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		leeway:        DefaultLeeway,
		now:           time.Now,
	}
}

// NewTokenServiceWithClock creates a TokenService with an injected clock,
// for tests that need to cross expiry boundaries.
func NewTokenServiceWithClock(accessSecret, refreshSecret string, now func() time.Time) *TokenService {
	s := NewTokenService(accessSecret, refreshSecret)
	s.now = now
	return s
}

// GenerateAccessToken creates a new access token (15m expiry) carrying
// the full identity.
func (s *TokenService) GenerateAccessToken(id Identity) (string, error) {
	if id.Username == "" {
		return "", ErrEmptyUsername
	}

	now := s.now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenExpiry)),
		},
		Username: id.Username,
		EnName:   id.EnName,
		ArName:   id.ArName,
		Roles:    id.Roles,
		UserID:   id.UserID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.accessSecret)
}

// GenerateRefreshToken creates a new refresh token (8h expiry) carrying
// only the username.
func (s *TokenService) GenerateRefreshToken(username string) (string, error) {
	if username == "" {
		return "", ErrEmptyUsername
	}

	now := s.now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RefreshTokenExpiry)),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.refreshSecret)
}

// ValidateAccessToken parses and validates an access token, returning its
// claims if valid.
func (s *TokenService) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims, s.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateRefreshToken parses and validates a refresh token, returning its
// claims if valid.
func (s *TokenService) ValidateRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims, s.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// DecodeRefreshUsername extracts the username from a refresh token without
// failing on expiry; the signature must still verify. Used for best-effort
// logout logging.
func (s *TokenService) DecodeRefreshUsername(tokenString string) (string, error) {
	claims, err := s.ValidateRefreshToken(tokenString)
	if err == nil {
		return claims.Username, nil
	}
	if !errors.Is(err, ErrExpiredToken) {
		return "", err
	}

	// Expired but otherwise well-formed: re-parse without expiry validation.
	expired := &RefreshClaims{}
	token, perr := jwt.ParseWithClaims(tokenString, expired, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return s.refreshSecret, nil
	}, jwt.WithLeeway(s.leeway), jwt.WithoutClaimsValidation())
	if perr != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	return expired.Username, nil
}

func (s *TokenService) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithLeeway(s.leeway), jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
