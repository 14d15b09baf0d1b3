package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/diwan-systems/diwan/internal/mailer"
	"github.com/diwan-systems/diwan/internal/user"
)

// Service errors. Credential failures deliberately collapse to
// ErrUnauthorized so responses never reveal which part of a credential
// was wrong.
var (
	// ErrUnauthorized covers unknown users, inactive users, and wrong passwords.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden covers invalid or expired refresh tokens.
	ErrForbidden = errors.New("forbidden")
	// ErrEmailNotFound is returned by ForgotPassword for unregistered emails.
	ErrEmailNotFound = errors.New("email not registered")
	// ErrInvalidResetToken covers wrong and expired reset tokens alike.
	ErrInvalidResetToken = errors.New("invalid token")
	// ErrMailFailed is returned when the reset mail could not be sent.
	ErrMailFailed = errors.New("email could not be sent")
)

// resetTokenTTL is how long a password-reset token stays valid.
const resetTokenTTL = 10 * time.Minute

// Session is the result of a successful login or refresh.
type Session struct {
	AccessToken  string
	RefreshToken string // empty on refresh; the cookie is not rotated
	User         user.Public
}

// Service implements login, refresh, logout, and password reset over a
// user repository. Tokens are stateless; there is no server-side session
// store.
type Service struct {
	users       user.Repository
	tokens      *TokenService
	mailer      mailer.Mailer
	frontendURL string
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates an auth service. mailer may be nil, in which case
// ForgotPassword always fails with ErrMailFailed.
func NewService(users user.Repository, tokens *TokenService, m mailer.Mailer, frontendURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:       users,
		tokens:      tokens,
		mailer:      m,
		frontendURL: frontendURL,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) identity(u *user.User) Identity {
	return Identity{
		UserID:   u.ID,
		Username: u.Username,
		EnName:   u.EnName,
		ArName:   u.ArName,
		Roles:    u.Roles,
	}
}

// Login verifies the credentials and mints a token pair. The username is
// matched case-insensitively. Unknown, inactive, and wrong-password all
// return ErrUnauthorized.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.logger.Warn("login failed: unknown user", "username", username)
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("login lookup: %w", err)
	}
	if !u.IsActive {
		s.logger.Warn("login failed: inactive user", "username", u.Username)
		return nil, ErrUnauthorized
	}
	if !CheckPassword(u.PasswordHash, password) {
		s.logger.Warn("login failed: incorrect password", "username", u.Username)
		return nil, ErrUnauthorized
	}

	access, err := s.tokens.GenerateAccessToken(s.identity(u))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(u.Username)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         u.Public(),
	}, nil
}

// Refresh validates a refresh token and mints a new access token. The
// user is looked up again so deactivation since issuance is caught:
// invalid/expired tokens return ErrForbidden, missing or inactive users
// ErrUnauthorized. The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.logger.Warn("refresh failed: invalid refresh token")
		return nil, ErrForbidden
	}

	u, err := s.users.GetByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.logger.Warn("refresh failed: no user for token", "username", claims.Username)
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("refresh lookup: %w", err)
	}
	if !u.IsActive {
		s.logger.Warn("refresh failed: inactive user", "username", u.Username)
		return nil, ErrUnauthorized
	}

	access, err := s.tokens.GenerateAccessToken(s.identity(u))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &Session{
		AccessToken: access,
		User:        u.Public(),
	}, nil
}

// Logout decodes the refresh token for logging only. Decode failure is
// non-fatal; clearing the cookie is the caller's job either way.
func (s *Service) Logout(refreshToken string) {
	username, err := s.tokens.DecodeRefreshUsername(refreshToken)
	if err != nil {
		s.logger.Info("logout: could not decode refresh token")
		return
	}
	s.logger.Info("user logged out", "username", username)
}

// ForgotPassword generates a reset token for the account with the given
// email, stores its hash with a 10 minute expiry, and mails the raw token
// as a reset link. If the mail cannot be sent the stored hash and expiry
// are rolled back and ErrMailFailed is returned.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrEmailNotFound
		}
		return fmt.Errorf("forgot password lookup: %w", err)
	}

	raw, hash, err := NewResetToken()
	if err != nil {
		return err
	}

	u.ResetTokenHash = hash
	u.ResetTokenExpiry = s.now().Add(resetTokenTTL)
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	resetURL := fmt.Sprintf("%s/reset-password/%s", s.frontendURL, raw)
	msg := mailer.Message{
		To:      u.Email,
		Subject: "طلب إعادة تعيين كلمة المرور",
		Body: "أنت تتلقى هذا البريد الإلكتروني لأنك طلبت إعادة تعيين كلمة المرور. يرجى الضغط على الرابط التالي:\n\n" +
			resetURL,
	}

	var sendErr error
	if s.mailer == nil {
		sendErr = errors.New("no mailer configured")
	} else {
		sendErr = s.mailer.Send(ctx, msg)
	}
	if sendErr != nil {
		s.logger.Error("reset mail dispatch failed", "error", sendErr)
		// Roll back so the unusable token cannot linger.
		u.ClearReset()
		if rbErr := s.users.Update(ctx, u); rbErr != nil {
			s.logger.Error("reset token rollback failed", "error", rbErr)
		}
		return ErrMailFailed
	}
	return nil
}

// ResetPassword consumes a raw reset token and sets a new password. Wrong
// and expired tokens both return ErrInvalidResetToken, indistinguishably.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	u, err := s.users.GetByResetTokenHash(ctx, HashResetToken(rawToken), s.now())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("reset token lookup: %w", err)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.ClearReset()
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("store new password: %w", err)
	}
	return nil
}
