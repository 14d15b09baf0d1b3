package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/diwan-systems/diwan/internal/mailer"
	"github.com/diwan-systems/diwan/internal/user"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedUser(t *testing.T, users user.Repository, active bool) *user.User {
	t.Helper()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &user.User{
		EnName:       "Sara",
		ArName:       "سارة",
		Username:     "Sara",
		Email:        "sara@example.com",
		PasswordHash: hash,
		Roles:        []string{"Admin"},
		IsActive:     active,
	}
	if err := users.Insert(context.Background(), u); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return u
}

func newTestService(users user.Repository, m mailer.Mailer) *Service {
	tokens := NewTokenService("access-secret", "refresh-secret")
	return NewService(users, tokens, m, "https://records.example.com", discardLogger())
}

func TestLoginSuccess(t *testing.T) {
	users := user.NewInMemoryRepository()
	seedUser(t, users, true)
	svc := newTestService(users, nil)

	session, err := svc.Login(context.Background(), "Sara", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Error("missing tokens")
	}
	if session.User.Username != "Sara" {
		t.Errorf("profile %+v", session.User)
	}
}

func TestLoginCaseInsensitiveUsername(t *testing.T) {
	users := user.NewInMemoryRepository()
	seedUser(t, users, true)
	svc := newTestService(users, nil)

	if _, err := svc.Login(context.Background(), "sara", "s3cret"); err != nil {
		t.Errorf("lowercase login rejected: %v", err)
	}
	if _, err := svc.Login(context.Background(), "SARA", "s3cret"); err != nil {
		t.Errorf("uppercase login rejected: %v", err)
	}
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	users := user.NewInMemoryRepository()
	seedUser(t, users, true)

	inactive := user.NewInMemoryRepository()
	seedUser(t, inactive, false)

	tests := []struct {
		name     string
		repo     user.Repository
		username string
		password string
	}{
		{"unknown user", users, "nobody", "s3cret"},
		{"wrong password", users, "Sara", "nope"},
		{"inactive user", inactive, "Sara", "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.repo, nil)
			_, err := svc.Login(context.Background(), tt.username, tt.password)
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("got %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestRefreshMintsNewAccessToken(t *testing.T) {
	users := user.NewInMemoryRepository()
	seedUser(t, users, true)
	svc := newTestService(users, nil)

	session, err := svc.Login(context.Background(), "Sara", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Error("no access token")
	}
	if refreshed.RefreshToken != "" {
		t.Error("refresh token rotated")
	}
}

func TestRefreshInvalidToken(t *testing.T) {
	users := user.NewInMemoryRepository()
	svc := newTestService(users, nil)

	if _, err := svc.Refresh(context.Background(), "garbage"); !errors.Is(err, ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
}

func TestRefreshDeactivatedSinceIssuance(t *testing.T) {
	users := user.NewInMemoryRepository()
	u := seedUser(t, users, true)
	svc := newTestService(users, nil)

	session, err := svc.Login(context.Background(), "Sara", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	u.IsActive = false
	if err := users.Update(context.Background(), u); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), session.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestForgotPasswordSendsResetLink(t *testing.T) {
	users := user.NewInMemoryRepository()
	seedUser(t, users, true)
	mail := mailer.NewRecordingMailer()
	svc := newTestService(users, mail)

	if err := svc.ForgotPassword(context.Background(), "sara@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}

	sent := mail.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d mails", len(sent))
	}
	if sent[0].To != "sara@example.com" {
		t.Errorf("to %q", sent[0].To)
	}
	if !strings.Contains(sent[0].Body, "https://records.example.com/reset-password/") {
		t.Errorf("no reset link in body: %q", sent[0].Body)
	}

	stored, err := users.GetByUsername(context.Background(), "sara")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored.ResetTokenHash == "" || stored.ResetTokenExpiry.IsZero() {
		t.Error("reset fields not stored")
	}
	if strings.Contains(sent[0].Body, stored.ResetTokenHash) {
		t.Error("mail contains the stored hash instead of the raw token")
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	users := user.NewInMemoryRepository()
	svc := newTestService(users, mailer.NewRecordingMailer())

	if err := svc.ForgotPassword(context.Background(), "nobody@example.com"); !errors.Is(err, ErrEmailNotFound) {
		t.Errorf("got %v, want ErrEmailNotFound", err)
	}
}

func TestForgotPasswordRollsBackOnMailFailure(t *testing.T) {
	users := user.NewInMemoryRepository()
	seedUser(t, users, true)
	mail := mailer.NewRecordingMailer()
	mail.Fail = errors.New("smtp down")
	svc := newTestService(users, mail)

	if err := svc.ForgotPassword(context.Background(), "sara@example.com"); !errors.Is(err, ErrMailFailed) {
		t.Fatalf("got %v, want ErrMailFailed", err)
	}

	stored, err := users.GetByUsername(context.Background(), "sara")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored.ResetTokenHash != "" || !stored.ResetTokenExpiry.IsZero() {
		t.Error("reset fields not rolled back")
	}
}

func TestResetPasswordRoundTrip(t *testing.T) {
	users := user.NewInMemoryRepository()
	seedUser(t, users, true)
	mail := mailer.NewRecordingMailer()
	svc := newTestService(users, mail)

	if err := svc.ForgotPassword(context.Background(), "sara@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	body := mail.Sent()[0].Body
	raw := body[strings.LastIndex(body, "/")+1:]

	if err := svc.ResetPassword(context.Background(), raw, "newpass"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, err := svc.Login(context.Background(), "Sara", "newpass"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if _, err := svc.Login(context.Background(), "Sara", "s3cret"); !errors.Is(err, ErrUnauthorized) {
		t.Error("old password still works")
	}

	// The token is single use.
	if err := svc.ResetPassword(context.Background(), raw, "again"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("got %v, want ErrInvalidResetToken", err)
	}
}

func TestResetPasswordExpiredTokenIndistinguishable(t *testing.T) {
	users := user.NewInMemoryRepository()
	seedUser(t, users, true)
	mail := mailer.NewRecordingMailer()

	issued := time.Now()
	svc := newTestService(users, mail).WithClock(func() time.Time { return issued })

	if err := svc.ForgotPassword(context.Background(), "sara@example.com"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	body := mail.Sent()[0].Body
	raw := body[strings.LastIndex(body, "/")+1:]

	svc.WithClock(func() time.Time { return issued.Add(11 * time.Minute) })

	expiredErr := svc.ResetPassword(context.Background(), raw, "newpass")
	wrongErr := svc.ResetPassword(context.Background(), "deadbeef", "newpass")
	if !errors.Is(expiredErr, ErrInvalidResetToken) || !errors.Is(wrongErr, ErrInvalidResetToken) {
		t.Errorf("expired=%v wrong=%v, both should be ErrInvalidResetToken", expiredErr, wrongErr)
	}
}
