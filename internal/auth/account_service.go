package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/authgate/authgate/internal/models"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/pkg/crypto"
	apperrors "github.com/authgate/authgate/pkg/errors"
	"github.com/authgate/authgate/pkg/logger"
	"github.com/authgate/authgate/pkg/mail"
	"github.com/authgate/authgate/pkg/metrics"
)

const (
	// EmailVerificationTTL keeps verification links usable for a year.
	EmailVerificationTTL = 365 * 24 * time.Hour
	// PasswordResetTTL keeps reset links short-lived.
	PasswordResetTTL = time.Hour

	// resetRateWindow/resetRateMax bound how often a user can request a
	// password reset: at most two codes per five-minute window.
	resetRateWindow = 5 * time.Minute
	resetRateMax    = 2
)

// Account flow failures, each carrying its HTTP status.
var (
	// ErrEmailInUse rejects a registration for an already-taken email.
	ErrEmailInUse = apperrors.New("EMAIL_IN_USE", "Email already in use", http.StatusConflict)
	// ErrInvalidCredentials deliberately uses one message for unknown email
	// and wrong password, so login reveals nothing about account existence.
	ErrInvalidCredentials = apperrors.New("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized)
	// ErrCodeNotFound covers absent, expired, and already-consumed codes alike.
	ErrCodeNotFound = apperrors.New("CODE_NOT_FOUND", "Invalid or expired verification code", http.StatusNotFound)
	// ErrAccountNotFound is returned by the password-reset request for unknown emails.
	ErrAccountNotFound = apperrors.New("ACCOUNT_NOT_FOUND", "Account not found", http.StatusNotFound)
	// ErrResetRateLimited rejects a reset request inside the rate window.
	ErrResetRateLimited = apperrors.New("RESET_RATE_LIMITED", "Too many requests, please try again later", http.StatusTooManyRequests)
)

// AccountConfig describes tunable behaviour for the AccountService.
type AccountConfig struct {
	// BaseURL is the public application origin embedded in email links.
	BaseURL string
	Clock   func() time.Time
}

// AuthResult is the product of a successful registration or login.
type AuthResult struct {
	User    *models.User
	Session *models.Session
	Tokens  TokenPair
}

// AccountService owns registration, login, email verification, and the
// password-reset flows, including their session side effects.
type AccountService struct {
	store    *store.Store
	sessions *SessionService
	mailer   mail.Mailer
	baseURL  string
	now      func() time.Time
	log      *zap.Logger
}

// NewAccountService constructs an AccountService with the provided collaborators.
// A nil mailer disables outbound email, which only the reset flow treats as fatal.
func NewAccountService(st *store.Store, sessions *SessionService, mailer mail.Mailer, cfg AccountConfig) (*AccountService, error) {
	if st == nil {
		return nil, errors.New("account service: store is required")
	}
	if sessions == nil {
		return nil, errors.New("account service: session service is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &AccountService{
		store:    st,
		sessions: sessions,
		mailer:   mailer,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		now:      clock,
		log:      logger.WithModule("account"),
	}, nil
}

// Register creates the user, a year-long email verification code, and a first
// session. The verification email is best-effort: a send failure leaves the
// account unverified but never fails the registration.
func (s *AccountService) Register(ctx context.Context, email, password, userAgent string) (*AuthResult, error) {
	email = strings.TrimSpace(email)

	exists, err := s.store.UserEmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("account service: check email: %w", err)
	}
	if exists {
		metrics.AuthAttempts.WithLabelValues("register", "failure").Inc()
		return nil, ErrEmailInUse
	}

	user, err := s.store.CreateUser(ctx, email, password)
	if errors.Is(err, store.ErrDuplicateEmail) {
		// lost the race past the existence check; the unique index decides
		metrics.AuthAttempts.WithLabelValues("register", "failure").Inc()
		return nil, ErrEmailInUse
	}
	if err != nil {
		return nil, fmt.Errorf("account service: create user: %w", err)
	}

	now := s.now()
	code, err := s.store.CreateCode(ctx, user.ID, models.CodeEmailVerification, now, now.Add(EmailVerificationTTL))
	if err != nil {
		return nil, fmt.Errorf("account service: create verification code: %w", err)
	}

	if err := s.sendVerificationEmail(ctx, user.Email, code.ID); err != nil {
		s.log.Warn("verification email not sent; verification stays pending",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	result, err := s.startSession(ctx, user, userAgent)
	if err != nil {
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("register", "success").Inc()
	return result, nil
}

// Login verifies the credentials and opens a fresh session.
func (s *AccountService) Login(ctx context.Context, email, password, userAgent string) (*AuthResult, error) {
	user, err := s.store.UserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("account service: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("login", "failure").Inc()
		return nil, ErrInvalidCredentials
	}

	result, err := s.startSession(ctx, user, userAgent)
	if err != nil {
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("login", "success").Inc()
	return result, nil
}

// VerifyEmail consumes an email-verification code and marks the user verified.
func (s *AccountService) VerifyEmail(ctx context.Context, codeID string) (*models.User, error) {
	code, err := s.store.ValidCode(ctx, codeID, models.CodeEmailVerification, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account service: find code: %w", err)
	}

	if err := s.store.MarkUserVerified(ctx, code.UserID); err != nil {
		// the code existing implies the user exists; a miss here is a broken invariant
		return nil, apperrors.Wrap(err, "Failed to verify email")
	}

	if err := s.store.DeleteCode(ctx, code.ID); err != nil {
		return nil, apperrors.Wrap(err, "Failed to verify email")
	}

	user, err := s.store.UserByID(ctx, code.UserID)
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to verify email")
	}
	return user, nil
}

// RequestPasswordReset issues a short-lived reset code and emails its link.
// Unlike registration, this flow cannot succeed silently without the email,
// so a send failure is surfaced.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.UserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("account service: find user: %w", err)
	}

	now := s.now()
	recent, err := s.store.CountRecentCodes(ctx, user.ID, models.CodePasswordReset, now.Add(-resetRateWindow))
	if err != nil {
		return fmt.Errorf("account service: count reset codes: %w", err)
	}
	if recent >= resetRateMax {
		return ErrResetRateLimited
	}

	code, err := s.store.CreateCode(ctx, user.ID, models.CodePasswordReset, now, now.Add(PasswordResetTTL))
	if err != nil {
		return fmt.Errorf("account service: create reset code: %w", err)
	}

	if err := s.sendPasswordResetEmail(ctx, user.Email, code.ID, code.ExpiresAt); err != nil {
		return apperrors.Wrap(err, "Failed to send password reset email")
	}

	return nil
}

// ResetPassword consumes a reset code, stores the new password, and deletes
// every session of the user: a password reset invalidates all standing
// bearer credentials for the account.
func (s *AccountService) ResetPassword(ctx context.Context, newPassword, codeID string) error {
	code, err := s.store.ValidCode(ctx, codeID, models.CodePasswordReset, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrCodeNotFound
	}
	if err != nil {
		return fmt.Errorf("account service: find code: %w", err)
	}

	if err := s.store.UpdateUserPassword(ctx, code.UserID, newPassword); err != nil {
		return apperrors.Wrap(err, "Failed to reset password")
	}

	if err := s.store.DeleteCode(ctx, code.ID); err != nil {
		return apperrors.Wrap(err, "Failed to reset password")
	}

	if err := s.sessions.RevokeAll(ctx, code.UserID); err != nil {
		return apperrors.Wrap(err, "Failed to reset password")
	}

	metrics.PasswordResets.Inc()
	return nil
}

func (s *AccountService) startSession(ctx context.Context, user *models.User, userAgent string) (*AuthResult, error) {
	session, err := s.sessions.Create(ctx, user.ID, userAgent)
	if err != nil {
		return nil, err
	}

	pair, err := s.sessions.IssueTokenPair(user.ID, session.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:    user,
		Session: session,
		Tokens:  pair,
	}, nil
}

func (s *AccountService) sendVerificationEmail(ctx context.Context, email, codeID string) error {
	if s.mailer == nil {
		return errors.New("account service: no mailer configured")
	}

	link := fmt.Sprintf("%s/auth/email/verify/%s", s.baseURL, codeID)
	return s.mailer.Send(ctx, mail.Message{
		To:      email,
		Subject: "Verify your email address",
		Body: fmt.Sprintf("Welcome!\n\nPlease confirm your email address by visiting the link below:\n%s\n\nIf you did not create an account, you can ignore this message.\n",
			link),
	})
}

func (s *AccountService) sendPasswordResetEmail(ctx context.Context, email, codeID string, expiresAt time.Time) error {
	if s.mailer == nil {
		return errors.New("account service: no mailer configured")
	}

	link := fmt.Sprintf("%s/password/reset?code=%s&exp=%d", s.baseURL, codeID, expiresAt.UnixMilli())
	return s.mailer.Send(ctx, mail.Message{
		To:      email,
		Subject: "Reset your password",
		Body: fmt.Sprintf("You requested a password reset.\n\nUse the link below within the next hour:\n%s\n\nIf you did not request this, you can ignore this message.\n",
			link),
	})
}
