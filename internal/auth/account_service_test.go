package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/models"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/pkg/crypto"
	apperrors "github.com/authgate/authgate/pkg/errors"
	"github.com/authgate/authgate/pkg/mail"
)

// recordingMailer captures outbound messages and can be told to fail.
type recordingMailer struct {
	mu       sync.Mutex
	sent     []mail.Message
	failWith error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

func setupAccountService(t *testing.T) (*store.Store, *AccountService, *recordingMailer, *manualClock) {
	t.Helper()

	st, sessions, clock := setupSessionService(t)
	mailer := &recordingMailer{}

	svc, err := NewAccountService(st, sessions, mailer, AccountConfig{
		BaseURL: "https://app.example.com/",
		Clock:   clock.Now,
	})
	require.NoError(t, err)
	return st, svc, mailer, clock
}

func TestRegisterCreatesUserSessionAndVerificationEmail(t *testing.T) {
	st, svc, mailer, clock := setupAccountService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "new@x.com", "secret1", "cli")
	require.NoError(t, err)
	require.Equal(t, "new@x.com", result.User.Email)
	assert.False(t, result.User.Verified)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.Equal(t, result.User.ID, result.Session.UserID)

	msgs := mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "new@x.com", msgs[0].To)
	assert.Contains(t, msgs[0].Body, "https://app.example.com/auth/email/verify/")

	// stored password is a hash, never the plaintext
	user, err := st.UserByID(ctx, result.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", user.Password)
	assert.True(t, crypto.VerifyPassword(user.Password, "secret1"))

	// the emailed code is live and valid for a full year
	code := lastCodeFor(t, msgs[0].Body, "https://app.example.com/auth/email/verify/")
	stored, err := st.ValidCode(ctx, code, models.CodeEmailVerification, clock.Now().Add(EmailVerificationTTL-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, stored.UserID)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	_, svc, _, _ := setupAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "dupe@x.com", "secret1", "")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "dupe@x.com", "another1", "")
	require.ErrorIs(t, err, ErrEmailInUse)
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	_, svc, mailer, _ := setupAccountService(t)
	mailer.failWith = errors.New("smtp down")

	result, err := svc.Register(context.Background(), "nomail@x.com", "secret1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Tokens.AccessToken)
}

func TestLoginVerifiesCredentials(t *testing.T) {
	_, svc, _, _ := setupAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "login@x.com", "secret1", "")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "login@x.com", "secret1", "browser")
	require.NoError(t, err)
	assert.Equal(t, "login@x.com", result.User.Email)
	assert.NotEmpty(t, result.Tokens.RefreshToken)

	_, err = svc.Login(ctx, "login@x.com", "wrong", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// unknown email yields the same error as a wrong password
	_, err = svc.Login(ctx, "nobody@x.com", "secret1", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyEmailConsumesCode(t *testing.T) {
	st, svc, mailer, _ := setupAccountService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "verify@x.com", "secret1", "")
	require.NoError(t, err)

	code := lastCodeFor(t, mailer.messages()[0].Body, "https://app.example.com/auth/email/verify/")

	user, err := svc.VerifyEmail(ctx, code)
	require.NoError(t, err)
	assert.True(t, user.Verified)
	assert.Equal(t, result.User.ID, user.ID)

	stored, err := st.UserByID(ctx, result.User.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)

	// single-use: a second attempt fails
	_, err = svc.VerifyEmail(ctx, code)
	require.ErrorIs(t, err, ErrCodeNotFound)
}

func TestVerifyEmailRejectsExpiredCode(t *testing.T) {
	st, svc, _, clock := setupAccountService(t)
	ctx := context.Background()

	user := createTestUser(t, st, "expired@x.com")
	code, err := st.CreateCode(ctx, user.ID, models.CodeEmailVerification, clock.Now(), clock.Now().Add(time.Hour))
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, err = svc.VerifyEmail(ctx, code.ID)
	require.ErrorIs(t, err, ErrCodeNotFound)
}

func TestRequestPasswordResetSendsLink(t *testing.T) {
	_, svc, mailer, clock := setupAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "reset@x.com", "secret1", "")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "reset@x.com"))

	msgs := mailer.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "reset@x.com", msgs[1].To)
	assert.Contains(t, msgs[1].Body, "https://app.example.com/password/reset?code=")

	wantExp := clock.Now().Add(PasswordResetTTL).UnixMilli()
	assert.Contains(t, msgs[1].Body, fmt.Sprintf("&exp=%d", wantExp))
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	_, svc, _, _ := setupAccountService(t)

	err := svc.RequestPasswordReset(context.Background(), "ghost@x.com")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRequestPasswordResetRateLimited(t *testing.T) {
	_, svc, _, clock := setupAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "limited@x.com", "secret1", "")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "limited@x.com"))
	require.NoError(t, svc.RequestPasswordReset(ctx, "limited@x.com"))

	err = svc.RequestPasswordReset(ctx, "limited@x.com")
	require.ErrorIs(t, err, ErrResetRateLimited)

	// outside the window the counter resets
	clock.Advance(6 * time.Minute)
	require.NoError(t, svc.RequestPasswordReset(ctx, "limited@x.com"))
}

func TestRequestPasswordResetMailFailureIsFatal(t *testing.T) {
	_, svc, mailer, _ := setupAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "fatal@x.com", "secret1", "")
	require.NoError(t, err)

	mailer.failWith = errors.New("smtp down")

	err = svc.RequestPasswordReset(ctx, "fatal@x.com")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
}

func TestResetPasswordRevokesEverySession(t *testing.T) {
	st, svc, mailer, _ := setupAccountService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "rotate@x.com", "oldpass1", "laptop")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "rotate@x.com", "oldpass1", "phone")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "rotate@x.com"))
	code := lastCodeFor(t, mailer.messages()[1].Body, "https://app.example.com/password/reset?code=")

	require.NoError(t, svc.ResetPassword(ctx, "newpass9", code))

	// old password no longer works, new one does
	_, err = svc.Login(ctx, "rotate@x.com", "oldpass1", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "rotate@x.com", "newpass9", "")
	require.NoError(t, err)

	// sessions opened before the reset are gone
	_, err = st.SessionByID(ctx, result.Session.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	// the code is single-use
	err = svc.ResetPassword(ctx, "anotherpass", code)
	require.ErrorIs(t, err, ErrCodeNotFound)
}

func TestResetPasswordExpiredCode(t *testing.T) {
	st, svc, _, clock := setupAccountService(t)
	ctx := context.Background()

	user := createTestUser(t, st, "late@x.com")
	code, err := st.CreateCode(ctx, user.ID, models.CodePasswordReset, clock.Now(), clock.Now().Add(PasswordResetTTL))
	require.NoError(t, err)

	clock.Advance(PasswordResetTTL + time.Minute)

	err = svc.ResetPassword(ctx, "newpass9", code.ID)
	require.ErrorIs(t, err, ErrCodeNotFound)
}

// lastCodeFor extracts the code that follows prefix in an email body.
func lastCodeFor(t *testing.T, body, prefix string) string {
	t.Helper()

	idx := strings.Index(body, prefix)
	require.GreaterOrEqual(t, idx, 0, "email body missing link prefix")

	rest := body[idx+len(prefix):]
	if end := strings.IndexAny(rest, "\n& "); end >= 0 {
		return rest[:end]
	}
	return rest
}
