package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/authgate/authgate/internal/models"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/pkg/metrics"
)

// DefaultSessionTTL is the lifetime granted to new sessions and to sessions
// extended on refresh.
const DefaultSessionTTL = 30 * 24 * time.Hour

// DefaultRotationWindow is the remaining-lifetime threshold below which a
// refresh also rotates the refresh token and extends the session.
const DefaultRotationWindow = 24 * time.Hour

var (
	// ErrSessionNotFound indicates that no session matches the provided identifier.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionExpired signals that the session's expiry has passed.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInvalidToken is returned when the supplied refresh token fails verification.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	SessionTTL     time.Duration
	RotationWindow time.Duration
	Clock          func() time.Time
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RefreshResult carries the product of a refresh call. RefreshToken is empty
// when the session had more than the rotation window remaining, in which case
// the caller's existing refresh token stays valid.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	Session      *models.Session
}

// SessionEntry is one row of a session listing, with the caller's own session flagged.
type SessionEntry struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsCurrent bool      `json:"is_current,omitempty"`
}

// SessionService manages creation, refresh-rotation, and revocation of user sessions.
type SessionService struct {
	store        *store.Store
	tokens       *TokenService
	ttl          time.Duration
	rotateWithin time.Duration
	now          func() time.Time
}

// NewSessionService constructs a session manager backed by the provided store and token service.
func NewSessionService(st *store.Store, tokens *TokenService, cfg SessionConfig) (*SessionService, error) {
	if st == nil {
		return nil, errors.New("session service: store is required")
	}
	if tokens == nil {
		return nil, errors.New("session service: token service is required")
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	window := cfg.RotationWindow
	if window <= 0 {
		window = DefaultRotationWindow
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		store:        st,
		tokens:       tokens,
		ttl:          ttl,
		rotateWithin: window,
		now:          clock,
	}, nil
}

// Create inserts a new session for the user. Every login and registration
// gets its own session; none are reused.
func (s *SessionService) Create(ctx context.Context, userID, userAgent string) (*models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("session service: user id is required")
	}

	session, err := s.store.CreateSession(ctx, userID, userAgent, s.now().Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("session service: create session: %w", err)
	}

	metrics.ActiveSessions.Inc()
	return session, nil
}

// IssueTokenPair mints an access and refresh token for an existing session.
// Pure composition over the token service; no writes.
func (s *SessionService) IssueTokenPair(userID, sessionID string) (TokenPair, error) {
	accessToken, err := s.tokens.SignAccessToken(userID, sessionID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("session service: sign access token: %w", err)
	}

	refreshToken, err := s.tokens.SignRefreshToken(sessionID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("session service: sign refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh validates a refresh token against its live session and mints a new
// access token. A cryptographically valid token whose session was deleted is
// rejected: the session row, not the signature, is the source of truth.
// When the session has at most the rotation window remaining, its expiry is
// replaced with a full lifetime and a new refresh token is issued for the
// same session id.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrSessionInvalidToken
	}

	session, err := s.store.SessionByID(ctx, claims.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}

	now := s.now()
	if !session.ExpiresAt.After(now) {
		return nil, ErrSessionExpired
	}

	result := &RefreshResult{Session: session}

	if session.ExpiresAt.Sub(now) <= s.rotateWithin {
		newExpiry := now.Add(s.ttl)
		if err := s.store.ExtendSession(ctx, session.ID, newExpiry); err != nil {
			return nil, fmt.Errorf("session service: extend session: %w", err)
		}
		session.ExpiresAt = newExpiry

		rotated, err := s.tokens.SignRefreshToken(session.ID)
		if err != nil {
			return nil, fmt.Errorf("session service: sign refresh token: %w", err)
		}
		result.RefreshToken = rotated
	}

	accessToken, err := s.tokens.SignAccessToken(session.UserID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("session service: sign access token: %w", err)
	}
	result.AccessToken = accessToken

	return result, nil
}

// Delete removes a session by id. Absence is not an error: logout must
// succeed from the caller's perspective whether or not the session survived.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}

	deleted, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session service: delete session: %w", err)
	}

	if deleted > 0 {
		metrics.ActiveSessions.Sub(float64(deleted))
	}
	return nil
}

// Revoke removes a session the user explicitly named. Unlike Delete, a miss
// (absent id or a session owned by someone else) is reported as not found.
func (s *SessionService) Revoke(ctx context.Context, userID, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionNotFound
	}

	deleted, err := s.store.DeleteSessionOwned(ctx, userID, sessionID)
	if err != nil {
		return fmt.Errorf("session service: revoke session: %w", err)
	}
	if deleted == 0 {
		return ErrSessionNotFound
	}

	metrics.ActiveSessions.Sub(float64(deleted))
	return nil
}

// RevokeAll removes every session belonging to the user, invalidating all of
// their outstanding refresh tokens at once.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	deleted, err := s.store.DeleteUserSessions(ctx, userID)
	if err != nil {
		return fmt.Errorf("session service: revoke user sessions: %w", err)
	}

	if deleted > 0 {
		metrics.ActiveSessions.Sub(float64(deleted))
	}
	return nil
}

// RevokeOthers removes every session of the user except the one named,
// letting a caller log out everywhere else while staying signed in.
func (s *SessionService) RevokeOthers(ctx context.Context, userID, keepSessionID string) error {
	deleted, err := s.store.DeleteOtherUserSessions(ctx, userID, keepSessionID)
	if err != nil {
		return fmt.Errorf("session service: revoke other sessions: %w", err)
	}

	if deleted > 0 {
		metrics.ActiveSessions.Sub(float64(deleted))
	}
	return nil
}

// ListActive returns the user's unexpired sessions, newest first, flagging
// the entry that matches the caller's current session.
func (s *SessionService) ListActive(ctx context.Context, userID, currentSessionID string) ([]SessionEntry, error) {
	sessions, err := s.store.ActiveSessions(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("session service: list sessions: %w", err)
	}

	entries := make([]SessionEntry, 0, len(sessions))
	for _, session := range sessions {
		entries = append(entries, SessionEntry{
			ID:        session.ID,
			UserAgent: session.UserAgent,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			IsCurrent: session.ID == currentSessionID,
		})
	}
	return entries, nil
}
