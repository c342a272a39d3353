package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes. Access tokens are deliberately short so that a
// revoked session's outstanding tokens age out quickly; refresh tokens match
// the session lifetime.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultAudience        = "user"
)

// Verification failures are value-returned, never panicked, so the gate and
// the refresh path can choose their own user-facing message. Expired is kept
// distinct from every other failure mode.
var (
	ErrTokenExpired = errors.New("token: expired")
	ErrTokenInvalid = errors.New("token: invalid")
)

// TokenConfig bundles the configuration required to build a TokenService.
// The two token classes are signed with distinct secrets so one can never
// stand in for the other.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Clock         func() time.Time
}

// AccessClaims is the claim set carried by access tokens.
type AccessClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set carried by refresh tokens. It names only the
// session; the session row is the source of truth for the user and for
// whether the token is still honoured.
type RefreshClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies the two bearer token classes. It holds no
// mutable state and performs no I/O.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenService constructs a TokenService instance when provided with the required configuration.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.AccessSecret == "" {
		return nil, errors.New("token: access secret must be provided")
	}
	if cfg.RefreshSecret == "" {
		return nil, errors.New("token: refresh secret must be provided")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}

	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	audience := cfg.Audience
	if audience == "" {
		audience = DefaultAudience
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		issuer:        cfg.Issuer,
		audience:      audience,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           now,
	}, nil
}

// AccessTokenTTL exposes the configured access token lifetime for cookie expiry.
func (s *TokenService) AccessTokenTTL() time.Duration { return s.accessTTL }

// RefreshTokenTTL exposes the configured refresh token lifetime for cookie expiry.
func (s *TokenService) RefreshTokenTTL() time.Duration { return s.refreshTTL }

// SignAccessToken issues a signed access token for the user and session.
func (s *TokenService) SignAccessToken(userID, sessionID string) (string, error) {
	if userID == "" {
		return "", errors.New("token: user id is required")
	}
	if sessionID == "" {
		return "", errors.New("token: session id is required")
	}

	now := s.now()
	claims := &AccessClaims{
		UserID:           userID,
		SessionID:        sessionID,
		RegisteredClaims: s.registered(now, s.accessTTL, userID),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", fmt.Errorf("token: sign access token: %w", err)
	}
	return signed, nil
}

// SignRefreshToken issues a signed refresh token bound to the session.
func (s *TokenService) SignRefreshToken(sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("token: session id is required")
	}

	now := s.now()
	claims := &RefreshClaims{
		SessionID:        sessionID,
		RegisteredClaims: s.registered(now, s.refreshTTL, sessionID),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("token: sign refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken parses and validates an access token. The returned error
// is always ErrTokenExpired or ErrTokenInvalid.
func (s *TokenService) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := s.verify(tokenString, &claims, s.accessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// VerifyRefreshToken parses and validates a refresh token. The returned error
// is always ErrTokenExpired or ErrTokenInvalid. A verified signature says
// nothing about whether the referenced session still exists.
func (s *TokenService) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := s.verify(tokenString, &claims, s.refreshSecret); err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

func (s *TokenService) verify(tokenString string, claims jwt.Claims, secret []byte) error {
	if tokenString == "" {
		return ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithAudience(s.audience),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

func (s *TokenService) registered(now time.Time, ttl time.Duration, subject string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
}
