package app

import "github.com/authgate/authgate/internal/auth"

// TokenServiceConfig converts AuthConfig into the parameters expected by the token service.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  c.JWT.AccessSecret,
		RefreshSecret: c.JWT.RefreshSecret,
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		AccessTTL:     c.JWT.AccessTTL,
		RefreshTTL:    c.Session.TTL,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	return auth.SessionConfig{
		SessionTTL:     c.Session.TTL,
		RotationWindow: c.Session.RotationWindow,
	}
}
