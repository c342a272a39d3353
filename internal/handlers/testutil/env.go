package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/api"
	"github.com/authgate/authgate/internal/app"
	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/database/testutil"
	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/pkg/mail"
)

// RecordingMailer captures outbound messages for assertions.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *RecordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *RecordingMailer) Messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// LastMessage returns the most recent message, failing the test when none exists.
func (m *RecordingMailer) LastMessage(t *testing.T) mail.Message {
	t.Helper()
	msgs := m.Messages()
	require.NotEmpty(t, msgs, "no email was sent")
	return msgs[len(msgs)-1]
}

// Env hosts a fully wired router over an in-memory database.
type Env struct {
	T        *testing.T
	Router   *gin.Engine
	Store    *store.Store
	Sessions *auth.SessionService
	Tokens   *auth.TokenService
	Mailer   *RecordingMailer
}

// NewEnv builds the full HTTP stack for handler tests.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	st, err := store.New(db)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "authgate-test",
	})
	require.NoError(t, err)

	sessions, err := auth.NewSessionService(st, tokens, auth.SessionConfig{})
	require.NoError(t, err)

	mailer := &RecordingMailer{}
	accounts, err := auth.NewAccountService(st, sessions, mailer, auth.AccountConfig{
		BaseURL: "https://app.example.com",
	})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Server.CookieSecure = false
	cfg.Monitoring.Health.Enabled = true

	router, err := api.NewRouter(cfg, api.Deps{
		DB:       db,
		Store:    st,
		Tokens:   tokens,
		Sessions: sessions,
		Accounts: accounts,
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		Router:   router,
		Store:    st,
		Sessions: sessions,
		Tokens:   tokens,
		Mailer:   mailer,
	}
}

// Request performs an HTTP request against the router with optional JSON body and cookies.
func (e *Env) Request(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "handlers-test")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Register creates an account through the API and returns the issued cookies.
func (e *Env) Register(email, password string) []*http.Cookie {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/auth/register", map[string]string{
		"email":           email,
		"password":        password,
		"confirmPassword": password,
	})
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())
	return w.Result().Cookies()
}

// Login authenticates through the API and returns the issued cookies.
func (e *Env) Login(email, password string) []*http.Cookie {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
	return w.Result().Cookies()
}

// Cookie returns the named cookie from a set, or nil.
func Cookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// CodeFromEmail extracts the code that follows prefix in an email body.
func CodeFromEmail(t *testing.T, body, prefix string) string {
	t.Helper()

	idx := strings.Index(body, prefix)
	require.GreaterOrEqual(t, idx, 0, "email body missing link prefix")

	rest := body[idx+len(prefix):]
	if end := strings.IndexAny(rest, "\n& "); end >= 0 {
		return rest[:end]
	}
	return rest
}
