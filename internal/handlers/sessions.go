package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/authgate/authgate/internal/auth"
	apperrors "github.com/authgate/authgate/pkg/errors"
	"github.com/authgate/authgate/pkg/response"
)

// SessionHandler exposes the caller's session inventory: list active
// sessions, revoke one by id, or revoke all but the current one.
type SessionHandler struct {
	sessions *auth.SessionService
}

func NewSessionHandler(sessions *auth.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// GET /sessions
func (h *SessionHandler) List(c *gin.Context) {
	entries, err := h.sessions.ListActive(requestContext(c), currentUserID(c), currentSessionID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": entries})
}

// Delete revokes a session the caller explicitly named. A session that does
// not exist, or that belongs to another user, reads as not found.
func (h *SessionHandler) Delete(c *gin.Context) {
	err := h.sessions.Revoke(requestContext(c), currentUserID(c), c.Param("id"))
	if errors.Is(err, auth.ErrSessionNotFound) {
		response.Error(c, apperrors.New("SESSION_NOT_FOUND", "Session not found", http.StatusNotFound))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Session removed"})
}

// POST /sessions/revoke_all
func (h *SessionHandler) RevokeAll(c *gin.Context) {
	if err := h.sessions.RevokeOthers(requestContext(c), currentUserID(c), currentSessionID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Other sessions removed"})
}
