package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	middleware "github.com/markdave123-py/docqa/internal/api/middlewares"
)

// sessionTTL bounds how long an anonymous identity stays usable without renewal.
const sessionTTL = 30 * 24 * time.Hour

type userEnsurer interface {
	EnsureUser(ctx context.Context, userID string) error
}

type SessionHandler struct {
	users  userEnsurer
	secret string
	secure bool
}

func NewSessionHandler(users userEnsurer, secret string, secureCookie bool) *SessionHandler {
	return &SessionHandler{users: users, secret: secret, secure: secureCookie}
}

// Create issues a session for a new anonymous user, or renews the caller's
// session when it still carries a valid token.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if tok := middleware.TokenFromRequest(r); tok != "" {
		if id, err := middleware.ParseToken(h.secret, tok); err == nil {
			userID = id
		}
	}
	if userID == "" {
		userID = uuid.NewString()
	}

	if err := h.users.EnsureUser(r.Context(), userID); err != nil {
		writeError(w, "session", err)
		return
	}

	token, err := middleware.GenerateToken(h.secret, userID, sessionTTL)
	if err != nil {
		writeError(w, "session", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "userId": userID})
}
