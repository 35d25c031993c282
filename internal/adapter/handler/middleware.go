package handler

import (
	"net/http"
	"strings"

	"github.com/rl1809/storefront/internal/adapter/session"
)

// Authenticate resolves a bearer token into a session on the request
// context. Requests without a token continue anonymously; an unknown or
// expired token is rejected.
func (h *HTTPHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := h.sessions.GetSession(r.Context(), token)
		if err != nil {
			respondError(w, http.StatusBadGateway, "backend_failure", "session lookup failed")
			return
		}
		if sess == nil {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired session")
			return
		}

		next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

type createSessionRequest struct {
	UserID string `json:"userId"`
}

// CreateSession is a development sign-in: it mints a token for any user ID.
func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "userId is required")
		return
	}

	sess, err := h.sessions.CreateSession(r.Context(), req.UserID)
	if err != nil {
		respondError(w, http.StatusBadGateway, "backend_failure", "could not create session")
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (h *HTTPHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "not signed in")
		return
	}
	if err := h.sessions.DeleteSession(r.Context(), sess.Token); err != nil {
		respondError(w, http.StatusBadGateway, "backend_failure", "could not delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
