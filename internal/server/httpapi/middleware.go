package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/filepin/internal/server/auth"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

// ownerID returns the authenticated principal stored by the auth
// middleware.
func ownerID(r *http.Request) string {
	v, _ := r.Context().Value(ownerIDKey).(string)
	return v
}

// authMiddleware resolves the bearer token into an owner id. The token is
// taken from the Authorization header; a "token" query parameter is
// accepted as a fallback because the browser EventSource API cannot set
// headers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else if q := r.URL.Query().Get("token"); q != "" {
			token = q
		}
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing token"})
			return
		}

		userID, err := auth.GetUserIDFromToken(token, s.secretKey)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), ownerIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
