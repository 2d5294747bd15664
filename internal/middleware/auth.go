package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/closeshop/internal/auth"
	"github.com/dukerupert/closeshop/internal/store"
)

// RequireAuth validates the bearer access token and populates AuthContext.
// The session the token was issued for must still exist, so signing out
// revokes outstanding access tokens. The role is read from the profile row on
// every request; the token's role claim is never trusted.
func RequireAuth(tokens *auth.TokenIssuer, sessionStore *store.SessionStore, profileStore *store.ProfileStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing access token")
				return
			}

			ac, err := tokens.Parse(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid access token")
				return
			}

			sess, err := sessionStore.GetByID(ac.SessionID)
			if err != nil || sess == nil || sess.UserID != ac.UserID {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			profile, err := profileStore.Get(ac.UserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to load profile")
				return
			}
			if profile == nil {
				writeError(w, http.StatusUnauthorized, "user not found")
				return
			}
			ac.Role = profile.Role

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter for websocket upgrades.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
