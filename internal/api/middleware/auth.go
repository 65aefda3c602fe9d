package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user_id"

// AuthMiddleware verifies bearer tokens on authenticated endpoints.
// Token issuance is handled elsewhere; this only verifies HS256
// signatures and extracts the user identity from the sub claim.
type AuthMiddleware struct {
	secret []byte
}

// NewAuthMiddleware creates a new auth middleware over the shared secret.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// RequireAuth verifies the Authorization header and injects the caller's
// user ID into the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			jsonError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			jsonError(w, http.StatusUnauthorized, "authorization header must be a bearer token")
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return m.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			jsonError(w, http.StatusUnauthorized, "token missing subject claim")
			return
		}
		userID, err := uuid.Parse(sub)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "token subject is not a valid user ID")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}

// GetUserID retrieves the authenticated user ID from the request
// context. The zero UUID means the request was not authenticated.
func GetUserID(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(userContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
