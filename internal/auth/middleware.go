package auth

import (
	"net/http"
	"strings"

	"trustgate/pkg/requestcontext"
)

// OptionalAuth attaches the account to the context when a valid bearer
// token is present. Requests without a token proceed unauthenticated (the
// free quota may still fund them); requests with a bad token are rejected
// rather than silently downgraded.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			accountID, err := tokens.Validate(raw)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			ctx := requestcontext.WithAccountID(r.Context(), accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeUnauthorized(w)
				return
			}
			accountID, err := tokens.Validate(raw)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			ctx := requestcontext.WithAccountID(r.Context(), accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid or expired token","code":"UNAUTHORIZED"}`))
}
