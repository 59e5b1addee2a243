package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type principalKey struct{}

// FromContext retrieves the verified principal from context.
// Returns nil if the request did not pass through Middleware.
func FromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey{}).(*Principal); ok {
		return p
	}
	return nil
}

// Middleware authenticates every request before the body is touched.
// A missing credential yields 401 "Unauthorized: missing token"; a
// credential the provider rejects yields 401 "Unauthorized: invalid token".
// The provider error is logged and never written to the response.
func Middleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := ExtractBearer(r.Header.Get("Authorization"))
			if err != nil {
				writeUnauthorized(w, "Unauthorized: missing token")
				return
			}

			p, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Error("token verification failed", slog.String("error", err.Error()))
				writeUnauthorized(w, "Unauthorized: invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
