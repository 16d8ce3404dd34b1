package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"go.uber.org/zap"
)

// userTokenHeader carries the platform-issued user token on iframe requests
const userTokenHeader = "x-whop-user-token"

type contextKey string

const contextKeyUserID contextKey = "whop_user_id"

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GlobalLoggingMiddleware logs all HTTP requests
func GlobalLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logger.Base().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.RequestURI),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// CORSMiddleware adds CORS headers to all requests
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Whop-User-Token")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// TokenVerifier verifies a platform user token and returns the user ID
type TokenVerifier interface {
	VerifyUserToken(ctx context.Context, token string) (string, error)
}

// AuthMiddleware verifies the x-whop-user-token header and stores the
// resolved user ID in the request context. Requests without a valid token
// get a 401.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(userTokenHeader)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Missing x-whop-user-token header. Ensure you're accessing this app through Whop or using the dev proxy for local development.")
				return
			}

			userID, err := verifier.VerifyUserToken(r.Context(), token)
			if err != nil {
				logger.Base().Warn("user token verification failed",
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err))
				writeError(w, http.StatusUnauthorized, "Invalid user token")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userIDFromContext returns the authenticated user ID set by AuthMiddleware
func userIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(contextKeyUserID).(string); ok {
		return userID
	}
	return ""
}
