package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/accessly/accessly/pkg/auth"
	"github.com/accessly/accessly/pkg/contextkeys"
	"github.com/accessly/accessly/pkg/httputil"
	"github.com/accessly/accessly/pkg/observability"
	"github.com/accessly/accessly/pkg/store"
)

// RequestID assigns every request an id, echoing a caller-supplied
// X-Request-ID when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging attaches a request-scoped logger and records completed requests
func Logging(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.WithFields(map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"request_id": contextkeys.GetRequestID(r.Context()),
			})

			ctx := observability.WithLogger(r.Context(), reqLogger)
			next.ServeHTTP(w, r.WithContext(ctx))

			reqLogger.Debug("request completed")
		})
	}
}

// Authenticate resolves the caller's identity and permissions and attaches
// the result to the request context. A request that presents no credentials
// proceeds as anonymous; a request that presents bad credentials is
// rejected outright.
func Authenticate(authenticator *auth.Authenticator, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := authenticator.Authenticate(r.Context(), r)
			if err != nil {
				if errors.Is(err, auth.ErrAuthenticationRejected) {
					if metrics != nil {
						metrics.AuthAttemptsTotal.WithLabelValues("rejected").Inc()
					}
					httputil.WriteUnauthorized(w, "invalid credentials")
					return
				}
				if errors.Is(err, store.ErrTransientStore) {
					httputil.WriteServiceUnavailable(w, "credential backend unavailable")
					return
				}
				httputil.WriteInternalError(w, err)
				return
			}

			if metrics != nil {
				metrics.AuthAttemptsTotal.WithLabelValues(authCtx.Identity.Kind.String()).Inc()
			}

			ctx := contextkeys.WithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates a handler on one permission dimension. Requests
// lacking the dimension get 403 regardless of how they authenticated.
func RequirePermission(dim auth.Dimension, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r.Context())
			if authCtx == nil || !authCtx.Permissions.Has(dim) {
				if metrics != nil {
					metrics.PermissionDenialsTotal.WithLabelValues(string(dim)).Inc()
				}
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetAuthContext returns the resolved auth context for the request, or nil
// when the authentication middleware did not run.
func GetAuthContext(ctx context.Context) *auth.AuthContext {
	if authCtx, ok := ctx.Value(contextkeys.AuthKey).(*auth.AuthContext); ok {
		return authCtx
	}
	return nil
}
