package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/tmhinkle/fitgateway/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

// AuthMiddlewareHandler guards all endpoints with the shared API key,
// the same way the original deployment fronts the service. The key is
// provided by the caller in the X-API-KEY header.
type AuthMiddlewareHandler struct {
	apiKey               string
	allowedPaths         map[string]bool
	allowedPathsPrefixes []string
}

func NewAuthMiddlewareHandler(apiKey string) *AuthMiddlewareHandler {
	return &AuthMiddlewareHandler{
		apiKey: apiKey,
		allowedPaths: map[string]bool{
			"/":        true,
			"/version": true,
		},
	}
}

func (h *AuthMiddlewareHandler) pathIsAlwaysAllowed(path string) bool {
	if h.allowedPaths[path] {
		return true
	}
	for _, prefix := range h.allowedPathsPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (h *AuthMiddlewareHandler) AuthCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, span := tracing.GlobalTracer.Start(r.Context(), "middleware.auth")
			defer span.End()

			if r.Method == http.MethodOptions {
				w.Header().Add("Allow", "GET, POST, PUT, DELETE, OPTIONS")
				w.WriteHeader(http.StatusOK)
				span.SetStatus(codes.Ok, "options-ok")
				return
			}

			if h.pathIsAlwaysAllowed(r.URL.Path) {
				span.SetStatus(codes.Ok, "ok")
				next.ServeHTTP(w, r)
				return
			}

			requestApiKey := r.Header.Get("X-API-KEY")
			if requestApiKey == "" {
				log.Tracef("[missing api key] [auth middleware] unauthorized => %s", r.URL.Path)
				http.Error(w, "Unauthorized", http.StatusForbidden)
				span.SetStatus(codes.Error, "missing-api-key")
				return
			}

			if subtle.ConstantTimeCompare([]byte(requestApiKey), []byte(h.apiKey)) != 1 {
				log.Tracef("[invalid api key] [auth middleware] unauthorized => %s", r.URL.Path)
				http.Error(w, "Unauthorized", http.StatusForbidden)
				span.SetStatus(codes.Error, "invalid-api-key")
				return
			}

			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r)
		})
	}
}
