package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/accessly/accessly/pkg/auth"
	"github.com/accessly/accessly/pkg/httputil"
	"github.com/accessly/accessly/pkg/middleware"
	"github.com/accessly/accessly/pkg/observability"
	"github.com/accessly/accessly/pkg/scans"
	"github.com/accessly/accessly/pkg/settings"
	"github.com/accessly/accessly/pkg/store"
)

// Server represents our API server
type Server struct {
	router           *mux.Router
	authenticator    *auth.Authenticator
	metrics          *observability.Metrics
	authHandlers     *AuthHandlers
	siteHandlers     *SiteHandlers
	resultHandlers   *ResultHandlers
	settingsHandlers *SettingsHandlers
}

// NewServer creates a new API server
func NewServer(
	authenticator *auth.Authenticator,
	creds *auth.CredentialStore,
	sessions *auth.SessionStore,
	scanStore *scans.Store,
	settingsStore *settings.Store,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		authenticator:    authenticator,
		metrics:          metrics,
		authHandlers:     NewAuthHandlers(creds, sessions),
		siteHandlers:     NewSiteHandlers(scanStore),
		resultHandlers:   NewResultHandlers(scanStore, metrics),
		settingsHandlers: NewSettingsHandlers(settingsStore),
	}

	s.router.Use(middleware.RequestID)
	if logger != nil {
		s.router.Use(middleware.Logging(logger))
	}
	if metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	s.router.Use(middleware.Authenticate(authenticator, metrics))

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.authHandlers.RegisterRoutes(s.router)
	s.siteHandlers.RegisterRoutes(s.router)
	s.resultHandlers.RegisterRoutes(s.router)
	s.settingsHandlers.RegisterRoutes(s.router)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// writeStoreError maps domain errors onto HTTP statuses
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.WriteNotFoundError(w, "not found")
	case errors.Is(err, auth.ErrAuthenticationRejected):
		httputil.WriteUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrAuthorizationDenied):
		httputil.WriteForbidden(w, "insufficient permissions")
	case errors.Is(err, store.ErrTransientStore):
		httputil.WriteServiceUnavailable(w, "storage backend unavailable")
	case errors.Is(err, store.ErrIntegrityViolation):
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "data integrity fault")
	default:
		httputil.WriteInternalError(w, err)
	}
}

// callerPermissions returns the request's resolved permission set. The
// authentication middleware always runs ahead of handlers; a missing
// context yields the empty set, which denies everything.
func callerPermissions(r *http.Request) auth.PermissionSet {
	if authCtx := middleware.GetAuthContext(r.Context()); authCtx != nil {
		return authCtx.Permissions
	}
	return auth.PermissionSet{}
}
