package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/accessly/accessly/pkg/auth"
	"github.com/accessly/accessly/pkg/httputil"
	"github.com/accessly/accessly/pkg/middleware"
	"github.com/accessly/accessly/pkg/store"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	creds    *auth.CredentialStore
	sessions *auth.SessionStore
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(creds *auth.CredentialStore, sessions *auth.SessionStore) *AuthHandlers {
	return &AuthHandlers{
		creds:    creds,
		sessions: sessions,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	// Session routes
	router.HandleFunc("/auth/login", h.login).Methods("POST")
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
	router.HandleFunc("/auth/me", h.currentIdentity).Methods("GET")

	// User management routes (admin)
	router.HandleFunc("/auth/users", h.createUser).Methods("POST")
	router.HandleFunc("/auth/users", h.listUsers).Methods("GET")
	router.HandleFunc("/auth/users/{id}", h.getUser).Methods("GET")
	router.HandleFunc("/auth/users/{id}/grants", h.updateGrants).Methods("PUT")
	router.HandleFunc("/auth/users/{id}", h.deleteUser).Methods("DELETE")

	// API key routes
	router.HandleFunc("/auth/users/{id}/key", h.regenerateKey).Methods("POST")
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	user, err := h.creds.FetchUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Same response as a wrong password: never confirm which
			// part of the credential pair was wrong.
			httputil.WriteUnauthorized(w, "invalid credentials")
			return
		}
		writeStoreError(w, err)
		return
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		httputil.WriteUnauthorized(w, "invalid credentials")
		return
	}

	session, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    session.SID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	httputil.WriteSuccess(w, map[string]interface{}{
		"user":       user,
		"expires_at": session.ExpiresAt,
	})
}

// logout handles POST /auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	httputil.WriteNoContent(w)
}

// currentIdentity handles GET /auth/me
func (h *AuthHandlers) currentIdentity(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r.Context())
	if authCtx == nil {
		httputil.WriteInternalError(w, errors.New("missing auth context"))
		return
	}

	response := map[string]interface{}{
		"kind":        authCtx.Identity.Kind.String(),
		"permissions": authCtx.Permissions,
	}
	if authCtx.Identity.User != nil {
		response["user"] = authCtx.Identity.User
	}

	httputil.WriteSuccess(w, response)
}

// createUser handles POST /auth/users
func (h *AuthHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	if !callerPermissions(r).Has(auth.Admin) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	var req struct {
		Email    string      `json:"email"`
		Password string      `json:"password"`
		IsOwner  bool        `json:"is_owner"`
		Grants   auth.Grants `json:"grants"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	user, err := h.creds.CreateUser(r.Context(), req.Email, passwordHash, req.IsOwner, req.Grants)
	if err != nil {
		if store.IsUniqueViolation(err) {
			httputil.WriteConflict(w, "email already registered")
			return
		}
		writeStoreError(w, err)
		return
	}

	httputil.WriteCreated(w, user)
}

// listUsers handles GET /auth/users
func (h *AuthHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	if !callerPermissions(r).Has(auth.Admin) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	users, err := h.creds.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, users)
}

// getUser handles GET /auth/users/{id}
func (h *AuthHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	if !callerPermissions(r).Has(auth.Admin) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.creds.FetchUserByID(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, user)
}

// updateGrants handles PUT /auth/users/{id}/grants
func (h *AuthHandlers) updateGrants(w http.ResponseWriter, r *http.Request) {
	if !callerPermissions(r).Has(auth.Admin) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		IsOwner bool        `json:"is_owner"`
		Grants  auth.Grants `json:"grants"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.creds.UpdateGrants(r.Context(), userID, req.IsOwner, req.Grants); err != nil {
		writeStoreError(w, err)
		return
	}

	user, err := h.creds.FetchUserByID(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, user)
}

// deleteUser handles DELETE /auth/users/{id}
func (h *AuthHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	if !callerPermissions(r).Has(auth.Admin) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.creds.DeleteUser(r.Context(), userID); err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// regenerateKey handles POST /auth/users/{id}/key. Admins can rotate any
// user's key; everyone else only their own. The plaintext secret appears
// in this response and nowhere else.
func (h *AuthHandlers) regenerateKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	authCtx := middleware.GetAuthContext(r.Context())
	isSelf := authCtx != nil && authCtx.Identity.User != nil && authCtx.Identity.User.ID == userID
	if !isSelf && !callerPermissions(r).Has(auth.Admin) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if r.ContentLength > 0 && !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	key, secret, err := h.creds.RegenerateAPIKey(r.Context(), userID, req.Description)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"key":    key,
		"secret": secret,
	})
}
