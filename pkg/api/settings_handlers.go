package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/accessly/accessly/pkg/auth"
	"github.com/accessly/accessly/pkg/httputil"
	"github.com/accessly/accessly/pkg/settings"
)

// SettingsHandlers handles instance settings HTTP requests
type SettingsHandlers struct {
	store *settings.Store
}

// NewSettingsHandlers creates a new settings handlers instance
func NewSettingsHandlers(store *settings.Store) *SettingsHandlers {
	return &SettingsHandlers{store: store}
}

// RegisterRoutes registers settings routes
func (h *SettingsHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/settings", h.getSettings).Methods("GET")
	router.HandleFunc("/settings", h.updateSettings).Methods("PUT")
}

// getSettings handles GET /settings
func (h *SettingsHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	if !callerPermissions(r).Has(auth.Admin) {
		httputil.WriteForbidden(w, "insufficient permissions")
		return
	}

	record, err := h.store.Get(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, record)
}

// updateSettings handles PUT /settings
func (h *SettingsHandlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DefaultPermissions *auth.PermissionSet `json:"default_permissions"`
		SetupComplete      *bool               `json:"setup_complete"`
		SuperAdminID       *string             `json:"super_admin_id"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	record, err := h.store.Apply(r.Context(), callerPermissions(r), settings.Update{
		DefaultPermissions: req.DefaultPermissions,
		SetupComplete:      req.SetupComplete,
		SuperAdminID:       req.SuperAdminID,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, record)
}
