package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/accessly/accessly/pkg/httputil"
	"github.com/accessly/accessly/pkg/scans"
)

// SiteHandlers handles site and url HTTP requests
type SiteHandlers struct {
	store *scans.Store
}

// NewSiteHandlers creates a new site handlers instance
func NewSiteHandlers(store *scans.Store) *SiteHandlers {
	return &SiteHandlers{store: store}
}

// RegisterRoutes registers site and url routes
func (h *SiteHandlers) RegisterRoutes(router *mux.Router) {
	// Site routes
	router.HandleFunc("/sites", h.createSite).Methods("POST")
	router.HandleFunc("/sites", h.listSites).Methods("GET")
	router.HandleFunc("/sites/{id}", h.getSite).Methods("GET")
	router.HandleFunc("/sites/{id}", h.updateSite).Methods("PUT")
	router.HandleFunc("/sites/{id}", h.deleteSite).Methods("DELETE")

	// URL routes
	router.HandleFunc("/sites/{id}/urls", h.createURL).Methods("POST")
	router.HandleFunc("/sites/{id}/urls", h.listURLs).Methods("GET")
	router.HandleFunc("/urls/{id}", h.getURL).Methods("GET")
	router.HandleFunc("/urls/{id}", h.updateURL).Methods("PUT")
	router.HandleFunc("/urls/{id}", h.deleteURL).Methods("DELETE")
}

// createSite handles POST /sites
func (h *SiteHandlers) createSite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string          `json:"name"`
		BaseURL     string          `json:"base_url"`
		IsRunnable  bool            `json:"is_runnable"`
		IsScheduled bool            `json:"is_scheduled"`
		Schedule    string          `json:"schedule"`
		ScanConfig  json.RawMessage `json:"scan_config"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.BaseURL, "base_url") {
		return
	}

	site, err := h.store.CreateSite(r.Context(), callerPermissions(r), &scans.Site{
		Name:        req.Name,
		BaseURL:     req.BaseURL,
		IsRunnable:  req.IsRunnable,
		IsScheduled: req.IsScheduled,
		Schedule:    req.Schedule,
		ScanConfig:  req.ScanConfig,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteCreated(w, site)
}

// listSites handles GET /sites
func (h *SiteHandlers) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.store.ListSites(r.Context(), callerPermissions(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, sites)
}

// getSite handles GET /sites/{id}
func (h *SiteHandlers) getSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	site, err := h.store.GetSite(r.Context(), callerPermissions(r), siteID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, site)
}

// updateSite handles PUT /sites/{id}
func (h *SiteHandlers) updateSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name        string          `json:"name"`
		BaseURL     string          `json:"base_url"`
		IsRunnable  bool            `json:"is_runnable"`
		IsScheduled bool            `json:"is_scheduled"`
		Schedule    string          `json:"schedule"`
		ScanConfig  json.RawMessage `json:"scan_config"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.BaseURL, "base_url") {
		return
	}

	site := &scans.Site{
		ID:          siteID,
		Name:        req.Name,
		BaseURL:     req.BaseURL,
		IsRunnable:  req.IsRunnable,
		IsScheduled: req.IsScheduled,
		Schedule:    req.Schedule,
		ScanConfig:  req.ScanConfig,
	}
	if err := h.store.UpdateSite(r.Context(), callerPermissions(r), site); err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, site)
}

// deleteSite handles DELETE /sites/{id}
func (h *SiteHandlers) deleteSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteSite(r.Context(), callerPermissions(r), siteID); err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// createURL handles POST /sites/{id}/urls
func (h *SiteHandlers) createURL(w http.ResponseWriter, r *http.Request) {
	siteID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name       string          `json:"name"`
		Address    string          `json:"address"`
		ScanConfig json.RawMessage `json:"scan_config"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Address, "address") {
		return
	}

	url, err := h.store.CreateURL(r.Context(), callerPermissions(r), &scans.URL{
		SiteID:     siteID,
		Name:       req.Name,
		Address:    req.Address,
		ScanConfig: req.ScanConfig,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteCreated(w, url)
}

// listURLs handles GET /sites/{id}/urls
func (h *SiteHandlers) listURLs(w http.ResponseWriter, r *http.Request) {
	siteID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	urls, err := h.store.ListURLsForSite(r.Context(), callerPermissions(r), siteID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, urls)
}

// getURL handles GET /urls/{id}
func (h *SiteHandlers) getURL(w http.ResponseWriter, r *http.Request) {
	urlID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	url, err := h.store.GetURL(r.Context(), callerPermissions(r), urlID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, url)
}

// updateURL handles PUT /urls/{id}
func (h *SiteHandlers) updateURL(w http.ResponseWriter, r *http.Request) {
	urlID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name       string          `json:"name"`
		Address    string          `json:"address"`
		ScanConfig json.RawMessage `json:"scan_config"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Address, "address") {
		return
	}

	url := &scans.URL{
		ID:         urlID,
		Name:       req.Name,
		Address:    req.Address,
		ScanConfig: req.ScanConfig,
	}
	if err := h.store.UpdateURL(r.Context(), callerPermissions(r), url); err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, url)
}

// deleteURL handles DELETE /urls/{id}
func (h *SiteHandlers) deleteURL(w http.ResponseWriter, r *http.Request) {
	urlID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteURL(r.Context(), callerPermissions(r), urlID); err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
