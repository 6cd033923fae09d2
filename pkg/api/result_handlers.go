package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/accessly/accessly/pkg/httputil"
	"github.com/accessly/accessly/pkg/observability"
	"github.com/accessly/accessly/pkg/scans"
)

// ResultHandlers handles scan result and issue HTTP requests
type ResultHandlers struct {
	store   *scans.Store
	metrics *observability.Metrics
}

// NewResultHandlers creates a new result handlers instance
func NewResultHandlers(store *scans.Store, metrics *observability.Metrics) *ResultHandlers {
	return &ResultHandlers{
		store:   store,
		metrics: metrics,
	}
}

// RegisterRoutes registers result and issue routes
func (h *ResultHandlers) RegisterRoutes(router *mux.Router) {
	// Result routes
	router.HandleFunc("/urls/{id}/results", h.recordResult).Methods("POST")
	router.HandleFunc("/urls/{id}/results", h.listResults).Methods("GET")
	router.HandleFunc("/results/{id}", h.getResult).Methods("GET")
	router.HandleFunc("/results/{id}", h.deleteResult).Methods("DELETE")

	// Issue routes
	router.HandleFunc("/results/{id}/issues", h.listIssues).Methods("GET")
	router.HandleFunc("/issue-types", h.listIssueTypes).Methods("GET")
}

// recordResult handles POST /urls/{id}/results
func (h *ResultHandlers) recordResult(w http.ResponseWriter, r *http.Request) {
	urlID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Issues []struct {
			Code         string          `json:"code"`
			Context      string          `json:"context"`
			Selector     string          `json:"selector"`
			Message      string          `json:"message"`
			TypeCode     int             `json:"type_code"`
			Runner       string          `json:"runner"`
			RunnerExtras json.RawMessage `json:"runner_extras"`
		} `json:"issues"`
	}

	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	issues := make([]scans.IssueInput, 0, len(req.Issues))
	for _, issue := range req.Issues {
		issues = append(issues, scans.IssueInput{
			Code:         issue.Code,
			Context:      issue.Context,
			Selector:     issue.Selector,
			Message:      issue.Message,
			TypeCode:     issue.TypeCode,
			Runner:       issue.Runner,
			RunnerExtras: issue.RunnerExtras,
		})
	}

	result, err := h.store.RecordResult(r.Context(), callerPermissions(r), urlID, issues)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ResultsRecordedTotal.Inc()
		for _, issue := range issues {
			h.metrics.IssuesRecordedTotal.WithLabelValues(strconv.Itoa(issue.TypeCode)).Inc()
		}
	}

	httputil.WriteCreated(w, result)
}

// listResults handles GET /urls/{id}/results
func (h *ResultHandlers) listResults(w http.ResponseWriter, r *http.Request) {
	urlID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	results, err := h.store.ListResultsForURL(r.Context(), callerPermissions(r), urlID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, results)
}

// getResult handles GET /results/{id}
func (h *ResultHandlers) getResult(w http.ResponseWriter, r *http.Request) {
	resultID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	result, err := h.store.GetResult(r.Context(), callerPermissions(r), resultID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// deleteResult handles DELETE /results/{id}
func (h *ResultHandlers) deleteResult(w http.ResponseWriter, r *http.Request) {
	resultID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteResult(r.Context(), callerPermissions(r), resultID); err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// listIssues handles GET /results/{id}/issues
func (h *ResultHandlers) listIssues(w http.ResponseWriter, r *http.Request) {
	resultID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	issues, err := h.store.ListIssuesForResult(r.Context(), callerPermissions(r), resultID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, issues)
}

// listIssueTypes handles GET /issue-types
func (h *ResultHandlers) listIssueTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.store.ListIssueTypes(r.Context(), callerPermissions(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	httputil.WriteSuccess(w, types)
}
