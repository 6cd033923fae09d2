// Package scans owns the Sites → URLs → Results → Issues data model and
// the issue-type dictionary. Every operation is gated on the caller's
// permission set before any data access happens.
package scans

import (
	"encoding/json"
	"time"
)

// Site is a registered site under scan
type Site struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	BaseURL     string          `json:"base_url"`
	IsRunnable  bool            `json:"is_runnable"`
	IsScheduled bool            `json:"is_scheduled"`
	// Schedule is a cron expression, validated but otherwise opaque to
	// this core; the external worker interprets it.
	Schedule   string          `json:"schedule,omitempty"`
	ScanConfig json.RawMessage `json:"scan_config,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// URL is a page of a site under scan. ScanConfig overrides the site-level
// configuration and is passed through to the worker unmodified.
type URL struct {
	ID         string          `json:"id"`
	SiteID     string          `json:"site_id"`
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	ScanConfig json.RawMessage `json:"scan_config,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Result is one scan run of one URL. SiteID is denormalized for query
// convenience and must always equal the URL's site.
type Result struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	URLID     string    `json:"url_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Issue is a single problem reported within a result
type Issue struct {
	ID           string          `json:"id"`
	ResultID     string          `json:"result_id"`
	Code         string          `json:"code"`
	Context      string          `json:"context"`
	Selector     string          `json:"selector"`
	Message      string          `json:"message"`
	TypeCode     int             `json:"type_code"`
	Runner       string          `json:"runner"`
	RunnerExtras json.RawMessage `json:"runner_extras,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// IssueInput is an issue as reported by the scan worker, before an id is
// assigned and the type code is normalized against the dictionary.
type IssueInput struct {
	Code         string          `json:"code"`
	Context      string          `json:"context"`
	Selector     string          `json:"selector"`
	Message      string          `json:"message"`
	TypeCode     int             `json:"type_code"`
	Runner       string          `json:"runner"`
	RunnerExtras json.RawMessage `json:"runner_extras,omitempty"`
}

// IssueType is an entry of the closed severity dictionary
type IssueType struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

// Issue type codes. The dictionary is reference data seeded by migration;
// runtime traffic never mutates it.
const (
	IssueTypeUnknown = 0
	IssueTypeError   = 1
	IssueTypeWarning = 2
	IssueTypeNotice  = 3
)
