package scans

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/accessly/accessly/pkg/auth"
	"github.com/accessly/accessly/pkg/store"
)

// Store persists sites, urls, results and issues.
//
// Every operation takes the caller's resolved permission set and checks
// the required dimension before touching any data. Deletions remove the
// whole dependent subtree inside one transaction: a concurrent reader
// either sees the full subtree or none of it.
type Store struct {
	db *sql.DB
}

// NewStore creates a scan data store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func require(perms auth.PermissionSet, dim auth.Dimension) error {
	if !perms.Has(dim) {
		return auth.ErrAuthorizationDenied
	}
	return nil
}

// validateSchedule rejects malformed cron expressions on scheduled sites
func validateSchedule(site *Site) error {
	if !site.IsScheduled || site.Schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(site.Schedule); err != nil {
		return fmt.Errorf("invalid schedule expression %q: %w", site.Schedule, err)
	}
	return nil
}

func emptyConfig(cfg []byte) []byte {
	if len(cfg) == 0 {
		return []byte("{}")
	}
	return cfg
}

// ListSites returns all sites ordered by name. Requires read.
func (s *Store) ListSites(ctx context.Context, perms auth.PermissionSet) ([]Site, error) {
	if err := require(perms, auth.Read); err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, base_url, is_runnable, is_scheduled, schedule, scan_config, created_at, updated_at
		FROM sites
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}

	return sites, rows.Err()
}

// GetSite retrieves one site. Requires read.
func (s *Store) GetSite(ctx context.Context, perms auth.PermissionSet, id string) (*Site, error) {
	if err := require(perms, auth.Read); err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, base_url, is_runnable, is_scheduled, schedule, scan_config, created_at, updated_at
		FROM sites
		WHERE id = $1
	`
	return scanSite(s.db.QueryRowContext(ctx, query, id))
}

// CreateSite registers a new site with a freshly assigned opaque id.
// Requires write.
func (s *Store) CreateSite(ctx context.Context, perms auth.PermissionSet, site *Site) (*Site, error) {
	if err := require(perms, auth.Write); err != nil {
		return nil, err
	}
	if err := validateSchedule(site); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO sites (id, name, base_url, is_runnable, is_scheduled, schedule, scan_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now()
		created := *site
		created.ID = uuid.New().String()
		created.CreatedAt = now
		created.UpdatedAt = now

		_, err := s.db.ExecContext(ctx, query,
			created.ID,
			created.Name,
			created.BaseURL,
			created.IsRunnable,
			created.IsScheduled,
			nullable(created.Schedule),
			emptyConfig(created.ScanConfig),
			now,
			now,
		)
		if err == nil {
			return &created, nil
		}
		if !store.IsUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create site: %w", err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to create site after id retry: %w", lastErr)
}

// UpdateSite replaces a site's mutable fields. Requires write.
func (s *Store) UpdateSite(ctx context.Context, perms auth.PermissionSet, site *Site) error {
	if err := require(perms, auth.Write); err != nil {
		return err
	}
	if err := validateSchedule(site); err != nil {
		return err
	}

	query := `
		UPDATE sites
		SET name = $1, base_url = $2, is_runnable = $3, is_scheduled = $4, schedule = $5, scan_config = $6, updated_at = $7
		WHERE id = $8
	`

	site.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query,
		site.Name,
		site.BaseURL,
		site.IsRunnable,
		site.IsScheduled,
		nullable(site.Schedule),
		emptyConfig(site.ScanConfig),
		site.UpdatedAt,
		site.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}

	return requireAffected(result)
}

// DeleteSite removes a site and its whole subtree of urls, results and
// issues in one transaction. Requires delete.
func (s *Store) DeleteSite(ctx context.Context, perms auth.PermissionSet, id string) error {
	if err := require(perms, auth.Delete); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Transient(err)
	}
	defer tx.Rollback()

	// Ordered leaf-first deletes rather than relying on the FK cascade
	steps := []string{
		`DELETE FROM issues WHERE result_id IN (SELECT id FROM results WHERE site_id = $1)`,
		`DELETE FROM results WHERE site_id = $1`,
		`DELETE FROM urls WHERE site_id = $1`,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step, id); err != nil {
			return fmt.Errorf("failed to cascade site deletion: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return store.Transient(err)
	}
	return nil
}

// ListURLsForSite returns a site's urls ordered by name. Requires read.
func (s *Store) ListURLsForSite(ctx context.Context, perms auth.PermissionSet, siteID string) ([]URL, error) {
	if err := require(perms, auth.Read); err != nil {
		return nil, err
	}

	query := `
		SELECT id, site_id, name, address, scan_config, created_at, updated_at
		FROM urls
		WHERE site_id = $1
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	defer rows.Close()

	var urls []URL
	for rows.Next() {
		url, err := scanURL(rows)
		if err != nil {
			return nil, err
		}
		urls = append(urls, *url)
	}

	return urls, rows.Err()
}

// GetURL retrieves one url. Requires read.
func (s *Store) GetURL(ctx context.Context, perms auth.PermissionSet, id string) (*URL, error) {
	if err := require(perms, auth.Read); err != nil {
		return nil, err
	}

	query := `
		SELECT id, site_id, name, address, scan_config, created_at, updated_at
		FROM urls
		WHERE id = $1
	`
	return scanURL(s.db.QueryRowContext(ctx, query, id))
}

// CreateURL adds a url to a site. The site must exist. Requires write.
func (s *Store) CreateURL(ctx context.Context, perms auth.PermissionSet, url *URL) (*URL, error) {
	if err := require(perms, auth.Write); err != nil {
		return nil, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sites WHERE id = $1`, url.SiteID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check site: %w", err)
	}

	query := `
		INSERT INTO urls (id, site_id, name, address, scan_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now()
		created := *url
		created.ID = uuid.New().String()
		created.CreatedAt = now
		created.UpdatedAt = now

		_, err := s.db.ExecContext(ctx, query,
			created.ID,
			created.SiteID,
			created.Name,
			created.Address,
			emptyConfig(created.ScanConfig),
			now,
			now,
		)
		if err == nil {
			return &created, nil
		}
		if !store.IsUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create url: %w", err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to create url after id retry: %w", lastErr)
}

// UpdateURL replaces a url's mutable fields. The owning site reference is
// immutable. Requires write.
func (s *Store) UpdateURL(ctx context.Context, perms auth.PermissionSet, url *URL) error {
	if err := require(perms, auth.Write); err != nil {
		return err
	}

	query := `
		UPDATE urls
		SET name = $1, address = $2, scan_config = $3, updated_at = $4
		WHERE id = $5
	`

	url.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query,
		url.Name,
		url.Address,
		emptyConfig(url.ScanConfig),
		url.UpdatedAt,
		url.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update url: %w", err)
	}

	return requireAffected(result)
}

// DeleteURL removes a url and its results and issues in one transaction.
// Requires delete.
func (s *Store) DeleteURL(ctx context.Context, perms auth.PermissionSet, id string) error {
	if err := require(perms, auth.Delete); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Transient(err)
	}
	defer tx.Rollback()

	steps := []string{
		`DELETE FROM issues WHERE result_id IN (SELECT id FROM results WHERE url_id = $1)`,
		`DELETE FROM results WHERE url_id = $1`,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step, id); err != nil {
			return fmt.Errorf("failed to cascade url deletion: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM urls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete url: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return store.Transient(err)
	}
	return nil
}

// ListResultsForURL returns a url's results, newest first. Requires read.
func (s *Store) ListResultsForURL(ctx context.Context, perms auth.PermissionSet, urlID string) ([]Result, error) {
	if err := require(perms, auth.Read); err != nil {
		return nil, err
	}

	query := `
		SELECT id, site_id, url_id, created_at
		FROM results
		WHERE url_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, urlID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.SiteID, &r.URLID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// GetResult retrieves one result and verifies its denormalized site
// reference still matches its url's site. A mismatch is an integrity
// fault, not a lookup miss. Requires read.
func (s *Store) GetResult(ctx context.Context, perms auth.PermissionSet, id string) (*Result, error) {
	if err := require(perms, auth.Read); err != nil {
		return nil, err
	}

	query := `
		SELECT r.id, r.site_id, r.url_id, r.created_at, u.site_id
		FROM results r
		JOIN urls u ON u.id = r.url_id
		WHERE r.id = $1
	`

	var r Result
	var urlSiteID string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.SiteID, &r.URLID, &r.CreatedAt, &urlSiteID)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	if r.SiteID != urlSiteID {
		return nil, fmt.Errorf("%w: result %s references site %s but its url belongs to site %s",
			store.ErrIntegrityViolation, r.ID, r.SiteID, urlSiteID)
	}

	return &r, nil
}

// DeleteResult removes a result and its issues in one transaction.
// Requires delete.
func (s *Store) DeleteResult(ctx context.Context, perms auth.PermissionSet, id string) error {
	if err := require(perms, auth.Delete); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Transient(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE result_id = $1`, id); err != nil {
		return fmt.Errorf("failed to cascade result deletion: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return store.Transient(err)
	}
	return nil
}

// ListIssuesForResult returns a result's issues ordered by type then code.
// Requires read.
func (s *Store) ListIssuesForResult(ctx context.Context, perms auth.PermissionSet, resultID string) ([]Issue, error) {
	if err := require(perms, auth.Read); err != nil {
		return nil, err
	}

	query := `
		SELECT id, result_id, code, context, selector, message, type_code, runner, runner_extras, created_at
		FROM issues
		WHERE result_id = $1
		ORDER BY type_code ASC, code ASC
	`

	rows, err := s.db.QueryContext(ctx, query, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		var issue Issue
		var extras []byte
		err := rows.Scan(
			&issue.ID,
			&issue.ResultID,
			&issue.Code,
			&issue.Context,
			&issue.Selector,
			&issue.Message,
			&issue.TypeCode,
			&issue.Runner,
			&extras,
			&issue.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issue.RunnerExtras = extras
		issues = append(issues, issue)
	}

	return issues, rows.Err()
}

// RecordResult ingests one scan run: one result row plus one issue row per
// reported problem, all inside a single transaction. The url must exist;
// the result's site reference is derived from the url so the denormalized
// pair cannot diverge. Issue type codes unknown to the dictionary are
// normalized to the unknown entry rather than rejected, to tolerate
// forward-compatible scan engines. Requires write.
func (s *Store) RecordResult(ctx context.Context, perms auth.PermissionSet, urlID string, issues []IssueInput) (*Result, error) {
	if err := require(perms, auth.Write); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Transient(err)
	}
	defer tx.Rollback()

	var siteID string
	err = tx.QueryRowContext(ctx, `SELECT site_id FROM urls WHERE id = $1`, urlID).Scan(&siteID)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve url: %w", err)
	}

	knownTypes, err := loadIssueTypeCodes(ctx, tx)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ID:        uuid.New().String(),
		SiteID:    siteID,
		URLID:     urlID,
		CreatedAt: time.Now(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO results (id, site_id, url_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, result.ID, result.SiteID, result.URLID, result.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create result: %w", err)
	}

	for _, input := range issues {
		typeCode := input.TypeCode
		if !knownTypes[typeCode] {
			typeCode = IssueTypeUnknown
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO issues (id, result_id, code, context, selector, message, type_code, runner, runner_extras, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			uuid.New().String(),
			result.ID,
			input.Code,
			input.Context,
			input.Selector,
			input.Message,
			typeCode,
			input.Runner,
			emptyConfig(input.RunnerExtras),
			result.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create issue: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, store.Transient(err)
	}

	return result, nil
}

// ListIssueTypes returns the severity dictionary ordered by code ascending
// for stable display. Requires read.
func (s *Store) ListIssueTypes(ctx context.Context, perms auth.PermissionSet) ([]IssueType, error) {
	if err := require(perms, auth.Read); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT code, description FROM issue_types ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list issue types: %w", err)
	}
	defer rows.Close()

	var types []IssueType
	for rows.Next() {
		var t IssueType
		if err := rows.Scan(&t.Code, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan issue type: %w", err)
		}
		types = append(types, t)
	}

	return types, rows.Err()
}

func loadIssueTypeCodes(ctx context.Context, tx *sql.Tx) (map[int]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT code FROM issue_types`)
	if err != nil {
		return nil, fmt.Errorf("failed to load issue types: %w", err)
	}
	defer rows.Close()

	codes := make(map[int]bool)
	for rows.Next() {
		var code int
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan issue type code: %w", err)
		}
		codes[code] = true
	}

	return codes, rows.Err()
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanSite(scanner interface {
	Scan(dest ...interface{}) error
}) (*Site, error) {
	var site Site
	var schedule sql.NullString
	var config []byte

	err := scanner.Scan(
		&site.ID,
		&site.Name,
		&site.BaseURL,
		&site.IsRunnable,
		&site.IsScheduled,
		&schedule,
		&config,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan site: %w", err)
	}

	if schedule.Valid {
		site.Schedule = schedule.String
	}
	site.ScanConfig = config

	return &site, nil
}

func scanURL(scanner interface {
	Scan(dest ...interface{}) error
}) (*URL, error) {
	var url URL
	var config []byte

	err := scanner.Scan(
		&url.ID,
		&url.SiteID,
		&url.Name,
		&url.Address,
		&config,
		&url.CreatedAt,
		&url.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan url: %w", err)
	}

	url.ScanConfig = config

	return &url, nil
}
