// Package settings manages the single process-wide configuration record:
// the default permission policy for anonymous traffic, the setup-completion
// flag, and the designated super admin.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/accessly/accessly/pkg/auth"
	"github.com/accessly/accessly/pkg/store"
)

// Settings is the process-wide configuration record. Exactly one logical
// row exists; its absence means the instance has not been set up yet.
type Settings struct {
	ID                 string             `json:"id"`
	DefaultPermissions auth.PermissionSet `json:"default_permissions"`
	SetupComplete      bool               `json:"setup_complete"`
	// SuperAdminID is informational: it names the account the setup flow
	// designated, display surfaces use it. It does not gate operations;
	// owner status on the user record does.
	SuperAdminID string    `json:"super_admin_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Update is a partial settings change; nil fields are left untouched
type Update struct {
	DefaultPermissions *auth.PermissionSet
	SetupComplete      *bool
	SuperAdminID       *string
}

// Store reads and writes the settings record. Reads are served from a
// copy-on-write cache: the row is read-mostly and shared by every request,
// so writes replace the cached pointer rather than mutating in place.
type Store struct {
	db     *sql.DB
	cached atomic.Pointer[Settings]
}

// NewStore creates a settings store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the settings record. When no row exists yet it returns a
// zero-value record ("not set up"), not an error. More than one row is a
// data-integrity fault and is surfaced, never silently resolved.
func (s *Store) Get(ctx context.Context) (*Settings, error) {
	if cached := s.cached.Load(); cached != nil {
		copied := *cached
		return &copied, nil
	}
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (*Settings, error) {
	query := `
		SELECT id, allow_read, allow_write, allow_delete, allow_admin, setup_complete, super_admin_id, updated_at
		FROM settings
		LIMIT 2
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, store.Transient(err)
	}
	defer rows.Close()

	var loaded []Settings
	for rows.Next() {
		var rec Settings
		var superAdminID sql.NullString
		err := rows.Scan(
			&rec.ID,
			&rec.DefaultPermissions.Read,
			&rec.DefaultPermissions.Write,
			&rec.DefaultPermissions.Delete,
			&rec.DefaultPermissions.Admin,
			&rec.SetupComplete,
			&superAdminID,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settings: %w", err)
		}
		if superAdminID.Valid {
			rec.SuperAdminID = superAdminID.String
		}
		loaded = append(loaded, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Transient(err)
	}

	switch len(loaded) {
	case 0:
		// Not set up yet: empty default policy, nothing cached so the
		// first real row is picked up as soon as it lands.
		return &Settings{}, nil
	case 1:
		rec := loaded[0]
		s.cached.Store(&rec)
		copied := rec
		return &copied, nil
	default:
		return nil, fmt.Errorf("%w: multiple settings rows", store.ErrIntegrityViolation)
	}
}

// Apply merges a partial update into the persisted record, creating it if
// this is the initial setup, and atomically replaces the cached copy.
// The caller's permission set must include admin.
func (s *Store) Apply(ctx context.Context, perms auth.PermissionSet, update Update) (*Settings, error) {
	if !perms.Admin {
		return nil, auth.ErrAuthorizationDenied
	}

	current, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	merged := *current
	if update.DefaultPermissions != nil {
		merged.DefaultPermissions = *update.DefaultPermissions
	}
	if update.SetupComplete != nil {
		merged.SetupComplete = *update.SetupComplete
	}
	if update.SuperAdminID != nil {
		merged.SuperAdminID = *update.SuperAdminID
	}
	merged.UpdatedAt = time.Now()

	if merged.ID == "" {
		merged.ID = uuid.New().String()
		err = s.insert(ctx, &merged)
	} else {
		err = s.update(ctx, &merged)
	}
	if err != nil {
		return nil, err
	}

	cached := merged
	s.cached.Store(&cached)
	copied := merged
	return &copied, nil
}

// Defaults implements auth.DefaultsSource: the permission set applied to
// anonymous identities.
func (s *Store) Defaults(ctx context.Context) (auth.PermissionSet, error) {
	rec, err := s.Get(ctx)
	if err != nil {
		return auth.PermissionSet{}, err
	}
	return rec.DefaultPermissions, nil
}

// Invalidate drops the cached record so the next read hits the database
func (s *Store) Invalidate() {
	s.cached.Store(nil)
}

func (s *Store) insert(ctx context.Context, rec *Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, allow_read, allow_write, allow_delete, allow_admin, setup_complete, super_admin_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		rec.ID,
		rec.DefaultPermissions.Read,
		rec.DefaultPermissions.Write,
		rec.DefaultPermissions.Delete,
		rec.DefaultPermissions.Admin,
		rec.SetupComplete,
		nullable(rec.SuperAdminID),
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create settings: %w", err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, rec *Settings) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE settings
		SET allow_read = $1, allow_write = $2, allow_delete = $3, allow_admin = $4, setup_complete = $5, super_admin_id = $6, updated_at = $7
		WHERE id = $8
	`,
		rec.DefaultPermissions.Read,
		rec.DefaultPermissions.Write,
		rec.DefaultPermissions.Delete,
		rec.DefaultPermissions.Admin,
		rec.SetupComplete,
		nullable(rec.SuperAdminID),
		rec.UpdatedAt,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
