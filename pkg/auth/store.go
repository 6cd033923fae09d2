package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/accessly/accessly/pkg/store"
)

// CredentialStore persists users and API keys
type CredentialStore struct {
	db *sql.DB
}

// NewCredentialStore creates a new credential store
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// FetchUserByEmail retrieves a user by email. Used only by session login.
// A miss returns store.ErrNotFound.
func (s *CredentialStore) FetchUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, password_hash, is_owner, allow_read, allow_write, allow_delete, allow_admin, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// FetchUserByID retrieves a user by id. A miss returns store.ErrNotFound.
func (s *CredentialStore) FetchUserByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, password_hash, is_owner, allow_read, allow_write, allow_delete, allow_admin, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// FetchAPIKeyByID retrieves an API key by its public id.
// A miss returns store.ErrNotFound.
func (s *CredentialStore) FetchAPIKeyByID(ctx context.Context, id string) (*APIKey, error) {
	query := `
		SELECT id, secret_hash, user_id, description, created_at
		FROM api_keys
		WHERE id = $1
	`

	var key APIKey
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&key.ID,
		&key.SecretHash,
		&key.UserID,
		&key.Description,
		&key.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch api key: %w", err)
	}

	return &key, nil
}

// CreateUser provisions a new user with a freshly assigned opaque id.
// An id collision (vanishingly unlikely) is retried once with a new id,
// never silently overwritten.
func (s *CredentialStore) CreateUser(ctx context.Context, email, passwordHash string, isOwner bool, grants Grants) (*User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, is_owner, allow_read, allow_write, allow_delete, allow_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now()
		user := &User{
			ID:           uuid.New().String(),
			Email:        email,
			PasswordHash: passwordHash,
			IsOwner:      isOwner,
			Grants:       grants,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		_, err := s.db.ExecContext(ctx, query,
			user.ID,
			user.Email,
			user.PasswordHash,
			user.IsOwner,
			user.Grants.AllowRead,
			user.Grants.AllowWrite,
			user.Grants.AllowDelete,
			user.Grants.AllowAdmin,
			now,
			now,
		)
		if err == nil {
			return user, nil
		}
		if !store.IsUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to create user after id retry: %w", lastErr)
}

// UpdateGrants replaces a user's explicit grants and owner flag.
// This is the only mutation path for permissions.
func (s *CredentialStore) UpdateGrants(ctx context.Context, userID string, isOwner bool, grants Grants) error {
	query := `
		UPDATE users
		SET is_owner = $1, allow_read = $2, allow_write = $3, allow_delete = $4, allow_admin = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		isOwner,
		grants.AllowRead,
		grants.AllowWrite,
		grants.AllowDelete,
		grants.AllowAdmin,
		time.Now(),
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update grants: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check grant update: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return nil
}

// DeleteUser removes a user and, in the same transaction, all API keys the
// user owns. A user is never left referenced by orphaned keys.
func (s *CredentialStore) DeleteUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Transient(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user api keys: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check user deletion: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return store.Transient(err)
	}

	return nil
}

// RegenerateAPIKey atomically replaces the user's key material. The old
// key is invalid the moment the transaction commits. The new plaintext
// secret is returned exactly once and is never retrievable again.
func (s *CredentialStore) RegenerateAPIKey(ctx context.Context, userID, description string) (*APIKey, string, error) {
	secret, secretHash, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}

	key := &APIKey{
		ID:          uuid.New().String(),
		SecretHash:  secretHash,
		UserID:      userID,
		Description: description,
		CreatedAt:   time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", store.Transient(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = $1`, userID); err != nil {
		return nil, "", fmt.Errorf("failed to revoke previous api key: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO api_keys (id, secret_hash, user_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, key.ID, key.SecretHash, key.UserID, key.Description, key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create api key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, "", store.Transient(err)
	}

	return key, secret, nil
}

// ListUsers returns all users ordered by email, for the admin surface
func (s *CredentialStore) ListUsers(ctx context.Context) ([]User, error) {
	query := `
		SELECT id, email, password_hash, is_owner, allow_read, allow_write, allow_delete, allow_admin, created_at, updated_at
		FROM users
		ORDER BY email ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}

	return users, rows.Err()
}

func (s *CredentialStore) scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (*User, error) {
	var user User
	err := scanner.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsOwner,
		&user.Grants.AllowRead,
		&user.Grants.AllowWrite,
		&user.Grants.AllowDelete,
		&user.Grants.AllowAdmin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
