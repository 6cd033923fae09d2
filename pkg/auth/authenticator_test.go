package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/accessly/accessly/pkg/store"
)

type staticDefaults struct {
	set PermissionSet
}

func (d staticDefaults) Defaults(ctx context.Context) (PermissionSet, error) {
	return d.set, nil
}

type authFixture struct {
	authenticator *Authenticator
	creds         *CredentialStore
	sessions      *SessionStore
}

func newAuthFixture(t *testing.T, defaults PermissionSet) *authFixture {
	t.Helper()

	creds := NewCredentialStore(store.NewTestDB(t))
	sessions, _ := newTestSessionStore(t, time.Hour)
	verifier, err := NewSecretVerifier(2, 16)
	if err != nil {
		t.Fatalf("NewSecretVerifier failed: %v", err)
	}

	return &authFixture{
		authenticator: NewAuthenticator(creds, sessions, verifier, staticDefaults{defaults}),
		creds:         creds,
		sessions:      sessions,
	}
}

func TestAuthenticateAnonymous(t *testing.T) {
	defaults := PermissionSet{Read: true}
	f := newAuthFixture(t, defaults)

	r := httptest.NewRequest(http.MethodGet, "/sites", nil)
	authCtx, err := f.authenticator.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if authCtx.Identity.Kind != Anonymous {
		t.Errorf("kind = %s, want anonymous", authCtx.Identity.Kind)
	}
	if authCtx.Permissions != defaults {
		t.Errorf("permissions = %+v, want defaults %+v", authCtx.Permissions, defaults)
	}
}

func TestAuthenticateSession(t *testing.T) {
	f := newAuthFixture(t, PermissionSet{})
	ctx := context.Background()

	user, err := f.creds.CreateUser(ctx, "user@example.com", "hash", false, Grants{AllowRead: true, AllowWrite: true})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	session, err := f.sessions.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("session Create failed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/sites", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session.SID})

	authCtx, err := f.authenticator.Authenticate(ctx, r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if authCtx.Identity.Kind != SessionUser {
		t.Errorf("kind = %s, want session", authCtx.Identity.Kind)
	}
	if authCtx.Identity.User == nil || authCtx.Identity.User.ID != user.ID {
		t.Error("session identity not bound to the user")
	}
	want := PermissionSet{Read: true, Write: true}
	if authCtx.Permissions != want {
		t.Errorf("permissions = %+v, want %+v", authCtx.Permissions, want)
	}
}

func TestAuthenticateStaleSessionFallsThroughToAnonymous(t *testing.T) {
	defaults := PermissionSet{Read: true}
	f := newAuthFixture(t, defaults)

	r := httptest.NewRequest(http.MethodGet, "/sites", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "long-gone-sid"})

	authCtx, err := f.authenticator.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if authCtx.Identity.Kind != Anonymous {
		t.Errorf("stale cookie kind = %s, want anonymous", authCtx.Identity.Kind)
	}
}

func TestAuthenticateSessionOfDeletedUserFallsThrough(t *testing.T) {
	f := newAuthFixture(t, PermissionSet{Read: true})
	ctx := context.Background()

	user, err := f.creds.CreateUser(ctx, "user@example.com", "hash", false, Grants{})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	session, err := f.sessions.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("session Create failed: %v", err)
	}
	if err := f.creds.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/sites", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session.SID})

	authCtx, err := f.authenticator.Authenticate(ctx, r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if authCtx.Identity.Kind != Anonymous {
		t.Errorf("kind = %s, want anonymous", authCtx.Identity.Kind)
	}
}

func TestAuthenticateAPIKey(t *testing.T) {
	f := newAuthFixture(t, PermissionSet{})
	ctx := context.Background()

	user, err := f.creds.CreateUser(ctx, "worker@example.com", "hash", false, Grants{AllowWrite: true})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	key, secret, err := f.creds.RegenerateAPIKey(ctx, user.ID, "worker")
	if err != nil {
		t.Fatalf("RegenerateAPIKey failed: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/urls/u1/results", nil)
	r.Header.Set(APIKeyHeader, key.ID+":"+secret)

	authCtx, err := f.authenticator.Authenticate(ctx, r)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if authCtx.Identity.Kind != APIKeyUser {
		t.Errorf("kind = %s, want api_key", authCtx.Identity.Kind)
	}
	if authCtx.Identity.Key == nil || authCtx.Identity.Key.ID != key.ID {
		t.Error("identity not bound to the api key")
	}
	want := PermissionSet{Write: true}
	if authCtx.Permissions != want {
		t.Errorf("permissions = %+v, want %+v", authCtx.Permissions, want)
	}
}

func TestAuthenticateInvalidAPIKeyIsRejected(t *testing.T) {
	f := newAuthFixture(t, PermissionSet{Read: true})
	ctx := context.Background()

	user, err := f.creds.CreateUser(ctx, "worker@example.com", "hash", false, Grants{AllowWrite: true})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	key, _, err := f.creds.RegenerateAPIKey(ctx, user.ID, "worker")
	if err != nil {
		t.Fatalf("RegenerateAPIKey failed: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"malformed header", "no-separator"},
		{"empty key id", ":" + "aly_secret"},
		{"empty secret", key.ID + ":"},
		{"unknown key id", "no-such-key:aly_secret"},
		{"wrong secret", key.ID + ":aly_wrongsecret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/sites", nil)
			r.Header.Set(APIKeyHeader, tt.header)

			_, err := f.authenticator.Authenticate(ctx, r)
			if !errors.Is(err, ErrAuthenticationRejected) {
				t.Errorf("error = %v, want ErrAuthenticationRejected", err)
			}
			// Every failure mode returns exactly the sentinel, so callers
			// cannot leak which part of the credential pair was wrong.
			if err != ErrAuthenticationRejected {
				t.Errorf("error %v carries detail beyond the sentinel", err)
			}
		})
	}
}

func TestAuthenticateRejectionDoesNotFallThroughToAnonymous(t *testing.T) {
	// Even with a wide-open default policy, presenting bad credentials
	// must fail the request rather than downgrade it.
	f := newAuthFixture(t, PermissionSet{Read: true, Write: true, Delete: true, Admin: true})

	r := httptest.NewRequest(http.MethodGet, "/sites", nil)
	r.Header.Set(APIKeyHeader, "bogus:aly_bogus")

	if _, err := f.authenticator.Authenticate(context.Background(), r); !errors.Is(err, ErrAuthenticationRejected) {
		t.Errorf("error = %v, want ErrAuthenticationRejected", err)
	}
}
