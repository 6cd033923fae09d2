package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/accessly/accessly/pkg/store"
)

const (
	// SessionCookieName carries the opaque session id
	SessionCookieName = "accessly_session"
	// APIKeyHeader carries "keyid:secret" credentials for worker traffic
	APIKeyHeader = "X-API-Key"
)

// DefaultsSource supplies the process-wide default permission policy
// applied to anonymous identities.
type DefaultsSource interface {
	Defaults(ctx context.Context) (PermissionSet, error)
}

// Authenticator resolves an inbound request's credentials into an
// AuthContext. It is a small state machine with terminal states Anonymous,
// SessionUser and APIKeyUser; invalid API credentials terminate the
// request with ErrAuthenticationRejected instead of producing a state.
type Authenticator struct {
	creds    *CredentialStore
	sessions *SessionStore
	verifier *SecretVerifier
	defaults DefaultsSource
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(creds *CredentialStore, sessions *SessionStore, verifier *SecretVerifier, defaults DefaultsSource) *Authenticator {
	return &Authenticator{
		creds:    creds,
		sessions: sessions,
		verifier: verifier,
		defaults: defaults,
	}
}

// Authenticate resolves the request to an identity and attaches the
// resolved permission set. Anonymous traffic is valid and never an error;
// it is governed by the default policy.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*AuthContext, error) {
	identity, err := a.resolveIdentity(ctx, r)
	if err != nil {
		return nil, err
	}

	defaults, err := a.defaults.Defaults(ctx)
	if err != nil {
		return nil, err
	}

	return &AuthContext{
		Identity:    identity,
		Permissions: Resolve(identity, defaults),
	}, nil
}

func (a *Authenticator) resolveIdentity(ctx context.Context, r *http.Request) (Identity, error) {
	// 1. Valid, non-expired session bound to a still-existing user.
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		identity, ok, err := a.resolveSession(ctx, cookie.Value)
		if err != nil {
			return Identity{}, err
		}
		if ok {
			return identity, nil
		}
		// A dead session is not a rejection: the browser just holds a
		// stale cookie. Fall through to the remaining states.
	}

	// 2. A key-like header that is present but invalid is a hard
	// rejection, never a fallthrough to anonymous.
	if header := strings.TrimSpace(r.Header.Get(APIKeyHeader)); header != "" {
		return a.resolveAPIKey(ctx, header)
	}

	// 3. Anonymous.
	return Identity{Kind: Anonymous}, nil
}

func (a *Authenticator) resolveSession(ctx context.Context, sid string) (Identity, bool, error) {
	session, err := a.sessions.Get(ctx, sid)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, err
	}
	if session.UserID == "" {
		return Identity{}, false, nil
	}

	user, err := a.creds.FetchUserByID(ctx, session.UserID)
	if errors.Is(err, store.ErrNotFound) {
		// The user was deleted out from under the session
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, err
	}

	return Identity{Kind: SessionUser, User: user}, true, nil
}

func (a *Authenticator) resolveAPIKey(ctx context.Context, header string) (Identity, error) {
	keyID, secret, found := strings.Cut(header, ":")
	if !found || keyID == "" || secret == "" {
		return Identity{}, rejected()
	}

	key, err := a.creds.FetchAPIKeyByID(ctx, keyID)
	if errors.Is(err, store.ErrNotFound) {
		// Burn equivalent hashing work so an unknown key id and a wrong
		// secret cannot be told apart by timing.
		if verr := a.verifier.VerifyAbsent(ctx, secret); verr != nil {
			return Identity{}, verr
		}
		return Identity{}, rejected()
	}
	if err != nil {
		return Identity{}, err
	}

	ok, err := a.verifier.Verify(ctx, key.ID, secret, key.SecretHash)
	if err != nil {
		return Identity{}, err
	}
	if !ok {
		return Identity{}, rejected()
	}

	user, err := a.creds.FetchUserByID(ctx, key.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, rejected()
	}
	if err != nil {
		return Identity{}, err
	}

	return Identity{Kind: APIKeyUser, User: user, Key: key}, nil
}

// rejected returns the bare sentinel. Wrapping with a cause here would
// leak which failure mode occurred, so every path returns the same value.
func rejected() error {
	return ErrAuthenticationRejected
}
