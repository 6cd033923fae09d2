package auth

import "fmt"

// Resolve converts an identity and the process-wide default policy into an
// effective permission set.
//
// It is a pure function: no side effects, deterministic for identical
// inputs. Anonymous identities resolve to exactly the default policy. An
// authenticated user resolves each grant OR'd with IsOwner, so an owner
// always holds all four dimensions regardless of explicit flags.
//
// A malformed identity (authenticated kind with a nil user) is a
// programmer error, not a runtime branch, and panics.
func Resolve(identity Identity, defaults PermissionSet) PermissionSet {
	switch identity.Kind {
	case Anonymous:
		return defaults
	case SessionUser, APIKeyUser:
		if identity.User == nil {
			panic("auth: authenticated identity without a user")
		}
		u := identity.User
		return PermissionSet{
			Read:   u.Grants.AllowRead || u.IsOwner,
			Write:  u.Grants.AllowWrite || u.IsOwner,
			Delete: u.Grants.AllowDelete || u.IsOwner,
			Admin:  u.Grants.AllowAdmin || u.IsOwner,
		}
	default:
		panic(fmt.Sprintf("auth: invalid identity kind %d", identity.Kind))
	}
}
