package auth

import (
	"testing"
)

func TestResolveAnonymousUsesDefaults(t *testing.T) {
	tests := []struct {
		name     string
		defaults PermissionSet
	}{
		{"all closed", PermissionSet{}},
		{"read only", PermissionSet{Read: true}},
		{"read write", PermissionSet{Read: true, Write: true}},
		{"everything open", PermissionSet{Read: true, Write: true, Delete: true, Admin: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved := Resolve(Identity{Kind: Anonymous}, tt.defaults)
			if resolved != tt.defaults {
				t.Errorf("anonymous resolution = %+v, want %+v", resolved, tt.defaults)
			}
		})
	}
}

func TestResolveUserGrants(t *testing.T) {
	tests := []struct {
		name   string
		user   User
		want   PermissionSet
	}{
		{
			name: "no grants",
			user: User{},
			want: PermissionSet{},
		},
		{
			name: "read and write grants",
			user: User{Grants: Grants{AllowRead: true, AllowWrite: true}},
			want: PermissionSet{Read: true, Write: true},
		},
		{
			name: "admin grant alone",
			user: User{Grants: Grants{AllowAdmin: true}},
			want: PermissionSet{Admin: true},
		},
		{
			name: "owner with no grants gets everything",
			user: User{IsOwner: true},
			want: PermissionSet{Read: true, Write: true, Delete: true, Admin: true},
		},
		{
			name: "owner with partial grants still gets everything",
			user: User{IsOwner: true, Grants: Grants{AllowRead: true}},
			want: PermissionSet{Read: true, Write: true, Delete: true, Admin: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := tt.user
			resolved := Resolve(Identity{Kind: SessionUser, User: &user}, PermissionSet{})
			if resolved != tt.want {
				t.Errorf("resolved = %+v, want %+v", resolved, tt.want)
			}
		})
	}
}

func TestResolveIgnoresDefaultsForAuthenticatedUsers(t *testing.T) {
	// A user with no grants must not inherit the open anonymous policy
	openDefaults := PermissionSet{Read: true, Write: true, Delete: true, Admin: true}
	user := &User{}

	for _, kind := range []IdentityKind{SessionUser, APIKeyUser} {
		resolved := Resolve(Identity{Kind: kind, User: user}, openDefaults)
		if resolved != (PermissionSet{}) {
			t.Errorf("%s with no grants resolved to %+v, want empty set", kind, resolved)
		}
	}
}

func TestResolveAPIKeyInheritsOwnerGrants(t *testing.T) {
	user := &User{Grants: Grants{AllowRead: true, AllowDelete: true}}
	key := &APIKey{ID: "key-1", UserID: user.ID}

	resolved := Resolve(Identity{Kind: APIKeyUser, User: user, Key: key}, PermissionSet{})
	want := PermissionSet{Read: true, Delete: true}
	if resolved != want {
		t.Errorf("resolved = %+v, want %+v", resolved, want)
	}
}

func TestResolvePanicsOnMissingUser(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for authenticated identity without user")
		}
	}()
	Resolve(Identity{Kind: SessionUser}, PermissionSet{})
}

func TestPermissionSetHas(t *testing.T) {
	set := PermissionSet{Read: true, Admin: true}

	if !set.Has(Read) || !set.Has(Admin) {
		t.Error("expected read and admin to be present")
	}
	if set.Has(Write) || set.Has(Delete) {
		t.Error("expected write and delete to be absent")
	}
	if set.Has(Dimension("bogus")) {
		t.Error("unknown dimension must never be granted")
	}
}
