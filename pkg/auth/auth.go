package auth

import (
	"context"
)

const (
	RoleAdmin     = "Admin"
	RoleLibrarian = "Librarian"
	RoleMember    = "Member"

	AuthorizationHeader = "Authorization"
	CookieName          = "access_token"
)

// Principal is the authenticated user making a request.
type Principal struct {
	UserID      int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`
	Permissions []string `json:"permissions,omitempty"`
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleLibrarian, RoleMember:
		return true
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && IsAuthenticated(p)
}

func IsAuthenticated(p Principal) bool {
	return p.Username != ""
}

// HasRole reports whether p is authenticated and carries exactly role.
func HasRole(p Principal, role string) bool {
	return IsAuthenticated(p) && p.Role == role
}

func IsAdmin(p Principal) bool     { return HasRole(p, RoleAdmin) }
func IsLibrarian(p Principal) bool { return HasRole(p, RoleLibrarian) }
func IsMember(p Principal) bool    { return HasRole(p, RoleMember) }

// HasPerm checks a permission codename such as "relationship_app.can_add_book".
// Active superusers implicitly hold every permission.
func HasPerm(p Principal, codename string) bool {
	if !IsAuthenticated(p) {
		return false
	}
	if p.IsSuperuser {
		return true
	}
	for _, perm := range p.Permissions {
		if perm == codename {
			return true
		}
	}
	return false
}

// IsOwner reports whether p is the stored author of an entity.
func IsOwner(p Principal, author string) bool {
	return IsAuthenticated(p) && author != "" && p.Username == author
}

// CanManageUsers is the gate for user administration endpoints.
func CanManageUsers(p Principal) bool {
	return IsAuthenticated(p) && (p.IsSuperuser || p.Role == RoleAdmin)
}
