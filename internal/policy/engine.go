package policy

import (
	"errors"

	"github.com/org/servercatalog/pkg/models"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient permissions")
)

// rolePermissions is the static role table. Roles are not configurable at runtime.
var rolePermissions = map[string][]string{
	models.RoleAdmin: {
		models.PermReadProducts,
		models.PermCreateProducts,
		models.PermUpdateProducts,
		models.PermDeleteProducts,
	},
	models.RoleUser: {
		models.PermReadProducts,
		models.PermCreateProducts,
		models.PermUpdateProducts,
	},
	models.RoleReadOnly: {
		models.PermReadProducts,
	},
}

// PermissionsOf returns a copy of the permission set granted to role.
// Unknown roles get an empty set.
func PermissionsOf(role string) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// KnownRole reports whether role appears in the role table.
func KnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// Require checks that principal holds perm.
func Require(p *models.Principal, perm string) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if !p.HasPermission(perm) {
		return ErrForbidden
	}
	return nil
}

// RequireAdmin checks that principal has the admin role.
func RequireAdmin(p *models.Principal) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if p.Role != models.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// Ownership is the outcome of an ownership check.
type Ownership struct {
	ResourceID string
	// Bypassed is set when the principal's role skips the check entirely.
	Bypassed bool
}

// CheckOwnership currently lets every authenticated principal through.
// Products carry no owner, so non-admins are tagged with the resource id
// instead of being compared against it.
// TODO: deny non-admins once products record the creating principal.
func CheckOwnership(p *models.Principal, resourceID string) (Ownership, error) {
	if p == nil {
		return Ownership{}, ErrUnauthenticated
	}
	if p.Role == models.RoleAdmin {
		return Ownership{ResourceID: resourceID, Bypassed: true}, nil
	}
	return Ownership{ResourceID: resourceID}, nil
}
