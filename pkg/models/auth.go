package models

// Role names carried in credentials.
const (
	RoleAdmin    = "admin"
	RoleUser     = "user"
	RoleReadOnly = "readonly"
)

// Permission constants for catalog operations.
const (
	PermReadProducts   = "read:products"
	PermCreateProducts = "create:products"
	PermUpdateProducts = "update:products"
	PermDeleteProducts = "delete:products"
)

// Principal is the identity reconstructed from a verified credential.
// It is never stored.
type Principal struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// HasPermission returns true if the principal's role grants perm.
func (p *Principal) HasPermission(perm string) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Permissions {
		if c == perm {
			return true
		}
	}
	return false
}
