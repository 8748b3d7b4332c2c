package models

import "time"

// Product status values.
const (
	StatusActive      = "activo"
	StatusInactive    = "inactivo"
	StatusMaintenance = "mantenimiento"
)

// Statuses lists every accepted product status.
var Statuses = []string{StatusActive, StatusInactive, StatusMaintenance}

// IsValidStatus reports whether s is one of the fixed product statuses.
func IsValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Link is the self reference of a catalog entry.
type Link struct {
	Link string `json:"link"`
}

// Product is a server offering in the catalog.
type Product struct {
	ID          int       `json:"id"`
	Title       string    `json:"titulo"`
	Description string    `json:"descripcion"`
	Price       float64   `json:"precio"`
	Cores       int       `json:"nucleos"`
	Memory      int       `json:"ram"`
	Disk        int       `json:"disco"`
	Cluster     string    `json:"cluster,omitempty"`
	Status      string    `json:"estado"`
	CreatedAt   time.Time `json:"fechaCreacion"`
	Self        Link      `json:"self"`
}

// ProductDraft carries the caller-supplied fields of a new product.
type ProductDraft struct {
	Title       string
	Description string
	Price       float64
	Cores       int
	Memory      int
	Disk        int
	Cluster     string
	Status      string
}

// ProductPatch is a partial update. Nil fields are left untouched.
type ProductPatch struct {
	Title       *string
	Description *string
	Price       *float64
	Cores       *int
	Memory      *int
	Disk        *int
	Cluster     *string
	Status      *string
}

// Empty returns true if the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Price == nil && p.Cores == nil &&
		p.Memory == nil && p.Disk == nil && p.Cluster == nil && p.Status == nil
}
