// Package catalog stores the server offerings exposed by the API.
package catalog

import (
	"context"
	"errors"

	"github.com/org/servercatalog/pkg/models"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInvalidProduct is returned when a write would break a product invariant.
	ErrInvalidProduct = errors.New("invalid product")
)

// Repository defines the catalog operations the API depends on.
type Repository interface {
	List(ctx context.Context) ([]models.Product, error)
	Get(ctx context.Context, id int) (*models.Product, error)
	Create(ctx context.Context, draft models.ProductDraft) (*models.Product, error)
	Update(ctx context.Context, id int, patch models.ProductPatch) (*models.Product, error)
	Delete(ctx context.Context, id int) error

	FindByTitle(ctx context.Context, term string) ([]models.Product, error)
	FindByStatus(ctx context.Context, status string) ([]models.Product, error)

	// Count is used by the metrics gauge.
	Count(ctx context.Context) (int, error)
}
