package store

import (
	"context"

	"github.com/cognicore/inciseg/pkg/inciseg/catalog"
)

// Store mirrors a catalog into queryable storage. The JSON catalog file stays
// the source of truth; a store is rewritten from it after every build.
type Store interface {
	Close() error

	// Catalog
	SaveCatalog(ctx context.Context, c *catalog.Catalog) error
	LoadCatalog(ctx context.Context) (*catalog.Catalog, error)

	// Queries
	IngredientByName(ctx context.Context, name string) (catalog.Ingredient, bool, error)
	ProductsByIngredient(ctx context.Context, ingredientID int64) ([]catalog.Product, error)
}
