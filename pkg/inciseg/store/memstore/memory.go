package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/cognicore/inciseg/pkg/inciseg/catalog"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu      sync.RWMutex
	catalog *catalog.Catalog
	byName  map[string]int // lowercase name -> index into catalog.Ingredients
}

// New creates a new in-memory store holding an empty catalog.
func New() *Store {
	return &Store{
		catalog: catalog.New(nil),
		byName:  make(map[string]int),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// SaveCatalog replaces the stored catalog with a copy of c.
func (s *Store) SaveCatalog(ctx context.Context, c *catalog.Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalog = copyCatalog(c)
	s.byName = make(map[string]int, len(c.Ingredients))
	for i, ing := range s.catalog.Ingredients {
		s.byName[strings.ToLower(ing.Name)] = i
	}
	return nil
}

// LoadCatalog returns a copy of the stored catalog.
func (s *Store) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyCatalog(s.catalog), nil
}

// IngredientByName looks an ingredient up ignoring case.
func (s *Store) IngredientByName(ctx context.Context, name string) (catalog.Ingredient, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return catalog.Ingredient{}, false, nil
	}
	return copyIngredient(s.catalog.Ingredients[i]), true, nil
}

// ProductsByIngredient returns the products listing the ingredient.
func (s *Store) ProductsByIngredient(ctx context.Context, ingredientID int64) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []catalog.Product
	for _, p := range s.catalog.Products {
		for _, id := range p.Ingredients {
			if id == ingredientID {
				results = append(results, copyProduct(p))
				break
			}
		}
	}
	return results, nil
}

func copyCatalog(c *catalog.Catalog) *catalog.Catalog {
	out := catalog.New(c.Categories)
	if c.Users != nil {
		out.Users = make([]catalog.User, len(c.Users))
		for i, u := range c.Users {
			out.Users[i] = catalog.User{ID: u.ID, Allergic: copyIDs(u.Allergic)}
		}
	}
	for _, ing := range c.Ingredients {
		out.Ingredients = append(out.Ingredients, copyIngredient(ing))
	}
	for _, p := range c.Products {
		out.Products = append(out.Products, copyProduct(p))
	}
	return out
}

func copyIngredient(ing catalog.Ingredient) catalog.Ingredient {
	ing.AllergicRelation = copyIDs(ing.AllergicRelation)
	return ing
}

func copyProduct(p catalog.Product) catalog.Product {
	p.Ingredients = copyIDs(p.Ingredients)
	if p.Ingredients == nil {
		p.Ingredients = []int64{}
	}
	if p.Image.URLs != nil {
		p.Image.URLs = append([]string{}, p.Image.URLs...)
	}
	if p.ProductCodes != nil {
		p.ProductCodes = append([]string{}, p.ProductCodes...)
	}
	return p
}

func copyIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	return append([]int64{}, ids...)
}
