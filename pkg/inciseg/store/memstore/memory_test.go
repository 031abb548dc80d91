package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/cognicore/inciseg/pkg/inciseg/catalog"
	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
	"github.com/cognicore/inciseg/pkg/inciseg/store"
)

var _ store.Store = (*Store)(nil)

func sample() *catalog.Catalog {
	c := catalog.New([]catalog.Category{{ID: 1, Name: "Sunscreen"}})
	c.Ingredients = []catalog.Ingredient{{ID: 1, Name: "WATER"}, {ID: 2, Name: "GLYCERIN"}}
	c.Products = []catalog.Product{
		{ID: 1, Name: "A", Ingredients: []int64{1, 2}, Category: 1},
		{ID: 2, Name: "B", Ingredients: []int64{2}, Category: 1},
	}
	return c
}

func TestEmptyStore(t *testing.T) {
	s := New()
	c, err := s.LoadCatalog(context.Background())
	if err != nil || len(c.Products) != 0 || c.Ingredients == nil {
		t.Errorf("LoadCatalog on empty store = %+v, %v", c, err)
	}
}

func TestSaveIsolatesCaller(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := sample()
	if err := s.SaveCatalog(ctx, c); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}

	c.Products[0].Ingredients[0] = 99
	c.Ingredients[0].Name = "CHANGED"

	got, _ := s.LoadCatalog(ctx)
	if got.Products[0].Ingredients[0] != 1 || got.Ingredients[0].Name != "WATER" {
		t.Errorf("store shares memory with caller: %+v", got)
	}

	got.Products[1].Name = "mutated"
	again, _ := s.LoadCatalog(ctx)
	if again.Products[1].Name != "B" {
		t.Error("LoadCatalog returned shared product slice")
	}
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.SaveCatalog(ctx, sample()); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}

	ing, ok, _ := s.IngredientByName(ctx, "Glycerin")
	if !ok || ing.ID != 2 {
		t.Errorf("IngredientByName = %+v, %v", ing, ok)
	}
	if _, ok, _ := s.IngredientByName(ctx, "AQUA"); ok {
		t.Error("unexpected match for AQUA")
	}

	products, _ := s.ProductsByIngredient(ctx, 2)
	if len(products) != 2 || products[0].ID != 1 {
		t.Errorf("ProductsByIngredient(2) = %+v", products)
	}
	products, _ = s.ProductsByIngredient(ctx, 1)
	if len(products) != 1 {
		t.Errorf("ProductsByIngredient(1) = %+v", products)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	c := sample()
	c.Ingredients[1].ID = 0
	if err := New().SaveCatalog(context.Background(), c); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("SaveCatalog err = %v, want ErrInvalidInput", err)
	}
}
