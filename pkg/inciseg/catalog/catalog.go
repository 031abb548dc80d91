package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
	"github.com/cognicore/inciseg/pkg/inciseg/registry"
)

// Catalog is the persisted product catalog: insertion-ordered lists of
// users, ingredients, categories and products.
type Catalog struct {
	Users       []User       `json:"user,omitempty"`
	Ingredients []Ingredient `json:"ingredient"`
	Categories  []Category   `json:"category"`
	Products    []Product    `json:"product"`
}

// User records the ingredient ids a user is allergic to.
type User struct {
	ID       int64   `json:"id"`
	Allergic []int64 `json:"allergic"`
}

// Ingredient is one registry entry as stored in the catalog.
type Ingredient struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Allergic         bool    `json:"allergic"`
	AllergicRelation []int64 `json:"allergic-relation"`
}

// UnmarshalJSON rejects ingredients without an id.
func (i *Ingredient) UnmarshalJSON(data []byte) error {
	type alias Ingredient
	aux := struct {
		ID *int64 `json:"id"`
		*alias
	}{alias: (*alias)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ID == nil {
		return fmt.Errorf("%w: ingredient %q has no id", internalerr.ErrInvalidInput, i.Name)
	}
	i.ID = *aux.ID
	return nil
}

// Category groups products.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product is one scraped product page.
type Product struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Using        string   `json:"using"`
	Image        ImageRef `json:"image"`
	Ingredients  []int64  `json:"ingredient"`
	Category     int64    `json:"category"`
	Link         string   `json:"link,omitempty"`
	ProductCodes []string `json:"product_codes,omitempty"`
}

// UnmarshalJSON rejects products without an id.
func (p *Product) UnmarshalJSON(data []byte) error {
	type alias Product
	aux := struct {
		ID *int64 `json:"id"`
		*alias
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ID == nil {
		return fmt.Errorf("%w: product %q has no id", internalerr.ErrInvalidInput, p.Name)
	}
	p.ID = *aux.ID
	return nil
}

// New creates an empty catalog with the given categories.
func New(categories []Category) *Catalog {
	return &Catalog{
		Ingredients: []Ingredient{},
		Categories:  append([]Category{}, categories...),
		Products:    []Product{},
	}
}

// Decode reads and validates a catalog.
func Decode(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Ingredients == nil {
		c.Ingredients = []Ingredient{}
	}
	if c.Products == nil {
		c.Products = []Product{}
	}
	return &c, nil
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Encode writes the catalog as indented JSON without escaping non-ASCII text.
func (c *Catalog) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(c)
}

// Save writes the catalog to path, replacing it atomically.
func (c *Catalog) Save(path string) error {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Validate checks that ids are positive and unique per list.
func (c *Catalog) Validate() error {
	seen := make(map[int64]struct{}, len(c.Ingredients))
	for _, ing := range c.Ingredients {
		if err := checkID("ingredient", ing.ID, seen); err != nil {
			return err
		}
	}

	seen = make(map[int64]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if err := checkID("category", cat.ID, seen); err != nil {
			return err
		}
	}

	seen = make(map[int64]struct{}, len(c.Products))
	for _, p := range c.Products {
		if err := checkID("product", p.ID, seen); err != nil {
			return err
		}
	}
	return nil
}

func checkID(kind string, id int64, seen map[int64]struct{}) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s id %d", internalerr.ErrInvalidInput, kind, id)
	}
	if _, ok := seen[id]; ok {
		return fmt.Errorf("%w: %s id %d", internalerr.ErrDuplicate, kind, id)
	}
	seen[id] = struct{}{}
	return nil
}

// Registry builds the ingredient registry from the catalog's ingredient list.
func (c *Catalog) Registry() (*registry.Registry, error) {
	entries := make([]registry.Entry, len(c.Ingredients))
	for i, ing := range c.Ingredients {
		entries[i] = registry.Entry{ID: ing.ID, Name: ing.Name}
	}
	return registry.FromEntries(entries)
}

// AppendIngredients adds newly registered names, non-allergenic and unrelated.
func (c *Catalog) AppendIngredients(entries []registry.Entry) {
	for _, e := range entries {
		c.Ingredients = append(c.Ingredients, Ingredient{ID: e.ID, Name: e.Name})
	}
}

// NextProductID returns max(product id) + 1, or 1 for an empty catalog.
func (c *Catalog) NextProductID() int64 {
	var max int64
	for _, p := range c.Products {
		if p.ID > max {
			max = p.ID
		}
	}
	return max + 1
}

// AddProduct assigns the next id to p and appends it.
func (c *Catalog) AddProduct(p Product) *Product {
	p.ID = c.NextProductID()
	if p.Ingredients == nil {
		p.Ingredients = []int64{}
	}
	c.Products = append(c.Products, p)
	return &c.Products[len(c.Products)-1]
}

// ProductByID returns the product with id, or nil.
func (c *Catalog) ProductByID(id int64) *Product {
	for i := range c.Products {
		if c.Products[i].ID == id {
			return &c.Products[i]
		}
	}
	return nil
}

// ProductCodePattern matches the site's product codes inside image URLs.
var ProductCodePattern = regexp.MustCompile(`WTCTH-\d+`)

// ExtractProductCodes fills ProductCodes from each product's image URLs.
func (c *Catalog) ExtractProductCodes() {
	for i := range c.Products {
		p := &c.Products[i]
		seen := make(map[string]struct{})
		codes := []string{}
		for _, u := range p.Image.URLs {
			for _, code := range ProductCodePattern.FindAllString(u, -1) {
				if _, ok := seen[code]; ok {
					continue
				}
				seen[code] = struct{}{}
				codes = append(codes, code)
			}
		}
		p.ProductCodes = codes
	}
}

// NormalizeImages rewrites every single-string image field as a list.
// It returns the number of products changed.
func (c *Catalog) NormalizeImages() int {
	changed := 0
	for i := range c.Products {
		if c.Products[i].Image.Single {
			c.Products[i].Image = c.Products[i].Image.AsList()
			changed++
		}
	}
	return changed
}

// ResetIngredients empties the ingredient list and every product's ids so
// the next build starts numbering from 1 without dangling references.
func (c *Catalog) ResetIngredients() {
	c.Ingredients = []Ingredient{}
	for i := range c.Products {
		c.Products[i].Ingredients = []int64{}
	}
}
