package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/cognicore/inciseg/pkg/inciseg/catalog"
	"github.com/cognicore/inciseg/pkg/inciseg/internalerr"
	"github.com/cognicore/inciseg/pkg/inciseg/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist. seq keeps the catalog's
// list order, which is not always id order.
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	seq INTEGER NOT NULL,
	allergic TEXT
);

CREATE TABLE IF NOT EXISTS ingredients (
	id INTEGER PRIMARY KEY,
	seq INTEGER NOT NULL,
	name TEXT NOT NULL UNIQUE COLLATE NOCASE,
	allergic INTEGER NOT NULL DEFAULT 0,
	allergic_relation TEXT
);

CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY,
	seq INTEGER NOT NULL,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY,
	seq INTEGER NOT NULL,
	name TEXT,
	description TEXT,
	using_text TEXT,
	image TEXT,
	category INTEGER,
	link TEXT,
	product_codes TEXT
);

CREATE TABLE IF NOT EXISTS product_ingredients (
	product_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	ingredient_id INTEGER NOT NULL,
	PRIMARY KEY(product_id, position),
	FOREIGN KEY(product_id) REFERENCES products(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_product_ingredients_ingredient
	ON product_ingredients(ingredient_id);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveCatalog replaces the stored catalog with c in one transaction.
func (s *sqliteStore) SaveCatalog(ctx context.Context, c *catalog.Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"product_ingredients", "products", "categories", "ingredients", "users"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := insertUsers(ctx, tx, c.Users); err != nil {
		return err
	}
	if err := insertIngredients(ctx, tx, c.Ingredients); err != nil {
		return err
	}
	if err := insertCategories(ctx, tx, c.Categories); err != nil {
		return err
	}
	if err := insertProducts(ctx, tx, c.Products); err != nil {
		return err
	}

	return tx.Commit()
}

func insertUsers(ctx context.Context, tx *sql.Tx, users []catalog.User) error {
	if len(users) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO users (id, seq, allergic) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, u := range users {
		allergic, err := json.Marshal(u.Allergic)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, u.ID, i, string(allergic)); err != nil {
			return fmt.Errorf("insert user %d: %w", u.ID, err)
		}
	}
	return nil
}

func insertIngredients(ctx context.Context, tx *sql.Tx, ings []catalog.Ingredient) error {
	if len(ings) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO ingredients (id, seq, name, allergic, allergic_relation)
VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, ing := range ings {
		var relation sql.NullString
		if ing.AllergicRelation != nil {
			data, err := json.Marshal(ing.AllergicRelation)
			if err != nil {
				return err
			}
			relation = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, ing.ID, i, ing.Name, ing.Allergic, relation); err != nil {
			return fmt.Errorf("insert ingredient %d %q: %w", ing.ID, ing.Name, err)
		}
	}
	return nil
}

func insertCategories(ctx context.Context, tx *sql.Tx, cats []catalog.Category) error {
	if len(cats) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO categories (id, seq, name) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, cat := range cats {
		if _, err := stmt.ExecContext(ctx, cat.ID, i, cat.Name); err != nil {
			return fmt.Errorf("insert category %d: %w", cat.ID, err)
		}
	}
	return nil
}

func insertProducts(ctx context.Context, tx *sql.Tx, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO products (id, seq, name, description, using_text, image, category, link, product_codes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ingStmt, err := tx.PrepareContext(ctx, `
INSERT INTO product_ingredients (product_id, position, ingredient_id) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ingStmt.Close()

	for i, p := range products {
		image, err := json.Marshal(p.Image)
		if err != nil {
			return err
		}
		codes, err := json.Marshal(p.ProductCodes)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, p.ID, i, p.Name, p.Description, p.Using,
			string(image), p.Category, p.Link, string(codes)); err != nil {
			return fmt.Errorf("insert product %d: %w", p.ID, err)
		}
		for pos, ingID := range p.Ingredients {
			if _, err := ingStmt.ExecContext(ctx, p.ID, pos, ingID); err != nil {
				return fmt.Errorf("insert product %d ingredient %d: %w", p.ID, ingID, err)
			}
		}
	}
	return nil
}

// LoadCatalog reads the stored catalog back in list order.
func (s *sqliteStore) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	c := catalog.New(nil)

	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	c.Users = users

	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, allergic, allergic_relation FROM ingredients ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		c.Ingredients = append(c.Ingredients, ing)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var cat catalog.Category
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			rows.Close()
			return nil, err
		}
		c.Categories = append(c.Categories, cat)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids, err := s.queryIDs(ctx, `SELECT id FROM products ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		p, err := s.loadProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		c.Products = append(c.Products, p)
	}

	return c, nil
}

func (s *sqliteStore) loadUsers(ctx context.Context) ([]catalog.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, allergic FROM users ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []catalog.User
	for rows.Next() {
		var u catalog.User
		var allergic sql.NullString
		if err := rows.Scan(&u.ID, &allergic); err != nil {
			return nil, err
		}
		if allergic.Valid {
			if err := json.Unmarshal([]byte(allergic.String), &u.Allergic); err != nil {
				return nil, fmt.Errorf("user %d allergic: %w", u.ID, err)
			}
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIngredient(row scanner) (catalog.Ingredient, error) {
	var ing catalog.Ingredient
	var relation sql.NullString
	if err := row.Scan(&ing.ID, &ing.Name, &ing.Allergic, &relation); err != nil {
		return catalog.Ingredient{}, err
	}
	if relation.Valid {
		if err := json.Unmarshal([]byte(relation.String), &ing.AllergicRelation); err != nil {
			return catalog.Ingredient{}, fmt.Errorf("ingredient %d relation: %w", ing.ID, err)
		}
	}
	return ing, nil
}

func (s *sqliteStore) loadProduct(ctx context.Context, id int64) (catalog.Product, error) {
	var p catalog.Product
	var image, codes sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, description, using_text, image, category, link, product_codes
FROM products WHERE id = ?`, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Using, &image, &p.Category, &p.Link, &codes)
	if err == sql.ErrNoRows {
		return catalog.Product{}, fmt.Errorf("product %d: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return catalog.Product{}, err
	}

	if image.Valid {
		if err := json.Unmarshal([]byte(image.String), &p.Image); err != nil {
			return catalog.Product{}, fmt.Errorf("product %d image: %w", id, err)
		}
	}
	if codes.Valid {
		if err := json.Unmarshal([]byte(codes.String), &p.ProductCodes); err != nil {
			return catalog.Product{}, fmt.Errorf("product %d codes: %w", id, err)
		}
	}

	p.Ingredients, err = s.queryIDs(ctx, `
SELECT ingredient_id FROM product_ingredients WHERE product_id = ? ORDER BY position`, id)
	if err != nil {
		return catalog.Product{}, err
	}
	if p.Ingredients == nil {
		p.Ingredients = []int64{}
	}
	return p, nil
}

func (s *sqliteStore) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IngredientByName looks an ingredient up ignoring case.
func (s *sqliteStore) IngredientByName(ctx context.Context, name string) (catalog.Ingredient, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, allergic, allergic_relation FROM ingredients WHERE name = ? COLLATE NOCASE`, name)
	ing, err := scanIngredient(row)
	if err == sql.ErrNoRows {
		return catalog.Ingredient{}, false, nil
	}
	if err != nil {
		return catalog.Ingredient{}, false, err
	}
	return ing, true, nil
}

// ProductsByIngredient returns the products listing the ingredient, in
// catalog order.
func (s *sqliteStore) ProductsByIngredient(ctx context.Context, ingredientID int64) ([]catalog.Product, error) {
	ids, err := s.queryIDs(ctx, `
SELECT p.id
FROM products p
WHERE EXISTS (
	SELECT 1 FROM product_ingredients pi
	WHERE pi.product_id = p.id AND pi.ingredient_id = ?
)
ORDER BY p.seq`, ingredientID)
	if err != nil {
		return nil, err
	}

	var results []catalog.Product
	for _, id := range ids {
		p, err := s.loadProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, nil
}
