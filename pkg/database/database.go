// Package database implements the relational write path: parameterized CRUD
// against Postgres. It has no knowledge of the derivation layer; every
// successful mutation here is observed by the base-collection adapter through
// the changefeed triggers and propagated from there.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liveview.io/liveview/pkg/model"
)

// ErrNotFound marks lookups and updates addressing a nonexistent row.
var ErrNotFound = errors.New("not found")

// Database is a pgx-backed store for the write path.
type Database struct {
	pool *pgxpool.Pool
	log  logr.Logger
}

// New creates a Database on the given pool.
func New(pool *pgxpool.Pool, log logr.Logger) *Database {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Database{pool: pool, log: log.WithName("database")}
}

const userCols = "id, username, email, created_at::text, password_hash"

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &u.PasswordHash)
	return u, err
}

// ListUsers returns all users.
func (d *Database) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := d.pool.Query(ctx, "SELECT "+userCols+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser returns one user by id.
func (d *Database) GetUser(ctx context.Context, id int64) (model.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx,
		"SELECT "+userCols+" FROM users WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return u, nil
}

const postCols = "id, author_id, title, content, status, " +
	"COALESCE(published_at::text, ''), created_at::text, updated_at::text"

func scanPost(row pgx.Row) (model.Post, error) {
	var p model.Post
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.Status,
		&p.PublishedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetPost returns one post by id.
func (d *Database) GetPost(ctx context.Context, id int64) (model.Post, error) {
	p, err := scanPost(d.pool.QueryRow(ctx,
		"SELECT "+postCols+" FROM posts WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Post{}, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Post{}, fmt.Errorf("failed to get post %d: %w", id, err)
	}
	return p, nil
}

// CreatePost inserts a new post.
func (d *Database) CreatePost(ctx context.Context, post model.PostCreate) (model.Post, error) {
	p, err := scanPost(d.pool.QueryRow(ctx,
		"INSERT INTO posts (title, content, author_id, status) VALUES ($1, $2, $3, $4) RETURNING "+postCols,
		post.Title, post.Content, post.AuthorID, post.Status))
	if err != nil {
		return model.Post{}, fmt.Errorf("failed to create post: %w", err)
	}
	return p, nil
}

// PublishPost marks a post published and stamps the publication time.
func (d *Database) PublishPost(ctx context.Context, id int64) (model.Post, error) {
	p, err := scanPost(d.pool.QueryRow(ctx,
		"UPDATE posts SET status = 'published', published_at = now(), updated_at = now() "+
			"WHERE id = $1 RETURNING "+postCols, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Post{}, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Post{}, fmt.Errorf("failed to publish post %d: %w", id, err)
	}
	return p, nil
}

// UnpublishPost reverts a post to draft and clears the publication time.
func (d *Database) UnpublishPost(ctx context.Context, id int64) (model.Post, error) {
	p, err := scanPost(d.pool.QueryRow(ctx,
		"UPDATE posts SET status = 'draft', published_at = NULL, updated_at = now() "+
			"WHERE id = $1 RETURNING "+postCols, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Post{}, fmt.Errorf("%w: post %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Post{}, fmt.Errorf("failed to unpublish post %d: %w", id, err)
	}
	return p, nil
}

// DeletePost removes a post. Deleting an absent post is not an error.
func (d *Database) DeletePost(ctx context.Context, id int64) error {
	if _, err := d.pool.Exec(ctx, "DELETE FROM posts WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete post %d: %w", id, err)
	}
	return nil
}

const productCols = "id, name, COALESCE(description, ''), created_at::text, updated_at::text"

func scanProduct(row pgx.Row) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreateProduct inserts a new product.
func (d *Database) CreateProduct(ctx context.Context, product model.ProductCreate) (model.Product, error) {
	p, err := scanProduct(d.pool.QueryRow(ctx,
		"INSERT INTO products (name, description) VALUES ($1, $2) RETURNING "+productCols,
		product.Name, product.Description))
	if err != nil {
		return model.Product{}, fmt.Errorf("failed to create product: %w", err)
	}
	return p, nil
}

// UpdateProduct applies a partial product update.
func (d *Database) UpdateProduct(ctx context.Context, id int64, update model.ProductUpdate) (model.Product, error) {
	q := newUpdateQuery("products", productCols, id)
	q.Set("name", update.Name)
	q.Set("description", update.Description)

	p, err := scanProduct(d.pool.QueryRow(ctx, q.SQL(), q.Args()...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Product{}, fmt.Errorf("%w: product %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("failed to update product %d: %w", id, err)
	}
	return p, nil
}

// DeleteProduct removes a product.
func (d *Database) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := d.pool.Exec(ctx, "DELETE FROM products WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	return nil
}

const priceCols = "id, product_id, price, created_at::text, updated_at::text"

func scanPrice(row pgx.Row) (model.ProductPrice, error) {
	var p model.ProductPrice
	err := row.Scan(&p.ID, &p.ProductID, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreateProductPrice inserts a new product price.
func (d *Database) CreateProductPrice(ctx context.Context, price model.ProductPriceCreate) (model.ProductPrice, error) {
	p, err := scanPrice(d.pool.QueryRow(ctx,
		"INSERT INTO product_prices (product_id, price) VALUES ($1, $2) RETURNING "+priceCols,
		price.ProductID, price.Price))
	if err != nil {
		return model.ProductPrice{}, fmt.Errorf("failed to create product price: %w", err)
	}
	return p, nil
}

// UpdateProductPrice applies a partial price update.
func (d *Database) UpdateProductPrice(ctx context.Context, id int64, update model.ProductPriceUpdate) (model.ProductPrice, error) {
	q := newUpdateQuery("product_prices", priceCols, id)
	q.Set("product_id", update.ProductID)
	q.Set("price", update.Price)

	p, err := scanPrice(d.pool.QueryRow(ctx, q.SQL(), q.Args()...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProductPrice{}, fmt.Errorf("%w: product price %d", ErrNotFound, id)
	}
	if err != nil {
		return model.ProductPrice{}, fmt.Errorf("failed to update product price %d: %w", id, err)
	}
	return p, nil
}

// DeleteProductPrice removes a product price.
func (d *Database) DeleteProductPrice(ctx context.Context, id int64) error {
	if _, err := d.pool.Exec(ctx, "DELETE FROM product_prices WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete product price %d: %w", id, err)
	}
	return nil
}

const partnerCols = "id, user_id, partner_id, created_at::text, updated_at::text"

func scanPartner(row pgx.Row) (model.UserPartner, error) {
	var p model.UserPartner
	err := row.Scan(&p.ID, &p.UserID, &p.PartnerID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreateUserPartner inserts a new user partner link.
func (d *Database) CreateUserPartner(ctx context.Context, partner model.UserPartnerCreate) (model.UserPartner, error) {
	p, err := scanPartner(d.pool.QueryRow(ctx,
		"INSERT INTO user_partners (user_id, partner_id) VALUES ($1, $2) RETURNING "+partnerCols,
		partner.UserID, partner.PartnerID))
	if err != nil {
		return model.UserPartner{}, fmt.Errorf("failed to create user partner: %w", err)
	}
	return p, nil
}

// UpdateUserPartner applies a partial partner update.
func (d *Database) UpdateUserPartner(ctx context.Context, id int64, update model.UserPartnerUpdate) (model.UserPartner, error) {
	q := newUpdateQuery("user_partners", partnerCols, id)
	q.Set("user_id", update.UserID)
	q.Set("partner_id", update.PartnerID)

	p, err := scanPartner(d.pool.QueryRow(ctx, q.SQL(), q.Args()...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserPartner{}, fmt.Errorf("%w: user partner %d", ErrNotFound, id)
	}
	if err != nil {
		return model.UserPartner{}, fmt.Errorf("failed to update user partner %d: %w", id, err)
	}
	return p, nil
}

// DeleteUserPartner removes a user partner link.
func (d *Database) DeleteUserPartner(ctx context.Context, id int64) error {
	if _, err := d.pool.Exec(ctx, "DELETE FROM user_partners WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete user partner %d: %w", id, err)
	}
	return nil
}

const thresholdCols = "id, user_id, product_id, upper_threshold, lower_threshold, " +
	"created_at::text, updated_at::text"

func scanThreshold(row pgx.Row) (model.UserProductThreshold, error) {
	var t model.UserProductThreshold
	err := row.Scan(&t.ID, &t.UserID, &t.ProductID, &t.UpperThreshold, &t.LowerThreshold,
		&t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// CreateUserProductThreshold inserts a new threshold.
func (d *Database) CreateUserProductThreshold(ctx context.Context, threshold model.UserProductThresholdCreate) (model.UserProductThreshold, error) {
	t, err := scanThreshold(d.pool.QueryRow(ctx,
		"INSERT INTO user_product_thresholds (user_id, product_id, upper_threshold, lower_threshold) "+
			"VALUES ($1, $2, $3, $4) RETURNING "+thresholdCols,
		threshold.UserID, threshold.ProductID, threshold.UpperThreshold, threshold.LowerThreshold))
	if err != nil {
		return model.UserProductThreshold{}, fmt.Errorf("failed to create user product threshold: %w", err)
	}
	return t, nil
}

// UpdateUserProductThreshold applies a partial threshold update.
func (d *Database) UpdateUserProductThreshold(ctx context.Context, id int64, update model.UserProductThresholdUpdate) (model.UserProductThreshold, error) {
	q := newUpdateQuery("user_product_thresholds", thresholdCols, id)
	q.Set("user_id", update.UserID)
	q.Set("product_id", update.ProductID)
	q.Set("upper_threshold", update.UpperThreshold)
	q.Set("lower_threshold", update.LowerThreshold)

	t, err := scanThreshold(d.pool.QueryRow(ctx, q.SQL(), q.Args()...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserProductThreshold{}, fmt.Errorf("%w: user product threshold %d", ErrNotFound, id)
	}
	if err != nil {
		return model.UserProductThreshold{}, fmt.Errorf("failed to update user product threshold %d: %w", id, err)
	}
	return t, nil
}

// DeleteUserProductThreshold removes a threshold.
func (d *Database) DeleteUserProductThreshold(ctx context.Context, id int64) error {
	if _, err := d.pool.Exec(ctx, "DELETE FROM user_product_thresholds WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete user product threshold %d: %w", id, err)
	}
	return nil
}

const ownedCols = "id, user_id, product_id, quantity, COALESCE(purchase_price, 0), " +
	"COALESCE(purchase_date::text, ''), created_at::text, updated_at::text"

func scanOwned(row pgx.Row) (model.UserOwnedProduct, error) {
	var o model.UserOwnedProduct
	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.PurchasePrice,
		&o.PurchaseDate, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateUserOwnedProduct inserts a new ownership record. Quantity defaults
// to 1 and the purchase date to now.
func (d *Database) CreateUserOwnedProduct(ctx context.Context, owned model.UserOwnedProductCreate) (model.UserOwnedProduct, error) {
	quantity := owned.Quantity
	if quantity == 0 {
		quantity = 1
	}
	purchaseDate := any(owned.PurchaseDate)
	if owned.PurchaseDate == "" {
		purchaseDate = nil // let the column default apply
	}

	o, err := scanOwned(d.pool.QueryRow(ctx,
		"INSERT INTO user_owned_products (user_id, product_id, quantity, purchase_price, purchase_date) "+
			"VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, now())) RETURNING "+ownedCols,
		owned.UserID, owned.ProductID, quantity, owned.PurchasePrice, purchaseDate))
	if err != nil {
		return model.UserOwnedProduct{}, fmt.Errorf("failed to create user owned product: %w", err)
	}
	return o, nil
}

// UpdateUserOwnedProduct applies a partial ownership update. The user and
// product references are immutable.
func (d *Database) UpdateUserOwnedProduct(ctx context.Context, id int64, update model.UserOwnedProductUpdate) (model.UserOwnedProduct, error) {
	q := newUpdateQuery("user_owned_products", ownedCols, id)
	q.Set("quantity", update.Quantity)
	q.Set("purchase_price", update.PurchasePrice)
	q.Set("purchase_date", update.PurchaseDate)

	o, err := scanOwned(d.pool.QueryRow(ctx, q.SQL(), q.Args()...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserOwnedProduct{}, fmt.Errorf("%w: user owned product %d", ErrNotFound, id)
	}
	if err != nil {
		return model.UserOwnedProduct{}, fmt.Errorf("failed to update user owned product %d: %w", id, err)
	}
	return o, nil
}

// DeleteUserOwnedProduct removes an ownership record.
func (d *Database) DeleteUserOwnedProduct(ctx context.Context, id int64) error {
	if _, err := d.pool.Exec(ctx, "DELETE FROM user_owned_products WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete user owned product %d: %w", id, err)
	}
	return nil
}

// updateQuery accumulates the SET clauses of a partial update. Nil values
// are skipped; updated_at is always stamped.
type updateQuery struct {
	table     string
	returning string
	id        int64
	sets      []string
	args      []any
}

func newUpdateQuery(table, returning string, id int64) *updateQuery {
	return &updateQuery{table: table, returning: returning, id: id}
}

// Set adds one column assignment unless the value is nil.
func (q *updateQuery) Set(column string, value any) {
	switch v := value.(type) {
	case *string:
		if v == nil {
			return
		}
		q.args = append(q.args, *v)
	case *int64:
		if v == nil {
			return
		}
		q.args = append(q.args, *v)
	case *float64:
		if v == nil {
			return
		}
		q.args = append(q.args, *v)
	default:
		q.args = append(q.args, value)
	}
	q.sets = append(q.sets, fmt.Sprintf("%s = $%d", column, len(q.args)))
}

// SQL renders the statement.
func (q *updateQuery) SQL() string {
	sets := append([]string{}, q.sets...)
	sets = append(sets, "updated_at = now()")
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		q.table, strings.Join(sets, ", "), len(q.args)+1, q.returning)
}

// Args renders the argument list, the row id last.
func (q *updateQuery) Args() []any {
	return append(append([]any{}, q.args...), q.id)
}
