// Package model defines the relational entities served by the system and the
// denormalized records derived from them. All entities are closed record
// types keyed by a serial integer id; timestamps are carried as the string
// form produced by the database and are never interpreted here.
package model

// User is a row of the users table. The password hash never leaves the
// process boundary.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	CreatedAt    string `json:"created_at"`
	PasswordHash string `json:"-"`
}

// Post is a row of the posts table.
type Post struct {
	ID          int64  `json:"id"`
	AuthorID    int64  `json:"author_id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Status      string `json:"status"`
	PublishedAt string `json:"published_at"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Product is a row of the products table.
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ProductPrice is a row of the product_prices table. One active price per
// product is assumed; see the reindex tie-break in pkg/derive for the case
// when the assumption is violated.
type ProductPrice struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"product_id"`
	Price     float64 `json:"price"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// UserOwnedProduct is a row of the user_owned_products table.
type UserOwnedProduct struct {
	ID            int64   `json:"id"`
	UserID        int64   `json:"user_id"`
	ProductID     int64   `json:"product_id"`
	Quantity      int64   `json:"quantity"`
	PurchasePrice float64 `json:"purchase_price"`
	PurchaseDate  string  `json:"purchase_date"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// UserPartner is a row of the user_partners table.
type UserPartner struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	PartnerID int64  `json:"partner_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// UserProductThreshold is a row of the user_product_thresholds table.
type UserProductThreshold struct {
	ID             int64   `json:"id"`
	UserID         int64   `json:"user_id"`
	ProductID      int64   `json:"product_id"`
	UpperThreshold float64 `json:"upper_threshold"`
	LowerThreshold float64 `json:"lower_threshold"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// PostCreate carries the writable fields of a new post.
type PostCreate struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	AuthorID int64  `json:"author_id"`
	Status   string `json:"status"`
}

// ProductCreate carries the writable fields of a new product.
type ProductCreate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ProductUpdate carries a partial product update; nil fields are untouched.
type ProductUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ProductPriceCreate carries the writable fields of a new product price.
type ProductPriceCreate struct {
	ProductID int64   `json:"product_id"`
	Price     float64 `json:"price"`
}

// ProductPriceUpdate carries a partial price update; nil fields are untouched.
type ProductPriceUpdate struct {
	ProductID *int64   `json:"product_id"`
	Price     *float64 `json:"price"`
}

// UserPartnerCreate carries the writable fields of a new user partner link.
type UserPartnerCreate struct {
	UserID    int64 `json:"user_id"`
	PartnerID int64 `json:"partner_id"`
}

// UserPartnerUpdate carries a partial partner update; nil fields are untouched.
type UserPartnerUpdate struct {
	UserID    *int64 `json:"user_id"`
	PartnerID *int64 `json:"partner_id"`
}

// UserProductThresholdCreate carries the writable fields of a new threshold.
type UserProductThresholdCreate struct {
	UserID         int64   `json:"user_id"`
	ProductID      int64   `json:"product_id"`
	UpperThreshold float64 `json:"upper_threshold"`
	LowerThreshold float64 `json:"lower_threshold"`
}

// UserProductThresholdUpdate carries a partial threshold update; nil fields
// are untouched.
type UserProductThresholdUpdate struct {
	UserID         *int64   `json:"user_id"`
	ProductID      *int64   `json:"product_id"`
	UpperThreshold *float64 `json:"upper_threshold"`
	LowerThreshold *float64 `json:"lower_threshold"`
}

// UserOwnedProductCreate carries the writable fields of a new ownership
// record. Quantity defaults to 1 and PurchaseDate to now when zero.
type UserOwnedProductCreate struct {
	UserID        int64    `json:"user_id"`
	ProductID     int64    `json:"product_id"`
	Quantity      int64    `json:"quantity"`
	PurchasePrice *float64 `json:"purchase_price"`
	PurchaseDate  string   `json:"purchase_date"`
}

// UserOwnedProductUpdate carries a partial ownership update; nil fields are
// untouched. The user and product references are immutable.
type UserOwnedProductUpdate struct {
	Quantity      *int64   `json:"quantity"`
	PurchasePrice *float64 `json:"purchase_price"`
	PurchaseDate  *string  `json:"purchase_date"`
}
