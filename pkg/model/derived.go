package model

// Derived records are never persisted: each one is a pure function of the
// current state of its inputs and is recomputed by the derivation graph
// whenever an input changes.
//
// Two distinct defaulting policies apply on a lookup miss and must not be
// conflated: a missing related entity is replaced by a fixed string sentinel
// (the enclosing record is still emitted), while a missing scalar attribute
// (no price row for a product) is a nil pointer that marshals to JSON null.

// AuthorSummary is the author facet embedded into PostWithAuthor.
type AuthorSummary struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserSummary is the user facet embedded into OwnedProductWithDetails.
type UserSummary struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ProductSummary is the product facet embedded into OwnedProductWithDetails.
// CurrentPrice is independent of the product lookup: a present product with
// no price row yields real product fields and a null price.
type ProductSummary struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	CurrentPrice *float64 `json:"current_price"`
}

// Sentinels substituted for missing related entities.
var (
	UnknownAuthor = AuthorSummary{Name: "unknown author", Email: "unknown email"}

	UnknownUser = UserSummary{Username: "unknown user", Email: "unknown email"}

	UnknownProduct = ProductSummary{Name: "unknown product", Description: "unknown description"}
)

// PostWithAuthor is a post enriched with its author's public fields.
type PostWithAuthor struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Content     string        `json:"content"`
	Status      string        `json:"status"`
	PublishedAt string        `json:"published_at"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
	Author      AuthorSummary `json:"author"`
}

// ProductWithPrice is a product enriched with its current price, or null
// when no price row exists.
type ProductWithPrice struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// OwnedProductWithDetails is an ownership record enriched with the owning
// user, the owned product and the product's current price. The three lookups
// are independent: any subset may fall back without affecting the others.
type OwnedProductWithDetails struct {
	ID            int64          `json:"id"`
	UserID        int64          `json:"user_id"`
	ProductID     int64          `json:"product_id"`
	Quantity      int64          `json:"quantity"`
	PurchasePrice float64        `json:"purchase_price"`
	PurchaseDate  string         `json:"purchase_date"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	User          UserSummary    `json:"user"`
	Product       ProductSummary `json:"product"`
}

// EnrichPost joins a post with its author. A nil author degrades to the
// UnknownAuthor sentinel.
func EnrichPost(post Post, author *User) PostWithAuthor {
	a := UnknownAuthor
	if author != nil {
		a = AuthorSummary{Name: author.Username, Email: author.Email}
	}
	return PostWithAuthor{
		ID:          post.ID,
		Title:       post.Title,
		Content:     post.Content,
		Status:      post.Status,
		PublishedAt: post.PublishedAt,
		CreatedAt:   post.CreatedAt,
		UpdatedAt:   post.UpdatedAt,
		Author:      a,
	}
}

// EnrichProduct joins a product with its current price. A nil price row
// yields a null price, not a sentinel.
func EnrichProduct(product Product, price *ProductPrice) ProductWithPrice {
	var p *float64
	if price != nil {
		v := price.Price
		p = &v
	}
	return ProductWithPrice{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       p,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}

// EnrichOwnedProduct joins an ownership record with its user, product and
// current price, each falling back independently.
func EnrichOwnedProduct(owned UserOwnedProduct, user *User, product *Product, price *ProductPrice) OwnedProductWithDetails {
	u := UnknownUser
	if user != nil {
		u = UserSummary{Username: user.Username, Email: user.Email}
	}

	p := UnknownProduct
	if product != nil {
		p = ProductSummary{Name: product.Name, Description: product.Description}
	}
	if price != nil {
		v := price.Price
		p.CurrentPrice = &v
	}

	return OwnedProductWithDetails{
		ID:            owned.ID,
		UserID:        owned.UserID,
		ProductID:     owned.ProductID,
		Quantity:      owned.Quantity,
		PurchasePrice: owned.PurchasePrice,
		PurchaseDate:  owned.PurchaseDate,
		CreatedAt:     owned.CreatedAt,
		UpdatedAt:     owned.UpdatedAt,
		User:          u,
		Product:       p,
	}
}
