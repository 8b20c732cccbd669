package model

import (
	"encoding/json"
	"fmt"
)

// Row is a table row as delivered by a base-collection adapter: the JSON
// object form of the row, keyed by column name. Numbers arrive as float64,
// SQL NULL as nil.
type Row = map[string]any

// Decode errors mark malformed rows. The derivation layer never sees such
// rows: the adapter counts and drops them at the boundary.

type ErrMalformedRow = error

func newMalformedRowError(table, field string) ErrMalformedRow {
	return fmt.Errorf("malformed %s row: missing or invalid field %q", table, field)
}

func intField(row Row, table, name string) (int64, error) {
	switch v := row[name].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, newMalformedRowError(table, name)
		}
		return n, nil
	default:
		return 0, newMalformedRowError(table, name)
	}
}

func floatField(row Row, table, name string) (float64, error) {
	switch v := row[name].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, newMalformedRowError(table, name)
		}
		return f, nil
	default:
		return 0, newMalformedRowError(table, name)
	}
}

func optFloat(row Row, name string) float64 {
	f, err := floatField(row, "", name)
	if err != nil {
		return 0
	}
	return f
}

func optInt(row Row, name string) int64 {
	n, err := intField(row, "", name)
	if err != nil {
		return 0
	}
	return n
}

func stringField(row Row, table, name string) (string, error) {
	s, ok := row[name].(string)
	if !ok {
		return "", newMalformedRowError(table, name)
	}
	return s, nil
}

func optString(row Row, name string) string {
	s, _ := row[name].(string)
	return s
}

// DecodeUser decodes a users row. id, username and email are required.
func DecodeUser(row Row) (User, error) {
	id, err := intField(row, "users", "id")
	if err != nil {
		return User{}, err
	}
	username, err := stringField(row, "users", "username")
	if err != nil {
		return User{}, err
	}
	email, err := stringField(row, "users", "email")
	if err != nil {
		return User{}, err
	}
	return User{
		ID:           id,
		Username:     username,
		Email:        email,
		CreatedAt:    optString(row, "created_at"),
		PasswordHash: optString(row, "password_hash"),
	}, nil
}

// DecodePost decodes a posts row. id, author_id and title are required.
func DecodePost(row Row) (Post, error) {
	id, err := intField(row, "posts", "id")
	if err != nil {
		return Post{}, err
	}
	authorID, err := intField(row, "posts", "author_id")
	if err != nil {
		return Post{}, err
	}
	title, err := stringField(row, "posts", "title")
	if err != nil {
		return Post{}, err
	}
	return Post{
		ID:          id,
		AuthorID:    authorID,
		Title:       title,
		Content:     optString(row, "content"),
		Status:      optString(row, "status"),
		PublishedAt: optString(row, "published_at"),
		CreatedAt:   optString(row, "created_at"),
		UpdatedAt:   optString(row, "updated_at"),
	}, nil
}

// DecodeProduct decodes a products row. id and name are required.
func DecodeProduct(row Row) (Product, error) {
	id, err := intField(row, "products", "id")
	if err != nil {
		return Product{}, err
	}
	name, err := stringField(row, "products", "name")
	if err != nil {
		return Product{}, err
	}
	return Product{
		ID:          id,
		Name:        name,
		Description: optString(row, "description"),
		CreatedAt:   optString(row, "created_at"),
		UpdatedAt:   optString(row, "updated_at"),
	}, nil
}

// DecodeProductPrice decodes a product_prices row. id, product_id and price
// are required.
func DecodeProductPrice(row Row) (ProductPrice, error) {
	id, err := intField(row, "product_prices", "id")
	if err != nil {
		return ProductPrice{}, err
	}
	productID, err := intField(row, "product_prices", "product_id")
	if err != nil {
		return ProductPrice{}, err
	}
	price, err := floatField(row, "product_prices", "price")
	if err != nil {
		return ProductPrice{}, err
	}
	return ProductPrice{
		ID:        id,
		ProductID: productID,
		Price:     price,
		CreatedAt: optString(row, "created_at"),
		UpdatedAt: optString(row, "updated_at"),
	}, nil
}

// DecodeUserOwnedProduct decodes a user_owned_products row. id, user_id and
// product_id are required.
func DecodeUserOwnedProduct(row Row) (UserOwnedProduct, error) {
	id, err := intField(row, "user_owned_products", "id")
	if err != nil {
		return UserOwnedProduct{}, err
	}
	userID, err := intField(row, "user_owned_products", "user_id")
	if err != nil {
		return UserOwnedProduct{}, err
	}
	productID, err := intField(row, "user_owned_products", "product_id")
	if err != nil {
		return UserOwnedProduct{}, err
	}
	return UserOwnedProduct{
		ID:            id,
		UserID:        userID,
		ProductID:     productID,
		Quantity:      optInt(row, "quantity"),
		PurchasePrice: optFloat(row, "purchase_price"),
		PurchaseDate:  optString(row, "purchase_date"),
		CreatedAt:     optString(row, "created_at"),
		UpdatedAt:     optString(row, "updated_at"),
	}, nil
}

// DecodeUserPartner decodes a user_partners row. id, user_id and partner_id
// are required.
func DecodeUserPartner(row Row) (UserPartner, error) {
	id, err := intField(row, "user_partners", "id")
	if err != nil {
		return UserPartner{}, err
	}
	userID, err := intField(row, "user_partners", "user_id")
	if err != nil {
		return UserPartner{}, err
	}
	partnerID, err := intField(row, "user_partners", "partner_id")
	if err != nil {
		return UserPartner{}, err
	}
	return UserPartner{
		ID:        id,
		UserID:    userID,
		PartnerID: partnerID,
		CreatedAt: optString(row, "created_at"),
		UpdatedAt: optString(row, "updated_at"),
	}, nil
}

// DecodeUserProductThreshold decodes a user_product_thresholds row. id,
// user_id and product_id are required.
func DecodeUserProductThreshold(row Row) (UserProductThreshold, error) {
	id, err := intField(row, "user_product_thresholds", "id")
	if err != nil {
		return UserProductThreshold{}, err
	}
	userID, err := intField(row, "user_product_thresholds", "user_id")
	if err != nil {
		return UserProductThreshold{}, err
	}
	productID, err := intField(row, "user_product_thresholds", "product_id")
	if err != nil {
		return UserProductThreshold{}, err
	}
	return UserProductThreshold{
		ID:             id,
		UserID:         userID,
		ProductID:      productID,
		UpperThreshold: optFloat(row, "upper_threshold"),
		LowerThreshold: optFloat(row, "lower_threshold"),
		CreatedAt:      optString(row, "created_at"),
		UpdatedAt:      optString(row, "updated_at"),
	}, nil
}
