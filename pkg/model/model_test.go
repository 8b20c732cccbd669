package model

import (
	"encoding/json"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestModel(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Model")
}

var _ = Describe("Row decoding", func() {
	It("should decode a complete users row", func() {
		u, err := DecodeUser(Row{
			"id":            float64(1),
			"username":      "alice",
			"email":         "alice@example.com",
			"password_hash": "x",
			"created_at":    "2024-01-01T00:00:00Z",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(u.ID).To(Equal(int64(1)))
		Expect(u.Username).To(Equal("alice"))
		Expect(u.Email).To(Equal("alice@example.com"))
	})

	It("should reject a users row without an id", func() {
		_, err := DecodeUser(Row{"username": "alice", "email": "a@b"})
		Expect(err).To(HaveOccurred())
	})

	It("should reject a posts row with a non-integer author_id", func() {
		_, err := DecodePost(Row{"id": float64(1), "author_id": "ten", "title": "t"})
		Expect(err).To(HaveOccurred())
	})

	It("should tolerate missing optional fields", func() {
		p, err := DecodePost(Row{"id": float64(1), "author_id": float64(2), "title": "t"})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Content).To(BeEmpty())
		Expect(p.Status).To(BeEmpty())
	})

	It("should decode a product price with an integer-valued price", func() {
		pp, err := DecodeProductPrice(Row{
			"id": float64(3), "product_id": float64(7), "price": float64(12),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(pp.Price).To(Equal(12.0))
	})

	It("should reject a price row without a price", func() {
		_, err := DecodeProductPrice(Row{"id": float64(3), "product_id": float64(7)})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Enrichment", func() {
	Describe("posts", func() {
		post := Post{ID: 1, Title: "t", AuthorID: 10}

		It("should embed the author's public fields", func() {
			out := EnrichPost(post, &User{Username: "alice", Email: "a@b"})
			Expect(out.Author.Name).To(Equal("alice"))
			Expect(out.Author.Email).To(Equal("a@b"))
		})

		It("should substitute the author sentinel on a miss", func() {
			out := EnrichPost(post, nil)
			Expect(out.Author).To(Equal(UnknownAuthor))
		})
	})

	Describe("products", func() {
		product := Product{ID: 1, Name: "widget"}

		It("should carry the current price", func() {
			out := EnrichProduct(product, &ProductPrice{Price: 9.5})
			Expect(out.Price).NotTo(BeNil())
			Expect(*out.Price).To(Equal(9.5))
		})

		It("should render a missing price as JSON null, not a sentinel", func() {
			out := EnrichProduct(product, nil)
			Expect(out.Price).To(BeNil())

			data, err := json.Marshal(out)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"price":null`))
		})
	})

	Describe("owned products", func() {
		owned := UserOwnedProduct{ID: 1, UserID: 10, ProductID: 20, Quantity: 2}

		It("should resolve all three lookups when present", func() {
			out := EnrichOwnedProduct(owned,
				&User{Username: "alice", Email: "a@b"},
				&Product{Name: "widget", Description: "d"},
				&ProductPrice{Price: 3.0})
			Expect(out.User.Username).To(Equal("alice"))
			Expect(out.Product.Name).To(Equal("widget"))
			Expect(*out.Product.CurrentPrice).To(Equal(3.0))
		})

		It("should degrade each lookup independently", func() {
			out := EnrichOwnedProduct(owned, &User{Username: "alice", Email: "a@b"}, nil, nil)
			Expect(out.User.Username).To(Equal("alice"))
			Expect(out.Product.Name).To(Equal(UnknownProduct.Name))
			Expect(out.Product.Description).To(Equal(UnknownProduct.Description))
			Expect(out.Product.CurrentPrice).To(BeNil())
		})

		It("should price a present product with no price row as null", func() {
			out := EnrichOwnedProduct(owned, nil,
				&Product{Name: "widget", Description: "d"}, nil)
			Expect(out.User).To(Equal(UnknownUser))
			Expect(out.Product.Name).To(Equal("widget"))
			Expect(out.Product.CurrentPrice).To(BeNil())
		})
	})

	It("should never leak the password hash into JSON", func() {
		data, err := json.Marshal(User{Username: "alice", PasswordHash: "secret"})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).NotTo(ContainSubstring("secret"))
	})
})
