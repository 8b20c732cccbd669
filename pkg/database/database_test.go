package database

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDatabase(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Database")
}

var _ = Describe("Partial updates", func() {
	It("should render only the set columns", func() {
		name := "widget"
		q := newUpdateQuery("products", "id, name", 7)
		q.Set("name", &name)
		q.Set("description", (*string)(nil))

		Expect(q.SQL()).To(Equal(
			"UPDATE products SET name = $1, updated_at = now() WHERE id = $2 RETURNING id, name"))
		Expect(q.Args()).To(Equal([]any{"widget", int64(7)}))
	})

	It("should skip nil values of every pointer type", func() {
		q := newUpdateQuery("t", "id", 1)
		q.Set("a", (*string)(nil))
		q.Set("b", (*int64)(nil))
		q.Set("c", (*float64)(nil))

		Expect(q.SQL()).To(Equal(
			"UPDATE t SET updated_at = now() WHERE id = $1 RETURNING id"))
		Expect(q.Args()).To(Equal([]any{int64(1)}))
	})

	It("should number placeholders in set order", func() {
		amount := 9.5
		productID := int64(3)
		q := newUpdateQuery("product_prices", "id", 2)
		q.Set("price", &amount)
		q.Set("product_id", &productID)

		Expect(q.SQL()).To(Equal(
			"UPDATE product_prices SET price = $1, product_id = $2, updated_at = now() WHERE id = $3 RETURNING id"))
		Expect(q.Args()).To(Equal([]any{9.5, int64(3), int64(2)}))
	})
})
