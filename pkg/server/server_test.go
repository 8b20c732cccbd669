package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"liveview.io/liveview/pkg/collection"
	"liveview.io/liveview/pkg/database"
	"liveview.io/liveview/pkg/model"
	"liveview.io/liveview/pkg/view"
)

func TestServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Server")
}

// fakeStore serves canned data and records the last mutation it saw.
type fakeStore struct {
	users    map[int64]model.User
	posts    map[int64]model.Post
	err      error
	lastPost model.PostCreate
	deleted  []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[int64]model.User{},
		posts: map[int64]model.Post{},
	}
}

func (f *fakeStore) ListUsers(context.Context) ([]model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	ret := []model.User{}
	for _, u := range f.users {
		ret = append(ret, u)
	}
	return ret, nil
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %d: %w", id, database.ErrNotFound)
	}
	return u, nil
}

func (f *fakeStore) GetPost(_ context.Context, id int64) (model.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return model.Post{}, fmt.Errorf("post %d: %w", id, database.ErrNotFound)
	}
	return p, nil
}

func (f *fakeStore) CreatePost(_ context.Context, post model.PostCreate) (model.Post, error) {
	if f.err != nil {
		return model.Post{}, f.err
	}
	f.lastPost = post
	return model.Post{ID: 1, Title: post.Title, AuthorID: post.AuthorID}, nil
}

func (f *fakeStore) PublishPost(_ context.Context, id int64) (model.Post, error) {
	return model.Post{ID: id, Status: "published"}, nil
}

func (f *fakeStore) UnpublishPost(_ context.Context, id int64) (model.Post, error) {
	return model.Post{ID: id, Status: "draft"}, nil
}

func (f *fakeStore) DeletePost(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeStore) CreateProduct(_ context.Context, p model.ProductCreate) (model.Product, error) {
	return model.Product{ID: 1, Name: p.Name}, nil
}

func (f *fakeStore) UpdateProduct(_ context.Context, id int64, u model.ProductUpdate) (model.Product, error) {
	if f.err != nil {
		return model.Product{}, f.err
	}
	p := model.Product{ID: id}
	if u.Name != nil {
		p.Name = *u.Name
	}
	return p, nil
}

func (f *fakeStore) DeleteProduct(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) CreateProductPrice(_ context.Context, p model.ProductPriceCreate) (model.ProductPrice, error) {
	return model.ProductPrice{ID: 1, ProductID: p.ProductID, Price: p.Price}, nil
}

func (f *fakeStore) UpdateProductPrice(_ context.Context, id int64, _ model.ProductPriceUpdate) (model.ProductPrice, error) {
	return model.ProductPrice{ID: id}, nil
}

func (f *fakeStore) DeleteProductPrice(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) CreateUserPartner(_ context.Context, p model.UserPartnerCreate) (model.UserPartner, error) {
	return model.UserPartner{ID: 1, UserID: p.UserID, PartnerID: p.PartnerID}, nil
}

func (f *fakeStore) UpdateUserPartner(_ context.Context, id int64, _ model.UserPartnerUpdate) (model.UserPartner, error) {
	return model.UserPartner{ID: id}, nil
}

func (f *fakeStore) DeleteUserPartner(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) CreateUserProductThreshold(_ context.Context, t model.UserProductThresholdCreate) (model.UserProductThreshold, error) {
	return model.UserProductThreshold{ID: 1, UserID: t.UserID, ProductID: t.ProductID}, nil
}

func (f *fakeStore) UpdateUserProductThreshold(_ context.Context, id int64, _ model.UserProductThresholdUpdate) (model.UserProductThreshold, error) {
	return model.UserProductThreshold{ID: id}, nil
}

func (f *fakeStore) DeleteUserProductThreshold(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) CreateUserOwnedProduct(_ context.Context, o model.UserOwnedProductCreate) (model.UserOwnedProduct, error) {
	return model.UserOwnedProduct{ID: 1, UserID: o.UserID, ProductID: o.ProductID}, nil
}

func (f *fakeStore) UpdateUserOwnedProduct(_ context.Context, id int64, _ model.UserOwnedProductUpdate) (model.UserOwnedProduct, error) {
	return model.UserOwnedProduct{ID: id}, nil
}

func (f *fakeStore) DeleteUserOwnedProduct(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

var _ Store = &fakeStore{}

var _ = Describe("API server", func() {
	var store *fakeStore
	var broker *Broker
	var handler http.Handler

	newView := func(name string, src *collection.Store[string]) view.Handle {
		v, err := view.New(name, src)
		Expect(err).NotTo(HaveOccurred())
		return v
	}

	BeforeEach(func() {
		store = newFakeStore()
		src := collection.NewStore[string]("posts")
		broker = NewBroker(":0", []view.Handle{newView("posts", src)},
			Options{StreamBaseURL: "http://stream.local"})
		api := NewAPIServer(":0", store, broker, Options{StreamBaseURL: "http://stream.local"})
		handler = api.Router()
	})

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	Describe("reads", func() {
		It("should list users", func() {
			store.users[1] = model.User{ID: 1, Username: "alice"}

			w := do("GET", "/users", nil)
			Expect(w.Code).To(Equal(http.StatusOK))

			var users []model.User
			Expect(json.Unmarshal(w.Body.Bytes(), &users)).To(Succeed())
			Expect(users).To(HaveLen(1))
		})

		It("should return an empty array, not null, for no users", func() {
			w := do("GET", "/users", nil)
			Expect(strings.TrimSpace(w.Body.String())).To(Equal("[]"))
		})

		It("should fetch a user by id", func() {
			store.users[7] = model.User{ID: 7, Username: "alice"}
			w := do("GET", "/users/7", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("should map a store miss to a 404 envelope", func() {
			w := do("GET", "/users/99", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))

			var body map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("error", "NotFoundError"))
			Expect(body).To(HaveKeyWithValue("statusCode", float64(404)))
		})

		It("should reject a non-numeric id", func() {
			w := do("GET", "/users/abc", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("writes", func() {
		It("should create a post", func() {
			w := do("POST", "/posts", map[string]any{"author_id": 10, "title": "t"})
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(store.lastPost.Title).To(Equal("t"))
			Expect(store.lastPost.AuthorID).To(Equal(int64(10)))
		})

		It("should reject an unparsable body", func() {
			req := httptest.NewRequest("POST", "/posts", strings.NewReader("{"))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("should publish and unpublish a post", func() {
			w := do("PATCH", "/posts/3/publish", nil)
			Expect(w.Code).To(Equal(http.StatusOK))

			var post model.Post
			Expect(json.Unmarshal(w.Body.Bytes(), &post)).To(Succeed())
			Expect(post.Status).To(Equal("published"))

			w = do("PATCH", "/posts/3/unpublish", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("should delete with 204 and no body", func() {
			w := do("DELETE", "/posts/3", nil)
			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(w.Body.Len()).To(BeZero())
			Expect(store.deleted).To(Equal([]int64{3}))
		})

		It("should apply partial product updates", func() {
			w := do("PATCH", "/products/5", map[string]any{"name": "widget"})
			Expect(w.Code).To(Equal(http.StatusOK))

			var product model.Product
			Expect(json.Unmarshal(w.Body.Bytes(), &product)).To(Succeed())
			Expect(product.Name).To(Equal("widget"))
		})

		It("should report unexpected store failures as opaque 500s", func() {
			store.err = fmt.Errorf("connection reset")
			w := do("POST", "/posts", map[string]any{"author_id": 1, "title": "t"})
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).NotTo(ContainSubstring("connection reset"))
		})
	})

	Describe("stream redirects", func() {
		It("should redirect to the broker with an opaque stream id", func() {
			w := do("GET", "/streams/posts", nil)
			Expect(w.Code).To(Equal(http.StatusMovedPermanently))

			location := w.Header().Get("Location")
			Expect(location).To(HavePrefix("http://stream.local/v1/streams/"))
			Expect(location).NotTo(ContainSubstring("posts"))
		})

		It("should hand out a stable id per view", func() {
			first := do("GET", "/streams/posts", nil).Header().Get("Location")
			second := do("GET", "/streams/posts", nil).Header().Get("Location")
			Expect(first).To(Equal(second))
		})

		It("should 404 on unknown views", func() {
			w := do("GET", "/streams/nope", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("fallthrough", func() {
		It("should serve the plain-text 404 page", func() {
			w := do("GET", "/no/such/route", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(w.Header().Get("Content-Type")).To(HavePrefix("text/plain"))
			Expect(w.Body.String()).To(ContainSubstring("404 Not Found"))
		})
	})
})

var _ = Describe("Stream broker", func() {
	var src *collection.Store[string]
	var broker *Broker
	var srv *httptest.Server

	BeforeEach(func() {
		src = collection.NewStore[string]("items")
		v, err := view.New("items", src, view.WithLimit(10))
		Expect(err).NotTo(HaveOccurred())
		broker = NewBroker(":0", []view.Handle{v}, Options{})
		srv = httptest.NewServer(broker.Router())
		DeferCleanup(srv.Close)
	})

	readEvent := func(r *bufio.Reader) map[string]any {
		for {
			line, err := r.ReadString('\n')
			Expect(err).NotTo(HaveOccurred())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev map[string]any
			Expect(json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev)).To(Succeed())
			return ev
		}
	}

	It("should reject unknown stream ids", func() {
		resp, err := http.Get(srv.URL + "/v1/streams/nope")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should replay the window and stream subsequent changes", func() {
		src.Upsert(1, "a")

		id, err := broker.StreamID("items")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/v1/streams/"+id, nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))

		r := bufio.NewReader(resp.Body)

		ev := readEvent(r)
		Expect(ev).To(HaveKeyWithValue("type", "Added"))
		Expect(ev).To(HaveKeyWithValue("key", float64(1)))
		Expect(ev).To(HaveKeyWithValue("value", "a"))

		src.Upsert(2, "b")
		ev = readEvent(r)
		Expect(ev).To(HaveKeyWithValue("key", float64(2)))

		src.Delete(1)
		ev = readEvent(r)
		Expect(ev).To(HaveKeyWithValue("type", "Deleted"))
		Expect(ev).NotTo(HaveKey("value"))
	})
})
