package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/rs/cors"

	"liveview.io/liveview/pkg/model"
)

// Store is the write-path contract the API server forwards to. Implemented
// by pkg/database; faked in tests.
type Store interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)

	GetPost(ctx context.Context, id int64) (model.Post, error)
	CreatePost(ctx context.Context, post model.PostCreate) (model.Post, error)
	PublishPost(ctx context.Context, id int64) (model.Post, error)
	UnpublishPost(ctx context.Context, id int64) (model.Post, error)
	DeletePost(ctx context.Context, id int64) error

	CreateProduct(ctx context.Context, product model.ProductCreate) (model.Product, error)
	UpdateProduct(ctx context.Context, id int64, update model.ProductUpdate) (model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	CreateProductPrice(ctx context.Context, price model.ProductPriceCreate) (model.ProductPrice, error)
	UpdateProductPrice(ctx context.Context, id int64, update model.ProductPriceUpdate) (model.ProductPrice, error)
	DeleteProductPrice(ctx context.Context, id int64) error

	CreateUserPartner(ctx context.Context, partner model.UserPartnerCreate) (model.UserPartner, error)
	UpdateUserPartner(ctx context.Context, id int64, update model.UserPartnerUpdate) (model.UserPartner, error)
	DeleteUserPartner(ctx context.Context, id int64) error

	CreateUserProductThreshold(ctx context.Context, threshold model.UserProductThresholdCreate) (model.UserProductThreshold, error)
	UpdateUserProductThreshold(ctx context.Context, id int64, update model.UserProductThresholdUpdate) (model.UserProductThreshold, error)
	DeleteUserProductThreshold(ctx context.Context, id int64) error

	CreateUserOwnedProduct(ctx context.Context, owned model.UserOwnedProductCreate) (model.UserOwnedProduct, error)
	UpdateUserOwnedProduct(ctx context.Context, id int64, update model.UserOwnedProductUpdate) (model.UserOwnedProduct, error)
	DeleteUserOwnedProduct(ctx context.Context, id int64) error
}

// APIServer is the write API: CRUD over the relational store plus redirects
// to the stream broker. It never reads the derivation graph.
type APIServer struct {
	addr   string
	store  Store
	broker *Broker
	base   string
	log    logr.Logger
}

// NewAPIServer creates the write API server.
func NewAPIServer(addr string, store Store, broker *Broker, opts Options) *APIServer {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &APIServer{
		addr:   addr,
		store:  store,
		broker: broker,
		base:   opts.StreamBaseURL,
		log:    log.WithName("apiserver"),
	}
}

// Start runs the server until ctx is cancelled.
func (s *APIServer) Start(ctx context.Context) error {
	return serve(ctx, s.addr, s.Router(), s.log)
}

// Router builds the write API routes.
func (s *APIServer) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /users", s.listUsers)
	mux.HandleFunc("GET /users/{id}", s.getUser)

	mux.HandleFunc("GET /posts/{id}", s.getPost)
	mux.HandleFunc("POST /posts", s.createPost)
	mux.HandleFunc("PATCH /posts/{id}/publish", s.publishPost)
	mux.HandleFunc("PATCH /posts/{id}/unpublish", s.unpublishPost)
	mux.HandleFunc("DELETE /posts/{id}", s.deletePost)

	mux.HandleFunc("POST /products", s.createProduct)
	mux.HandleFunc("PATCH /products/{id}", s.updateProduct)
	mux.HandleFunc("DELETE /products/{id}", s.deleteProduct)

	mux.HandleFunc("POST /product-prices", s.createProductPrice)
	mux.HandleFunc("PATCH /product-prices/{id}", s.updateProductPrice)
	mux.HandleFunc("DELETE /product-prices/{id}", s.deleteProductPrice)

	mux.HandleFunc("POST /user-partners", s.createUserPartner)
	mux.HandleFunc("PATCH /user-partners/{id}", s.updateUserPartner)
	mux.HandleFunc("DELETE /user-partners/{id}", s.deleteUserPartner)

	mux.HandleFunc("POST /user-product-thresholds", s.createUserProductThreshold)
	mux.HandleFunc("PATCH /user-product-thresholds/{id}", s.updateUserProductThreshold)
	mux.HandleFunc("DELETE /user-product-thresholds/{id}", s.deleteUserProductThreshold)

	mux.HandleFunc("POST /user-owned-products", s.createUserOwnedProduct)
	mux.HandleFunc("PATCH /user-owned-products/{id}", s.updateUserOwnedProduct)
	mux.HandleFunc("DELETE /user-owned-products/{id}", s.deleteUserOwnedProduct)

	mux.HandleFunc("GET /streams/{view}", s.redirectStream)

	mux.HandleFunc("/", notFoundHandler)

	return cors.AllowAll().Handler(mux)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, NewBadRequestError("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewBadRequestError("invalid request body: %s", err.Error())
	}
	return nil
}

func (s *APIServer) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *APIServer) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *APIServer) getPost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *APIServer) createPost(w http.ResponseWriter, r *http.Request) {
	var body model.PostCreate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	post, err := s.store.CreatePost(r.Context(), body)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *APIServer) publishPost(w http.ResponseWriter, r *http.Request) {
	s.updateByID(w, r, func(ctx context.Context, id int64) (any, error) {
		return s.store.PublishPost(ctx, id)
	})
}

func (s *APIServer) unpublishPost(w http.ResponseWriter, r *http.Request) {
	s.updateByID(w, r, func(ctx context.Context, id int64) (any, error) {
		return s.store.UnpublishPost(ctx, id)
	})
}

func (s *APIServer) deletePost(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.store.DeletePost)
}

func (s *APIServer) createProduct(w http.ResponseWriter, r *http.Request) {
	var body model.ProductCreate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	product, err := s.store.CreateProduct(r.Context(), body)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *APIServer) updateProduct(w http.ResponseWriter, r *http.Request) {
	var body model.ProductUpdate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	s.updateByID(w, r, func(ctx context.Context, id int64) (any, error) {
		return s.store.UpdateProduct(ctx, id, body)
	})
}

func (s *APIServer) deleteProduct(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.store.DeleteProduct)
}

func (s *APIServer) createProductPrice(w http.ResponseWriter, r *http.Request) {
	var body model.ProductPriceCreate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	price, err := s.store.CreateProductPrice(r.Context(), body)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, price)
}

func (s *APIServer) updateProductPrice(w http.ResponseWriter, r *http.Request) {
	var body model.ProductPriceUpdate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	s.updateByID(w, r, func(ctx context.Context, id int64) (any, error) {
		return s.store.UpdateProductPrice(ctx, id, body)
	})
}

func (s *APIServer) deleteProductPrice(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.store.DeleteProductPrice)
}

func (s *APIServer) createUserPartner(w http.ResponseWriter, r *http.Request) {
	var body model.UserPartnerCreate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	partner, err := s.store.CreateUserPartner(r.Context(), body)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, partner)
}

func (s *APIServer) updateUserPartner(w http.ResponseWriter, r *http.Request) {
	var body model.UserPartnerUpdate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	s.updateByID(w, r, func(ctx context.Context, id int64) (any, error) {
		return s.store.UpdateUserPartner(ctx, id, body)
	})
}

func (s *APIServer) deleteUserPartner(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.store.DeleteUserPartner)
}

func (s *APIServer) createUserProductThreshold(w http.ResponseWriter, r *http.Request) {
	var body model.UserProductThresholdCreate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	threshold, err := s.store.CreateUserProductThreshold(r.Context(), body)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, threshold)
}

func (s *APIServer) updateUserProductThreshold(w http.ResponseWriter, r *http.Request) {
	var body model.UserProductThresholdUpdate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	s.updateByID(w, r, func(ctx context.Context, id int64) (any, error) {
		return s.store.UpdateUserProductThreshold(ctx, id, body)
	})
}

func (s *APIServer) deleteUserProductThreshold(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.store.DeleteUserProductThreshold)
}

func (s *APIServer) createUserOwnedProduct(w http.ResponseWriter, r *http.Request) {
	var body model.UserOwnedProductCreate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	owned, err := s.store.CreateUserOwnedProduct(r.Context(), body)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, owned)
}

func (s *APIServer) updateUserOwnedProduct(w http.ResponseWriter, r *http.Request) {
	var body model.UserOwnedProductUpdate
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	s.updateByID(w, r, func(ctx context.Context, id int64) (any, error) {
		return s.store.UpdateUserOwnedProduct(ctx, id, body)
	})
}

func (s *APIServer) deleteUserOwnedProduct(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.store.DeleteUserOwnedProduct)
}

// redirectStream resolves a view name to its opaque stream identifier and
// points the client at the broker.
func (s *APIServer) redirectStream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("view")
	id, err := s.broker.StreamID(name)
	if err != nil {
		writeError(w, s.log, NewNotFoundError("unknown view %q", name))
		return
	}
	http.Redirect(w, r, s.base+"/v1/streams/"+id, http.StatusMovedPermanently)
}

func (s *APIServer) updateByID(w http.ResponseWriter, r *http.Request, update func(context.Context, int64) (any, error)) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	result, err := update(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *APIServer) deleteByID(w http.ResponseWriter, r *http.Request, del func(context.Context, int64) error) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := del(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
