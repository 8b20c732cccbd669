// Package service wires the domain derivation graph: base collections for
// every source table, the price reindex, the three join derivations and the
// named views exposed to consumers. The wiring runs once at startup and any
// error in it is fatal.
package service

import (
	"github.com/go-logr/logr"

	"liveview.io/liveview/pkg/adapter/postgres"
	"liveview.io/liveview/pkg/collection"
	"liveview.io/liveview/pkg/derive"
	"liveview.io/liveview/pkg/model"
	"liveview.io/liveview/pkg/view"
)

// Options configures the service.
type Options struct {
	Logger logr.Logger

	// DefaultLimit is the page size of every registered view. Zero means
	// the view-layer default.
	DefaultLimit int
}

var _ postgres.Handler = &Service{}

// Service is the context object holding the built derivation graph. It is
// constructed once at startup and passed to whichever component needs to
// ingest changes or serve views; there is no ambient global state.
type Service struct {
	log   logr.Logger
	graph *derive.Graph
}

// New builds the derivation graph. Construction errors (duplicate names,
// undeclared inputs, cycles, invalid view limits) are returned and must abort
// startup.
func New(opts Options) (*Service, error) {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	b := derive.NewBuilder(log)

	// Base collections, one per source table, keyed by primary key.
	users := derive.Base(b, "users", model.DecodeUser)
	posts := derive.Base(b, "posts", model.DecodePost)
	products := derive.Base(b, "products", model.DecodeProduct)
	prices := derive.Base(b, "product_prices", model.DecodeProductPrice)
	owned := derive.Base(b, "user_owned_products", model.DecodeUserOwnedProduct)
	partners := derive.Base(b, "user_partners", model.DecodeUserPartner)
	thresholds := derive.Base(b, "user_product_thresholds", model.DecodeUserProductThreshold)

	// Price rows re-keyed by the product they price, so joins can look
	// them up by product id.
	pricesByProduct := derive.Reindex(b, "pricesByProduct", prices,
		func(p model.ProductPrice) (int64, bool) { return p.ProductID, p.ProductID > 0 })

	postsWithAuthors := derive.Join(b, "postsWithAuthors", posts, users,
		func(p model.Post) int64 { return p.AuthorID },
		model.EnrichPost)

	productsWithPrices := derive.Join(b, "productsWithPrices", products, pricesByProduct,
		func(p model.Product) int64 { return p.ID },
		model.EnrichProduct)

	ownedWithDetails := derive.Join3(b, "ownedProductsWithDetails", owned,
		users, products, pricesByProduct,
		func(o model.UserOwnedProduct) int64 { return o.UserID },
		func(o model.UserOwnedProduct) int64 { return o.ProductID },
		func(o model.UserOwnedProduct) int64 { return o.ProductID },
		model.EnrichOwnedProduct)

	limit := []view.Option{}
	if opts.DefaultLimit > 0 {
		limit = append(limit, view.WithLimit(opts.DefaultLimit))
	}

	derive.RegisterView(b, "posts", postsWithAuthors, limit...)
	derive.RegisterView(b, "users", users, limit...)
	derive.RegisterView(b, "products", productsWithPrices, limit...)
	derive.RegisterView(b, "prices", prices, limit...)
	derive.RegisterView(b, "userOwnedProducts", ownedWithDetails, limit...)
	derive.RegisterView(b, "userPartners", partners, limit...)
	derive.RegisterView(b, "userProductThresholds", thresholds, limit...)

	graph, err := b.Build()
	if err != nil {
		return nil, err
	}

	return &Service{log: log.WithName("service"), graph: graph}, nil
}

// Graph returns the built derivation graph.
func (s *Service) Graph() *derive.Graph { return s.graph }

// Tables returns the source tables the service derives from.
func (s *Service) Tables() []string { return s.graph.Tables() }

// View returns a registered view by name.
func (s *Service) View(name string) (view.Handle, bool) { return s.graph.View(name) }

// Views returns all registered views.
func (s *Service) Views() []view.Handle { return s.graph.Views() }

// HandleEvent implements the adapter handler: one incremental table change.
func (s *Service) HandleEvent(ev postgres.Event) error {
	d := derive.RawDelta{Key: ev.Key, Row: ev.Row}
	switch ev.Type {
	case postgres.Insert:
		d.Type = collection.Added
	case postgres.Update:
		d.Type = collection.Updated
	case postgres.Delete:
		d.Type = collection.Deleted
	}
	return s.graph.Ingest(ev.Table, d)
}

// HandleResync implements the adapter handler: a full-table snapshot.
func (s *Service) HandleResync(table string, rows []postgres.TableRow) error {
	entries := make([]derive.RawEntry, len(rows))
	for i, r := range rows {
		entries[i] = derive.RawEntry{Key: r.Key, Row: r.Row}
	}
	return s.graph.Resync(table, entries)
}
