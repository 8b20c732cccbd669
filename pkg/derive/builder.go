package derive

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"liveview.io/liveview/internal/dag"
	"liveview.io/liveview/pkg/collection"
	"liveview.io/liveview/pkg/view"
)

// Builder declares base collections, wires derivations in strict dependency
// order and registers named views. It runs once at startup: every input to a
// derivation must already have been declared on the same builder, and Build
// refuses to produce a graph on any configuration error.
//
// The generic constructors are package-level functions taking the builder as
// their first argument since methods cannot introduce type parameters.
type Builder struct {
	log   logr.Logger
	dag   *dag.Graph
	bases map[string]*baseBinding
	views map[string]view.Handle
	errs  []error
}

type baseBinding struct {
	ingest func(d RawDelta) error
	reset  func(rows []RawEntry) int
}

// NewBuilder creates an empty builder.
func NewBuilder(log logr.Logger) *Builder {
	return &Builder{
		log:   log,
		dag:   dag.New(),
		bases: map[string]*baseBinding{},
		views: map[string]view.Handle{},
	}
}

func (b *Builder) declare(name string, inputs ...collection.Named) bool {
	if !b.dag.AddNode(name) {
		b.errs = append(b.errs, NewDuplicateNameError(name))
		return false
	}
	ok := true
	for _, input := range inputs {
		if !b.dag.HasNode(input.Name()) {
			b.errs = append(b.errs, NewUndeclaredInputError(name, input.Name()))
			ok = false
			continue
		}
		if err := b.dag.AddEdge(input.Name(), name); err != nil {
			b.errs = append(b.errs, err)
			ok = false
		}
	}
	return ok
}

// Base declares a base collection fed from the named table. The decoder maps
// adapter rows to the entity type; rows it rejects are counted and dropped
// at the graph boundary, they never reach a derivation.
func Base[V any](b *Builder, table string, decode func(map[string]any) (V, error)) *collection.Store[V] {
	store := collection.NewStore[V](table)
	if !b.declare(table) {
		return store
	}

	b.bases[table] = &baseBinding{
		ingest: func(d RawDelta) error {
			if d.Type == collection.Deleted {
				store.Delete(d.Key)
				return nil
			}
			v, err := decode(d.Row)
			if err != nil {
				return err
			}
			store.Upsert(d.Key, v)
			return nil
		},
		reset: func(rows []RawEntry) int {
			dropped := 0
			entries := make([]collection.Entry[V], 0, len(rows))
			for _, r := range rows {
				v, err := decode(r.Row)
				if err != nil {
					dropped++
					continue
				}
				entries = append(entries, collection.Entry[V]{Key: r.Key, Value: v})
			}
			store.Reset(entries)
			return dropped
		},
	}

	return store
}

// Reindex declares a derivation that re-keys src by the given foreign key,
// leaving the value shape untouched. Values for which the extractor reports
// false contribute no output. Key collisions resolve to the row with the
// greatest source key; see reindexState.
func Reindex[V any](b *Builder, name string, src collection.Source[V], key func(V) (int64, bool)) *collection.Store[V] {
	out := collection.NewStore[V](name)
	if !b.declare(name, src) {
		return out
	}

	state := newReindexState(out, key)
	src.OnDelta(state.onDelta)
	return out
}

// Join declares a left join of primary against one secondary collection. For
// every primary entry the combine function is invoked with the result of the
// point lookup, nil on a miss, and its output is stored under the primary
// key. The output entry is always produced.
func Join[P, S, O any](b *Builder, name string, primary collection.Source[P], secondary collection.Source[S],
	foreignKey func(P) int64, combine func(P, *S) O) *collection.Store[O] {
	out := collection.NewStore[O](name)
	if !b.declare(name, primary, secondary) {
		return out
	}

	state := newJoinState(out, primary, secondary, foreignKey, combine)
	primary.OnDelta(state.onPrimary)
	secondary.OnDelta(state.onSecondary)
	return out
}

// Join3 declares a left join of primary against three secondary collections
// with independent per-lookup fallbacks.
func Join3[P, A, B, C, O any](b *Builder, name string, primary collection.Source[P],
	secA collection.Source[A], secB collection.Source[B], secC collection.Source[C],
	fkA, fkB, fkC func(P) int64, combine func(P, *A, *B, *C) O) *collection.Store[O] {
	out := collection.NewStore[O](name)
	if !b.declare(name, primary, secA, secB, secC) {
		return out
	}

	state := newJoin3State(out, primary, secA, secB, secC, fkA, fkB, fkC, combine)
	primary.OnDelta(state.onPrimary)
	secA.OnDelta(func(d collection.Delta[A]) { state.onSecondary(state.refsA, d.Key) })
	secB.OnDelta(func(d collection.Delta[B]) { state.onSecondary(state.refsB, d.Key) })
	secC.OnDelta(func(d collection.Delta[C]) { state.onSecondary(state.refsC, d.Key) })
	return out
}

// RegisterView binds a named view to a declared collection. Pagination
// errors (negative limit) and name clashes surface at Build.
func RegisterView[V any](b *Builder, name string, src collection.Source[V], opts ...view.Option) {
	if !b.dag.HasNode(src.Name()) {
		b.errs = append(b.errs, NewUndeclaredInputError("view "+name, src.Name()))
		return
	}
	if _, exists := b.views[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("view %q registered twice", name))
		return
	}

	opts = append([]view.Option{view.WithLogger(b.log)}, opts...)
	v, err := view.New(name, src, opts...)
	if err != nil {
		b.errs = append(b.errs, err)
		return
	}
	b.views[name] = v
}

// Build validates the declared graph and returns it. Any accumulated
// configuration error, or a dependency cycle, is fatal: the caller must not
// start without a valid graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, NewGraphError(errors.Join(b.errs...))
	}

	order, err := b.dag.Sort()
	if err != nil {
		return nil, NewGraphError(err)
	}

	g := &Graph{
		log:     b.log.WithName("graph"),
		bases:   b.bases,
		views:   b.views,
		order:   order,
		dropped: map[string]int{},
	}

	g.log.Info("derivation graph ready", "graph", g.String(), "views", len(g.views))

	return g, nil
}
