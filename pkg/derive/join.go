package derive

import (
	"liveview.io/liveview/pkg/collection"
)

// links is the reverse index of one join dependency: which primary entries
// currently reference which secondary key. It is what makes secondary-side
// recomputation proportional to the affected entries instead of the whole
// primary collection.
type links struct {
	fks map[int64]int64              // primary key -> referenced secondary key
	rev map[int64]map[int64]struct{} // secondary key -> referencing primary keys
}

func newLinks() *links {
	return &links{fks: map[int64]int64{}, rev: map[int64]map[int64]struct{}{}}
}

func (l *links) set(pk, fk int64) {
	if old, ok := l.fks[pk]; ok {
		if old == fk {
			return
		}
		l.unlink(old, pk)
	}
	l.fks[pk] = fk
	refs := l.rev[fk]
	if refs == nil {
		refs = map[int64]struct{}{}
		l.rev[fk] = refs
	}
	refs[pk] = struct{}{}
}

func (l *links) drop(pk int64) {
	if fk, ok := l.fks[pk]; ok {
		l.unlink(fk, pk)
		delete(l.fks, pk)
	}
}

func (l *links) unlink(fk, pk int64) {
	if refs, ok := l.rev[fk]; ok {
		delete(refs, pk)
		if len(refs) == 0 {
			delete(l.rev, fk)
		}
	}
}

func (l *links) referrers(fk int64) []int64 {
	refs := l.rev[fk]
	ret := make([]int64, 0, len(refs))
	for pk := range refs {
		ret = append(ret, pk)
	}
	return ret
}

// lookup resolves a point lookup into the optional form the combine
// functions consume: nil signals a miss and is never an error.
func lookup[S any](c collection.Collection[S], key int64) *S {
	v, ok := c.Get(key)
	if !ok {
		return nil
	}
	return &v
}

// joinState maintains the output of a single-secondary left join. Every
// primary entry yields exactly one output entry; a lookup miss is passed to
// the combine function as nil and never suppresses the output.
type joinState[P, S, O any] struct {
	primary   collection.Collection[P]
	secondary collection.Collection[S]
	fk        func(P) int64
	combine   func(P, *S) O
	out       *collection.Store[O]
	refs      *links
}

func newJoinState[P, S, O any](out *collection.Store[O], primary collection.Collection[P],
	secondary collection.Collection[S], fk func(P) int64, combine func(P, *S) O) *joinState[P, S, O] {
	return &joinState[P, S, O]{
		primary:   primary,
		secondary: secondary,
		fk:        fk,
		combine:   combine,
		out:       out,
		refs:      newLinks(),
	}
}

func (j *joinState[P, S, O]) onPrimary(d collection.Delta[P]) {
	if d.Type == collection.Deleted {
		j.refs.drop(d.Key)
		j.out.Delete(d.Key)
		return
	}

	j.refs.set(d.Key, j.fk(d.Value))
	j.recompute(d.Key, d.Value)
}

func (j *joinState[P, S, O]) onSecondary(d collection.Delta[S]) {
	for _, pk := range j.refs.referrers(d.Key) {
		if pv, ok := j.primary.Get(pk); ok {
			j.recompute(pk, pv)
		}
	}
}

func (j *joinState[P, S, O]) recompute(pk int64, pv P) {
	j.out.Upsert(pk, j.combine(pv, lookup(j.secondary, j.fk(pv))))
}

// join3State maintains the output of a three-secondary left join. The three
// lookups are independent: each one falls back on its own, the relative
// lookup order is unobservable, and a miss on any subset never suppresses
// the output entry.
type join3State[P, A, B, C, O any] struct {
	primary collection.Collection[P]
	secA    collection.Collection[A]
	secB    collection.Collection[B]
	secC    collection.Collection[C]
	fkA     func(P) int64
	fkB     func(P) int64
	fkC     func(P) int64
	combine func(P, *A, *B, *C) O
	out     *collection.Store[O]
	refsA   *links
	refsB   *links
	refsC   *links
}

func newJoin3State[P, A, B, C, O any](out *collection.Store[O], primary collection.Collection[P],
	secA collection.Collection[A], secB collection.Collection[B], secC collection.Collection[C],
	fkA, fkB, fkC func(P) int64, combine func(P, *A, *B, *C) O) *join3State[P, A, B, C, O] {
	return &join3State[P, A, B, C, O]{
		primary: primary,
		secA:    secA,
		secB:    secB,
		secC:    secC,
		fkA:     fkA,
		fkB:     fkB,
		fkC:     fkC,
		combine: combine,
		out:     out,
		refsA:   newLinks(),
		refsB:   newLinks(),
		refsC:   newLinks(),
	}
}

func (j *join3State[P, A, B, C, O]) onPrimary(d collection.Delta[P]) {
	if d.Type == collection.Deleted {
		j.refsA.drop(d.Key)
		j.refsB.drop(d.Key)
		j.refsC.drop(d.Key)
		j.out.Delete(d.Key)
		return
	}

	j.refsA.set(d.Key, j.fkA(d.Value))
	j.refsB.set(d.Key, j.fkB(d.Value))
	j.refsC.set(d.Key, j.fkC(d.Value))
	j.recompute(d.Key, d.Value)
}

func (j *join3State[P, A, B, C, O]) onSecondary(refs *links, key int64) {
	for _, pk := range refs.referrers(key) {
		if pv, ok := j.primary.Get(pk); ok {
			j.recompute(pk, pv)
		}
	}
}

func (j *join3State[P, A, B, C, O]) recompute(pk int64, pv P) {
	j.out.Upsert(pk, j.combine(pv,
		lookup(j.secA, j.fkA(pv)),
		lookup(j.secB, j.fkB(pv)),
		lookup(j.secC, j.fkC(pv))))
}
