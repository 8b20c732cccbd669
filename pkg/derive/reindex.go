package derive

import (
	"liveview.io/liveview/pkg/collection"
)

// reindexState maintains the output of a Reindex derivation. Several source
// rows may map to the same output key (two price rows for one product); the
// keyed output admits a single value per key, so contenders are tracked and
// the row with the greatest source key wins. The rule is a pure function of
// the contender set, which keeps the output independent of event order, and
// deleting the winner re-promotes the runner-up.
type reindexState[V any] struct {
	out        *collection.Store[V]
	key        func(V) (int64, bool)
	fwd        map[int64]int64       // source key -> current output key
	contenders map[int64]map[int64]V // output key -> source key -> value
}

func newReindexState[V any](out *collection.Store[V], key func(V) (int64, bool)) *reindexState[V] {
	return &reindexState[V]{
		out:        out,
		key:        key,
		fwd:        map[int64]int64{},
		contenders: map[int64]map[int64]V{},
	}
}

func (r *reindexState[V]) onDelta(d collection.Delta[V]) {
	if d.Type == collection.Deleted {
		r.remove(d.Key)
		return
	}

	newKey, ok := r.key(d.Value)
	if !ok {
		// No usable foreign key on this value: the entry contributes
		// no output.
		r.remove(d.Key)
		return
	}

	if oldKey, exists := r.fwd[d.Key]; exists && oldKey != newKey {
		r.drop(oldKey, d.Key)
		r.resolve(oldKey)
	}

	r.fwd[d.Key] = newKey
	group := r.contenders[newKey]
	if group == nil {
		group = map[int64]V{}
		r.contenders[newKey] = group
	}
	group[d.Key] = d.Value
	r.resolve(newKey)
}

func (r *reindexState[V]) remove(srcKey int64) {
	outKey, exists := r.fwd[srcKey]
	if !exists {
		return
	}
	delete(r.fwd, srcKey)
	r.drop(outKey, srcKey)
	r.resolve(outKey)
}

func (r *reindexState[V]) drop(outKey, srcKey int64) {
	if group, ok := r.contenders[outKey]; ok {
		delete(group, srcKey)
		if len(group) == 0 {
			delete(r.contenders, outKey)
		}
	}
}

// resolve re-elects the winner for an output key and updates the output.
func (r *reindexState[V]) resolve(outKey int64) {
	group, ok := r.contenders[outKey]
	if !ok || len(group) == 0 {
		r.out.Delete(outKey)
		return
	}

	var winner int64
	first := true
	for srcKey := range group {
		if first || srcKey > winner {
			winner = srcKey
			first = false
		}
	}
	r.out.Upsert(outKey, group[winner])
}
