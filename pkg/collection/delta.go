package collection

// DeltaType describes the kind of change a delta carries.
type DeltaType string

const (
	Added   DeltaType = "Added"
	Updated DeltaType = "Updated"
	Deleted DeltaType = "Deleted"
)

// Delta registers a change (addition, update or deletion) on a keyed entry.
// Value is the zero value for deletions.
type Delta[V any] struct {
	Type  DeltaType
	Key   int64
	Value V
}
