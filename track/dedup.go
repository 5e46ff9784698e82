package track

// seenPlateCapacity bounds the per-stream set of recently reported plates
const seenPlateCapacity = 100

// dedupRing is a fixed capacity set of recently seen plate strings. Once
// full, adding a new entry evicts the oldest, so a plate that left the
// scene long ago can be reported again.
type dedupRing struct {
	entries []string
	index   map[string]struct{}
	head    int
}

func newDedupRing(capacity int) *dedupRing {
	return &dedupRing{
		entries: make([]string, 0, capacity),
		index:   make(map[string]struct{}, capacity),
	}
}

// Contains reports whether the plate is in the ring
func (r *dedupRing) Contains(plate string) bool {
	_, ok := r.index[plate]
	return ok
}

// Add records a plate, evicting the oldest entry when full. Adding a
// plate already present is a no-op.
func (r *dedupRing) Add(plate string) {

	if r.Contains(plate) {
		return
	}

	if len(r.entries) < cap(r.entries) {
		r.entries = append(r.entries, plate)
		r.index[plate] = struct{}{}
		return
	}

	delete(r.index, r.entries[r.head])
	r.entries[r.head] = plate
	r.index[plate] = struct{}{}
	r.head = (r.head + 1) % len(r.entries)
}
