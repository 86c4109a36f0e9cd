package sampling

import (
	"math/rand/v2"
	"time"
)

// Reservoir keeps a uniform random sample of fixed capacity from a stream of
// unknown length (Vitter's algorithm R). Every item offered so far has the
// same probability of being held, regardless of its position in the stream.
type Reservoir[T any] struct {
	items []T
	size  int64
	seen  int64
	rng   *rand.Rand
}

// NewReservoir creates a reservoir holding at most size items. A zero seed
// picks a time-based one.
func NewReservoir[T any](size int64, seed uint64) *Reservoir[T] {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	capHint := size
	if capHint > 1<<16 {
		capHint = 1 << 16
	}
	return &Reservoir[T]{
		items: make([]T, 0, capHint),
		size:  size,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Offer presents one item from the stream.
func (r *Reservoir[T]) Offer(item T) {
	r.seen++
	if int64(len(r.items)) < r.size {
		r.items = append(r.items, item)
		return
	}
	if j := r.rng.Int64N(r.seen); j < r.size {
		r.items[j] = item
	}
}

// Items returns the current sample. The slice is owned by the reservoir.
func (r *Reservoir[T]) Items() []T {
	return r.items
}

// Len returns the number of items held.
func (r *Reservoir[T]) Len() int64 {
	return int64(len(r.items))
}

// Seen returns the number of items offered.
func (r *Reservoir[T]) Seen() int64 {
	return r.seen
}
