package cmn

import "sync"

// Weak breaks cyclic back-references (segment<->holder, shard<->collection,
// spec.md §9) the way a weak pointer would in a language that has them: the
// owner holds the strong *T, observers hold a Weak[T] and Upgrade() it on
// use. Go has no native weak pointers usable across GC cycles here, so this
// is a liveness-flag wrapper instead: once the owner calls Drop, every
// observer's Upgrade fails with ServiceError instead of observing a freed
// or half-torn-down value.
type Weak[T any] struct {
	mu    sync.RWMutex
	value *T
	live  bool
}

func NewWeak[T any](v *T) *Weak[T] {
	return &Weak[T]{value: v, live: true}
}

// Upgrade returns the strong reference, or ServiceError if the owner has
// dropped it.
func (w *Weak[T]) Upgrade() (*T, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.live {
		return nil, NewServiceError(nil, "weak reference upgrade failed: owner dropped")
	}
	return w.value, nil
}

// Drop is called exactly once by the owner when the referent is torn down.
func (w *Weak[T]) Drop() {
	w.mu.Lock()
	w.live = false
	w.value = nil
	w.mu.Unlock()
}
