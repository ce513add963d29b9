package registry

import (
	"cmp"
	"slices"

	"github.com/alphadose/haxmap"
)

// Registry is a concurrent map from string-like keys to values.
type Registry[K ~string, T any] interface {
	Get(key K) (T, bool)
	Add(key K, value T)
	GetOrAdd(key K, value func() T) (T, bool)
	Del(key K)
	Keys() []K
	Len() int
}

type registry[K ~string, T any] struct {
	values *haxmap.Map[K, T]
}

func New[K ~string, T any]() Registry[K, T] {
	return &registry[K, T]{
		values: haxmap.New[K, T](),
	}
}

func (r *registry[K, T]) Get(key K) (T, bool) {
	return r.values.Get(key)
}

func (r *registry[K, T]) Add(key K, value T) {
	r.values.Set(key, value)
}

func (r *registry[K, T]) GetOrAdd(key K, valueFn func() T) (T, bool) {
	return r.values.GetOrCompute(key, valueFn)
}

func (r *registry[K, T]) Del(key K) {
	r.values.Del(key)
}

// Keys returns the registered keys in sorted order.
func (r *registry[K, T]) Keys() []K {
	keys := make([]K, 0, r.values.Len())
	r.values.ForEach(func(k K, _ T) bool {
		keys = append(keys, k)
		return true
	})
	slices.SortFunc(keys, func(a, b K) int { return cmp.Compare(a, b) })
	return keys
}

func (r *registry[K, T]) Len() int {
	return int(r.values.Len())
}
