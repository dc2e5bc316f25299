package maps

import (
	"fmt"
)

// SelectFunc is any predicate shape accepted by Select: key-only, or key and
// value.
type SelectFunc[K comparable, V any] interface {
	~func(K) bool | ~func(K, V) bool
}

// Select returns a new map holding the entries the selector accepts.
func Select[K comparable, V any, SF SelectFunc[K, V], MM ~map[K]V](m MM, selector SF) MM {
	accepts := func(k K, v V) bool {
		switch tf := (any)(selector).(type) {
		case func(K) bool:
			return tf(k)
		case func(K, V) bool:
			return tf(k, v)
		default:
			panic(fmt.Sprintf("unsupported selector function type %T", selector))
		}
	}

	res := make(MM, len(m))
	for k, v := range m {
		if accepts(k, v) {
			res[k] = v
		}
	}
	return res
}

// Keys returns the keys of the map in unspecified order, nil for an empty map.
func Keys[K comparable, V any, M ~map[K]V](m M) []K {
	if len(m) == 0 {
		return nil
	}

	res := make([]K, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	return res
}
