package slices

import (
	"fmt"
	"sync"

	"github.com/microsoft/chromedap/pkg/syncmap"
)

// MapFunc is any mapping function shape accepted by Map and MapConcurrent:
// with or without the element index, taking the element by value or by pointer.
type MapFunc[T any, R any] interface {
	~func(int, T) R | ~func(T) R | ~func(int, *T) R | ~func(*T) R
}

// applyMap invokes a mapping function of whichever shape MapFunc admits.
// The element pointer refers to a copy, so the mapping cannot alter the input.
func applyMap[T any, R any, MF MapFunc[T, R]](mapping MF, i int, s *T) R {
	switch tf := (any)(mapping).(type) {
	case func(int, T) R:
		return tf(i, *s)
	case func(T) R:
		return tf(*s)
	case func(int, *T) R:
		return tf(i, s)
	case func(*T) R:
		return tf(s)
	default:
		panic(fmt.Sprintf("unsupported mapping function type %T", mapping))
	}
}

func Map[T any, R any, MF MapFunc[T, R], S ~[]T](ss S, mapping MF) []R {
	if len(ss) == 0 {
		return nil
	}

	res := make([]R, len(ss))
	for i := range ss {
		s := ss[i]
		res[i] = applyMap[T, R](mapping, i, &s)
	}
	return res
}

// MaxConcurrency runs every mapping call on its own goroutine.
const MaxConcurrency = uint16(0)

// MapConcurrent calls the mapping function concurrently, up to the given
// concurrency level. Results keep the order of the inputs.
func MapConcurrent[T any, R any, MF MapFunc[T, R], S ~[]T](ss S, mapping MF, concurrency uint16) []R {
	if len(ss) == 0 {
		return nil
	}

	sem := make(chan struct{}, concurrencyLimit(concurrency, len(ss)))

	var res syncmap.Map[int, R]
	var wg sync.WaitGroup
	wg.Add(len(ss))
	for i := range ss {
		sem <- struct{}{} // Blocks when the concurrency level is reached (semaphore semantics).
		go func(i int, s T) {
			defer func() {
				<-sem
				wg.Done()
			}()
			res.Store(i, applyMap[T, R](mapping, i, &s))
		}(i, ss[i])
	}
	wg.Wait()

	retval := make([]R, len(ss))
	res.Range(func(i int, r R) bool {
		retval[i] = r
		return true
	})
	return retval
}

func concurrencyLimit(concurrency uint16, n int) int {
	if concurrency == 0 || int(concurrency) > n {
		return n
	}
	return int(concurrency)
}

// SelectFunc is any predicate shape accepted by the filtering functions.
type SelectFunc[T any] interface {
	~func(int, T) bool | ~func(T) bool | ~func(int, *T) bool | ~func(*T) bool
}

func accepts[T any, SF SelectFunc[T]](selector SF, i int, s *T) bool {
	switch tsf := (any)(selector).(type) {
	case func(int, T) bool:
		return tsf(i, *s)
	case func(T) bool:
		return tsf(*s)
	case func(int, *T) bool:
		return tsf(i, s)
	case func(*T) bool:
		return tsf(s)
	default:
		panic(fmt.Sprintf("unsupported selector function type %T", selector))
	}
}

// Select returns the elements the selector accepts, keeping their order.
func Select[T any, SF SelectFunc[T], S ~[]T](ss S, selector SF) S {
	return AccumulateIf[T, S](ss, selector, func(acc S, el T) S {
		return append(acc, el)
	})
}

// IndexFunc returns the index of the first element matching the selector, or
// -1 when nothing matches. Named after the standard library slices.IndexFunc.
func IndexFunc[T any, SF SelectFunc[T], S ~[]T](ss S, selector SF) int {
	for i := range ss {
		s := ss[i]
		if accepts(selector, i, &s) {
			return i
		}
	}
	return -1
}

func Any[T any, SF SelectFunc[T], S ~[]T](ss S, selector SF) bool {
	return IndexFunc(ss, selector) != -1
}

type AccumulatorFunc[T any, R any] interface {
	~func(R, T) R | ~func(R, *T) R
}

// AccumulateIf folds the elements matching the selector into a single value,
// starting from the zero value of the result type.
func AccumulateIf[T any, R any, SF SelectFunc[T], AF AccumulatorFunc[T, R], S ~[]T](ss S, selector SF, accumulator AF) R {
	accumulate := func(current R, el *T) R {
		switch taf := (any)(accumulator).(type) {
		case func(R, T) R:
			return taf(current, *el)
		case func(R, *T) R:
			return taf(current, el)
		default:
			panic(fmt.Sprintf("unsupported accumulator function type %T", accumulator))
		}
	}

	var res R
	for i := range ss {
		s := ss[i]
		if accepts(selector, i, &s) {
			res = accumulate(res, &s)
		}
	}
	return res
}
