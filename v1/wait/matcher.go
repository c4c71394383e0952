package wait

import "reflect"

// Matcher decides whether a sampled value ends the wait.
type Matcher[T any] interface {
	Match(v T) bool
}

// MatcherFunc adapts a predicate to Matcher.
type MatcherFunc[T any] func(v T) bool

// Match implements Matcher.
func (f MatcherFunc[T]) Match(v T) bool {
	return f(v)
}

type equal[T comparable] struct {
	want T
}

func (e equal[T]) Match(v T) bool {
	return v == e.want
}

// Equal matches values equal to want. When T is an interface type, the
// dynamic values must be comparable; a wait whose matcher panics fails at
// once with a *errors.PanicError.
func Equal[T comparable](want T) Matcher[T] {
	return equal[T]{want: want}
}

type truthy[T any] struct{}

func (truthy[T]) Match(v T) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return !rv.IsNil()
	}
	return true
}

// Truthy matches every value except nil and false. Zero numbers and empty
// strings match. It is the matcher used by For and Until.
func Truthy[T any]() Matcher[T] {
	return truthy[T]{}
}
