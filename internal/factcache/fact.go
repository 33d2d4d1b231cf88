// Package factcache memoizes small derived facts until they are explicitly
// invalidated.
//
// Concurrent first callers for the same key share one computation: the first
// caller computes and the others wait for its result. A computation that was
// started before an invalidation never populates the cache.
package factcache

// Fact is an explicit optional value. A present zero value (an empty string,
// false) is distinct from an absent one.
type Fact[V any] struct {
	value   V
	present bool
}

// Present wraps v as a known fact.
func Present[V any](v V) Fact[V] {
	return Fact[V]{value: v, present: true}
}

// Absent returns a fact that has not been computed.
func Absent[V any]() Fact[V] {
	return Fact[V]{}
}

// Get returns the value and whether it is present.
func (f Fact[V]) Get() (V, bool) {
	return f.value, f.present
}

// IsPresent reports whether the fact holds a value.
func (f Fact[V]) IsPresent() bool {
	return f.present
}

// OrElse returns the value when present, def otherwise.
func (f Fact[V]) OrElse(def V) V {
	if f.present {
		return f.value
	}
	return def
}
