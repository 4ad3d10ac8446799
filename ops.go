// Copyright (c) 2015, RetailNext, Inc.
// All rights reserved.

package hllpp

// The four set operations below are inclusion-exclusion identities over
// Estimate and Merge. None of them add one counter's elements to the
// other: a is copied before merging. Both inputs may still have their
// buffered Add calls flushed, which can promote a sparse counter to dense.

// Union estimates the cardinality of the union of a and b.
func Union(a, b *Counter) (float64, error) {
	merged, err := Merge(a, b, false)
	if err != nil {
		return 0, err
	}
	return merged.Estimate(), nil
}

// Intersection estimates |a ∩ b| via |a| + |b| - |a ∪ b|. Like real
// inclusion-exclusion over estimates rather than exact sets, the result
// can come out slightly negative for near-disjoint counters; callers
// that need a non-negative answer should clamp it themselves.
func Intersection(a, b *Counter) (float64, error) {
	u, err := Union(a, b)
	if err != nil {
		return 0, err
	}
	return a.Estimate() + b.Estimate() - u, nil
}

// Complement estimates the elements observed in a but not in b
// (|a ∪ b| - |b|).
func Complement(a, b *Counter) (float64, error) {
	u, err := Union(a, b)
	if err != nil {
		return 0, err
	}
	return u - b.Estimate(), nil
}

// SymmetricDifference estimates the elements observed in exactly one of
// a or b (2|a ∪ b| - |a| - |b|).
func SymmetricDifference(a, b *Counter) (float64, error) {
	u, err := Union(a, b)
	if err != nil {
		return 0, err
	}
	return 2*u - a.Estimate() - b.Estimate(), nil
}
