package store

import "encoding/json"

// Equal reports whether two compare-sequences represent the same observed
// state. Comparison is done via JSON round-trip rather than reflect.DeepEqual
// because one side may have come straight from Object.Compare (ints, int64s)
// while the other was decoded from JSON (json.Number from Lookup, float64
// from a plain decode) -- marshaling both sides first normalizes the
// representation.
func Equal(a, b []any) bool {
	if a == nil && b == nil {
		return true
	}
	encodedA, err := json.Marshal(a)
	if err != nil {
		return false
	}
	encodedB, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(encodedA) == string(encodedB)
}
