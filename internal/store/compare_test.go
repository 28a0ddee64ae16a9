package store

import "testing"

func TestEqualAcrossIntAndFloatRepresentations(t *testing.T) {
	// Object.Compare may hand back a plain int64; the same value decoded
	// from JSON without UseNumber comes back as a float64. Equal must
	// treat these as the same observed state.
	a := []any{int64(12345), "x"}
	b := []any{float64(12345), "x"}
	if !Equal(a, b) {
		t.Fatal("expected int64 and float64 representations of the same number to compare equal")
	}
}

func TestEqualDetectsRealDifference(t *testing.T) {
	a := []any{int64(1), "x"}
	b := []any{int64(2), "x"}
	if Equal(a, b) {
		t.Fatal("expected differing tokens to compare unequal")
	}
}

func TestEqualBothNil(t *testing.T) {
	if !Equal(nil, nil) {
		t.Fatal("two nil compare-sequences should be equal")
	}
}

func TestEqualNilVersusEmptyAreDistinct(t *testing.T) {
	// nil (never recorded) and []any{} (recorded as an empty sequence) are
	// different observed states -- only the nil/nil case short-circuits.
	if Equal(nil, []any{}) {
		t.Fatal("nil and an explicit empty compare-sequence should not compare equal")
	}
}
