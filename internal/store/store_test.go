package store

import (
	"context"
	"testing"
)

func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewMemoryBackend(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestLookupMissingKey(t *testing.T) {
	b := newTestBackend(t)
	_, ok, err := b.Lookup(context.Background(), "file:///never/saved")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false for a key never saved")
	}
}

func TestSaveThenLookupRoundTrips(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	keys := []string{"file:///a", "file:///b"}
	compares := [][]any{{int64(1), int64(100)}, {"literal-value"}}
	if err := b.Save(ctx, keys, compares); err != nil {
		t.Fatal(err)
	}

	got, ok, err := b.Lookup(ctx, "file:///a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a record for file:///a after Save")
	}
	if !Equal(compares[0], got) {
		t.Fatalf("round-tripped compare-sequence %v does not match saved %v", got, compares[0])
	}
}

func TestSaveThenLookupRoundTripsLargeNanosecondTimestampExactly(t *testing.T) {
	// A real file mtime is a nanosecond int64 (~1.8e18), far past float64's
	// 2^53 exact-integer range. Lookup must decode it back to the identical
	// literal digits, or an unchanged file's freshly computed mtime will
	// never Equal its own recorded fingerprint.
	b := newTestBackend(t)
	ctx := context.Background()

	mtime := int64(1732999999123456789)
	compare := []any{mtime, int64(123)}
	if err := b.Save(ctx, []string{"file:///a"}, [][]any{compare}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := b.Lookup(ctx, "file:///a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a record for file:///a after Save")
	}
	if !Equal(compare, got) {
		t.Fatalf("round-tripped large int64 %v does not match saved %v", got, compare)
	}
}

func TestSaveOverwritesPriorValue(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Save(ctx, []string{"k"}, [][]any{{"v1"}}); err != nil {
		t.Fatal(err)
	}
	if err := b.Save(ctx, []string{"k"}, [][]any{{"v2"}}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := b.Lookup(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a record")
	}
	if !Equal(got, []any{"v2"}) {
		t.Fatalf("expected the second Save to overwrite the first, got %v", got)
	}
}

func TestSaveMismatchedLengthsErrors(t *testing.T) {
	b := newTestBackend(t)
	err := b.Save(context.Background(), []string{"a", "b"}, [][]any{{"only-one"}})
	if err == nil {
		t.Fatal("expected an error when keys and compares have different lengths")
	}
}

func TestSaveEmptyIsNoop(t *testing.T) {
	b := newTestBackend(t)
	if err := b.Save(context.Background(), nil, nil); err != nil {
		t.Fatalf("expected Save with no keys to be a no-op, got %v", err)
	}
}
