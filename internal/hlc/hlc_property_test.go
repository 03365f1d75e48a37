package hlc

import (
	"math/rand"
	"testing"
)

const propertyIterations = 2000

// randomTimestamp draws timestamps clustered around a few physical values so
// that equal physical parts, and the logical tie-break, come up often.
func randomTimestamp(r *rand.Rand) Timestamp {
	base := []uint64{0, 1, wallTime, wallTime + 1, MaxPhysical}
	physical := base[r.Intn(len(base))]
	if r.Intn(4) == 0 {
		physical = uint64(r.Int63n(MaxPhysical + 1))
	}
	logical := uint64(r.Intn(4))
	if r.Intn(3) == 0 {
		logical = uint64(r.Intn(MaxLogical + 1))
	}
	return MustPack(physical, logical)
}

// TestProperty_PackRoundTrip tests that Physical and Logical invert Pack
func TestProperty_PackRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < propertyIterations; i++ {
		physical := uint64(r.Int63n(MaxPhysical + 1))
		logical := uint64(r.Intn(MaxLogical + 1))
		ts, err := Pack(physical, logical)
		if err != nil {
			t.Fatalf("Pack(%d, %d) failed: %v", physical, logical, err)
		}
		if ts.Physical() != physical || ts.Logical() != logical {
			t.Fatalf("round trip (%d, %d) -> (%d, %d)", physical, logical, ts.Physical(), ts.Logical())
		}
		parsed, err := ParseTimestamp(ts.String())
		if err != nil || parsed != ts {
			t.Fatalf("ParseTimestamp(%q) = %v, %v", ts.String(), parsed, err)
		}
	}
}

// TestProperty_CompareMatchesPackedOrder tests that Compare agrees with uint64 ordering
func TestProperty_CompareMatchesPackedOrder(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < propertyIterations; i++ {
		a, b := randomTimestamp(r), randomTimestamp(r)
		var want int
		switch {
		case uint64(a) < uint64(b):
			want = -1
		case uint64(a) > uint64(b):
			want = 1
		}
		if got := a.Compare(b); got != want {
			t.Fatalf("%s.Compare(%s) = %d, want %d", a, b, got, want)
		}
	}
}

// TestProperty_TotalOrder tests trichotomy and transitivity
func TestProperty_TotalOrder(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < propertyIterations; i++ {
		a, b, c := randomTimestamp(r), randomTimestamp(r), randomTimestamp(r)

		holds := 0
		if a.Less(b) {
			holds++
		}
		if a == b {
			holds++
		}
		if b.Less(a) {
			holds++
		}
		if holds != 1 {
			t.Fatalf("trichotomy violated for %s, %s", a, b)
		}

		if a.Less(b) && b.Less(c) && !a.Less(c) {
			t.Fatalf("transitivity violated: %s < %s < %s", a, b, c)
		}
	}
}

// TestProperty_SamePhysicalOrdering tests pack(T,0) < pack(T,1) < pack(T+1,0)
func TestProperty_SamePhysicalOrdering(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	for i := 0; i < propertyIterations; i++ {
		T := uint64(r.Int63n(MaxPhysical))
		a, b, c := MustPack(T, 0), MustPack(T, 1), MustPack(T+1, 0)
		if !a.Less(b) || !b.Less(c) {
			t.Fatalf("ordering violated at T=%d", T)
		}
	}
}

// TestProperty_AdvanceMonotonic tests that Advance is strictly increasing for any wall reading
func TestProperty_AdvanceMonotonic(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for i := 0; i < propertyIterations; i++ {
		ts := randomTimestamp(r)
		if ts.Logical() == MaxLogical {
			continue
		}
		c := FromTimestamp(ts)
		now := randomTimestamp(r).Physical()

		next, err := c.Advance(now)
		if err != nil {
			t.Fatalf("Advance(%d) from %s failed: %v", now, ts, err)
		}
		if !ts.Less(next.Timestamp()) {
			t.Fatalf("Advance(%d) from %s gave %s", now, ts, next.Timestamp())
		}
		if now > ts.Physical() && next.Timestamp() != MustPack(now, 0) {
			t.Fatalf("physical jump: Advance(%d) from %s gave %s", now, ts, next.Timestamp())
		}
	}
}

// TestProperty_UpdateFollowsBoth tests that a successful merge orders after both inputs
func TestProperty_UpdateFollowsBoth(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	for i := 0; i < propertyIterations; i++ {
		local, remote := randomTimestamp(r), randomTimestamp(r)
		now := randomTimestamp(r).Physical()

		got, err := FromTimestamp(local).Update(remote, now)
		if err != nil {
			continue
		}
		if !local.Less(got.Timestamp()) || !remote.Less(got.Timestamp()) {
			t.Fatalf("Update(%s, %d) from %s gave %s", remote, now, local, got.Timestamp())
		}
	}
}

// TestProperty_UpdateDominance tests the merge result when the wall clock has not passed both sides
func TestProperty_UpdateDominance(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < propertyIterations; i++ {
		local, remote := randomTimestamp(r), randomTimestamp(r)
		now := randomTimestamp(r).Physical()
		if now > local.Physical() && now > remote.Physical() {
			continue
		}

		got, err := FromTimestamp(local).Update(remote, now)
		switch {
		case local == remote:
			if err == nil {
				t.Fatalf("collision %s merged into %s", local, got.Timestamp())
			}
		case remote.Logical() == MaxLogical && local.Less(remote), local.Logical() == MaxLogical && remote.Less(local):
			if err == nil {
				t.Fatalf("expected overflow merging %s into %s", remote, local)
			}
		case local.Less(remote):
			if want := MustPack(remote.Physical(), remote.Logical()+1); err != nil || got.Timestamp() != want {
				t.Fatalf("Update(%s) from %s = %v, %v; want %s", remote, local, got.Timestamp(), err, want)
			}
		default:
			if want := MustPack(local.Physical(), local.Logical()+1); err != nil || got.Timestamp() != want {
				t.Fatalf("Update(%s) from %s = %v, %v; want %s", remote, local, got.Timestamp(), err, want)
			}
		}
	}
}
