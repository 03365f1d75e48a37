package hlc

import "fmt"

// Clock holds a node's current HLC timestamp. It is an immutable value: the
// transition methods return a new Clock and callers replace their copy with
// the result. Sharing one Clock between goroutines requires external
// synchronization around each transition.
type Clock struct {
	ts Timestamp
}

// New creates a clock from an initial wall-clock reading with a zero logical
// counter.
func New(now uint64) (Clock, error) {
	ts, err := Pack(now, 0)
	if err != nil {
		return Clock{}, err
	}
	return Clock{ts: ts}, nil
}

// FromTimestamp wraps an existing timestamp, e.g. one restored from disk.
// ts is not checked: it must come from Pack, Unpack or another Clock. Use
// Unpack to validate a raw value first.
func FromTimestamp(ts Timestamp) Clock {
	return Clock{ts: ts}
}

// Timestamp returns the clock's current timestamp.
func (c Clock) Timestamp() Timestamp {
	return c.ts
}

// Current resynchronizes the clock with the wall clock. If now is past the
// stored physical time the clock jumps to (now, 0), otherwise it is returned
// unchanged. The logical counter is never advanced.
func (c Clock) Current(now uint64) (Clock, error) {
	if now > c.ts.Physical() {
		return New(now)
	}
	return c, nil
}

// Advance records a local or send event. The result is strictly greater than
// c: either (now, 0) when the wall clock has moved past the stored physical
// time, or the stored physical time with the logical counter bumped.
func (c Clock) Advance(now uint64) (Clock, error) {
	if now > c.ts.Physical() {
		return New(now)
	}
	return bump(c.ts)
}

// Update merges a timestamp received from another node. The result is
// ordered after both c and remote:
//
//   - if now is past both physical times, the result is (now, 0);
//   - if remote is ahead of c, remote's logical counter is bumped;
//   - if c is ahead of remote, c's logical counter is bumped.
//
// Identical timestamps cannot be ordered and yield ErrAmbiguousMerge.
func (c Clock) Update(remote Timestamp, now uint64) (Clock, error) {
	if now > c.ts.Physical() && now > remote.Physical() {
		return New(now)
	}
	switch remote.Compare(c.ts) {
	case 1:
		return bump(remote)
	case -1:
		return bump(c.ts)
	}
	return resolveCollision(c.ts, remote)
}

// bump returns a clock at from's physical time with the logical counter
// incremented.
func bump(from Timestamp) (Clock, error) {
	if from.Logical() == MaxLogical {
		return Clock{}, fmt.Errorf("%w: at %s", ErrLogicalOverflow, from)
	}
	ts, err := Pack(from.Physical(), from.Logical()+1)
	if err != nil {
		return Clock{}, err
	}
	return Clock{ts: ts}, nil
}

// resolveCollision handles a remote timestamp equal to the local one. Without
// a node identity there is nothing to break the tie with.
func resolveCollision(local, remote Timestamp) (Clock, error) {
	return Clock{}, fmt.Errorf("%w: local %s, remote %s", ErrAmbiguousMerge, local, remote)
}

// String returns a human readable representation of the clock.
func (c Clock) String() string {
	return fmt.Sprintf("Clock{timestamp=%s, physical=%d, logical=%d}", c.ts, c.ts.Physical(), c.ts.Logical())
}
