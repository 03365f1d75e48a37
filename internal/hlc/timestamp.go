package hlc

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// PhysicalBits is the width of the physical (millisecond) component.
	PhysicalBits = 46
	// LogicalBits is the width of the logical counter.
	LogicalBits = 16

	// MaxPhysical is the largest representable physical time in milliseconds.
	MaxPhysical = 1<<PhysicalBits - 1
	// MaxLogical is the largest representable logical counter.
	MaxLogical = 1<<LogicalBits - 1

	reservedMask = ^uint64(MaxPhysical<<LogicalBits | MaxLogical)
)

// Timestamp is a packed HLC value: 2 reserved bits, 46 bits of physical time
// and 16 bits of logical counter, from most to least significant.
type Timestamp uint64

// Pack builds a Timestamp. Components outside their bit width are rejected,
// never truncated.
func Pack(physical, logical uint64) (Timestamp, error) {
	if physical > MaxPhysical {
		return 0, fmt.Errorf("%w: physical %d exceeds %d bits", ErrOutOfRange, physical, PhysicalBits)
	}
	if logical > MaxLogical {
		return 0, fmt.Errorf("%w: logical %d exceeds %d bits", ErrOutOfRange, logical, LogicalBits)
	}
	return Timestamp(physical<<LogicalBits | logical), nil
}

// MustPack is like Pack but panics on out-of-range input.
func MustPack(physical, logical uint64) Timestamp {
	ts, err := Pack(physical, logical)
	if err != nil {
		panic(err)
	}
	return ts
}

// Unpack validates a packed value received from the wire.
func Unpack(v uint64) (Timestamp, error) {
	if v&reservedMask != 0 {
		return 0, fmt.Errorf("%w: reserved bits set in %#x", ErrOutOfRange, v)
	}
	return Timestamp(v), nil
}

// Physical returns the physical component in milliseconds.
func (t Timestamp) Physical() uint64 {
	return uint64(t) >> LogicalBits
}

// Logical returns the logical counter.
func (t Timestamp) Logical() uint64 {
	return uint64(t) & MaxLogical
}

// Compare returns -1, 0 or +1 depending on whether t is before, equal to or
// after o. Physical time is compared first, the logical counter breaks ties.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.Physical() < o.Physical():
		return -1
	case t.Physical() > o.Physical():
		return 1
	case t.Logical() < o.Logical():
		return -1
	case t.Logical() > o.Logical():
		return 1
	}
	return 0
}

// Less reports whether t is ordered before o.
func (t Timestamp) Less(o Timestamp) bool {
	return t.Compare(o) < 0
}

// IsZero reports whether t is the zero timestamp.
func (t Timestamp) IsZero() bool {
	return t == 0
}

// Time returns the physical component as a UTC time.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t.Physical())).UTC()
}

// Max returns the later of a and b.
func Max(a, b Timestamp) Timestamp {
	if a.Less(b) {
		return b
	}
	return a
}

// String renders the timestamp as "physical.logical" with a zero padded
// logical part, e.g. "1679924536986.00001".
func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%05d", t.Physical(), t.Logical())
}

// ParseTimestamp parses the output of Timestamp.String.
func ParseTimestamp(s string) (Timestamp, error) {
	phys, logi, ok := strings.Cut(s, ".")
	if !ok {
		return 0, fmt.Errorf("hlc: malformed timestamp %q", s)
	}
	physical, err := strconv.ParseUint(phys, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse physical %q: %w", phys, err)
	}
	logical, err := strconv.ParseUint(logi, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse logical %q: %w", logi, err)
	}
	return Pack(physical, logical)
}

// MarshalBinary encodes t as 8 big-endian bytes.
func (t Timestamp) MarshalBinary() ([]byte, error) {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), uint64(t)), nil
}

// UnmarshalBinary decodes the output of MarshalBinary.
func (t *Timestamp) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("%w: want 8 bytes, got %d", ErrOutOfRange, len(data))
	}
	v, err := Unpack(binary.BigEndian.Uint64(data))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Timestamp) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Timestamp) UnmarshalText(text []byte) error {
	v, err := ParseTimestamp(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
