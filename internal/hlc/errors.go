package hlc

import "errors"

var (
	// ErrOutOfRange is returned when a physical or logical component does not
	// fit its bit width, or a packed value has reserved bits set.
	ErrOutOfRange = errors.New("hlc: value out of range")

	// ErrLogicalOverflow is returned when a transition would push the logical
	// counter past MaxLogical within a single millisecond. The clock is left
	// unchanged; the caller may retry once the wall clock has moved on.
	ErrLogicalOverflow = errors.New("hlc: logical counter overflow")

	// ErrAmbiguousMerge is returned when a remote timestamp is identical to
	// the local one and the two cannot be ordered.
	ErrAmbiguousMerge = errors.New("hlc: ambiguous merge of identical timestamps")
)
