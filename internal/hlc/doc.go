// Package hlc implements a hybrid logical clock. A timestamp packs a 46-bit
// millisecond wall-clock reading and a 16-bit logical counter into a single
// uint64 so that integer order equals causal order. Clock values are
// immutable; every transition returns a new Clock.
package hlc
