// Package clock provides the node-wide hybrid logical clock. It holds a
// single hlc.Clock in an atomic slot and applies the pure hlc transitions
// with a compare-and-swap loop, so concurrent callers never lose an update
// and every timestamp handed out is unique to this node.
package clock
