// Package gossip keeps a node's clock close to its peers. On every round the
// node records a send event, exchanges the resulting timestamp with each
// peer and merges the peer's answer, so clocks converge even when no
// application traffic flows between nodes.
//
// Limitations:
// - Static peer list, no discovery
// - A peer is only marked Suspect, never removed
package gossip
