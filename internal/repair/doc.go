// Package repair reconciles the versions returned by several replicas of a
// key. The version with the greatest hybrid logical timestamp wins, older
// replicas are marked stale and can be repaired asynchronously.
package repair
