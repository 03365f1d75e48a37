// Package quorum fans a replicated write or read out to a set of replicas
// and reports whether enough of them answered.
package quorum
