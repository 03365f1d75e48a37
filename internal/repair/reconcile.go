package repair

import (
	"bytes"
	"fmt"

	"hlclock/internal/hlc"
)

// VersionedValue represents a value with its timestamp version.
// This is used for reconciliation and is compatible with storage.VersionedValue.
type VersionedValue struct {
	Value   []byte
	Version hlc.Timestamp
	Deleted bool
}

func (v VersionedValue) samePayload(o VersionedValue) bool {
	return v.Deleted == o.Deleted && bytes.Equal(v.Value, o.Value)
}

// ReconcileResult represents the result of reconciling multiple versions.
type ReconcileResult struct {
	// Winners holds the distinct payloads carrying the greatest version.
	// More than one winner means two writes collided on the same timestamp.
	Winners []VersionedValue

	// Stale maps replica identifier to the older version it returned.
	Stale map[string]VersionedValue
}

// Reconcile picks the newest version from the given list.
// replicaIDs should correspond 1:1 with values (for tracking which replica returned which version).
func Reconcile(values []VersionedValue, replicaIDs []string) ReconcileResult {
	result := ReconcileResult{
		Winners: []VersionedValue{},
		Stale:   make(map[string]VersionedValue),
	}
	if len(values) == 0 {
		return result
	}

	if len(replicaIDs) != len(values) {
		// If replica IDs don't match, create placeholder IDs
		replicaIDs = make([]string, len(values))
		for i := range replicaIDs {
			replicaIDs[i] = fmt.Sprintf("replica-%d", i)
		}
	}

	var newest hlc.Timestamp
	for _, v := range values {
		newest = hlc.Max(newest, v.Version)
	}

	for i, v := range values {
		if v.Version.Less(newest) {
			result.Stale[replicaIDs[i]] = v
			continue
		}

		isDuplicate := false
		for _, winner := range result.Winners {
			if v.samePayload(winner) {
				isDuplicate = true
				break
			}
		}
		if !isDuplicate {
			result.Winners = append(result.Winners, v)
		}
	}

	return result
}

// HasConflict returns true if different payloads share the newest version.
func (r *ReconcileResult) HasConflict() bool {
	return len(r.Winners) > 1
}

// IsResolved returns true if there's exactly one winner (no conflict).
func (r *ReconcileResult) IsResolved() bool {
	return len(r.Winners) == 1
}

// IsNotFound returns true if no replica returned a version.
func (r *ReconcileResult) IsNotFound() bool {
	return len(r.Winners) == 0
}
