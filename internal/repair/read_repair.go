package repair

import (
	"context"
	"fmt"
	"time"

	"hlclock/internal/logging"
)

// Replicator writes a version to the replica at addr without restamping it.
type Replicator interface {
	Replicate(ctx context.Context, addr, key string, vv VersionedValue) error
}

// ReadRepairer performs asynchronous read repair to converge stale replicas.
type ReadRepairer struct {
	replicator Replicator
	timeout    time.Duration
	logger     logging.Logger
}

// NewReadRepairer creates a new read repairer.
func NewReadRepairer(replicator Replicator, timeout time.Duration, logger logging.Logger) *ReadRepairer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ReadRepairer{
		replicator: replicator,
		timeout:    timeout,
		logger:     logger,
	}
}

// Repair asynchronously writes the winning version to stale replicas.
// This is fire-and-forget: it logs errors but does not block or retry.
// The returned channel is closed when the repair has finished.
func (r *ReadRepairer) Repair(key string, result ReconcileResult, replicaIDToAddr map[string]string) <-chan struct{} {
	done := make(chan struct{})
	if len(result.Stale) == 0 {
		close(done)
		return done
	}
	if !result.IsResolved() {
		r.logger.Warningf("read repair skipped for key=%s: %d colliding winners", key, len(result.Winners))
		close(done)
		return done
	}
	winner := result.Winners[0]

	go func() {
		defer close(done)
		defer func() {
			if err := recover(); err != nil {
				r.logger.Errorf("read repair panic for key %s: %v", key, err)
			}
		}()

		// Use detached context with timeout
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		r.logger.Debugf("read repair triggered for key=%s: %d stale replicas, winner %s", key, len(result.Stale), winner.Version)

		repairCount := 0
		failureCount := 0
		for replicaID := range result.Stale {
			addr, exists := replicaIDToAddr[replicaID]
			if !exists {
				r.logger.Debugf("read repair: skipping replica %s (no address)", replicaID)
				continue
			}

			if err := r.replicator.Replicate(ctx, addr, key, winner); err != nil {
				r.logger.Warningf("read repair failed for replica %s (key=%s): %v", replicaID, key, fmt.Errorf("replicate: %w", err))
				failureCount++
			} else {
				repairCount++
			}
		}

		r.logger.Debugf("read repair completed for key=%s: %d repaired, %d failed", key, repairCount, failureCount)
	}()
	return done
}
