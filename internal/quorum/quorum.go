package quorum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"hlclock/internal/repair"
)

const (
	// DefaultPerReplicaTimeout is the default timeout for each replica RPC.
	DefaultPerReplicaTimeout = 2 * time.Second
)

// ErrQuorumNotMet is returned when fewer replicas than required answered.
var ErrQuorumNotMet = errors.New("quorum not met")

// WriteResult represents the result of a quorum write operation. Err lists
// the replicas that failed; when Success is false it wraps ErrQuorumNotMet.
type WriteResult struct {
	Success  bool
	Acks     int
	Required int
	Replicas int
	Err      error
}

// ReadResult represents the result of a quorum read operation. Err follows
// the same rules as WriteResult.Err.
type ReadResult struct {
	Success   bool
	Responses int
	Required  int
	Replicas  int
	Values    []ReadValue
	Err       error
}

// ReadValue is one replica's answer. Found is false if the replica has no
// entry for the key.
type ReadValue struct {
	ReplicaID string
	Value     repair.VersionedValue
	Found     bool
}

// ReplicaWriteFunc performs a write to a single replica.
type ReplicaWriteFunc func(ctx context.Context, replicaID string) error

// ReplicaReadFunc performs a read from a single replica.
type ReplicaReadFunc func(ctx context.Context, replicaID string) (repair.VersionedValue, bool, error)

// DoWrite fans out to all replicas in parallel and succeeds when at least
// requiredW of them acknowledged. A non-positive requiredW means a majority.
// It returns as soon as the outcome is known; writes still in flight carry on
// in the background until DefaultPerReplicaTimeout.
func DoWrite(ctx context.Context, replicas []string, requiredW int, writeFn ReplicaWriteFunc) WriteResult {
	requiredW, err := required(replicas, requiredW, "W")
	if err != nil {
		return WriteResult{Required: requiredW, Replicas: len(replicas), Err: err}
	}

	acks, errs := fanOut(ctx, replicas, requiredW, len(replicas)-requiredW, func(ctx context.Context, id string) error {
		return writeFn(ctx, id)
	})

	result := WriteResult{
		Acks:     acks,
		Required: requiredW,
		Replicas: len(replicas),
	}
	if acks >= requiredW {
		result.Success = true
		result.Err = errs
		return result
	}
	result.Err = notMet("acks", acks, requiredW, len(replicas), errs)
	return result
}

// DoRead fans out to all replicas in parallel and succeeds when at least
// requiredR of them answered, found or not. A non-positive requiredR means a
// majority. Like DoWrite it returns as soon as the outcome is known, so Values
// may hold fewer answers than there are replicas.
func DoRead(ctx context.Context, replicas []string, requiredR int, readFn ReplicaReadFunc) ReadResult {
	return doRead(ctx, replicas, requiredR, false, readFn)
}

// DoReadAll is DoRead that keeps collecting answers after requiredR were
// reached, until every replica answered, ctx is done or requiredR can no
// longer be reached.
func DoReadAll(ctx context.Context, replicas []string, requiredR int, readFn ReplicaReadFunc) ReadResult {
	return doRead(ctx, replicas, requiredR, true, readFn)
}

func doRead(ctx context.Context, replicas []string, requiredR int, all bool, readFn ReplicaReadFunc) ReadResult {
	requiredR, err := required(replicas, requiredR, "R")
	if err != nil {
		return ReadResult{Required: requiredR, Replicas: len(replicas), Err: err}
	}
	enough := requiredR
	if all {
		enough = len(replicas)
	}

	var (
		mu     sync.Mutex
		values []ReadValue
	)
	responses, errs := fanOut(ctx, replicas, enough, len(replicas)-requiredR, func(ctx context.Context, id string) error {
		vv, found, err := readFn(ctx, id)
		if err != nil {
			return err
		}
		mu.Lock()
		values = append(values, ReadValue{ReplicaID: id, Value: vv, Found: found})
		mu.Unlock()
		return nil
	})

	mu.Lock()
	defer mu.Unlock()

	result := ReadResult{
		Responses: responses,
		Required:  requiredR,
		Replicas:  len(replicas),
	}
	if responses >= requiredR {
		result.Success = true
		result.Values = append([]ReadValue(nil), values[:responses]...)
		result.Err = errs
		return result
	}
	result.Err = notMet("responses", responses, requiredR, len(replicas), errs)
	return result
}

func required(replicas []string, n int, name string) (int, error) {
	if len(replicas) == 0 {
		return n, errors.New("no replicas provided")
	}
	if n <= 0 {
		n = (len(replicas) / 2) + 1 // default: majority
	}
	if n > len(replicas) {
		return n, fmt.Errorf("required %s=%d exceeds replica count=%d", name, n, len(replicas))
	}
	return n, nil
}

// fanOut calls fn for every replica and returns the number of successes once
// enough calls succeeded, more than maxFailures failed, every call finished or
// ctx is done. Calls run under a context detached from ctx, so the ones still
// running when fanOut returns finish in the background.
func fanOut(ctx context.Context, replicas []string, enough, maxFailures int, fn func(ctx context.Context, id string) error) (int, error) {
	replicaCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultPerReplicaTimeout)

	var (
		mu      sync.Mutex
		ok      int
		failed  int
		errs    []error
		g       errgroup.Group
		decide  sync.Once
		decided = make(chan struct{})
	)
	for _, id := range replicas {
		id := id // per-iteration copy (go directive < 1.22)
		g.Go(func() error {
			err := fn(replicaCtx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				errs = append(errs, fmt.Errorf("replica %s: %w", id, err))
			} else {
				ok++
			}
			if ok >= enough || failed > maxFailures || ok+failed == len(replicas) {
				decide.Do(func() { close(decided) })
			}
			return nil
		})
	}

	go func() {
		defer cancel()
		_ = g.Wait()
	}()

	select {
	case <-decided:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	var merr *multierror.Error
	merr = multierror.Append(merr, errs...)
	select {
	case <-decided:
	default:
		merr = multierror.Append(merr, fmt.Errorf("context cancelled: %w", ctx.Err()))
	}
	return ok, merr.ErrorOrNil()
}

func notMet(what string, got, required, replicas int, errs error) error {
	err := fmt.Errorf("%w: %s=%d required=%d replicas=%d", ErrQuorumNotMet, what, got, required, replicas)
	if errs != nil {
		return multierror.Append(err, errs)
	}
	return err
}
