package clock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"hlclock/internal/hlc"
)

// ErrClockOffset is returned by Update when a remote timestamp is further
// ahead of the local wall clock than the configured maximum offset.
var ErrClockOffset = errors.New("clock: remote timestamp exceeds max offset")

// Option configures a Clock.
type Option func(*Clock)

// WithFloor makes the clock start no earlier than ts, e.g. the last
// timestamp persisted before a restart.
func WithFloor(ts hlc.Timestamp) Option {
	return func(c *Clock) { c.floor = ts }
}

// WithMaxOffset rejects remote timestamps whose physical time is more than d
// ahead of the local wall clock. Zero disables the check.
func WithMaxOffset(d time.Duration) Option {
	return func(c *Clock) { c.maxOffset = d }
}

// Clock is the shared clock of a node. It is safe for concurrent use.
type Clock struct {
	wall      hlc.WallClock
	state     atomic.Uint64
	floor     hlc.Timestamp
	maxOffset time.Duration
	metrics   metrics
}

// New creates a clock initialized from one reading of wall.
func New(wall hlc.WallClock, opts ...Option) (*Clock, error) {
	c := &Clock{
		wall:    wall,
		metrics: newMetrics(),
	}
	for _, o := range opts {
		o(c)
	}

	if _, err := hlc.Unpack(uint64(c.floor)); err != nil {
		return nil, fmt.Errorf("floor: %w", err)
	}
	initial, err := hlc.New(wall.Now())
	if err != nil {
		return nil, fmt.Errorf("initial wall clock reading: %w", err)
	}
	c.store(hlc.Max(initial.Timestamp(), c.floor))
	return c, nil
}

// Last returns the most recent timestamp without touching the clock.
func (c *Clock) Last() hlc.Timestamp {
	return hlc.Timestamp(c.state.Load())
}

// Now resynchronizes with the wall clock and returns the current timestamp.
// It does not advance the logical counter, so two calls within the same
// millisecond may return the same value.
func (c *Clock) Now() (hlc.Timestamp, error) {
	prev, ts, err := c.apply(func(cur hlc.Clock, now uint64) (hlc.Clock, error) {
		return cur.Current(now)
	})
	if err == nil && ts != prev {
		c.metrics.ResyncCount.Inc()
	}
	return ts, err
}

// Advance records a local or send event and returns its timestamp, which is
// strictly greater than any timestamp previously returned by this clock.
func (c *Clock) Advance() (hlc.Timestamp, error) {
	_, ts, err := c.apply(func(cur hlc.Clock, now uint64) (hlc.Clock, error) {
		return cur.Advance(now)
	})
	if err == nil {
		c.metrics.AdvanceCount.Inc()
	}
	return ts, err
}

// AdvanceWait is like Advance but, when the logical counter is exhausted,
// waits for the wall clock to move on and tries again until ctx is done.
func (c *Clock) AdvanceWait(ctx context.Context) (hlc.Timestamp, error) {
	for {
		ts, err := c.Advance()
		if !errors.Is(err, hlc.ErrLogicalOverflow) {
			return ts, err
		}

		timer := time.NewTimer(time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, fmt.Errorf("%w: %w", err, ctx.Err())
		case <-timer.C:
		}
	}
}

// Update merges a timestamp received from a peer and returns the merged
// timestamp.
func (c *Clock) Update(remote hlc.Timestamp) (hlc.Timestamp, error) {
	_, ts, err := c.apply(func(cur hlc.Clock, now uint64) (hlc.Clock, error) {
		if c.maxOffset > 0 && remote.Physical() > now+uint64(c.maxOffset.Milliseconds()) {
			return hlc.Clock{}, fmt.Errorf("%w: remote %s, wall %d, max %s", ErrClockOffset, remote, now, c.maxOffset)
		}
		return cur.Update(remote, now)
	})
	if err == nil {
		c.metrics.UpdateCount.Inc()
	}
	return ts, err
}

// apply runs a transition against the current state and installs the result
// if no other caller got there first. Each attempt reads the wall clock once.
// It returns the state the transition started from and the new one.
func (c *Clock) apply(transition func(hlc.Clock, uint64) (hlc.Clock, error)) (hlc.Timestamp, hlc.Timestamp, error) {
	for {
		old := c.state.Load()
		next, err := transition(hlc.FromTimestamp(hlc.Timestamp(old)), c.wall.Now())
		if err != nil {
			c.countError(err)
			return 0, 0, err
		}
		ts := next.Timestamp()
		if c.state.CompareAndSwap(old, uint64(ts)) {
			c.metrics.LastPhysical.Set(float64(ts.Physical()))
			c.metrics.LastLogical.Set(float64(ts.Logical()))
			return hlc.Timestamp(old), ts, nil
		}
		c.metrics.CASRetryCount.Inc()
	}
}

func (c *Clock) store(ts hlc.Timestamp) {
	c.state.Store(uint64(ts))
	c.metrics.LastPhysical.Set(float64(ts.Physical()))
	c.metrics.LastLogical.Set(float64(ts.Logical()))
}

func (c *Clock) countError(err error) {
	switch {
	case errors.Is(err, hlc.ErrAmbiguousMerge):
		c.metrics.CollisionCount.Inc()
	case errors.Is(err, hlc.ErrLogicalOverflow):
		c.metrics.OverflowCount.Inc()
	case errors.Is(err, ErrClockOffset):
		c.metrics.OffsetRejectCount.Inc()
	}
}
