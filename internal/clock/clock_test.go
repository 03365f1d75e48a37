package clock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlclock/internal/hlc"
)

const wallTime = 1679924536986

func TestNew_StartsAtWallClock(t *testing.T) {
	c, err := New(hlc.NewManualClock(wallTime))
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime, 0), c.Last())
}

func TestNew_Floor(t *testing.T) {
	floor := hlc.MustPack(wallTime+500, 3)
	c, err := New(hlc.NewManualClock(wallTime), WithFloor(floor))
	require.NoError(t, err)
	assert.Equal(t, floor, c.Last())

	ts, err := c.Advance()
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime+500, 4), ts)

	// a floor in the past is ignored
	c, err = New(hlc.NewManualClock(wallTime), WithFloor(hlc.MustPack(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime, 0), c.Last())
}

func TestNew_FloorReservedBits(t *testing.T) {
	_, err := New(hlc.NewManualClock(wallTime), WithFloor(hlc.Timestamp(1<<63|wallTime<<hlc.LogicalBits)))
	assert.ErrorIs(t, err, hlc.ErrOutOfRange)
}

func TestNew_WallOutOfRange(t *testing.T) {
	_, err := New(hlc.NewManualClock(hlc.MaxPhysical + 1))
	assert.ErrorIs(t, err, hlc.ErrOutOfRange)
}

func TestClock_Now(t *testing.T) {
	wall := hlc.NewManualClock(wallTime)
	c, err := New(wall)
	require.NoError(t, err)

	_, err = c.Advance()
	require.NoError(t, err)

	ts, err := c.Now()
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime, 1), ts, "resync in the same millisecond keeps the counter")

	wall.Add(2 * time.Millisecond)
	ts, err = c.Now()
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime+2, 0), ts)
	assert.Equal(t, ts, c.Last())
}

func TestClock_Advance(t *testing.T) {
	wall := hlc.NewManualClock(wallTime)
	c, err := New(wall)
	require.NoError(t, err)

	for i := uint64(1); i <= 20; i++ {
		ts, err := c.Advance()
		require.NoError(t, err)
		assert.Equal(t, hlc.MustPack(wallTime, i), ts)
	}

	wall.Set(wallTime - 1000)
	ts, err := c.Advance()
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime, 21), ts, "backwards wall clock only bumps the counter")

	assert.Equal(t, float64(21), testutil.ToFloat64(c.metrics.AdvanceCount))
	assert.Equal(t, float64(21), testutil.ToFloat64(c.metrics.LastLogical))
}

func TestClock_Update(t *testing.T) {
	wall := hlc.NewManualClock(wallTime)
	c, err := New(wall)
	require.NoError(t, err)

	ts, err := c.Update(hlc.MustPack(wallTime+200, 100))
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime+200, 101), ts)

	ts, err = c.Update(hlc.MustPack(wallTime, 10000))
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime+200, 102), ts)
	assert.Equal(t, float64(2), testutil.ToFloat64(c.metrics.UpdateCount))
}

func TestClock_Update_Collision(t *testing.T) {
	c, err := New(hlc.NewManualClock(wallTime))
	require.NoError(t, err)

	before := c.Last()
	_, err = c.Update(before)
	require.ErrorIs(t, err, hlc.ErrAmbiguousMerge)
	assert.Equal(t, before, c.Last(), "failed merge leaves the clock untouched")
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.CollisionCount))
}

func TestClock_Update_MaxOffset(t *testing.T) {
	c, err := New(hlc.NewManualClock(wallTime), WithMaxOffset(500*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Update(hlc.MustPack(wallTime+501, 0))
	require.ErrorIs(t, err, ErrClockOffset)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.OffsetRejectCount))

	ts, err := c.Update(hlc.MustPack(wallTime+500, 0))
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime+500, 1), ts)
}

func TestClock_Overflow(t *testing.T) {
	c, err := New(hlc.NewManualClock(wallTime), WithFloor(hlc.MustPack(wallTime, hlc.MaxLogical)))
	require.NoError(t, err)

	_, err = c.Advance()
	require.ErrorIs(t, err, hlc.ErrLogicalOverflow)
	assert.Equal(t, hlc.MustPack(wallTime, hlc.MaxLogical), c.Last())
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.OverflowCount))
}

func TestClock_AdvanceWait(t *testing.T) {
	wall := hlc.NewManualClock(wallTime)
	c, err := New(wall, WithFloor(hlc.MustPack(wallTime, hlc.MaxLogical)))
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		wall.Add(time.Millisecond)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ts, err := c.AdvanceWait(ctx)
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime+1, 0), ts)
}

func TestClock_AdvanceWait_ContextDone(t *testing.T) {
	c, err := New(hlc.NewManualClock(wallTime), WithFloor(hlc.MustPack(wallTime, hlc.MaxLogical)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = c.AdvanceWait(ctx)
	assert.ErrorIs(t, err, hlc.ErrLogicalOverflow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClock_ConcurrentAdvanceUnique(t *testing.T) {
	c, err := New(hlc.NewManualClock(wallTime))
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	results := make(chan hlc.Timestamp, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ts, err := c.Advance()
				if err != nil {
					t.Error(err)
					return
				}
				results <- ts
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[hlc.Timestamp]bool, workers*perWorker)
	for ts := range results {
		if seen[ts] {
			t.Fatalf("timestamp %s issued twice", ts)
		}
		seen[ts] = true
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, hlc.MustPack(wallTime, workers*perWorker), c.Last())
}

func TestClock_ResyncCountsOnlyJumps(t *testing.T) {
	wall := hlc.NewManualClock(wallTime)
	c, err := New(wall)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.Now()
		require.NoError(t, err)
	}
	assert.Zero(t, testutil.ToFloat64(c.metrics.ResyncCount), "wall clock has not moved")

	wall.Add(time.Millisecond)
	ts, err := c.Now()
	require.NoError(t, err)
	assert.Equal(t, hlc.MustPack(wallTime+1, 0), ts)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.ResyncCount))
}

func TestClock_Metrics(t *testing.T) {
	c, err := New(hlc.SystemClock{})
	require.NoError(t, err)
	assert.Len(t, c.Metrics(), 9)
}
