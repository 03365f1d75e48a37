package hlc

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	m := NewManualClock(1000)
	if m.Now() != 1000 {
		t.Fatalf("Expected 1000, got %d", m.Now())
	}

	m.Add(250 * time.Millisecond)
	if m.Now() != 1250 {
		t.Errorf("Expected 1250, got %d", m.Now())
	}

	m.Set(10)
	if m.Now() != 10 {
		t.Errorf("Expected 10 after moving backwards, got %d", m.Now())
	}
}

func TestSystemClock(t *testing.T) {
	var s SystemClock
	before := uint64(time.Now().UnixMilli())
	got := s.Now()
	after := uint64(time.Now().UnixMilli())
	if got < before || got > after {
		t.Errorf("SystemClock.Now() = %d, want within [%d, %d]", got, before, after)
	}
	if got > MaxPhysical {
		t.Errorf("SystemClock.Now() = %d does not fit in %d bits", got, PhysicalBits)
	}
}
