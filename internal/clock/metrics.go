package clock

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	AdvanceCount      prometheus.Counter
	UpdateCount       prometheus.Counter
	ResyncCount       prometheus.Counter
	CollisionCount    prometheus.Counter
	OverflowCount     prometheus.Counter
	OffsetRejectCount prometheus.Counter
	CASRetryCount     prometheus.Counter
	LastPhysical      prometheus.Gauge
	LastLogical       prometheus.Gauge
}

func newMetrics() metrics {
	subsystem := "hlc"

	return metrics{
		AdvanceCount: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "advance_count",
			Help:      "Number of local events recorded.",
		}),
		UpdateCount: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "update_count",
			Help:      "Number of remote timestamps merged.",
		}),
		ResyncCount: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "resync_count",
			Help:      "Number of reads that moved the clock forward to the wall clock.",
		}),
		CollisionCount: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "collision_count",
			Help:      "Number of merges rejected because both timestamps were identical.",
		}),
		OverflowCount: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "logical_overflow_count",
			Help:      "Number of transitions rejected because the logical counter was exhausted.",
		}),
		OffsetRejectCount: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "offset_reject_count",
			Help:      "Number of remote timestamps rejected for exceeding the max offset.",
		}),
		CASRetryCount: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "cas_retry_count",
			Help:      "Number of transitions retried because of a concurrent update.",
		}),
		LastPhysical: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "last_physical_ms",
			Help:      "Physical component of the last issued timestamp.",
		}),
		LastLogical: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "last_logical",
			Help:      "Logical component of the last issued timestamp.",
		}),
	}
}

// Metrics returns the clock's prometheus collectors.
func (c *Clock) Metrics() (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(c.metrics))
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).CanInterface() {
			continue
		}
		if u, ok := v.Field(i).Interface().(prometheus.Collector); ok {
			cs = append(cs, u)
		}
	}
	return cs
}
