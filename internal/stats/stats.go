package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aonescu/shopkeeper/internal/types"
)

const (
	ResultCreated = "created"
	ResultDeleted = "deleted"
	ResultFailed  = "failed"
)

// Stats counts lifecycle outcomes for the life of the process.
type Stats struct {
	created  atomic.Int64
	deleted  atomic.Int64
	failures atomic.Int64

	operations *prometheus.CounterVec
}

// New creates zeroed counters and registers their Prometheus mirror with reg.
// A nil reg skips registration.
func New(reg prometheus.Registerer) *Stats {
	s := &Stats{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopkeeper",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store lifecycle operations by result.",
		}, []string{"result"}),
	}
	for _, result := range []string{ResultCreated, ResultDeleted, ResultFailed} {
		s.operations.WithLabelValues(result)
	}
	if reg != nil {
		reg.MustRegister(s.operations)
	}
	return s
}

func (s *Stats) IncCreated() {
	s.created.Add(1)
	s.operations.WithLabelValues(ResultCreated).Inc()
}

func (s *Stats) IncDeleted() {
	s.deleted.Add(1)
	s.operations.WithLabelValues(ResultDeleted).Inc()
}

func (s *Stats) IncFailures() {
	s.failures.Add(1)
	s.operations.WithLabelValues(ResultFailed).Inc()
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() types.Stats {
	return types.Stats{
		Created:  s.created.Load(),
		Deleted:  s.deleted.Load(),
		Failures: s.failures.Load(),
	}
}
