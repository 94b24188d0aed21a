package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts checkpoint operations by store, operation and result.
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pure_checkpoint_operations_total",
			Help: "Total checkpoint store operations",
		},
		[]string{"store", "operation", "result"}, // result: "ok", "miss", "error"
	)
)
