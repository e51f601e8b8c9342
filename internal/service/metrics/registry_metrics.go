package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ModelLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chaincast",
			Subsystem: "registry",
			Name:      "model_loads_total",
			Help:      "Model version load attempts by result",
		},
		[]string{"result"},
	)

	ABAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chaincast",
			Subsystem: "registry",
			Name:      "ab_assignments_total",
			Help:      "A/B test user assignments by arm",
		},
		[]string{"arm"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ModelLoads, ABAssignments)
	})
}
