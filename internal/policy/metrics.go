package policy

import "github.com/prometheus/client_golang/prometheus"

var evaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentos",
	Name:      "policy_evaluations_total",
	Help:      "Pre-flight policy evaluations by result.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(evaluations)
}
