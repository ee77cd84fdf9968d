package audit

import "github.com/prometheus/client_golang/prometheus"

var eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "agentos",
	Name:      "audit_events_total",
	Help:      "Audit entries appended, by type.",
}, []string{"type"})

func init() {
	prometheus.MustRegister(eventsTotal)
}
