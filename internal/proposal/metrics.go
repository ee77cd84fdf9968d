package proposal

import "github.com/prometheus/client_golang/prometheus"

var (
	proposalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentos",
		Name:      "proposals_total",
		Help:      "Transfer proposals by delivery mode.",
	}, []string{"mode"})

	actionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentos",
		Name:      "proposal_actions_total",
		Help:      "Approve, reject and execute calls by action and mode.",
	}, []string{"action", "mode"})
)

func init() {
	prometheus.MustRegister(proposalsTotal, actionsTotal)
}
