package agentauth

import "github.com/prometheus/client_golang/prometheus"

var (
	authTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentos",
		Name:      "agent_auth_total",
		Help:      "Agent API authentication decisions by result and reason.",
	}, []string{"result", "reason"})

	replayStoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentos",
		Name:      "replay_store_errors_total",
		Help:      "Replay store failures other than duplicate keys.",
	}, []string{"store"})

	replayReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "agentos",
		Name:      "replay_reaped_total",
		Help:      "Replay keys purged after leaving the timestamp window.",
	})
)

func init() {
	prometheus.MustRegister(authTotal, replayStoreErrors, replayReaped)
}
