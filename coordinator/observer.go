package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer is notified of state transitions and per-client outcomes. Calls
// are made from the round goroutine and must not block.
type Observer interface {
	StateChanged(round uint64, from, to State)
	ClientResult(round uint64, phase Phase, clientID string, err error)
	RoundFinished(round uint64, duration time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) StateChanged(uint64, State, State)          {}
func (nopObserver) ClientResult(uint64, Phase, string, error)  {}
func (nopObserver) RoundFinished(uint64, time.Duration, error) {}

var _ Observer = (*promObserver)(nil)

type promObserver struct {
	state   prometheus.Gauge
	round   prometheus.Gauge
	clients *prometheus.CounterVec
	rounds  *prometheus.CounterVec
	latency prometheus.Histogram
}

// NewPrometheusObserver registers round metrics with reg under namespace.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (Observer, error) {
	o := &promObserver{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "state",
			Help:      "Current coordinator state.",
		}),
		round: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "round",
			Help:      "Number of the round in progress or last finished.",
		}),
		clients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "client_results_total",
			Help:      "Client replies by phase and outcome.",
		}, []string{"phase", "outcome"}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "rounds_total",
			Help:      "Finished rounds by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "round_duration_seconds",
			Help:      "Wall time of a round.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	for _, c := range []prometheus.Collector{o.state, o.round, o.clients, o.rounds, o.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return o, nil
}

func (o *promObserver) StateChanged(round uint64, _, to State) {
	o.round.Set(float64(round))
	o.state.Set(float64(to))
}

func (o *promObserver) ClientResult(_ uint64, phase Phase, _ string, err error) {
	o.clients.WithLabelValues(string(phase), outcome(err)).Inc()
}

func (o *promObserver) RoundFinished(_ uint64, duration time.Duration, err error) {
	o.rounds.WithLabelValues(outcome(err)).Inc()
	o.latency.Observe(duration.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}

	return "success"
}
